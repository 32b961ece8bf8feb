// Package models defines the core domain models for the estimator.
//
// # Models
//
//   - Estimate: a client quote with its multiplier table, referral
//     configuration, derived totals and margin override state
//   - LineItem: a unit of estimated work owned by an estimate
//   - User: a person who can be staffed on a line item (rate source)
//   - Role: a staffing role with rack and cost rates (rate source)
//   - RateOverride: a client- or estimate-scoped rate for a person or role
//
// # Design Principles
//
// 1. **Plain data**: models carry no persistence or transport concerns
// 2. **IDs over pointers**: relationships are ID strings (UUID format)
// 3. **Derived fields are owned by the calculator**: handlers never write
// AdjustedHours, TotalAmount and friends directly
//
// Monetary and hour quantities are float64 and are never rounded while
// stored; rounding happens only at the presentation edge.
package models
