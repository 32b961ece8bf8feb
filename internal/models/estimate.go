package models

// EstimateStatus is the lifecycle state of an estimate.
// Only draft estimates accept structural changes.
type EstimateStatus string

const (
	EstimateStatusDraft    EstimateStatus = "draft"
	EstimateStatusFinal    EstimateStatus = "final"
	EstimateStatusSent     EstimateStatus = "sent"
	EstimateStatusApproved EstimateStatus = "approved"
	EstimateStatusRejected EstimateStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s EstimateStatus) Valid() bool {
	switch s {
	case EstimateStatusDraft, EstimateStatusFinal, EstimateStatusSent,
		EstimateStatusApproved, EstimateStatusRejected:
		return true
	}
	return false
}

// statusTransitions lists the statuses reachable from each status.
var statusTransitions = map[EstimateStatus][]EstimateStatus{
	EstimateStatusDraft: {EstimateStatusFinal},
	EstimateStatusFinal: {EstimateStatusDraft, EstimateStatusSent},
	EstimateStatusSent:  {EstimateStatusApproved, EstimateStatusRejected},
}

// CanTransitionTo reports whether an estimate in status s may move to next.
func (s EstimateStatus) CanTransitionTo(next EstimateStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReferralType selects how the referral fee is computed.
type ReferralType string

const (
	ReferralTypeNone       ReferralType = "none"
	ReferralTypePercentage ReferralType = "percentage"
	ReferralTypeFlat       ReferralType = "flat"
)

// ReferralConfig is the referral fee configuration of an estimate.
type ReferralConfig struct {
	Type ReferralType

	// Percent of profit owed to the referrer (percentage mode).
	Percent float64

	// FlatAmount owed to the referrer (flat mode).
	FlatAmount float64
}

// MultiplierTable holds the per-factor contingency multipliers of an estimate.
// Every multiplier must be positive; values below 1 reduce hours.
type MultiplierTable struct {
	SizeSmall  float64
	SizeMedium float64
	SizeLarge  float64

	ComplexitySmall  float64
	ComplexityMedium float64
	ComplexityLarge  float64

	ConfidenceHigh   float64
	ConfidenceMedium float64
	ConfidenceLow    float64
}

// DefaultMultipliers returns the multiplier table new estimates start with.
func DefaultMultipliers() MultiplierTable {
	return MultiplierTable{
		SizeSmall:        1.00,
		SizeMedium:       1.05,
		SizeLarge:        1.10,
		ComplexitySmall:  1.00,
		ComplexityMedium: 1.05,
		ComplexityLarge:  1.10,
		ConfidenceHigh:   1.00,
		ConfidenceMedium: 1.10,
		ConfidenceLow:    1.20,
	}
}

// Values returns the multipliers keyed by "factor.level", in a stable shape
// suitable for validation messages.
func (m MultiplierTable) Values() map[string]float64 {
	return map[string]float64{
		"size.small":        m.SizeSmall,
		"size.medium":       m.SizeMedium,
		"size.large":        m.SizeLarge,
		"complexity.small":  m.ComplexitySmall,
		"complexity.medium": m.ComplexityMedium,
		"complexity.large":  m.ComplexityLarge,
		"confidence.high":   m.ConfidenceHigh,
		"confidence.medium": m.ConfidenceMedium,
		"confidence.low":    m.ConfidenceLow,
	}
}

// RateSnapshot maps a line item ID to its rate before a margin override was
// applied. A nil snapshot means no override basis exists.
type RateSnapshot map[string]float64

// Clone returns an independent copy of the snapshot. Cloning nil yields nil.
func (s RateSnapshot) Clone() RateSnapshot {
	if s == nil {
		return nil
	}
	out := make(RateSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Estimate is a priced client quote made of line items.
type Estimate struct {
	// ID is the unique identifier for the estimate (UUID format).
	ID string

	// ClientID scopes client-level rate overrides.
	ClientID string

	Name   string
	Status EstimateStatus

	Multipliers MultiplierTable
	Referral    ReferralConfig

	// Derived totals, maintained by the aggregator and referral distributor.
	TotalHours        float64
	TotalFees         float64
	TotalCost         float64
	MarginPercent     float64
	PresentedTotal    float64
	NetRevenue        float64
	ReferralFeeAmount float64

	// Margin override state.
	MarginOverrideActive  bool
	MarginOverridePercent float64
	RateSnapshot          RateSnapshot

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// IsEditable reports whether line items, overrides and multipliers of the
// estimate may be changed.
func (e *Estimate) IsEditable() bool {
	return e.Status == EstimateStatusDraft
}

// ClearMarginOverride drops the override flag, target and snapshot.
func (e *Estimate) ClearMarginOverride() {
	e.MarginOverrideActive = false
	e.MarginOverridePercent = 0
	e.RateSnapshot = nil
}
