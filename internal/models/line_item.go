package models

// RateSource records which layer of the rate hierarchy produced a rate.
// Precedence, strongest first: manual, estimate override, client override,
// person default, role default, ratio fallback.
type RateSource string

const (
	// RateSourceNone means no layer supplied the rate.
	RateSourceNone             RateSource = ""
	RateSourceManual           RateSource = "manual"
	RateSourceEstimateOverride RateSource = "estimate_override"
	RateSourceClientOverride   RateSource = "client_override"
	RateSourcePersonDefault    RateSource = "person_default"
	RateSourceRoleDefault      RateSource = "role_default"
	RateSourceRatioFallback    RateSource = "ratio_fallback"
)

// Valid reports whether s is a known rate source.
func (s RateSource) Valid() bool {
	switch s {
	case RateSourceNone, RateSourceManual, RateSourceEstimateOverride, RateSourceClientOverride,
		RateSourcePersonDefault, RateSourceRoleDefault, RateSourceRatioFallback:
		return true
	}
	return false
}

// LineItem is a unit of estimated work within an estimate.
type LineItem struct {
	// ID is the unique identifier for the line item (UUID format).
	ID         string
	EstimateID string

	// Grouping labels used by insights and resource summaries.
	Epic       string
	Stage      string
	Workstream string

	Description string

	BaseHours float64

	// Factor multiplies base hours before the contingency cascade.
	// Zero is treated as 1.
	Factor float64

	// Risk levels, stored as entered and normalized by the calculator.
	Size       string
	Complexity string
	Confidence string

	Rate           float64
	CostRate       float64
	RateSource     RateSource
	CostRateSource RateSource

	// Resource binding. At most one of these meaningfully drives resolution:
	// an assigned user wins over a role, a role over a free-text name.
	AssignedUserID string
	RoleID         string
	ResourceName   string

	// EffectiveRoleID is the role that took part in resolution: RoleID, the
	// assigned person's role, or a role matched by name. Derived, not a
	// binding.
	EffectiveRoleID string

	// Salaried is true when the effective resource carries no cost.
	Salaried bool

	// Derived values, owned by the calculator.
	AdjustedHours float64
	TotalAmount   float64
	TotalCost     float64
	Margin        float64
	MarginPercent float64

	ReferralMarkup          float64
	TotalAmountWithReferral float64

	CreatedAt int64
	UpdatedAt int64
}

// HasManualRateOverride reports whether a user set the rate or cost rate
// directly. Such items are skipped by bulk recalculation.
func (li *LineItem) HasManualRateOverride() bool {
	return li.RateSource == RateSourceManual || li.CostRateSource == RateSourceManual
}

// HasResourceBinding reports whether any resource binding is set.
func (li *LineItem) HasResourceBinding() bool {
	return li.AssignedUserID != "" || li.RoleID != "" || li.ResourceName != ""
}
