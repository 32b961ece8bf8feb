package models

// User represents a person who can be staffed on line items.
// Users are a rate source: their defaults sit below estimate and client
// overrides and above role defaults.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Name is the display name; it becomes the line item's resource name.
	Name string

	Email string

	// RoleID is the user's primary role, used when the person has no rate
	// of their own for a field.
	RoleID string

	DefaultBillingRate float64
	DefaultCostRate    float64

	// IsSalaried users contribute zero cost to cost and margin calculations.
	IsSalaried bool

	CreatedAt int64
}

// Role is a staffing role with a default ("rack") billing rate and cost rate.
type Role struct {
	ID   string
	Name string

	DefaultRackRate float64
	DefaultCostRate float64

	// IsAlwaysSalaried is a planning fallback, only consulted when no person
	// is assigned to the line item.
	IsAlwaysSalaried bool

	CreatedAt int64
}

// OverrideScope is where a rate override applies.
type OverrideScope string

const (
	OverrideScopeClient   OverrideScope = "client"
	OverrideScopeEstimate OverrideScope = "estimate"
)

// OverrideSubject is what a rate override prices.
type OverrideSubject string

const (
	OverrideSubjectPerson OverrideSubject = "person"
	OverrideSubjectRole   OverrideSubject = "role"
)

// RateOverride replaces the default billing and/or cost rate of a person or
// role, for one client or one estimate. A nil rate leaves that field to the
// next layer of the hierarchy.
type RateOverride struct {
	ID string

	Scope   OverrideScope
	ScopeID string

	SubjectType OverrideSubject
	SubjectID   string

	BillingRate *float64
	CostRate    *float64

	// EffectiveFrom and EffectiveTo bound the override (Unix seconds,
	// inclusive). Zero leaves that side open.
	EffectiveFrom int64
	EffectiveTo   int64

	CreatedAt int64
}

// ActiveAt reports whether the override is effective at the given Unix time.
func (o *RateOverride) ActiveAt(t int64) bool {
	if o.EffectiveFrom != 0 && t < o.EffectiveFrom {
		return false
	}
	if o.EffectiveTo != 0 && t > o.EffectiveTo {
		return false
	}
	return true
}

// Matches reports whether the override prices the given subject.
func (o *RateOverride) Matches(subject OverrideSubject, id string) bool {
	return id != "" && o.SubjectType == subject && o.SubjectID == id
}
