package calculator

import (
	"strings"

	"github.com/mmynk/estimator/internal/models"
)

// RateInput is the resource binding of a line item plus whatever the caller
// already looked up for it.
type RateInput struct {
	AssignedUserID string
	RoleID         string
	ResourceName   string

	// Person is the assigned user, loaded by the caller. Nil when
	// AssignedUserID is empty.
	Person *models.User

	// Current rates of the item. They pass through untouched when no person
	// or role matches, and feed the ratio fallback.
	Rate           float64
	CostRate       float64
	RateSource     models.RateSource
	CostRateSource models.RateSource
}

// RateResolution is the outcome of resolving one line item's rates.
type RateResolution struct {
	Rate           float64
	CostRate       float64
	RateSource     models.RateSource
	CostRateSource models.RateSource

	// ResourceName is the person's name, the matched role's name, or the
	// trimmed free-text name.
	ResourceName string

	// RoleID is the role that took part in resolution, if any.
	RoleID string

	Salaried bool

	// Matched is true when a person or role took part in resolution.
	Matched bool
}

// rateLayer is one level of the hierarchy. A nil field means the layer does
// not supply it.
type rateLayer struct {
	billing *float64
	cost    *float64
	source  models.RateSource
}

// ResolveRates walks the rate hierarchy for a line item. Billing and cost
// resolve independently; for each, the first layer that supplies a value
// wins:
//
//  1. estimate-scoped override for the person
//  2. client-scoped override for the person
//  3. the person's default rates
//  4. estimate override, client override, then default of the role
//  5. ratio fallback on cost, only when nothing matched
func ResolveRates(pc PricingContext, in RateInput) RateResolution {
	person := in.Person
	role := pc.resolveRole(in)

	var layers []rateLayer
	if person != nil {
		layers = append(layers,
			overrideLayer(pc.EstimateOverrides, models.OverrideSubjectPerson, person.ID, pc.AsOf, models.RateSourceEstimateOverride),
			overrideLayer(pc.ClientOverrides, models.OverrideSubjectPerson, person.ID, pc.AsOf, models.RateSourceClientOverride),
			rateLayer{
				billing: positive(person.DefaultBillingRate),
				cost:    positive(person.DefaultCostRate),
				source:  models.RateSourcePersonDefault,
			},
		)
	}
	if role != nil {
		layers = append(layers,
			overrideLayer(pc.EstimateOverrides, models.OverrideSubjectRole, role.ID, pc.AsOf, models.RateSourceEstimateOverride),
			overrideLayer(pc.ClientOverrides, models.OverrideSubjectRole, role.ID, pc.AsOf, models.RateSourceClientOverride),
			rateLayer{
				billing: positive(role.DefaultRackRate),
				cost:    positive(role.DefaultCostRate),
				source:  models.RateSourceRoleDefault,
			},
		)
	}

	res := RateResolution{
		ResourceName: strings.TrimSpace(in.ResourceName),
		Matched:      person != nil || role != nil,
	}
	if role != nil {
		res.RoleID = role.ID
		res.ResourceName = role.Name
		res.Salaried = role.IsAlwaysSalaried
	}
	if person != nil {
		res.ResourceName = person.Name
		res.Salaried = person.IsSalaried
	}

	if !res.Matched {
		res.Rate, res.RateSource = in.Rate, in.RateSource
		res.CostRate, res.CostRateSource = in.CostRate, in.CostRateSource
		if res.Rate > 0 && res.CostRate == 0 {
			res.CostRate = res.Rate * pc.CostRatio
			res.CostRateSource = models.RateSourceRatioFallback
		}
		return res
	}

	for _, l := range layers {
		if res.RateSource == models.RateSourceNone && l.billing != nil {
			res.Rate, res.RateSource = *l.billing, l.source
		}
		if res.CostRateSource == models.RateSourceNone && l.cost != nil {
			res.CostRate, res.CostRateSource = *l.cost, l.source
		}
	}
	return res
}

// resolveRole picks the role taking part in resolution: the explicit role,
// else the person's primary role, else (with no person) a role whose name
// matches the free-text resource name.
func (pc PricingContext) resolveRole(in RateInput) *models.Role {
	if role := pc.RoleByID(in.RoleID); role != nil {
		return role
	}
	if in.Person != nil {
		return pc.RoleByID(in.Person.RoleID)
	}
	if in.AssignedUserID != "" {
		return nil
	}
	return pc.RoleByName(in.ResourceName)
}

// overrideLayer finds the active override for a subject. When several are
// active, the one that became effective last wins.
func overrideLayer(overrides []models.RateOverride, subject models.OverrideSubject, id string, asOf int64, source models.RateSource) rateLayer {
	var best *models.RateOverride
	for i := range overrides {
		o := &overrides[i]
		if !o.Matches(subject, id) || !o.ActiveAt(asOf) {
			continue
		}
		if best == nil || o.EffectiveFrom > best.EffectiveFrom {
			best = o
		}
	}
	if best == nil {
		return rateLayer{source: source}
	}
	return rateLayer{
		billing: best.BillingRate,
		cost:    best.CostRate,
		source:  source,
	}
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}
