// Package calculator implements the estimate pricing engine: rate resolution,
// the contingency cascade, aggregation, referral fee distribution and the
// margin override transform.
//
// Every function here is pure. Inputs are passed explicitly through a
// PricingContext or as line item slices, and functions that change line
// items return new slices instead of mutating their arguments.
package calculator

import (
	"strings"

	"github.com/mmynk/estimator/internal/models"
)

// DefaultCostRatio is the cost/billing ratio used by the ratio fallback when
// the catch-all role is missing or malformed.
const DefaultCostRatio = 0.75

// DefaultFallbackRoleName names the catch-all role whose own cost/billing
// ratio drives the ratio fallback.
const DefaultFallbackRoleName = "Other"

// PricingContext carries everything the calculator needs about the estimate
// being priced. Build it with NewPricingContext and treat it as read-only.
type PricingContext struct {
	Multipliers models.MultiplierTable

	Roles             []models.Role
	EstimateOverrides []models.RateOverride
	ClientOverrides   []models.RateOverride

	// CostRatio is the ratio fallback: cost = billing x CostRatio.
	CostRatio float64

	// AsOf is the Unix time overrides are evaluated at.
	AsOf int64
}

// NewPricingContext builds a PricingContext for an estimate. The slices are
// copied so later changes by the caller do not leak into pricing.
func NewPricingContext(
	est *models.Estimate,
	roles []models.Role,
	estimateOverrides, clientOverrides []models.RateOverride,
	fallbackRoleName string,
	asOf int64,
) PricingContext {
	return PricingContext{
		Multipliers:       est.Multipliers,
		Roles:             append([]models.Role(nil), roles...),
		EstimateOverrides: append([]models.RateOverride(nil), estimateOverrides...),
		ClientOverrides:   append([]models.RateOverride(nil), clientOverrides...),
		CostRatio:         CostRatioFromRoles(roles, fallbackRoleName),
		AsOf:              asOf,
	}
}

// CostRatioFromRoles returns the cost/billing ratio of the catch-all role,
// or DefaultCostRatio when that role is absent or its rates are not usable.
func CostRatioFromRoles(roles []models.Role, fallbackRoleName string) float64 {
	if fallbackRoleName == "" {
		fallbackRoleName = DefaultFallbackRoleName
	}
	role := findRoleByName(roles, fallbackRoleName)
	if role == nil || role.DefaultRackRate <= 0 || role.DefaultCostRate <= 0 {
		return DefaultCostRatio
	}
	return role.DefaultCostRate / role.DefaultRackRate
}

// RoleByID returns the role with the given ID, or nil.
func (pc PricingContext) RoleByID(id string) *models.Role {
	if id == "" {
		return nil
	}
	for i := range pc.Roles {
		if pc.Roles[i].ID == id {
			return &pc.Roles[i]
		}
	}
	return nil
}

// RoleByName matches a free-text resource name against role names,
// ignoring case and surrounding whitespace.
func (pc PricingContext) RoleByName(name string) *models.Role {
	return findRoleByName(pc.Roles, name)
}

func findRoleByName(roles []models.Role, name string) *models.Role {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	for i := range roles {
		if strings.EqualFold(strings.TrimSpace(roles[i].Name), name) {
			return &roles[i]
		}
	}
	return nil
}
