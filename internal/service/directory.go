package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/estimator/internal/apperr"
	"github.com/mmynk/estimator/internal/models"
	"github.com/mmynk/estimator/internal/storage"
)

// RoleInput describes a new staffing role.
type RoleInput struct {
	Name             string
	DefaultRackRate  float64
	DefaultCostRate  float64
	IsAlwaysSalaried bool
}

// CreateRole stores a role. Names are unique, ignoring case.
func (s *EstimateService) CreateRole(ctx context.Context, in RoleInput) (role *models.Role, err error) {
	defer s.observe("CreateRole", time.Now(), &err)
	slog.Info("CreateRole request received", "name", in.Name)

	v := violations{}
	v.required("name", in.Name)
	v.nonNegative("defaultRackRate", in.DefaultRackRate)
	v.nonNegative("defaultCostRate", in.DefaultCostRate)
	if err := v.err(); err != nil {
		return nil, err
	}

	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to load roles", err)
	}
	name := strings.TrimSpace(in.Name)
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r.Name), name) {
			return nil, apperr.Validation(map[string]string{"name": "already exists"})
		}
	}

	role = &models.Role{
		Name:             name,
		DefaultRackRate:  in.DefaultRackRate,
		DefaultCostRate:  in.DefaultCostRate,
		IsAlwaysSalaried: in.IsAlwaysSalaried,
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, apperr.Internal("failed to create role", err)
	}

	slog.Info("CreateRole successful", "role_id", role.ID, "name", role.Name)
	return role, nil
}

// ListRoles returns every role ordered by name.
func (s *EstimateService) ListRoles(ctx context.Context) (roles []models.Role, err error) {
	defer s.observe("ListRoles", time.Now(), &err)

	roles, err = s.store.ListRoles(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to load roles", err)
	}
	return roles, nil
}

// UserInput describes a new staffable person.
type UserInput struct {
	Name               string
	Email              string
	RoleID             string
	DefaultBillingRate float64
	DefaultCostRate    float64
	IsSalaried         bool
}

// CreateUser stores a person that line items can be assigned to.
func (s *EstimateService) CreateUser(ctx context.Context, in UserInput) (user *models.User, err error) {
	defer s.observe("CreateUser", time.Now(), &err)
	slog.Info("CreateUser request received", "name", in.Name)

	v := violations{}
	v.required("name", in.Name)
	v.nonNegative("defaultBillingRate", in.DefaultBillingRate)
	v.nonNegative("defaultCostRate", in.DefaultCostRate)
	if err := v.err(); err != nil {
		return nil, err
	}

	roleID := strings.TrimSpace(in.RoleID)
	if roleID != "" {
		if _, err := s.store.GetRole(ctx, roleID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, apperr.Validation(map[string]string{"roleId": "unknown role"})
			}
			return nil, apperr.Internal("failed to load role", err)
		}
	}

	user = &models.User{
		Name:               strings.TrimSpace(in.Name),
		Email:              strings.TrimSpace(in.Email),
		RoleID:             roleID,
		DefaultBillingRate: in.DefaultBillingRate,
		DefaultCostRate:    in.DefaultCostRate,
		IsSalaried:         in.IsSalaried,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, apperr.Internal("failed to create user", err)
	}

	slog.Info("CreateUser successful", "user_id", user.ID, "name", user.Name)
	return user, nil
}

// RateOverrideInput describes a client- or estimate-scoped rate override.
type RateOverrideInput struct {
	Scope   models.OverrideScope
	ScopeID string

	SubjectType models.OverrideSubject
	SubjectID   string

	BillingRate *float64
	CostRate    *float64

	EffectiveFrom int64
	EffectiveTo   int64
}

func (in RateOverrideInput) validate() violations {
	v := violations{}
	if in.Scope != models.OverrideScopeClient && in.Scope != models.OverrideScopeEstimate {
		v["scope"] = "must be client or estimate"
	}
	v.required("scopeId", in.ScopeID)
	if in.SubjectType != models.OverrideSubjectPerson && in.SubjectType != models.OverrideSubjectRole {
		v["subjectType"] = "must be person or role"
	}
	v.required("subjectId", in.SubjectID)
	if in.BillingRate == nil && in.CostRate == nil {
		v["billingRate"] = "billing rate or cost rate required"
	}
	v.nonNegativePtr("billingRate", in.BillingRate)
	v.nonNegativePtr("costRate", in.CostRate)
	if in.EffectiveFrom != 0 && in.EffectiveTo != 0 && in.EffectiveTo < in.EffectiveFrom {
		v["effectiveTo"] = "must not be before effectiveFrom"
	}
	return v
}

// CreateRateOverride stores an override. Estimate-scoped overrides require a
// draft estimate. The new rates reach existing line items on the next
// Recalculate or rebinding.
func (s *EstimateService) CreateRateOverride(ctx context.Context, in RateOverrideInput) (o *models.RateOverride, err error) {
	defer s.observe("CreateRateOverride", time.Now(), &err)
	slog.Info("CreateRateOverride request received",
		"scope", in.Scope,
		"scope_id", in.ScopeID,
		"subject_type", in.SubjectType,
		"subject_id", in.SubjectID,
	)

	if err := in.validate().err(); err != nil {
		return nil, err
	}
	if in.Scope == models.OverrideScopeEstimate {
		if _, err := s.loadDraft(ctx, in.ScopeID); err != nil {
			return nil, err
		}
	}
	if err := s.requireSubject(ctx, in.SubjectType, in.SubjectID); err != nil {
		return nil, err
	}

	o = &models.RateOverride{
		Scope:         in.Scope,
		ScopeID:       strings.TrimSpace(in.ScopeID),
		SubjectType:   in.SubjectType,
		SubjectID:     strings.TrimSpace(in.SubjectID),
		BillingRate:   in.BillingRate,
		CostRate:      in.CostRate,
		EffectiveFrom: in.EffectiveFrom,
		EffectiveTo:   in.EffectiveTo,
	}
	if err := s.store.CreateRateOverride(ctx, o); err != nil {
		return nil, apperr.Internal("failed to create rate override", err)
	}

	slog.Info("CreateRateOverride successful", "override_id", o.ID)
	return o, nil
}

// requireSubject checks that the person or role an override prices exists.
func (s *EstimateService) requireSubject(ctx context.Context, subject models.OverrideSubject, id string) error {
	var err error
	switch subject {
	case models.OverrideSubjectPerson:
		_, err = s.store.GetUser(ctx, id)
	case models.OverrideSubjectRole:
		_, err = s.store.GetRole(ctx, id)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Wrap(apperr.CodeOverrideSubjectMissing, "override subject "+string(subject)+" "+id+" does not exist", err)
	}
	if err != nil {
		return apperr.Internal("failed to load override subject", err)
	}
	return nil
}

// DeleteRateOverride removes an override. Estimate-scoped overrides require
// a draft estimate.
func (s *EstimateService) DeleteRateOverride(ctx context.Context, id string) (err error) {
	defer s.observe("DeleteRateOverride", time.Now(), &err)
	slog.Info("DeleteRateOverride request received", "override_id", id)

	o, err := s.store.GetRateOverride(ctx, id)
	if err != nil {
		return storeErr("rate override", id, err)
	}
	if o.Scope == models.OverrideScopeEstimate {
		if _, err := s.loadDraft(ctx, o.ScopeID); err != nil {
			return err
		}
	}
	if err := s.store.DeleteRateOverride(ctx, id); err != nil {
		return storeErr("rate override", id, err)
	}

	slog.Info("DeleteRateOverride successful", "override_id", id)
	return nil
}

// ListRateOverrides returns the overrides of one client or estimate.
func (s *EstimateService) ListRateOverrides(ctx context.Context, scope models.OverrideScope, scopeID string) (overrides []models.RateOverride, err error) {
	defer s.observe("ListRateOverrides", time.Now(), &err)

	switch scope {
	case models.OverrideScopeClient:
		overrides, err = s.store.GetClientRateOverrides(ctx, scopeID)
	case models.OverrideScopeEstimate:
		overrides, err = s.store.GetEstimateRateOverrides(ctx, scopeID)
	default:
		return nil, apperr.Validation(map[string]string{"scope": "must be client or estimate"})
	}
	if err != nil {
		return nil, apperr.Internal("failed to load rate overrides", err)
	}
	return overrides, nil
}
