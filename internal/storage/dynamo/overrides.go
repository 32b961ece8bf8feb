package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"

	"github.com/mmynk/estimator/internal/models"
)

// CreateRateOverride persists a new override.
func (s *Store) CreateRateOverride(ctx context.Context, o *models.RateOverride) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = s.now().Unix()
	}
	if err := s.put(ctx, overridesTable, toOverrideRecord(o), false); err != nil {
		return fmt.Errorf("create rate override: %w", err)
	}
	return nil
}

// GetRateOverride retrieves an override by ID.
func (s *Store) GetRateOverride(ctx context.Context, id string) (*models.RateOverride, error) {
	var rec overrideRecord
	found, err := s.get(ctx, overridesTable, id, &rec)
	if err != nil {
		return nil, fmt.Errorf("get rate override: %w", err)
	}
	if !found {
		return nil, notFound("rate override", id)
	}
	o := fromOverrideRecord(rec)
	return &o, nil
}

// DeleteRateOverride removes an override.
func (s *Store) DeleteRateOverride(ctx context.Context, id string) error {
	return s.delete(ctx, overridesTable, "rate override", id)
}

// GetClientRateOverrides returns every override scoped to a client.
func (s *Store) GetClientRateOverrides(ctx context.Context, clientID string) ([]models.RateOverride, error) {
	return s.listOverrides(ctx, models.OverrideScopeClient, clientID)
}

// GetEstimateRateOverrides returns every override scoped to an estimate.
func (s *Store) GetEstimateRateOverrides(ctx context.Context, estimateID string) ([]models.RateOverride, error) {
	return s.listOverrides(ctx, models.OverrideScopeEstimate, estimateID)
}

func (s *Store) listOverrides(ctx context.Context, scope models.OverrideScope, scopeID string) ([]models.RateOverride, error) {
	if scopeID == "" {
		return nil, nil
	}

	raw, err := s.queryIndex(ctx, overridesTable, overridesScopeIndex, "scope_key", scopeKey(scope, scopeID))
	if err != nil {
		return nil, fmt.Errorf("query rate overrides: %w", err)
	}

	var overrides []models.RateOverride
	for _, av := range raw {
		var rec overrideRecord
		if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal rate override: %w", err)
		}
		overrides = append(overrides, fromOverrideRecord(rec))
	}
	sort.SliceStable(overrides, func(i, j int) bool { return overrides[i].CreatedAt < overrides[j].CreatedAt })
	return overrides, nil
}
