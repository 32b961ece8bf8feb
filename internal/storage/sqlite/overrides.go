package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/estimator/internal/models"
)

const overrideColumns = `id, scope, scope_id, subject_type, subject_id,
	billing_rate, cost_rate, effective_from, effective_to, created_at`

// CreateRateOverride persists a new client- or estimate-scoped override.
func (s *SQLiteStore) CreateRateOverride(ctx context.Context, o *models.RateOverride) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rate_overrides ("+overrideColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		o.ID, string(o.Scope), o.ScopeID, string(o.SubjectType), o.SubjectID,
		nullFloat(o.BillingRate), nullFloat(o.CostRate), o.EffectiveFrom, o.EffectiveTo, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rate override: %w", err)
	}
	return nil
}

// GetRateOverride retrieves an override by ID.
func (s *SQLiteStore) GetRateOverride(ctx context.Context, id string) (*models.RateOverride, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+overrideColumns+" FROM rate_overrides WHERE id = ?",
		id,
	)
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("rate override", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate override: %w", err)
	}
	return o, nil
}

// DeleteRateOverride removes an override.
func (s *SQLiteStore) DeleteRateOverride(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rate_overrides WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete rate override: %w", err)
	}
	return checkAffected(res, "rate override", id)
}

// GetClientRateOverrides returns every override scoped to a client.
func (s *SQLiteStore) GetClientRateOverrides(ctx context.Context, clientID string) ([]models.RateOverride, error) {
	return s.listOverrides(ctx, models.OverrideScopeClient, clientID)
}

// GetEstimateRateOverrides returns every override scoped to an estimate.
func (s *SQLiteStore) GetEstimateRateOverrides(ctx context.Context, estimateID string) ([]models.RateOverride, error) {
	return s.listOverrides(ctx, models.OverrideScopeEstimate, estimateID)
}

func (s *SQLiteStore) listOverrides(ctx context.Context, scope models.OverrideScope, scopeID string) ([]models.RateOverride, error) {
	if scopeID == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+overrideColumns+" FROM rate_overrides WHERE scope = ? AND scope_id = ? ORDER BY created_at, rowid",
		string(scope), scopeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.RateOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate override: %w", err)
		}
		overrides = append(overrides, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rate overrides: %w", err)
	}
	return overrides, nil
}

func scanOverride(row scanner) (*models.RateOverride, error) {
	o := &models.RateOverride{}
	var scope, subjectType string
	var billing, cost sql.NullFloat64

	err := row.Scan(
		&o.ID, &scope, &o.ScopeID, &subjectType, &o.SubjectID,
		&billing, &cost, &o.EffectiveFrom, &o.EffectiveTo, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Scope = models.OverrideScope(scope)
	o.SubjectType = models.OverrideSubject(subjectType)
	if billing.Valid {
		o.BillingRate = &billing.Float64
	}
	if cost.Valid {
		o.CostRate = &cost.Float64
	}
	return o, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
