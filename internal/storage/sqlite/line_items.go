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

const lineItemColumns = `id, estimate_id, epic, stage, workstream, description,
	base_hours, factor, size, complexity, confidence,
	rate, cost_rate, rate_source, cost_rate_source,
	assigned_user_id, role_id, resource_name, effective_role_id, salaried,
	adjusted_hours, total_amount, total_cost, margin, margin_percent,
	referral_markup, total_amount_with_referral,
	created_at, updated_at`

// CreateLineItem inserts a new line item.
func (s *SQLiteStore) CreateLineItem(ctx context.Context, item *models.LineItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().Unix()
	}
	if item.UpdatedAt == 0 {
		item.UpdatedAt = item.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO line_items ("+lineItemColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		item.ID, item.EstimateID, item.Epic, item.Stage, item.Workstream, item.Description,
		item.BaseHours, item.Factor, item.Size, item.Complexity, item.Confidence,
		item.Rate, item.CostRate, string(item.RateSource), string(item.CostRateSource),
		item.AssignedUserID, item.RoleID, item.ResourceName, item.EffectiveRoleID, item.Salaried,
		item.AdjustedHours, item.TotalAmount, item.TotalCost, item.Margin, item.MarginPercent,
		item.ReferralMarkup, item.TotalAmountWithReferral,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert line item: %w", err)
	}
	return nil
}

// GetLineItem retrieves a line item by ID.
func (s *SQLiteStore) GetLineItem(ctx context.Context, id string) (*models.LineItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+lineItemColumns+" FROM line_items WHERE id = ?",
		id,
	)
	item, err := scanLineItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("line item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get line item: %w", err)
	}
	return item, nil
}

// GetEstimateLineItems returns the line items of an estimate in creation order.
func (s *SQLiteStore) GetEstimateLineItems(ctx context.Context, estimateID string) ([]models.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+lineItemColumns+" FROM line_items WHERE estimate_id = ? ORDER BY created_at, rowid",
		estimateID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get line items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate line items: %w", err)
	}
	return items, nil
}

// UpdateEstimateLineItem replaces one line item.
func (s *SQLiteStore) UpdateEstimateLineItem(ctx context.Context, item *models.LineItem) error {
	item.UpdatedAt = time.Now().Unix()

	res, err := s.db.ExecContext(ctx, `
		UPDATE line_items SET
			epic = ?, stage = ?, workstream = ?, description = ?,
			base_hours = ?, factor = ?, size = ?, complexity = ?, confidence = ?,
			rate = ?, cost_rate = ?, rate_source = ?, cost_rate_source = ?,
			assigned_user_id = ?, role_id = ?, resource_name = ?, effective_role_id = ?, salaried = ?,
			adjusted_hours = ?, total_amount = ?, total_cost = ?, margin = ?, margin_percent = ?,
			referral_markup = ?, total_amount_with_referral = ?,
			updated_at = ?
		WHERE id = ?`,
		item.Epic, item.Stage, item.Workstream, item.Description,
		item.BaseHours, item.Factor, item.Size, item.Complexity, item.Confidence,
		item.Rate, item.CostRate, string(item.RateSource), string(item.CostRateSource),
		item.AssignedUserID, item.RoleID, item.ResourceName, item.EffectiveRoleID, item.Salaried,
		item.AdjustedHours, item.TotalAmount, item.TotalCost, item.Margin, item.MarginPercent,
		item.ReferralMarkup, item.TotalAmountWithReferral,
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update line item: %w", err)
	}
	return checkAffected(res, "line item", item.ID)
}

// DeleteLineItem removes a line item.
func (s *SQLiteStore) DeleteLineItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM line_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete line item: %w", err)
	}
	return checkAffected(res, "line item", id)
}

func scanLineItem(row scanner) (*models.LineItem, error) {
	item := &models.LineItem{}
	var rateSource, costRateSource string

	err := row.Scan(
		&item.ID, &item.EstimateID, &item.Epic, &item.Stage, &item.Workstream, &item.Description,
		&item.BaseHours, &item.Factor, &item.Size, &item.Complexity, &item.Confidence,
		&item.Rate, &item.CostRate, &rateSource, &costRateSource,
		&item.AssignedUserID, &item.RoleID, &item.ResourceName, &item.EffectiveRoleID, &item.Salaried,
		&item.AdjustedHours, &item.TotalAmount, &item.TotalCost, &item.Margin, &item.MarginPercent,
		&item.ReferralMarkup, &item.TotalAmountWithReferral,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.RateSource = models.RateSource(rateSource)
	item.CostRateSource = models.RateSource(costRateSource)
	return item, nil
}
