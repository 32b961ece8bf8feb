package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/estimator/internal/apperr"
	"github.com/mmynk/estimator/internal/calculator"
	"github.com/mmynk/estimator/internal/models"
)

// RecalculateResult reports a bulk recalculation.
type RecalculateResult struct {
	// UpdatedCount is the number of items whose rates were resolved again.
	UpdatedCount int

	// SkippedCount is the number of items kept at their manual rates.
	SkippedCount int

	Totals calculator.Totals
}

// Recalculate restores any margin override snapshot, clears the override,
// and resolves and reprices every item without a manual rate. Items with a
// manual rate are not written. It is also the repair path after an
// inconsistent bulk write.
func (s *EstimateService) Recalculate(ctx context.Context, estimateID string) (result *RecalculateResult, err error) {
	defer s.observe("Recalculate", time.Now(), &err)
	slog.Info("Recalculate request received", "estimate_id", estimateID)

	est, err := s.loadDraft(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	pc, err := s.pricingContext(ctx, est)
	if err != nil {
		return nil, err
	}

	restored := items
	if est.RateSnapshot != nil {
		restored = calculator.RestoreRates(items, est.RateSnapshot)
	}

	// Manual items are written only when the snapshot gave them back their
	// pre-override rate.
	r := s.newResolver(pc)
	var updated, skipped int
	var changed []models.LineItem
	for i := range restored {
		item := restored[i]
		if item.HasManualRateOverride() {
			skipped++
			if item.Rate == items[i].Rate {
				continue
			}
		} else {
			if err := r.resolve(ctx, &item); err != nil {
				return nil, err
			}
			updated++
		}
		item, _ = calculator.PriceLineItem(pc.Multipliers, item)
		changed = append(changed, item)
	}

	if err := s.persistItems(ctx, estimateID, changed); err != nil {
		return nil, err
	}
	est.ClearMarginOverride()
	refreshed, err := s.refresh(ctx, est)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AddItemsRepriced(updated)
	}
	slog.Info("Recalculate successful",
		"estimate_id", estimateID,
		"updated", updated,
		"skipped", skipped,
	)
	return &RecalculateResult{
		UpdatedCount: updated,
		SkippedCount: skipped,
		Totals:       calculator.Aggregate(refreshed),
	}, nil
}

// MarginAction selects what a margin override request does.
type MarginAction string

const (
	MarginActionApply  MarginAction = "apply"
	MarginActionRemove MarginAction = "remove"
)

// MarginOverrideRequest applies or removes a target blended margin.
type MarginOverrideRequest struct {
	Action MarginAction

	// TargetMarginPercent is used by apply and must be in [0, 100).
	TargetMarginPercent float64
}

// MarginOverride scales every rate of an estimate to hit a target margin, or
// restores the rates captured when the override was first applied.
func (s *EstimateService) MarginOverride(ctx context.Context, estimateID string, req MarginOverrideRequest) (est *models.Estimate, err error) {
	defer s.observe("MarginOverride", time.Now(), &err)
	slog.Info("MarginOverride request received",
		"estimate_id", estimateID,
		"action", req.Action,
		"target_margin_percent", req.TargetMarginPercent,
	)

	if req.Action != MarginActionApply && req.Action != MarginActionRemove {
		return nil, apperr.Validation(map[string]string{"action": "must be apply or remove"})
	}
	est, err = s.loadDraft(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, estimateID)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case MarginActionApply:
		res, err := calculator.ApplyMarginOverride(items, est.RateSnapshot, req.TargetMarginPercent)
		if err != nil {
			return nil, marginErr(err)
		}
		if err := s.persistItems(ctx, estimateID, res.Items); err != nil {
			return nil, err
		}
		est.MarginOverrideActive = true
		est.MarginOverridePercent = req.TargetMarginPercent
		est.RateSnapshot = res.Snapshot
		slog.Debug("Margin override computed",
			"estimate_id", estimateID,
			"multiplier", res.Multiplier,
			"original_total", res.OriginalTotal,
			"target_total", res.TargetTotal,
		)

	case MarginActionRemove:
		restored, err := calculator.RemoveMarginOverride(items, est.RateSnapshot)
		if err != nil {
			return nil, marginErr(err)
		}
		if err := s.persistItems(ctx, estimateID, restored); err != nil {
			return nil, err
		}
		est.ClearMarginOverride()
	}

	if _, err := s.refresh(ctx, est); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveMarginOverride(string(req.Action))
	}

	slog.Info("MarginOverride successful",
		"estimate_id", estimateID,
		"action", req.Action,
		"margin_percent", est.MarginPercent,
	)
	return est, nil
}

func marginErr(err error) error {
	switch {
	case errors.Is(err, calculator.ErrInvalidMarginTarget):
		return apperr.Wrap(apperr.CodeInvalidMarginTarget, "target margin percent must be at least 0 and below 100", err)
	case errors.Is(err, calculator.ErrZeroTotalAmount):
		return apperr.Wrap(apperr.CodeZeroTotalAmount, "estimate has no billable amount to scale", err)
	case errors.Is(err, calculator.ErrNoRateSnapshot):
		return apperr.Wrap(apperr.CodeNoMarginOverride, "estimate has no margin override to remove", err)
	}
	return apperr.Internal("margin override failed", err)
}

func validateMultipliers(m models.MultiplierTable) violations {
	v := violations{}
	for field, val := range m.Values() {
		v.positive(field, val)
	}
	return v
}

// UpdateMultipliers replaces the contingency multipliers of a draft estimate
// and re-derives the hours of every item at their current rates.
func (s *EstimateService) UpdateMultipliers(ctx context.Context, estimateID string, m models.MultiplierTable) (est *models.Estimate, err error) {
	defer s.observe("UpdateMultipliers", time.Now(), &err)
	slog.Info("UpdateMultipliers request received", "estimate_id", estimateID)

	if err := validateMultipliers(m).err(); err != nil {
		return nil, err
	}
	est, err = s.loadDraft(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, estimateID)
	if err != nil {
		return nil, err
	}

	est.Multipliers = m
	if err := s.persistItems(ctx, estimateID, calculator.PriceLineItems(m, items)); err != nil {
		return nil, err
	}
	if _, err := s.refresh(ctx, est); err != nil {
		return nil, err
	}

	slog.Info("UpdateMultipliers successful", "estimate_id", estimateID, "items", len(items))
	return est, nil
}

func validateReferral(cfg models.ReferralConfig) violations {
	v := violations{}
	switch cfg.Type {
	case models.ReferralTypeNone, "":
	case models.ReferralTypePercentage:
		v.inRange("percent", cfg.Percent, 0, 100)
	case models.ReferralTypeFlat:
		v.nonNegative("flatAmount", cfg.FlatAmount)
	default:
		v["type"] = "must be none, percentage or flat"
	}
	return v
}

func normalizeReferral(cfg models.ReferralConfig) models.ReferralConfig {
	if cfg.Type == "" {
		cfg.Type = models.ReferralTypeNone
	}
	return cfg
}

// UpdateReferral replaces the referral configuration of a draft estimate and
// redistributes the fee over its items.
func (s *EstimateService) UpdateReferral(ctx context.Context, estimateID string, cfg models.ReferralConfig) (est *models.Estimate, err error) {
	defer s.observe("UpdateReferral", time.Now(), &err)
	slog.Info("UpdateReferral request received", "estimate_id", estimateID, "type", cfg.Type)

	if err := validateReferral(cfg).err(); err != nil {
		return nil, err
	}
	est, err = s.loadDraft(ctx, estimateID)
	if err != nil {
		return nil, err
	}

	est.Referral = normalizeReferral(cfg)
	if _, err := s.refresh(ctx, est); err != nil {
		return nil, err
	}

	slog.Info("UpdateReferral successful",
		"estimate_id", estimateID,
		"fee", est.ReferralFeeAmount,
		"presented_total", est.PresentedTotal,
	)
	return est, nil
}

// ContingencyInsights breaks an estimate's contingency down by epic, stage,
// workstream and role.
func (s *EstimateService) ContingencyInsights(ctx context.Context, estimateID string) (insights *calculator.Insights, err error) {
	defer s.observe("ContingencyInsights", time.Now(), &err)

	est, err := s.loadEstimate(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	pc, err := s.pricingContext(ctx, est)
	if err != nil {
		return nil, err
	}

	result := calculator.ContingencyInsights(pc, items)
	return &result, nil
}

// ResourceSummary returns the hours booked per resource, optionally narrowed
// to one epic or stage.
func (s *EstimateService) ResourceSummary(ctx context.Context, estimateID string, filter calculator.ResourceFilter) (summary []calculator.ResourceHours, err error) {
	defer s.observe("ResourceSummary", time.Now(), &err)

	if _, err := s.loadEstimate(ctx, estimateID); err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	return calculator.SummarizeResources(items, filter), nil
}
