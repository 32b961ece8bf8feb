package calculator

import (
	"errors"

	"github.com/mmynk/estimator/internal/models"
)

var (
	ErrInvalidMarginTarget = errors.New("target margin percent must be in [0, 100)")
	ErrZeroTotalAmount     = errors.New("estimate total amount must be positive to apply a margin override")
	ErrNoRateSnapshot      = errors.New("no margin override to remove")
)

// MarginOverride is the result of applying a margin override.
type MarginOverride struct {
	Items    []models.LineItem
	Snapshot models.RateSnapshot

	// Multiplier is the factor applied to every original rate.
	Multiplier float64

	// OriginalTotal is the total amount at the snapshotted rates.
	OriginalTotal float64

	// TargetTotal is the total amount that yields the target margin.
	TargetTotal float64
}

// ApplyMarginOverride scales every item's rate so the blended margin hits
// targetPercent.
//
// Rates are always scaled from their original, pre-override values: an item
// found in snapshot uses the snapshotted rate, any other item captures its
// current rate into the returned snapshot. Applying twice is therefore
// relative to the first snapshot, never to the previously applied rates.
// Snapshot entries for items no longer present are dropped.
func ApplyMarginOverride(items []models.LineItem, snapshot models.RateSnapshot, targetPercent float64) (MarginOverride, error) {
	if targetPercent < 0 || targetPercent >= 100 {
		return MarginOverride{}, ErrInvalidMarginTarget
	}

	next := make(models.RateSnapshot, len(items))
	var originalTotal, totalCost float64
	for _, item := range items {
		original, ok := snapshot[item.ID]
		if !ok {
			original = item.Rate
		}
		next[item.ID] = original
		originalTotal += item.AdjustedHours * original
		if !item.Salaried {
			totalCost += item.TotalCost
		}
	}
	if originalTotal <= 0 {
		return MarginOverride{}, ErrZeroTotalAmount
	}

	targetTotal := totalCost / (1 - targetPercent/100)
	multiplier := targetTotal / originalTotal

	out := make([]models.LineItem, len(items))
	for i, item := range items {
		out[i] = repriceAtRate(item, next[item.ID]*multiplier)
	}

	return MarginOverride{
		Items:         out,
		Snapshot:      next,
		Multiplier:    multiplier,
		OriginalTotal: originalTotal,
		TargetTotal:   targetTotal,
	}, nil
}

// RemoveMarginOverride restores every snapshotted rate. Items without a
// snapshot entry keep their current rate.
func RemoveMarginOverride(items []models.LineItem, snapshot models.RateSnapshot) ([]models.LineItem, error) {
	if snapshot == nil {
		return nil, ErrNoRateSnapshot
	}
	return RestoreRates(items, snapshot), nil
}

// RestoreRates sets each item found in snapshot back to its snapshotted rate.
func RestoreRates(items []models.LineItem, snapshot models.RateSnapshot) []models.LineItem {
	out := make([]models.LineItem, len(items))
	for i, item := range items {
		if original, ok := snapshot[item.ID]; ok {
			item = repriceAtRate(item, original)
		}
		out[i] = item
	}
	return out
}

// repriceAtRate sets a new billing rate and recomputes amount and margin.
// Hours and cost are unchanged.
func repriceAtRate(item models.LineItem, rate float64) models.LineItem {
	item.Rate = rate
	item.TotalAmount = item.AdjustedHours * rate
	finalizeMargin(&item)
	return item
}
