package calculator

import "github.com/mmynk/estimator/internal/models"

// Totals are the estimate-level roll-up of its line items.
type Totals struct {
	TotalHours    float64
	TotalFees     float64
	TotalCost     float64
	Margin        float64
	MarginPercent float64 // Blended: (fees - cost) / fees x 100
}

// Aggregate sums adjusted hours, amounts and costs over items.
func Aggregate(items []models.LineItem) Totals {
	var t Totals
	for _, item := range items {
		t.TotalHours += item.AdjustedHours
		t.TotalFees += item.TotalAmount
		t.TotalCost += item.TotalCost
	}
	t.Margin = t.TotalFees - t.TotalCost
	if t.TotalFees > 0 {
		t.MarginPercent = t.Margin / t.TotalFees * 100
	}
	return t
}

// ApplyTotals copies aggregate totals onto the estimate.
func ApplyTotals(est *models.Estimate, t Totals) {
	est.TotalHours = t.TotalHours
	est.TotalFees = t.TotalFees
	est.TotalCost = t.TotalCost
	est.MarginPercent = t.MarginPercent
}
