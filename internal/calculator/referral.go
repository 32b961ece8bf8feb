package calculator

import "github.com/mmynk/estimator/internal/models"

// ReferralResult is the estimate-level outcome of referral distribution.
type ReferralResult struct {
	// Profit is total amount minus the cost of non-salaried items.
	Profit float64

	FeeAmount float64

	// TotalPositiveMargin is the sum of max(margin, 0) over all items.
	TotalPositiveMargin float64

	// EqualSplit is true when the fee was spread equally because no item
	// had a positive margin.
	EqualSplit bool

	// PresentedTotal is what the client is quoted: amounts plus markups.
	PresentedTotal float64

	// NetRevenue always equals Profit; the referral fee is a pass-through.
	NetRevenue float64
}

// ReferralProfit returns total amount minus the cost of items whose
// effective resource is not salaried.
func ReferralProfit(items []models.LineItem) float64 {
	var amount, cost float64
	for _, item := range items {
		amount += item.TotalAmount
		if !item.Salaried {
			cost += item.TotalCost
		}
	}
	return amount - cost
}

// ReferralFee computes the fee owed for a profit under cfg. Percentage mode
// owes nothing unless profit is positive; flat mode always owes the flat
// amount.
func ReferralFee(cfg models.ReferralConfig, profit float64) float64 {
	switch cfg.Type {
	case models.ReferralTypePercentage:
		if profit <= 0 {
			return 0
		}
		return profit * cfg.Percent / 100
	case models.ReferralTypeFlat:
		return cfg.FlatAmount
	default:
		return 0
	}
}

// DistributeReferral computes the referral fee and spreads it over items in
// proportion to each item's positive margin. Items with a non-positive
// margin get no markup. When no item has a positive margin and a fee is
// owed, the fee is split equally across every item regardless of margin.
//
// It returns the items with ReferralMarkup and TotalAmountWithReferral set.
func DistributeReferral(items []models.LineItem, cfg models.ReferralConfig) ([]models.LineItem, ReferralResult) {
	res := ReferralResult{Profit: ReferralProfit(items)}
	res.NetRevenue = res.Profit
	res.FeeAmount = ReferralFee(cfg, res.Profit)

	for _, item := range items {
		if item.Margin > 0 {
			res.TotalPositiveMargin += item.Margin
		}
	}
	res.EqualSplit = res.TotalPositiveMargin <= 0 && res.FeeAmount != 0 && len(items) > 0

	out := make([]models.LineItem, len(items))
	var totalAmount, totalMarkup float64
	for i, item := range items {
		var weight float64
		switch {
		case res.TotalPositiveMargin > 0:
			if item.Margin > 0 {
				weight = item.Margin / res.TotalPositiveMargin
			}
		case res.EqualSplit:
			weight = 1 / float64(len(items))
		}

		item.ReferralMarkup = res.FeeAmount * weight
		item.TotalAmountWithReferral = item.TotalAmount + item.ReferralMarkup
		out[i] = item

		totalAmount += item.TotalAmount
		totalMarkup += item.ReferralMarkup
	}
	res.PresentedTotal = totalAmount + totalMarkup
	return out, res
}

// ApplyReferral copies the referral outcome onto the estimate.
func ApplyReferral(est *models.Estimate, res ReferralResult) {
	est.ReferralFeeAmount = res.FeeAmount
	est.PresentedTotal = res.PresentedTotal
	est.NetRevenue = res.NetRevenue
}
