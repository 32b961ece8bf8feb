package calculator

import (
	"testing"

	"github.com/mmynk/estimator/internal/models"
)

func itemWithTotals(id string, amount, cost float64) models.LineItem {
	item := models.LineItem{ID: id, TotalAmount: amount, TotalCost: cost}
	finalizeMargin(&item)
	return item
}

func TestDistributeReferral(t *testing.T) {
	tests := []struct {
		name        string
		items       []models.LineItem
		cfg         models.ReferralConfig
		wantFee     float64
		wantMarkups []float64
		wantPresent float64
		wantProfit  float64
		wantEqual   bool
	}{
		{
			name: "flat fee goes to positive-margin items only",
			items: []models.LineItem{
				itemWithTotals("a", 1000, 600),
				itemWithTotals("b", 500, 550),
			},
			cfg:         models.ReferralConfig{Type: models.ReferralTypeFlat, FlatAmount: 100},
			wantFee:     100,
			wantMarkups: []float64{100, 0},
			wantPresent: 1600,
			wantProfit:  350,
		},
		{
			name: "percentage fee proportional to margin",
			items: []models.LineItem{
				itemWithTotals("a", 1000, 700), // margin 300
				itemWithTotals("b", 1000, 900), // margin 100
			},
			cfg:         models.ReferralConfig{Type: models.ReferralTypePercentage, Percent: 10},
			wantFee:     40,
			wantMarkups: []float64{30, 10},
			wantPresent: 2040,
			wantProfit:  400,
		},
		{
			name: "percentage mode owes nothing without profit",
			items: []models.LineItem{
				itemWithTotals("a", 500, 700),
			},
			cfg:         models.ReferralConfig{Type: models.ReferralTypePercentage, Percent: 10},
			wantFee:     0,
			wantMarkups: []float64{0},
			wantPresent: 500,
			wantProfit:  -200,
		},
		{
			name: "flat fee split equally when no item has positive margin",
			items: []models.LineItem{
				itemWithTotals("a", 500, 700),
				itemWithTotals("b", 300, 300),
			},
			cfg:         models.ReferralConfig{Type: models.ReferralTypeFlat, FlatAmount: 90},
			wantFee:     90,
			wantMarkups: []float64{45, 45},
			wantPresent: 890,
			wantProfit:  -200,
			wantEqual:   true,
		},
		{
			name: "no referral",
			items: []models.LineItem{
				itemWithTotals("a", 1000, 600),
			},
			cfg:         models.ReferralConfig{Type: models.ReferralTypeNone, FlatAmount: 100},
			wantFee:     0,
			wantMarkups: []float64{0},
			wantPresent: 1000,
			wantProfit:  400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, res := DistributeReferral(tt.items, tt.cfg)

			if !approxEqual(res.FeeAmount, tt.wantFee) {
				t.Errorf("FeeAmount = %v, want %v", res.FeeAmount, tt.wantFee)
			}
			if !approxEqual(res.PresentedTotal, tt.wantPresent) {
				t.Errorf("PresentedTotal = %v, want %v", res.PresentedTotal, tt.wantPresent)
			}
			if !approxEqual(res.Profit, tt.wantProfit) || res.NetRevenue != res.Profit {
				t.Errorf("Profit = %v NetRevenue = %v, want both %v", res.Profit, res.NetRevenue, tt.wantProfit)
			}
			if res.EqualSplit != tt.wantEqual {
				t.Errorf("EqualSplit = %v, want %v", res.EqualSplit, tt.wantEqual)
			}
			for i, want := range tt.wantMarkups {
				if !approxEqual(out[i].ReferralMarkup, want) {
					t.Errorf("item %s markup = %v, want %v", out[i].ID, out[i].ReferralMarkup, want)
				}
				if !approxEqual(out[i].TotalAmountWithReferral, out[i].TotalAmount+want) {
					t.Errorf("item %s TotalAmountWithReferral = %v", out[i].ID, out[i].TotalAmountWithReferral)
				}
			}
		})
	}
}

func TestDistributeReferral_MarkupsSumToFee(t *testing.T) {
	items := []models.LineItem{
		itemWithTotals("a", 1234.56, 800),
		itemWithTotals("b", 99.99, 10),
		itemWithTotals("c", 5000, 4999.5),
		itemWithTotals("d", 10, 50),
		itemWithTotals("e", 777.77, 123.45),
	}

	for _, pct := range []float64{1, 7.5, 15, 33.3} {
		out, res := DistributeReferral(items, models.ReferralConfig{Type: models.ReferralTypePercentage, Percent: pct})
		var sum float64
		for _, item := range out {
			sum += item.ReferralMarkup
		}
		if !approxEqual(sum, res.FeeAmount) {
			t.Errorf("percent %v: markups sum to %v, fee is %v", pct, sum, res.FeeAmount)
		}
	}
}

func TestDistributeReferral_NetRevenueIndependentOfFee(t *testing.T) {
	items := []models.LineItem{
		itemWithTotals("a", 1000, 600),
		itemWithTotals("b", 2000, 1000),
	}

	_, none := DistributeReferral(items, models.ReferralConfig{Type: models.ReferralTypeNone})
	for _, flat := range []float64{0, 50, 1000, 10000} {
		_, res := DistributeReferral(items, models.ReferralConfig{Type: models.ReferralTypeFlat, FlatAmount: flat})
		if res.NetRevenue != none.NetRevenue {
			t.Errorf("flat %v: NetRevenue = %v, want %v", flat, res.NetRevenue, none.NetRevenue)
		}
	}
}

func TestReferralProfit_ExcludesSalariedCost(t *testing.T) {
	salaried := itemWithTotals("s", 1000, 400)
	salaried.Salaried = true
	items := []models.LineItem{salaried, itemWithTotals("h", 1000, 600)}

	if got := ReferralProfit(items); got != 1400 {
		t.Errorf("profit = %v, want 1400", got)
	}
}

func TestDistributeReferral_DoesNotMutateInput(t *testing.T) {
	items := []models.LineItem{itemWithTotals("a", 1000, 600)}
	DistributeReferral(items, models.ReferralConfig{Type: models.ReferralTypeFlat, FlatAmount: 100})
	if items[0].ReferralMarkup != 0 {
		t.Errorf("input mutated: markup = %v", items[0].ReferralMarkup)
	}
}
