package calculator

import (
	"errors"
	"testing"

	"github.com/mmynk/estimator/internal/models"
)

// marginFixture returns items totalling 1000 in fees and 600 in cost (40%).
func marginFixture() []models.LineItem {
	items := []models.LineItem{
		{ID: "a", BaseHours: 4, Rate: 100, CostRate: 75},
		{ID: "b", BaseHours: 3, Rate: 200, CostRate: 100},
	}
	return PriceLineItems(models.DefaultMultipliers(), items)
}

func TestMarginFixture(t *testing.T) {
	totals := Aggregate(marginFixture())
	if totals.TotalFees != 1000 || totals.TotalCost != 600 {
		t.Fatalf("unexpected fixture totals: %+v", totals)
	}
}

func TestApplyMarginOverride_Scenarios(t *testing.T) {
	items := []models.LineItem{
		{ID: "a", AdjustedHours: 10, Rate: 60, TotalAmount: 600, TotalCost: 400},
		{ID: "b", AdjustedHours: 5, Rate: 80, TotalAmount: 400, TotalCost: 300},
	}

	t.Run("target equal to current margin changes nothing", func(t *testing.T) {
		res, err := ApplyMarginOverride(items, nil, 30)
		if err != nil {
			t.Fatalf("ApplyMarginOverride: %v", err)
		}
		if !approxEqual(res.Multiplier, 1) {
			t.Errorf("Multiplier = %v, want 1", res.Multiplier)
		}
		for i, item := range res.Items {
			if !approxEqual(item.Rate, items[i].Rate) {
				t.Errorf("item %s rate = %v, want %v", item.ID, item.Rate, items[i].Rate)
			}
		}
	})

	t.Run("lower target scales every rate", func(t *testing.T) {
		res, err := ApplyMarginOverride(items, nil, 20)
		if err != nil {
			t.Fatalf("ApplyMarginOverride: %v", err)
		}
		if !approxEqual(res.TargetTotal, 875) {
			t.Errorf("TargetTotal = %v, want 875", res.TargetTotal)
		}
		if !approxEqual(res.Multiplier, 0.875) {
			t.Errorf("Multiplier = %v, want 0.875", res.Multiplier)
		}
		if !approxEqual(res.Items[0].Rate, 52.5) || !approxEqual(res.Items[1].Rate, 70) {
			t.Errorf("rates = %v, %v, want 52.5, 70", res.Items[0].Rate, res.Items[1].Rate)
		}
		totals := Aggregate(res.Items)
		if !approxEqual(totals.MarginPercent, 20) {
			t.Errorf("blended margin = %v, want 20", totals.MarginPercent)
		}
		if res.Snapshot["a"] != 60 || res.Snapshot["b"] != 80 {
			t.Errorf("snapshot = %v, want original rates", res.Snapshot)
		}

		restored, err := RemoveMarginOverride(res.Items, res.Snapshot)
		if err != nil {
			t.Fatalf("RemoveMarginOverride: %v", err)
		}
		for i, item := range restored {
			if item.Rate != items[i].Rate {
				t.Errorf("item %s restored rate = %v, want %v", item.ID, item.Rate, items[i].Rate)
			}
			if !approxEqual(item.TotalAmount, items[i].TotalAmount) {
				t.Errorf("item %s restored amount = %v, want %v", item.ID, item.TotalAmount, items[i].TotalAmount)
			}
		}
	})
}

func TestApplyMarginOverride_RoundTrip(t *testing.T) {
	items := marginFixture()

	for _, target := range []float64{0, 5, 12.5, 40, 66.6, 99} {
		res, err := ApplyMarginOverride(items, nil, target)
		if err != nil {
			t.Fatalf("target %v: %v", target, err)
		}
		restored, err := RemoveMarginOverride(res.Items, res.Snapshot)
		if err != nil {
			t.Fatalf("target %v: remove: %v", target, err)
		}
		for i := range items {
			if restored[i].Rate != items[i].Rate {
				t.Errorf("target %v: item %s rate = %v, want exactly %v",
					target, items[i].ID, restored[i].Rate, items[i].Rate)
			}
		}
	}
}

func TestApplyMarginOverride_IdempotentRelativeToFirstSnapshot(t *testing.T) {
	items := marginFixture()

	first, err := ApplyMarginOverride(items, nil, 50)
	if err != nil {
		t.Fatalf("apply 50: %v", err)
	}
	second, err := ApplyMarginOverride(first.Items, first.Snapshot, 20)
	if err != nil {
		t.Fatalf("apply 20: %v", err)
	}
	direct, err := ApplyMarginOverride(items, nil, 20)
	if err != nil {
		t.Fatalf("direct apply 20: %v", err)
	}

	for i := range items {
		if !approxEqual(second.Items[i].Rate, direct.Items[i].Rate) {
			t.Errorf("item %s: chained rate %v != direct rate %v",
				items[i].ID, second.Items[i].Rate, direct.Items[i].Rate)
		}
		if second.Snapshot[items[i].ID] != items[i].Rate {
			t.Errorf("item %s: snapshot drifted to %v", items[i].ID, second.Snapshot[items[i].ID])
		}
	}
	if !approxEqual(Aggregate(second.Items).MarginPercent, 20) {
		t.Errorf("blended margin = %v, want 20", Aggregate(second.Items).MarginPercent)
	}
}

func TestApplyMarginOverride_SnapshotMaintenance(t *testing.T) {
	items := marginFixture()
	first, err := ApplyMarginOverride(items, nil, 40)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Item b deleted, item c added after the first apply.
	added, _ := PriceLineItem(models.DefaultMultipliers(), models.LineItem{ID: "c", BaseHours: 2, Rate: 150, CostRate: 90})
	next := []models.LineItem{first.Items[0], added}

	second, err := ApplyMarginOverride(next, first.Snapshot, 40)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if _, ok := second.Snapshot["b"]; ok {
		t.Error("expected deleted item to be pruned from snapshot")
	}
	if second.Snapshot["c"] != 150 {
		t.Errorf("new item snapshot = %v, want its current rate 150", second.Snapshot["c"])
	}
	if second.Snapshot["a"] != items[0].Rate {
		t.Errorf("existing item snapshot = %v, want original %v", second.Snapshot["a"], items[0].Rate)
	}

	// An item added after the last apply keeps its rate on remove.
	late := models.LineItem{ID: "d", AdjustedHours: 1, Rate: 42, TotalAmount: 42}
	restored, err := RemoveMarginOverride(append(second.Items, late), second.Snapshot)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if restored[2].Rate != 42 {
		t.Errorf("unsnapshotted item rate = %v, want 42", restored[2].Rate)
	}
}

func TestApplyMarginOverride_Errors(t *testing.T) {
	items := marginFixture()

	for _, target := range []float64{-1, 100, 150} {
		if _, err := ApplyMarginOverride(items, nil, target); !errors.Is(err, ErrInvalidMarginTarget) {
			t.Errorf("target %v: err = %v, want ErrInvalidMarginTarget", target, err)
		}
	}

	zero := []models.LineItem{{ID: "z", AdjustedHours: 10, Rate: 0, CostRate: 50, TotalCost: 500}}
	if _, err := ApplyMarginOverride(zero, nil, 20); !errors.Is(err, ErrZeroTotalAmount) {
		t.Errorf("zero total: err = %v, want ErrZeroTotalAmount", err)
	}

	if _, err := RemoveMarginOverride(items, nil); !errors.Is(err, ErrNoRateSnapshot) {
		t.Errorf("remove without snapshot: err = %v, want ErrNoRateSnapshot", err)
	}
}

func TestApplyMarginOverride_ExcludesSalariedCost(t *testing.T) {
	items := []models.LineItem{
		{ID: "a", AdjustedHours: 10, Rate: 100, TotalAmount: 1000, TotalCost: 500},
		{ID: "s", AdjustedHours: 10, Rate: 100, TotalAmount: 1000, TotalCost: 0, Salaried: true},
	}
	res, err := ApplyMarginOverride(items, nil, 50)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// cost 500 -> target total 1000 -> multiplier 0.5
	if !approxEqual(res.Multiplier, 0.5) {
		t.Errorf("Multiplier = %v, want 0.5", res.Multiplier)
	}
}
