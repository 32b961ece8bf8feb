package calculator

import (
	"testing"

	"github.com/mmynk/estimator/internal/models"
)

func TestAggregate(t *testing.T) {
	items := PriceLineItems(models.DefaultMultipliers(), []models.LineItem{
		{ID: "a", BaseHours: 20, Size: "medium", Complexity: "medium", Rate: 150, CostRate: 90},
		{ID: "b", BaseHours: 10, Rate: 100, CostRate: 50},
	})

	got := Aggregate(items)
	wantHours := 22.05 + 10
	wantFees := 22.05*150 + 1000
	wantCost := 22.05*90 + 500

	if !approxEqual(got.TotalHours, wantHours) {
		t.Errorf("TotalHours = %v, want %v", got.TotalHours, wantHours)
	}
	if !approxEqual(got.TotalFees, wantFees) {
		t.Errorf("TotalFees = %v, want %v", got.TotalFees, wantFees)
	}
	if !approxEqual(got.TotalCost, wantCost) {
		t.Errorf("TotalCost = %v, want %v", got.TotalCost, wantCost)
	}
	wantPct := (wantFees - wantCost) / wantFees * 100
	if !approxEqual(got.MarginPercent, wantPct) {
		t.Errorf("MarginPercent = %v, want %v", got.MarginPercent, wantPct)
	}

	var est models.Estimate
	ApplyTotals(&est, got)
	if est.TotalFees != got.TotalFees || est.MarginPercent != got.MarginPercent {
		t.Errorf("ApplyTotals did not copy totals: %+v", est)
	}
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil)
	if got != (Totals{}) {
		t.Errorf("Aggregate(nil) = %+v, want zero totals", got)
	}
}

func TestContingencyInsights(t *testing.T) {
	roles := []models.Role{{ID: "r-dev", Name: "Developer"}}
	pc := NewPricingContext(&models.Estimate{Multipliers: models.DefaultMultipliers()}, roles, nil, nil, "", 0)

	items := []models.LineItem{
		{ID: "1", Epic: "Checkout", Stage: "Build", RoleID: "r-dev", BaseHours: 20, Size: "medium", Complexity: "medium", Confidence: "low", Rate: 100},
		{ID: "2", Epic: "Checkout", Stage: "Design", ResourceName: "Freelancer", BaseHours: 10, Rate: 100},
		{ID: "3", Stage: "Build", BaseHours: 5, Size: "large", Rate: 100},
	}

	ins := ContingencyInsights(pc, items)

	if ins.Totals.ItemCount != 3 {
		t.Fatalf("ItemCount = %d, want 3", ins.Totals.ItemCount)
	}
	wantAdjusted := 26.46 + 10 + 5.5
	if !approxEqual(ins.Totals.AdjustedHours, wantAdjusted) {
		t.Errorf("AdjustedHours = %v, want %v", ins.Totals.AdjustedHours, wantAdjusted)
	}
	if !approxEqual(ins.Totals.BaseHours+ins.Totals.ContingencyHours(), ins.Totals.AdjustedHours) {
		t.Errorf("hours do not partition: %+v", ins.Totals)
	}
	if !approxEqual(ins.Totals.BaseFees+ins.Totals.ContingencyFees(), ins.Totals.AdjustedFees) {
		t.Errorf("fees do not partition: %+v", ins.Totals)
	}

	wantEpics := []string{"Checkout", UnassignedKey}
	if len(ins.ByEpic) != len(wantEpics) {
		t.Fatalf("ByEpic has %d groups, want %d", len(ins.ByEpic), len(wantEpics))
	}
	for i, key := range wantEpics {
		if ins.ByEpic[i].Key != key {
			t.Errorf("ByEpic[%d] = %q, want %q", i, ins.ByEpic[i].Key, key)
		}
	}
	if ins.ByEpic[0].ItemCount != 2 {
		t.Errorf("Checkout ItemCount = %d, want 2", ins.ByEpic[0].ItemCount)
	}

	roleKeys := map[string]bool{}
	for _, g := range ins.ByRole {
		roleKeys[g.Key] = true
	}
	for _, key := range []string{"Developer", "Freelancer", UnassignedKey} {
		if !roleKeys[key] {
			t.Errorf("ByRole missing group %q", key)
		}
	}

	build := ins.ByStage[0]
	if build.Key != "Build" || !approxEqual(build.SizeHours, 1+0.5) {
		t.Errorf("Build stage size hours = %v (%s), want 1.5", build.SizeHours, build.Key)
	}
}

func TestContingencyInsights_GroupsPeopleByRole(t *testing.T) {
	roles := []models.Role{{ID: "r-dev", Name: "Developer"}, {ID: "r-des", Name: "Designer"}}
	pc := NewPricingContext(&models.Estimate{Multipliers: models.DefaultMultipliers()}, roles, nil, nil, "", 0)

	items := []models.LineItem{
		{ID: "1", AssignedUserID: "u-alice", ResourceName: "Alice", EffectiveRoleID: "r-dev", BaseHours: 5, Rate: 100},
		{ID: "2", RoleID: "r-dev", EffectiveRoleID: "r-dev", ResourceName: "Developer", BaseHours: 10, Rate: 100},
		{ID: "3", RoleID: "r-dev", ResourceName: "Developer", BaseHours: 1, Rate: 100},
		{ID: "4", AssignedUserID: "u-bob", ResourceName: "Bob", EffectiveRoleID: "r-des", BaseHours: 2, Rate: 100},
		{ID: "5", AssignedUserID: "u-eve", ResourceName: "Eve", BaseHours: 3, Rate: 100},
	}

	ins := ContingencyInsights(pc, items)

	want := map[string]int{"Developer": 3, "Designer": 1, "Eve": 1}
	if len(ins.ByRole) != len(want) {
		t.Fatalf("ByRole = %+v, want %d groups", ins.ByRole, len(want))
	}
	for _, g := range ins.ByRole {
		if g.ItemCount != want[g.Key] {
			t.Errorf("group %q has %d items, want %d", g.Key, g.ItemCount, want[g.Key])
		}
	}
}

func TestSummarizeResources(t *testing.T) {
	items := []models.LineItem{
		{ID: "1", Epic: "Checkout", AssignedUserID: "u1", ResourceName: "Ada", BaseHours: 10, AdjustedHours: 12, TotalAmount: 1200},
		{ID: "2", Epic: "checkout ", AssignedUserID: "u1", ResourceName: "Ada", BaseHours: 5, AdjustedHours: 5, TotalAmount: 500},
		{ID: "3", Epic: "Checkout", RoleID: "r-dev", ResourceName: "Developer", BaseHours: 30, AdjustedHours: 33},
		{ID: "4", Epic: "Search", ResourceName: "Contractor", BaseHours: 8, Factor: 2, AdjustedHours: 16},
		{ID: "5", Epic: "Search", BaseHours: 1, AdjustedHours: 1},
	}

	t.Run("all items", func(t *testing.T) {
		got := SummarizeResources(items, ResourceFilter{})
		if len(got) != 4 {
			t.Fatalf("got %d resources, want 4", len(got))
		}
		wantOrder := []string{"Developer", "Ada", "Contractor", UnassignedKey}
		for i, name := range wantOrder {
			if got[i].ResourceName != name {
				t.Errorf("resource[%d] = %q, want %q", i, got[i].ResourceName, name)
			}
		}
		ada := got[1]
		if ada.ItemCount != 2 || ada.AdjustedHours != 17 || ada.TotalAmount != 1700 || ada.UserID != "u1" {
			t.Errorf("unexpected Ada summary: %+v", ada)
		}
		if got[2].BaseHours != 16 {
			t.Errorf("Contractor base hours = %v, want factored 16", got[2].BaseHours)
		}
		if got[0].RoleID != "r-dev" {
			t.Errorf("Developer RoleID = %q, want r-dev", got[0].RoleID)
		}
	})

	t.Run("filtered by epic", func(t *testing.T) {
		got := SummarizeResources(items, ResourceFilter{Epic: "CHECKOUT"})
		if len(got) != 2 {
			t.Fatalf("got %d resources, want 2", len(got))
		}
		if got[0].ResourceName != "Developer" || got[1].AdjustedHours != 17 {
			t.Errorf("unexpected summary: %+v", got)
		}
	})
}
