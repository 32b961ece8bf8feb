package calculator

import (
	"sort"
	"strings"

	"github.com/mmynk/estimator/internal/models"
)

// UnassignedKey labels items with no value for a grouping dimension.
const UnassignedKey = "Unassigned"

// ContingencyTotals accumulates cascade hours and fees for a set of items.
type ContingencyTotals struct {
	ItemCount int

	BaseHours       float64
	SizeHours       float64
	ComplexityHours float64
	ConfidenceHours float64
	AdjustedHours   float64

	BaseFees       float64
	SizeFees       float64
	ComplexityFees float64
	ConfidenceFees float64
	AdjustedFees   float64
}

// ContingencyHours is the total contingency hours across all stages.
func (t ContingencyTotals) ContingencyHours() float64 {
	return t.SizeHours + t.ComplexityHours + t.ConfidenceHours
}

// ContingencyFees is the total contingency fees across all stages.
func (t ContingencyTotals) ContingencyFees() float64 {
	return t.SizeFees + t.ComplexityFees + t.ConfidenceFees
}

func (t *ContingencyTotals) add(b Breakdown) {
	t.ItemCount++
	t.BaseHours += b.Hours.Base
	t.SizeHours += b.Hours.Size
	t.ComplexityHours += b.Hours.Complexity
	t.ConfidenceHours += b.Hours.Confidence
	t.AdjustedHours += b.Hours.Adjusted
	t.BaseFees += b.Fees.Base
	t.SizeFees += b.Fees.Size
	t.ComplexityFees += b.Fees.Complexity
	t.ConfidenceFees += b.Fees.Confidence
	t.AdjustedFees += b.Fees.Adjusted
}

// InsightGroup is the contingency roll-up of one group.
type InsightGroup struct {
	Key string
	ContingencyTotals
}

// Insights breaks estimate contingency down by epic, stage, workstream and
// role. Groups are sorted by key.
type Insights struct {
	Totals       ContingencyTotals
	ByEpic       []InsightGroup
	ByStage      []InsightGroup
	ByWorkstream []InsightGroup
	ByRole       []InsightGroup
}

// ContingencyInsights attributes each item's cascade to its epic, stage,
// workstream and role.
func ContingencyInsights(pc PricingContext, items []models.LineItem) Insights {
	var ins Insights
	epics := map[string]*ContingencyTotals{}
	stages := map[string]*ContingencyTotals{}
	workstreams := map[string]*ContingencyTotals{}
	roles := map[string]*ContingencyTotals{}

	for _, item := range items {
		_, b := PriceLineItem(pc.Multipliers, item)
		ins.Totals.add(b)
		accumulate(epics, groupKey(item.Epic), b)
		accumulate(stages, groupKey(item.Stage), b)
		accumulate(workstreams, groupKey(item.Workstream), b)
		accumulate(roles, pc.roleKey(item), b)
	}

	ins.ByEpic = sortedGroups(epics)
	ins.ByStage = sortedGroups(stages)
	ins.ByWorkstream = sortedGroups(workstreams)
	ins.ByRole = sortedGroups(roles)
	return ins
}

// roleKey labels an item by the name of the role that priced it, so people
// and role-bound items of one role share a group. Items with no role fall
// back to the free-text resource name.
func (pc PricingContext) roleKey(item models.LineItem) string {
	for _, id := range []string{item.EffectiveRoleID, item.RoleID} {
		if role := pc.RoleByID(id); role != nil {
			return role.Name
		}
	}
	return groupKey(item.ResourceName)
}

func groupKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnassignedKey
	}
	return s
}

func accumulate(groups map[string]*ContingencyTotals, key string, b Breakdown) {
	t, ok := groups[key]
	if !ok {
		t = &ContingencyTotals{}
		groups[key] = t
	}
	t.add(b)
}

func sortedGroups(groups map[string]*ContingencyTotals) []InsightGroup {
	out := make([]InsightGroup, 0, len(groups))
	for key, t := range groups {
		out = append(out, InsightGroup{Key: key, ContingencyTotals: *t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ResourceFilter narrows a resource summary. Empty fields match everything.
type ResourceFilter struct {
	Epic  string
	Stage string
}

func (f ResourceFilter) matches(item models.LineItem) bool {
	if f.Epic != "" && !strings.EqualFold(strings.TrimSpace(item.Epic), strings.TrimSpace(f.Epic)) {
		return false
	}
	if f.Stage != "" && !strings.EqualFold(strings.TrimSpace(item.Stage), strings.TrimSpace(f.Stage)) {
		return false
	}
	return true
}

// ResourceHours is the workload of one resource in an estimate.
type ResourceHours struct {
	ResourceName string
	UserID       string
	RoleID       string

	ItemCount     int
	BaseHours     float64
	AdjustedHours float64
	TotalAmount   float64
	TotalCost     float64
}

// SummarizeResources groups items by resource (assigned user, else role,
// else free-text name) and sums their hours. The result is sorted by
// adjusted hours, largest first.
func SummarizeResources(items []models.LineItem, filter ResourceFilter) []ResourceHours {
	byKey := map[string]*ResourceHours{}
	var order []string

	for _, item := range items {
		if !filter.matches(item) {
			continue
		}
		key := resourceKey(item)
		r, ok := byKey[key]
		if !ok {
			r = &ResourceHours{
				ResourceName: groupKey(item.ResourceName),
				UserID:       item.AssignedUserID,
			}
			if item.AssignedUserID == "" {
				r.RoleID = item.RoleID
			}
			byKey[key] = r
			order = append(order, key)
		}
		factor := item.Factor
		if factor == 0 {
			factor = 1
		}
		r.ItemCount++
		r.BaseHours += item.BaseHours * factor
		r.AdjustedHours += item.AdjustedHours
		r.TotalAmount += item.TotalAmount
		r.TotalCost += item.TotalCost
	}

	out := make([]ResourceHours, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AdjustedHours != out[j].AdjustedHours {
			return out[i].AdjustedHours > out[j].AdjustedHours
		}
		return out[i].ResourceName < out[j].ResourceName
	})
	return out
}

func resourceKey(item models.LineItem) string {
	switch {
	case item.AssignedUserID != "":
		return "user:" + item.AssignedUserID
	case item.RoleID != "":
		return "role:" + item.RoleID
	case strings.TrimSpace(item.ResourceName) != "":
		return "name:" + strings.ToLower(strings.TrimSpace(item.ResourceName))
	default:
		return "unassigned"
	}
}
