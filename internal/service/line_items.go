package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/estimator/internal/apperr"
	"github.com/mmynk/estimator/internal/calculator"
	"github.com/mmynk/estimator/internal/models"
	"github.com/mmynk/estimator/internal/storage"
)

// LineItemInput describes a new line item. A non-nil Rate or CostRate is a
// manual value and is never replaced by rate resolution.
type LineItemInput struct {
	Epic        string
	Stage       string
	Workstream  string
	Description string

	BaseHours float64
	Factor    float64 // zero means 1

	Size       string
	Complexity string
	Confidence string

	Rate     *float64
	CostRate *float64

	AssignedUserID string
	RoleID         string
	ResourceName   string
}

func (in LineItemInput) validate() violations {
	v := violations{}
	v.nonNegative("baseHours", in.BaseHours)
	v.nonNegative("factor", in.Factor)
	v.nonNegativePtr("rate", in.Rate)
	v.nonNegativePtr("costRate", in.CostRate)
	return v
}

func newLineItem(estimateID string, in LineItemInput) models.LineItem {
	item := models.LineItem{
		EstimateID:     estimateID,
		Epic:           strings.TrimSpace(in.Epic),
		Stage:          strings.TrimSpace(in.Stage),
		Workstream:     strings.TrimSpace(in.Workstream),
		Description:    in.Description,
		BaseHours:      in.BaseHours,
		Factor:         in.Factor,
		Size:           in.Size,
		Complexity:     in.Complexity,
		Confidence:     in.Confidence,
		AssignedUserID: strings.TrimSpace(in.AssignedUserID),
		RoleID:         strings.TrimSpace(in.RoleID),
		ResourceName:   strings.TrimSpace(in.ResourceName),
	}
	if item.Factor == 0 {
		item.Factor = 1
	}
	if in.Rate != nil {
		item.Rate, item.RateSource = *in.Rate, models.RateSourceManual
	}
	if in.CostRate != nil {
		item.CostRate, item.CostRateSource = *in.CostRate, models.RateSourceManual
	}
	return item
}

// RateEdit is a tri-state rate change: untouched when Set is false, cleared
// back to resolution when Value is nil, otherwise a manual value.
type RateEdit struct {
	Set   bool
	Value *float64
}

// LineItemPatch is a partial line item update. Nil fields are left alone.
type LineItemPatch struct {
	Epic        *string
	Stage       *string
	Workstream  *string
	Description *string

	BaseHours *float64
	Factor    *float64

	Size       *string
	Complexity *string
	Confidence *string

	Rate     RateEdit
	CostRate RateEdit

	AssignedUserID *string
	RoleID         *string
	ResourceName   *string
}

func (p LineItemPatch) validate() violations {
	v := violations{}
	v.nonNegativePtr("baseHours", p.BaseHours)
	v.nonNegativePtr("factor", p.Factor)
	v.nonNegativePtr("rate", p.Rate.Value)
	v.nonNegativePtr("costRate", p.CostRate.Value)
	return v
}

// apply copies the patch onto item. It reports whether the resource binding
// changed and whether a rate was edited; either means the item's rates must
// be resolved again.
func (p LineItemPatch) apply(item *models.LineItem) (rebound, rateEdited bool) {
	setTrimmed(&item.Epic, p.Epic)
	setTrimmed(&item.Stage, p.Stage)
	setTrimmed(&item.Workstream, p.Workstream)
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.BaseHours != nil {
		item.BaseHours = *p.BaseHours
	}
	if p.Factor != nil {
		item.Factor = *p.Factor
		if item.Factor == 0 {
			item.Factor = 1
		}
	}
	if p.Size != nil {
		item.Size = *p.Size
	}
	if p.Complexity != nil {
		item.Complexity = *p.Complexity
	}
	if p.Confidence != nil {
		item.Confidence = *p.Confidence
	}

	rebound = changed(item.AssignedUserID, p.AssignedUserID) ||
		changed(item.RoleID, p.RoleID) ||
		changed(item.ResourceName, p.ResourceName)
	if rebound {
		setTrimmed(&item.AssignedUserID, p.AssignedUserID)
		setTrimmed(&item.ResourceName, p.ResourceName)
		// A role derived from the old binding must not survive it.
		item.RoleID = ""
		setTrimmed(&item.RoleID, p.RoleID)

		item.Rate, item.RateSource = 0, models.RateSourceNone
		item.CostRate, item.CostRateSource = 0, models.RateSourceNone
	}

	if applyRateEdit(&item.Rate, &item.RateSource, p.Rate) {
		rateEdited = true
	}
	if applyRateEdit(&item.CostRate, &item.CostRateSource, p.CostRate) {
		rateEdited = true
	}
	return rebound, rateEdited
}

func applyRateEdit(rate *float64, source *models.RateSource, edit RateEdit) bool {
	if !edit.Set {
		return false
	}
	if edit.Value == nil {
		*rate, *source = 0, models.RateSourceNone
	} else {
		*rate, *source = *edit.Value, models.RateSourceManual
	}
	return true
}

func changed(current string, next *string) bool {
	return next != nil && strings.TrimSpace(*next) != current
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// resolver resolves line item rates against one pricing context, caching
// the users it loads.
type resolver struct {
	store  storage.Store
	pc     calculator.PricingContext
	people map[string]*models.User
}

func (s *EstimateService) newResolver(pc calculator.PricingContext) *resolver {
	return &resolver{store: s.store, pc: pc, people: map[string]*models.User{}}
}

func (r *resolver) person(ctx context.Context, id string) (*models.User, error) {
	if p, ok := r.people[id]; ok {
		return p, nil
	}
	p, err := r.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Validation(map[string]string{"assignedUserId": "unknown user"})
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	r.people[id] = p
	return p, nil
}

// resolve fills item's non-manual rates, resource name, role and salaried
// flag from the rate hierarchy.
func (r *resolver) resolve(ctx context.Context, item *models.LineItem) error {
	in := calculator.RateInput{
		AssignedUserID: item.AssignedUserID,
		RoleID:         item.RoleID,
		ResourceName:   item.ResourceName,
	}
	// Only manual values are inputs; everything else is derived again.
	if item.RateSource == models.RateSourceManual {
		in.Rate, in.RateSource = item.Rate, models.RateSourceManual
	}
	if item.CostRateSource == models.RateSourceManual {
		in.CostRate, in.CostRateSource = item.CostRate, models.RateSourceManual
	}
	if item.RoleID != "" && r.pc.RoleByID(item.RoleID) == nil {
		return apperr.Validation(map[string]string{"roleId": "unknown role"})
	}
	if item.AssignedUserID != "" {
		p, err := r.person(ctx, item.AssignedUserID)
		if err != nil {
			return err
		}
		in.Person = p
	}

	res := calculator.ResolveRates(r.pc, in)
	if item.RateSource != models.RateSourceManual {
		item.Rate, item.RateSource = res.Rate, res.RateSource
	}
	if item.CostRateSource != models.RateSourceManual {
		item.CostRate, item.CostRateSource = res.CostRate, res.CostRateSource
	}
	item.ResourceName = res.ResourceName
	item.EffectiveRoleID = res.RoleID
	item.Salaried = res.Salaried
	if item.AssignedUserID == "" && res.RoleID != "" {
		item.RoleID = res.RoleID
	}
	return nil
}

// ListLineItems returns the line items of an estimate in creation order.
func (s *EstimateService) ListLineItems(ctx context.Context, estimateID string) (items []models.LineItem, err error) {
	defer s.observe("ListLineItems", time.Now(), &err)

	if _, err := s.loadEstimate(ctx, estimateID); err != nil {
		return nil, err
	}
	return s.loadItems(ctx, estimateID)
}

// CreateLineItem resolves, prices and stores a new line item, then refreshes
// the estimate totals and referral markups.
func (s *EstimateService) CreateLineItem(ctx context.Context, estimateID string, in LineItemInput) (created *models.LineItem, err error) {
	defer s.observe("CreateLineItem", time.Now(), &err)
	slog.Info("CreateLineItem request received", "estimate_id", estimateID)

	if err := in.validate().err(); err != nil {
		return nil, err
	}
	est, err := s.loadDraft(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	pc, err := s.pricingContext(ctx, est)
	if err != nil {
		return nil, err
	}

	item := newLineItem(estimateID, in)
	if err := s.newResolver(pc).resolve(ctx, &item); err != nil {
		return nil, err
	}
	item, _ = calculator.PriceLineItem(pc.Multipliers, item)

	if err := s.store.CreateLineItem(ctx, &item); err != nil {
		return nil, apperr.Internal("failed to create line item", err)
	}
	items, err := s.refresh(ctx, est)
	if err != nil {
		return nil, err
	}

	slog.Info("CreateLineItem successful",
		"estimate_id", estimateID,
		"line_item_id", item.ID,
		"rate_source", item.RateSource,
		"cost_rate_source", item.CostRateSource,
	)
	if refreshed := findItem(items, item.ID); refreshed != nil {
		return refreshed, nil
	}
	return &item, nil
}

// UpdateLineItem applies a partial update. Rates are resolved again only
// when the resource binding changes or a rate is edited; other edits reprice
// the item at its current rates.
func (s *EstimateService) UpdateLineItem(ctx context.Context, id string, patch LineItemPatch) (updated *models.LineItem, err error) {
	defer s.observe("UpdateLineItem", time.Now(), &err)
	slog.Info("UpdateLineItem request received", "line_item_id", id)

	if err := patch.validate().err(); err != nil {
		return nil, err
	}
	existing, err := s.store.GetLineItem(ctx, id)
	if err != nil {
		return nil, storeErr("line item", id, err)
	}
	est, err := s.loadDraft(ctx, existing.EstimateID)
	if err != nil {
		return nil, err
	}
	pc, err := s.pricingContext(ctx, est)
	if err != nil {
		return nil, err
	}

	item := *existing
	rebound, rateEdited := patch.apply(&item)
	if rebound || rateEdited {
		if err := s.newResolver(pc).resolve(ctx, &item); err != nil {
			return nil, err
		}
		// The new rate is the item's own basis from now on.
		delete(est.RateSnapshot, item.ID)
	}
	item, _ = calculator.PriceLineItem(pc.Multipliers, item)

	if err := s.store.UpdateEstimateLineItem(ctx, &item); err != nil {
		return nil, storeErr("line item", id, err)
	}
	items, err := s.refresh(ctx, est)
	if err != nil {
		return nil, err
	}

	slog.Info("UpdateLineItem successful",
		"estimate_id", est.ID,
		"line_item_id", id,
		"rebound", rebound,
		"rate_edited", rateEdited,
	)
	if refreshed := findItem(items, id); refreshed != nil {
		return refreshed, nil
	}
	return &item, nil
}

// DeleteLineItem removes a line item and refreshes the estimate.
func (s *EstimateService) DeleteLineItem(ctx context.Context, id string) (err error) {
	defer s.observe("DeleteLineItem", time.Now(), &err)
	slog.Info("DeleteLineItem request received", "line_item_id", id)

	item, err := s.store.GetLineItem(ctx, id)
	if err != nil {
		return storeErr("line item", id, err)
	}
	est, err := s.loadDraft(ctx, item.EstimateID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLineItem(ctx, id); err != nil {
		return storeErr("line item", id, err)
	}
	delete(est.RateSnapshot, id)
	if _, err := s.refresh(ctx, est); err != nil {
		return err
	}

	slog.Info("DeleteLineItem successful", "estimate_id", est.ID, "line_item_id", id)
	return nil
}

// BulkCreateLineItems imports pre-parsed line items. Every input is
// validated and resolved before the first write; the writes themselves
// happen one at a time.
func (s *EstimateService) BulkCreateLineItems(ctx context.Context, estimateID string, inputs []LineItemInput) (created []models.LineItem, err error) {
	defer s.observe("BulkCreateLineItems", time.Now(), &err)
	slog.Info("BulkCreateLineItems request received", "estimate_id", estimateID, "count", len(inputs))

	v := violations{}
	if len(inputs) == 0 {
		v["items"] = "required"
	}
	for i, in := range inputs {
		v.merge(fmt.Sprintf("items[%d]", i), in.validate())
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	est, err := s.loadDraft(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	pc, err := s.pricingContext(ctx, est)
	if err != nil {
		return nil, err
	}

	r := s.newResolver(pc)
	items := make([]models.LineItem, len(inputs))
	for i, in := range inputs {
		item := newLineItem(estimateID, in)
		if err := r.resolve(ctx, &item); err != nil {
			return nil, err
		}
		items[i], _ = calculator.PriceLineItem(pc.Multipliers, item)
	}

	for i := range items {
		if err := s.store.CreateLineItem(ctx, &items[i]); err != nil {
			if i == 0 {
				return nil, apperr.Internal("failed to create line item", err)
			}
			return nil, inconsistent(fmt.Sprintf("created %d of %d line items", i, len(items)), estimateID, err)
		}
	}

	refreshed, err := s.refresh(ctx, est)
	if err != nil {
		return nil, err
	}
	created = make([]models.LineItem, 0, len(items))
	for _, item := range items {
		if p := findItem(refreshed, item.ID); p != nil {
			item = *p
		}
		created = append(created, item)
	}

	slog.Info("BulkCreateLineItems successful", "estimate_id", estimateID, "created", len(created))
	return created, nil
}

// BulkDeleteLineItems removes several line items of one estimate and returns
// how many were deleted.
func (s *EstimateService) BulkDeleteLineItems(ctx context.Context, estimateID string, ids []string) (deleted int, err error) {
	defer s.observe("BulkDeleteLineItems", time.Now(), &err)
	slog.Info("BulkDeleteLineItems request received", "estimate_id", estimateID, "count", len(ids))

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, apperr.Validation(map[string]string{"ids": "required"})
	}
	est, err := s.loadDraft(ctx, estimateID)
	if err != nil {
		return 0, err
	}
	items, err := s.loadItems(ctx, estimateID)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if findItem(items, id) != nil {
			continue
		}
		if _, err := s.store.GetLineItem(ctx, id); err != nil {
			return 0, storeErr("line item", id, err)
		}
		return 0, apperr.Newf(apperr.CodeLineItemEstimateMismatch,
			"line item %s does not belong to estimate %s", id, estimateID)
	}

	for _, id := range ids {
		if err := s.store.DeleteLineItem(ctx, id); err != nil {
			if deleted == 0 {
				return 0, storeErr("line item", id, err)
			}
			return deleted, inconsistent(fmt.Sprintf("deleted %d of %d line items", deleted, len(ids)), estimateID, err)
		}
		delete(est.RateSnapshot, id)
		deleted++
	}

	if _, err := s.refresh(ctx, est); err != nil {
		return deleted, err
	}

	slog.Info("BulkDeleteLineItems successful", "estimate_id", estimateID, "deleted", deleted)
	return deleted, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
