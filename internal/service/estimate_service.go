// Package service orchestrates the estimate pricing engine: it loads state
// through storage.Store, prices line items with the calculator and persists
// the results.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/estimator/internal/apperr"
	"github.com/mmynk/estimator/internal/calculator"
	"github.com/mmynk/estimator/internal/models"
	"github.com/mmynk/estimator/internal/storage"
)

// Recorder receives operation metrics. *metrics.Metrics implements it.
type Recorder interface {
	ObserveOperation(operation, code string, d time.Duration)
	AddItemsRepriced(n int)
	ObserveMarginOverride(action string)
}

// Config tunes an EstimateService. The zero value is usable.
type Config struct {
	// FallbackRoleName names the catch-all role whose cost/billing ratio
	// drives the ratio fallback. Defaults to calculator.DefaultFallbackRoleName.
	FallbackRoleName string

	// Metrics is optional.
	Metrics Recorder

	// Now defaults to time.Now. Rate overrides are evaluated at Now.
	Now func() time.Time
}

// EstimateService prices estimates and their line items.
type EstimateService struct {
	store        storage.Store
	fallbackRole string
	metrics      Recorder
	now          func() time.Time
}

// NewEstimateService creates a new EstimateService with the given storage backend.
func NewEstimateService(store storage.Store, cfg Config) *EstimateService {
	if cfg.FallbackRoleName == "" {
		cfg.FallbackRoleName = calculator.DefaultFallbackRoleName
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EstimateService{
		store:        store,
		fallbackRole: cfg.FallbackRoleName,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
}

// observe logs rejected and failed operations and records metrics. Call it
// deferred with a pointer to the named error result.
func (s *EstimateService) observe(op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	code := apperr.CodeOf(err)

	switch kind := apperr.KindOf(err); {
	case err == nil:
	case kind == apperr.KindInternal || kind == apperr.KindInconsistent:
		slog.Error(op+" failed", "code", code, "error", err)
	default:
		slog.Warn(op+" rejected", "code", code, "error", err)
	}

	if s.metrics != nil {
		s.metrics.ObserveOperation(op, string(code), time.Since(start))
	}
}

// storeErr maps a storage error to an application error.
func storeErr(entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(entity, id, err)
	}
	return apperr.Internal("failed to access "+entity, err)
}

// requireDraft rejects structural changes to estimates that left draft.
func requireDraft(est *models.Estimate) error {
	if est.IsEditable() {
		return nil
	}
	return apperr.Newf(apperr.CodeEstimateNotDraft,
		"estimate %s is %s; only draft estimates can be changed", est.ID, est.Status)
}

func (s *EstimateService) loadEstimate(ctx context.Context, id string) (*models.Estimate, error) {
	est, err := s.store.GetEstimate(ctx, id)
	if err != nil {
		return nil, storeErr("estimate", id, err)
	}
	return est, nil
}

// loadDraft loads an estimate and checks that it is editable.
func (s *EstimateService) loadDraft(ctx context.Context, id string) (*models.Estimate, error) {
	est, err := s.loadEstimate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireDraft(est); err != nil {
		return nil, err
	}
	return est, nil
}

func (s *EstimateService) loadItems(ctx context.Context, estimateID string) ([]models.LineItem, error) {
	items, err := s.store.GetEstimateLineItems(ctx, estimateID)
	if err != nil {
		return nil, apperr.Internal("failed to load line items", err)
	}
	return items, nil
}

// pricingContext gathers roles and the overrides visible to est.
func (s *EstimateService) pricingContext(ctx context.Context, est *models.Estimate) (calculator.PricingContext, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return calculator.PricingContext{}, apperr.Internal("failed to load roles", err)
	}
	estOverrides, err := s.store.GetEstimateRateOverrides(ctx, est.ID)
	if err != nil {
		return calculator.PricingContext{}, apperr.Internal("failed to load estimate rate overrides", err)
	}
	clientOverrides, err := s.store.GetClientRateOverrides(ctx, est.ClientID)
	if err != nil {
		return calculator.PricingContext{}, apperr.Internal("failed to load client rate overrides", err)
	}
	return calculator.NewPricingContext(est, roles, estOverrides, clientOverrides, s.fallbackRole, s.now().Unix()), nil
}

// refresh re-runs the referral distributor and the aggregator over the
// estimate's current line items, persists changed markups and the estimate,
// and returns the refreshed items.
func (s *EstimateService) refresh(ctx context.Context, est *models.Estimate) ([]models.LineItem, error) {
	items, err := s.loadItems(ctx, est.ID)
	if err != nil {
		return nil, err
	}

	distributed, res := calculator.DistributeReferral(items, est.Referral)
	for i := range distributed {
		if !markupChanged(items[i], distributed[i]) {
			continue
		}
		if err := s.store.UpdateEstimateLineItem(ctx, &distributed[i]); err != nil {
			return nil, inconsistent("failed to persist referral markup", est.ID, err)
		}
	}

	calculator.ApplyTotals(est, calculator.Aggregate(distributed))
	calculator.ApplyReferral(est, res)
	if err := s.store.UpdateEstimate(ctx, est); err != nil {
		return nil, inconsistent("failed to persist estimate totals", est.ID, err)
	}
	return distributed, nil
}

func markupChanged(before, after models.LineItem) bool {
	return before.ReferralMarkup != after.ReferralMarkup ||
		before.TotalAmountWithReferral != after.TotalAmountWithReferral
}

// inconsistent reports a write that failed after other writes of the same
// operation succeeded. Re-running Recalculate repairs the estimate.
func inconsistent(message, estimateID string, cause error) error {
	e := apperr.Wrap(apperr.CodeInconsistent, message, cause)
	e.Fields = map[string]string{"estimateId": estimateID}
	return e
}

// persistItems writes items one at a time. Nothing is rolled back when a
// write fails partway.
func (s *EstimateService) persistItems(ctx context.Context, estimateID string, items []models.LineItem) error {
	for i := range items {
		if err := s.store.UpdateEstimateLineItem(ctx, &items[i]); err != nil {
			if i == 0 {
				return storeErr("line item", items[i].ID, err)
			}
			return inconsistent("failed to persist line item "+items[i].ID, estimateID, err)
		}
	}
	return nil
}

func findItem(items []models.LineItem, id string) *models.LineItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}
