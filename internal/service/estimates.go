package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/estimator/internal/apperr"
	"github.com/mmynk/estimator/internal/models"
)

// EstimateInput describes a new estimate. Nil multipliers start from
// models.DefaultMultipliers and a nil referral means no referral fee.
type EstimateInput struct {
	ClientID    string
	Name        string
	Multipliers *models.MultiplierTable
	Referral    *models.ReferralConfig
}

// CreateEstimate stores a new draft estimate.
func (s *EstimateService) CreateEstimate(ctx context.Context, in EstimateInput) (est *models.Estimate, err error) {
	defer s.observe("CreateEstimate", time.Now(), &err)
	slog.Info("CreateEstimate request received", "client_id", in.ClientID, "name", in.Name)

	v := violations{}
	v.required("name", in.Name)
	if in.Multipliers != nil {
		v.merge("multipliers", validateMultipliers(*in.Multipliers))
	}
	if in.Referral != nil {
		v.merge("referral", validateReferral(*in.Referral))
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	est = &models.Estimate{
		ClientID:    strings.TrimSpace(in.ClientID),
		Name:        strings.TrimSpace(in.Name),
		Status:      models.EstimateStatusDraft,
		Multipliers: models.DefaultMultipliers(),
		Referral:    models.ReferralConfig{Type: models.ReferralTypeNone},
	}
	if in.Multipliers != nil {
		est.Multipliers = *in.Multipliers
	}
	if in.Referral != nil {
		est.Referral = normalizeReferral(*in.Referral)
	}

	if err := s.store.CreateEstimate(ctx, est); err != nil {
		return nil, apperr.Internal("failed to create estimate", err)
	}

	slog.Info("CreateEstimate successful", "estimate_id", est.ID)
	return est, nil
}

// GetEstimate returns an estimate with its stored totals.
func (s *EstimateService) GetEstimate(ctx context.Context, id string) (est *models.Estimate, err error) {
	defer s.observe("GetEstimate", time.Now(), &err)
	return s.loadEstimate(ctx, id)
}

// UpdateStatus moves an estimate through its lifecycle. Setting the current
// status again is a no-op.
func (s *EstimateService) UpdateStatus(ctx context.Context, id string, status models.EstimateStatus) (est *models.Estimate, err error) {
	defer s.observe("UpdateStatus", time.Now(), &err)
	slog.Info("UpdateStatus request received", "estimate_id", id, "status", status)

	if !status.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "unknown status"})
	}
	est, err = s.loadEstimate(ctx, id)
	if err != nil {
		return nil, err
	}
	if est.Status == status {
		return est, nil
	}
	if !est.Status.CanTransitionTo(status) {
		return nil, apperr.Newf(apperr.CodeInvalidStatusTransition,
			"estimate %s cannot move from %s to %s", id, est.Status, status)
	}

	from := est.Status
	est.Status = status
	if err := s.store.UpdateEstimate(ctx, est); err != nil {
		return nil, storeErr("estimate", id, err)
	}

	slog.Info("UpdateStatus successful", "estimate_id", id, "from", from, "to", status)
	return est, nil
}
