// Package api exposes the estimate service as a JSON HTTP API on gin.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/estimator/internal/apperr"
	"github.com/mmynk/estimator/internal/calculator"
	"github.com/mmynk/estimator/internal/middleware"
	"github.com/mmynk/estimator/internal/models"
	"github.com/mmynk/estimator/internal/service"
)

// Handler handles HTTP requests for estimates, line items, rate overrides and
// the staffing directory.
type Handler struct {
	svc *service.EstimateService
}

func NewHandler(svc *service.EstimateService) *Handler {
	return &Handler{svc: svc}
}

// bind decodes the JSON body into dst, writing a 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.Abort(c, apperr.Wrap(apperr.CodeValidation, "invalid request body", err))
		return false
	}
	return true
}

// Estimates

func (h *Handler) CreateEstimate(c *gin.Context) {
	var req createEstimateRequest
	if !bind(c, &req) {
		return
	}

	est, err := h.svc.CreateEstimate(c.Request.Context(), req.input())
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, fromEstimate(est))
}

func (h *Handler) GetEstimate(c *gin.Context) {
	est, err := h.svc.GetEstimate(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, fromEstimate(est))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if !bind(c, &req) {
		return
	}

	est, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, fromEstimate(est))
}

func (h *Handler) UpdateMultipliers(c *gin.Context) {
	var req multipliersDTO
	if !bind(c, &req) {
		return
	}

	est, err := h.svc.UpdateMultipliers(c.Request.Context(), c.Param("id"), req.model())
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, fromEstimate(est))
}

func (h *Handler) UpdateReferral(c *gin.Context) {
	var req referralDTO
	if !bind(c, &req) {
		return
	}

	est, err := h.svc.UpdateReferral(c.Request.Context(), c.Param("id"), req.model())
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, fromEstimate(est))
}

// Pricing

func (h *Handler) Recalculate(c *gin.Context) {
	res, err := h.svc.Recalculate(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, recalculateResponse{
		UpdatedCount: res.UpdatedCount,
		SkippedCount: res.SkippedCount,
		Totals:       fromTotals(res.Totals),
	})
}

func (h *Handler) MarginOverride(c *gin.Context) {
	var req marginOverrideRequest
	if !bind(c, &req) {
		return
	}

	est, err := h.svc.MarginOverride(c.Request.Context(), c.Param("id"), service.MarginOverrideRequest{
		Action:              req.Action,
		TargetMarginPercent: req.TargetMarginPercent,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, fromEstimate(est))
}

func (h *Handler) ContingencyInsights(c *gin.Context) {
	ins, err := h.svc.ContingencyInsights(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, fromInsights(ins))
}

// ResourceSummary accepts optional epic and stage query filters.
func (h *Handler) ResourceSummary(c *gin.Context) {
	filter := calculator.ResourceFilter{
		Epic:  c.Query("epic"),
		Stage: c.Query("stage"),
	}

	rows, err := h.svc.ResourceSummary(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resources": fromResourceHours(rows)})
}

// Line items

func (h *Handler) ListLineItems(c *gin.Context) {
	items, err := h.svc.ListLineItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": fromLineItems(items)})
}

func (h *Handler) CreateLineItem(c *gin.Context) {
	var req lineItemRequest
	if !bind(c, &req) {
		return
	}

	item, err := h.svc.CreateLineItem(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, fromLineItem(item))
}

func (h *Handler) UpdateLineItem(c *gin.Context) {
	var req lineItemPatchRequest
	if !bind(c, &req) {
		return
	}

	item, err := h.svc.UpdateLineItem(c.Request.Context(), c.Param("id"), req.patch())
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, fromLineItem(item))
}

func (h *Handler) DeleteLineItem(c *gin.Context) {
	if err := h.svc.DeleteLineItem(c.Request.Context(), c.Param("id")); err != nil {
		middleware.Abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) BulkCreateLineItems(c *gin.Context) {
	var req bulkCreateRequest
	if !bind(c, &req) {
		return
	}

	inputs := make([]service.LineItemInput, len(req.Items))
	for i, item := range req.Items {
		inputs[i] = item.input()
	}

	items, err := h.svc.BulkCreateLineItems(c.Request.Context(), c.Param("id"), inputs)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"items": fromLineItems(items)})
}

func (h *Handler) BulkDeleteLineItems(c *gin.Context) {
	var req bulkDeleteRequest
	if !bind(c, &req) {
		return
	}

	n, err := h.svc.BulkDeleteLineItems(c.Request.Context(), c.Param("id"), req.IDs)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deletedCount": n})
}

// Rate overrides

// ListRateOverrides requires scope and scopeId query parameters.
func (h *Handler) ListRateOverrides(c *gin.Context) {
	scope := models.OverrideScope(c.Query("scope"))
	overrides, err := h.svc.ListRateOverrides(c.Request.Context(), scope, c.Query("scopeId"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	out := make([]rateOverrideResponse, len(overrides))
	for i := range overrides {
		out[i] = fromRateOverride(&overrides[i])
	}
	c.JSON(http.StatusOK, gin.H{"overrides": out})
}

func (h *Handler) CreateRateOverride(c *gin.Context) {
	var req rateOverrideRequest
	if !bind(c, &req) {
		return
	}

	o, err := h.svc.CreateRateOverride(c.Request.Context(), service.RateOverrideInput{
		Scope:         req.Scope,
		ScopeID:       req.ScopeID,
		SubjectType:   req.SubjectType,
		SubjectID:     req.SubjectID,
		BillingRate:   req.BillingRate,
		CostRate:      req.CostRate,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, fromRateOverride(o))
}

func (h *Handler) DeleteRateOverride(c *gin.Context) {
	if err := h.svc.DeleteRateOverride(c.Request.Context(), c.Param("id")); err != nil {
		middleware.Abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Directory

func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.svc.ListRoles(c.Request.Context())
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	out := make([]roleResponse, len(roles))
	for i := range roles {
		out[i] = fromRole(&roles[i])
	}
	c.JSON(http.StatusOK, gin.H{"roles": out})
}

func (h *Handler) CreateRole(c *gin.Context) {
	var req roleRequest
	if !bind(c, &req) {
		return
	}

	role, err := h.svc.CreateRole(c.Request.Context(), service.RoleInput{
		Name:             req.Name,
		DefaultRackRate:  req.DefaultRackRate,
		DefaultCostRate:  req.DefaultCostRate,
		IsAlwaysSalaried: req.IsAlwaysSalaried,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, fromRole(role))
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req userRequest
	if !bind(c, &req) {
		return
	}

	user, err := h.svc.CreateUser(c.Request.Context(), service.UserInput{
		Name:               req.Name,
		Email:              req.Email,
		RoleID:             req.RoleID,
		DefaultBillingRate: req.DefaultBillingRate,
		DefaultCostRate:    req.DefaultCostRate,
		IsSalaried:         req.IsSalaried,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, fromUser(user))
}
