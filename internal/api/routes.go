package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/estimator/internal/auth"
	"github.com/mmynk/estimator/internal/metrics"
	"github.com/mmynk/estimator/internal/middleware"
	"github.com/mmynk/estimator/internal/service"
)

const (
	PathEstimates     = "/estimates"
	PathLineItems     = "/line-items"
	PathRateOverrides = "/rate-overrides"
	PathRoles         = "/roles"
	PathUsers         = "/users"
)

// RouterConfig holds the dependencies of the HTTP router.
type RouterConfig struct {
	Service *service.EstimateService
	JWT     *auth.JWTManager
	Gate    *auth.Gate

	// Metrics serves /metrics and records requests. Nil disables both.
	Metrics *metrics.Metrics

	AllowedOrigin string
}

// NewRouter builds the gin engine. Everything under /v1 requires a bearer
// token and a role granted the route's action.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gate := cfg.Gate
	if gate == nil {
		gate = auth.NewGate()
	}
	var rec middleware.RequestRecorder
	if cfg.Metrics != nil {
		rec = cfg.Metrics
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logging(rec), middleware.CORS(cfg.AllowedOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	h := NewHandler(cfg.Service)
	view := middleware.RequireAction(gate, auth.ActionView)
	edit := middleware.RequireAction(gate, auth.ActionEdit)
	price := middleware.RequireAction(gate, auth.ActionPrice)
	manage := middleware.RequireAction(gate, auth.ActionManage)

	v1 := r.Group("/v1", middleware.RequireAuth(cfg.JWT))

	estimates := v1.Group(PathEstimates)
	{
		estimates.POST("", edit, h.CreateEstimate)
		estimates.GET("/:id", view, h.GetEstimate)
		estimates.PUT("/:id/status", edit, h.UpdateStatus)
		estimates.PUT("/:id/multipliers", edit, h.UpdateMultipliers)
		estimates.PUT("/:id/referral", price, h.UpdateReferral)
		estimates.POST("/:id/recalculate", price, h.Recalculate)
		estimates.POST("/:id/margin-override", price, h.MarginOverride)
		estimates.GET("/:id/insights", view, h.ContingencyInsights)
		estimates.GET("/:id/resources", view, h.ResourceSummary)

		estimates.GET("/:id/line-items", view, h.ListLineItems)
		estimates.POST("/:id/line-items", edit, h.CreateLineItem)
		estimates.POST("/:id/line-items/bulk", edit, h.BulkCreateLineItems)
		estimates.POST("/:id/line-items/bulk-delete", edit, h.BulkDeleteLineItems)
	}

	lineItems := v1.Group(PathLineItems)
	{
		lineItems.PATCH("/:id", edit, h.UpdateLineItem)
		lineItems.DELETE("/:id", edit, h.DeleteLineItem)
	}

	overrides := v1.Group(PathRateOverrides)
	{
		overrides.GET("", view, h.ListRateOverrides)
		overrides.POST("", price, h.CreateRateOverride)
		overrides.DELETE("/:id", price, h.DeleteRateOverride)
	}

	v1.GET(PathRoles, view, h.ListRoles)
	v1.POST(PathRoles, manage, h.CreateRole)
	v1.POST(PathUsers, manage, h.CreateUser)

	return r
}
