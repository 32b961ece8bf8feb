package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/estimator/internal/apperr"
	"github.com/mmynk/estimator/internal/auth"
	"github.com/mmynk/estimator/internal/metrics"
	"github.com/mmynk/estimator/internal/service"
	"github.com/mmynk/estimator/internal/storage/sqlite"
)

type testServer struct {
	router *gin.Engine
	tokens map[auth.Role]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "estimator.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	svc := service.NewEstimateService(store, service.Config{Metrics: m})

	ts := &testServer{
		router: NewRouter(RouterConfig{Service: svc, JWT: jwtManager, Metrics: m}),
		tokens: map[auth.Role]string{},
	}
	for _, role := range []auth.Role{auth.RoleAdmin, auth.RolePM, auth.RoleEmployee} {
		token, err := jwtManager.Generate("u-"+string(role), string(role)+"@example.com", role)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		ts.tokens[role] = token
	}
	return ts
}

// do sends body as JSON (raw if it is a string) and returns the recorder.
func (ts *testServer) do(t *testing.T, role auth.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token, ok := ts.tokens[role]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder, wantStatus int) T {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("expected %d, got %d: %s", wantStatus, w.Code, w.Body.String())
	}
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestEstimateFlow(t *testing.T) {
	ts := newTestServer(t)

	role := decode[roleResponse](t, ts.do(t, auth.RoleAdmin, http.MethodPost, "/v1/roles", roleRequest{
		Name: "Engineer", DefaultRackRate: 100, DefaultCostRate: 60,
	}), http.StatusCreated)

	est := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates", createEstimateRequest{
		ClientID: "acme", Name: "Website rebuild",
	}), http.StatusCreated)
	if est.Status != "draft" || est.Referral.Type != "none" || est.Multipliers.SizeLarge != 1.10 {
		t.Errorf("new estimate = %+v", est)
	}

	items := decode[map[string][]lineItemResponse](t, ts.do(t, auth.RolePM, http.MethodPost,
		"/v1/estimates/"+est.ID+"/line-items/bulk", bulkCreateRequest{Items: []lineItemRequest{
			{Epic: "Build", BaseHours: 10, RoleID: role.ID},
			{Epic: "Build", BaseHours: 5, RoleID: role.ID},
		}}), http.StatusCreated)["items"]
	if len(items) != 2 {
		t.Fatalf("created %d items, want 2", len(items))
	}
	if items[0].Rate != 100 || items[0].RateSource != "role_default" {
		t.Errorf("item rate = %v (%s), want 100 from role_default", items[0].Rate, items[0].RateSource)
	}

	got := decode[estimateResponse](t, ts.do(t, auth.RoleEmployee, http.MethodGet, "/v1/estimates/"+est.ID, nil), http.StatusOK)
	if got.TotalFees != 1500 || got.TotalCost != 900 || got.MarginPercent != 40 {
		t.Errorf("totals = %v/%v/%v%%, want 1500/900/40%%", got.TotalFees, got.TotalCost, got.MarginPercent)
	}

	t.Run("rate edits", func(t *testing.T) {
		path := "/v1/line-items/" + items[0].ID

		manual := decode[lineItemResponse](t, ts.do(t, auth.RolePM, http.MethodPatch, path, `{"rate": 130}`), http.StatusOK)
		if manual.Rate != 130 || manual.RateSource != "manual" {
			t.Errorf("after set: rate = %v (%s), want 130 manual", manual.Rate, manual.RateSource)
		}

		kept := decode[lineItemResponse](t, ts.do(t, auth.RolePM, http.MethodPatch, path, `{"description": "API work"}`), http.StatusOK)
		if kept.Rate != 130 || kept.RateSource != "manual" || kept.Description != "API work" {
			t.Errorf("absent rate changed the item: %+v", kept)
		}

		cleared := decode[lineItemResponse](t, ts.do(t, auth.RolePM, http.MethodPatch, path, `{"rate": null}`), http.StatusOK)
		if cleared.Rate != 100 || cleared.RateSource != "role_default" {
			t.Errorf("after clear: rate = %v (%s), want 100 role_default", cleared.Rate, cleared.RateSource)
		}
	})

	t.Run("margin override", func(t *testing.T) {
		path := "/v1/estimates/" + est.ID + "/margin-override"

		applied := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPost, path,
			marginOverrideRequest{Action: service.MarginActionApply, TargetMarginPercent: 50}), http.StatusOK)
		if !applied.MarginOverride.Active || applied.TotalFees != 1800 || applied.MarginPercent != 50 {
			t.Errorf("applied = %+v", applied)
		}

		removed := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPost, path,
			marginOverrideRequest{Action: service.MarginActionRemove}), http.StatusOK)
		if removed.MarginOverride.Active || removed.TotalFees != 1500 {
			t.Errorf("removed = %+v", removed)
		}

		w := ts.do(t, auth.RolePM, http.MethodPost, path, marginOverrideRequest{Action: service.MarginActionRemove})
		body := decode[apperr.HTTPError](t, w, http.StatusConflict)
		if body.Code != apperr.CodeNoMarginOverride {
			t.Errorf("code = %s, want %s", body.Code, apperr.CodeNoMarginOverride)
		}
	})

	t.Run("recalculate", func(t *testing.T) {
		res := decode[recalculateResponse](t, ts.do(t, auth.RolePM, http.MethodPost,
			"/v1/estimates/"+est.ID+"/recalculate", nil), http.StatusOK)
		if res.UpdatedCount != 2 || res.SkippedCount != 0 || res.Totals.TotalFees != 1500 {
			t.Errorf("recalculate = %+v", res)
		}
	})

	t.Run("insights and resources", func(t *testing.T) {
		ins := decode[insightsResponse](t, ts.do(t, auth.RoleEmployee, http.MethodGet,
			"/v1/estimates/"+est.ID+"/insights", nil), http.StatusOK)
		if ins.Totals.ItemCount != 2 || ins.Totals.BaseHours != 15 || len(ins.ByEpic) != 1 || ins.ByEpic[0].Key != "Build" {
			t.Errorf("insights = %+v", ins)
		}

		res := decode[map[string][]resourceHoursResponse](t, ts.do(t, auth.RoleEmployee, http.MethodGet,
			"/v1/estimates/"+est.ID+"/resources?epic=build", nil), http.StatusOK)["resources"]
		if len(res) != 1 || res[0].ItemCount != 2 || res[0].AdjustedHours != 15 {
			t.Errorf("resources = %+v", res)
		}
	})

	t.Run("finalize locks edits", func(t *testing.T) {
		final := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPut,
			"/v1/estimates/"+est.ID+"/status", statusRequest{Status: "final"}), http.StatusOK)
		if final.Status != "final" {
			t.Fatalf("status = %s, want final", final.Status)
		}

		w := ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates/"+est.ID+"/line-items", lineItemRequest{BaseHours: 1})
		body := decode[apperr.HTTPError](t, w, http.StatusConflict)
		if body.Code != apperr.CodeEstimateNotDraft {
			t.Errorf("code = %s, want %s", body.Code, apperr.CodeEstimateNotDraft)
		}
	})
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t)

	est := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates", createEstimateRequest{Name: "Audit"}), http.StatusCreated)

	tests := []struct {
		name       string
		role       auth.Role
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   apperr.Code
		wantField  string
	}{
		{"no token", "", http.MethodGet, "/v1/estimates/" + est.ID, nil, http.StatusUnauthorized, apperr.CodeUnauthenticated, ""},
		{"employee cannot edit", auth.RoleEmployee, http.MethodPost, "/v1/estimates", createEstimateRequest{Name: "x"}, http.StatusForbidden, apperr.CodeForbidden, ""},
		{"pm cannot manage", auth.RolePM, http.MethodPost, "/v1/roles", roleRequest{Name: "x"}, http.StatusForbidden, apperr.CodeForbidden, ""},
		{"malformed body", auth.RolePM, http.MethodPost, "/v1/estimates", `{"name":`, http.StatusBadRequest, apperr.CodeValidation, ""},
		{"negative hours", auth.RolePM, http.MethodPost, "/v1/estimates/" + est.ID + "/line-items", lineItemRequest{BaseHours: -1}, http.StatusBadRequest, apperr.CodeValidation, "baseHours"},
		{"missing name", auth.RolePM, http.MethodPost, "/v1/estimates", createEstimateRequest{}, http.StatusBadRequest, apperr.CodeValidation, "name"},
		{"unknown estimate", auth.RoleEmployee, http.MethodGet, "/v1/estimates/nope", nil, http.StatusNotFound, apperr.CodeNotFound, ""},
		{"bad transition", auth.RolePM, http.MethodPut, "/v1/estimates/" + est.ID + "/status", statusRequest{Status: "approved"}, http.StatusConflict, apperr.CodeInvalidStatusTransition, ""},
		{"bad margin target", auth.RolePM, http.MethodPost, "/v1/estimates/" + est.ID + "/margin-override", marginOverrideRequest{Action: service.MarginActionApply, TargetMarginPercent: 100}, http.StatusConflict, apperr.CodeInvalidMarginTarget, ""},
		{"override scope required", auth.RoleEmployee, http.MethodGet, "/v1/rate-overrides", nil, http.StatusBadRequest, apperr.CodeValidation, "scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := decode[apperr.HTTPError](t, ts.do(t, tt.role, tt.method, tt.path, tt.body), tt.wantStatus)
			if body.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
			}
			if tt.wantField != "" {
				if _, ok := body.Fields[tt.wantField]; !ok {
					t.Errorf("fields = %v, want an entry for %s", body.Fields, tt.wantField)
				}
			}
		})
	}
}

func TestDirectoryAndOverrides(t *testing.T) {
	ts := newTestServer(t)

	role := decode[roleResponse](t, ts.do(t, auth.RoleAdmin, http.MethodPost, "/v1/roles", roleRequest{
		Name: "Designer", DefaultRackRate: 120, DefaultCostRate: 70,
	}), http.StatusCreated)
	user := decode[userResponse](t, ts.do(t, auth.RoleAdmin, http.MethodPost, "/v1/users", userRequest{
		Name: "Bob", RoleID: role.ID, IsSalaried: true,
	}), http.StatusCreated)
	if user.RoleID != role.ID || !user.IsSalaried {
		t.Errorf("user = %+v", user)
	}

	roles := decode[map[string][]roleResponse](t, ts.do(t, auth.RoleEmployee, http.MethodGet, "/v1/roles", nil), http.StatusOK)["roles"]
	if len(roles) != 1 || roles[0].Name != "Designer" {
		t.Errorf("roles = %+v", roles)
	}

	est := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates", createEstimateRequest{
		ClientID: "acme", Name: "Brand refresh",
	}), http.StatusCreated)
	item := decode[lineItemResponse](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates/"+est.ID+"/line-items", lineItemRequest{
		BaseHours: 8, AssignedUserID: user.ID,
	}), http.StatusCreated)
	if item.Rate != 120 || !item.Salaried || item.ResourceName != "Bob" || item.RoleID != "" || item.EffectiveRoleID != role.ID {
		t.Errorf("item = %+v", item)
	}

	rate := 140.0
	o := decode[rateOverrideResponse](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/rate-overrides", rateOverrideRequest{
		Scope: "estimate", ScopeID: est.ID, SubjectType: "person", SubjectID: user.ID, BillingRate: &rate,
	}), http.StatusCreated)

	overrides := decode[map[string][]rateOverrideResponse](t, ts.do(t, auth.RoleEmployee, http.MethodGet,
		"/v1/rate-overrides?scope=estimate&scopeId="+est.ID, nil), http.StatusOK)["overrides"]
	if len(overrides) != 1 || overrides[0].ID != o.ID || overrides[0].BillingRate == nil || *overrides[0].BillingRate != 140 {
		t.Errorf("overrides = %+v", overrides)
	}

	res := decode[recalculateResponse](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates/"+est.ID+"/recalculate", nil), http.StatusOK)
	if res.Totals.TotalFees != 8*140 {
		t.Errorf("fees after override = %v, want %v", res.Totals.TotalFees, 8*140)
	}

	if w := ts.do(t, auth.RolePM, http.MethodDelete, "/v1/rate-overrides/"+o.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete override status = %d", w.Code)
	}

	deleted := decode[map[string]int](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates/"+est.ID+"/line-items/bulk-delete",
		bulkDeleteRequest{IDs: []string{item.ID, item.ID}}), http.StatusOK)
	if deleted["deletedCount"] != 1 {
		t.Errorf("deletedCount = %d, want 1", deleted["deletedCount"])
	}
}

func TestReferralAndMultipliers(t *testing.T) {
	ts := newTestServer(t)

	est := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates", createEstimateRequest{Name: "Referral"}), http.StatusCreated)
	decode[lineItemResponse](t, ts.do(t, auth.RolePM, http.MethodPost, "/v1/estimates/"+est.ID+"/line-items", lineItemRequest{
		BaseHours: 10, Rate: ptr(100), CostRate: ptr(50),
	}), http.StatusCreated)

	withFee := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPut, "/v1/estimates/"+est.ID+"/referral",
		referralDTO{Type: "percentage", Percent: 10}), http.StatusOK)
	// 10% of the 500 profit is passed through to the client.
	if withFee.TotalFees != 1000 || withFee.ReferralFeeAmount != 50 || withFee.PresentedTotal != 1050 || withFee.NetRevenue != 500 {
		t.Errorf("referral totals = %+v", withFee)
	}

	m := withFee.Multipliers
	m.SizeSmall = 1.5
	updated := decode[estimateResponse](t, ts.do(t, auth.RolePM, http.MethodPut, "/v1/estimates/"+est.ID+"/multipliers", m), http.StatusOK)
	if updated.TotalHours != 15 || updated.TotalFees != 1500 {
		t.Errorf("after multipliers: hours = %v, fees = %v; want 15/1500", updated.TotalHours, updated.TotalFees)
	}

	m.SizeLarge = 0
	body := decode[apperr.HTTPError](t, ts.do(t, auth.RolePM, http.MethodPut, "/v1/estimates/"+est.ID+"/multipliers", m), http.StatusBadRequest)
	if body.Code != apperr.CodeValidation {
		t.Errorf("code = %s, want %s", body.Code, apperr.CodeValidation)
	}
}

func ptr(v float64) *float64 { return &v }

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "", http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}

	ts.do(t, auth.RoleEmployee, http.MethodGet, "/v1/roles", nil)

	w = ts.do(t, "", http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	out := w.Body.String()
	for _, want := range []string{
		`estimator_http_requests_total{method="GET",route="/v1/roles",status="200"} 1`,
		`estimator_operations_total{code="OK",operation="ListRoles"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/v1/estimates", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}
