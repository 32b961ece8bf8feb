package api

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/mmynk/estimator/internal/calculator"
	"github.com/mmynk/estimator/internal/models"
	"github.com/mmynk/estimator/internal/service"
)

// round2 rounds half away from zero to two places. Amounts are stored at
// full precision and only rounded on the way out.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// optionalRate tells an absent field apart from an explicit null.
type optionalRate struct {
	Set   bool
	Value *float64
}

func (r *optionalRate) UnmarshalJSON(data []byte) error {
	r.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		r.Value = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.Value = &v
	return nil
}

func (r optionalRate) edit() service.RateEdit {
	return service.RateEdit{Set: r.Set, Value: r.Value}
}

// Requests

type multipliersDTO struct {
	SizeSmall        float64 `json:"sizeSmall"`
	SizeMedium       float64 `json:"sizeMedium"`
	SizeLarge        float64 `json:"sizeLarge"`
	ComplexitySmall  float64 `json:"complexitySmall"`
	ComplexityMedium float64 `json:"complexityMedium"`
	ComplexityLarge  float64 `json:"complexityLarge"`
	ConfidenceHigh   float64 `json:"confidenceHigh"`
	ConfidenceMedium float64 `json:"confidenceMedium"`
	ConfidenceLow    float64 `json:"confidenceLow"`
}

func (m multipliersDTO) model() models.MultiplierTable {
	return models.MultiplierTable{
		SizeSmall:        m.SizeSmall,
		SizeMedium:       m.SizeMedium,
		SizeLarge:        m.SizeLarge,
		ComplexitySmall:  m.ComplexitySmall,
		ComplexityMedium: m.ComplexityMedium,
		ComplexityLarge:  m.ComplexityLarge,
		ConfidenceHigh:   m.ConfidenceHigh,
		ConfidenceMedium: m.ConfidenceMedium,
		ConfidenceLow:    m.ConfidenceLow,
	}
}

func fromMultipliers(m models.MultiplierTable) multipliersDTO {
	return multipliersDTO{
		SizeSmall:        m.SizeSmall,
		SizeMedium:       m.SizeMedium,
		SizeLarge:        m.SizeLarge,
		ComplexitySmall:  m.ComplexitySmall,
		ComplexityMedium: m.ComplexityMedium,
		ComplexityLarge:  m.ComplexityLarge,
		ConfidenceHigh:   m.ConfidenceHigh,
		ConfidenceMedium: m.ConfidenceMedium,
		ConfidenceLow:    m.ConfidenceLow,
	}
}

type referralDTO struct {
	Type       models.ReferralType `json:"type"`
	Percent    float64             `json:"percent,omitempty"`
	FlatAmount float64             `json:"flatAmount,omitempty"`
}

func (r referralDTO) model() models.ReferralConfig {
	return models.ReferralConfig{Type: r.Type, Percent: r.Percent, FlatAmount: r.FlatAmount}
}

type createEstimateRequest struct {
	ClientID    string          `json:"clientId"`
	Name        string          `json:"name"`
	Multipliers *multipliersDTO `json:"multipliers"`
	Referral    *referralDTO    `json:"referral"`
}

func (r createEstimateRequest) input() service.EstimateInput {
	in := service.EstimateInput{ClientID: r.ClientID, Name: r.Name}
	if r.Multipliers != nil {
		m := r.Multipliers.model()
		in.Multipliers = &m
	}
	if r.Referral != nil {
		cfg := r.Referral.model()
		in.Referral = &cfg
	}
	return in
}

type statusRequest struct {
	Status models.EstimateStatus `json:"status"`
}

type marginOverrideRequest struct {
	Action              service.MarginAction `json:"action"`
	TargetMarginPercent float64              `json:"targetMarginPercent"`
}

type lineItemRequest struct {
	Epic        string `json:"epic"`
	Stage       string `json:"stage"`
	Workstream  string `json:"workstream"`
	Description string `json:"description"`

	BaseHours float64 `json:"baseHours"`
	Factor    float64 `json:"factor"`

	Size       string `json:"size"`
	Complexity string `json:"complexity"`
	Confidence string `json:"confidence"`

	Rate     *float64 `json:"rate"`
	CostRate *float64 `json:"costRate"`

	AssignedUserID string `json:"assignedUserId"`
	RoleID         string `json:"roleId"`
	ResourceName   string `json:"resourceName"`
}

func (r lineItemRequest) input() service.LineItemInput {
	return service.LineItemInput{
		Epic:           r.Epic,
		Stage:          r.Stage,
		Workstream:     r.Workstream,
		Description:    r.Description,
		BaseHours:      r.BaseHours,
		Factor:         r.Factor,
		Size:           r.Size,
		Complexity:     r.Complexity,
		Confidence:     r.Confidence,
		Rate:           r.Rate,
		CostRate:       r.CostRate,
		AssignedUserID: r.AssignedUserID,
		RoleID:         r.RoleID,
		ResourceName:   r.ResourceName,
	}
}

// lineItemPatchRequest leaves absent fields untouched. A null rate clears a
// manual rate so it is resolved again.
type lineItemPatchRequest struct {
	Epic        *string `json:"epic"`
	Stage       *string `json:"stage"`
	Workstream  *string `json:"workstream"`
	Description *string `json:"description"`

	BaseHours *float64 `json:"baseHours"`
	Factor    *float64 `json:"factor"`

	Size       *string `json:"size"`
	Complexity *string `json:"complexity"`
	Confidence *string `json:"confidence"`

	Rate     optionalRate `json:"rate"`
	CostRate optionalRate `json:"costRate"`

	AssignedUserID *string `json:"assignedUserId"`
	RoleID         *string `json:"roleId"`
	ResourceName   *string `json:"resourceName"`
}

func (r lineItemPatchRequest) patch() service.LineItemPatch {
	return service.LineItemPatch{
		Epic:           r.Epic,
		Stage:          r.Stage,
		Workstream:     r.Workstream,
		Description:    r.Description,
		BaseHours:      r.BaseHours,
		Factor:         r.Factor,
		Size:           r.Size,
		Complexity:     r.Complexity,
		Confidence:     r.Confidence,
		Rate:           r.Rate.edit(),
		CostRate:       r.CostRate.edit(),
		AssignedUserID: r.AssignedUserID,
		RoleID:         r.RoleID,
		ResourceName:   r.ResourceName,
	}
}

type bulkCreateRequest struct {
	Items []lineItemRequest `json:"items"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type roleRequest struct {
	Name             string  `json:"name"`
	DefaultRackRate  float64 `json:"defaultRackRate"`
	DefaultCostRate  float64 `json:"defaultCostRate"`
	IsAlwaysSalaried bool    `json:"isAlwaysSalaried"`
}

type userRequest struct {
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	RoleID             string  `json:"roleId"`
	DefaultBillingRate float64 `json:"defaultBillingRate"`
	DefaultCostRate    float64 `json:"defaultCostRate"`
	IsSalaried         bool    `json:"isSalaried"`
}

type rateOverrideRequest struct {
	Scope         models.OverrideScope   `json:"scope"`
	ScopeID       string                 `json:"scopeId"`
	SubjectType   models.OverrideSubject `json:"subjectType"`
	SubjectID     string                 `json:"subjectId"`
	BillingRate   *float64               `json:"billingRate"`
	CostRate      *float64               `json:"costRate"`
	EffectiveFrom int64                  `json:"effectiveFrom"`
	EffectiveTo   int64                  `json:"effectiveTo"`
}

// Responses

type marginOverrideDTO struct {
	Active              bool    `json:"active"`
	TargetMarginPercent float64 `json:"targetMarginPercent,omitempty"`
}

type estimateResponse struct {
	ID          string                `json:"id"`
	ClientID    string                `json:"clientId,omitempty"`
	Name        string                `json:"name"`
	Status      models.EstimateStatus `json:"status"`
	Multipliers multipliersDTO        `json:"multipliers"`
	Referral    referralDTO           `json:"referral"`

	TotalHours        float64 `json:"totalHours"`
	TotalFees         float64 `json:"totalFees"`
	TotalCost         float64 `json:"totalCost"`
	MarginPercent     float64 `json:"marginPercent"`
	PresentedTotal    float64 `json:"presentedTotal"`
	NetRevenue        float64 `json:"netRevenue"`
	ReferralFeeAmount float64 `json:"referralFeeAmount"`

	MarginOverride marginOverrideDTO `json:"marginOverride"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

func fromEstimate(e *models.Estimate) estimateResponse {
	return estimateResponse{
		ID:          e.ID,
		ClientID:    e.ClientID,
		Name:        e.Name,
		Status:      e.Status,
		Multipliers: fromMultipliers(e.Multipliers),
		Referral: referralDTO{
			Type:       e.Referral.Type,
			Percent:    e.Referral.Percent,
			FlatAmount: round2(e.Referral.FlatAmount),
		},
		TotalHours:        round2(e.TotalHours),
		TotalFees:         round2(e.TotalFees),
		TotalCost:         round2(e.TotalCost),
		MarginPercent:     round2(e.MarginPercent),
		PresentedTotal:    round2(e.PresentedTotal),
		NetRevenue:        round2(e.NetRevenue),
		ReferralFeeAmount: round2(e.ReferralFeeAmount),
		MarginOverride: marginOverrideDTO{
			Active:              e.MarginOverrideActive,
			TargetMarginPercent: e.MarginOverridePercent,
		},
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

type lineItemResponse struct {
	ID          string `json:"id"`
	EstimateID  string `json:"estimateId"`
	Epic        string `json:"epic,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Workstream  string `json:"workstream,omitempty"`
	Description string `json:"description,omitempty"`

	BaseHours  float64 `json:"baseHours"`
	Factor     float64 `json:"factor"`
	Size       string  `json:"size,omitempty"`
	Complexity string  `json:"complexity,omitempty"`
	Confidence string  `json:"confidence,omitempty"`

	Rate           float64           `json:"rate"`
	CostRate       float64           `json:"costRate"`
	RateSource     models.RateSource `json:"rateSource,omitempty"`
	CostRateSource models.RateSource `json:"costRateSource,omitempty"`

	AssignedUserID  string `json:"assignedUserId,omitempty"`
	RoleID          string `json:"roleId,omitempty"`
	ResourceName    string `json:"resourceName,omitempty"`
	EffectiveRoleID string `json:"effectiveRoleId,omitempty"`
	Salaried        bool   `json:"salaried"`

	AdjustedHours           float64 `json:"adjustedHours"`
	TotalAmount             float64 `json:"totalAmount"`
	TotalCost               float64 `json:"totalCost"`
	Margin                  float64 `json:"margin"`
	MarginPercent           float64 `json:"marginPercent"`
	ReferralMarkup          float64 `json:"referralMarkup"`
	TotalAmountWithReferral float64 `json:"totalAmountWithReferral"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

func fromLineItem(li *models.LineItem) lineItemResponse {
	return lineItemResponse{
		ID:                      li.ID,
		EstimateID:              li.EstimateID,
		Epic:                    li.Epic,
		Stage:                   li.Stage,
		Workstream:              li.Workstream,
		Description:             li.Description,
		BaseHours:               li.BaseHours,
		Factor:                  li.Factor,
		Size:                    li.Size,
		Complexity:              li.Complexity,
		Confidence:              li.Confidence,
		Rate:                    round2(li.Rate),
		CostRate:                round2(li.CostRate),
		RateSource:              li.RateSource,
		CostRateSource:          li.CostRateSource,
		AssignedUserID:          li.AssignedUserID,
		RoleID:                  li.RoleID,
		ResourceName:            li.ResourceName,
		EffectiveRoleID:         li.EffectiveRoleID,
		Salaried:                li.Salaried,
		AdjustedHours:           round2(li.AdjustedHours),
		TotalAmount:             round2(li.TotalAmount),
		TotalCost:               round2(li.TotalCost),
		Margin:                  round2(li.Margin),
		MarginPercent:           round2(li.MarginPercent),
		ReferralMarkup:          round2(li.ReferralMarkup),
		TotalAmountWithReferral: round2(li.TotalAmountWithReferral),
		CreatedAt:               li.CreatedAt,
		UpdatedAt:               li.UpdatedAt,
	}
}

func fromLineItems(items []models.LineItem) []lineItemResponse {
	out := make([]lineItemResponse, len(items))
	for i := range items {
		out[i] = fromLineItem(&items[i])
	}
	return out
}

type totalsResponse struct {
	TotalHours    float64 `json:"totalHours"`
	TotalFees     float64 `json:"totalFees"`
	TotalCost     float64 `json:"totalCost"`
	Margin        float64 `json:"margin"`
	MarginPercent float64 `json:"marginPercent"`
}

func fromTotals(t calculator.Totals) totalsResponse {
	return totalsResponse{
		TotalHours:    round2(t.TotalHours),
		TotalFees:     round2(t.TotalFees),
		TotalCost:     round2(t.TotalCost),
		Margin:        round2(t.Margin),
		MarginPercent: round2(t.MarginPercent),
	}
}

type recalculateResponse struct {
	UpdatedCount int            `json:"updatedCount"`
	SkippedCount int            `json:"skippedCount"`
	Totals       totalsResponse `json:"totals"`
}

type contingencyDTO struct {
	Key       string `json:"key,omitempty"`
	ItemCount int    `json:"itemCount"`

	BaseHours        float64 `json:"baseHours"`
	SizeHours        float64 `json:"sizeHours"`
	ComplexityHours  float64 `json:"complexityHours"`
	ConfidenceHours  float64 `json:"confidenceHours"`
	ContingencyHours float64 `json:"contingencyHours"`
	AdjustedHours    float64 `json:"adjustedHours"`

	BaseFees        float64 `json:"baseFees"`
	SizeFees        float64 `json:"sizeFees"`
	ComplexityFees  float64 `json:"complexityFees"`
	ConfidenceFees  float64 `json:"confidenceFees"`
	ContingencyFees float64 `json:"contingencyFees"`
	AdjustedFees    float64 `json:"adjustedFees"`
}

func fromContingency(key string, t calculator.ContingencyTotals) contingencyDTO {
	return contingencyDTO{
		Key:              key,
		ItemCount:        t.ItemCount,
		BaseHours:        round2(t.BaseHours),
		SizeHours:        round2(t.SizeHours),
		ComplexityHours:  round2(t.ComplexityHours),
		ConfidenceHours:  round2(t.ConfidenceHours),
		ContingencyHours: round2(t.ContingencyHours()),
		AdjustedHours:    round2(t.AdjustedHours),
		BaseFees:         round2(t.BaseFees),
		SizeFees:         round2(t.SizeFees),
		ComplexityFees:   round2(t.ComplexityFees),
		ConfidenceFees:   round2(t.ConfidenceFees),
		ContingencyFees:  round2(t.ContingencyFees()),
		AdjustedFees:     round2(t.AdjustedFees),
	}
}

func fromGroups(groups []calculator.InsightGroup) []contingencyDTO {
	out := make([]contingencyDTO, len(groups))
	for i, g := range groups {
		out[i] = fromContingency(g.Key, g.ContingencyTotals)
	}
	return out
}

type insightsResponse struct {
	Totals       contingencyDTO   `json:"totals"`
	ByEpic       []contingencyDTO `json:"byEpic"`
	ByStage      []contingencyDTO `json:"byStage"`
	ByWorkstream []contingencyDTO `json:"byWorkstream"`
	ByRole       []contingencyDTO `json:"byRole"`
}

func fromInsights(ins *calculator.Insights) insightsResponse {
	return insightsResponse{
		Totals:       fromContingency("", ins.Totals),
		ByEpic:       fromGroups(ins.ByEpic),
		ByStage:      fromGroups(ins.ByStage),
		ByWorkstream: fromGroups(ins.ByWorkstream),
		ByRole:       fromGroups(ins.ByRole),
	}
}

type resourceHoursResponse struct {
	ResourceName  string  `json:"resourceName"`
	UserID        string  `json:"userId,omitempty"`
	RoleID        string  `json:"roleId,omitempty"`
	ItemCount     int     `json:"itemCount"`
	BaseHours     float64 `json:"baseHours"`
	AdjustedHours float64 `json:"adjustedHours"`
	TotalAmount   float64 `json:"totalAmount"`
	TotalCost     float64 `json:"totalCost"`
}

func fromResourceHours(rows []calculator.ResourceHours) []resourceHoursResponse {
	out := make([]resourceHoursResponse, len(rows))
	for i, r := range rows {
		out[i] = resourceHoursResponse{
			ResourceName:  r.ResourceName,
			UserID:        r.UserID,
			RoleID:        r.RoleID,
			ItemCount:     r.ItemCount,
			BaseHours:     round2(r.BaseHours),
			AdjustedHours: round2(r.AdjustedHours),
			TotalAmount:   round2(r.TotalAmount),
			TotalCost:     round2(r.TotalCost),
		}
	}
	return out
}

type roleResponse struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	DefaultRackRate  float64 `json:"defaultRackRate"`
	DefaultCostRate  float64 `json:"defaultCostRate"`
	IsAlwaysSalaried bool    `json:"isAlwaysSalaried"`
	CreatedAt        int64   `json:"createdAt"`
}

func fromRole(r *models.Role) roleResponse {
	return roleResponse{
		ID:               r.ID,
		Name:             r.Name,
		DefaultRackRate:  round2(r.DefaultRackRate),
		DefaultCostRate:  round2(r.DefaultCostRate),
		IsAlwaysSalaried: r.IsAlwaysSalaried,
		CreatedAt:        r.CreatedAt,
	}
}

type userResponse struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Email              string  `json:"email,omitempty"`
	RoleID             string  `json:"roleId,omitempty"`
	DefaultBillingRate float64 `json:"defaultBillingRate"`
	DefaultCostRate    float64 `json:"defaultCostRate"`
	IsSalaried         bool    `json:"isSalaried"`
	CreatedAt          int64   `json:"createdAt"`
}

func fromUser(u *models.User) userResponse {
	return userResponse{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		RoleID:             u.RoleID,
		DefaultBillingRate: round2(u.DefaultBillingRate),
		DefaultCostRate:    round2(u.DefaultCostRate),
		IsSalaried:         u.IsSalaried,
		CreatedAt:          u.CreatedAt,
	}
}

type rateOverrideResponse struct {
	ID            string                 `json:"id"`
	Scope         models.OverrideScope   `json:"scope"`
	ScopeID       string                 `json:"scopeId"`
	SubjectType   models.OverrideSubject `json:"subjectType"`
	SubjectID     string                 `json:"subjectId"`
	BillingRate   *float64               `json:"billingRate"`
	CostRate      *float64               `json:"costRate"`
	EffectiveFrom int64                  `json:"effectiveFrom,omitempty"`
	EffectiveTo   int64                  `json:"effectiveTo,omitempty"`
	CreatedAt     int64                  `json:"createdAt"`
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

func fromRateOverride(o *models.RateOverride) rateOverrideResponse {
	return rateOverrideResponse{
		ID:            o.ID,
		Scope:         o.Scope,
		ScopeID:       o.ScopeID,
		SubjectType:   o.SubjectType,
		SubjectID:     o.SubjectID,
		BillingRate:   roundPtr(o.BillingRate),
		CostRate:      roundPtr(o.CostRate),
		EffectiveFrom: o.EffectiveFrom,
		EffectiveTo:   o.EffectiveTo,
		CreatedAt:     o.CreatedAt,
	}
}
