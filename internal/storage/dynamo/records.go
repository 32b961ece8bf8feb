package dynamo

import "github.com/mmynk/estimator/internal/models"

// Table records mirror the models with DynamoDB attribute names.

type estimateRecord struct {
	ID       string `dynamodbav:"id"`
	ClientID string `dynamodbav:"client_id"`
	Name     string `dynamodbav:"name"`
	Status   string `dynamodbav:"status"`

	Multipliers multipliersRecord `dynamodbav:"multipliers"`

	ReferralType       string  `dynamodbav:"referral_type"`
	ReferralPercent    float64 `dynamodbav:"referral_percent"`
	ReferralFlatAmount float64 `dynamodbav:"referral_flat_amount"`

	TotalHours        float64 `dynamodbav:"total_hours"`
	TotalFees         float64 `dynamodbav:"total_fees"`
	TotalCost         float64 `dynamodbav:"total_cost"`
	MarginPercent     float64 `dynamodbav:"margin_percent"`
	PresentedTotal    float64 `dynamodbav:"presented_total"`
	NetRevenue        float64 `dynamodbav:"net_revenue"`
	ReferralFeeAmount float64 `dynamodbav:"referral_fee_amount"`

	MarginOverrideActive  bool    `dynamodbav:"margin_override_active"`
	MarginOverridePercent float64 `dynamodbav:"margin_override_percent"`

	// HasSnapshot distinguishes an empty snapshot from none.
	HasSnapshot  bool               `dynamodbav:"has_snapshot"`
	RateSnapshot map[string]float64 `dynamodbav:"rate_snapshot,omitempty"`

	CreatedAt int64 `dynamodbav:"created_at"`
	UpdatedAt int64 `dynamodbav:"updated_at"`
}

type multipliersRecord struct {
	SizeSmall        float64 `dynamodbav:"size_small"`
	SizeMedium       float64 `dynamodbav:"size_medium"`
	SizeLarge        float64 `dynamodbav:"size_large"`
	ComplexitySmall  float64 `dynamodbav:"complexity_small"`
	ComplexityMedium float64 `dynamodbav:"complexity_medium"`
	ComplexityLarge  float64 `dynamodbav:"complexity_large"`
	ConfidenceHigh   float64 `dynamodbav:"confidence_high"`
	ConfidenceMedium float64 `dynamodbav:"confidence_medium"`
	ConfidenceLow    float64 `dynamodbav:"confidence_low"`
}

func toEstimateRecord(e *models.Estimate) estimateRecord {
	m := e.Multipliers
	return estimateRecord{
		ID:       e.ID,
		ClientID: e.ClientID,
		Name:     e.Name,
		Status:   string(e.Status),
		Multipliers: multipliersRecord{
			SizeSmall:        m.SizeSmall,
			SizeMedium:       m.SizeMedium,
			SizeLarge:        m.SizeLarge,
			ComplexitySmall:  m.ComplexitySmall,
			ComplexityMedium: m.ComplexityMedium,
			ComplexityLarge:  m.ComplexityLarge,
			ConfidenceHigh:   m.ConfidenceHigh,
			ConfidenceMedium: m.ConfidenceMedium,
			ConfidenceLow:    m.ConfidenceLow,
		},
		ReferralType:          string(e.Referral.Type),
		ReferralPercent:       e.Referral.Percent,
		ReferralFlatAmount:    e.Referral.FlatAmount,
		TotalHours:            e.TotalHours,
		TotalFees:             e.TotalFees,
		TotalCost:             e.TotalCost,
		MarginPercent:         e.MarginPercent,
		PresentedTotal:        e.PresentedTotal,
		NetRevenue:            e.NetRevenue,
		ReferralFeeAmount:     e.ReferralFeeAmount,
		MarginOverrideActive:  e.MarginOverrideActive,
		MarginOverridePercent: e.MarginOverridePercent,
		HasSnapshot:           e.RateSnapshot != nil,
		RateSnapshot:          e.RateSnapshot.Clone(),
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

func fromEstimateRecord(r estimateRecord) *models.Estimate {
	m := r.Multipliers
	est := &models.Estimate{
		ID:       r.ID,
		ClientID: r.ClientID,
		Name:     r.Name,
		Status:   models.EstimateStatus(r.Status),
		Multipliers: models.MultiplierTable{
			SizeSmall:        m.SizeSmall,
			SizeMedium:       m.SizeMedium,
			SizeLarge:        m.SizeLarge,
			ComplexitySmall:  m.ComplexitySmall,
			ComplexityMedium: m.ComplexityMedium,
			ComplexityLarge:  m.ComplexityLarge,
			ConfidenceHigh:   m.ConfidenceHigh,
			ConfidenceMedium: m.ConfidenceMedium,
			ConfidenceLow:    m.ConfidenceLow,
		},
		Referral: models.ReferralConfig{
			Type:       models.ReferralType(r.ReferralType),
			Percent:    r.ReferralPercent,
			FlatAmount: r.ReferralFlatAmount,
		},
		TotalHours:            r.TotalHours,
		TotalFees:             r.TotalFees,
		TotalCost:             r.TotalCost,
		MarginPercent:         r.MarginPercent,
		PresentedTotal:        r.PresentedTotal,
		NetRevenue:            r.NetRevenue,
		ReferralFeeAmount:     r.ReferralFeeAmount,
		MarginOverrideActive:  r.MarginOverrideActive,
		MarginOverridePercent: r.MarginOverridePercent,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	if r.HasSnapshot {
		est.RateSnapshot = models.RateSnapshot(r.RateSnapshot).Clone()
		if est.RateSnapshot == nil {
			est.RateSnapshot = models.RateSnapshot{}
		}
	}
	return est
}

type lineItemRecord struct {
	ID         string `dynamodbav:"id"`
	EstimateID string `dynamodbav:"estimate_id"`

	Epic        string `dynamodbav:"epic"`
	Stage       string `dynamodbav:"stage"`
	Workstream  string `dynamodbav:"workstream"`
	Description string `dynamodbav:"description"`

	BaseHours  float64 `dynamodbav:"base_hours"`
	Factor     float64 `dynamodbav:"factor"`
	Size       string  `dynamodbav:"size"`
	Complexity string  `dynamodbav:"complexity"`
	Confidence string  `dynamodbav:"confidence"`

	Rate           float64 `dynamodbav:"rate"`
	CostRate       float64 `dynamodbav:"cost_rate"`
	RateSource     string  `dynamodbav:"rate_source"`
	CostRateSource string  `dynamodbav:"cost_rate_source"`

	AssignedUserID  string `dynamodbav:"assigned_user_id"`
	RoleID          string `dynamodbav:"role_id"`
	ResourceName    string `dynamodbav:"resource_name"`
	EffectiveRoleID string `dynamodbav:"effective_role_id"`
	Salaried        bool   `dynamodbav:"salaried"`

	AdjustedHours           float64 `dynamodbav:"adjusted_hours"`
	TotalAmount             float64 `dynamodbav:"total_amount"`
	TotalCost               float64 `dynamodbav:"total_cost"`
	Margin                  float64 `dynamodbav:"margin"`
	MarginPercent           float64 `dynamodbav:"margin_percent"`
	ReferralMarkup          float64 `dynamodbav:"referral_markup"`
	TotalAmountWithReferral float64 `dynamodbav:"total_amount_with_referral"`

	CreatedAt int64 `dynamodbav:"created_at"`
	UpdatedAt int64 `dynamodbav:"updated_at"`

	// Seq orders items created within the same second.
	Seq int64 `dynamodbav:"seq"`
}

func toLineItemRecord(li *models.LineItem, seq int64) lineItemRecord {
	return lineItemRecord{
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
		Rate:                    li.Rate,
		CostRate:                li.CostRate,
		RateSource:              string(li.RateSource),
		CostRateSource:          string(li.CostRateSource),
		AssignedUserID:          li.AssignedUserID,
		EffectiveRoleID:         li.EffectiveRoleID,
		RoleID:                  li.RoleID,
		ResourceName:            li.ResourceName,
		Salaried:                li.Salaried,
		AdjustedHours:           li.AdjustedHours,
		TotalAmount:             li.TotalAmount,
		TotalCost:               li.TotalCost,
		Margin:                  li.Margin,
		MarginPercent:           li.MarginPercent,
		ReferralMarkup:          li.ReferralMarkup,
		TotalAmountWithReferral: li.TotalAmountWithReferral,
		CreatedAt:               li.CreatedAt,
		UpdatedAt:               li.UpdatedAt,
		Seq:                     seq,
	}
}

func fromLineItemRecord(r lineItemRecord) models.LineItem {
	return models.LineItem{
		ID:                      r.ID,
		EstimateID:              r.EstimateID,
		Epic:                    r.Epic,
		Stage:                   r.Stage,
		Workstream:              r.Workstream,
		Description:             r.Description,
		BaseHours:               r.BaseHours,
		Factor:                  r.Factor,
		Size:                    r.Size,
		Complexity:              r.Complexity,
		Confidence:              r.Confidence,
		Rate:                    r.Rate,
		CostRate:                r.CostRate,
		RateSource:              models.RateSource(r.RateSource),
		CostRateSource:          models.RateSource(r.CostRateSource),
		AssignedUserID:          r.AssignedUserID,
		EffectiveRoleID:         r.EffectiveRoleID,
		RoleID:                  r.RoleID,
		ResourceName:            r.ResourceName,
		Salaried:                r.Salaried,
		AdjustedHours:           r.AdjustedHours,
		TotalAmount:             r.TotalAmount,
		TotalCost:               r.TotalCost,
		Margin:                  r.Margin,
		MarginPercent:           r.MarginPercent,
		ReferralMarkup:          r.ReferralMarkup,
		TotalAmountWithReferral: r.TotalAmountWithReferral,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

type roleRecord struct {
	ID               string  `dynamodbav:"id"`
	Name             string  `dynamodbav:"name"`
	DefaultRackRate  float64 `dynamodbav:"default_rack_rate"`
	DefaultCostRate  float64 `dynamodbav:"default_cost_rate"`
	IsAlwaysSalaried bool    `dynamodbav:"is_always_salaried"`
	CreatedAt        int64   `dynamodbav:"created_at"`
}

type userRecord struct {
	ID                 string  `dynamodbav:"id"`
	Name               string  `dynamodbav:"name"`
	Email              string  `dynamodbav:"email"`
	RoleID             string  `dynamodbav:"role_id"`
	DefaultBillingRate float64 `dynamodbav:"default_billing_rate"`
	DefaultCostRate    float64 `dynamodbav:"default_cost_rate"`
	IsSalaried         bool    `dynamodbav:"is_salaried"`
	CreatedAt          int64   `dynamodbav:"created_at"`
}

type overrideRecord struct {
	ID string `dynamodbav:"id"`

	// ScopeKey is "<scope>#<scope id>", the partition key of the scope index.
	ScopeKey string `dynamodbav:"scope_key"`

	Scope       string   `dynamodbav:"scope"`
	ScopeID     string   `dynamodbav:"scope_id"`
	SubjectType string   `dynamodbav:"subject_type"`
	SubjectID   string   `dynamodbav:"subject_id"`
	BillingRate *float64 `dynamodbav:"billing_rate,omitempty"`
	CostRate    *float64 `dynamodbav:"cost_rate,omitempty"`

	EffectiveFrom int64 `dynamodbav:"effective_from"`
	EffectiveTo   int64 `dynamodbav:"effective_to"`
	CreatedAt     int64 `dynamodbav:"created_at"`
}

func scopeKey(scope models.OverrideScope, scopeID string) string {
	return string(scope) + "#" + scopeID
}

func toOverrideRecord(o *models.RateOverride) overrideRecord {
	return overrideRecord{
		ID:            o.ID,
		ScopeKey:      scopeKey(o.Scope, o.ScopeID),
		Scope:         string(o.Scope),
		ScopeID:       o.ScopeID,
		SubjectType:   string(o.SubjectType),
		SubjectID:     o.SubjectID,
		BillingRate:   o.BillingRate,
		CostRate:      o.CostRate,
		EffectiveFrom: o.EffectiveFrom,
		EffectiveTo:   o.EffectiveTo,
		CreatedAt:     o.CreatedAt,
	}
}

func fromOverrideRecord(r overrideRecord) models.RateOverride {
	return models.RateOverride{
		ID:            r.ID,
		Scope:         models.OverrideScope(r.Scope),
		ScopeID:       r.ScopeID,
		SubjectType:   models.OverrideSubject(r.SubjectType),
		SubjectID:     r.SubjectID,
		BillingRate:   r.BillingRate,
		CostRate:      r.CostRate,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		CreatedAt:     r.CreatedAt,
	}
}
