package calculator

import (
	"strings"

	"github.com/mmynk/estimator/internal/models"
)

// Level is a normalized risk level.
type Level string

const (
	LevelSmall  Level = "small"
	LevelMedium Level = "medium"
	LevelLarge  Level = "large"
	LevelHigh   Level = "high"
	LevelLow    Level = "low"
)

// NormalizeSize maps a size or complexity value to small, medium or large.
// It accepts full words, single-letter abbreviations and the common
// "meduim" misspelling. Anything else is small.
func NormalizeSize(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "medium", "m", "med", "meduim":
		return LevelMedium
	case "large", "l":
		return LevelLarge
	default:
		return LevelSmall
	}
}

// NormalizeConfidence maps a confidence value to high, medium or low.
// Anything unrecognized is high.
func NormalizeConfidence(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "medium", "m", "med", "meduim":
		return LevelMedium
	case "low", "l":
		return LevelLow
	default:
		return LevelHigh
	}
}

// SizeMultiplier returns the size multiplier for a raw size value.
func SizeMultiplier(m models.MultiplierTable, size string) float64 {
	switch NormalizeSize(size) {
	case LevelMedium:
		return m.SizeMedium
	case LevelLarge:
		return m.SizeLarge
	default:
		return m.SizeSmall
	}
}

// ComplexityMultiplier returns the complexity multiplier for a raw value.
func ComplexityMultiplier(m models.MultiplierTable, complexity string) float64 {
	switch NormalizeSize(complexity) {
	case LevelMedium:
		return m.ComplexityMedium
	case LevelLarge:
		return m.ComplexityLarge
	default:
		return m.ComplexitySmall
	}
}

// ConfidenceMultiplier returns the confidence multiplier for a raw value.
func ConfidenceMultiplier(m models.MultiplierTable, confidence string) float64 {
	switch NormalizeConfidence(confidence) {
	case LevelMedium:
		return m.ConfidenceMedium
	case LevelLow:
		return m.ConfidenceLow
	default:
		return m.ConfidenceHigh
	}
}

// Cascade is the hour breakdown of one line item through the contingency
// stages. Base + Size + Complexity + Confidence == Adjusted.
type Cascade struct {
	// Base is baseHours x factor (stage 0).
	Base float64

	// Per-stage contingency increments.
	Size       float64
	Complexity float64
	Confidence float64

	Adjusted float64

	SizeMultiplier       float64
	ComplexityMultiplier float64
	ConfidenceMultiplier float64
}

// Contingency returns the total contingency hours of the cascade.
func (c Cascade) Contingency() float64 {
	return c.Size + c.Complexity + c.Confidence
}

// Amounts is a cascade expressed in money at a given rate.
type Amounts struct {
	Base       float64
	Size       float64
	Complexity float64
	Confidence float64
	Adjusted   float64
}

// Contingency returns the total contingency amount.
func (a Amounts) Contingency() float64 {
	return a.Size + a.Complexity + a.Confidence
}

// At prices every hour quantity of the cascade at rate.
func (c Cascade) At(rate float64) Amounts {
	return Amounts{
		Base:       c.Base * rate,
		Size:       c.Size * rate,
		Complexity: c.Complexity * rate,
		Confidence: c.Confidence * rate,
		Adjusted:   c.Adjusted * rate,
	}
}

// ComputeCascade runs base hours through factor, size, complexity and
// confidence, in that order. Each multiplier applies to the hours already
// inflated by the previous stage.
func ComputeCascade(m models.MultiplierTable, baseHours, factor float64, size, complexity, confidence string) Cascade {
	if factor == 0 {
		factor = 1
	}
	sizeMult := SizeMultiplier(m, size)
	complexityMult := ComplexityMultiplier(m, complexity)
	confidenceMult := ConfidenceMultiplier(m, confidence)

	stage0 := baseHours * factor
	increments, adjusted := applyStages(stage0, sizeMult, complexityMult, confidenceMult)

	return Cascade{
		Base:                 stage0,
		Size:                 increments[0],
		Complexity:           increments[1],
		Confidence:           increments[2],
		Adjusted:             adjusted,
		SizeMultiplier:       sizeMult,
		ComplexityMultiplier: complexityMult,
		ConfidenceMultiplier: confidenceMult,
	}
}

// applyStages multiplies start by each multiplier in turn and returns the
// increment each stage added (negative for multipliers below 1) along with
// the final value. The increments always sum to final - start.
func applyStages(start float64, multipliers ...float64) ([]float64, float64) {
	increments := make([]float64, len(multipliers))
	current := start
	for i, mult := range multipliers {
		next := current * mult
		increments[i] = current * (mult - 1)
		current = next
	}
	return increments, current
}

// Breakdown is the full pricing of one line item: hours, fees and costs for
// each cascade stage.
type Breakdown struct {
	Hours Cascade
	Fees  Amounts
	Costs Amounts
}

// PriceLineItem derives hours, amount, cost and margin for item from its
// inputs and current rates. Salaried items carry no cost.
func PriceLineItem(m models.MultiplierTable, item models.LineItem) (models.LineItem, Breakdown) {
	hours := ComputeCascade(m, item.BaseHours, item.Factor, item.Size, item.Complexity, item.Confidence)

	costRate := item.CostRate
	if item.Salaried {
		costRate = 0
	}
	b := Breakdown{
		Hours: hours,
		Fees:  hours.At(item.Rate),
		Costs: hours.At(costRate),
	}

	item.AdjustedHours = hours.Adjusted
	item.TotalAmount = b.Fees.Adjusted
	item.TotalCost = b.Costs.Adjusted
	finalizeMargin(&item)
	return item, b
}

// PriceLineItems prices every item and returns the priced copies.
func PriceLineItems(m models.MultiplierTable, items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, len(items))
	for i, item := range items {
		out[i], _ = PriceLineItem(m, item)
	}
	return out
}

// finalizeMargin recomputes margin fields from TotalAmount and TotalCost.
// The referral markup is left alone but the presented amount follows the
// new total.
func finalizeMargin(item *models.LineItem) {
	item.Margin = item.TotalAmount - item.TotalCost
	if item.TotalAmount > 0 {
		item.MarginPercent = item.Margin / item.TotalAmount * 100
	} else {
		item.MarginPercent = 0
	}
	item.TotalAmountWithReferral = item.TotalAmount + item.ReferralMarkup
}
