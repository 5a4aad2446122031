package domain

import "math"

// Guardrail bounds any automated price change for a category (and
// optionally a single branch). MaxDiscountPct and MaxPremiumPct are
// positive magnitudes; MinPrice is an absolute floor.
type Guardrail struct {
	MinPrice       float64
	MaxDiscountPct float64
	MaxPremiumPct  float64
}

// DefaultGuardrails returns the per-category fallback guardrails used
// when no configured row matches.
func DefaultGuardrails() map[int64]Guardrail {
	return map[int64]Guardrail{
		1: {MinPrice: 50, MaxDiscountPct: 25, MaxPremiumPct: 40},  // economy
		2: {MinPrice: 70, MaxDiscountPct: 25, MaxPremiumPct: 45},  // compact
		3: {MinPrice: 100, MaxDiscountPct: 25, MaxPremiumPct: 50}, // standard
		4: {MinPrice: 150, MaxDiscountPct: 20, MaxPremiumPct: 50}, // suv
		5: {MinPrice: 300, MaxDiscountPct: 15, MaxPremiumPct: 60}, // luxury
		6: {MinPrice: 200, MaxDiscountPct: 20, MaxPremiumPct: 45}, // van
	}
}

// DefaultBasePrices returns the per-category daily base prices used
// when neither a rate card nor pricing history exists for an entity.
func DefaultBasePrices() map[int64]float64 {
	return map[int64]float64{
		1: 99,  // economy
		2: 120, // compact
		3: 150, // standard
		4: 220, // suv
		5: 450, // luxury
		6: 280, // van
	}
}

// FallbackBasePrice is the daily base price for unmapped categories.
const FallbackBasePrice = 150

// FallbackGuardrail is the tenant-wide default for unknown categories.
func FallbackGuardrail() Guardrail {
	return Guardrail{MinPrice: 50, MaxDiscountPct: 25, MaxPremiumPct: 50}
}

// Clamp applies the guardrail to a raw adjustment percentage, in fixed
// order: premium cap, discount cap, then the absolute price floor. The
// floor recomputes the effective adjustment and always wins.
func (g Guardrail) Clamp(basePrice, adjustmentPct float64) (finalPrice, finalAdjustment float64, applied bool) {
	finalAdjustment = adjustmentPct

	if adjustmentPct > g.MaxPremiumPct {
		finalAdjustment = g.MaxPremiumPct
		applied = true
	}
	if adjustmentPct < -g.MaxDiscountPct {
		finalAdjustment = -g.MaxDiscountPct
		applied = true
	}

	finalPrice = basePrice * (1 + finalAdjustment/100)

	if finalPrice < g.MinPrice {
		finalPrice = g.MinPrice
		finalAdjustment = (finalPrice/basePrice - 1) * 100
		applied = true
	}

	return roundTo(finalPrice, 2), roundTo(finalAdjustment, 4), applied
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
