package forecast

import (
	"errors"

	"fleetpricer/internal/domain"
)

// Variant enumerates the model implementations in registration order.
// Model selection iterates this order, so ties on the selection metric
// resolve to the earliest variant.
type Variant int

const (
	VariantSeasonalNaive Variant = iota
	VariantETS
	VariantBoost
	VariantSequence
)

var variantNames = map[Variant]string{
	VariantSeasonalNaive: "seasonal_naive",
	VariantETS:           "simple_ets",
	VariantBoost:         "boosted_trees",
	VariantSequence:      "sequence",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return "unknown"
}

// Variants returns all variants in registration order.
func Variants() []Variant {
	return []Variant{VariantSeasonalNaive, VariantETS, VariantBoost, VariantSequence}
}

// PerEntity reports whether the variant forecasts each entity series
// separately. Aggregate variants forecast the daily total and need
// their output distributed across entities afterwards.
func (v Variant) PerEntity() bool {
	return v == VariantBoost || v == VariantSequence
}

var (
	// ErrNotFitted is returned by Predict before a successful Fit.
	ErrNotFitted = errors.New("model not fitted")
	// ErrNotEnoughData is returned by Fit when the series is too short
	// to train on at all.
	ErrNotEnoughData = errors.New("not enough observations")
	// ErrSequenceTooShort is returned by the sequence variant when no
	// entity has enough observations to fill a single window.
	ErrSequenceTooShort = errors.New("no series longer than the window length")
)

// Model is the contract every forecasting variant implements. Fit
// mutates only internal state; Predict produces horizon consecutive
// days starting the day after the last known date.
type Model interface {
	Variant() Variant
	Fit(series []domain.Observation) error
	Predict(horizon int, context []domain.Observation) ([]domain.ForecastPoint, error)
}
