package domain

import "time"

// Split labels used by the feature store.
const (
	SplitTrain      = "TRAIN"
	SplitValidation = "VALIDATION"
	SplitTest       = "TEST"
)

// EntityKey identifies one demand series: a branch (location) crossed
// with a vehicle category (product).
type EntityKey struct {
	BranchID   int64
	CategoryID int64
}

func (k EntityKey) IsZero() bool {
	return k.BranchID == 0 && k.CategoryID == 0
}

// Observation is one recorded day of demand for an entity, plus the
// exogenous columns the feature store happened to have for that day.
// Immutable once loaded.
type Observation struct {
	EntityKey
	Date  time.Time
	Count float64

	Lag1D          *float64
	Lag7D          *float64
	Rolling7DAvg   *float64
	Rolling30DAvg  *float64
	TemperatureAvg *float64
	Precipitation  *float64
	EventScore     *float64
	HasMajorEvent  *bool
	PublicHoliday  *bool
	SchoolHoliday  *bool
	AvgPricePaid   *float64
}

// ForecastPoint is one forecast day produced by a trained model.
// Demand is clamped to >= 0. For aggregate-only models the EntityKey
// is zero until the training service distributes the point.
type ForecastPoint struct {
	EntityKey
	ForecastDate time.Time
	HorizonDay   int
	Demand       float64
	LowerBound   *float64
	UpperBound   *float64
}

// ModelMetrics are backtest accuracy metrics for one model against one
// validation window. MAPE is nil when every true value is zero; sMAPE
// is nil when every (|true|+|pred|) pair is zero.
type ModelMetrics struct {
	MAE   float64
	MAPE  *float64
	SMAPE *float64
	RMSE  float64
}

// ModelEvaluation is the persisted form of a backtest result.
type ModelEvaluation struct {
	TenantID          int64
	ModelName         string
	ModelVersion      string
	EvaluationDate    time.Time
	Metrics           ModelMetrics
	IsBestModel       bool
	TrainingSamples   int
	ValidationSamples int
	TrainingSeconds   *float64
}

// SignalWeights are the per-tenant weights the pricing engine applies
// to each normalized signal. They should sum to 1.0 within 0.01.
type SignalWeights struct {
	Utilization float64
	Forecast    float64
	Competitor  float64
	Weather     float64
	Holiday     float64
}

// DefaultSignalWeights mirror the tenant-wide fallback configuration.
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		Utilization: 0.30,
		Forecast:    0.25,
		Competitor:  0.25,
		Weather:     0.10,
		Holiday:     0.10,
	}
}

func (w SignalWeights) Sum() float64 {
	return w.Utilization + w.Forecast + w.Competitor + w.Weather + w.Holiday
}

// Valid reports whether the weights sum to 1.0 within tolerance.
func (w SignalWeights) Valid() bool {
	diff := w.Sum() - 1.0
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.01
}

// BaseRates are the resolved daily/weekly/monthly base prices for an
// entity before any adjustment.
type BaseRates struct {
	Daily   float64
	Weekly  float64
	Monthly float64
}

// UtilizationSnapshot is a point-in-time fleet utilization reading.
type UtilizationSnapshot struct {
	Rented    float64
	Available float64
}

// Rate returns rented/(rented+available), or 0 when the fleet is empty.
func (u UtilizationSnapshot) Rate() float64 {
	total := u.Rented + u.Available
	if total <= 0 {
		return 0
	}
	return u.Rented / total
}

// CompetitorIndex summarizes competitor prices for an entity/date.
type CompetitorIndex struct {
	AvgPrice float64
	MinPrice float64
	MaxPrice float64
}

// WeatherDay carries the externally derived weather severity for a
// location/date.
type WeatherDay struct {
	BadWeatherScore float64
	ExtremeHeat     bool
	Precipitation   float64
}

// CalendarDay carries holiday/event metadata for a date.
type CalendarDay struct {
	IsHoliday       bool
	IsSchoolHoliday bool
	DaysToHoliday   int
	IsWeekend       bool
}

// Recommendation lifecycle states. Status is mutated only by the
// external approval workflow.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusSkipped  = "skipped"
)

// PricingRecommendation is one recommended price for an entity/date.
// A later run for the same (tenant, run_date, entity, forecast_date)
// fully supersedes the prior row.
type PricingRecommendation struct {
	EntityKey
	ForecastDate time.Time
	HorizonDay   int

	BaseDaily   float64
	BaseWeekly  float64
	BaseMonthly float64

	RecDaily   float64
	RecWeekly  float64
	RecMonthly float64

	RawAdjustmentPct   float64
	FinalAdjustmentPct float64

	UtilizationSignal float64
	ForecastSignal    float64
	CompetitorSignal  float64
	WeatherSignal     float64
	HolidaySignal     float64

	GuardrailApplied bool
	Guardrail        Guardrail

	Explanation string
	Status      string
	ApprovedBy  *string
	ApprovedAt  *time.Time
}

// EntityError records a per-entity failure inside an otherwise
// successful batch run.
type EntityError struct {
	EntityKey
	Err string
}

// EntityScope is the set of branches and categories a pricing run
// covers; the run iterates their cross product.
type EntityScope struct {
	BranchIDs   []int64
	CategoryIDs []int64
}

// Entities expands the scope into concrete entity keys.
func (s EntityScope) Entities() []EntityKey {
	keys := make([]EntityKey, 0, len(s.BranchIDs)*len(s.CategoryIDs))
	for _, b := range s.BranchIDs {
		for _, c := range s.CategoryIDs {
			keys = append(keys, EntityKey{BranchID: b, CategoryID: c})
		}
	}
	return keys
}
