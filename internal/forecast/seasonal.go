package forecast

import (
	"time"

	"fleetpricer/internal/domain"
)

// SeasonalNaive forecasts each horizon day from the same weekday slot
// of the last observed season. It fits an aggregated daily series.
type SeasonalNaive struct {
	period   int
	history  []float64
	lastDate time.Time
}

func NewSeasonalNaive(period int) *SeasonalNaive {
	if period <= 0 {
		period = 7
	}
	return &SeasonalNaive{period: period}
}

func (m *SeasonalNaive) Variant() Variant { return VariantSeasonalNaive }

func (m *SeasonalNaive) Fit(series []domain.Observation) error {
	agg := AggregateByDate(series)
	if len(agg) == 0 {
		return ErrNotEnoughData
	}
	m.history = Counts(agg)
	m.lastDate = LastDate(agg)
	return nil
}

func (m *SeasonalNaive) Predict(horizon int, context []domain.Observation) ([]domain.ForecastPoint, error) {
	if m.history == nil {
		return nil, ErrNotFitted
	}

	history := m.history
	lastDate := m.lastDate
	if len(context) > 0 {
		agg := AggregateByDate(context)
		history = Counts(agg)
		lastDate = LastDate(agg)
	}

	points := make([]domain.ForecastPoint, 0, horizon)
	for h := 1; h <= horizon; h++ {
		idx := len(history) - m.period + (h-1)%m.period
		var value float64
		if idx >= 0 && idx < len(history) {
			value = history[idx]
		} else {
			value = tailMean(history, m.period)
		}

		points = append(points, domain.ForecastPoint{
			ForecastDate: lastDate.AddDate(0, 0, h),
			HorizonDay:   h,
			Demand:       clampNonNegative(value),
		})
	}
	return points, nil
}
