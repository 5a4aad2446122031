package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"fleetpricer/internal/domain"
)

// ETS is a Holt-Winters exponential smoothing model: additive level
// and trend with a multiplicative seasonal index of length period.
// With fewer than two full seasons of history it degrades to a flat
// level with unit seasonal indices rather than failing.
type ETS struct {
	alpha  float64
	beta   float64
	gamma  float64
	period int

	level    float64
	trend    float64
	seasonal []float64
	lastDate time.Time
}

func NewETS(period int) *ETS {
	if period <= 0 {
		period = 7
	}
	return &ETS{alpha: 0.3, beta: 0.1, gamma: 0.2, period: period}
}

func (m *ETS) Variant() Variant { return VariantETS }

func (m *ETS) Fit(series []domain.Observation) error {
	agg := AggregateByDate(series)
	if len(agg) == 0 {
		return ErrNotEnoughData
	}
	y := Counts(agg)
	n := len(y)
	p := m.period
	m.lastDate = LastDate(agg)

	if n < 2*p {
		// Too short for seasonal decomposition: flat level, no trend.
		m.level = stat.Mean(y, nil)
		m.trend = 0
		m.seasonal = make([]float64, p)
		for i := range m.seasonal {
			m.seasonal[i] = 1
		}
		return nil
	}

	firstSeason := stat.Mean(y[:p], nil)
	secondSeason := stat.Mean(y[p:2*p], nil)
	m.level = firstSeason
	m.trend = (secondSeason - firstSeason) / float64(p)
	m.seasonal = make([]float64, p)
	for i := 0; i < p; i++ {
		m.seasonal[i] = y[i] / math.Max(m.level, 1)
	}

	for t := p; t < n; t++ {
		idx := t % p
		prevLevel := m.level

		m.level = m.alpha*(y[t]/math.Max(m.seasonal[idx], 0.01)) +
			(1-m.alpha)*(m.level+m.trend)
		m.trend = m.beta*(m.level-prevLevel) + (1-m.beta)*m.trend
		m.seasonal[idx] = m.gamma*(y[t]/math.Max(m.level, 1)) +
			(1-m.gamma)*m.seasonal[idx]
	}
	return nil
}

func (m *ETS) Predict(horizon int, context []domain.Observation) ([]domain.ForecastPoint, error) {
	if m.seasonal == nil {
		return nil, ErrNotFitted
	}

	lastDate := m.lastDate
	if last := LastDate(context); last.After(lastDate) {
		lastDate = last
	}

	points := make([]domain.ForecastPoint, 0, horizon)
	for h := 1; h <= horizon; h++ {
		value := (m.level + float64(h)*m.trend) * m.seasonal[h%m.period]
		points = append(points, domain.ForecastPoint{
			ForecastDate: lastDate.AddDate(0, 0, h),
			HorizonDay:   h,
			Demand:       clampNonNegative(value),
		})
	}
	return points, nil
}
