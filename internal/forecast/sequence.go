package forecast

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"fleetpricer/internal/domain"
)

const sequenceFeatures = 5 // count, day-of-week, weekend, 1d lag, 7d rolling mean

// SequenceOptions tune the autoregressive sequence variant. Epochs is
// the iteration budget that bounds fitting time.
type SequenceOptions struct {
	Window       int
	Epochs       int
	LearningRate float64
	L2           float64
}

func DefaultSequenceOptions() SequenceOptions {
	return SequenceOptions{
		Window:       14,
		Epochs:       30,
		LearningRate: 0.05,
		L2:           0.0001,
	}
}

// Sequence forecasts per entity from fixed-length sliding windows of a
// small feature set, standardized with training statistics. The model
// is a linear regressor over the flattened window trained by gradient
// descent; rollout is autoregressive, feeding each prediction back
// into the window for the next day. Entities shorter than the window
// are skipped.
type Sequence struct {
	opts SequenceOptions

	weights []float64
	bias    float64
	means   []float64
	stds    []float64
	fitted  bool
}

func NewSequence(opts SequenceOptions) *Sequence {
	def := DefaultSequenceOptions()
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.Epochs <= 0 {
		opts.Epochs = def.Epochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.L2 < 0 {
		opts.L2 = def.L2
	}
	return &Sequence{opts: opts}
}

func (m *Sequence) Variant() Variant { return VariantSequence }

func (m *Sequence) Fit(series []domain.Observation) error {
	if len(series) == 0 {
		return ErrNotEnoughData
	}

	_, groups := GroupByEntity(series)

	var windows [][][]float64
	var targets []float64
	for _, group := range groups {
		rows := stepFeatures(group)
		if len(rows) <= m.opts.Window {
			continue // entity too short, skipped per contract
		}
		for i := 0; i+m.opts.Window < len(rows); i++ {
			windows = append(windows, rows[i:i+m.opts.Window])
			targets = append(targets, rows[i+m.opts.Window][0])
		}
	}
	if len(windows) == 0 {
		return ErrSequenceTooShort
	}

	m.fitScaler(windows)

	dim := m.opts.Window * sequenceFeatures
	m.weights = make([]float64, dim)
	m.bias = 0

	x := make([][]float64, len(windows))
	y := make([]float64, len(targets))
	for i := range windows {
		x[i] = m.flatten(windows[i])
		y[i] = m.standardizeTarget(targets[i])
	}

	n := float64(len(x))
	for epoch := 0; epoch < m.opts.Epochs; epoch++ {
		gradW := make([]float64, dim)
		gradB := 0.0
		for i := range x {
			pred := m.bias
			for j, v := range x[i] {
				pred += m.weights[j] * v
			}
			diff := pred - y[i]
			for j, v := range x[i] {
				gradW[j] += diff * v
			}
			gradB += diff
		}
		for j := range m.weights {
			m.weights[j] -= m.opts.LearningRate * (gradW[j]/n + m.opts.L2*m.weights[j])
		}
		m.bias -= m.opts.LearningRate * gradB / n
	}

	m.fitted = true
	return nil
}

func (m *Sequence) Predict(horizon int, context []domain.Observation) ([]domain.ForecastPoint, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	lastDate := LastDate(context)
	keys, groups := GroupByEntity(context)

	var points []domain.ForecastPoint
	for _, key := range keys {
		rows := stepFeatures(groups[key])
		if len(rows) < m.opts.Window {
			continue
		}

		window := make([][]float64, m.opts.Window)
		copy(window, rows[len(rows)-m.opts.Window:])

		for h := 1; h <= horizon; h++ {
			date := lastDate.AddDate(0, 0, h)
			pred := m.bias
			flat := m.flatten(window)
			for j, v := range flat {
				pred += m.weights[j] * v
			}
			demand := clampNonNegative(m.destandardizeTarget(pred))

			points = append(points, domain.ForecastPoint{
				EntityKey:    key,
				ForecastDate: date,
				HorizonDay:   h,
				Demand:       demand,
			})

			// Feed the prediction back in for the next day.
			counts := make([]float64, len(window))
			for i := range window {
				counts[i] = window[i][0]
			}
			next := []float64{
				demand,
				float64(mondayIndexedWeekday(date)),
				weekendFlag(date),
				demand,
				stat.Mean(counts, nil),
			}
			window = append(window[1:], next)
		}
	}
	return points, nil
}

func (m *Sequence) fitScaler(windows [][][]float64) {
	m.means = make([]float64, sequenceFeatures)
	m.stds = make([]float64, sequenceFeatures)

	cols := make([][]float64, sequenceFeatures)
	for _, w := range windows {
		for _, row := range w {
			for j, v := range row {
				cols[j] = append(cols[j], v)
			}
		}
	}
	for j := range cols {
		m.means[j] = stat.Mean(cols[j], nil)
		m.stds[j] = stat.StdDev(cols[j], nil)
		if m.stds[j] == 0 {
			m.stds[j] = 1
		}
	}
}

func (m *Sequence) flatten(window [][]float64) []float64 {
	flat := make([]float64, 0, len(window)*sequenceFeatures)
	for _, row := range window {
		for j, v := range row {
			flat = append(flat, (v-m.means[j])/m.stds[j])
		}
	}
	return flat
}

func (m *Sequence) standardizeTarget(v float64) float64 {
	return (v - m.means[0]) / m.stds[0]
}

func (m *Sequence) destandardizeTarget(v float64) float64 {
	return m.means[0] + m.stds[0]*v
}

// stepFeatures builds the per-day feature rows for one entity series,
// computing the lag and rolling mean from the series itself when the
// feature store columns are absent.
func stepFeatures(group []domain.Observation) [][]float64 {
	rows := make([][]float64, len(group))
	for i, obs := range group {
		lag1 := 0.0
		if obs.Lag1D != nil {
			lag1 = *obs.Lag1D
		} else if i > 0 {
			lag1 = group[i-1].Count
		}

		roll7 := obs.Count
		if obs.Rolling7DAvg != nil {
			roll7 = *obs.Rolling7DAvg
		} else {
			start := i - 6
			if start < 0 {
				start = 0
			}
			sum := 0.0
			for _, prev := range group[start : i+1] {
				sum += prev.Count
			}
			roll7 = sum / float64(i+1-start)
		}

		rows[i] = []float64{
			obs.Count,
			float64(mondayIndexedWeekday(obs.Date)),
			weekendFlag(obs.Date),
			lag1,
			roll7,
		}
	}
	return rows
}

func weekendFlag(date time.Time) float64 {
	if mondayIndexedWeekday(date) >= 5 {
		return 1
	}
	return 0
}
