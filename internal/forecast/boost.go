package forecast

import (
	"math"
	"sort"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"

	"fleetpricer/internal/domain"
)

// BoostOptions tune the gradient-boosted tree variant.
type BoostOptions struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	Bins         int
}

func DefaultBoostOptions() BoostOptions {
	return BoostOptions{
		Rounds:       60,
		LearningRate: 0.1,
		MaxDepth:     6,
		Bins:         8,
	}
}

// Boost is a gradient-boosted tree regressor over engineered
// calendar/lag/exogenous features, trained per (entity, date) row
// across all series at once. The underlying ensemble is a softmax
// classifier, so demand is discretized into quantile bins and the
// prediction is the probability-weighted mean of bin centers.
type Boost struct {
	opts       BoostOptions
	spec       *featureSpec
	binCenters []float64
	model      *boo.MultiClass
}

func NewBoost(opts BoostOptions) *Boost {
	def := DefaultBoostOptions()
	if opts.Rounds <= 0 {
		opts.Rounds = def.Rounds
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.Bins <= 1 {
		opts.Bins = def.Bins
	}
	return &Boost{opts: opts}
}

func (m *Boost) Variant() Variant { return VariantBoost }

func (m *Boost) Fit(series []domain.Observation) error {
	if len(series) == 0 {
		return ErrNotEnoughData
	}

	m.spec = buildFeatureSpec(series)

	samples := make([][]float64, len(series))
	targets := make([]float64, len(series))
	for i, obs := range series {
		samples[i] = m.spec.vector(obs)
		targets[i] = obs.Count
	}

	labels, centers := binTargets(targets, m.opts.Bins)
	if len(centers) < 2 {
		// Constant demand cannot train a boosted ensemble.
		return ErrNotEnoughData
	}
	m.binCenters = centers

	o := boo.DefaultXOptions()
	o.Rounds = m.opts.Rounds
	o.LearningRate = m.opts.LearningRate
	o.MaxDepth = m.opts.MaxDepth
	o.Verbose = false
	o.EarlyStop = 0

	data := &utils.DataBunch{
		Data:   samples,
		Labels: labels,
		Keys:   m.spec.names,
	}
	model := boo.NewMultiClass(data, o)
	if model == nil {
		return ErrNotEnoughData
	}
	m.model = model
	return nil
}

func (m *Boost) Predict(horizon int, context []domain.Observation) ([]domain.ForecastPoint, error) {
	if m.model == nil {
		return nil, ErrNotFitted
	}

	lastDate := LastDate(context)
	keys, groups := GroupByEntity(context)

	var points []domain.ForecastPoint
	for _, key := range keys {
		history := groups[key]
		if len(history) == 0 {
			continue
		}
		for h := 1; h <= horizon; h++ {
			date := lastDate.AddDate(0, 0, h)
			v := m.spec.forecastVector(key, date, h, history, 7)
			points = append(points, domain.ForecastPoint{
				EntityKey:    key,
				ForecastDate: date,
				HorizonDay:   h,
				Demand:       clampNonNegative(m.expectedValue(v)),
			})
		}
	}
	return points, nil
}

// expectedValue converts the ensemble's class probabilities into a
// demand estimate.
func (m *Boost) expectedValue(sample []float64) float64 {
	probs := m.model.PredictSingle(sample)
	labels := m.model.ClassLabels()

	sum := 0.0
	total := 0.0
	for i, label := range labels {
		if i >= len(probs) || label < 0 || label >= len(m.binCenters) {
			continue
		}
		p := probs[i]
		if math.IsNaN(p) || p < 0 {
			continue
		}
		sum += p * m.binCenters[label]
		total += p
	}
	if total <= 0 {
		return 0
	}
	return sum / total
}

// binTargets assigns each target to a quantile bin and returns the
// labels plus each bin's mean value. Empty bins are dropped and labels
// renumbered so the class set is dense.
func binTargets(targets []float64, bins int) ([]int, []float64) {
	sorted := append([]float64(nil), targets...)
	sort.Float64s(sorted)

	edges := make([]float64, 0, bins-1)
	for i := 1; i < bins; i++ {
		q := sorted[i*len(sorted)/bins]
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}

	labels := make([]int, len(targets))
	sums := make([]float64, len(edges)+1)
	counts := make([]int, len(edges)+1)
	for i, t := range targets {
		label := sort.SearchFloat64s(edges, t)
		// SearchFloat64s puts t == edge into the lower bin boundary;
		// shift exact matches up so edges start new bins.
		for label < len(edges) && t >= edges[label] {
			label++
		}
		labels[i] = label
		sums[label] += t
		counts[label]++
	}

	remap := make([]int, len(sums))
	centers := make([]float64, 0, len(sums))
	for label := range sums {
		if counts[label] == 0 {
			remap[label] = -1
			continue
		}
		remap[label] = len(centers)
		centers = append(centers, sums[label]/float64(counts[label]))
	}
	for i := range labels {
		labels[i] = remap[labels[i]]
	}
	return labels, centers
}
