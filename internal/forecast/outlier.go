package forecast

import (
	"github.com/narumiruna/go-iforest/pkg/iforest"

	"fleetpricer/internal/domain"
)

const (
	outlierMinHistory = 30
	outlierThreshold  = 0.65
)

// ScreenOutliers replaces anomalous days in an aggregated daily series
// with the trailing seven-day median before the baseline and smoothing
// variants fit on it. Each day is scored by an isolation forest over
// (value, weekday, 1-day delta). Series too short to fit a forest are
// returned unchanged.
func ScreenOutliers(series []domain.Observation) []domain.Observation {
	if len(series) < outlierMinHistory {
		return series
	}

	samples := make([][]float64, len(series))
	for i, obs := range series {
		delta := 0.0
		if i > 0 {
			delta = obs.Count - series[i-1].Count
		}
		samples[i] = []float64{obs.Count, float64(mondayIndexedWeekday(obs.Date)), delta}
	}

	model := iforest.New()
	model.Fit(samples)
	scores := model.Score(samples)

	out := append([]domain.Observation(nil), series...)
	for i, score := range scores {
		if score < outlierThreshold {
			continue
		}
		out[i].Count = trailingMedian(out, i, 7)
	}
	return out
}

func trailingMedian(series []domain.Observation, i, window int) float64 {
	start := i - window
	if start < 0 {
		start = 0
	}
	values := make([]float64, 0, window)
	for _, obs := range series[start:i] {
		values = append(values, obs.Count)
	}
	if len(values) == 0 {
		return series[i].Count
	}
	return median(values)
}
