package forecast

import (
	"sort"
	"time"

	"fleetpricer/internal/domain"
)

// AggregateByDate sums every entity's demand into a single daily
// series with a zero entity key, sorted by date.
func AggregateByDate(series []domain.Observation) []domain.Observation {
	byDate := make(map[time.Time]float64, len(series))
	for _, obs := range series {
		d := dateOnly(obs.Date)
		byDate[d] += obs.Count
	}

	out := make([]domain.Observation, 0, len(byDate))
	for d, total := range byDate {
		out = append(out, domain.Observation{Date: d, Count: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// GroupByEntity splits observations per entity key, each group sorted
// by date. Key order is deterministic (branch then category).
func GroupByEntity(series []domain.Observation) ([]domain.EntityKey, map[domain.EntityKey][]domain.Observation) {
	groups := make(map[domain.EntityKey][]domain.Observation)
	for _, obs := range series {
		groups[obs.EntityKey] = append(groups[obs.EntityKey], obs)
	}

	keys := make([]domain.EntityKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
		sort.Slice(groups[k], func(i, j int) bool { return groups[k][i].Date.Before(groups[k][j].Date) })
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].BranchID != keys[j].BranchID {
			return keys[i].BranchID < keys[j].BranchID
		}
		return keys[i].CategoryID < keys[j].CategoryID
	})
	return keys, groups
}

// LastDate returns the latest date in the series, or the zero time.
func LastDate(series []domain.Observation) time.Time {
	var last time.Time
	for _, obs := range series {
		if obs.Date.After(last) {
			last = obs.Date
		}
	}
	return last
}

// Counts extracts the demand values in the series' current order.
func Counts(series []domain.Observation) []float64 {
	out := make([]float64, len(series))
	for i, obs := range series {
		out[i] = obs.Count
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func tailMean(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}
	if n > len(values) {
		n = len(values)
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
