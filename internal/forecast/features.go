package forecast

import (
	"sort"
	"time"

	"fleetpricer/internal/domain"
)

const defaultTemperature = 30.0

// featureSpec describes the engineered feature set for the boosted
// tree variant. Optional exogenous columns are included only when the
// training series carries them at all; missing values in present
// columns are imputed with neutral defaults.
type featureSpec struct {
	names []string

	hasPublicHoliday bool
	hasSchoolHoliday bool
	hasLag1          bool
	hasLag7          bool
	hasRoll7         bool
	hasRoll30        bool
	hasTemperature   bool
	hasPrecipitation bool
	hasEventScore    bool
	hasMajorEvent    bool
	hasPrice         bool

	priceMedian   float64
	branchCodes   map[int64]float64
	categoryCodes map[int64]float64
}

func buildFeatureSpec(series []domain.Observation) *featureSpec {
	s := &featureSpec{
		branchCodes:   map[int64]float64{},
		categoryCodes: map[int64]float64{},
	}

	var prices []float64
	branchSet := map[int64]struct{}{}
	categorySet := map[int64]struct{}{}
	for _, obs := range series {
		branchSet[obs.BranchID] = struct{}{}
		categorySet[obs.CategoryID] = struct{}{}
		s.hasPublicHoliday = s.hasPublicHoliday || obs.PublicHoliday != nil
		s.hasSchoolHoliday = s.hasSchoolHoliday || obs.SchoolHoliday != nil
		s.hasLag1 = s.hasLag1 || obs.Lag1D != nil
		s.hasLag7 = s.hasLag7 || obs.Lag7D != nil
		s.hasRoll7 = s.hasRoll7 || obs.Rolling7DAvg != nil
		s.hasRoll30 = s.hasRoll30 || obs.Rolling30DAvg != nil
		s.hasTemperature = s.hasTemperature || obs.TemperatureAvg != nil
		s.hasPrecipitation = s.hasPrecipitation || obs.Precipitation != nil
		s.hasEventScore = s.hasEventScore || obs.EventScore != nil
		s.hasMajorEvent = s.hasMajorEvent || obs.HasMajorEvent != nil
		if obs.AvgPricePaid != nil {
			prices = append(prices, *obs.AvgPricePaid)
			s.hasPrice = true
		}
	}

	assignCodes(branchSet, s.branchCodes)
	assignCodes(categorySet, s.categoryCodes)
	s.priceMedian = median(prices)

	s.names = []string{"branch_code", "category_code", "day_of_week", "day_of_month", "week_of_year", "month_of_year", "quarter", "is_weekend"}
	for _, col := range []struct {
		present bool
		name    string
	}{
		{s.hasPublicHoliday, "is_public_holiday"},
		{s.hasSchoolHoliday, "is_school_holiday"},
		{s.hasLag1, "rentals_lag_1d"},
		{s.hasLag7, "rentals_lag_7d"},
		{s.hasRoll7, "rentals_rolling_7d_avg"},
		{s.hasRoll30, "rentals_rolling_30d_avg"},
		{s.hasTemperature, "temperature_avg"},
		{s.hasPrecipitation, "precipitation_mm"},
		{s.hasEventScore, "event_score"},
		{s.hasMajorEvent, "has_major_event"},
		{s.hasPrice, "avg_base_price_paid"},
	} {
		if col.present {
			s.names = append(s.names, col.name)
		}
	}
	return s
}

// vector builds the training feature row for one observation.
func (s *featureSpec) vector(obs domain.Observation) []float64 {
	v := s.calendarVector(obs.EntityKey, obs.Date)
	if s.hasPublicHoliday {
		v = append(v, boolValue(obs.PublicHoliday))
	}
	if s.hasSchoolHoliday {
		v = append(v, boolValue(obs.SchoolHoliday))
	}
	if s.hasLag1 {
		v = append(v, floatValue(obs.Lag1D, 0))
	}
	if s.hasLag7 {
		v = append(v, floatValue(obs.Lag7D, 0))
	}
	if s.hasRoll7 {
		v = append(v, floatValue(obs.Rolling7DAvg, 0))
	}
	if s.hasRoll30 {
		v = append(v, floatValue(obs.Rolling30DAvg, 0))
	}
	if s.hasTemperature {
		v = append(v, floatValue(obs.TemperatureAvg, defaultTemperature))
	}
	if s.hasPrecipitation {
		v = append(v, floatValue(obs.Precipitation, 0))
	}
	if s.hasEventScore {
		v = append(v, floatValue(obs.EventScore, 0))
	}
	if s.hasMajorEvent {
		v = append(v, boolValue(obs.HasMajorEvent))
	}
	if s.hasPrice {
		v = append(v, floatValue(obs.AvgPricePaid, s.priceMedian))
	}
	return v
}

// forecastVector builds the feature row for a future date during the
// walk-forward rollout. Day one feeds the last actual as the lag;
// later days fall back to the same weekday slot of recent history.
func (s *featureSpec) forecastVector(key domain.EntityKey, date time.Time, h int, history []domain.Observation, period int) []float64 {
	counts := Counts(history)
	lastCount := 0.0
	if len(counts) > 0 {
		lastCount = counts[len(counts)-1]
	}

	lag1 := lastCount
	if h > 1 {
		if idx := len(counts) - period + (h-1)%period; idx >= 0 && idx < len(counts) {
			lag1 = counts[idx]
		}
	}
	lag7 := lastCount
	if len(counts) >= 7 {
		lag7 = counts[len(counts)-7]
	}

	v := s.calendarVector(key, date)
	if s.hasPublicHoliday {
		v = append(v, 0)
	}
	if s.hasSchoolHoliday {
		v = append(v, 0)
	}
	if s.hasLag1 {
		v = append(v, lag1)
	}
	if s.hasLag7 {
		v = append(v, lag7)
	}
	if s.hasRoll7 {
		v = append(v, tailMean(counts, 7))
	}
	if s.hasRoll30 {
		v = append(v, tailMean(counts, 30))
	}
	if s.hasTemperature {
		v = append(v, defaultTemperature)
	}
	if s.hasPrecipitation {
		v = append(v, 0)
	}
	if s.hasEventScore {
		v = append(v, 0)
	}
	if s.hasMajorEvent {
		v = append(v, 0)
	}
	if s.hasPrice {
		last := history[len(history)-1]
		v = append(v, floatValue(last.AvgPricePaid, s.priceMedian))
	}
	return v
}

func (s *featureSpec) calendarVector(key domain.EntityKey, date time.Time) []float64 {
	dow := mondayIndexedWeekday(date)
	_, week := date.ISOWeek()
	weekend := 0.0
	if dow >= 5 {
		weekend = 1
	}
	return []float64{
		s.branchCodes[key.BranchID],
		s.categoryCodes[key.CategoryID],
		float64(dow),
		float64(date.Day()),
		float64(week),
		float64(date.Month()),
		float64((int(date.Month())-1)/3 + 1),
		weekend,
	}
}

func mondayIndexedWeekday(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

func assignCodes(set map[int64]struct{}, codes map[int64]float64) {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		codes[id] = float64(i)
	}
}

func floatValue(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func boolValue(p *bool) float64 {
	if p != nil && *p {
		return 1
	}
	return 0
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
