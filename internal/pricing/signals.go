package pricing

import (
	"math"

	"fleetpricer/internal/domain"
)

// Neutral is the score used when a signal's input is unavailable.
// A fully neutral day produces a zero price adjustment.
const Neutral = 0.5

// UtilizationSignal maps a fleet utilization snapshot to [0, 1].
// Utilization at or above 90% saturates the signal; an empty fleet is
// treated as unknown.
func UtilizationSignal(snap *domain.UtilizationSnapshot) float64 {
	if snap == nil || snap.Rented+snap.Available == 0 {
		return Neutral
	}
	u := snap.Rate()
	switch {
	case u >= 0.90:
		return 1.0
	case u >= 0.70:
		return 0.5 + (u-0.70)*2.5
	case u >= 0.50:
		return 0.3 + (u-0.50)*1.0
	default:
		return u * 0.6
	}
}

// DemandForecastSignal scores predicted demand relative to the
// trailing average. A ratio of 1.0 is neutral.
func DemandForecastSignal(predicted, trailingAvg float64) float64 {
	if trailingAvg <= 0 {
		return Neutral
	}
	r := predicted / trailingAvg
	switch {
	case r >= 1.5:
		return 1.0
	case r >= 1.0:
		return 0.5 + (r-1.0)*1.0
	case r >= 0.5:
		return (r - 0.5) * 1.0
	default:
		return 0.0
	}
}

// CompetitorSignal scores our price against the competitor average.
// Being cheap raises the signal, being expensive lowers it.
func CompetitorSignal(ourPrice float64, idx *domain.CompetitorIndex) float64 {
	if idx == nil || idx.AvgPrice <= 0 || ourPrice <= 0 {
		return Neutral
	}
	r := ourPrice / idx.AvgPrice
	switch {
	case r < 0.8:
		return math.Min(1.0, 0.7+(0.8-r)*1.5)
	case r <= 1.2:
		return 0.4 + (1.2-r)*0.5
	default:
		return math.Max(0.0, 0.3-(r-1.2)*0.5)
	}
}

// WeatherSignal scores rental-favorable weather. Bad weather and
// extreme heat depress walk-in demand, mild weather lifts it.
func WeatherSignal(day *domain.WeatherDay) float64 {
	if day == nil {
		return Neutral
	}
	switch {
	case day.BadWeatherScore >= 0.7 || day.ExtremeHeat:
		return 0.3
	case day.BadWeatherScore >= 0.4 || day.Precipitation > 10:
		return 0.4
	case day.BadWeatherScore <= 0.1:
		return 0.6
	default:
		return Neutral
	}
}

// EventSignal scores calendar pressure: holidays outrank approaching
// holidays, which outrank school breaks, which outrank plain weekends.
// Without calendar data only the weekend flag applies.
func EventSignal(day *domain.CalendarDay, isWeekend bool) float64 {
	if day == nil {
		if isWeekend {
			return 0.6
		}
		return Neutral
	}
	switch {
	case day.IsHoliday:
		return 0.9
	case day.DaysToHoliday > 0 && day.DaysToHoliday <= 3:
		return 0.75
	case day.IsSchoolHoliday:
		return 0.7
	case day.IsWeekend || isWeekend:
		return 0.6
	default:
		return Neutral
	}
}
