package pricing

import (
	"math"
	"testing"

	"fleetpricer/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestUtilizationSignal(t *testing.T) {
	cases := []struct {
		name string
		snap *domain.UtilizationSnapshot
		want float64
	}{
		{"missing", nil, 0.5},
		{"empty fleet", &domain.UtilizationSnapshot{}, 0.5},
		{"saturated", &domain.UtilizationSnapshot{Rented: 95, Available: 5}, 1.0},
		{"exactly 90 pct", &domain.UtilizationSnapshot{Rented: 90, Available: 10}, 1.0},
		{"80 pct", &domain.UtilizationSnapshot{Rented: 80, Available: 20}, 0.75},
		{"70 pct boundary", &domain.UtilizationSnapshot{Rented: 70, Available: 30}, 0.5},
		{"60 pct", &domain.UtilizationSnapshot{Rented: 60, Available: 40}, 0.4},
		{"40 pct", &domain.UtilizationSnapshot{Rented: 40, Available: 60}, 0.24},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UtilizationSignal(tc.snap); !almostEqual(got, tc.want) {
				t.Fatalf("got %f, want %f", got, tc.want)
			}
		})
	}
}

func TestDemandForecastSignal(t *testing.T) {
	cases := []struct {
		name                string
		predicted, trailing float64
		want                float64
	}{
		{"no history", 10, 0, 0.5},
		{"surge", 30, 10, 1.0},
		{"exactly 1.5x", 15, 10, 1.0},
		{"1.25x", 12.5, 10, 0.75},
		{"flat", 10, 10, 0.5},
		{"0.75x", 7.5, 10, 0.25},
		{"half boundary", 5, 10, 0.0},
		{"collapse", 2, 10, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DemandForecastSignal(tc.predicted, tc.trailing); !almostEqual(got, tc.want) {
				t.Fatalf("got %f, want %f", got, tc.want)
			}
		})
	}
}

func TestCompetitorSignal(t *testing.T) {
	cases := []struct {
		name string
		our  float64
		idx  *domain.CompetitorIndex
		want float64
	}{
		{"missing", 100, nil, 0.5},
		{"zero avg", 100, &domain.CompetitorIndex{}, 0.5},
		{"much cheaper", 50, &domain.CompetitorIndex{AvgPrice: 100}, 1.0},
		{"slightly cheaper", 70, &domain.CompetitorIndex{AvgPrice: 100}, 0.85},
		{"at parity", 100, &domain.CompetitorIndex{AvgPrice: 100}, 0.5},
		{"at 1.2x", 120, &domain.CompetitorIndex{AvgPrice: 100}, 0.4},
		{"expensive", 140, &domain.CompetitorIndex{AvgPrice: 100}, 0.2},
		{"far too expensive", 200, &domain.CompetitorIndex{AvgPrice: 100}, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CompetitorSignal(tc.our, tc.idx); !almostEqual(got, tc.want) {
				t.Fatalf("got %f, want %f", got, tc.want)
			}
		})
	}
}

func TestWeatherSignal(t *testing.T) {
	cases := []struct {
		name string
		day  *domain.WeatherDay
		want float64
	}{
		{"missing", nil, 0.5},
		{"severe", &domain.WeatherDay{BadWeatherScore: 0.8}, 0.3},
		{"extreme heat", &domain.WeatherDay{ExtremeHeat: true}, 0.3},
		{"moderate", &domain.WeatherDay{BadWeatherScore: 0.5}, 0.4},
		{"heavy rain", &domain.WeatherDay{BadWeatherScore: 0.2, Precipitation: 15}, 0.4},
		{"clear", &domain.WeatherDay{BadWeatherScore: 0.05}, 0.6},
		{"unremarkable", &domain.WeatherDay{BadWeatherScore: 0.3}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WeatherSignal(tc.day); !almostEqual(got, tc.want) {
				t.Fatalf("got %f, want %f", got, tc.want)
			}
		})
	}
}

func TestEventSignal(t *testing.T) {
	cases := []struct {
		name      string
		day       *domain.CalendarDay
		isWeekend bool
		want      float64
	}{
		{"missing weekday", nil, false, 0.5},
		{"missing weekend", nil, true, 0.6},
		{"holiday", &domain.CalendarDay{IsHoliday: true}, false, 0.9},
		{"holiday approaching", &domain.CalendarDay{DaysToHoliday: 2}, false, 0.75},
		{"distant holiday", &domain.CalendarDay{DaysToHoliday: 10}, false, 0.5},
		{"school break", &domain.CalendarDay{IsSchoolHoliday: true}, false, 0.7},
		{"calendar weekend", &domain.CalendarDay{IsWeekend: true}, false, 0.6},
		{"weekend flag only", &domain.CalendarDay{}, true, 0.6},
		{"plain weekday", &domain.CalendarDay{}, false, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EventSignal(tc.day, tc.isWeekend); !almostEqual(got, tc.want) {
				t.Fatalf("got %f, want %f", got, tc.want)
			}
		})
	}
}
