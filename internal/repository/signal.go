package repository

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"fleetpricer/internal/domain"
)

// SignalRepository reads the externally maintained market signal
// tables: competitor price indices, weather severity, and the event
// calendar. Acquisition of this data happens outside this service.
type SignalRepository struct {
	pool   pool
	tracer trace.Tracer
}

func NewSignalRepository(pool pool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

func (r *SignalRepository) CompetitorIndices(ctx context.Context, tenantID int64, key domain.EntityKey, from time.Time, days int) (map[time.Time]*domain.CompetitorIndex, error) {
	ctx, span := r.tracer.Start(ctx, "signal-repo.competitor-indices")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT price_date, avg_price, min_price, max_price
FROM competitor_prices
WHERE tenant_id = $1
  AND branch_id = $2
  AND category_id = $3
  AND price_date >= $4
  AND price_date < $5`,
		tenantID, key.BranchID, key.CategoryID,
		from.UTC(), from.AddDate(0, 0, days).UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[time.Time]*domain.CompetitorIndex)
	for rows.Next() {
		var date time.Time
		var idx domain.CompetitorIndex
		if err := rows.Scan(&date, &idx.AvgPrice, &idx.MinPrice, &idx.MaxPrice); err != nil {
			return nil, err
		}
		result[date.UTC()] = &idx
	}
	return result, rows.Err()
}

func (r *SignalRepository) WeatherDays(ctx context.Context, tenantID, branchID int64, from time.Time, days int) (map[time.Time]*domain.WeatherDay, error) {
	ctx, span := r.tracer.Start(ctx, "signal-repo.weather-days")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT weather_date, bad_weather_score, extreme_heat, precipitation
FROM weather_daily
WHERE tenant_id = $1
  AND branch_id = $2
  AND weather_date >= $3
  AND weather_date < $4`,
		tenantID, branchID, from.UTC(), from.AddDate(0, 0, days).UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[time.Time]*domain.WeatherDay)
	for rows.Next() {
		var date time.Time
		var day domain.WeatherDay
		if err := rows.Scan(&date, &day.BadWeatherScore, &day.ExtremeHeat, &day.Precipitation); err != nil {
			return nil, err
		}
		result[date.UTC()] = &day
	}
	return result, rows.Err()
}

func (r *SignalRepository) CalendarDays(ctx context.Context, tenantID int64, from time.Time, days int) (map[time.Time]*domain.CalendarDay, error) {
	ctx, span := r.tracer.Start(ctx, "signal-repo.calendar-days")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT cal_date, is_holiday, is_school_holiday, days_to_holiday, is_weekend
FROM calendar_days
WHERE tenant_id = $1
  AND cal_date >= $2
  AND cal_date < $3`,
		tenantID, from.UTC(), from.AddDate(0, 0, days).UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[time.Time]*domain.CalendarDay)
	for rows.Next() {
		var date time.Time
		var day domain.CalendarDay
		if err := rows.Scan(&date, &day.IsHoliday, &day.IsSchoolHoliday, &day.DaysToHoliday, &day.IsWeekend); err != nil {
			return nil, err
		}
		result[date.UTC()] = &day
	}
	return result, rows.Err()
}
