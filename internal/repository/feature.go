package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"fleetpricer/internal/domain"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// FeatureRepository reads the demand feature store: daily observations
// with their chronological split labels, plus the trailing aggregates
// and utilization snapshots the pricing engine consumes.
type FeatureRepository struct {
	pool   pool
	tracer trace.Tracer
}

func NewFeatureRepository(pool pool, tracer trace.Tracer) *FeatureRepository {
	return &FeatureRepository{pool: pool, tracer: tracer}
}

func (r *FeatureRepository) ListObservations(ctx context.Context, tenantID int64, split string) ([]domain.Observation, error) {
	ctx, span := r.tracer.Start(ctx, "feature-repo.list-observations")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT branch_id, category_id, obs_date, rental_count,
       lag_1d, lag_7d, rolling_7d_avg, rolling_30d_avg,
       temperature_avg, precipitation, event_score, has_major_event,
       public_holiday, school_holiday, avg_price_paid
FROM demand_observations
WHERE tenant_id = $1
  AND split = $2
ORDER BY obs_date ASC, branch_id ASC, category_id ASC`, tenantID, split)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Observation, 0)
	for rows.Next() {
		var obs domain.Observation
		if err := rows.Scan(
			&obs.BranchID,
			&obs.CategoryID,
			&obs.Date,
			&obs.Count,
			&obs.Lag1D,
			&obs.Lag7D,
			&obs.Rolling7DAvg,
			&obs.Rolling30DAvg,
			&obs.TemperatureAvg,
			&obs.Precipitation,
			&obs.EventScore,
			&obs.HasMajorEvent,
			&obs.PublicHoliday,
			&obs.SchoolHoliday,
			&obs.AvgPricePaid,
		); err != nil {
			return nil, err
		}
		obs.Date = obs.Date.UTC()
		result = append(result, obs)
	}
	return result, rows.Err()
}

func (r *FeatureRepository) TrailingAverageDemand(ctx context.Context, tenantID int64, key domain.EntityKey, asOf time.Time, days int) (float64, error) {
	ctx, span := r.tracer.Start(ctx, "feature-repo.trailing-demand")
	defer span.End()

	var avg *float64
	err := r.pool.QueryRow(ctx, `
SELECT AVG(rental_count)
FROM demand_observations
WHERE tenant_id = $1
  AND branch_id = $2
  AND category_id = $3
  AND obs_date >= $4
  AND obs_date < $5`,
		tenantID, key.BranchID, key.CategoryID,
		asOf.AddDate(0, 0, -days).UTC(), asOf.UTC(),
	).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

func (r *FeatureRepository) AverageDailyPrice(ctx context.Context, tenantID int64, key domain.EntityKey, asOf time.Time, days int) (*float64, error) {
	ctx, span := r.tracer.Start(ctx, "feature-repo.average-price")
	defer span.End()

	var avg *float64
	err := r.pool.QueryRow(ctx, `
SELECT AVG(avg_price_paid)
FROM demand_observations
WHERE tenant_id = $1
  AND branch_id = $2
  AND category_id = $3
  AND obs_date >= $4
  AND obs_date < $5
  AND avg_price_paid IS NOT NULL`,
		tenantID, key.BranchID, key.CategoryID,
		asOf.AddDate(0, 0, -days).UTC(), asOf.UTC(),
	).Scan(&avg)
	if err != nil {
		return nil, err
	}
	return avg, nil
}

// Utilization returns the latest recorded snapshot for the entity, or
// nil when none exists.
func (r *FeatureRepository) Utilization(ctx context.Context, tenantID int64, key domain.EntityKey) (*domain.UtilizationSnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "feature-repo.utilization")
	defer span.End()

	var snap domain.UtilizationSnapshot
	err := r.pool.QueryRow(ctx, `
SELECT rented, available
FROM utilization_snapshots
WHERE tenant_id = $1
  AND branch_id = $2
  AND category_id = $3
ORDER BY recorded_at DESC
LIMIT 1`, tenantID, key.BranchID, key.CategoryID).Scan(&snap.Rented, &snap.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
