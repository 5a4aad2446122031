package repository

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"fleetpricer/internal/domain"
)

// ForecastRepository persists generated demand forecasts and serves
// them back to the pricing engine.
type ForecastRepository struct {
	pool   pool
	tracer trace.Tracer
}

func NewForecastRepository(pool pool, tracer trace.Tracer) *ForecastRepository {
	return &ForecastRepository{pool: pool, tracer: tracer}
}

// ReplaceForecasts deletes the tenant's rows for the run date and
// inserts the new set in one transaction, so a rerun fully supersedes
// the prior run.
func (r *ForecastRepository) ReplaceForecasts(ctx context.Context, tenantID int64, runDate time.Time, modelName, modelVersion string, points []domain.ForecastPoint) error {
	ctx, span := r.tracer.Start(ctx, "forecast-repo.replace")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
DELETE FROM demand_forecasts
WHERE tenant_id = $1 AND run_date = $2`, tenantID, runDate.UTC()); err != nil {
		return err
	}

	for _, p := range points {
		if _, err := tx.Exec(ctx, `
INSERT INTO demand_forecasts (
    tenant_id, run_date, branch_id, category_id,
    forecast_date, horizon_day, demand,
    lower_bound, upper_bound, model_name, model_version, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`,
			tenantID, runDate.UTC(), p.BranchID, p.CategoryID,
			p.ForecastDate.UTC(), p.HorizonDay, p.Demand,
			p.LowerBound, p.UpperBound, modelName, modelVersion,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ForecastedDemand returns the most recent run's forecast per date for
// an entity, keyed by forecast date.
func (r *ForecastRepository) ForecastedDemand(ctx context.Context, tenantID int64, key domain.EntityKey, from time.Time, days int) (map[time.Time]float64, error) {
	ctx, span := r.tracer.Start(ctx, "forecast-repo.demand")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT forecast_date, demand
FROM demand_forecasts
WHERE tenant_id = $1
  AND branch_id = $2
  AND category_id = $3
  AND forecast_date >= $4
  AND forecast_date < $5
  AND run_date = (
      SELECT MAX(run_date) FROM demand_forecasts WHERE tenant_id = $1
  )`,
		tenantID, key.BranchID, key.CategoryID,
		from.UTC(), from.AddDate(0, 0, days).UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[time.Time]float64)
	for rows.Next() {
		var date time.Time
		var demand float64
		if err := rows.Scan(&date, &demand); err != nil {
			return nil, err
		}
		result[date.UTC()] = demand
	}
	return result, rows.Err()
}
