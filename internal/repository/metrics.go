package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"

	"fleetpricer/internal/domain"
)

// MetricsRepository records backtest evaluations and which model each
// run selected.
type MetricsRepository struct {
	pool   pool
	tracer trace.Tracer
}

func NewMetricsRepository(pool pool, tracer trace.Tracer) *MetricsRepository {
	return &MetricsRepository{pool: pool, tracer: tracer}
}

func (r *MetricsRepository) InsertEvaluations(ctx context.Context, rows []domain.ModelEvaluation) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, span := r.tracer.Start(ctx, "metrics-repo.insert-evaluations")
	defer span.End()

	for _, row := range rows {
		_, err := r.pool.Exec(ctx, `
INSERT INTO model_evaluations (
    tenant_id, model_name, model_version, evaluation_date,
    mae, mape, smape, rmse, is_best_model,
    training_samples, validation_samples, training_seconds, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
ON CONFLICT (tenant_id, model_name, model_version, evaluation_date) DO UPDATE SET
    mae = EXCLUDED.mae,
    mape = EXCLUDED.mape,
    smape = EXCLUDED.smape,
    rmse = EXCLUDED.rmse,
    is_best_model = EXCLUDED.is_best_model,
    training_samples = EXCLUDED.training_samples,
    validation_samples = EXCLUDED.validation_samples,
    training_seconds = EXCLUDED.training_seconds`,
			row.TenantID, row.ModelName, row.ModelVersion, row.EvaluationDate.UTC(),
			row.Metrics.MAE, row.Metrics.MAPE, row.Metrics.SMAPE, row.Metrics.RMSE,
			row.IsBestModel, row.TrainingSamples, row.ValidationSamples, row.TrainingSeconds,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *MetricsRepository) InsertBestModel(ctx context.Context, tenantID int64, modelName, metric string, value float64, date time.Time) error {
	ctx, span := r.tracer.Start(ctx, "metrics-repo.insert-best-model")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
INSERT INTO model_selections (tenant_id, selected_on, model_name, metric, metric_value, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (tenant_id, selected_on) DO UPDATE SET
    model_name = EXCLUDED.model_name,
    metric = EXCLUDED.metric,
    metric_value = EXCLUDED.metric_value`,
		tenantID, date.UTC(), modelName, metric, value)
	return err
}

// BestModel returns the model name most recently selected for the
// tenant, or empty when no selection exists.
func (r *MetricsRepository) BestModel(ctx context.Context, tenantID int64) (string, error) {
	ctx, span := r.tracer.Start(ctx, "metrics-repo.best-model")
	defer span.End()

	var name string
	err := r.pool.QueryRow(ctx, `
SELECT model_name
FROM model_selections
WHERE tenant_id = $1
ORDER BY selected_on DESC
LIMIT 1`, tenantID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}
