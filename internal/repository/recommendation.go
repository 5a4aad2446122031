package repository

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"fleetpricer/internal/domain"
)

// ErrRecommendationNotFound is returned when an approval targets a
// recommendation id that does not exist or is no longer pending.
var ErrRecommendationNotFound = errors.New("recommendation not found or not pending")

// RecommendationRepository persists pricing recommendations and runs
// the approval workflow over them.
type RecommendationRepository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRecommendationRepository(pool pool, tracer trace.Tracer) *RecommendationRepository {
	return &RecommendationRepository{pool: pool, tracer: tracer}
}

// ReplaceRecommendations deletes the entity's rows for the run date
// and inserts the new set in one transaction.
func (r *RecommendationRepository) ReplaceRecommendations(ctx context.Context, tenantID int64, runDate time.Time, key domain.EntityKey, recs []domain.PricingRecommendation) error {
	ctx, span := r.tracer.Start(ctx, "recommendation-repo.replace")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
DELETE FROM pricing_recommendations
WHERE tenant_id = $1
  AND run_date = $2
  AND branch_id = $3
  AND category_id = $4`,
		tenantID, runDate.UTC(), key.BranchID, key.CategoryID); err != nil {
		return err
	}

	for _, rec := range recs {
		if _, err := tx.Exec(ctx, `
INSERT INTO pricing_recommendations (
    tenant_id, run_date, branch_id, category_id, forecast_date, horizon_day,
    base_daily, base_weekly, base_monthly,
    rec_daily, rec_weekly, rec_monthly,
    raw_adjustment_pct, final_adjustment_pct,
    sig_utilization, sig_forecast, sig_competitor, sig_weather, sig_holiday,
    guardrail_applied, guardrail_min_price, guardrail_max_discount_pct, guardrail_max_premium_pct,
    explanation, status, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9,
    $10, $11, $12,
    $13, $14,
    $15, $16, $17, $18, $19,
    $20, $21, $22, $23,
    $24, $25, NOW()
)`,
			tenantID, runDate.UTC(), rec.BranchID, rec.CategoryID, rec.ForecastDate.UTC(), rec.HorizonDay,
			rec.BaseDaily, rec.BaseWeekly, rec.BaseMonthly,
			rec.RecDaily, rec.RecWeekly, rec.RecMonthly,
			rec.RawAdjustmentPct, rec.FinalAdjustmentPct,
			rec.UtilizationSignal, rec.ForecastSignal, rec.CompetitorSignal, rec.WeatherSignal, rec.HolidaySignal,
			rec.GuardrailApplied, rec.Guardrail.MinPrice, rec.Guardrail.MaxDiscountPct, rec.Guardrail.MaxPremiumPct,
			rec.Explanation, rec.Status,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Approve marks one pending recommendation approved.
func (r *RecommendationRepository) Approve(ctx context.Context, tenantID, recommendationID int64, approvedBy string) error {
	return r.setStatus(ctx, tenantID, recommendationID, domain.StatusApproved, approvedBy)
}

// Skip marks one pending recommendation skipped so it is never
// applied.
func (r *RecommendationRepository) Skip(ctx context.Context, tenantID, recommendationID int64, skippedBy string) error {
	return r.setStatus(ctx, tenantID, recommendationID, domain.StatusSkipped, skippedBy)
}

func (r *RecommendationRepository) setStatus(ctx context.Context, tenantID, recommendationID int64, status, actor string) error {
	ctx, span := r.tracer.Start(ctx, "recommendation-repo.set-status")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
UPDATE pricing_recommendations
SET status = $1, approved_by = $2, approved_at = NOW()
WHERE tenant_id = $3
  AND id = $4
  AND status = $5`,
		status, actor, tenantID, recommendationID, domain.StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecommendationNotFound
	}
	return nil
}

// BulkApprove approves every pending recommendation for a run date and
// returns how many rows changed.
func (r *RecommendationRepository) BulkApprove(ctx context.Context, tenantID int64, runDate time.Time, approvedBy string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "recommendation-repo.bulk-approve")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
UPDATE pricing_recommendations
SET status = $1, approved_by = $2, approved_at = NOW()
WHERE tenant_id = $3
  AND run_date = $4
  AND status = $5`,
		domain.StatusApproved, approvedBy, tenantID, runDate.UTC(), domain.StatusPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListPending returns the pending recommendations for a run date in
// entity and horizon order.
func (r *RecommendationRepository) ListPending(ctx context.Context, tenantID int64, runDate time.Time) ([]domain.PricingRecommendation, error) {
	ctx, span := r.tracer.Start(ctx, "recommendation-repo.list-pending")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT branch_id, category_id, forecast_date, horizon_day,
       base_daily, base_weekly, base_monthly,
       rec_daily, rec_weekly, rec_monthly,
       raw_adjustment_pct, final_adjustment_pct,
       sig_utilization, sig_forecast, sig_competitor, sig_weather, sig_holiday,
       guardrail_applied, guardrail_min_price, guardrail_max_discount_pct, guardrail_max_premium_pct,
       explanation, status, approved_by, approved_at
FROM pricing_recommendations
WHERE tenant_id = $1
  AND run_date = $2
  AND status = $3
ORDER BY branch_id, category_id, horizon_day`,
		tenantID, runDate.UTC(), domain.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PricingRecommendation, 0)
	for rows.Next() {
		var rec domain.PricingRecommendation
		if err := rows.Scan(
			&rec.BranchID, &rec.CategoryID, &rec.ForecastDate, &rec.HorizonDay,
			&rec.BaseDaily, &rec.BaseWeekly, &rec.BaseMonthly,
			&rec.RecDaily, &rec.RecWeekly, &rec.RecMonthly,
			&rec.RawAdjustmentPct, &rec.FinalAdjustmentPct,
			&rec.UtilizationSignal, &rec.ForecastSignal, &rec.CompetitorSignal, &rec.WeatherSignal, &rec.HolidaySignal,
			&rec.GuardrailApplied, &rec.Guardrail.MinPrice, &rec.Guardrail.MaxDiscountPct, &rec.Guardrail.MaxPremiumPct,
			&rec.Explanation, &rec.Status, &rec.ApprovedBy, &rec.ApprovedAt,
		); err != nil {
			return nil, err
		}
		rec.ForecastDate = rec.ForecastDate.UTC()
		result = append(result, rec)
	}
	return result, rows.Err()
}
