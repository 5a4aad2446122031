package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"

	"fleetpricer/internal/domain"
)

// ConfigRepository reads per-tenant pricing configuration: signal
// weights, guardrails, rate cards, and the entity scope a run covers.
type ConfigRepository struct {
	pool   pool
	tracer trace.Tracer
}

func NewConfigRepository(pool pool, tracer trace.Tracer) *ConfigRepository {
	return &ConfigRepository{pool: pool, tracer: tracer}
}

func (r *ConfigRepository) GetSignalWeights(ctx context.Context, tenantID int64) (*domain.SignalWeights, error) {
	ctx, span := r.tracer.Start(ctx, "config-repo.signal-weights")
	defer span.End()

	var w domain.SignalWeights
	err := r.pool.QueryRow(ctx, `
SELECT w_utilization, w_forecast, w_competitor, w_weather, w_holiday
FROM pricing_config
WHERE tenant_id = $1`, tenantID).Scan(
		&w.Utilization, &w.Forecast, &w.Competitor, &w.Weather, &w.Holiday)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetGuardrail resolves the most specific guardrail for the entity: a
// branch+category row beats a category-wide row. Returns nil when
// neither exists.
func (r *ConfigRepository) GetGuardrail(ctx context.Context, tenantID int64, key domain.EntityKey) (*domain.Guardrail, error) {
	ctx, span := r.tracer.Start(ctx, "config-repo.guardrail")
	defer span.End()

	var g domain.Guardrail
	err := r.pool.QueryRow(ctx, `
SELECT min_price, max_discount_pct, max_premium_pct
FROM pricing_guardrails
WHERE tenant_id = $1
  AND category_id = $2
  AND (branch_id = $3 OR branch_id IS NULL)
ORDER BY branch_id NULLS LAST
LIMIT 1`, tenantID, key.CategoryID, key.BranchID).Scan(
		&g.MinPrice, &g.MaxDiscountPct, &g.MaxPremiumPct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *ConfigRepository) GetBaseRates(ctx context.Context, tenantID int64, key domain.EntityKey) (*domain.BaseRates, error) {
	ctx, span := r.tracer.Start(ctx, "config-repo.base-rates")
	defer span.End()

	var rates domain.BaseRates
	err := r.pool.QueryRow(ctx, `
SELECT daily_rate, weekly_rate, monthly_rate
FROM base_rates
WHERE tenant_id = $1
  AND branch_id = $2
  AND category_id = $3`, tenantID, key.BranchID, key.CategoryID).Scan(
		&rates.Daily, &rates.Weekly, &rates.Monthly)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rates, nil
}

// EntityScope returns the branches and categories configured for the
// tenant's pricing runs. An unconfigured tenant falls back to every
// entity seen in the feature store.
func (r *ConfigRepository) EntityScope(ctx context.Context, tenantID int64) (domain.EntityScope, error) {
	ctx, span := r.tracer.Start(ctx, "config-repo.entity-scope")
	defer span.End()

	var scope domain.EntityScope
	err := r.pool.QueryRow(ctx, `
SELECT scope_branches, scope_categories
FROM pricing_config
WHERE tenant_id = $1`, tenantID).Scan(&scope.BranchIDs, &scope.CategoryIDs)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.EntityScope{}, err
	}
	if len(scope.BranchIDs) > 0 && len(scope.CategoryIDs) > 0 {
		return scope, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT branch_id, category_id
FROM demand_observations
WHERE tenant_id = $1
ORDER BY branch_id, category_id`, tenantID)
	if err != nil {
		return domain.EntityScope{}, err
	}
	defer rows.Close()

	branches := map[int64]struct{}{}
	categories := map[int64]struct{}{}
	for rows.Next() {
		var b, c int64
		if err := rows.Scan(&b, &c); err != nil {
			return domain.EntityScope{}, err
		}
		if _, ok := branches[b]; !ok {
			branches[b] = struct{}{}
			scope.BranchIDs = append(scope.BranchIDs, b)
		}
		if _, ok := categories[c]; !ok {
			categories[c] = struct{}{}
			scope.CategoryIDs = append(scope.CategoryIDs, c)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.EntityScope{}, err
	}
	sort.Slice(scope.CategoryIDs, func(i, j int) bool { return scope.CategoryIDs[i] < scope.CategoryIDs[j] })
	return scope, nil
}
