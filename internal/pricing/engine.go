package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"fleetpricer/internal/domain"
)

// ErrNoBasePrice marks an entity that cannot be priced because no rate
// card, pricing history, or category default resolves a daily price.
var ErrNoBasePrice = errors.New("no base price available")

// ForecastReader returns the persisted demand forecast per date for an
// entity, starting at from for the given number of days. Missing dates
// are simply absent from the map.
type ForecastReader interface {
	ForecastedDemand(ctx context.Context, tenantID int64, key domain.EntityKey, from time.Time, days int) (map[time.Time]float64, error)
}

// HistoryReader exposes the trailing aggregates the engine needs from
// the feature store.
type HistoryReader interface {
	TrailingAverageDemand(ctx context.Context, tenantID int64, key domain.EntityKey, asOf time.Time, days int) (float64, error)
	AverageDailyPrice(ctx context.Context, tenantID int64, key domain.EntityKey, asOf time.Time, days int) (*float64, error)
}

// UtilizationReader returns the current fleet snapshot for an entity,
// or nil when none is recorded.
type UtilizationReader interface {
	Utilization(ctx context.Context, tenantID int64, key domain.EntityKey) (*domain.UtilizationSnapshot, error)
}

// CompetitorReader returns competitor price indices per date.
type CompetitorReader interface {
	CompetitorIndices(ctx context.Context, tenantID int64, key domain.EntityKey, from time.Time, days int) (map[time.Time]*domain.CompetitorIndex, error)
}

// WeatherReader returns weather severity per date for a branch.
type WeatherReader interface {
	WeatherDays(ctx context.Context, tenantID, branchID int64, from time.Time, days int) (map[time.Time]*domain.WeatherDay, error)
}

// CalendarReader returns holiday/event metadata per date.
type CalendarReader interface {
	CalendarDays(ctx context.Context, tenantID int64, from time.Time, days int) (map[time.Time]*domain.CalendarDay, error)
}

// RecommendationWriter replaces every recommendation row for one
// entity under a run date in a single transaction.
type RecommendationWriter interface {
	ReplaceRecommendations(ctx context.Context, tenantID int64, runDate time.Time, key domain.EntityKey, recs []domain.PricingRecommendation) error
}

// Config tunes the pricing engine. Zero values take the defaults the
// decision math was calibrated with.
type Config struct {
	Days          int
	Workers       int
	PremiumScale  float64
	DiscountScale float64
	HighThreshold float64
	LowThreshold  float64
	TrailingDays  int
	WeekendDays   []time.Weekday
}

func (c *Config) applyDefaults() {
	if c.Days <= 0 {
		c.Days = 30
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PremiumScale <= 0 {
		c.PremiumScale = 80
	}
	if c.DiscountScale <= 0 {
		c.DiscountScale = 60
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = 0.7
	}
	if c.LowThreshold <= 0 {
		c.LowThreshold = 0.3
	}
	if c.TrailingDays <= 0 {
		c.TrailingDays = 30
	}
	if len(c.WeekendDays) == 0 {
		c.WeekendDays = []time.Weekday{time.Friday, time.Saturday}
	}
}

// Engine turns demand forecasts and market signals into bounded price
// recommendations.
type Engine struct {
	tracer      trace.Tracer
	log         zerolog.Logger
	config      *ConfigCache
	forecasts   ForecastReader
	history     HistoryReader
	utilization UtilizationReader
	competitors CompetitorReader
	weather     WeatherReader
	calendar    CalendarReader
	writer      RecommendationWriter
	cfg         Config
}

func NewEngine(
	tracer trace.Tracer,
	log zerolog.Logger,
	config *ConfigCache,
	forecasts ForecastReader,
	history HistoryReader,
	utilization UtilizationReader,
	competitors CompetitorReader,
	weather WeatherReader,
	calendar CalendarReader,
	writer RecommendationWriter,
	cfg Config,
) *Engine {
	cfg.applyDefaults()
	return &Engine{
		tracer:      tracer,
		log:         log,
		config:      config,
		forecasts:   forecasts,
		history:     history,
		utilization: utilization,
		competitors: competitors,
		weather:     weather,
		calendar:    calendar,
		writer:      writer,
		cfg:         cfg,
	}
}

// Summary reports a pricing run. Failed entities never abort the run;
// their errors are collected so a partial run is visible to callers.
type Summary struct {
	TenantID        int64
	RunDate         time.Time
	Entities        int
	Recommendations int
	GuardrailHits   int
	Failed          []domain.EntityError
}

// Run prices every entity in the scope concurrently and persists the
// results per entity. One entity's failure does not touch the others.
func (e *Engine) Run(ctx context.Context, tenantID int64, runDate time.Time, scope domain.EntityScope) (Summary, error) {
	ctx, span := e.tracer.Start(ctx, "pricing.run")
	defer span.End()

	entities := scope.Entities()
	summary := Summary{TenantID: tenantID, RunDate: runDate, Entities: len(entities)}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for _, key := range entities {
		key := key
		g.Go(func() error {
			recs, err := e.PriceEntity(ctx, tenantID, runDate, key)
			if err == nil {
				err = e.writer.ReplaceRecommendations(ctx, tenantID, runDate, key, recs)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed = append(summary.Failed, domain.EntityError{EntityKey: key, Err: err.Error()})
				e.log.Warn().Int64("branch_id", key.BranchID).Int64("category_id", key.CategoryID).Err(err).Msg("entity pricing failed")
				return nil
			}
			summary.Recommendations += len(recs)
			for _, rec := range recs {
				if rec.GuardrailApplied {
					summary.GuardrailHits++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	sort.Slice(summary.Failed, func(i, j int) bool {
		a, b := summary.Failed[i], summary.Failed[j]
		if a.BranchID != b.BranchID {
			return a.BranchID < b.BranchID
		}
		return a.CategoryID < b.CategoryID
	})
	e.log.Info().
		Int64("tenant_id", tenantID).
		Int("entities", summary.Entities).
		Int("recommendations", summary.Recommendations).
		Int("failed", len(summary.Failed)).
		Msg("pricing run complete")
	return summary, nil
}

// PriceEntity produces one recommendation per forecast day for a
// single entity. Missing signal inputs degrade that signal to neutral
// rather than failing the entity; only a missing base price fails it.
func (e *Engine) PriceEntity(ctx context.Context, tenantID int64, runDate time.Time, key domain.EntityKey) ([]domain.PricingRecommendation, error) {
	ctx, span := e.tracer.Start(ctx, "pricing.price-entity")
	defer span.End()

	weights := e.config.SignalWeights(ctx, tenantID)
	guardrail := e.config.Guardrail(ctx, tenantID, key)
	rates, err := e.resolveBaseRates(ctx, tenantID, runDate, key)
	if err != nil {
		return nil, err
	}

	snap := e.loadUtilization(ctx, tenantID, key)
	utilScore := UtilizationSignal(snap)

	trailingAvg, err := e.history.TrailingAverageDemand(ctx, tenantID, key, runDate, e.cfg.TrailingDays)
	if err != nil {
		e.log.Warn().Err(err).Msg("trailing demand unavailable")
		trailingAvg = 0
	}

	from := runDate.AddDate(0, 0, 1)
	forecasts := e.loadForecasts(ctx, tenantID, key, from)
	compIdx := e.loadCompetitors(ctx, tenantID, key, from)
	weather := e.loadWeather(ctx, tenantID, key.BranchID, from)
	calendar := e.loadCalendar(ctx, tenantID, from)

	recs := make([]domain.PricingRecommendation, 0, e.cfg.Days)
	for h := 1; h <= e.cfg.Days; h++ {
		date := runDate.AddDate(0, 0, h)

		forecastScore := Neutral
		if predicted, ok := forecasts[date]; ok {
			forecastScore = DemandForecastSignal(predicted, trailingAvg)
		}
		compScore := CompetitorSignal(rates.Daily, compIdx[date])
		weatherScore := WeatherSignal(weather[date])
		eventScore := EventSignal(calendar[date], e.isWeekend(date))

		weighted := weights.Utilization*utilScore +
			weights.Forecast*forecastScore +
			weights.Competitor*compScore +
			weights.Weather*weatherScore +
			weights.Holiday*eventScore

		raw := e.rawAdjustment(weighted)
		finalDaily, finalAdj, applied := guardrail.Clamp(rates.Daily, raw)

		recs = append(recs, domain.PricingRecommendation{
			EntityKey:    key,
			ForecastDate: date,
			HorizonDay:   h,

			BaseDaily:   rates.Daily,
			BaseWeekly:  rates.Weekly,
			BaseMonthly: rates.Monthly,

			RecDaily:   finalDaily,
			RecWeekly:  adjustedRate(rates.Weekly, finalAdj),
			RecMonthly: adjustedRate(rates.Monthly, finalAdj),

			RawAdjustmentPct:   math.Round(raw*10000) / 10000,
			FinalAdjustmentPct: finalAdj,

			UtilizationSignal: utilScore,
			ForecastSignal:    forecastScore,
			CompetitorSignal:  compScore,
			WeatherSignal:     weatherScore,
			HolidaySignal:     eventScore,

			GuardrailApplied: applied,
			Guardrail:        guardrail,

			Explanation: e.explain(utilScore, forecastScore, compScore, weatherScore, eventScore, raw, finalAdj, applied),
			Status:      domain.StatusPending,
		})
	}
	return recs, nil
}

// rawAdjustment maps the weighted score to a percentage. Premiums
// scale steeper than discounts so undersupply reacts faster than
// oversupply.
func (e *Engine) rawAdjustment(weighted float64) float64 {
	if weighted >= 0.5 {
		return (weighted - 0.5) * e.cfg.PremiumScale
	}
	return (weighted - 0.5) * e.cfg.DiscountScale
}

func (e *Engine) resolveBaseRates(ctx context.Context, tenantID int64, runDate time.Time, key domain.EntityKey) (domain.BaseRates, error) {
	if rates := e.config.BaseRates(ctx, tenantID, key); rates != nil && rates.Daily > 0 {
		out := *rates
		if out.Weekly <= 0 {
			out.Weekly = out.Daily * 6
		}
		if out.Monthly <= 0 {
			out.Monthly = out.Daily * 25
		}
		return out, nil
	}

	avg, err := e.history.AverageDailyPrice(ctx, tenantID, key, runDate, e.cfg.TrailingDays)
	if err != nil {
		e.log.Warn().Err(err).Msg("historical price lookup failed")
	}
	if avg != nil && *avg > 0 {
		return domain.BaseRates{Daily: *avg, Weekly: *avg * 6, Monthly: *avg * 25}, nil
	}

	daily, ok := domain.DefaultBasePrices()[key.CategoryID]
	if !ok {
		daily = domain.FallbackBasePrice
	}
	if daily <= 0 {
		return domain.BaseRates{}, fmt.Errorf("%w: branch %d category %d", ErrNoBasePrice, key.BranchID, key.CategoryID)
	}
	return domain.BaseRates{Daily: daily, Weekly: daily * 6, Monthly: daily * 25}, nil
}

func (e *Engine) loadUtilization(ctx context.Context, tenantID int64, key domain.EntityKey) *domain.UtilizationSnapshot {
	snap, err := e.utilization.Utilization(ctx, tenantID, key)
	if err != nil {
		e.log.Warn().Err(err).Msg("utilization unavailable")
		return nil
	}
	return snap
}

func (e *Engine) loadForecasts(ctx context.Context, tenantID int64, key domain.EntityKey, from time.Time) map[time.Time]float64 {
	out, err := e.forecasts.ForecastedDemand(ctx, tenantID, key, from, e.cfg.Days)
	if err != nil {
		e.log.Warn().Err(err).Msg("demand forecast unavailable")
		return nil
	}
	return out
}

func (e *Engine) loadCompetitors(ctx context.Context, tenantID int64, key domain.EntityKey, from time.Time) map[time.Time]*domain.CompetitorIndex {
	out, err := e.competitors.CompetitorIndices(ctx, tenantID, key, from, e.cfg.Days)
	if err != nil {
		e.log.Warn().Err(err).Msg("competitor index unavailable")
		return nil
	}
	return out
}

func (e *Engine) loadWeather(ctx context.Context, tenantID, branchID int64, from time.Time) map[time.Time]*domain.WeatherDay {
	out, err := e.weather.WeatherDays(ctx, tenantID, branchID, from, e.cfg.Days)
	if err != nil {
		e.log.Warn().Err(err).Msg("weather unavailable")
		return nil
	}
	return out
}

func (e *Engine) loadCalendar(ctx context.Context, tenantID int64, from time.Time) map[time.Time]*domain.CalendarDay {
	out, err := e.calendar.CalendarDays(ctx, tenantID, from, e.cfg.Days)
	if err != nil {
		e.log.Warn().Err(err).Msg("calendar unavailable")
		return nil
	}
	return out
}

func (e *Engine) isWeekend(date time.Time) bool {
	for _, wd := range e.cfg.WeekendDays {
		if date.Weekday() == wd {
			return true
		}
	}
	return false
}

// adjustedRate applies the final adjustment to a weekly or monthly
// base rate.
func adjustedRate(base, adjustmentPct float64) float64 {
	return math.Round(base*(1+adjustmentPct/100)*100) / 100
}

// explain builds the human-readable rationale: one clause per notable
// signal, joined in signal order, with a guardrail suffix when the raw
// adjustment was clamped.
func (e *Engine) explain(util, forecast, comp, weather, event, rawAdj, finalAdj float64, guardrailApplied bool) string {
	var factors []string

	if util >= e.cfg.HighThreshold {
		factors = append(factors, "High utilization (+)")
	} else if util <= e.cfg.LowThreshold {
		factors = append(factors, "Low utilization (-)")
	}
	if forecast >= e.cfg.HighThreshold {
		factors = append(factors, "High forecast demand (+)")
	} else if forecast <= e.cfg.LowThreshold {
		factors = append(factors, "Low forecast demand (-)")
	}
	if comp >= e.cfg.HighThreshold {
		factors = append(factors, "Competitors priced higher (+)")
	} else if comp <= e.cfg.LowThreshold {
		factors = append(factors, "Competitors priced lower (-)")
	}
	if weather <= e.cfg.LowThreshold {
		factors = append(factors, "Bad weather expected (-)")
	} else if weather >= e.cfg.HighThreshold {
		factors = append(factors, "Good weather expected (+)")
	}
	if event >= e.cfg.HighThreshold {
		factors = append(factors, "Holiday/weekend period (+)")
	}

	if len(factors) == 0 {
		factors = append(factors, "Normal conditions")
	}
	explanation := strings.Join(factors, ". ")
	if guardrailApplied {
		explanation += fmt.Sprintf(". Adjusted within guardrails (raw: %.1f%% -> final: %.1f%%)", rawAdj, finalAdj)
	}
	return explanation
}
