package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"fleetpricer/internal/domain"
	"fleetpricer/internal/forecast"
)

// HistoryStore reads chronologically ordered observation splits from
// the feature store.
type HistoryStore interface {
	ListObservations(ctx context.Context, tenantID int64, split string) ([]domain.Observation, error)
}

// ForecastWriter replaces every forecast row for a tenant's run date
// in one atomic unit.
type ForecastWriter interface {
	ReplaceForecasts(ctx context.Context, tenantID int64, runDate time.Time, modelName, modelVersion string, points []domain.ForecastPoint) error
}

// MetricsWriter persists backtest results and the selection outcome.
type MetricsWriter interface {
	InsertEvaluations(ctx context.Context, rows []domain.ModelEvaluation) error
	InsertBestModel(ctx context.Context, tenantID int64, modelName, metric string, value float64, date time.Time) error
}

var (
	// ErrNoData aborts a run when the TRAIN split is empty.
	ErrNoData = errors.New("no training data available")
	// ErrNoModelAvailable aborts a run when every variant failed to train.
	ErrNoModelAvailable = errors.New("no model variant trained successfully")
)

// State tracks a run through its one-directional lifecycle. A failed
// transition leaves the run in its prior state; nothing is persisted
// before Save.
type State int

const (
	StateIdle State = iota
	StateDataLoaded
	StateModelsTrained
	StateBacktested
	StateModelSelected
	StateForecastsGenerated
	StateSaved
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateDataLoaded:         "data_loaded",
	StateModelsTrained:      "models_trained",
	StateBacktested:         "backtested",
	StateModelSelected:      "model_selected",
	StateForecastsGenerated: "forecasts_generated",
	StateSaved:              "saved",
}

func (s State) String() string { return stateNames[s] }

const modelVersion = "1.0"

// Config tunes one training service instance.
type Config struct {
	Horizon        int
	SeasonalPeriod int
	Boost          forecast.BoostOptions
	Sequence       forecast.SequenceOptions
	ScreenOutliers bool
}

// Service trains all forecast variants, backtests them against the
// validation split, selects the best by MAE, and persists forecasts.
type Service struct {
	tracer    trace.Tracer
	log       zerolog.Logger
	history   HistoryStore
	forecasts ForecastWriter
	metrics   MetricsWriter
	cfg       Config
}

func NewService(tracer trace.Tracer, log zerolog.Logger, history HistoryStore, forecasts ForecastWriter, metrics MetricsWriter, cfg Config) *Service {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 30
	}
	if cfg.SeasonalPeriod <= 0 {
		cfg.SeasonalPeriod = 7
	}
	return &Service{
		tracer:    tracer,
		log:       log,
		history:   history,
		forecasts: forecasts,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// VariantError records a variant excluded from selection and why.
type VariantError struct {
	Variant forecast.Variant
	Err     string
}

// Summary reports what a run did, including per-variant exclusions, so
// callers can tell full from partial success.
type Summary struct {
	TenantID          int64
	RunDate           time.Time
	TrainSamples      int
	ValidationSamples int
	TrainedVariants   []string
	Excluded          []VariantError
	Metrics           map[string]domain.ModelMetrics
	BestModel         string
	ForecastsSaved    int
}

// Run is one training run moving through the state machine. Each
// transition is a single method call.
type Run struct {
	svc      *Service
	state    State
	tenantID int64
	runDate  time.Time

	trainObs []domain.Observation
	valObs   []domain.Observation

	models    map[forecast.Variant]forecast.Model
	trainSecs map[forecast.Variant]float64
	excluded  []VariantError
	metrics   map[forecast.Variant]domain.ModelMetrics
	best      forecast.Variant
	hasBest   bool
	points    []domain.ForecastPoint
}

func (s *Service) NewRun(tenantID int64, runDate time.Time) *Run {
	return &Run{
		svc:       s,
		state:     StateIdle,
		tenantID:  tenantID,
		runDate:   runDate,
		models:    map[forecast.Variant]forecast.Model{},
		trainSecs: map[forecast.Variant]float64{},
		metrics:   map[forecast.Variant]domain.ModelMetrics{},
	}
}

func (r *Run) State() State { return r.state }

func (r *Run) requireState(want State) error {
	if r.state != want {
		return fmt.Errorf("invalid transition: run is %s, expected %s", r.state, want)
	}
	return nil
}

// LoadData pulls the TRAIN and VALIDATION splits.
func (r *Run) LoadData(ctx context.Context) error {
	if err := r.requireState(StateIdle); err != nil {
		return err
	}
	ctx, span := r.svc.tracer.Start(ctx, "training.load-data")
	defer span.End()

	trainObs, err := r.svc.history.ListObservations(ctx, r.tenantID, domain.SplitTrain)
	if err != nil {
		return fmt.Errorf("load train split: %w", err)
	}
	if len(trainObs) == 0 {
		return ErrNoData
	}
	valObs, err := r.svc.history.ListObservations(ctx, r.tenantID, domain.SplitValidation)
	if err != nil {
		return fmt.Errorf("load validation split: %w", err)
	}

	r.trainObs = trainObs
	r.valObs = valObs
	r.state = StateDataLoaded
	r.svc.log.Info().
		Int64("tenant_id", r.tenantID).
		Int("train_rows", len(trainObs)).
		Int("validation_rows", len(valObs)).
		Msg("training data loaded")
	return nil
}

func (r *Run) newModel(v forecast.Variant) forecast.Model {
	switch v {
	case forecast.VariantSeasonalNaive:
		return forecast.NewSeasonalNaive(r.svc.cfg.SeasonalPeriod)
	case forecast.VariantETS:
		return forecast.NewETS(r.svc.cfg.SeasonalPeriod)
	case forecast.VariantBoost:
		return forecast.NewBoost(r.svc.cfg.Boost)
	default:
		return forecast.NewSequence(r.svc.cfg.Sequence)
	}
}

// TrainModels fits every variant. A variant's failure excludes it from
// selection but does not abort the run; all failing is fatal.
func (r *Run) TrainModels(ctx context.Context) error {
	if err := r.requireState(StateDataLoaded); err != nil {
		return err
	}
	_, span := r.svc.tracer.Start(ctx, "training.train-models")
	defer span.End()

	aggregate := forecast.AggregateByDate(r.trainObs)
	if r.svc.cfg.ScreenOutliers {
		aggregate = forecast.ScreenOutliers(aggregate)
	}

	for _, v := range forecast.Variants() {
		series := r.trainObs
		if !v.PerEntity() {
			series = aggregate
		}

		model := r.newModel(v)
		started := time.Now()
		if err := model.Fit(series); err != nil {
			r.excluded = append(r.excluded, VariantError{Variant: v, Err: err.Error()})
			r.svc.log.Warn().Str("model", v.String()).Err(err).Msg("variant excluded from training")
			continue
		}
		r.models[v] = model
		r.trainSecs[v] = time.Since(started).Seconds()
		r.svc.log.Info().Str("model", v.String()).Float64("seconds", r.trainSecs[v]).Msg("variant trained")
	}

	if len(r.models) == 0 {
		return ErrNoModelAvailable
	}
	r.state = StateModelsTrained
	return nil
}

// Backtest compares every trained variant's horizon forecast against
// the aggregated validation series.
func (r *Run) Backtest(ctx context.Context) error {
	if err := r.requireState(StateModelsTrained); err != nil {
		return err
	}
	_, span := r.svc.tracer.Start(ctx, "training.backtest")
	defer span.End()

	valAgg := forecast.AggregateByDate(r.valObs)
	actual := forecast.Counts(valAgg)
	if len(actual) > r.svc.cfg.Horizon {
		actual = actual[:r.svc.cfg.Horizon]
	}

	for _, v := range forecast.Variants() {
		model, ok := r.models[v]
		if !ok {
			continue
		}
		predicted, err := r.backtestPrediction(model)
		if err != nil {
			delete(r.models, v)
			r.excluded = append(r.excluded, VariantError{Variant: v, Err: err.Error()})
			r.svc.log.Warn().Str("model", v.String()).Err(err).Msg("variant excluded at backtest")
			continue
		}

		n := len(actual)
		if len(predicted) < n {
			n = len(predicted)
		}
		if n == 0 {
			delete(r.models, v)
			r.excluded = append(r.excluded, VariantError{Variant: v, Err: "empty backtest window"})
			continue
		}
		metrics, err := forecast.Evaluate(actual[:n], predicted[:n])
		if err != nil {
			delete(r.models, v)
			r.excluded = append(r.excluded, VariantError{Variant: v, Err: err.Error()})
			continue
		}
		r.metrics[v] = metrics
		r.svc.log.Info().Str("model", v.String()).Float64("mae", metrics.MAE).Float64("rmse", metrics.RMSE).Msg("backtest complete")
	}

	if len(r.models) == 0 {
		return ErrNoModelAvailable
	}
	r.state = StateBacktested
	return nil
}

func (r *Run) backtestPrediction(model forecast.Model) ([]float64, error) {
	points, err := model.Predict(r.svc.cfg.Horizon, r.trainObs)
	if err != nil {
		return nil, err
	}
	if !model.Variant().PerEntity() {
		out := make([]float64, len(points))
		for i, p := range points {
			out[i] = p.Demand
		}
		return out, nil
	}

	// Per-entity forecasts are summed by date before comparison.
	byDate := map[time.Time]float64{}
	for _, p := range points {
		byDate[p.ForecastDate] = byDate[p.ForecastDate] + p.Demand
	}
	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = byDate[d]
	}
	return out, nil
}

// SelectModel picks the variant with the lowest MAE; ties resolve to
// the earliest-registered variant.
func (r *Run) SelectModel(ctx context.Context) error {
	if err := r.requireState(StateBacktested); err != nil {
		return err
	}
	_, span := r.svc.tracer.Start(ctx, "training.select-model")
	defer span.End()

	bestMAE := math.Inf(1)
	for _, v := range forecast.Variants() {
		metrics, ok := r.metrics[v]
		if !ok {
			continue
		}
		if metrics.MAE < bestMAE {
			bestMAE = metrics.MAE
			r.best = v
			r.hasBest = true
		}
	}
	if !r.hasBest {
		return ErrNoModelAvailable
	}

	r.state = StateModelSelected
	r.svc.log.Info().Str("model", r.best.String()).Float64("mae", bestMAE).Msg("best model selected")
	return nil
}

// GenerateForecasts runs the selected model over TRAIN+VALIDATION for
// the configured horizon. Aggregate models have their output
// distributed across entities by historical mean share.
func (r *Run) GenerateForecasts(ctx context.Context) error {
	if err := r.requireState(StateModelSelected); err != nil {
		return err
	}
	_, span := r.svc.tracer.Start(ctx, "training.generate-forecasts")
	defer span.End()

	history := append(append([]domain.Observation(nil), r.trainObs...), r.valObs...)
	sort.Slice(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })

	model := r.models[r.best]
	points, err := model.Predict(r.svc.cfg.Horizon, history)
	if err != nil {
		return fmt.Errorf("generate forecasts with %s: %w", r.best, err)
	}

	if !r.best.PerEntity() {
		points = distributeByMeanShare(points, history)
	}
	r.points = points
	r.state = StateForecastsGenerated
	return nil
}

// Save persists metrics and the forecast rows. Forecast persistence is
// a full-replace upsert for (tenant, run_date); nothing earlier in the
// run has touched storage, so an abort before this point leaves prior
// persisted state intact.
func (r *Run) Save(ctx context.Context) error {
	if err := r.requireState(StateForecastsGenerated); err != nil {
		return err
	}
	ctx, span := r.svc.tracer.Start(ctx, "training.save")
	defer span.End()

	evalDate := r.runDate
	rows := make([]domain.ModelEvaluation, 0, len(r.metrics))
	for _, v := range forecast.Variants() {
		metrics, ok := r.metrics[v]
		if !ok {
			continue
		}
		secs := r.trainSecs[v]
		rows = append(rows, domain.ModelEvaluation{
			TenantID:          r.tenantID,
			ModelName:         v.String(),
			ModelVersion:      modelVersion,
			EvaluationDate:    evalDate,
			Metrics:           metrics,
			IsBestModel:       v == r.best,
			TrainingSamples:   len(r.trainObs),
			ValidationSamples: len(r.valObs),
			TrainingSeconds:   &secs,
		})
	}
	if err := r.svc.metrics.InsertEvaluations(ctx, rows); err != nil {
		return fmt.Errorf("save evaluations: %w", err)
	}
	if err := r.svc.metrics.InsertBestModel(ctx, r.tenantID, r.best.String(), "mae", r.metrics[r.best].MAE, evalDate); err != nil {
		return fmt.Errorf("save best model selection: %w", err)
	}

	if err := r.svc.forecasts.ReplaceForecasts(ctx, r.tenantID, r.runDate, r.best.String(), modelVersion, r.points); err != nil {
		return fmt.Errorf("save forecasts: %w", err)
	}

	r.state = StateSaved
	r.svc.log.Info().Int("forecasts", len(r.points)).Msg("training run saved")
	return nil
}

// Execute drives a run through every transition and returns its
// summary.
func (s *Service) Execute(ctx context.Context, tenantID int64, runDate time.Time) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "training.execute")
	defer span.End()

	run := s.NewRun(tenantID, runDate)
	steps := []func(context.Context) error{
		run.LoadData,
		run.TrainModels,
		run.Backtest,
		run.SelectModel,
		run.GenerateForecasts,
		run.Save,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return run.summary(), err
		}
	}
	return run.summary(), nil
}

func (r *Run) summary() Summary {
	s := Summary{
		TenantID:          r.tenantID,
		RunDate:           r.runDate,
		TrainSamples:      len(r.trainObs),
		ValidationSamples: len(r.valObs),
		Excluded:          r.excluded,
		Metrics:           map[string]domain.ModelMetrics{},
		ForecastsSaved:    len(r.points),
	}
	for _, v := range forecast.Variants() {
		if _, ok := r.models[v]; ok {
			s.TrainedVariants = append(s.TrainedVariants, v.String())
		}
		if m, ok := r.metrics[v]; ok {
			s.Metrics[v.String()] = m
		}
	}
	if r.hasBest {
		s.BestModel = r.best.String()
	}
	return s
}

// distributeByMeanShare spreads an aggregate forecast across entities
// in proportion to each entity's historical mean share of total
// volume.
func distributeByMeanShare(points []domain.ForecastPoint, history []domain.Observation) []domain.ForecastPoint {
	keys, groups := forecast.GroupByEntity(history)
	if len(keys) == 0 {
		return points
	}

	means := make(map[domain.EntityKey]float64, len(keys))
	total := 0.0
	for _, k := range keys {
		group := groups[k]
		sum := 0.0
		for _, obs := range group {
			sum += obs.Count
		}
		mean := sum / float64(len(group))
		means[k] = mean
		total += mean
	}
	if total <= 0 {
		total = 1
	}

	out := make([]domain.ForecastPoint, 0, len(points)*len(keys))
	for _, p := range points {
		for _, k := range keys {
			share := means[k] / total
			out = append(out, domain.ForecastPoint{
				EntityKey:    k,
				ForecastDate: p.ForecastDate,
				HorizonDay:   p.HorizonDay,
				Demand:       math.Round(p.Demand*share*100) / 100,
				LowerBound:   p.LowerBound,
				UpperBound:   p.UpperBound,
			})
		}
	}
	return out
}
