package training

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"fleetpricer/internal/domain"
	"fleetpricer/internal/forecast"
)

type fakeHistory struct {
	train []domain.Observation
	val   []domain.Observation
	err   error
}

func (f *fakeHistory) ListObservations(_ context.Context, _ int64, split string) ([]domain.Observation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if split == domain.SplitTrain {
		return f.train, nil
	}
	return f.val, nil
}

type fakeForecastWriter struct {
	calls  int
	tenant int64
	model  string
	points []domain.ForecastPoint
}

func (f *fakeForecastWriter) ReplaceForecasts(_ context.Context, tenantID int64, _ time.Time, modelName, _ string, points []domain.ForecastPoint) error {
	f.calls++
	f.tenant = tenantID
	f.model = modelName
	f.points = points
	return nil
}

type fakeMetricsWriter struct {
	evaluations []domain.ModelEvaluation
	bestModel   string
	bestValue   float64
}

func (f *fakeMetricsWriter) InsertEvaluations(_ context.Context, rows []domain.ModelEvaluation) error {
	f.evaluations = append(f.evaluations, rows...)
	return nil
}

func (f *fakeMetricsWriter) InsertBestModel(_ context.Context, _ int64, modelName, _ string, value float64, _ time.Time) error {
	f.bestModel = modelName
	f.bestValue = value
	return nil
}

var trainStart = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC) // a Monday

// weeklySeries builds days of observations for two entities with a
// weekend-heavy weekly pattern.
func weeklySeries(start time.Time, days int) []domain.Observation {
	var out []domain.Observation
	for d := 0; d < days; d++ {
		date := start.AddDate(0, 0, d)
		base := 10.0
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			base = 18.0
		}
		out = append(out,
			domain.Observation{EntityKey: domain.EntityKey{BranchID: 1, CategoryID: 1}, Date: date, Count: base},
			domain.Observation{EntityKey: domain.EntityKey{BranchID: 1, CategoryID: 2}, Date: date, Count: base / 2},
		)
	}
	return out
}

func newTestService(history HistoryStore, fw ForecastWriter, mw MetricsWriter) *Service {
	return NewService(
		trace.NewNoopTracerProvider().Tracer("test"),
		zerolog.Nop(),
		history, fw, mw,
		Config{Horizon: 14, Sequence: forecast.SequenceOptions{Window: 14, Epochs: 5}},
	)
}

func TestExecuteFullRun(t *testing.T) {
	history := &fakeHistory{
		train: weeklySeries(trainStart, 84),
		val:   weeklySeries(trainStart.AddDate(0, 0, 84), 14),
	}
	fw := &fakeForecastWriter{}
	mw := &fakeMetricsWriter{}
	svc := newTestService(history, fw, mw)

	summary, err := svc.Execute(context.Background(), 7, trainStart.AddDate(0, 0, 98))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(summary.TrainedVariants) == 0 {
		t.Fatal("expected at least one trained variant")
	}
	if summary.BestModel == "" {
		t.Fatal("expected a best model")
	}
	if mw.bestModel != summary.BestModel {
		t.Fatalf("persisted best model %q, summary says %q", mw.bestModel, summary.BestModel)
	}
	if fw.calls != 1 {
		t.Fatalf("expected one forecast replace, got %d", fw.calls)
	}
	if fw.tenant != 7 {
		t.Fatalf("expected tenant 7, got %d", fw.tenant)
	}
	if len(fw.points) == 0 {
		t.Fatal("expected forecast points to be saved")
	}
	for _, p := range fw.points {
		if p.Demand < 0 {
			t.Fatalf("negative forecast %f on %s", p.Demand, p.ForecastDate)
		}
		if p.EntityKey.IsZero() {
			t.Fatal("forecast point without entity attribution")
		}
	}

	var sawBest bool
	for _, row := range mw.evaluations {
		if row.TrainingSamples != len(history.train) {
			t.Fatalf("evaluation training samples = %d, want %d", row.TrainingSamples, len(history.train))
		}
		if row.TrainingSeconds == nil {
			t.Fatal("expected training seconds to be recorded")
		}
		if row.IsBestModel {
			if sawBest {
				t.Fatal("more than one evaluation flagged best")
			}
			sawBest = true
			if row.ModelName != summary.BestModel {
				t.Fatalf("best flag on %q, expected %q", row.ModelName, summary.BestModel)
			}
		}
	}
	if !sawBest {
		t.Fatal("no evaluation flagged as best")
	}
}

func TestExecuteNoData(t *testing.T) {
	svc := newTestService(&fakeHistory{}, &fakeForecastWriter{}, &fakeMetricsWriter{})
	_, err := svc.Execute(context.Background(), 1, trainStart)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestFailedVariantsAreExcluded(t *testing.T) {
	// Ten days per entity is too short for the sequence model's
	// 14-day window; the run must still succeed on the others.
	history := &fakeHistory{
		train: weeklySeries(trainStart, 10),
		val:   weeklySeries(trainStart.AddDate(0, 0, 10), 7),
	}
	fw := &fakeForecastWriter{}
	svc := newTestService(history, fw, &fakeMetricsWriter{})

	summary, err := svc.Execute(context.Background(), 1, trainStart.AddDate(0, 0, 17))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var sequenceExcluded bool
	for _, ex := range summary.Excluded {
		if ex.Variant == forecast.VariantSequence {
			sequenceExcluded = true
			if ex.Err == "" {
				t.Fatal("exclusion without a reason")
			}
		}
	}
	if !sequenceExcluded {
		t.Fatalf("expected sequence variant excluded, got exclusions %v", summary.Excluded)
	}
	if summary.BestModel == "" {
		t.Fatal("expected a surviving best model")
	}
}

func TestTransitionOrderEnforced(t *testing.T) {
	svc := newTestService(&fakeHistory{train: weeklySeries(trainStart, 84)}, &fakeForecastWriter{}, &fakeMetricsWriter{})
	run := svc.NewRun(1, trainStart)

	if err := run.TrainModels(context.Background()); err == nil {
		t.Fatal("expected training before load to fail")
	}
	if run.State() != StateIdle {
		t.Fatalf("failed transition moved state to %s", run.State())
	}
	if err := run.LoadData(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := run.Save(context.Background()); err == nil {
		t.Fatal("expected save before forecasts to fail")
	}
	if run.State() != StateDataLoaded {
		t.Fatalf("state = %s, want data_loaded", run.State())
	}
}

func TestDistributeByMeanShare(t *testing.T) {
	history := []domain.Observation{
		{EntityKey: domain.EntityKey{BranchID: 1, CategoryID: 1}, Date: trainStart, Count: 30},
		{EntityKey: domain.EntityKey{BranchID: 1, CategoryID: 1}, Date: trainStart.AddDate(0, 0, 1), Count: 30},
		{EntityKey: domain.EntityKey{BranchID: 2, CategoryID: 1}, Date: trainStart, Count: 10},
		{EntityKey: domain.EntityKey{BranchID: 2, CategoryID: 1}, Date: trainStart.AddDate(0, 0, 1), Count: 10},
	}
	points := []domain.ForecastPoint{
		{ForecastDate: trainStart.AddDate(0, 0, 2), HorizonDay: 1, Demand: 40},
	}

	out := distributeByMeanShare(points, history)
	if len(out) != 2 {
		t.Fatalf("expected 2 distributed points, got %d", len(out))
	}
	got := map[int64]float64{}
	for _, p := range out {
		got[p.EntityKey.BranchID] = p.Demand
		if p.HorizonDay != 1 {
			t.Fatalf("horizon day not preserved: %d", p.HorizonDay)
		}
	}
	if math.Abs(got[1]-30) > 1e-9 || math.Abs(got[2]-10) > 1e-9 {
		t.Fatalf("distribution = %v, want 30/10 split", got)
	}
}
