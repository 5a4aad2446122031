package forecast

import (
	"testing"

	"fleetpricer/internal/domain"
)

func TestSequenceFitPredict(t *testing.T) {
	key := domain.EntityKey{BranchID: 1, CategoryID: 1}
	values := make([]float64, 60)
	for i := range values {
		values[i] = 10 + float64(i%7)
	}
	series := entitySeries(key, testStart, values)

	m := NewSequence(DefaultSequenceOptions())
	if err := m.Fit(series); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	points, err := m.Predict(10, series)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	if len(points) != 10 {
		t.Fatalf("expected 10 points, got %d", len(points))
	}
	for i, p := range points {
		if p.Demand < 0 {
			t.Fatalf("negative forecast %.2f", p.Demand)
		}
		if p.HorizonDay != i+1 {
			t.Fatalf("expected horizon day %d, got %d", i+1, p.HorizonDay)
		}
		if p.EntityKey != key {
			t.Fatalf("forecast attributed to wrong entity: %+v", p.EntityKey)
		}
	}
}

func TestSequenceSkipsShortEntities(t *testing.T) {
	long := domain.EntityKey{BranchID: 1, CategoryID: 1}
	short := domain.EntityKey{BranchID: 2, CategoryID: 1}

	values := make([]float64, 40)
	for i := range values {
		values[i] = float64(5 + i%3)
	}
	series := append(entitySeries(long, testStart, values),
		entitySeries(short, testStart, []float64{1, 2, 3})...)

	m := NewSequence(DefaultSequenceOptions())
	if err := m.Fit(series); err != nil {
		t.Fatalf("fit must succeed when one entity qualifies: %v", err)
	}

	points, err := m.Predict(5, series)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	for _, p := range points {
		if p.EntityKey == short {
			t.Fatal("short entity must be skipped, not forecast")
		}
	}
}

func TestSequenceAllEntitiesTooShort(t *testing.T) {
	key := domain.EntityKey{BranchID: 1, CategoryID: 1}
	series := entitySeries(key, testStart, []float64{1, 2, 3, 4, 5})
	if err := NewSequence(DefaultSequenceOptions()).Fit(series); err != ErrSequenceTooShort {
		t.Fatalf("expected ErrSequenceTooShort, got %v", err)
	}
}

func TestSequencePredictBeforeFit(t *testing.T) {
	if _, err := NewSequence(DefaultSequenceOptions()).Predict(5, nil); err != ErrNotFitted {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
}

func TestSequenceEpochBudgetHonored(t *testing.T) {
	opts := DefaultSequenceOptions()
	opts.Epochs = 1

	key := domain.EntityKey{BranchID: 1, CategoryID: 1}
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(i)
	}
	m := NewSequence(opts)
	if err := m.Fit(entitySeries(key, testStart, values)); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if m.opts.Epochs != 1 {
		t.Fatalf("epoch budget must not be overridden, got %d", m.opts.Epochs)
	}
}
