package forecast

import (
	"math"
	"testing"
)

func TestEvaluateKnownValues(t *testing.T) {
	metrics, err := Evaluate([]float64{10, 20, 30}, []float64{12, 18, 33})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(metrics.MAE-2.3333) > 0.001 {
		t.Fatalf("expected MAE ~= 2.333, got %.4f", metrics.MAE)
	}
	if math.Abs(metrics.RMSE-math.Sqrt(17.0/3.0)) > 0.001 {
		t.Fatalf("expected RMSE ~= 2.38, got %.4f", metrics.RMSE)
	}
	if metrics.MAPE == nil || metrics.SMAPE == nil {
		t.Fatal("MAPE and sMAPE should be defined for non-zero actuals")
	}
}

func TestEvaluateAllZeroActuals(t *testing.T) {
	metrics, err := Evaluate([]float64{0, 0, 0}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.MAPE != nil {
		t.Fatal("MAPE must be undefined when every true value is zero")
	}
	if metrics.SMAPE == nil {
		t.Fatal("sMAPE is still defined when predictions are non-zero")
	}
}

func TestEvaluateRejectsMismatchedLengths(t *testing.T) {
	if _, err := Evaluate([]float64{1, 2}, []float64{1}); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
	if _, err := Evaluate(nil, nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestEvaluatePerfectPrediction(t *testing.T) {
	metrics, err := Evaluate([]float64{5, 10, 15}, []float64{5, 10, 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.MAE != 0 || metrics.RMSE != 0 {
		t.Fatalf("expected zero error, got MAE=%.4f RMSE=%.4f", metrics.MAE, metrics.RMSE)
	}
}
