package forecast

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"fleetpricer/internal/domain"
)

// Evaluate computes backtest accuracy metrics for a true/predicted
// pair. It is a pure function shared by every model variant. MAPE is
// nil when every true value is zero; sMAPE is nil when every
// (|true|+|pred|) pair is zero.
func Evaluate(actual, predicted []float64) (domain.ModelMetrics, error) {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return domain.ModelMetrics{}, errors.New("actual and predicted must be non-empty and equal length")
	}

	absErr := make([]float64, len(actual))
	sqErr := make([]float64, len(actual))
	for i := range actual {
		diff := actual[i] - predicted[i]
		absErr[i] = math.Abs(diff)
		sqErr[i] = diff * diff
	}

	metrics := domain.ModelMetrics{
		MAE:  stat.Mean(absErr, nil),
		RMSE: math.Sqrt(stat.Mean(sqErr, nil)),
	}

	var mapeTerms []float64
	for i := range actual {
		if actual[i] != 0 {
			mapeTerms = append(mapeTerms, math.Abs((actual[i]-predicted[i])/actual[i])*100)
		}
	}
	if len(mapeTerms) > 0 {
		mape := stat.Mean(mapeTerms, nil)
		metrics.MAPE = &mape
	}

	var smapeTerms []float64
	for i := range actual {
		denom := (math.Abs(actual[i]) + math.Abs(predicted[i])) / 2
		if denom != 0 {
			smapeTerms = append(smapeTerms, math.Abs(actual[i]-predicted[i])/denom*100)
		}
	}
	if len(smapeTerms) > 0 {
		smape := stat.Mean(smapeTerms, nil)
		metrics.SMAPE = &smape
	}

	return metrics, nil
}
