package network

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// runningNormEps is added to the running variance before normalizing
const runningNormEps = 1e-5

// RunningNorm normalizes inputs feature-wise using a running estimate
// of the mean and variance of all inputs seen while training. The
// estimate starts at mean 0 and variance 1.
//
// In training mode each call to Normalize first folds the batch into
// the running statistics, combining batch and running variance with
// the parallel variance algorithm. In evaluation mode the statistics
// are left unchanged.
type RunningNorm struct {
	Mean  []float64
	Var   []float64
	Count float64

	eval bool
}

// NewRunningNorm returns a new RunningNorm over inputs of the given
// number of features
func NewRunningNorm(features int) *RunningNorm {
	r := &RunningNorm{
		Mean: make([]float64, features),
		Var:  make([]float64, features),
	}
	floats.AddConst(1.0, r.Var)
	return r
}

// Features returns the number of features normalized
func (r *RunningNorm) Features() int {
	return len(r.Mean)
}

// Train sets the RunningNorm to training mode
func (r *RunningNorm) Train() { r.eval = false }

// Eval sets the RunningNorm to evaluation mode
func (r *RunningNorm) Eval() { r.eval = true }

// IsEval returns whether the RunningNorm is in evaluation mode
func (r *RunningNorm) IsEval() bool { return r.eval }

// Normalize returns a normalized copy of batch, which holds inputs in
// row-major order
func (r *RunningNorm) Normalize(batch []float64) ([]float64, error) {
	features := r.Features()
	if len(batch) == 0 || len(batch)%features != 0 {
		return nil, errors.Errorf("normalize: batch of %v values is not a "+
			"whole number of %v-feature inputs", len(batch), features)
	}

	if !r.eval {
		r.update(batch)
	}

	out := make([]float64, len(batch))
	for i := range batch {
		j := i % features
		out[i] = (batch[i] - r.Mean[j]) / math.Sqrt(r.Var[j]+runningNormEps)
	}
	return out, nil
}

// update folds a batch into the running statistics
func (r *RunningNorm) update(batch []float64) {
	features := r.Features()
	batchCount := float64(len(batch) / features)
	totCount := r.Count + batchCount

	column := make([]float64, len(batch)/features)
	for j := 0; j < features; j++ {
		for i := range column {
			column[i] = batch[i*features+j]
		}
		batchMean, batchVar := stat.MeanVariance(column, nil)
		if len(column) > 1 {
			// Population variance
			batchVar *= (batchCount - 1) / batchCount
		} else {
			batchVar = 0
		}

		delta := batchMean - r.Mean[j]
		r.Mean[j] += delta * batchCount / totCount
		m2 := r.Var[j]*r.Count + batchVar*batchCount +
			delta*delta*r.Count*batchCount/totCount
		r.Var[j] = m2 / totCount
	}
	r.Count = totCount
}
