// Package agent defines the interfaces of policies and learners
package agent

import (
	"context"

	"github.com/samuelfneumann/goimitate/environment/vecenv"
)

// Predictor selects actions given observations
type Predictor interface {
	// Predict returns one action for each observation in obs.
	// Observations are in row-major order. If deterministic is true
	// the most likely action is returned for each observation.
	Predict(obs []float64, deterministic bool) ([]float64, error)
}

// Learner implements a learning algorithm that improves a policy from
// its own interaction with a vectorized environment
type Learner interface {
	Predictor

	// Learn interacts with the environment for totalTimesteps steps
	// summed over all instances, updating the policy as it goes
	Learn(ctx context.Context, totalTimesteps int) error

	// SetEnv changes the environment the Learner interacts with
	SetEnv(env vecenv.VecEnv) error

	// NumTimesteps returns the number of environment steps taken so far
	NumTimesteps() int

	// RolloutSteps returns the number of environment steps taken
	// between consecutive updates, summed over all instances
	RolloutSteps() int
}

// Saver is anything that can save itself to a file
type Saver interface {
	Save(filename string) error
}
