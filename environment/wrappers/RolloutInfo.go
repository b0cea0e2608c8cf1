// Package wrappers implements environment wrappers which change or
// observe the interaction with an environment.Environment
package wrappers

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/environment"
	ts "github.com/samuelfneumann/goimitate/timestep"
	"github.com/samuelfneumann/goimitate/trajectory"
	"gonum.org/v1/gonum/mat"
)

// Wrapper wraps the index-th environment of a vectorized environment
type Wrapper func(env environment.Environment,
	index int) (environment.Environment, error)

// RolloutInfo wraps an environment and records the complete current
// episode: every observation, action, and the reward returned by the
// wrapped environment. Once an episode ends, it is stored as a finished
// trajectory that can be taken with PopRollouts.
//
// Rewards are recorded before any reward wrapper of a vectorized
// environment replaces them, so finished trajectories always hold the
// original environment rewards.
//
// RolloutInfo itself implements the environment.Environment interface.
type RolloutInfo struct {
	environment.Environment
	current  trajectory.Trajectory
	started  bool
	finished []trajectory.Trajectory
}

// NewRolloutInfo returns a new RolloutInfo wrapping env
func NewRolloutInfo(env environment.Environment) *RolloutInfo {
	return &RolloutInfo{Environment: env}
}

// RolloutInfoWrapper returns a Wrapper that wraps each environment in
// a RolloutInfo
func RolloutInfoWrapper() Wrapper {
	return func(env environment.Environment,
		_ int) (environment.Environment, error) {
		return NewRolloutInfo(env), nil
	}
}

// Reset resets the wrapped environment and starts recording a new
// episode. An unfinished episode is discarded.
func (r *RolloutInfo) Reset() (ts.TimeStep, error) {
	step, err := r.Environment.Reset()
	if err != nil {
		return step, err
	}

	r.current = trajectory.Trajectory{
		Obs: [][]float64{copyObs(step.Observation)},
	}
	r.started = true
	return step, nil
}

// Step takes a step in the wrapped environment, recording the action,
// reward, and next observation
func (r *RolloutInfo) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	if !r.started {
		return ts.TimeStep{}, true, errors.New("step: environment must " +
			"be reset before stepping")
	}

	step, last, err := r.Environment.Step(action)
	if err != nil {
		return step, last, err
	}

	r.current.Acts = append(r.current.Acts, action.AtVec(0))
	r.current.Rews = append(r.current.Rews, step.Reward)
	r.current.Obs = append(r.current.Obs, copyObs(step.Observation))

	if last {
		r.current.Terminal = step.TerminalEnd()
		r.finished = append(r.finished, r.current)
		r.current = trajectory.Trajectory{}
		r.started = false
	}
	return step, last, nil
}

// PopRollouts returns the episodes finished since the last call and
// forgets them
func (r *RolloutInfo) PopRollouts() []trajectory.Trajectory {
	out := r.finished
	r.finished = nil
	return out
}

func copyObs(obs *mat.VecDense) []float64 {
	out := make([]float64, obs.Len())
	for i := range out {
		out[i] = obs.AtVec(i)
	}
	return out
}
