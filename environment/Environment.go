// Package environment outlines the interfaces and sturcts needed to implement
// concrete environments
package environment

import (
	ts "github.com/samuelfneumann/goimitate/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Seeder is anything whose randomness can be reset from a seed
type Seeder interface {
	Seed(seed uint64)
}

// Ender determines when an episode ends. If the episode should end,
// End() adjusts the argument TimeStep so that its StepType is
// timestep.Last and records the reason the episode ended.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some environment
// as well as the start state distribution and episode termination
// conditions.
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState *mat.VecDense) float64
	AtGoal(state *mat.VecDense) bool
	RewardSpec() Spec
}

// Environment implements a simualted environment, which includes a Task to
// complete
type Environment interface {
	Seeder

	// Reset resets the environment between episodes and returns the
	// first TimeStep of the next episode
	Reset() (ts.TimeStep, error)

	// Step takes one step in the environment and returns the next
	// TimeStep and whether that TimeStep is the last in the episode
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)

	// LastTimeStep returns the most recent TimeStep of the environment
	LastTimeStep() ts.TimeStep

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec
	RewardSpec() Spec
}
