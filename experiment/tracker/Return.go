package tracker

import (
	"fmt"

	ts "github.com/samuelfneumann/goimitate/timestep"
)

// Return tracks the episodic return in an environment. When an
// environment returns a TimeStep, this Tracker will extract the reward
// and accumulate the return for each episode.
//
// Note: If an environment is wrapped by some environment wrapper
// which modifies rewards, then this Tracker tracks the modified
// rewards. For example, a learner training on discriminator rewards
// sees different rewards than the underlying MountainCar environment.
//
// Note: An episode must finish for this Tracker to record its return.
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn() *Return {
	return &Return{}
}

// Track tracks the reward seen on a timestep. When an episode ends,
// its return is recorded and the rewards of the next episode are
// accumulated separately.
//
// Track panics if it is called for non-sequential timesteps
func (r *Return) Track(step ts.TimeStep) {
	if r.lastTimeStep+1 != step.Number {
		msg := fmt.Sprintf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			r.lastTimeStep, step.Number)
		panic(msg)
	}

	r.currentReturn += step.Reward
	r.lastTimeStep = step.Number
	if step.Last() {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0.0
		r.lastTimeStep = 0
	}
}

// Data returns the returns of all finished episodes
func (r *Return) Data() []float64 {
	return r.episodeReturns
}

// Save saves the returns of all finished episodes to disk
func (r *Return) Save(filename string) error {
	return save(filename, r.episodeReturns)
}
