package vecenv

import (
	"github.com/pkg/errors"
	ts "github.com/samuelfneumann/goimitate/timestep"
	"github.com/samuelfneumann/goimitate/trajectory"
)

// RewardFn computes a reward for each of a batch of transitions.
// Observations are row-major. Dones are 1 for transitions which ended
// an episode in a terminal state and 0 otherwise, so episodes cut off
// by a step limit are not done.
type RewardFn func(obs, acts, nextObs, dones []float64) ([]float64, error)

// RewardWrapper replaces the rewards of a VecEnv with those of a
// RewardFn. The rewards of the wrapped VecEnv of the last step are kept
// and can be retrieved with OriginalRewards.
type RewardWrapper struct {
	VecEnv
	rewardFn        RewardFn
	originalRewards []float64
}

// NewRewardWrapper returns a new RewardWrapper
func NewRewardWrapper(env VecEnv, rewardFn RewardFn) *RewardWrapper {
	return &RewardWrapper{VecEnv: env, rewardFn: rewardFn}
}

// Step steps the wrapped VecEnv and replaces the rewards of the
// returned TimeSteps with those of the RewardFn
func (r *RewardWrapper) Step(actions []float64) ([]ts.TimeStep, error) {
	obs := r.VecEnv.Observations()
	steps, err := r.VecEnv.Step(actions)
	if err != nil {
		return nil, err
	}

	nextObs, dones := nextObsAndDones(steps, len(obs)/len(steps))
	rewards, err := r.rewardFn(obs, actions, nextObs, dones)
	if err != nil {
		return nil, errors.Wrap(err, "step: could not compute rewards")
	}
	if len(rewards) != len(steps) {
		return nil, errors.Errorf("step: reward function returned %v "+
			"rewards for %v transitions", len(rewards), len(steps))
	}

	r.originalRewards = make([]float64, len(steps))
	for i := range steps {
		r.originalRewards[i] = steps[i].Reward
		steps[i].Reward = rewards[i]
	}
	return steps, nil
}

// OriginalRewards returns the rewards of the wrapped VecEnv for the
// last step
func (r *RewardWrapper) OriginalRewards() []float64 {
	return r.originalRewards
}

// BufferingWrapper records every transition passing through a VecEnv,
// along with the lengths of finished episodes
type BufferingWrapper struct {
	VecEnv
	obsDims     int
	buffer      *trajectory.Transitions
	episodeLens []int
	steps       []int
}

// NewBufferingWrapper returns a new BufferingWrapper
func NewBufferingWrapper(env VecEnv) *BufferingWrapper {
	obsDims := env.ObservationSpec().Dims()
	return &BufferingWrapper{
		VecEnv:  env,
		obsDims: obsDims,
		buffer:  trajectory.NewTransitions(obsDims, 0),
		steps:   make([]int, env.NumEnvs()),
	}
}

// Reset resets the wrapped VecEnv. Episodes in progress are no longer
// counted towards episode lengths.
func (b *BufferingWrapper) Reset() ([]float64, error) {
	for i := range b.steps {
		b.steps[i] = 0
	}
	return b.VecEnv.Reset()
}

// Step steps the wrapped VecEnv and records the transitions
func (b *BufferingWrapper) Step(actions []float64) ([]ts.TimeStep, error) {
	obs := b.VecEnv.Observations()
	steps, err := b.VecEnv.Step(actions)
	if err != nil {
		return nil, err
	}

	nextObs, dones := nextObsAndDones(steps, b.obsDims)
	for i := range steps {
		start, stop := i*b.obsDims, (i+1)*b.obsDims
		b.buffer.Add(obs[start:stop], actions[i], nextObs[start:stop],
			dones[i] == 1)

		b.steps[i]++
		if steps[i].Last() {
			b.episodeLens = append(b.episodeLens, b.steps[i])
			b.steps[i] = 0
		}
	}
	return steps, nil
}

// PopTransitions returns the transitions recorded since the last call
// and the lengths of the episodes which finished in that time
func (b *BufferingWrapper) PopTransitions() (*trajectory.Transitions,
	[]int) {
	transitions, lens := b.buffer, b.episodeLens
	b.buffer = trajectory.NewTransitions(b.obsDims, transitions.Len())
	b.episodeLens = nil
	return transitions, lens
}

// nextObsAndDones extracts the next observations and episode ends
// recorded in a batch of TimeSteps. Only terminal episode ends are
// done.
func nextObsAndDones(steps []ts.TimeStep, obsDims int) ([]float64,
	[]float64) {
	nextObs := make([]float64, 0, len(steps)*obsDims)
	dones := make([]float64, len(steps))
	for i, step := range steps {
		for j := 0; j < obsDims; j++ {
			nextObs = append(nextObs, step.Observation.AtVec(j))
		}
		if step.TerminalEnd() {
			dones[i] = 1
		}
	}
	return nextObs, dones
}
