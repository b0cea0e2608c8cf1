// Package vecenv implements vectorized environments: a number of
// independent environment instances stepped together in lockstep
package vecenv

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/environment"
	"github.com/samuelfneumann/goimitate/environment/envconfig"
	"github.com/samuelfneumann/goimitate/environment/wrappers"
	ts "github.com/samuelfneumann/goimitate/timestep"
	"github.com/samuelfneumann/goimitate/trajectory"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// VecEnv is a vectorized environment. Observations of all instances
// are returned as a single row-major slice, with the features of
// instance i at [i*d, (i+1)*d) for observations of d features.
//
// Instances reset themselves when their episodes end: the TimeStep
// returned by Step for such an instance is the Last step of the episode
// and carries the terminal observation, while Observations reports the
// first observation of the next episode.
type VecEnv interface {
	NumEnvs() int
	ObservationSpec() environment.Spec
	ActionSpec() environment.Spec

	// Reset resets all instances and returns their first observations
	Reset() ([]float64, error)

	// Step takes one action in each instance
	Step(actions []float64) ([]ts.TimeStep, error)

	// Observations returns the current observation of each instance
	Observations() []float64

	// Seed reseeds instance i with seed+i. Seeds take effect on the
	// next reset.
	Seed(seed uint64)

	// PopEpisodes returns the episodes completed since the last call.
	// Instances must be wrapped in a wrappers.RolloutInfo.
	PopEpisodes() ([]trajectory.Trajectory, error)
}

// rolloutPopper is an environment which records finished episodes
type rolloutPopper interface {
	PopRollouts() []trajectory.Trajectory
}

// Env is a VecEnv over environment.Environments, where each instance
// is stepped in its own goroutine
type Env struct {
	envs    []environment.Environment
	obsDims int
	obs     []float64
	reset   bool
}

// New creates a vectorized environment of n instances of the
// environment described by c. Each instance is seeded from a random
// source seeded with seed and then wrapped by each of wraps in turn.
func New(c envconfig.Config, seed uint64, n int,
	wraps ...wrappers.Wrapper) (*Env, error) {
	if n < 1 {
		return nil, errors.Errorf("new: need at least 1 environment, have %v",
			n)
	}

	rng := rand.New(rand.NewSource(seed))
	envs := make([]environment.Environment, n)
	for i := range envs {
		e, err := c.Create(rng.Uint64())
		if err != nil {
			return nil, errors.Wrapf(err, "new: could not create "+
				"environment %v", i)
		}

		for j, wrap := range wraps {
			e, err = wrap(e, i)
			if err != nil {
				return nil, errors.Wrapf(err, "new: wrapper %v failed on "+
					"environment %v", j, i)
			}
		}
		envs[i] = e
	}

	obsDims := envs[0].ObservationSpec().Dims()
	return &Env{
		envs:    envs,
		obsDims: obsDims,
		obs:     make([]float64, n*obsDims),
	}, nil
}

// NumEnvs returns the number of environment instances
func (v *Env) NumEnvs() int {
	return len(v.envs)
}

// ObservationSpec returns the observation specification of a single
// instance
func (v *Env) ObservationSpec() environment.Spec {
	return v.envs[0].ObservationSpec()
}

// ActionSpec returns the action specification of a single instance
func (v *Env) ActionSpec() environment.Spec {
	return v.envs[0].ActionSpec()
}

// Seed reseeds instance i with seed+i
func (v *Env) Seed(seed uint64) {
	for i, e := range v.envs {
		e.Seed(seed + uint64(i))
	}
}

// Reset resets every instance
func (v *Env) Reset() ([]float64, error) {
	err := v.parallel(func(i int, e environment.Environment) error {
		step, err := e.Reset()
		if err != nil {
			return err
		}
		v.setObs(i, step.Observation)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reset")
	}

	v.reset = true
	return v.Observations(), nil
}

// Step takes actions[i] in instance i. Instances whose episodes end
// are reset.
func (v *Env) Step(actions []float64) ([]ts.TimeStep, error) {
	if !v.reset {
		return nil, errors.New("step: environment must be reset before " +
			"stepping")
	}
	if len(actions) != len(v.envs) {
		return nil, errors.Errorf("step: need one action per environment "+
			"(%v), have %v", len(v.envs), len(actions))
	}

	steps := make([]ts.TimeStep, len(v.envs))
	err := v.parallel(func(i int, e environment.Environment) error {
		action := mat.NewVecDense(1, []float64{actions[i]})
		step, last, err := e.Step(action)
		if err != nil {
			return err
		}
		steps[i] = step

		if last {
			step, err = e.Reset()
			if err != nil {
				return errors.Wrap(err, "auto-reset")
			}
		}
		v.setObs(i, step.Observation)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "step")
	}
	return steps, nil
}

// Observations returns a copy of the current observations
func (v *Env) Observations() []float64 {
	out := make([]float64, len(v.obs))
	copy(out, v.obs)
	return out
}

// PopEpisodes returns the episodes completed by all instances since
// the last call, in instance order
func (v *Env) PopEpisodes() ([]trajectory.Trajectory, error) {
	var out []trajectory.Trajectory
	for i, e := range v.envs {
		p, ok := e.(rolloutPopper)
		if !ok {
			return nil, errors.Errorf("popEpisodes: environment %v does not "+
				"record rollouts", i)
		}
		out = append(out, p.PopRollouts()...)
	}
	return out, nil
}

// setObs stores the observation of instance i. Each instance writes
// only its own region of v.obs.
func (v *Env) setObs(i int, obs *mat.VecDense) {
	row := v.obs[i*v.obsDims : (i+1)*v.obsDims]
	for j := range row {
		row[j] = obs.AtVec(j)
	}
}

// parallel calls f on every instance concurrently and returns the
// error of the lowest-indexed instance that failed
func (v *Env) parallel(f func(int, environment.Environment) error) error {
	errs := make([]error, len(v.envs))

	var wg sync.WaitGroup
	for i, e := range v.envs {
		wg.Add(1)
		go func(i int, e environment.Environment) {
			defer wg.Done()
			errs[i] = f(i, e)
		}(i, e)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "environment %v", i)
		}
	}
	return nil
}
