// Package rollout generates complete trajectories by running a policy
// in a vectorized environment
package rollout

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent"
	"github.com/samuelfneumann/goimitate/environment/vecenv"
	"github.com/samuelfneumann/goimitate/trajectory"
	log "github.com/sirupsen/logrus"
)

// SampleUntil determines when enough trajectories have been
// generated. Each nonzero field is a minimum which must be reached.
type SampleUntil struct {
	MinEpisodes  int
	MinTimesteps int
}

// Validate returns an error if the SampleUntil can never be satisfied
// or is always satisfied
func (s SampleUntil) Validate() error {
	if s.MinEpisodes < 0 || s.MinTimesteps < 0 {
		return errors.Errorf("validate: minimums cannot be negative, "+
			"have %v episodes and %v timesteps", s.MinEpisodes,
			s.MinTimesteps)
	}
	if s.MinEpisodes == 0 && s.MinTimesteps == 0 {
		return errors.New("validate: at least one of the minimum " +
			"episodes or timesteps must be set")
	}
	return nil
}

// Done returns whether trajs satisfy every minimum
func (s SampleUntil) Done(trajs []trajectory.Trajectory) bool {
	if len(trajs) < s.MinEpisodes {
		return false
	}

	var steps int
	for _, t := range trajs {
		steps += t.Len()
	}
	return steps >= s.MinTimesteps
}

// Generate runs policy in env from a reset until the finished
// episodes satisfy until and returns them. The instances of env must
// be wrapped in a wrappers.RolloutInfo, so that the returned
// trajectories hold the original environment rewards. Episodes still
// running when until is satisfied are discarded.
func Generate(ctx context.Context, policy agent.Predictor,
	env vecenv.VecEnv, until SampleUntil,
	deterministic bool) ([]trajectory.Trajectory, error) {
	if err := until.Validate(); err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	obs, err := env.Reset()
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	// Drop episodes finished before the reset
	if _, err := env.PopEpisodes(); err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	var trajs []trajectory.Trajectory
	for !until.Done(trajs) {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "generate")
		}

		actions, err := policy.Predict(obs, deterministic)
		if err != nil {
			return nil, errors.Wrap(err, "generate")
		}
		if _, err := env.Step(actions); err != nil {
			return nil, errors.Wrap(err, "generate")
		}
		obs = env.Observations()

		finished, err := env.PopEpisodes()
		if err != nil {
			return nil, errors.Wrap(err, "generate")
		}
		trajs = append(trajs, finished...)
	}

	stats := trajectory.Stats(trajs)
	log.WithFields(log.Fields{
		"episodes":   stats.NumTrajectories,
		"returnMean": stats.ReturnMean,
		"lengthMean": stats.LenMean,
	}).Debug("rollout: generated")
	return trajs, nil
}
