package experiment

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent/expert"
	"github.com/samuelfneumann/goimitate/rollout"
	"github.com/samuelfneumann/goimitate/trajectory"
	log "github.com/sirupsen/logrus"
)

// DefaultExpertEpisodes is the default number of expert episodes
// recorded by GenerateExpert
const DefaultExpertEpisodes = 60

// GenerateExpert rolls out the Mountain Car expert in the environment
// of c for at least episodes episodes and saves the trajectories to
// c.ExpertPath. With probability epsilon the expert takes a random
// action.
func GenerateExpert(ctx context.Context, c Config, episodes int,
	epsilon float64) ([]trajectory.Trajectory, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "generateExpert")
	}
	env, err := newEnv(c)
	if err != nil {
		return nil, errors.Wrap(err, "generateExpert")
	}
	policy, err := expert.NewMountainCar(epsilon, c.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "generateExpert")
	}

	env.Seed(c.Seed)
	trajs, err := rollout.Generate(ctx, policy, env,
		rollout.SampleUntil{MinEpisodes: episodes}, epsilon == 0)
	if err != nil {
		return nil, errors.Wrap(err, "generateExpert")
	}
	if err := trajectory.Save(c.ExpertPath, trajs); err != nil {
		return nil, errors.Wrap(err, "generateExpert")
	}

	stats := trajectory.Stats(trajs)
	log.WithFields(log.Fields{
		"file":       c.ExpertPath,
		"episodes":   stats.NumTrajectories,
		"returnMean": stats.ReturnMean,
		"returnStd":  stats.ReturnStd,
		"lengthMean": stats.LenMean,
	}).Info("experiment: saved expert trajectories")
	return trajs, nil
}
