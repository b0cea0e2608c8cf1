// Package experiment implements the GAIL experiment on Mountain Car:
// the environment, learner, and discriminator are built from a
// Config, the learner is evaluated, trained with GAIL, and evaluated
// again.
package experiment

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent"
	"github.com/samuelfneumann/goimitate/agent/ppo"
	"github.com/samuelfneumann/goimitate/environment/vecenv"
	"github.com/samuelfneumann/goimitate/environment/wrappers"
	"github.com/samuelfneumann/goimitate/evaluation"
	"github.com/samuelfneumann/goimitate/experiment/checkpointer"
	"github.com/samuelfneumann/goimitate/gail"
	"github.com/samuelfneumann/goimitate/rewardnet"
	"github.com/samuelfneumann/goimitate/trajectory"
	"github.com/samuelfneumann/goimitate/utils/progressbar"
	log "github.com/sirupsen/logrus"
)

// Run runs the experiment described by c and returns the evaluations
// of the learner before and after training. Both evaluations start
// from environments seeded with c.Seed.
func Run(ctx context.Context, c Config) (Report, error) {
	if err := c.Validate(); err != nil {
		return Report{}, errors.Wrap(err, "run")
	}
	report := Report{RunID: uuid.New()}
	logger := log.WithField("run", report.RunID)

	env, err := newEnv(c)
	if err != nil {
		return Report{}, errors.Wrap(err, "run")
	}

	demos, err := trajectory.Load(c.ExpertPath)
	if err != nil {
		return Report{}, errors.Wrap(err, "run: could not load expert "+
			"trajectories")
	}
	stats := trajectory.Stats(demos)
	logger.WithFields(log.Fields{
		"episodes":   stats.NumTrajectories,
		"returnMean": stats.ReturnMean,
		"lengthMean": stats.LenMean,
	}).Info("experiment: loaded expert trajectories")

	learner, err := ppo.New(env, c.PPO, c.Seed)
	if err != nil {
		return Report{}, errors.Wrap(err, "run: could not create learner")
	}
	defer learner.Close()

	rewardNet, err := newRewardNet(env, c)
	if err != nil {
		return Report{}, errors.Wrap(err, "run")
	}
	defer rewardNet.Close()

	trainer, err := gail.New(demos, env, learner, rewardNet, c.GAIL, c.Seed)
	if err != nil {
		return Report{}, errors.Wrap(err, "run: could not create trainer")
	}

	env.Seed(c.Seed)
	report.Before, err = evaluation.Evaluate(ctx, learner, env,
		c.EvalEpisodes, c.Deterministic)
	if err != nil {
		return Report{}, errors.Wrap(err, "run: evaluation before training")
	}
	logger.WithFields(log.Fields{
		"mean": report.Before.Mean(),
		"std":  report.Before.Std(),
	}).Info("experiment: before training")

	// Evaluation episodes are not generator rollouts
	if _, err := env.PopEpisodes(); err != nil {
		return Report{}, errors.Wrap(err, "run")
	}

	callback, closeCallback, err := newCallback(c, trainer, learner,
		rewardNet)
	if err != nil {
		return Report{}, errors.Wrap(err, "run")
	}
	err = trainer.Train(ctx, c.TotalTimesteps, callback)
	closeCallback()
	if err != nil {
		return Report{}, errors.Wrap(err, "run")
	}
	report.Rounds = trainer.Round()
	report.Timesteps = learner.NumTimesteps()

	env.Seed(c.Seed)
	report.After, err = evaluation.Evaluate(ctx, learner, env,
		c.EvalEpisodes, c.Deterministic)
	if err != nil {
		return Report{}, errors.Wrap(err, "run: evaluation after training")
	}
	logger.WithFields(log.Fields{
		"mean": report.After.Mean(),
		"std":  report.After.Std(),
	}).Info("experiment: after training")

	if c.ReportPath != "" {
		if err := report.Save(c.ReportPath); err != nil {
			return report, errors.Wrap(err, "run")
		}
	}
	return report, nil
}

// newEnv returns the vectorized environment of c, with each instance
// recording its rollouts
func newEnv(c Config) (*vecenv.Env, error) {
	env, err := vecenv.New(c.EnvConf, c.Seed, c.NumEnvs,
		wrappers.RolloutInfoWrapper())
	if err != nil {
		return nil, errors.Wrap(err, "newEnv")
	}
	return env, nil
}

// newRewardNet returns the discriminator of c, which trains on batches
// of expert and generator transitions
func newRewardNet(env vecenv.VecEnv, c Config) (*rewardnet.BasicRewardNet,
	error) {
	numActions, err := env.ActionSpec().NumActions()
	if err != nil {
		return nil, errors.Wrap(err, "newRewardNet")
	}
	s, err := c.DiscSolver.Clone()
	if err != nil {
		return nil, errors.Wrap(err, "newRewardNet")
	}

	r, err := rewardnet.New(env.ObservationSpec().Dims(), numActions,
		2*c.GAIL.DemoBatchSize, c.RewardNet, s)
	if err != nil {
		return nil, errors.Wrap(err, "newRewardNet: could not create "+
			"reward net")
	}
	return r, nil
}

// newCallback returns the end-of-round callback of a run, which
// checkpoints and displays progress as configured, and a function that
// cleans up after training
func newCallback(c Config, trainer *gail.Trainer, learner *ppo.PPO,
	rewardNet *rewardnet.BasicRewardNet) (gail.Callback, func(), error) {
	var checkpoints checkpointer.Multi
	if c.CheckpointDir != "" {
		if err := os.MkdirAll(c.CheckpointDir, 0755); err != nil {
			return nil, nil, errors.Wrap(err, "newCallback")
		}

		filename := func(name string) func() string {
			if c.TimestampCheckpoints {
				return checkpointer.FileTimer(c.CheckpointDir, name, ".bin")
			}
			return checkpointer.FilenameEnumerator(0, c.CheckpointDir,
				name, ".bin")
		}
		for _, object := range []struct {
			name  string
			saver agent.Saver
		}{
			{"policy", learner},
			{"reward", rewardNet},
		} {
			n, err := checkpointer.NewNRound(c.CheckpointEvery, object.saver,
				filename(object.name))
			if err != nil {
				return nil, nil, errors.Wrap(err, "newCallback")
			}
			checkpoints = append(checkpoints, n)
		}
	}

	var bar *progressbar.ManualProgressBar
	if c.Progress {
		bar = progressbar.NewManualProgressBar(os.Stderr, 50,
			c.TotalTimesteps/trainer.GenTrainTimesteps())
		bar.Display()
	}

	callback := func(round int) error {
		if bar != nil {
			bar.Increment()
			bar.Display()
		}
		return checkpoints.Checkpoint(round)
	}
	closeCallback := func() {
		if bar != nil {
			bar.Close()
		}
	}
	return callback, closeCallback, nil
}

// EvaluatePolicy loads a learner checkpoint saved during a run of c
// and evaluates it in the environment of c seeded with c.Seed
func EvaluatePolicy(ctx context.Context, c Config,
	filename string) (evaluation.Result, error) {
	if err := c.Validate(); err != nil {
		return evaluation.Result{}, errors.Wrap(err, "evaluatePolicy")
	}
	env, err := newEnv(c)
	if err != nil {
		return evaluation.Result{}, errors.Wrap(err, "evaluatePolicy")
	}

	learner, err := ppo.Load(filename, env, c.Seed)
	if err != nil {
		return evaluation.Result{}, errors.Wrap(err, "evaluatePolicy")
	}
	defer learner.Close()

	env.Seed(c.Seed)
	result, err := evaluation.Evaluate(ctx, learner, env, c.EvalEpisodes,
		c.Deterministic)
	if err != nil {
		return evaluation.Result{}, errors.Wrap(err, "evaluatePolicy")
	}
	return result, nil
}
