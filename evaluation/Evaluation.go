// Package evaluation implements the evaluation of policies in
// vectorized environments
package evaluation

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent"
	"github.com/samuelfneumann/goimitate/environment/vecenv"
	"github.com/samuelfneumann/goimitate/experiment/tracker"
	"gonum.org/v1/gonum/stat"
)

// Result holds the reward totals and lengths of evaluation episodes
// in the order the episodes finished
type Result struct {
	Rewards []float64
	Lengths []int
}

// Mean returns the mean episode reward total
func (r Result) Mean() float64 {
	return stat.Mean(r.Rewards, nil)
}

// Std returns the population standard deviation of episode reward
// totals
func (r Result) Std() float64 {
	if len(r.Rewards) < 2 {
		return 0
	}
	_, variance := stat.MeanVariance(r.Rewards, nil)
	n := float64(len(r.Rewards))
	return math.Sqrt(variance * (n - 1) / n)
}

// Evaluate runs policy in env until nEpisodes episodes have finished
// and returns their reward totals and lengths. The environment is
// reset first, and rewards are those env returns.
//
// Episodes are split evenly across environment instances so that
// results are not biased towards short episodes: instance i runs
// (nEpisodes + i) / NumEnvs episodes.
func Evaluate(ctx context.Context, policy agent.Predictor,
	env vecenv.VecEnv, nEpisodes int, deterministic bool) (Result, error) {
	if nEpisodes < 1 {
		return Result{}, errors.Errorf("evaluate: need at least one "+
			"episode, have %v", nEpisodes)
	}

	n := env.NumEnvs()
	targets := make([]int, n)
	returns := make([]*tracker.Return, n)
	lengths := make([]*tracker.EpisodeLength, n)
	for i := range targets {
		targets[i] = (nEpisodes + i) / n
		returns[i] = tracker.NewReturn()
		lengths[i] = tracker.NewEpisodeLength()
	}

	obs, err := env.Reset()
	if err != nil {
		return Result{}, errors.Wrap(err, "evaluate")
	}

	result := Result{
		Rewards: make([]float64, 0, nEpisodes),
		Lengths: make([]int, 0, nEpisodes),
	}
	for len(result.Rewards) < nEpisodes {
		if err := ctx.Err(); err != nil {
			return Result{}, errors.Wrap(err, "evaluate")
		}

		actions, err := policy.Predict(obs, deterministic)
		if err != nil {
			return Result{}, errors.Wrap(err, "evaluate")
		}
		steps, err := env.Step(actions)
		if err != nil {
			return Result{}, errors.Wrap(err, "evaluate")
		}

		for i, step := range steps {
			finished := len(lengths[i].Data())
			if finished >= targets[i] {
				continue
			}

			returns[i].Track(step)
			lengths[i].Track(step)
			if step.Last() {
				result.Rewards = append(result.Rewards,
					returns[i].Data()[finished])
				result.Lengths = append(result.Lengths,
					int(lengths[i].Data()[finished]))
			}
		}
		obs = env.Observations()
	}

	return result, nil
}
