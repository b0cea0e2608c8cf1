package gail

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent/ppo"
	"github.com/samuelfneumann/goimitate/buffer/replay"
	"github.com/samuelfneumann/goimitate/environment/envconfig"
	"github.com/samuelfneumann/goimitate/environment/vecenv"
	"github.com/samuelfneumann/goimitate/environment/wrappers"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/rewardnet"
	"github.com/samuelfneumann/goimitate/solver"
	"github.com/samuelfneumann/goimitate/trajectory"
)

const testDemoBatch = 8

func testDemos(n, length int) []trajectory.Trajectory {
	trajs := make([]trajectory.Trajectory, n)
	for i := range trajs {
		traj := trajectory.Trajectory{
			Obs:  make([][]float64, length+1),
			Acts: make([]float64, length),
			Rews: make([]float64, length),
		}
		for j := range traj.Obs {
			traj.Obs[j] = []float64{-0.5 + 0.01*float64(j), 0.001 * float64(i)}
		}
		for j := range traj.Acts {
			traj.Acts[j] = 2
			traj.Rews[j] = -1
		}
		trajs[i] = traj
	}
	return trajs
}

func newTestEnv(t *testing.T) *vecenv.Env {
	c := envconfig.NewConfig(envconfig.FixedHorizonMountainCar, false, 10,
		1.0)
	env, err := vecenv.New(c, 5, 2, wrappers.RolloutInfoWrapper())
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func newTestLearner(t *testing.T, env vecenv.VecEnv) *ppo.PPO {
	c, err := ppo.DefaultConfig(1e-3)
	if err != nil {
		t.Fatal(err)
	}
	c.NSteps = 8
	c.BatchSize = 4
	c.NEpochs = 1
	c.PolicyLayers = []int{8}
	c.PolicyBiases = []bool{true}
	c.PolicyActivations = []*network.Activation{network.TanH()}
	c.ValueFnLayers = []int{8}
	c.ValueFnBiases = []bool{true}
	c.ValueFnActivations = []*network.Activation{network.TanH()}

	learner, err := ppo.New(env, c, 9)
	if err != nil {
		t.Fatal(err)
	}
	return learner
}

func newTestRewardNet(t *testing.T, batch int) *rewardnet.BasicRewardNet {
	s, err := solver.NewDefaultAdam(1e-3, 1)
	if err != nil {
		t.Fatal(err)
	}
	c := rewardnet.DefaultConfig()
	c.HiddenSizes = []int{8}
	c.Biases = []bool{true}
	c.Activations = []*network.Activation{network.ReLU()}

	r, err := rewardnet.New(2, 3, batch, c, s)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func testConfig() Config {
	c := DefaultConfig()
	c.DemoBatchSize = testDemoBatch
	c.GenReplayBufferCapacity = 12
	c.NDiscUpdatesPerRound = 2
	return c
}

func newTestTrainer(t *testing.T) (*Trainer, *ppo.PPO) {
	env := newTestEnv(t)
	learner := newTestLearner(t, env)
	rewardNet := newTestRewardNet(t, 2*testDemoBatch)

	trainer, err := New(testDemos(3, 5), env, learner, rewardNet,
		testConfig(), 1)
	if err != nil {
		t.Fatal(err)
	}
	return trainer, learner
}

// constantRewardNet predicts the same logit for every transition
type constantRewardNet struct {
	logit float64
}

func (c constantRewardNet) Predict(obs, acts, nextObs,
	dones []float64) ([]float64, error) {
	out := make([]float64, len(acts))
	for i := range out {
		out[i] = c.logit
	}
	return out, nil
}

func (c constantRewardNet) TrainStep(obs, acts, nextObs, dones,
	labels []float64) ([]float64, float64, error) {
	logits, _ := c.Predict(obs, acts, nextObs, dones)
	return logits, 0, nil
}

func (c constantRewardNet) TrainBatch() int { return 2 * testDemoBatch }

func TestNewErrors(t *testing.T) {
	env := newTestEnv(t)
	learner := newTestLearner(t, env)
	defer learner.Close()
	net := constantRewardNet{}

	if _, err := New(testDemos(1, 5), env, learner, net, testConfig(),
		1); err == nil {
		t.Error("expected an error when demonstrations cannot fill a batch")
	}
	if _, err := New(nil, env, learner, net, testConfig(), 1); err == nil {
		t.Error("expected an error without demonstrations")
	}

	c := testConfig()
	c.DemoBatchSize = 4
	if _, err := New(testDemos(3, 5), env, learner, net, c, 1); err == nil {
		t.Error("expected an error for a mismatched reward net batch")
	}

	c = testConfig()
	c.NDiscUpdatesPerRound = 0
	if _, err := New(testDemos(3, 5), env, learner, net, c, 1); err == nil {
		t.Error("expected an error for an invalid configuration")
	}
}

func TestRewardIsSoftplusOfLogit(t *testing.T) {
	env := newTestEnv(t)
	learner := newTestLearner(t, env)
	defer learner.Close()

	for _, logit := range []float64{-800, -2, 0, 3, 800} {
		trainer, err := New(testDemos(3, 5), env, learner,
			constantRewardNet{logit}, testConfig(), 1)
		if err != nil {
			t.Fatal(err)
		}

		rewards, err := trainer.reward([]float64{0, 0}, []float64{1},
			[]float64{0, 0}, []float64{0})
		if err != nil {
			t.Fatal(err)
		}
		want := math.Log1p(math.Exp(logit))
		if logit > 700 {
			want = logit
		}
		if math.Abs(rewards[0]-want) > 1e-9 || math.IsInf(rewards[0], 0) {
			t.Errorf("logit %v: want reward %v, have %v", logit, want,
				rewards[0])
		}
		if rewards[0] < 0 {
			t.Errorf("logit %v: negative reward %v", logit, rewards[0])
		}
	}
}

func TestTrainDiscNeedsGeneratorSamples(t *testing.T) {
	trainer, learner := newTestTrainer(t)
	defer learner.Close()

	_, err := trainer.TrainDisc()
	if !errors.Is(err, replay.ErrEmpty) {
		t.Errorf("want replay.ErrEmpty, have %v", err)
	}
}

func TestTrain(t *testing.T) {
	trainer, learner := newTestTrainer(t)
	defer learner.Close()

	if trainer.GenTrainTimesteps() != learner.RolloutSteps() {
		t.Fatalf("generator timesteps: want %v, have %v",
			learner.RolloutSteps(), trainer.GenTrainTimesteps())
	}

	var rounds []int
	callback := func(round int) error {
		rounds = append(rounds, round)
		return nil
	}
	steps := 2*trainer.GenTrainTimesteps() + 1
	if err := trainer.Train(context.Background(), steps, callback); err != nil {
		t.Fatal(err)
	}

	if len(rounds) != 2 || rounds[0] != 0 || rounds[1] != 1 {
		t.Errorf("callback rounds: have %v", rounds)
	}
	if trainer.Round() != 2 {
		t.Errorf("rounds: want 2, have %v", trainer.Round())
	}
	if learner.NumTimesteps() != 2*trainer.GenTrainTimesteps() {
		t.Errorf("timesteps: want %v, have %v",
			2*trainer.GenTrainTimesteps(), learner.NumTimesteps())
	}
	if trainer.replay.Len() != testConfig().GenReplayBufferCapacity {
		t.Errorf("replay buffer should be full, has %v transitions",
			trainer.replay.Len())
	}

	stats, err := trainer.TrainDisc()
	if err != nil {
		t.Fatal(err)
	}
	if stats.NExpert != testDemoBatch || stats.NGenerated != testDemoBatch {
		t.Errorf("batch composition: %v expert, %v generated",
			stats.NExpert, stats.NGenerated)
	}
	if stats.ProportionExpertTrue != 0.5 {
		t.Errorf("expert proportion: want 0.5, have %v",
			stats.ProportionExpertTrue)
	}
}

func TestTrainErrors(t *testing.T) {
	trainer, learner := newTestTrainer(t)
	defer learner.Close()

	err := trainer.Train(context.Background(), trainer.GenTrainTimesteps()-1,
		nil)
	if err == nil {
		t.Error("expected an error for less than one round")
	}

	errStop := errors.New("stop")
	err = trainer.Train(context.Background(), trainer.GenTrainTimesteps(),
		func(int) error { return errStop })
	if !errors.Is(err, errStop) {
		t.Errorf("want callback error, have %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = trainer.Train(ctx, trainer.GenTrainTimesteps(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, have %v", err)
	}
}

func TestDiscStats(t *testing.T) {
	logits := []float64{2, -1, 0.5, -3}
	labels := []float64{1, 1, 0, 0}
	s := discStats(logits, labels, 0.7)

	if s.Loss != 0.7 {
		t.Errorf("loss: want 0.7, have %v", s.Loss)
	}
	for name, v := range map[string]float64{
		"accuracy":        s.Accuracy,
		"expert accuracy": s.ExpertAccuracy,
		"gen accuracy":    s.GenAccuracy,
		"expert true":     s.ProportionExpertTrue,
		"expert pred":     s.ProportionExpertPred,
	} {
		if v != 0.5 {
			t.Errorf("%v: want 0.5, have %v", name, v)
		}
	}

	// Entropy is largest at logit 0
	if h := discStats([]float64{0}, []float64{1}, 0).Entropy; math.Abs(h-math.Ln2) > 1e-12 {
		t.Errorf("entropy at logit 0: want ln 2, have %v", h)
	}
	if s.Entropy >= math.Ln2 || s.Entropy <= 0 {
		t.Errorf("entropy out of range: %v", s.Entropy)
	}
}

func TestExpertIteratorCoversDemos(t *testing.T) {
	demos, err := trajectory.Flatten(testDemos(2, 5))
	if err != nil {
		t.Fatal(err)
	}
	it := newExpertIterator(demos, 4, 3)

	seen := make(map[float64]int)
	for b := 0; b < 2; b++ {
		batch := it.next()
		if batch.Len() != 4 {
			t.Fatalf("batch size: want 4, have %v", batch.Len())
		}
		for i := 0; i < batch.Len(); i++ {
			obs, _, _, _ := batch.At(i)
			seen[obs[0]*1000+obs[1]]++
		}
	}
	for k, n := range seen {
		if n > 1 {
			t.Errorf("transition %v sampled %v times in one pass", k, n)
		}
	}

	// Iteration continues past the end of the demonstrations
	for b := 0; b < 5; b++ {
		if it.next().Len() != 4 {
			t.Fatal("iterator stopped")
		}
	}
}
