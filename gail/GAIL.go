// Package gail implements Generative Adversarial Imitation Learning:
//
// https://arxiv.org/abs/1606.03476
//
// A discriminator is trained to tell expert transitions from those of
// a learner, while the learner is trained with a policy gradient
// method on rewards given by the discriminator.
package gail

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent"
	"github.com/samuelfneumann/goimitate/buffer/replay"
	"github.com/samuelfneumann/goimitate/environment/vecenv"
	"github.com/samuelfneumann/goimitate/trajectory"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

// RewardNet is a discriminator over transitions which outputs one
// logit per transition. Higher logits mean a transition is more likely
// to come from the expert.
type RewardNet interface {
	Predict(obs, acts, nextObs, dones []float64) ([]float64, error)

	// TrainStep takes one gradient step on a batch of labelled
	// transitions and returns the logits before the step and the loss
	TrainStep(obs, acts, nextObs, dones, labels []float64) ([]float64,
		float64, error)

	// TrainBatch returns the number of transitions TrainStep takes
	TrainBatch() int
}

// DiscStats are statistics of a single discriminator update
type DiscStats struct {
	Loss                 float64
	Accuracy             float64
	ExpertAccuracy       float64
	GenAccuracy          float64
	Entropy              float64 // Mean entropy of the predicted labels
	ProportionExpertTrue float64
	ProportionExpertPred float64
	NExpert              int
	NGenerated           int
}

// Callback is called at the end of each training round
type Callback func(round int) error

// Trainer trains a learner to imitate expert demonstrations with GAIL.
//
// The environment given to the trainer is wrapped so that all
// transitions are recorded for discriminator updates and rewards are
// replaced with those of the discriminator:
//
//	r(s, a) = -log(1 - D(s, a)) = softplus(logit(s, a))
//
// The wrapped environment is installed into the learner.
type Trainer struct {
	config            Config
	genTrainTimesteps int

	env       vecenv.VecEnv
	buffering *vecenv.BufferingWrapper
	train     *vecenv.RewardWrapper

	learner   agent.Learner
	rewardNet RewardNet

	expert *expertIterator
	replay *replay.Buffer
	round  int
}

// New returns a new Trainer which trains learner to imitate demos in
// env
func New(demos []trajectory.Trajectory, env vecenv.VecEnv,
	learner agent.Learner, rewardNet RewardNet, c Config,
	seed uint64) (*Trainer, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}
	if rewardNet.TrainBatch() != 2*c.DemoBatchSize {
		return nil, errors.Errorf("new: reward net trains on batches of "+
			"%v, need %v expert and generator transitions",
			rewardNet.TrainBatch(), 2*c.DemoBatchSize)
	}

	transitions, err := trajectory.Flatten(demos)
	if err != nil {
		return nil, errors.Wrap(err, "new: invalid demonstrations")
	}
	if transitions.Len() < c.DemoBatchSize {
		return nil, errors.Errorf("new: %v demonstration transitions "+
			"cannot fill a batch of %v", transitions.Len(), c.DemoBatchSize)
	}
	obsDim := env.ObservationSpec().Dims()
	if transitions.ObsDim != obsDim {
		return nil, errors.Errorf("new: demonstrations have %v features, "+
			"environment has %v", transitions.ObsDim, obsDim)
	}

	rng := rand.New(rand.NewSource(seed))
	buffer, err := replay.New(obsDim, c.GenReplayBufferCapacity, rng.Uint64())
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	genTrainTimesteps := c.GenTrainTimesteps
	if genTrainTimesteps == 0 {
		genTrainTimesteps = learner.RolloutSteps()
	}

	t := &Trainer{
		config:            c,
		genTrainTimesteps: genTrainTimesteps,
		env:               env,
		learner:           learner,
		rewardNet:         rewardNet,
		expert:            newExpertIterator(transitions, c.DemoBatchSize, rng.Uint64()),
		replay:            buffer,
	}
	t.buffering = vecenv.NewBufferingWrapper(env)
	t.train = vecenv.NewRewardWrapper(t.buffering, t.reward)

	if err := learner.SetEnv(t.train); err != nil {
		return nil, errors.Wrap(err, "new: could not set learner environment")
	}
	return t, nil
}

// GenTrainTimesteps returns the number of environment steps in each
// generator update
func (t *Trainer) GenTrainTimesteps() int {
	return t.genTrainTimesteps
}

// Round returns the number of completed training rounds
func (t *Trainer) Round() int {
	return t.round
}

// VecEnvTrain returns the wrapped environment the learner trains in
func (t *Trainer) VecEnvTrain() vecenv.VecEnv {
	return t.train
}

// reward returns the discriminator reward of each transition in a
// batch
func (t *Trainer) reward(obs, acts, nextObs, dones []float64) ([]float64,
	error) {
	logits, err := t.rewardNet.Predict(obs, acts, nextObs, dones)
	if err != nil {
		return nil, err
	}
	for i := range logits {
		logits[i] = softplus(logits[i])
	}
	return logits, nil
}

// Train trains for totalTimesteps / GenTrainTimesteps rounds, each made
// of one generator update followed by NDiscUpdatesPerRound
// discriminator updates. If callback is not nil, it is called at the
// end of each round.
func (t *Trainer) Train(ctx context.Context, totalTimesteps int,
	callback Callback) error {
	rounds := totalTimesteps / t.genTrainTimesteps
	if rounds < 1 {
		return errors.Errorf("train: %v timesteps are fewer than one "+
			"generator update of %v", totalTimesteps, t.genTrainTimesteps)
	}

	for r := 0; r < rounds; r++ {
		if err := t.TrainGen(ctx, t.genTrainTimesteps); err != nil {
			return errors.Wrapf(err, "train: round %v", t.round)
		}

		var stats DiscStats
		for k := 0; k < t.config.NDiscUpdatesPerRound; k++ {
			var err error
			if stats, err = t.TrainDisc(); err != nil {
				return errors.Wrapf(err, "train: round %v", t.round)
			}
		}
		log.WithFields(log.Fields{
			"round":         t.round,
			"timesteps":     t.learner.NumTimesteps(),
			"discLoss":      stats.Loss,
			"discAcc":       stats.Accuracy,
			"discAccExpert": stats.ExpertAccuracy,
			"discAccGen":    stats.GenAccuracy,
			"discEntropy":   stats.Entropy,
		}).Info("gail: round")

		if callback != nil {
			if err := callback(t.round); err != nil {
				return errors.Wrapf(err, "train: callback at round %v",
					t.round)
			}
		}
		t.round++
	}
	return nil
}

// TrainGen trains the learner for steps environment steps on
// discriminator rewards and stores the generated transitions for
// discriminator updates
func (t *Trainer) TrainGen(ctx context.Context, steps int) error {
	if err := t.learner.Learn(ctx, steps); err != nil {
		return errors.Wrap(err, "trainGen")
	}

	transitions, lens := t.buffering.PopTransitions()
	checkFixedHorizon(lens)
	if err := t.replay.Store(transitions); err != nil {
		return errors.Wrap(err, "trainGen")
	}

	// Episodes are only recorded if the environment was built with a
	// RolloutInfo wrapper
	if episodes, err := t.env.PopEpisodes(); err == nil && len(episodes) > 0 {
		stats := trajectory.Stats(episodes)
		log.WithFields(log.Fields{
			"episodes":   stats.NumTrajectories,
			"returnMean": stats.ReturnMean,
			"lengthMean": stats.LenMean,
		}).Info("gail: generator rollouts")
	}
	return nil
}

// checkFixedHorizon warns if episodes had different lengths, which
// leaks information about the reward through episode termination
func checkFixedHorizon(lens []int) {
	for _, l := range lens {
		if l != lens[0] {
			log.WithField("lengths", lens).Warn("gail: episodes of " +
				"variable length; termination may leak reward information")
			return
		}
	}
}

// TrainDisc takes one discriminator step on DemoBatchSize expert and
// DemoBatchSize generator transitions. Expert transitions are labelled
// 1 and generator transitions 0.
func (t *Trainer) TrainDisc() (DiscStats, error) {
	gen, err := t.replay.Sample(t.config.DemoBatchSize)
	if err != nil {
		return DiscStats{}, errors.Wrap(err, "trainDisc: no generator "+
			"samples")
	}
	expert := t.expert.next()

	batch := trajectory.NewTransitions(gen.ObsDim, 2*t.config.DemoBatchSize)
	if err := batch.Append(gen); err != nil {
		return DiscStats{}, errors.Wrap(err, "trainDisc")
	}
	if err := batch.Append(expert); err != nil {
		return DiscStats{}, errors.Wrap(err, "trainDisc")
	}
	labels := make([]float64, batch.Len())
	for i := gen.Len(); i < len(labels); i++ {
		labels[i] = 1.0
	}

	logits, loss, err := t.rewardNet.TrainStep(batch.Obs, batch.Acts,
		batch.NextObs, batch.Dones, labels)
	if err != nil {
		return DiscStats{}, errors.Wrap(err, "trainDisc")
	}
	return discStats(logits, labels, loss), nil
}

// discStats computes statistics of discriminator predictions
func discStats(logits, labels []float64, loss float64) DiscStats {
	var nExpert, nExpertPred, correct, correctExpert, correctGen int
	var entropy float64
	for i, l := range logits {
		predExpert := l >= 0
		isExpert := labels[i] == 1

		if isExpert {
			nExpert++
		}
		if predExpert {
			nExpertPred++
		}
		if predExpert == isExpert {
			correct++
			if isExpert {
				correctExpert++
			} else {
				correctGen++
			}
		}

		// Entropy of a Bernoulli with logit l
		p := sigmoid(l)
		entropy += p*softplus(-l) + (1-p)*softplus(l)
	}

	n := len(logits)
	nGen := n - nExpert
	return DiscStats{
		Loss:                 loss,
		Accuracy:             float64(correct) / float64(n),
		ExpertAccuracy:       ratio(correctExpert, nExpert),
		GenAccuracy:          ratio(correctGen, nGen),
		Entropy:              entropy / float64(n),
		ProportionExpertTrue: float64(nExpert) / float64(n),
		ProportionExpertPred: float64(nExpertPred) / float64(n),
		NExpert:              nExpert,
		NGenerated:           nGen,
	}
}

func ratio(a, b int) float64 {
	if b == 0 {
		return math.NaN()
	}
	return float64(a) / float64(b)
}

// softplus computes log(1 + exp(x)) without overflow
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// expertIterator endlessly iterates over shuffled batches of expert
// transitions. Transitions left over after the last full batch of a
// pass are skipped in that pass.
type expertIterator struct {
	demos *trajectory.Transitions
	batch int
	rng   *rand.Rand
	perm  []int
	pos   int
}

func newExpertIterator(demos *trajectory.Transitions, batch int,
	seed uint64) *expertIterator {
	return &expertIterator{
		demos: demos,
		batch: batch,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// next returns the next batch of expert transitions
func (e *expertIterator) next() *trajectory.Transitions {
	if e.perm == nil || e.pos+e.batch > len(e.perm) {
		e.perm = e.rng.Perm(e.demos.Len())
		e.pos = 0
	}

	out := trajectory.NewTransitions(e.demos.ObsDim, e.batch)
	for _, i := range e.perm[e.pos : e.pos+e.batch] {
		obs, act, next, done := e.demos.At(i)
		out.Add(obs, act, next, done == 1)
	}
	e.pos += e.batch
	return out
}
