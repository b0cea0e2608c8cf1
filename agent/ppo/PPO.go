// Package ppo implements the Proximal Policy Optimization algorithm
// for categorical policies in vectorized environments
package ppo

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent/policy"
	"github.com/samuelfneumann/goimitate/buffer/gae"
	"github.com/samuelfneumann/goimitate/environment/vecenv"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/solver"
	ts "github.com/samuelfneumann/goimitate/timestep"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// PPO implements Proximal Policy Optimization with the clipped
// surrogate objective and GAE(λ) advantages. This implementation is
// adapted from:
//
// https://arxiv.org/abs/1707.06347
// https://spinningup.openai.com/en/latest/algorithms/ppo.html
//
// Rollouts of NSteps steps are collected from each environment
// instance, after which the policy and value function are updated for
// NEpochs passes over the rollout in shuffled minibatches. Rollout
// samples which do not fill a whole minibatch are dropped in each
// epoch.
//
// The gradient of the clipped objective
//
//	min(r(θ) A, clip(r(θ), 1-ε, 1+ε) A)
//
// is A ∇r(θ) when the unclipped term is the minimum and zero
// otherwise. Before each gradient step a ratio copy of the policy
// computes r(θ) so that advantages of clipped samples can be masked to
// zero, leaving a graph which only needs to differentiate r(θ) A.
type PPO struct {
	config     Config
	env        vecenv.VecEnv
	nEnvs      int
	obsDim     int
	numActions int
	rng        *rand.Rand

	// Policy
	behaviour     *policy.CategoricalMLP // Acts in the environment
	ratioPolicy   *policy.CategoricalMLP // Computes ratios for masking
	predictors    map[int]*policy.CategoricalMLP
	trainPolicy   *policy.CategoricalMLP
	trainPolicyVM G.VM
	policySolver  *solver.Solver
	oldLogProbs   *G.Node
	advantages    *G.Node // Advantages of clipped samples are zero

	// State value critic
	valueFn             network.NeuralNet
	valueFnVM           G.VM
	trainValueFn        network.NeuralNet
	trainValueFnVM      G.VM
	trainValueFnTargets *G.Node
	valueFnLossVal      G.Value
	vSolver             *solver.Solver

	buffer            *gae.Buffer
	lastObs           []float64
	lastEpisodeStarts []float64
	numTimesteps      int
	numUpdates        int
}

// New creates and returns a new PPO agent acting in env
func New(env vecenv.VecEnv, c Config, seed uint64) (*PPO, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}

	numActions, err := env.ActionSpec().NumActions()
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	obsDim := env.ObservationSpec().Dims()
	nEnvs := env.NumEnvs()
	rng := rand.New(rand.NewSource(seed))

	buffer, err := gae.New(obsDim, c.NSteps, nEnvs, c.Gamma, c.GAELambda)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	// Create the training policy
	trainPolicy, err := policy.NewCategoricalMLP(obsDim, numActions,
		c.BatchSize, G.NewGraph(), c.policyConfig(), rng.Uint64(), false)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create policy")
	}
	g := trainPolicy.Graph()
	oldLogProbs := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(c.BatchSize),
		G.WithName("oldLogProbs"),
		G.WithInit(G.Zeroes()),
	)
	advantages := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(c.BatchSize),
		G.WithName("advantages"),
		G.WithInit(G.Zeroes()),
	)

	logRatio := G.Must(G.Sub(trainPolicy.LogProbNode(), oldLogProbs))
	ratio := G.Must(G.Exp(logRatio))
	policyLoss := G.Must(G.HadamardProd(ratio, advantages))
	policyLoss = G.Must(G.Mean(policyLoss))
	policyLoss = G.Must(G.Neg(policyLoss))
	if c.EntCoef > 0 {
		entropy := G.Must(G.Mean(trainPolicy.EntropyNode()))
		bonus := G.Must(G.Mul(G.NewConstant(c.EntCoef), entropy))
		policyLoss = G.Must(G.Sub(policyLoss, bonus))
	}

	if _, err := G.Grad(policyLoss, trainPolicy.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "new: could not compute policy "+
			"gradient")
	}
	trainPolicyVM := G.NewTapeMachine(g,
		G.BindDualValues(trainPolicy.Learnables()...))

	// Create the behaviour and ratio policies
	behaviour, err := trainPolicy.CloneWithBatch(nEnvs, rng.Uint64(), true)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create behaviour policy")
	}
	ratioPolicy, err := trainPolicy.CloneWithBatch(c.BatchSize, rng.Uint64(), true)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create ratio policy")
	}

	// Create the training value function
	trainValueFn, err := network.NewSingleHeadMLP(obsDim, c.BatchSize,
		G.NewGraph(), c.ValueFnLayers, c.ValueFnBiases, c.InitWFn.InitWFn(),
		c.ValueFnActivations)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create value function")
	}
	trainValueFnTargets := G.NewMatrix(
		trainValueFn.Graph(),
		tensor.Float64,
		G.WithShape(trainValueFn.Prediction().Shape()...),
		G.WithName("valueFnTargets"),
		G.WithInit(G.Zeroes()),
	)

	valueFnLoss := G.Must(G.Sub(trainValueFn.Prediction(), trainValueFnTargets))
	valueFnLoss = G.Must(G.Square(valueFnLoss))
	valueFnLoss = G.Must(G.Mean(valueFnLoss))

	p := &PPO{
		config:     c,
		env:        env,
		nEnvs:      nEnvs,
		obsDim:     obsDim,
		numActions: numActions,
		rng:        rng,

		behaviour:     behaviour,
		ratioPolicy:   ratioPolicy,
		predictors:    make(map[int]*policy.CategoricalMLP),
		trainPolicy:   trainPolicy,
		trainPolicyVM: trainPolicyVM,
		oldLogProbs:   oldLogProbs,
		advantages:    advantages,

		trainValueFn:        trainValueFn,
		trainValueFnTargets: trainValueFnTargets,

		buffer: buffer,
	}
	G.Read(valueFnLoss, &p.valueFnLossVal)

	if _, err := G.Grad(valueFnLoss, trainValueFn.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "new: could not compute value "+
			"function gradient")
	}
	p.trainValueFnVM = G.NewTapeMachine(trainValueFn.Graph(),
		G.BindDualValues(trainValueFn.Learnables()...))

	// Create the prediction value function
	p.valueFn, err = trainValueFn.CloneWithBatch(nEnvs)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create value function")
	}
	p.valueFnVM = G.NewTapeMachine(p.valueFn.Graph())

	// Each agent needs its own solver state
	if p.policySolver, err = c.PolicySolver.Clone(); err != nil {
		return nil, errors.Wrap(err, "new: could not create policy solver")
	}
	if p.vSolver, err = c.VSolver.Clone(); err != nil {
		return nil, errors.Wrap(err, "new: could not create value function "+
			"solver")
	}

	return p, nil
}

// SetEnv sets the environment the agent learns in. The environment
// must match the one the agent was created with in number of
// instances, observations, and actions. The next call to Learn resets
// the environment.
func (p *PPO) SetEnv(env vecenv.VecEnv) error {
	if env.NumEnvs() != p.nEnvs {
		return errors.Errorf("setEnv: need %v environments, have %v",
			p.nEnvs, env.NumEnvs())
	}
	if dims := env.ObservationSpec().Dims(); dims != p.obsDim {
		return errors.Errorf("setEnv: need %v observation dimensions, "+
			"have %v", p.obsDim, dims)
	}
	numActions, err := env.ActionSpec().NumActions()
	if err != nil {
		return errors.Wrap(err, "setEnv")
	}
	if numActions != p.numActions {
		return errors.Errorf("setEnv: need %v actions, have %v",
			p.numActions, numActions)
	}

	p.env = env
	p.lastObs = nil
	p.lastEpisodeStarts = nil
	return nil
}

// Env returns the environment the agent learns in
func (p *PPO) Env() vecenv.VecEnv {
	return p.env
}

// NumTimesteps returns the number of environment steps taken so far,
// summed over all instances
func (p *PPO) NumTimesteps() int {
	return p.numTimesteps
}

// RolloutSteps returns the number of environment steps taken between
// consecutive updates, summed over all instances
func (p *PPO) RolloutSteps() int {
	return p.config.NSteps * p.nEnvs
}

// Learn collects rollouts and updates the agent until at least
// totalTimesteps more environment steps have been taken. Since updates
// happen only on full rollouts, the number of steps taken is rounded
// up to a multiple of RolloutSteps.
func (p *PPO) Learn(ctx context.Context, totalTimesteps int) error {
	if totalTimesteps < 1 {
		return errors.Errorf("learn: total timesteps must be positive, "+
			"have %v", totalTimesteps)
	}

	if p.lastObs == nil {
		obs, err := p.env.Reset()
		if err != nil {
			return errors.Wrap(err, "learn")
		}
		p.lastObs = obs
		p.lastEpisodeStarts = make([]float64, p.nEnvs)
		for i := range p.lastEpisodeStarts {
			p.lastEpisodeStarts[i] = 1.0
		}
	}

	target := p.numTimesteps + totalTimesteps
	for p.numTimesteps < target {
		if err := p.collectRollouts(ctx); err != nil {
			return errors.Wrap(err, "learn")
		}
		if err := p.train(); err != nil {
			return errors.Wrap(err, "learn")
		}
	}
	return nil
}

// collectRollouts fills the rollout buffer with NSteps steps of each
// environment instance and computes advantages
func (p *PPO) collectRollouts(ctx context.Context) error {
	p.buffer.Reset()

	var dones []float64
	for !p.buffer.Full() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "collectRollouts")
		}

		actions, logProbs, err := p.behaviour.SelectActions(p.lastObs, false)
		if err != nil {
			return errors.Wrap(err, "collectRollouts")
		}
		values, err := p.values(p.lastObs)
		if err != nil {
			return errors.Wrap(err, "collectRollouts")
		}

		steps, err := p.env.Step(actions)
		if err != nil {
			return errors.Wrap(err, "collectRollouts")
		}
		p.numTimesteps += p.nEnvs

		rewards := make([]float64, p.nEnvs)
		dones = make([]float64, p.nEnvs)
		for i, step := range steps {
			rewards[i] = step.Reward
			if step.Last() {
				dones[i] = 1.0
			}
		}
		if err := p.bootstrapTimeouts(steps, rewards); err != nil {
			return errors.Wrap(err, "collectRollouts")
		}

		err = p.buffer.Add(p.lastObs, actions, rewards, p.lastEpisodeStarts,
			values, logProbs)
		if err != nil {
			return errors.Wrap(err, "collectRollouts")
		}

		p.lastObs = p.env.Observations()
		p.lastEpisodeStarts = dones
	}

	lastValues, err := p.values(p.lastObs)
	if err != nil {
		return errors.Wrap(err, "collectRollouts")
	}
	return p.buffer.ComputeReturnsAndAdvantage(lastValues, dones)
}

// bootstrapTimeouts adds the discounted value of the last observation
// to the reward of each episode that was cut off by a step limit
func (p *PPO) bootstrapTimeouts(steps []ts.TimeStep, rewards []float64) error {
	var timeout bool
	obs := make([]float64, p.nEnvs*p.obsDim)
	for i, step := range steps {
		if !step.TimeoutEnd() {
			continue
		}
		timeout = true
		for j := 0; j < p.obsDim; j++ {
			obs[i*p.obsDim+j] = step.Observation.AtVec(j)
		}
	}
	if !timeout {
		return nil
	}

	values, err := p.values(obs)
	if err != nil {
		return errors.Wrap(err, "bootstrapTimeouts")
	}
	for i, step := range steps {
		if step.TimeoutEnd() {
			rewards[i] += p.config.Gamma * values[i]
		}
	}
	return nil
}

// values predicts the value of each of a batch of nEnvs observations
func (p *PPO) values(obs []float64) ([]float64, error) {
	if err := p.valueFn.SetInput(obs); err != nil {
		return nil, errors.Wrap(err, "values")
	}

	defer p.valueFnVM.Reset()
	if err := p.valueFnVM.RunAll(); err != nil {
		return nil, errors.Wrap(err, "values")
	}

	out := p.valueFn.Output().Data().([]float64)
	return append([]float64(nil), out...), nil
}

// trainStats accumulates statistics of an update
type trainStats struct {
	samples      int
	minibatches  int
	policyLoss   float64
	valueLoss    float64
	entropy      float64
	approxKL     float64
	clipFraction float64
}

// train updates the policy and value function on a full rollout
func (p *PPO) train() error {
	rollout, err := p.buffer.Get()
	if err != nil {
		return errors.Wrap(err, "train")
	}
	size := rollout.Len()
	batch := p.config.BatchSize
	if size < batch {
		return errors.Errorf("train: rollout of %v samples is smaller "+
			"than a minibatch of %v", size, batch)
	}

	obs := make([]float64, batch*p.obsDim)
	acts := make([]float64, batch)
	oldLogProbs := make([]float64, batch)
	advantages := make([]float64, batch)
	returns := make([]float64, batch)

	var stats trainStats
	for epoch := 0; epoch < p.config.NEpochs; epoch++ {
		perm := p.rng.Perm(size)
		for start := 0; start+batch <= size; start += batch {
			for j, idx := range perm[start : start+batch] {
				copy(obs[j*p.obsDim:(j+1)*p.obsDim],
					rollout.Obs[idx*p.obsDim:(idx+1)*p.obsDim])
				acts[j] = rollout.Acts[idx]
				oldLogProbs[j] = rollout.LogProbs[idx]
				advantages[j] = rollout.Advantages[idx]
				returns[j] = rollout.Returns[idx]
			}
			if p.config.NormalizeAdvantage && batch > 1 {
				normalize(advantages)
			}

			err := p.policyStep(obs, acts, oldLogProbs, advantages, &stats)
			if err != nil {
				return errors.Wrap(err, "train")
			}
			if err := p.valueStep(obs, returns, &stats); err != nil {
				return errors.Wrap(err, "train")
			}
			stats.minibatches++
		}
	}

	if err := p.behaviour.Set(p.trainPolicy.NeuralNet); err != nil {
		return errors.Wrap(err, "train")
	}
	if err := p.valueFn.Set(p.trainValueFn); err != nil {
		return errors.Wrap(err, "train")
	}
	p.numUpdates++

	n := float64(stats.samples)
	log.WithFields(log.Fields{
		"update":       p.numUpdates,
		"timesteps":    p.numTimesteps,
		"policyLoss":   stats.policyLoss / n,
		"valueLoss":    stats.valueLoss / float64(stats.minibatches),
		"entropy":      stats.entropy / n,
		"approxKL":     stats.approxKL / n,
		"clipFraction": stats.clipFraction / n,
	}).Info("ppo: update")

	return nil
}

// policyStep takes one gradient step on the clipped objective for a
// minibatch
func (p *PPO) policyStep(obs, acts, oldLogProbs, advantages []float64,
	stats *trainStats) error {
	clip := p.config.ClipRange

	// Probe the current ratios to find which samples are clipped
	if err := p.ratioPolicy.Set(p.trainPolicy.NeuralNet); err != nil {
		return errors.Wrap(err, "policyStep")
	}
	if err := p.ratioPolicy.SetActions(acts); err != nil {
		return errors.Wrap(err, "policyStep")
	}
	if err := p.ratioPolicy.Forward(obs); err != nil {
		return errors.Wrap(err, "policyStep")
	}
	logProbs := p.ratioPolicy.LogProbs()

	masked := make([]float64, len(advantages))
	for i := range logProbs {
		logRatio := logProbs[i] - oldLogProbs[i]
		ratio := math.Exp(logRatio)
		clipped := math.Max(1-clip, math.Min(ratio, 1+clip))

		unclippedObj := ratio * advantages[i]
		clippedObj := clipped * advantages[i]
		if unclippedObj <= clippedObj {
			masked[i] = advantages[i]
		}

		stats.policyLoss -= math.Min(unclippedObj, clippedObj)
		stats.approxKL += (ratio - 1) - logRatio
		if math.Abs(ratio-1) > clip {
			stats.clipFraction++
		}
	}
	for _, h := range p.ratioPolicy.Entropies() {
		stats.entropy += h
	}
	stats.samples += len(logProbs)

	// Gradient step
	if err := p.trainPolicy.SetInput(obs); err != nil {
		return errors.Wrap(err, "policyStep")
	}
	if err := p.trainPolicy.SetActions(acts); err != nil {
		return errors.Wrap(err, "policyStep")
	}
	if err := letVector(p.oldLogProbs, oldLogProbs); err != nil {
		return errors.Wrap(err, "policyStep")
	}
	if err := letVector(p.advantages, masked); err != nil {
		return errors.Wrap(err, "policyStep")
	}

	defer p.trainPolicyVM.Reset()
	if err := p.trainPolicyVM.RunAll(); err != nil {
		return errors.Wrap(err, "policyStep")
	}
	if err := p.policySolver.Step(p.trainPolicy.Model()); err != nil {
		return errors.Wrap(err, "policyStep")
	}
	return nil
}

// valueStep takes one gradient step on the mean squared error between
// the value function and the returns of a minibatch
func (p *PPO) valueStep(obs, returns []float64, stats *trainStats) error {
	if err := p.trainValueFn.SetInput(obs); err != nil {
		return errors.Wrap(err, "valueStep")
	}
	targets := tensor.NewDense(
		tensor.Float64,
		p.trainValueFnTargets.Shape(),
		tensor.WithBacking(returns),
	)
	if err := G.Let(p.trainValueFnTargets, targets); err != nil {
		return errors.Wrap(err, "valueStep")
	}

	defer p.trainValueFnVM.Reset()
	if err := p.trainValueFnVM.RunAll(); err != nil {
		return errors.Wrap(err, "valueStep")
	}
	if err := p.vSolver.Step(p.trainValueFn.Model()); err != nil {
		return errors.Wrap(err, "valueStep")
	}
	stats.valueLoss += p.valueFnLossVal.Data().(float64)
	return nil
}

// letVector binds data to a vector node
func letVector(n *G.Node, data []float64) error {
	t := tensor.NewDense(tensor.Float64, n.Shape(), tensor.WithBacking(data))
	return G.Let(n, t)
}

// normalize standardizes x in place
func normalize(x []float64) {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	var variance float64
	for _, v := range x {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(x)-1))

	for i := range x {
		x[i] = (x[i] - mean) / (std + 1e-8)
	}
}

// Predict returns one action for each observation in obs, which may
// hold any number of observations in row-major order
func (p *PPO) Predict(obs []float64, deterministic bool) ([]float64, error) {
	if len(obs) == 0 || len(obs)%p.obsDim != 0 {
		return nil, errors.Errorf("predict: observations of length %v "+
			"cannot be split into observations of %v features", len(obs),
			p.obsDim)
	}

	pred, err := p.predictor(len(obs) / p.obsDim)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}
	actions, _, err := pred.SelectActions(obs, deterministic)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}
	return actions, nil
}

// predictor returns a policy with the current weights which takes
// batches of the given size
func (p *PPO) predictor(batch int) (*policy.CategoricalMLP, error) {
	if batch == p.nEnvs {
		return p.behaviour, nil
	}

	pred, ok := p.predictors[batch]
	if !ok {
		pred, err := p.trainPolicy.CloneWithBatch(batch, p.rng.Uint64(), true)
		if err != nil {
			return nil, err
		}
		p.predictors[batch] = pred
		return pred, nil
	}
	return pred, pred.Set(p.trainPolicy.NeuralNet)
}

// Save saves the configuration, timestep count, and networks of the
// agent to a file
func (p *PPO) Save(filename string) error {
	config, err := json.Marshal(p.config)
	if err != nil {
		return errors.Wrap(err, "save: could not encode config")
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	defer file.Close()

	enc := gob.NewEncoder(file)
	if err := enc.Encode(config); err != nil {
		return errors.Wrap(err, "save")
	}
	if err := enc.Encode(p.numTimesteps); err != nil {
		return errors.Wrap(err, "save")
	}
	if err := network.Encode(enc, p.trainPolicy.NeuralNet); err != nil {
		return errors.Wrap(err, "save: could not encode policy")
	}
	if err := network.Encode(enc, p.trainValueFn); err != nil {
		return errors.Wrap(err, "save: could not encode value function")
	}
	return nil
}

// Load loads an agent saved with Save, which then acts in env
func Load(filename string, env vecenv.VecEnv, seed uint64) (*PPO, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}
	defer file.Close()
	dec := gob.NewDecoder(file)

	var config []byte
	if err := dec.Decode(&config); err != nil {
		return nil, errors.Wrap(err, "load: could not decode config")
	}
	var c Config
	if err := json.Unmarshal(config, &c); err != nil {
		return nil, errors.Wrap(err, "load: could not decode config")
	}

	var numTimesteps int
	if err := dec.Decode(&numTimesteps); err != nil {
		return nil, errors.Wrap(err, "load")
	}
	policyNet, err := network.Decode(dec)
	if err != nil {
		return nil, errors.Wrap(err, "load: could not decode policy")
	}
	valueFn, err := network.Decode(dec)
	if err != nil {
		return nil, errors.Wrap(err, "load: could not decode value function")
	}

	p, err := New(env, c, seed)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}
	for _, pair := range [][2]network.NeuralNet{
		{p.trainPolicy.NeuralNet, policyNet},
		{p.behaviour.NeuralNet, policyNet},
		{p.trainValueFn, valueFn},
		{p.valueFn, valueFn},
	} {
		if err := pair[0].Set(pair[1]); err != nil {
			return nil, errors.Wrap(err, "load")
		}
	}
	p.numTimesteps = numTimesteps

	return p, nil
}

// Close closes the VMs of the agent
func (p *PPO) Close() error {
	vms := []G.VM{p.trainPolicyVM, p.trainValueFnVM, p.valueFnVM}
	for _, vm := range vms {
		if err := vm.Close(); err != nil {
			return err
		}
	}

	pols := []*policy.CategoricalMLP{p.behaviour, p.ratioPolicy}
	for _, pred := range p.predictors {
		pols = append(pols, pred)
	}
	for _, pol := range pols {
		if err := pol.Close(); err != nil {
			return err
		}
	}
	return nil
}
