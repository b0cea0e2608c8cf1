// Package rewardnet implements learned reward functions over
// transitions, which act as discriminators in adversarial imitation
// learning
package rewardnet

import (
	"encoding/gob"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/initwfn"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/solver"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Config describes which parts of a transition a BasicRewardNet
// looks at and the architecture of its MLP
type Config struct {
	UseState     bool
	UseAction    bool
	UseNextState bool
	UseDone      bool

	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn

	// NormalizeInput normalizes inputs with a RunningNorm before the
	// first layer
	NormalizeInput bool
}

// DefaultConfig returns a Config which looks at states and actions
// with two hidden layers of 32 ReLU units and normalized inputs
func DefaultConfig() Config {
	return Config{
		UseState:       true,
		UseAction:      true,
		HiddenSizes:    []int{32, 32},
		Biases:         []bool{true, true},
		Activations:    []*network.Activation{network.ReLU(), network.ReLU()},
		InitWFn:        initwfn.NewGlorotU(1.0),
		NormalizeInput: true,
	}
}

// Validate returns an error if the configuration is invalid
func (c Config) Validate() error {
	if !c.UseState && !c.UseAction && !c.UseNextState && !c.UseDone {
		return errors.New("validate: reward net must use some part of " +
			"the transition")
	}
	if len(c.HiddenSizes) != len(c.Activations) {
		return errors.Errorf("validate: %v layers but %v activations",
			len(c.HiddenSizes), len(c.Activations))
	}
	if len(c.HiddenSizes) != len(c.Biases) {
		return errors.Errorf("validate: %v layers but %v biases",
			len(c.HiddenSizes), len(c.Biases))
	}
	if c.InitWFn == nil {
		return errors.New("validate: no weight initialiser")
	}
	return nil
}

// UnmarshalJSON implements the json.Unmarshaler interface. Fields
// missing from data keep their default values.
func (c *Config) UnmarshalJSON(data []byte) error {
	type config Config
	dec := config(DefaultConfig())
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*c = Config(dec)
	return nil
}

// BasicRewardNet is an MLP which outputs one logit per transition.
// Actions are one-hot encoded and the chosen parts of the transition
// are concatenated into a single input vector.
//
// The network is trained on batches of a fixed size with a
// binary cross entropy loss. Predictions can be made for batches of
// any size and do not change the input normalization statistics.
type BasicRewardNet struct {
	config     Config
	obsDim     int
	numActions int
	features   int
	norm       *network.RunningNorm

	trainNet   network.NeuralNet
	trainVM    G.VM
	trainBatch int
	labels     *G.Node
	lossVal    G.Value
	solver     *solver.Solver

	predictors map[int]*predictor
}

// predictor is a copy of the network for a specific batch size
type predictor struct {
	net network.NeuralNet
	vm  G.VM
}

// New returns a new BasicRewardNet for observations of obsDim
// features and numActions discrete actions, trained with the given
// solver on batches of trainBatch transitions
func New(obsDim, numActions, trainBatch int, c Config, s *solver.Solver) (
	*BasicRewardNet, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}
	if obsDim < 1 || numActions < 1 || trainBatch < 1 {
		return nil, errors.Errorf("new: observation dimensions (%v), "+
			"actions (%v), and batch size (%v) must be positive", obsDim,
			numActions, trainBatch)
	}
	if s == nil {
		return nil, errors.New("new: no solver")
	}

	var features int
	if c.UseState {
		features += obsDim
	}
	if c.UseAction {
		features += numActions
	}
	if c.UseNextState {
		features += obsDim
	}
	if c.UseDone {
		features++
	}

	trainNet, err := network.NewSingleHeadMLP(features, trainBatch,
		G.NewGraph(), c.HiddenSizes, c.Biases, c.InitWFn.InitWFn(),
		c.Activations)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create network")
	}
	logits := trainNet.Prediction()

	labels := G.NewMatrix(
		trainNet.Graph(),
		tensor.Float64,
		G.WithShape(logits.Shape()...),
		G.WithName("labels"),
		G.WithInit(G.Zeroes()),
	)

	// Binary cross entropy with logits l and labels y:
	// softplus(l) - y l
	loss := G.Must(G.Softplus(logits))
	loss = G.Must(G.Sub(loss, G.Must(G.HadamardProd(labels, logits))))
	loss = G.Must(G.Mean(loss))

	r := &BasicRewardNet{
		config:     c,
		obsDim:     obsDim,
		numActions: numActions,
		features:   features,
		trainNet:   trainNet,
		trainBatch: trainBatch,
		labels:     labels,
		predictors: make(map[int]*predictor),
	}
	if c.NormalizeInput {
		r.norm = network.NewRunningNorm(features)
	}
	G.Read(loss, &r.lossVal)

	if _, err := G.Grad(loss, trainNet.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "new: could not compute gradient")
	}
	r.trainVM = G.NewTapeMachine(trainNet.Graph(),
		G.BindDualValues(trainNet.Learnables()...))

	if r.solver, err = s.Clone(); err != nil {
		return nil, errors.Wrap(err, "new: could not create solver")
	}
	return r, nil
}

// TrainBatch returns the number of transitions in each training batch
func (r *BasicRewardNet) TrainBatch() int {
	return r.trainBatch
}

// Features returns the number of input features of the network
func (r *BasicRewardNet) Features() int {
	return r.features
}

// Norm returns the input normalizer of the network, or nil if inputs
// are not normalized
func (r *BasicRewardNet) Norm() *network.RunningNorm {
	return r.norm
}

// Predict returns the logit of each of a batch of transitions. Inputs
// are normalized with the current statistics, which are not updated.
func (r *BasicRewardNet) Predict(obs, acts, nextObs,
	dones []float64) ([]float64, error) {
	input, err := r.preprocess(obs, acts, nextObs, dones, false)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}

	pred, err := r.predictor(len(acts))
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}
	if err := pred.net.SetInput(input); err != nil {
		return nil, errors.Wrap(err, "predict")
	}

	defer pred.vm.Reset()
	if err := pred.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "predict")
	}
	out := pred.net.Output().Data().([]float64)
	return append([]float64(nil), out...), nil
}

// TrainStep takes one gradient step on the binary cross entropy
// between the network's predictions and labels, where a label is 1
// for transitions the network should score highly. The input
// normalization statistics are updated with the batch first. The
// logits of the batch before the step and the loss are returned.
func (r *BasicRewardNet) TrainStep(obs, acts, nextObs, dones,
	labels []float64) ([]float64, float64, error) {
	if len(acts) != r.trainBatch || len(labels) != r.trainBatch {
		return nil, 0, errors.Errorf("trainStep: need %v transitions and "+
			"labels, have %v and %v", r.trainBatch, len(acts), len(labels))
	}

	input, err := r.preprocess(obs, acts, nextObs, dones, true)
	if err != nil {
		return nil, 0, errors.Wrap(err, "trainStep")
	}
	if err := r.trainNet.SetInput(input); err != nil {
		return nil, 0, errors.Wrap(err, "trainStep")
	}
	labelsTensor := tensor.NewDense(
		tensor.Float64,
		r.labels.Shape(),
		tensor.WithBacking(labels),
	)
	if err := G.Let(r.labels, labelsTensor); err != nil {
		return nil, 0, errors.Wrap(err, "trainStep")
	}

	defer r.trainVM.Reset()
	if err := r.trainVM.RunAll(); err != nil {
		return nil, 0, errors.Wrap(err, "trainStep")
	}
	logits := append([]float64(nil),
		r.trainNet.Output().Data().([]float64)...)
	loss := r.lossVal.Data().(float64)

	if err := r.solver.Step(r.trainNet.Model()); err != nil {
		return nil, 0, errors.Wrap(err, "trainStep")
	}
	return logits, loss, nil
}

// preprocess concatenates the used parts of each transition into a
// row-major batch of inputs and normalizes it
func (r *BasicRewardNet) preprocess(obs, acts, nextObs, dones []float64,
	train bool) ([]float64, error) {
	n := len(acts)
	if n == 0 {
		return nil, errors.New("preprocess: empty batch")
	}
	if len(obs) != n*r.obsDim || len(nextObs) != n*r.obsDim ||
		len(dones) != n {
		return nil, errors.Errorf("preprocess: batch of %v actions needs "+
			"%v observations, next observations, and dones, have %v, %v, "+
			"%v", n, n*r.obsDim, len(obs), len(nextObs), len(dones))
	}

	input := make([]float64, 0, n*r.features)
	oneHot := make([]float64, r.numActions)
	for i := 0; i < n; i++ {
		if r.config.UseState {
			input = append(input, obs[i*r.obsDim:(i+1)*r.obsDim]...)
		}
		if r.config.UseAction {
			a := int(acts[i])
			if a < 0 || a >= r.numActions || float64(a) != acts[i] {
				return nil, errors.Errorf("preprocess: illegal action %v",
					acts[i])
			}
			for j := range oneHot {
				oneHot[j] = 0
			}
			oneHot[a] = 1
			input = append(input, oneHot...)
		}
		if r.config.UseNextState {
			input = append(input, nextObs[i*r.obsDim:(i+1)*r.obsDim]...)
		}
		if r.config.UseDone {
			input = append(input, dones[i])
		}
	}

	if r.norm == nil {
		return input, nil
	}
	if train {
		r.norm.Train()
	} else {
		r.norm.Eval()
	}
	return r.norm.Normalize(input)
}

// predictor returns a copy of the network with the current weights
// which takes batches of the given size
func (r *BasicRewardNet) predictor(batch int) (*predictor, error) {
	pred, ok := r.predictors[batch]
	if !ok {
		net, err := r.trainNet.CloneWithBatch(batch)
		if err != nil {
			return nil, err
		}
		pred = &predictor{net: net, vm: G.NewTapeMachine(net.Graph())}
		r.predictors[batch] = pred
		return pred, nil
	}
	return pred, pred.net.Set(r.trainNet)
}

// Save saves the configuration, normalization statistics, and weights
// of the network to a file
func (r *BasicRewardNet) Save(filename string) error {
	config, err := json.Marshal(r.config)
	if err != nil {
		return errors.Wrap(err, "save: could not encode config")
	}
	solverConfig, err := json.Marshal(r.solver)
	if err != nil {
		return errors.Wrap(err, "save: could not encode solver")
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	defer file.Close()

	enc := gob.NewEncoder(file)
	header := []interface{}{config, solverConfig, r.obsDim, r.numActions,
		r.trainBatch, r.norm != nil}
	for _, h := range header {
		if err := enc.Encode(h); err != nil {
			return errors.Wrap(err, "save")
		}
	}
	if r.norm != nil {
		if err := enc.Encode(r.norm); err != nil {
			return errors.Wrap(err, "save: could not encode normalizer")
		}
	}
	if err := network.Encode(enc, r.trainNet); err != nil {
		return errors.Wrap(err, "save: could not encode network")
	}
	return nil
}

// Load loads a BasicRewardNet saved with Save
func Load(filename string) (*BasicRewardNet, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}
	defer file.Close()
	dec := gob.NewDecoder(file)

	var (
		config, solverConfig          []byte
		obsDim, numActions, batchSize int
		normalized                    bool
	)
	header := []interface{}{&config, &solverConfig, &obsDim, &numActions,
		&batchSize, &normalized}
	for _, h := range header {
		if err := dec.Decode(h); err != nil {
			return nil, errors.Wrap(err, "load")
		}
	}

	var c Config
	if err := json.Unmarshal(config, &c); err != nil {
		return nil, errors.Wrap(err, "load: could not decode config")
	}
	s := &solver.Solver{}
	if err := json.Unmarshal(solverConfig, s); err != nil {
		return nil, errors.Wrap(err, "load: could not decode solver")
	}

	r, err := New(obsDim, numActions, batchSize, c, s)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}
	if normalized {
		norm := &network.RunningNorm{}
		if err := dec.Decode(norm); err != nil {
			return nil, errors.Wrap(err, "load: could not decode normalizer")
		}
		if norm.Features() != r.features {
			return nil, errors.Errorf("load: normalizer has %v features, "+
				"network has %v", norm.Features(), r.features)
		}
		r.norm = norm
	}

	net, err := network.Decode(dec)
	if err != nil {
		return nil, errors.Wrap(err, "load: could not decode network")
	}
	if err := r.trainNet.Set(net); err != nil {
		return nil, errors.Wrap(err, "load")
	}
	return r, nil
}

// Close closes the VMs of the network
func (r *BasicRewardNet) Close() error {
	if err := r.trainVM.Close(); err != nil {
		return err
	}
	for _, pred := range r.predictors {
		if err := pred.vm.Close(); err != nil {
			return err
		}
	}
	return nil
}
