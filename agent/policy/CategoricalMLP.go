// Package policy implements neural network policies
package policy

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/network"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// CategoricalMLP is a softmax policy over discrete actions whose
// logits are predicted by an MLP.
//
// Besides the logits, the computational graph holds the log
// probability of each action, the log probability of actions given
// with SetActions, and the entropy of the policy in each state. These
// nodes can be used to build losses for training. A CategoricalMLP
// created with forward set to true also holds a VM that runs its graph
// so that it can select actions.
type CategoricalMLP struct {
	network.NeuralNet
	vm G.VM

	logits    *G.Node
	logitsVal G.Value

	logProbAll    *G.Node
	logProbAllVal G.Value

	actionIndices          *G.Node
	logProbInputActions    *G.Node
	logProbInputActionsVal G.Value

	entropy    *G.Node
	entropyVal G.Value

	batch      int
	numActions int
	config     Config

	source rand.Source
}

// Config describes the architecture of a CategoricalMLP
type Config struct {
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     G.InitWFn
}

// NewCategoricalMLP returns a new CategoricalMLP on graph g for
// observations of features features and numActions actions, which
// takes batches of batch observations as input.
func NewCategoricalMLP(features, numActions, batch int, g *G.ExprGraph,
	c Config, seed uint64, forward bool) (*CategoricalMLP, error) {
	if numActions < 2 {
		return nil, errors.Errorf("newCategoricalMLP: need at least 2 "+
			"actions, have %v", numActions)
	}

	net, err := network.NewMultiHeadMLP(features, batch, numActions, g,
		c.HiddenSizes, c.Biases, c.InitWFn, c.Activations)
	if err != nil {
		return nil, errors.Wrap(err, "newCategoricalMLP: could not create policy "+
			"network")
	}
	logits := net.Prediction()

	// log π(·|s) = logits - logsumexp(logits)
	logSumExp := LogSumExp(logits, 1)
	logProbAll := G.Must(G.BroadcastSub(logits, logSumExp, nil, []byte{1}))

	// Log probability of actions inputted with SetActions, as one-hot
	// rows
	actionIndices := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, numActions),
		G.WithInit(G.Zeroes()),
		G.WithName("actionIndices"),
	)
	logProbInputActions := G.Must(G.HadamardProd(actionIndices, logProbAll))
	logProbInputActions = G.Must(G.Sum(logProbInputActions, 1))

	// H(π(·|s)) = -Σ π(a|s) log π(a|s)
	probs := G.Must(G.Exp(logProbAll))
	entropy := G.Must(G.HadamardProd(probs, logProbAll))
	entropy = G.Must(G.Neg(G.Must(G.Sum(entropy, 1))))

	pol := &CategoricalMLP{
		NeuralNet:           net,
		logits:              logits,
		logProbAll:          logProbAll,
		actionIndices:       actionIndices,
		logProbInputActions: logProbInputActions,
		entropy:             entropy,
		batch:               batch,
		numActions:          numActions,
		config:              c,
		source:              rand.NewSource(seed),
	}
	G.Read(pol.logits, &pol.logitsVal)
	G.Read(pol.logProbAll, &pol.logProbAllVal)
	G.Read(pol.logProbInputActions, &pol.logProbInputActionsVal)
	G.Read(pol.entropy, &pol.entropyVal)

	if forward {
		pol.vm = G.NewTapeMachine(g)
	}

	return pol, nil
}

// LogSumExp adds the numerically stable log-sum-exp of logits along
// an axis to the graph
func LogSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, along))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// CloneWithBatch returns a new CategoricalMLP on its own graph with
// the given batch size and the same weights
func (c *CategoricalMLP) CloneWithBatch(batch int, seed uint64,
	forward bool) (*CategoricalMLP, error) {
	clone, err := NewCategoricalMLP(c.Features(), c.numActions, batch,
		G.NewGraph(), c.config, seed, forward)
	if err != nil {
		return nil, errors.Wrap(err, "cloneWithBatch")
	}
	if err := clone.Set(c.NeuralNet); err != nil {
		return nil, errors.Wrap(err, "cloneWithBatch")
	}
	return clone, nil
}

// NumActions returns the number of actions of the policy
func (c *CategoricalMLP) NumActions() int {
	return c.numActions
}

// SetActions sets the actions whose log probabilities are computed by
// LogProbNode
func (c *CategoricalMLP) SetActions(actions []float64) error {
	if len(actions) != c.batch {
		return errors.Errorf("setActions: need %v actions, have %v", c.batch,
			len(actions))
	}

	oneHot := make([]float64, c.numActions*c.batch)
	for i, a := range actions {
		index := int(a)
		if index < 0 || index >= c.numActions {
			return errors.Errorf("setActions: illegal action %v", a)
		}
		oneHot[i*c.numActions+index] = 1.0
	}
	t := tensor.NewDense(tensor.Float64, []int{c.batch, c.numActions},
		tensor.WithBacking(oneHot))
	return G.Let(c.actionIndices, t)
}

// LogProbNode returns the node computing the log probability of the
// actions set with SetActions
func (c *CategoricalMLP) LogProbNode() *G.Node {
	return c.logProbInputActions
}

// EntropyNode returns the node computing the entropy of the policy in
// each input state
func (c *CategoricalMLP) EntropyNode() *G.Node {
	return c.entropy
}

// LogProbs returns the log probabilities of the actions set with
// SetActions after the graph has been run
func (c *CategoricalMLP) LogProbs() []float64 {
	return c.logProbInputActionsVal.Data().([]float64)
}

// Entropies returns the entropy of the policy in each input state
// after the graph has been run
func (c *CategoricalMLP) Entropies() []float64 {
	return c.entropyVal.Data().([]float64)
}

// Forward runs the forward pass of a CategoricalMLP created with
// forward set to true on a batch of observations
func (c *CategoricalMLP) Forward(obs []float64) error {
	if c.vm == nil {
		return errors.New("forward: policy has no VM")
	}
	if err := c.SetInput(obs); err != nil {
		return errors.Wrap(err, "forward")
	}

	defer c.vm.Reset()
	if err := c.vm.RunAll(); err != nil {
		return errors.Wrap(err, "forward")
	}
	return nil
}

// SelectActions selects one action for each observation in the batch
// obs. If deterministic is true, the most likely action is taken,
// with ties going to the lowest action. Otherwise actions are sampled.
// The log probability of each selected action is also returned.
func (c *CategoricalMLP) SelectActions(obs []float64,
	deterministic bool) ([]float64, []float64, error) {
	if err := c.Forward(obs); err != nil {
		return nil, nil, errors.Wrap(err, "selectActions")
	}
	logProbs := c.logProbAllVal.Data().([]float64)

	actions := make([]float64, c.batch)
	actionLogProbs := make([]float64, c.batch)
	probs := make([]float64, c.numActions)
	for i := range actions {
		row := logProbs[i*c.numActions : (i+1)*c.numActions]

		var action int
		if deterministic {
			action = floats.MaxIdx(row)
		} else {
			for j := range row {
				probs[j] = math.Exp(row[j])
			}
			action = int(distuv.NewCategorical(probs, c.source).Rand())
		}
		actions[i] = float64(action)
		actionLogProbs[i] = row[action]
	}
	return actions, actionLogProbs, nil
}

// Close closes the VM of the policy, if it has one
func (c *CategoricalMLP) Close() error {
	if c.vm == nil {
		return nil
	}
	return c.vm.Close()
}
