package network

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// mlp implements a multi-layered perceptron with one or more outputs
type mlp struct {
	g          *G.ExprGraph
	layers     []Layer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for gobbing and cloning, not including the final
	// linear layer
	hiddenSizes []int
	biases      []bool
	activations []*Activation
	prefix      string

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// with outputs output nodes. The graph parameter g is populated with
// the MLP.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// linear layer with a bias unit is always added so that the network
// predicts outputs values for each input. For index i, hiddenSizes[i]
// is the number of nodes in hidden layer i, biases[i] is true if the
// hidden layer will contain a bias unit, and activations[i] is the
// activation function for hidden layer i. The parameter init
// determines the weight initialization scheme.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	return NewMultiHeadMLPFromInput(input, outputs, g, hiddenSizes, biases,
		init, activations, "")
}

// NewMultiHeadMLPFromInput returns a new MLP whose input is the given
// matrix node of shape (batch, features). Learnable nodes are named
// with the given prefix so that several networks can share a graph.
//
// See NewMultiHeadMLP for more details.
func NewMultiHeadMLPFromInput(input *G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix string) (NeuralNet, error) {
	network := &mlp{}
	err := network.build(input, outputs, g, hiddenSizes, biases, init,
		activations, prefix)
	if err != nil {
		return nil, err
	}
	return network, nil
}

// build constructs the MLP in place on the receiver. The output value
// is read into the receiver, so the MLP must not be copied afterwards.
func (e *mlp) build(input *G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix string) error {
	if len(hiddenSizes) != len(activations) {
		msg := "newMultiHeadMLP: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return errors.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newMultiHeadMLP: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return errors.Errorf(msg, len(hiddenSizes), len(biases))
	}
	if !input.IsMatrix() {
		return errors.New("newMultiHeadMLP: input must be a matrix")
	}
	if outputs < 1 {
		return errors.New("newMultiHeadMLP: need at least one output")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	// Add a final linear layer to predict the output heads
	sizes := append(append([]int(nil), hiddenSizes...), outputs)
	allBiases := append(append([]bool(nil), biases...), true)
	allActs := append(append([]*Activation(nil), activations...), Identity())

	layers := addfcLayers(g, sizes, allBiases, allActs, init, features,
		prefix)

	*e = mlp{
		g:           g,
		layers:      layers,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
		prefix:      prefix,
	}
	if _, err := e.fwd(input); err != nil {
		return errors.Wrap(err, "newMultiHeadMLP: could not compute forward "+
			"pass")
	}
	return nil
}

// Graph returns the computational graph of the MLP
func (e *mlp) Graph() *G.ExprGraph {
	return e.g
}

// CloneWithBatch clones an MLP to a new computational graph with a new
// input batch size. The clone starts with the same weights as the
// original but does not share them.
func (e *mlp) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, e.numInputs),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	l := make([]Layer, len(e.layers))
	for i := range e.layers {
		l[i] = e.layers[i].CloneTo(graph)
	}

	network := &mlp{
		g:           graph,
		layers:      l,
		input:       input,
		numOutputs:  e.numOutputs,
		numInputs:   e.numInputs,
		batchSize:   batchSize,
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
		prefix:      e.prefix,
	}
	if _, err := network.fwd(input); err != nil {
		return nil, errors.Wrap(err, "cloneWithBatch: could not clone")
	}

	return network, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *mlp) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single input vector
func (e *mlp) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network
func (e *mlp) Outputs() int {
	return e.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass. Inputs are in row-major order.
func (e *mlp) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return errors.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set copies the weights of source into the weights of the MLP
func (e *mlp) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := e.Learnables()
	if len(sourceNodes) != len(nodes) {
		return errors.Errorf("set: source has %v learnables, want %v",
			len(sourceNodes), len(nodes))
	}

	for i := range nodes {
		if err := setNodeData(nodes[i], nodeData(sourceNodes[i])); err != nil {
			return errors.Wrap(err, "set")
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the MLP
func (e *mlp) Learnables() G.Nodes {
	if e.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(e.layers))
		for i := range e.layers {
			learnables = append(learnables, e.layers[i].Weights())
			if bias := e.layers[i].Bias(); bias != nil {
				learnables = append(learnables, bias)
			}
		}
		e.learnables = G.Nodes(learnables)
	}
	return e.learnables
}

// Model returns the learnables nodes with their gradients
func (e *mlp) Model() []G.ValueGrad {
	if e.model == nil {
		model := make([]G.ValueGrad, 0, 2*len(e.layers))
		for _, node := range e.Learnables() {
			model = append(model, node)
		}
		e.model = model
	}
	return e.model
}

// fwd performs the forward pass of the MLP on the input node
func (e *mlp) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape != e.numInputs {
		return nil, errors.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, errors.Wrapf(err, "fwd: could not compute forward "+
				"pass of layer %v", i)
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the value of the output of the MLP after the graph
// has been run
func (e *mlp) Output() G.Value {
	return e.predVal
}

// Prediction returns the node of the computational graph the stores
// the output of the MLP
func (e *mlp) Prediction() *G.Node {
	return e.prediction
}

// GobEncode implements the gob.GobEncoder interface
func (e *mlp) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	header := []interface{}{e.numOutputs, e.numInputs, e.batchSize,
		e.hiddenSizes, e.biases, e.activations, e.prefix}
	for i, field := range header {
		if err := enc.Encode(field); err != nil {
			return nil, errors.Wrapf(err, "gobencode: could not encode header "+
				"field %v", i)
		}
	}

	for i, layer := range e.layers {
		if err := enc.Encode(layer.(*fcLayer)); err != nil {
			return nil, errors.Wrapf(err, "gobencode: could not encode layer %v",
				i)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The decoded MLP
// lives on a new computational graph.
func (e *mlp) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var numOutputs, numInputs, batchSize int
	var hiddenSizes []int
	var biases []bool
	var activations []*Activation
	var prefix string

	header := []interface{}{&numOutputs, &numInputs, &batchSize,
		&hiddenSizes, &biases, &activations, &prefix}
	for i, field := range header {
		if err := dec.Decode(field); err != nil {
			return errors.Wrapf(err, "gobdecode: could not decode header field "+
				"%v", i)
		}
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batchSize, numInputs), G.WithName("input"),
		G.WithInit(G.Zeroes()))
	err := e.build(input, numOutputs, g, hiddenSizes, biases, G.Zeroes(),
		activations, prefix)
	if err != nil {
		return errors.Wrap(err, "gobdecode: could not construct new MLP")
	}

	for i := range e.layers {
		if err := dec.Decode(e.layers[i].(*fcLayer)); err != nil {
			return errors.Wrapf(err, "gobdecode: could not decode layer %v", i)
		}
	}

	return nil
}

// Encode gob encodes a NeuralNet built by this package
func Encode(enc *gob.Encoder, net NeuralNet) error {
	m, ok := net.(*mlp)
	if !ok {
		return errors.Errorf("encode: cannot encode network of type %T", net)
	}
	return enc.Encode(m)
}

// Decode decodes a NeuralNet written with Encode
func Decode(dec *gob.Decoder) (NeuralNet, error) {
	m := &mlp{}
	if err := dec.Decode(m); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return m, nil
}
