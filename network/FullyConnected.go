package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// addfcLayers adds fully connected layers of sizes hiddenSizes to g.
// Layer i has a bias unit if biases[i] is true and uses activation
// activations[i]. Weights are initialized with init and biases with
// zeroes.
func addfcLayers(g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, features int,
	prefix string) []Layer {
	layers := make([]Layer, 0, len(hiddenSizes))

	in := features
	for i, out := range hiddenSizes {
		weights := G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(in, out),
			G.WithName(fmt.Sprintf("%sL%dW", prefix, i)),
			G.WithInit(init),
		)

		var bias *G.Node
		if biases[i] {
			bias = G.NewMatrix(
				g,
				tensor.Float64,
				G.WithShape(1, out),
				G.WithName(fmt.Sprintf("%sL%dB", prefix, i)),
				G.WithInit(G.Zeroes()),
			)
		}

		layers = append(layers, &fcLayer{weights, bias, activations[i]})
		in = out
	}
	return layers
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, errors.Wrap(err, "fwd")
	}

	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
		if err != nil {
			return nil, errors.Wrap(err, "fwd")
		}
	}

	if f.act == nil || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

// CloneTo clones an fcLayer, including its weight values, to a new
// computational graph
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newBias *G.Node
	if f.bias != nil {
		newBias = f.bias.CloneTo(g)
	}

	return &fcLayer{
		weights: f.weights.CloneTo(g),
		bias:    newBias,
		act:     f.act,
	}
}

// Activation returns the activation of the layer
func (f *fcLayer) Activation() *Activation {
	return f.act
}

// Bias returns the bias node of the layer, or nil if it has no bias
func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

// Weights returns the weight node of the layer
func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// GobEncode implements the gob.GobEncoder interface. Only the values of
// the weights and bias are encoded.
func (f *fcLayer) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(nodeData(f.weights)); err != nil {
		return nil, errors.Wrap(err, "gobencode: could not encode weights")
	}

	var bias []float64
	if f.bias != nil {
		bias = nodeData(f.bias)
	}
	if err := enc.Encode(bias); err != nil {
		return nil, errors.Wrap(err, "gobencode: could not encode bias")
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The fcLayer must
// already have nodes of the encoded shapes.
func (f *fcLayer) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var weights, bias []float64
	if err := dec.Decode(&weights); err != nil {
		return errors.Wrap(err, "gobdecode: could not decode weights")
	}
	if err := dec.Decode(&bias); err != nil {
		return errors.Wrap(err, "gobdecode: could not decode bias")
	}

	if err := setNodeData(f.weights, weights); err != nil {
		return errors.Wrap(err, "gobdecode")
	}
	if f.bias != nil {
		if err := setNodeData(f.bias, bias); err != nil {
			return errors.Wrap(err, "gobdecode")
		}
	}
	return nil
}

// nodeData returns the backing data of a node holding a tensor.Dense
func nodeData(n *G.Node) []float64 {
	return n.Value().(*tensor.Dense).Data().([]float64)
}

// setNodeData copies data into the backing data of the value of n
func setNodeData(n *G.Node, data []float64) error {
	dst := nodeData(n)
	if len(dst) != len(data) {
		return errors.Errorf("setNodeData: node %v needs %v values, have %v",
			n.Name(), len(dst), len(data))
	}
	copy(dst, data)
	return nil
}
