// Package expert implements hand-designed expert policies used to
// produce demonstrations
package expert

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/environment/classiccontrol/mountaincar"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	left  float64 = 0
	right float64 = 2
)

// MountainCar is an expert for discrete action Mountain Car. It pumps
// energy into the car by always accelerating in the direction the car
// is travelling. A stopped car accelerates right.
//
// When not predicting deterministically, a random action is taken
// with probability Epsilon.
type MountainCar struct {
	epsilon float64
	uniform distuv.Uniform
	actions distuv.Uniform
}

// NewMountainCar returns a new Mountain Car expert
func NewMountainCar(epsilon float64, seed uint64) (*MountainCar, error) {
	if epsilon < 0 || epsilon > 1 {
		return nil, errors.Errorf("newMountainCar: epsilon %v ∉ [0, 1]",
			epsilon)
	}

	source := rand.NewSource(seed)
	return &MountainCar{
		epsilon: epsilon,
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: source},
		actions: distuv.Uniform{
			Min: float64(mountaincar.MinDiscreteAction),
			Max: float64(mountaincar.MaxDiscreteAction + 1),
			Src: source,
		},
	}, nil
}

// Predict returns the expert action for each observation
func (m *MountainCar) Predict(obs []float64,
	deterministic bool) ([]float64, error) {
	dims := mountaincar.ObservationDims
	if len(obs)%dims != 0 {
		return nil, errors.Errorf("predict: observations must have %v "+
			"features, have %v values", dims, len(obs))
	}

	actions := make([]float64, len(obs)/dims)
	for i := range actions {
		if !deterministic && m.uniform.Rand() < m.epsilon {
			actions[i] = float64(int(m.actions.Rand()))
			continue
		}

		velocity := obs[i*dims+1]
		if velocity < 0 {
			actions[i] = left
		} else {
			actions[i] = right
		}
	}
	return actions, nil
}
