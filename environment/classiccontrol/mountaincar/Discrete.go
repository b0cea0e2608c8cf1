package mountaincar

import (
	"github.com/pkg/errors"
	env "github.com/samuelfneumann/goimitate/environment"
	ts "github.com/samuelfneumann/goimitate/timestep"
	"gonum.org/v1/gonum/mat"
)

// Discrete implements the classic control Mountain Car environment.
// In this environment, the agent controls a car in a valley between two
// hills. The car is underpowered and cannot drive up the hill unless
// it rocks back and forth from hill to hill, using its momentum to
// gradually climb higher.
//
// State features consist of the x position of the car and its velocity.
// The sign of the velocity feature denotes direction, with negative
// meaning that the car is travelling left.
//
// Actions are 1-dimensional and discrete in (0, 1, 2):
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
//
// Other actions result in an error.
type Discrete struct {
	*base
}

// NewDiscrete creates a new Discrete action Mountain Car environment
// with the argument task
func NewDiscrete(t env.Task, discount float64) (*Discrete, ts.TimeStep,
	error) {
	baseEnv, firstStep, err := newBase(t, discount)
	if err != nil {
		return nil, ts.TimeStep{}, errors.Wrap(err, "newDiscrete")
	}

	return &Discrete{baseEnv}, firstStep, nil
}

// ActionSpec returns the action specification of the environment
func (m *Discrete) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims,
		[]float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(ActionDims,
		[]float64{float64(MaxDiscreteAction)})

	return env.NewSpec(shape, env.Action, lowerBound,
		upperBound, env.Discrete)
}

// Step takes one environmental step given action a and returns the next
// timestep and whether or not the episode has ended
func (m *Discrete) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, true, errors.Errorf("step: actions should be "+
			"%v-dimensional", ActionDims)
	}

	action := a.AtVec(0)
	intAction := int(action)
	if float64(intAction) != action || intAction > MaxDiscreteAction ||
		intAction < MinDiscreteAction {
		return ts.TimeStep{}, true, errors.Errorf("step: illegal action %v "+
			"∉ (0, 1, 2)", action)
	}

	force := action - 1.0
	newState := m.nextState(force)

	nextStep, last := m.update(a, newState)
	return nextStep, last, nil
}
