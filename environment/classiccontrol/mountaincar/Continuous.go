package mountaincar

import (
	"github.com/pkg/errors"
	env "github.com/samuelfneumann/goimitate/environment"
	ts "github.com/samuelfneumann/goimitate/timestep"
	"github.com/samuelfneumann/goimitate/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

// Continuous implements Mountain Car with a 1-dimensional continuous
// action: the force to apply to the car. Actions outside
// [MinContinuousAction, MaxContinuousAction] are clipped.
type Continuous struct {
	*base
}

// NewContinuous creates a new Continuous action Mountain Car
// environment with the argument task
func NewContinuous(t env.Task, discount float64) (*Continuous,
	ts.TimeStep, error) {
	baseEnv, firstStep, err := newBase(t, discount)
	if err != nil {
		return nil, ts.TimeStep{}, errors.Wrap(err, "newContinuous")
	}

	return &Continuous{baseEnv}, firstStep, nil
}

// ActionSpec returns the action specification of the environment
func (m *Continuous) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{MinContinuousAction})
	upperBound := mat.NewVecDense(ActionDims, []float64{MaxContinuousAction})

	return env.NewSpec(shape, env.Action, lowerBound,
		upperBound, env.Continuous)
}

// Step takes one environmental step given action a and returns the next
// timestep and whether or not the episode has ended
func (m *Continuous) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, true, errors.Errorf("step: actions should be "+
			"%v-dimensional", ActionDims)
	}

	force := floatutils.Clip(a.AtVec(0), MinContinuousAction,
		MaxContinuousAction)
	newState := m.nextState(force)

	nextStep, last := m.update(a, newState)
	return nextStep, last, nil
}
