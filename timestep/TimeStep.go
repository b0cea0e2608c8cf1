// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes why an episode ended. Only TimeSteps with StepType
// Last carry a meaningful EndType.
type EndType int

const (
	// Timeout denotes an episode cut off by a step limit. The last
	// state is not terminal, so learners may bootstrap from it.
	Timeout EndType = iota

	// TerminalStateReached denotes an episode that ended in a terminal
	// state of the underlying MDP.
	TerminalStateReached
)

func (e EndType) String() string {
	if e == TerminalStateReached {
		return "TerminalStateReached"
	}
	return "Timeout"
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int
	endType     EndType
}

// New returns a new TimeStep
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{StepType: t, Reward: r, Discount: d, Observation: o,
		Number: n}
}

// First returns whether a TimeStep is the first in an environment
func (t TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd sets the reason that the episode ended on this TimeStep
func (t *TimeStep) SetEnd(e EndType) {
	t.endType = e
}

// EndType returns why the episode ended on this TimeStep. The result
// is only meaningful if t.Last() is true.
func (t TimeStep) EndType() EndType {
	return t.endType
}

// TerminalEnd returns whether the episode ended on this TimeStep by
// reaching a terminal state
func (t TimeStep) TerminalEnd() bool {
	return t.Last() && t.endType == TerminalStateReached
}

// TimeoutEnd returns whether the episode ended on this TimeStep because
// of a step limit
func (t TimeStep) TimeoutEnd() bool {
	return t.Last() && t.endType == Timeout
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}
