package timestep

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestEndTypes(t *testing.T) {
	obs := mat.NewVecDense(2, []float64{0.1, 0.2})

	step := New(Mid, -1, 0.99, obs, 3)
	if step.TerminalEnd() || step.TimeoutEnd() {
		t.Error("mid step should not report an episode end")
	}

	step.StepType = Last
	step.SetEnd(TerminalStateReached)
	if !step.TerminalEnd() {
		t.Error("expected terminal end")
	}
	if step.TimeoutEnd() {
		t.Error("terminal step should not be a timeout")
	}

	step.SetEnd(Timeout)
	if !step.TimeoutEnd() {
		t.Error("expected timeout end")
	}
}
