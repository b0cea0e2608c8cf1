package mountaincar

import (
	"math"
	"testing"

	env "github.com/samuelfneumann/goimitate/environment"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// fixedStarter always starts at the same state
type fixedStarter struct {
	state []float64
}

func (f fixedStarter) Start() *mat.VecDense {
	return mat.NewVecDense(len(f.state), append([]float64(nil), f.state...))
}

func TestDiscretePhysics(t *testing.T) {
	task, err := NewGoal(fixedStarter{[]float64{-0.5, 0}}, 200, GoalPosition)
	if err != nil {
		t.Fatal(err)
	}
	m, _, err := NewDiscrete(task, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	step, last, err := m.Step(mat.NewVecDense(1, []float64{2}))
	if err != nil {
		t.Fatal(err)
	}
	if last {
		t.Error("first step should not end the episode")
	}

	wantVel := Power - Gravity*math.Cos(3*-0.5)
	wantPos := -0.5 + wantVel
	if math.Abs(step.Observation.AtVec(1)-wantVel) > 1e-12 {
		t.Errorf("velocity: want %v, have %v", wantVel,
			step.Observation.AtVec(1))
	}
	if math.Abs(step.Observation.AtVec(0)-wantPos) > 1e-12 {
		t.Errorf("position: want %v, have %v", wantPos,
			step.Observation.AtVec(0))
	}
	if step.Reward != -1 {
		t.Errorf("reward: want -1, have %v", step.Reward)
	}
	if step.Number != 1 {
		t.Errorf("step number: want 1, have %v", step.Number)
	}
}

func TestDiscreteIllegalAction(t *testing.T) {
	task, _ := NewGoal(fixedStarter{[]float64{-0.5, 0}}, 200, GoalPosition)
	m, _, _ := NewDiscrete(task, 1.0)

	for _, a := range []float64{-1, 3, 0.5} {
		if _, _, err := m.Step(mat.NewVecDense(1, []float64{a})); err == nil {
			t.Errorf("action %v: expected an error", a)
		}
	}
}

func TestLeftWallStopsCar(t *testing.T) {
	task, _ := NewGoal(fixedStarter{[]float64{MinPosition, -MaxSpeed}}, 200,
		GoalPosition)
	m, _, _ := NewDiscrete(task, 1.0)

	step, _, err := m.Step(mat.NewVecDense(1, []float64{0}))
	if err != nil {
		t.Fatal(err)
	}
	if step.Observation.AtVec(0) != MinPosition {
		t.Errorf("position: want %v, have %v", MinPosition,
			step.Observation.AtVec(0))
	}
	if step.Observation.AtVec(1) != 0 {
		t.Errorf("velocity: want 0, have %v", step.Observation.AtVec(1))
	}
}

func TestEpisodicGoalTerminates(t *testing.T) {
	task, _ := NewGoal(fixedStarter{[]float64{0.44, MaxSpeed}}, 200,
		GoalPosition)
	m, _, _ := NewDiscrete(task, 1.0)

	step, last, err := m.Step(mat.NewVecDense(1, []float64{2}))
	if err != nil {
		t.Fatal(err)
	}
	if !last || !step.TerminalEnd() {
		t.Error("reaching the goal should end the episode in a terminal " +
			"state")
	}
	if step.Reward != -1 {
		t.Errorf("reward: want -1 on the step into the goal, have %v",
			step.Reward)
	}
}

func TestFixedHorizonGoalAbsorbs(t *testing.T) {
	const steps = 10
	task, _ := NewFixedHorizonGoal(fixedStarter{[]float64{0.44, MaxSpeed}},
		steps, GoalPosition)
	m, _, _ := NewDiscrete(task, 1.0)

	var position float64
	for i := 1; i <= steps; i++ {
		step, last, err := m.Step(mat.NewVecDense(1, []float64{0}))
		if err != nil {
			t.Fatal(err)
		}
		if i == 1 {
			position = step.Observation.AtVec(0)
		} else if step.Observation.AtVec(0) != position {
			t.Errorf("step %v: car left the absorbing goal", i)
		}
		wantReward := 0.0
		if i == 1 {
			wantReward = -1
		}
		if step.Reward != wantReward {
			t.Errorf("step %v: reward want %v, have %v", i, wantReward,
				step.Reward)
		}
		if last != (i == steps) {
			t.Errorf("step %v: last want %v, have %v", i, i == steps, last)
		}
		if last && !step.TimeoutEnd() {
			t.Error("fixed horizon episodes should end by timeout")
		}
	}
}

func TestStepLimitTimeout(t *testing.T) {
	task, _ := NewGoal(fixedStarter{[]float64{-0.5, 0}}, 3, GoalPosition)
	m, _, _ := NewDiscrete(task, 1.0)

	var last bool
	for i := 0; i < 3; i++ {
		var err error
		_, last, err = m.Step(mat.NewVecDense(1, []float64{1}))
		if err != nil {
			t.Fatal(err)
		}
	}
	if !last || !m.LastTimeStep().TimeoutEnd() {
		t.Error("episode should end by timeout at the step limit")
	}
}

func TestSeedReproducesStarts(t *testing.T) {
	bounds := []r1.Interval{{Min: -0.6, Max: -0.4}, {Min: 0, Max: 0}}
	task, _ := NewGoal(env.NewUniformStarter(bounds, 1), 200, GoalPosition)
	m, _, _ := NewDiscrete(task, 1.0)

	m.Seed(7)
	first, _ := m.Reset()
	m.Seed(7)
	second, _ := m.Reset()

	if !mat.Equal(first.Observation, second.Observation) {
		t.Errorf("reseeding should reproduce starts: %v != %v",
			mat.Formatted(first.Observation.T()),
			mat.Formatted(second.Observation.T()))
	}
	if x := first.Observation.AtVec(0); x < -0.6 || x > -0.4 {
		t.Errorf("start position %v outside [-0.6, -0.4]", x)
	}
}
