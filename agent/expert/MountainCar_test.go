package expert

import (
	"testing"

	"github.com/samuelfneumann/goimitate/environment/envconfig"
	"gonum.org/v1/gonum/mat"
)

func TestPredictFollowsVelocity(t *testing.T) {
	m, err := NewMountainCar(0, 1)
	if err != nil {
		t.Fatal(err)
	}

	actions, err := m.Predict([]float64{-0.5, 0.01, -0.5, -0.01, 0, 0}, true)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 0, 2}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("action %v: want %v, have %v", i, want[i], actions[i])
		}
	}

	if _, err := m.Predict([]float64{1, 2, 3}, true); err == nil {
		t.Error("expected an error for ragged observations")
	}
	if _, err := NewMountainCar(1.5, 0); err == nil {
		t.Error("expected an error for epsilon > 1")
	}
}

func TestExpertReachesGoal(t *testing.T) {
	e, err := envconfig.Default(envconfig.MountainCar).Create(3)
	if err != nil {
		t.Fatal(err)
	}
	m, _ := NewMountainCar(0, 0)

	for episode := 0; episode < 5; episode++ {
		step, err := e.Reset()
		if err != nil {
			t.Fatal(err)
		}
		for last := false; !last; {
			obs := step.Observation.RawVector().Data
			action, _ := m.Predict(obs, true)
			step, last, err = e.Step(mat.NewVecDense(1, action))
			if err != nil {
				t.Fatal(err)
			}
		}
		if !step.TerminalEnd() {
			t.Errorf("episode %v: expert did not reach the goal", episode)
		}
	}
}

func TestEpsilonActionsAreLegal(t *testing.T) {
	m, _ := NewMountainCar(1, 5)
	obs := make([]float64, 200)
	actions, err := m.Predict(obs, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range actions {
		if a != 0 && a != 1 && a != 2 {
			t.Fatalf("illegal action %v", a)
		}
	}
}
