package tracker

import (
	"path/filepath"
	"testing"

	ts "github.com/samuelfneumann/goimitate/timestep"
	"gonum.org/v1/gonum/mat"
)

// episode returns the TimeSteps after the reset of an episode of n
// steps with reward r on each step
func episode(n int, r float64) []ts.TimeStep {
	obs := mat.NewVecDense(1, nil)
	steps := make([]ts.TimeStep, n)
	for i := range steps {
		steps[i] = ts.New(ts.Mid, r, 1, obs, i+1)
	}
	steps[n-1].StepType = ts.Last
	return steps
}

func TestTrackers(t *testing.T) {
	ret := NewReturn()
	length := NewEpisodeLength()
	trackers := []Tracker{ret, length}

	for _, ep := range [][]ts.TimeStep{episode(3, -1), episode(5, 2)} {
		for _, step := range ep {
			for _, tr := range trackers {
				tr.Track(step)
			}
		}
	}

	if r := ret.Data(); len(r) != 2 || r[0] != -3 || r[1] != 10 {
		t.Errorf("returns: want [-3 10], have %v", r)
	}
	if l := length.Data(); len(l) != 2 || l[0] != 3 || l[1] != 5 {
		t.Errorf("lengths: want [3 5], have %v", l)
	}

	filename := filepath.Join(t.TempDir(), "returns.bin")
	if err := ret.Save(filename); err != nil {
		t.Fatal(err)
	}
	data, err := LoadData(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 || data[1] != 10 {
		t.Errorf("loaded data: have %v", data)
	}

	if _, err := LoadData(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestReturnPanicsOnSkippedStep(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for non-sequential timesteps")
		}
	}()

	ret := NewReturn()
	steps := episode(3, 1)
	ret.Track(steps[0])
	ret.Track(steps[2])
}
