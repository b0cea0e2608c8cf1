package trajectory

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func newTraj(n int, terminal bool) Trajectory {
	t := Trajectory{Terminal: terminal}
	for i := 0; i <= n; i++ {
		t.Obs = append(t.Obs, []float64{float64(i), -float64(i)})
		if i < n {
			t.Acts = append(t.Acts, float64(i%3))
			t.Rews = append(t.Rews, -1)
		}
	}
	return t
}

func TestValidate(t *testing.T) {
	good := newTraj(3, false)
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := newTraj(3, false)
	bad.Obs = bad.Obs[:3]
	if err := bad.Validate(); err == nil {
		t.Error("expected an error for a missing observation")
	}

	bad = newTraj(3, false)
	bad.Rews = bad.Rews[:1]
	if err := bad.Validate(); err == nil {
		t.Error("expected an error for missing rewards")
	}
}

func TestFlattenKeepsValidationCause(t *testing.T) {
	bad := newTraj(3, false)
	bad.Rews = bad.Rews[:1]
	want := bad.Validate()

	_, err := Flatten([]Trajectory{newTraj(2, true), bad})
	if err == nil {
		t.Fatal("expected an error for an invalid trajectory")
	}
	if cause := errors.Cause(err); cause.Error() != want.Error() {
		t.Errorf("cause: want %q, have %q", want, cause)
	}
}

func TestFlatten(t *testing.T) {
	trajs := []Trajectory{newTraj(3, true), newTraj(2, false)}
	tr, err := Flatten(trajs)
	if err != nil {
		t.Fatal(err)
	}

	if tr.Len() != 5 {
		t.Fatalf("want 5 transitions, have %v", tr.Len())
	}
	wantDones := []float64{0, 0, 1, 0, 0}
	for i, want := range wantDones {
		if tr.Dones[i] != want {
			t.Errorf("done %v: want %v, have %v", i, want, tr.Dones[i])
		}
	}

	obs, act, next, _ := tr.At(1)
	if obs[0] != 1 || next[0] != 2 || act != 1 {
		t.Errorf("transition 1: have obs %v, act %v, next %v", obs, act,
			next)
	}
}

func TestSaveLoad(t *testing.T) {
	dir, err := os.MkdirTemp("", "trajectory")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "continuous")

	trajs := []Trajectory{newTraj(4, true), newTraj(2, false)}
	if err := Save(filename, trajs); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0].Len() != 4 || !loaded[0].Terminal {
		t.Errorf("loaded trajectories differ: %+v", loaded)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("does-not-exist"); err == nil {
		t.Error("expected an error for a missing file")
	}

	dir, err := os.MkdirTemp("", "trajectory")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "garbage")
	if err := os.WriteFile(filename, []byte("not a gob"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(filename); err == nil {
		t.Error("expected an error for a malformed file")
	}
}

func TestStats(t *testing.T) {
	s := Stats([]Trajectory{newTraj(2, false), newTraj(4, false)})
	if s.NumTrajectories != 2 {
		t.Errorf("want 2 trajectories, have %v", s.NumTrajectories)
	}
	if s.ReturnMean != -3 || s.ReturnMin != -4 || s.ReturnMax != -2 {
		t.Errorf("return stats wrong: %+v", s)
	}
	if math.Abs(s.LenStd-1) > 1e-12 {
		t.Errorf("length std: want 1, have %v", s.LenStd)
	}
}
