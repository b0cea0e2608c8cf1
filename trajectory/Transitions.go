package trajectory

import (
	"fmt"

	"github.com/pkg/errors"
)

// Transitions is a batch of flattened transitions. Observations are
// stored row-major: the features of transition i are
// Obs[i*ObsDim:(i+1)*ObsDim].
type Transitions struct {
	ObsDim  int
	Obs     []float64
	Acts    []float64
	NextObs []float64
	Dones   []float64
}

// NewTransitions returns an empty batch with room for capacity
// transitions
func NewTransitions(obsDim, capacity int) *Transitions {
	return &Transitions{
		ObsDim:  obsDim,
		Obs:     make([]float64, 0, capacity*obsDim),
		Acts:    make([]float64, 0, capacity),
		NextObs: make([]float64, 0, capacity*obsDim),
		Dones:   make([]float64, 0, capacity),
	}
}

// Len returns the number of transitions in the batch
func (t *Transitions) Len() int {
	return len(t.Acts)
}

// Add appends a single transition to the batch
func (t *Transitions) Add(obs []float64, act float64, nextObs []float64,
	done bool) {
	if len(obs) != t.ObsDim || len(nextObs) != t.ObsDim {
		panic(fmt.Sprintf("add: observations must have %v features",
			t.ObsDim))
	}
	t.Obs = append(t.Obs, obs...)
	t.Acts = append(t.Acts, act)
	t.NextObs = append(t.NextObs, nextObs...)
	d := 0.0
	if done {
		d = 1.0
	}
	t.Dones = append(t.Dones, d)
}

// Append appends all transitions in other to the batch
func (t *Transitions) Append(other *Transitions) error {
	if other.ObsDim != t.ObsDim {
		return errors.Errorf("append: cannot append transitions with %v "+
			"features to transitions with %v features", other.ObsDim,
			t.ObsDim)
	}
	t.Obs = append(t.Obs, other.Obs...)
	t.Acts = append(t.Acts, other.Acts...)
	t.NextObs = append(t.NextObs, other.NextObs...)
	t.Dones = append(t.Dones, other.Dones...)
	return nil
}

// At returns transition i
func (t *Transitions) At(i int) (obs []float64, act float64,
	nextObs []float64, done float64) {
	start, stop := i*t.ObsDim, (i+1)*t.ObsDim
	return t.Obs[start:stop], t.Acts[i], t.NextObs[start:stop], t.Dones[i]
}

// Flatten flattens trajs into a single batch of transitions. Only the
// last transition of a Trajectory that ended in a terminal state is
// marked done.
func Flatten(trajs []Trajectory) (*Transitions, error) {
	if len(trajs) == 0 {
		return nil, errors.New("flatten: no trajectories")
	}

	n := 0
	for i, traj := range trajs {
		if err := traj.Validate(); err != nil {
			return nil, errors.Wrapf(err, "flatten: trajectory %v", i)
		}
		n += traj.Len()
	}

	obsDim := len(trajs[0].Obs[0])
	out := NewTransitions(obsDim, n)
	for i, traj := range trajs {
		if len(traj.Obs[0]) != obsDim {
			return nil, errors.Errorf("flatten: trajectory %v has %v "+
				"features, want %v", i, len(traj.Obs[0]), obsDim)
		}
		for j := 0; j < traj.Len(); j++ {
			done := traj.Terminal && j == traj.Len()-1
			out.Add(traj.Obs[j], traj.Acts[j], traj.Obs[j+1], done)
		}
	}
	return out, nil
}
