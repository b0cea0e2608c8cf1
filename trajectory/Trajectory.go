// Package trajectory implements recorded episodes of agent-environment
// interaction and the flattened transitions used to train on them
package trajectory

import (
	"encoding/gob"
	"math"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Trajectory is a single episode. Obs holds one more observation than
// there are actions: Obs[t] is the state in which Acts[t] was taken and
// Obs[t+1] the state that followed, with reward Rews[t]. Terminal is
// true if the episode ended in a terminal state rather than by timeout.
type Trajectory struct {
	Obs      [][]float64
	Acts     []float64
	Rews     []float64
	Terminal bool
}

// Len returns the number of transitions in the Trajectory
func (t Trajectory) Len() int {
	return len(t.Acts)
}

// Return returns the undiscounted sum of rewards of the Trajectory
func (t Trajectory) Return() float64 {
	return floats.Sum(t.Rews)
}

// Validate returns an error if the Trajectory is malformed
func (t Trajectory) Validate() error {
	if len(t.Acts) == 0 {
		return errors.Errorf("validate: trajectory has no actions")
	}
	if len(t.Obs) != len(t.Acts)+1 {
		return errors.Errorf("validate: trajectory with %v actions must have "+
			"%v observations, have %v", len(t.Acts), len(t.Acts)+1,
			len(t.Obs))
	}
	if len(t.Rews) != len(t.Acts) {
		return errors.Errorf("validate: trajectory with %v actions must have "+
			"%v rewards, have %v", len(t.Acts), len(t.Acts), len(t.Rews))
	}
	dims := len(t.Obs[0])
	for i, o := range t.Obs {
		if len(o) != dims {
			return errors.Errorf("validate: observation %v has %v features, "+
				"want %v", i, len(o), dims)
		}
	}
	return nil
}

// Save gob-encodes trajs to filename
func Save(filename string, trajs []Trajectory) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	defer file.Close()

	enc := gob.NewEncoder(file)
	if err := enc.Encode(trajs); err != nil {
		return errors.Wrapf(err, "save: could not encode trajectories to %v",
			filename)
	}
	return nil
}

// Load decodes the trajectories gob-encoded in filename. Every loaded
// Trajectory is validated.
func Load(filename string) ([]Trajectory, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}
	defer file.Close()

	var trajs []Trajectory
	dec := gob.NewDecoder(file)
	if err := dec.Decode(&trajs); err != nil {
		return nil, errors.Wrapf(err, "load: malformed trajectory file %v",
			filename)
	}
	if len(trajs) == 0 {
		return nil, errors.Errorf("load: no trajectories in %v", filename)
	}
	for i := range trajs {
		if err := trajs[i].Validate(); err != nil {
			return nil, errors.Wrapf(err, "load: trajectory %v", i)
		}
	}
	return trajs, nil
}

// Statistics summarises a set of trajectories
type Statistics struct {
	NumTrajectories int
	ReturnMean      float64
	ReturnStd       float64
	ReturnMin       float64
	ReturnMax       float64
	LenMean         float64
	LenStd          float64
	LenMin          float64
	LenMax          float64
}

// Stats computes the return and length statistics of trajs
func Stats(trajs []Trajectory) Statistics {
	if len(trajs) == 0 {
		return Statistics{}
	}

	returns := make([]float64, len(trajs))
	lengths := make([]float64, len(trajs))
	for i, t := range trajs {
		returns[i] = t.Return()
		lengths[i] = float64(t.Len())
	}

	s := Statistics{NumTrajectories: len(trajs)}
	s.ReturnMean, s.ReturnStd = meanStd(returns)
	s.ReturnMin, s.ReturnMax = floats.Min(returns), floats.Max(returns)
	s.LenMean, s.LenStd = meanStd(lengths)
	s.LenMin, s.LenMax = floats.Min(lengths), floats.Max(lengths)
	return s
}

// meanStd returns the mean and population standard deviation of x
func meanStd(x []float64) (float64, float64) {
	mean, variance := stat.MeanVariance(x, nil)
	if len(x) < 2 {
		return mean, 0
	}
	n := float64(len(x))
	return mean, math.Sqrt(variance * (n - 1) / n)
}
