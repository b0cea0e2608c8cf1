// Package tracker implements Trackers, which record per-episode data
// from the TimeSteps of a single environment
package tracker

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	ts "github.com/samuelfneumann/goimitate/timestep"
)

// Tracker keeps track of per-episode data of an environment. Track
// must be called on the TimeSteps of an environment in order, starting
// with the first TimeStep after a reset.
type Tracker interface {
	Track(t ts.TimeStep)

	// Data returns the data of all finished episodes
	Data() []float64

	// Save saves the data of all finished episodes to a file
	Save(filename string) error
}

// save gob encodes data into a file
func save(filename string, data []float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "save: could not open save file")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return errors.Wrap(err, "save: could not encode data")
	}
	return nil
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "loadData: could not open data file")
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "loadData: could not decode data")
	}
	return data, nil
}
