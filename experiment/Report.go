package experiment

import (
	"encoding/gob"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/evaluation"
)

// Report holds the evaluations of the learner of a run before and
// after training
type Report struct {
	RunID     uuid.UUID
	Rounds    int
	Timesteps int
	Before    evaluation.Result
	After     evaluation.Result
}

// Save gob-encodes the Report to filename
func (r Report) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(r); err != nil {
		return errors.Wrap(err, "save: could not encode report")
	}
	return nil
}

// LoadReport decodes a Report saved with Save
func LoadReport(filename string) (Report, error) {
	file, err := os.Open(filename)
	if err != nil {
		return Report{}, errors.Wrap(err, "loadReport")
	}
	defer file.Close()

	var r Report
	if err := gob.NewDecoder(file).Decode(&r); err != nil {
		return Report{}, errors.Wrapf(err, "loadReport: malformed report %v",
			filename)
	}
	return r, nil
}
