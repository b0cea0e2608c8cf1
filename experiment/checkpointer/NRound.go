package checkpointer

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent"
	log "github.com/sirupsen/logrus"
)

// nRound implements checkpointing every N rounds
type nRound struct {
	interval int
	object   agent.Saver

	// filename returns the name of the file to save the object in.
	//
	// If each checkpoint should go to its own numbered file (e.g.
	// policy1.bin, policy2.bin, ..., policyK.bin), use
	// FilenameEnumerator. If the names do not matter but should not
	// collide, use FileTimer:
	//
	//	n := NewNRound(10, object, FileTimer("dir", "policy", ".bin"))
	filename func() string
}

// NewNRound returns a checkpointer that checkpoints object after every
// n rounds
func NewNRound(n int, object agent.Saver,
	filename func() string) (Checkpointer, error) {
	if n < 1 {
		return nil, errors.Errorf("newNRound: interval must be positive, "+
			"have %v", n)
	}
	return &nRound{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the tracked object if round completes an interval.
// Rounds are counted from 0, so the first checkpoint is taken after n
// rounds have finished.
func (n *nRound) Checkpoint(round int) error {
	if (round+1)%n.interval != 0 {
		return nil
	}

	filename := n.filename()
	if err := n.object.Save(filename); err != nil {
		return errors.Wrapf(err, "checkpoint: round %v", round)
	}
	log.WithFields(log.Fields{
		"round": round,
		"file":  filename,
	}).Info("checkpoint: saved")
	return nil
}
