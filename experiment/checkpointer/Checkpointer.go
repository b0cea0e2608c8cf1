// Package checkpointer implements periodic saving of objects during
// training
package checkpointer

// Checkpointer checkpoints objects based on the number of completed
// training rounds
type Checkpointer interface {
	Checkpoint(round int) error
}

// Multi checkpoints with each of its Checkpointers in turn, stopping
// at the first error
type Multi []Checkpointer

// Checkpoint calls Checkpoint on each Checkpointer
func (m Multi) Checkpoint(round int) error {
	for _, c := range m {
		if err := c.Checkpoint(round); err != nil {
			return err
		}
	}
	return nil
}
