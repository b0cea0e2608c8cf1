package tracker

import ts "github.com/samuelfneumann/goimitate/timestep"

// EpisodeLength tracks the lengths of episodes in an environment.
// Note that an episode must finish for this Tracker to record its
// length.
type EpisodeLength struct {
	episodeLengths []float64
}

// NewEpisodeLength returns a new EpisodeLength Tracker
func NewEpisodeLength() *EpisodeLength {
	return &EpisodeLength{}
}

// Track records the episode length if the timestep passed to it is
// the last timestep in the episode
func (e *EpisodeLength) Track(t ts.TimeStep) {
	if t.Last() {
		e.episodeLengths = append(e.episodeLengths, float64(t.Number))
	}
}

// Data returns the lengths of all finished episodes
func (e *EpisodeLength) Data() []float64 {
	return e.episodeLengths
}

// Save saves the lengths of all finished episodes to disk
func (e *EpisodeLength) Save(filename string) error {
	return save(filename, e.episodeLengths)
}
