// Package replay implements a fixed capacity FIFO replay buffer of
// transitions
package replay

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/trajectory"
	"golang.org/x/exp/rand"
)

// ReplayError implements errors unique to a replay buffer
type ReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ReplayError) Unwrap() error {
	return e.Err
}

// ErrEmpty is returned when sampling from an empty buffer
var ErrEmpty = errors.New("buffer empty")

// Buffer is a ring of at most capacity transitions. Once full, storing
// new transitions overwrites the oldest ones. Samples are drawn
// uniformly with replacement.
type Buffer struct {
	obsDim   int
	capacity int

	obs     []float64
	acts    []float64
	nextObs []float64
	dones   []float64

	pos  int
	size int

	rng *rand.Rand
}

// New returns a new Buffer for observations of obsDim features
func New(obsDim, capacity int, seed uint64) (*Buffer, error) {
	if capacity < 1 {
		return nil, errors.Errorf("new: capacity must be positive, have %v",
			capacity)
	}
	if obsDim < 1 {
		return nil, errors.Errorf("new: observations must have at least one " +
			"feature")
	}

	return &Buffer{
		obsDim:   obsDim,
		capacity: capacity,
		obs:      make([]float64, capacity*obsDim),
		acts:     make([]float64, capacity),
		nextObs:  make([]float64, capacity*obsDim),
		dones:    make([]float64, capacity),
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// Len returns the number of transitions in the buffer
func (b *Buffer) Len() int {
	return b.size
}

// Capacity returns the maximum number of transitions in the buffer
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Store adds transitions to the buffer. If there are more transitions
// than the capacity, only the most recent capacity transitions are
// kept.
func (b *Buffer) Store(t *trajectory.Transitions) error {
	if t.ObsDim != b.obsDim {
		return &ReplayError{"store", errors.Errorf("transitions have %v "+
			"features, want %v", t.ObsDim, b.obsDim)}
	}

	start := 0
	if t.Len() > b.capacity {
		start = t.Len() - b.capacity
	}
	for i := start; i < t.Len(); i++ {
		obs, act, next, done := t.At(i)
		copy(b.obs[b.pos*b.obsDim:], obs)
		copy(b.nextObs[b.pos*b.obsDim:], next)
		b.acts[b.pos] = act
		b.dones[b.pos] = done

		b.pos = (b.pos + 1) % b.capacity
		if b.size < b.capacity {
			b.size++
		}
	}
	return nil
}

// Sample returns n transitions drawn uniformly with replacement
func (b *Buffer) Sample(n int) (*trajectory.Transitions, error) {
	if b.size == 0 {
		return nil, &ReplayError{"sample", ErrEmpty}
	}
	if n < 1 {
		return nil, &ReplayError{"sample", errors.Errorf("cannot sample %v "+
			"transitions", n)}
	}

	out := trajectory.NewTransitions(b.obsDim, n)
	for i := 0; i < n; i++ {
		j := b.rng.Intn(b.size)
		start, stop := j*b.obsDim, (j+1)*b.obsDim
		out.Add(b.obs[start:stop], b.acts[j], b.nextObs[start:stop],
			b.dones[j] == 1)
	}
	return out, nil
}
