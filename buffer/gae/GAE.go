// Package gae implements a rollout buffer which computes generalized
// advantage estimates for data collected in vectorized environments
package gae

import (
	"github.com/pkg/errors"
)

// Buffer implements a GAE(λ) rollout buffer following
// https://arxiv.org/abs/1506.02438 for nSteps steps of nEnvs
// environments stepped in lockstep. Data is stored step-major: the
// entry for environment e at step t is at index t*nEnvs + e.
//
// Episode boundaries are tracked through episode starts: a step whose
// observation is the first of an episode does not bootstrap from the
// step before it.
type Buffer struct {
	obsDim int
	nSteps int
	nEnvs  int

	gamma  float64 // Discount factor ℽ
	lambda float64 // λ for GAE(λ)

	pos      int
	computed bool

	obs           []float64
	acts          []float64
	rews          []float64
	episodeStarts []float64
	vals          []float64
	logProbs      []float64
	advs          []float64
	rets          []float64
}

// Rollout holds the flattened contents of a full Buffer
type Rollout struct {
	ObsDim     int
	Obs        []float64
	Acts       []float64
	Values     []float64
	LogProbs   []float64
	Advantages []float64
	Returns    []float64
}

// Len returns the number of samples in the Rollout
func (r Rollout) Len() int {
	return len(r.Acts)
}

// New creates and returns a new GAE(λ) buffer
func New(obsDim, nSteps, nEnvs int, gamma, lambda float64) (*Buffer,
	error) {
	if obsDim < 1 || nSteps < 1 || nEnvs < 1 {
		return nil, errors.Errorf("new: observation dimensions, steps, and "+
			"environments must be positive, have %v, %v, %v", obsDim,
			nSteps, nEnvs)
	}
	if gamma < 0 || gamma > 1 || lambda < 0 || lambda > 1 {
		return nil, errors.Errorf("new: gamma (%v) and lambda (%v) must be "+
			"in [0, 1]", gamma, lambda)
	}

	size := nSteps * nEnvs
	return &Buffer{
		obsDim:        obsDim,
		nSteps:        nSteps,
		nEnvs:         nEnvs,
		gamma:         gamma,
		lambda:        lambda,
		obs:           make([]float64, size*obsDim),
		acts:          make([]float64, size),
		rews:          make([]float64, size),
		episodeStarts: make([]float64, size),
		vals:          make([]float64, size),
		logProbs:      make([]float64, size),
		advs:          make([]float64, size),
		rets:          make([]float64, size),
	}, nil
}

// Reset empties the buffer
func (b *Buffer) Reset() {
	b.pos = 0
	b.computed = false
}

// Full returns whether nSteps steps have been added
func (b *Buffer) Full() bool {
	return b.pos == b.nSteps
}

// Add adds one step of all environments to the buffer. Each argument
// holds one entry per environment, except obs which holds the
// row-major observations of all environments. episodeStarts[e] is 1 if
// obs of environment e is the first of an episode.
func (b *Buffer) Add(obs, acts, rews, episodeStarts, vals,
	logProbs []float64) error {
	if b.Full() {
		return errors.New("add: buffer at maximum capacity")
	}
	if len(obs) != b.nEnvs*b.obsDim {
		return errors.Errorf("add: illegal obs length \n\twant(%v)\n\thave(%v)",
			b.nEnvs*b.obsDim, len(obs))
	}
	for _, s := range [][]float64{acts, rews, episodeStarts, vals, logProbs} {
		if len(s) != b.nEnvs {
			return errors.Errorf("add: need one value per environment "+
				"\n\twant(%v)\n\thave(%v)", b.nEnvs, len(s))
		}
	}

	start := b.pos * b.nEnvs
	copy(b.obs[start*b.obsDim:], obs)
	copy(b.acts[start:], acts)
	copy(b.rews[start:], rews)
	copy(b.episodeStarts[start:], episodeStarts)
	copy(b.vals[start:], vals)
	copy(b.logProbs[start:], logProbs)

	b.pos++
	b.computed = false
	return nil
}

// ComputeReturnsAndAdvantage computes GAE(λ) advantages and λ-returns
// for a full buffer. lastValues holds the value estimate of the
// observation that followed the last step of each environment, and
// dones whether that observation is the first of a new episode.
func (b *Buffer) ComputeReturnsAndAdvantage(lastValues,
	dones []float64) error {
	if !b.Full() {
		return errors.New("computeReturnsAndAdvantage: buffer must be full")
	}
	if len(lastValues) != b.nEnvs || len(dones) != b.nEnvs {
		return errors.Errorf("computeReturnsAndAdvantage: need one last value "+
			"and done per environment (%v), have %v and %v", b.nEnvs,
			len(lastValues), len(dones))
	}

	for e := 0; e < b.nEnvs; e++ {
		lastGAE := 0.0
		for t := b.nSteps - 1; t >= 0; t-- {
			i := t*b.nEnvs + e

			var nextNonTerminal, nextValue float64
			if t == b.nSteps-1 {
				nextNonTerminal = 1.0 - dones[e]
				nextValue = lastValues[e]
			} else {
				nextNonTerminal = 1.0 - b.episodeStarts[i+b.nEnvs]
				nextValue = b.vals[i+b.nEnvs]
			}

			delta := b.rews[i] + b.gamma*nextValue*nextNonTerminal - b.vals[i]
			lastGAE = delta + b.gamma*b.lambda*nextNonTerminal*lastGAE
			b.advs[i] = lastGAE
			b.rets[i] = lastGAE + b.vals[i]
		}
	}

	b.computed = true
	return nil
}

// Get returns the contents of a full buffer whose advantages have been
// computed. The returned slices alias the buffer and are overwritten
// once the buffer is reset and refilled.
func (b *Buffer) Get() (Rollout, error) {
	if !b.computed {
		return Rollout{}, errors.New("get: advantages must be computed " +
			"on a full buffer before sampling")
	}

	return Rollout{
		ObsDim:     b.obsDim,
		Obs:        b.obs,
		Acts:       b.acts,
		Values:     b.vals,
		LogProbs:   b.logProbs,
		Advantages: b.advs,
		Returns:    b.rets,
	}, nil
}
