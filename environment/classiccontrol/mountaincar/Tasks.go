package mountaincar

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/environment"
	ts "github.com/samuelfneumann/goimitate/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	// Commonly used goal position
	GoalPosition float64 = 0.45
)

// absorber is a Task that holds the car in place once it reaches
// the goal
type absorber interface {
	Absorbing() bool
}

// Goal implements the classic control task of reaching a goal on
// Mountain Car. Rewards are -1 on each timestep, including the step
// that reaches the goal. Only transitions out of the absorbing goal
// state are rewarded 0.
//
// An episodic Goal ends episodes when the car reaches the goal or when
// the step limit is reached. A fixed horizon Goal never ends episodes
// at the goal: the goal is absorbing, the car stays there with reward
// 0, and every episode lasts exactly the step limit and ends by
// timeout.
type Goal struct {
	environment.Starter
	goalEnder    *environment.IntervalLimit
	stepEnder    *environment.StepLimit
	goalX        float64
	fixedHorizon bool
}

// NewGoal creates and returns a new episodic Goal task given a Starter,
// the maximum number of episode steps, and the goal x position
func NewGoal(s environment.Starter, episodeSteps int,
	goalX float64) (*Goal, error) {
	return newGoal(s, episodeSteps, goalX, false)
}

// NewFixedHorizonGoal returns a Goal task whose episodes always last
// exactly episodeSteps steps
func NewFixedHorizonGoal(s environment.Starter, episodeSteps int,
	goalX float64) (*Goal, error) {
	return newGoal(s, episodeSteps, goalX, true)
}

func newGoal(s environment.Starter, episodeSteps int, goalX float64,
	fixedHorizon bool) (*Goal, error) {
	if episodeSteps < 1 {
		return nil, errors.Errorf("newGoal: episode steps must be positive, "+
			"have %v", episodeSteps)
	}
	stepEnder := environment.NewStepLimit(episodeSteps)

	interval := []r1.Interval{{Min: math.Inf(-1), Max: goalX}}
	positionIndex := []int{0}
	goalEnder, err := environment.NewIntervalLimit(interval, positionIndex,
		ts.TerminalStateReached)
	if err != nil {
		return nil, errors.Wrap(err, "newGoal")
	}

	return &Goal{s, goalEnder, stepEnder, goalX, fixedHorizon}, nil
}

// Seed reseeds the start state distribution if it is random
func (g *Goal) Seed(seed uint64) {
	if s, ok := g.Starter.(environment.Seeder); ok {
		s.Seed(seed)
	}
}

// Absorbing returns whether the goal holds the car in place
func (g *Goal) Absorbing() bool {
	return g.fixedHorizon
}

// AtGoal returns a boolean indicating whether or not the argument state
// is the goal state
func (g *Goal) AtGoal(state *mat.VecDense) bool {
	return state.AtVec(0) >= g.goalX
}

// GetReward returns the reward for a given state and action, resulting
// in a given next state. The car only earns 0 once it already sits in
// the goal, which can happen only when the goal is absorbing.
func (g *Goal) GetReward(state, _, _ *mat.VecDense) float64 {
	if g.AtGoal(state) {
		return 0.0
	}
	return -1.0
}

// Min returns the minimum attainable reward over all timesteps
func (g *Goal) Min() float64 { return -1.0 }

// Max returns the maximum attainable reward over all timesteps
func (g *Goal) Max() float64 { return 0.0 }

// RewardSpec returns the reward specification of the Task
func (g *Goal) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{g.Min()})
	upperBound := mat.NewVecDense(1, []float64{g.Max()})

	return environment.NewSpec(shape, environment.Reward, lowerBound,
		upperBound, environment.Discrete)
}

// End determines if a timestep is the last timestep in the episode.
// If so, it changes the TimeStep's StepType to timestep.Last and
// records why the episode ended.
func (g *Goal) End(t *ts.TimeStep) bool {
	if !g.fixedHorizon && g.goalEnder.End(t) {
		return true
	}
	return g.stepEnder.End(t)
}

// EpisodeSteps returns the step limit of the Task
func (g *Goal) EpisodeSteps() int {
	return g.stepEnder.Steps()
}
