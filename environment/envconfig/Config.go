// Package envconfig provides configuration structs for configuring
// environments with default physical parameters and tasks. Environment
// configurations in this package are JSON serializable.
package envconfig

import (
	"github.com/pkg/errors"
	env "github.com/samuelfneumann/goimitate/environment"
	"github.com/samuelfneumann/goimitate/environment/classiccontrol/mountaincar"
	"gonum.org/v1/gonum/spatial/r1"
)

// EnvName is the identifier of an environment that can be configured
// with this package
type EnvName string

// Environments available for configuration
const (
	// MountainCar is episodic Mountain Car: episodes end at the goal or
	// at the step limit
	MountainCar EnvName = "MountainCar-v0"

	// FixedHorizonMountainCar is Mountain Car with an absorbing goal,
	// where every episode lasts exactly the step limit
	FixedHorizonMountainCar EnvName = "seals/MountainCar-v0"
)

// DefaultEpisodeCutoff is the step limit of both Mountain Car variants
const DefaultEpisodeCutoff = 200

// Config implements a specific configuration of a specific environment
type Config struct {
	Environment       EnvName
	ContinuousActions bool
	EpisodeCutoff     int
	Discount          float64
}

// NewConfig returns a new environment Config
func NewConfig(envName EnvName, continuousActions bool, episodeCutoff int,
	discount float64) Config {
	return Config{
		Environment:       envName,
		ContinuousActions: continuousActions,
		EpisodeCutoff:     episodeCutoff,
		Discount:          discount,
	}
}

// Default returns the Config of an environment identifier with its
// default step limit and no discounting
func Default(envName EnvName) Config {
	return NewConfig(envName, false, DefaultEpisodeCutoff, 1.0)
}

// Validate returns an error if the Config cannot create an environment
func (c Config) Validate() error {
	switch c.Environment {
	case MountainCar, FixedHorizonMountainCar:
	default:
		return errors.Errorf("validate: no such environment %q", c.Environment)
	}
	if c.EpisodeCutoff < 1 {
		return errors.Errorf("validate: episode cutoff must be positive, "+
			"have %v", c.EpisodeCutoff)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return errors.Errorf("validate: discount %v ∉ [0, 1]", c.Discount)
	}
	return nil
}

// Create returns the environment described by the Config
func (c Config) Create(seed uint64) (env.Environment, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "create")
	}

	fixedHorizon := c.Environment == FixedHorizonMountainCar
	return CreateMountainCar(c.ContinuousActions, fixedHorizon,
		c.EpisodeCutoff, seed, c.Discount)
}

// CreateMountainCar is a factory for creating the MountainCar
// environment with default physical parameters and the Goal task.
// Start positions are uniform in [-0.6, -0.4] with zero velocity.
func CreateMountainCar(continuousActions, fixedHorizon bool, cutoff int,
	seed uint64, discount float64) (env.Environment, error) {
	position := r1.Interval{Min: -0.6, Max: -0.4}
	velocity := r1.Interval{Min: 0.0, Max: 0.0}

	s := env.NewUniformStarter([]r1.Interval{position, velocity}, seed)

	var task *mountaincar.Goal
	var err error
	if fixedHorizon {
		task, err = mountaincar.NewFixedHorizonGoal(s, cutoff,
			mountaincar.GoalPosition)
	} else {
		task, err = mountaincar.NewGoal(s, cutoff, mountaincar.GoalPosition)
	}
	if err != nil {
		return nil, errors.Wrap(err, "createMountainCar")
	}

	if continuousActions {
		e, _, err := mountaincar.NewContinuous(task, discount)
		if err != nil {
			return nil, errors.Wrap(err, "createMountainCar")
		}
		return e, nil
	}
	e, _, err := mountaincar.NewDiscrete(task, discount)
	if err != nil {
		return nil, errors.Wrap(err, "createMountainCar")
	}
	return e, nil
}
