package gail

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Config implements a configuration of a GAIL trainer
type Config struct {
	// Number of expert and of generator transitions in each
	// discriminator update
	DemoBatchSize int

	// Number of generator transitions kept for discriminator updates
	GenReplayBufferCapacity int

	// Number of discriminator updates after each generator update
	NDiscUpdatesPerRound int

	// Number of environment steps in each generator update. If 0, the
	// number of steps the learner takes between its own updates is
	// used.
	GenTrainTimesteps int
}

// DefaultConfig returns the default GAIL configuration
func DefaultConfig() Config {
	return Config{
		DemoBatchSize:           1024,
		GenReplayBufferCapacity: 512,
		NDiscUpdatesPerRound:    8,
	}
}

// Validate returns an error if the configuration is invalid
func (c Config) Validate() error {
	if c.DemoBatchSize < 1 {
		return errors.Errorf("validate: demonstration batch size must be "+
			"positive, have %v", c.DemoBatchSize)
	}
	if c.GenReplayBufferCapacity < 1 {
		return errors.Errorf("validate: replay buffer capacity must be "+
			"positive, have %v", c.GenReplayBufferCapacity)
	}
	if c.NDiscUpdatesPerRound < 1 {
		return errors.Errorf("validate: discriminator updates per round "+
			"must be positive, have %v", c.NDiscUpdatesPerRound)
	}
	if c.GenTrainTimesteps < 0 {
		return errors.Errorf("validate: generator timesteps cannot be "+
			"negative, have %v", c.GenTrainTimesteps)
	}
	return nil
}

// UnmarshalJSON implements the json.Unmarshaler interface. Fields
// missing from data keep their default values.
func (c *Config) UnmarshalJSON(data []byte) error {
	type config Config
	dec := config(DefaultConfig())
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*c = Config(dec)
	return nil
}
