package experiment

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent/ppo"
	"github.com/samuelfneumann/goimitate/environment/envconfig"
	"github.com/samuelfneumann/goimitate/gail"
	"github.com/samuelfneumann/goimitate/rewardnet"
	"github.com/samuelfneumann/goimitate/solver"
)

// Config represents a configuration of a GAIL experiment
type Config struct {
	Seed    uint64
	NumEnvs int
	EnvConf envconfig.Config

	// File of gob-encoded expert trajectories
	ExpertPath string

	PPO        ppo.Config
	RewardNet  rewardnet.Config
	DiscSolver *solver.Solver
	GAIL       gail.Config

	TotalTimesteps int
	EvalEpisodes   int
	Deterministic  bool // Whether evaluation uses the most likely actions

	// If CheckpointDir is not empty, the learner and reward net are
	// saved there every CheckpointEvery rounds. Checkpoint files are
	// numbered, or suffixed with the time if TimestampCheckpoints is
	// set.
	CheckpointDir        string
	CheckpointEvery      int
	TimestampCheckpoints bool

	// If not empty, the Report of the run is saved here
	ReportPath string

	// Whether to print a progress bar of training rounds
	Progress bool
}

// DefaultConfig returns the configuration of GAIL on the fixed horizon
// Mountain Car with 8 environment instances
func DefaultConfig() (Config, error) {
	ppoConfig, err := ppo.DefaultConfig(4e-4)
	if err != nil {
		return Config{}, errors.Wrap(err, "defaultConfig")
	}
	discSolver, err := solver.NewDefaultAdam(1e-3, 1)
	if err != nil {
		return Config{}, errors.Wrap(err, "defaultConfig")
	}

	return Config{
		Seed:            42,
		NumEnvs:         8,
		EnvConf:         envconfig.Default(envconfig.FixedHorizonMountainCar),
		ExpertPath:      "continuous",
		PPO:             ppoConfig,
		RewardNet:       rewardnet.DefaultConfig(),
		DiscSolver:      discSolver,
		GAIL:            gail.DefaultConfig(),
		TotalTimesteps:  800_000,
		EvalEpisodes:    100,
		Deterministic:   true,
		CheckpointEvery: 10,
	}, nil
}

// Validate returns an error if the configuration is invalid
func (c Config) Validate() error {
	if c.NumEnvs < 1 {
		return errors.Errorf("validate: need at least 1 environment, "+
			"have %v", c.NumEnvs)
	}
	if err := c.EnvConf.Validate(); err != nil {
		return errors.Wrap(err, "validate")
	}
	if c.ExpertPath == "" {
		return errors.New("validate: no expert trajectory file")
	}
	if err := c.PPO.Validate(); err != nil {
		return errors.Wrap(err, "validate: ppo")
	}
	if err := c.RewardNet.Validate(); err != nil {
		return errors.Wrap(err, "validate: reward net")
	}
	if c.DiscSolver == nil {
		return errors.New("validate: no discriminator solver")
	}
	if err := c.GAIL.Validate(); err != nil {
		return errors.Wrap(err, "validate: gail")
	}
	if c.TotalTimesteps < 1 {
		return errors.Errorf("validate: total timesteps must be positive, "+
			"have %v", c.TotalTimesteps)
	}
	if c.EvalEpisodes < 1 {
		return errors.Errorf("validate: evaluation episodes must be "+
			"positive, have %v", c.EvalEpisodes)
	}
	if c.CheckpointDir != "" && c.CheckpointEvery < 1 {
		return errors.Errorf("validate: checkpoint interval must be "+
			"positive, have %v", c.CheckpointEvery)
	}
	return nil
}

// UnmarshalJSON implements the json.Unmarshaler interface. Fields
// missing from data keep their default values.
func (c *Config) UnmarshalJSON(data []byte) error {
	type config Config
	defaults, err := DefaultConfig()
	if err != nil {
		return err
	}

	dec := config(defaults)
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*c = Config(dec)
	return nil
}

// LoadConfig reads a JSON Config from filename
func LoadConfig(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.Wrap(err, "loadConfig")
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrapf(err, "loadConfig: could not decode %v",
			filename)
	}
	return c, c.Validate()
}

// SaveConfig writes c to filename as indented JSON
func SaveConfig(filename string, c Config) error {
	data, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return errors.Wrap(err, "saveConfig")
	}
	return errors.Wrap(os.WriteFile(filename, data, 0644), "saveConfig")
}
