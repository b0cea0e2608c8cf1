package ppo

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/agent/policy"
	"github.com/samuelfneumann/goimitate/initwfn"
	"github.com/samuelfneumann/goimitate/network"
	"github.com/samuelfneumann/goimitate/solver"
)

// Config implements a configuration for a PPO agent with a categorical
// policy and a separate state value network
type Config struct {
	// Rollout collection
	NSteps int // Steps per environment instance between updates

	// Optimisation
	BatchSize          int
	NEpochs            int
	ClipRange          float64
	EntCoef            float64
	NormalizeAdvantage bool

	// Generalized Advantage Estimation
	Gamma     float64
	GAELambda float64

	// Policy neural net
	PolicyLayers      []int
	PolicyBiases      []bool
	PolicyActivations []*network.Activation

	// State value function neural net
	ValueFnLayers      []int
	ValueFnBiases      []bool
	ValueFnActivations []*network.Activation

	// Weight init function for all neural nets
	InitWFn *initwfn.InitWFn

	PolicySolver *solver.Solver
	VSolver      *solver.Solver
}

// DefaultConfig returns the default PPO configuration with the given
// learning rate for both the policy and value function
func DefaultConfig(learningRate float64) (Config, error) {
	// Losses are batch means, so solvers use a batch size of 1
	policySolver, err := solver.NewDefaultAdam(learningRate, 1)
	if err != nil {
		return Config{}, errors.Wrap(err, "defaultConfig")
	}
	vSolver, err := solver.NewDefaultAdam(learningRate, 1)
	if err != nil {
		return Config{}, errors.Wrap(err, "defaultConfig")
	}

	return Config{
		NSteps:             2048,
		BatchSize:          64,
		NEpochs:            5,
		ClipRange:          0.2,
		EntCoef:            0.0,
		NormalizeAdvantage: true,
		Gamma:              0.95,
		GAELambda:          0.95,

		PolicyLayers:      []int{64, 64},
		PolicyBiases:      []bool{true, true},
		PolicyActivations: []*network.Activation{network.TanH(), network.TanH()},

		ValueFnLayers:      []int{64, 64},
		ValueFnBiases:      []bool{true, true},
		ValueFnActivations: []*network.Activation{network.TanH(), network.TanH()},

		InitWFn:      initwfn.NewGlorotU(1.0),
		PolicySolver: policySolver,
		VSolver:      vSolver,
	}, nil
}

// Validate returns an error if the configuration is invalid
func (c Config) Validate() error {
	if c.NSteps < 1 {
		return errors.Errorf("validate: steps per rollout must be "+
			"positive, have %v", c.NSteps)
	}
	if c.BatchSize < 1 {
		return errors.Errorf("validate: batch size must be positive, "+
			"have %v", c.BatchSize)
	}
	if c.NEpochs < 1 {
		return errors.Errorf("validate: epochs must be positive, have %v",
			c.NEpochs)
	}
	if c.ClipRange <= 0 {
		return errors.Errorf("validate: clip range must be positive, "+
			"have %v", c.ClipRange)
	}
	if c.EntCoef < 0 {
		return errors.Errorf("validate: entropy coefficient must be "+
			"non-negative, have %v", c.EntCoef)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return errors.Errorf("validate: gamma must be in [0, 1], have %v",
			c.Gamma)
	}
	if c.GAELambda < 0 || c.GAELambda > 1 {
		return errors.Errorf("validate: lambda must be in [0, 1], have %v",
			c.GAELambda)
	}

	if len(c.PolicyLayers) != len(c.PolicyActivations) {
		return errors.Errorf("validate: policy has %v layers but %v "+
			"activations", len(c.PolicyLayers), len(c.PolicyActivations))
	}
	if len(c.PolicyBiases) != len(c.PolicyLayers) {
		return errors.Errorf("validate: policy needs %v biases, have %v",
			len(c.PolicyLayers), len(c.PolicyBiases))
	}
	if len(c.ValueFnLayers) != len(c.ValueFnActivations) {
		return errors.Errorf("validate: value function has %v layers but "+
			"%v activations", len(c.ValueFnLayers),
			len(c.ValueFnActivations))
	}
	if len(c.ValueFnBiases) != len(c.ValueFnLayers) {
		return errors.Errorf("validate: value function needs %v biases, "+
			"have %v", len(c.ValueFnLayers), len(c.ValueFnBiases))
	}

	if c.InitWFn == nil {
		return errors.New("validate: no weight initialiser")
	}
	if c.PolicySolver == nil || c.VSolver == nil {
		return errors.New("validate: policy and value function need " +
			"solvers")
	}
	return nil
}

// policyConfig returns the architecture of the policy network
func (c Config) policyConfig() policy.Config {
	return policy.Config{
		HiddenSizes: c.PolicyLayers,
		Biases:      c.PolicyBiases,
		Activations: c.PolicyActivations,
		InitWFn:     c.InitWFn.InitWFn(),
	}
}

// UnmarshalJSON implements the json.Unmarshaler interface. Fields
// missing from data keep their default values.
func (c *Config) UnmarshalJSON(data []byte) error {
	type config Config
	defaults, err := DefaultConfig(4e-4)
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
