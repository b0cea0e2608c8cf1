package experiment

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/goimitate/environment/envconfig"
	"github.com/samuelfneumann/goimitate/network"
)

const testCutoff = 10

func testConfig(t *testing.T) Config {
	c, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	c.NumEnvs = 2
	c.EnvConf = envconfig.NewConfig(envconfig.FixedHorizonMountainCar, false,
		testCutoff, 1.0)
	c.ExpertPath = filepath.Join(dir, "expert")

	c.PPO.NSteps = 8
	c.PPO.BatchSize = 4
	c.PPO.NEpochs = 1
	c.PPO.PolicyLayers = []int{8}
	c.PPO.PolicyBiases = []bool{true}
	c.PPO.PolicyActivations = []*network.Activation{network.TanH()}
	c.PPO.ValueFnLayers = []int{8}
	c.PPO.ValueFnBiases = []bool{true}
	c.PPO.ValueFnActivations = []*network.Activation{network.TanH()}

	c.RewardNet.HiddenSizes = []int{8}
	c.RewardNet.Biases = []bool{true}
	c.RewardNet.Activations = []*network.Activation{network.ReLU()}

	c.GAIL.DemoBatchSize = 8
	c.GAIL.GenReplayBufferCapacity = 12
	c.GAIL.NDiscUpdatesPerRound = 2

	c.TotalTimesteps = 2 * c.PPO.NSteps * c.NumEnvs
	c.EvalEpisodes = 3
	c.CheckpointDir = filepath.Join(dir, "checkpoints")
	c.CheckpointEvery = 1
	c.ReportPath = filepath.Join(dir, "report")
	return c
}

func TestDefaultConfig(t *testing.T) {
	c, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Seed != 42 || c.NumEnvs != 8 || c.TotalTimesteps != 800000 ||
		c.EvalEpisodes != 100 || c.ExpertPath != "continuous" {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.EnvConf.Environment != envconfig.FixedHorizonMountainCar {
		t.Errorf("environment: have %v", c.EnvConf.Environment)
	}
	if c.PPO.BatchSize != 64 || c.PPO.NEpochs != 5 || c.PPO.Gamma != 0.95 ||
		c.PPO.EntCoef != 0 {
		t.Errorf("unexpected learner defaults: %+v", c.PPO)
	}
	if c.GAIL.DemoBatchSize != 1024 || c.GAIL.GenReplayBufferCapacity != 512 ||
		c.GAIL.NDiscUpdatesPerRound != 8 {
		t.Errorf("unexpected trainer defaults: %+v", c.GAIL)
	}
}

func TestConfigValidate(t *testing.T) {
	for name, modify := range map[string]func(*Config){
		"environments": func(c *Config) { c.NumEnvs = 0 },
		"expert":       func(c *Config) { c.ExpertPath = "" },
		"solver":       func(c *Config) { c.DiscSolver = nil },
		"timesteps":    func(c *Config) { c.TotalTimesteps = 0 },
		"evaluation":   func(c *Config) { c.EvalEpisodes = 0 },
		"checkpoints":  func(c *Config) { c.CheckpointEvery = 0 },
		"gail":         func(c *Config) { c.GAIL.DemoBatchSize = 0 },
	} {
		c := testConfig(t)
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%v: expected an error", name)
		}
	}
}

func TestConfigJSON(t *testing.T) {
	var c Config
	if err := json.Unmarshal([]byte(`{"NumEnvs": 4, "GAIL": `+
		`{"DemoBatchSize": 16}}`), &c); err != nil {
		t.Fatal(err)
	}
	if c.NumEnvs != 4 || c.GAIL.DemoBatchSize != 16 {
		t.Errorf("fields not decoded: %+v", c)
	}
	if c.Seed != 42 || c.GAIL.NDiscUpdatesPerRound != 8 ||
		c.DiscSolver == nil || c.PPO.BatchSize != 64 {
		t.Errorf("defaults not kept: %+v", c)
	}

	filename := filepath.Join(t.TempDir(), "config.json")
	want := testConfig(t)
	if err := SaveConfig(filename, want); err != nil {
		t.Fatal(err)
	}
	have, err := LoadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if have.EnvConf != want.EnvConf || have.ExpertPath != want.ExpertPath ||
		have.GAIL != want.GAIL || have.PPO.NSteps != want.PPO.NSteps ||
		len(have.RewardNet.HiddenSizes) != 1 {
		t.Errorf("config changed by saving: want %+v, have %+v", want, have)
	}
}

func TestGenerateExpert(t *testing.T) {
	c := testConfig(t)
	trajs, err := GenerateExpert(context.Background(), c, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(trajs) < 4 {
		t.Errorf("want at least 4 episodes, have %v", len(trajs))
	}
	if _, err := os.Stat(c.ExpertPath); err != nil {
		t.Error(err)
	}

	if _, err := GenerateExpert(context.Background(), c, 4, 2); err == nil {
		t.Error("expected an error for epsilon > 1")
	}
}

func TestRun(t *testing.T) {
	c := testConfig(t)
	if _, err := GenerateExpert(context.Background(), c, 4, 0); err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Before.Rewards) != c.EvalEpisodes ||
		len(report.After.Rewards) != c.EvalEpisodes {
		t.Errorf("evaluation episodes: have %v before and %v after",
			len(report.Before.Rewards), len(report.After.Rewards))
	}
	for _, l := range append(report.Before.Lengths, report.After.Lengths...) {
		if l != testCutoff {
			t.Errorf("fixed horizon episode of length %v", l)
		}
	}
	if report.Rounds != 2 || report.Timesteps != c.TotalTimesteps {
		t.Errorf("training: have %v rounds and %v timesteps", report.Rounds,
			report.Timesteps)
	}

	for _, name := range []string{"policy1.bin", "policy2.bin",
		"reward1.bin", "reward2.bin"} {
		if _, err := os.Stat(filepath.Join(c.CheckpointDir, name)); err != nil {
			t.Errorf("missing checkpoint: %v", err)
		}
	}

	saved, err := LoadReport(c.ReportPath)
	if err != nil {
		t.Fatal(err)
	}
	if saved.RunID != report.RunID || saved.After.Mean() != report.After.Mean() {
		t.Errorf("saved report differs: want %+v, have %+v", report, saved)
	}

	result, err := EvaluatePolicy(context.Background(), c,
		filepath.Join(c.CheckpointDir, "policy2.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rewards) != c.EvalEpisodes {
		t.Errorf("evaluation episodes: have %v", len(result.Rewards))
	}
}

func TestRunErrors(t *testing.T) {
	c := testConfig(t)
	if _, err := Run(context.Background(), c); err == nil {
		t.Error("expected an error without an expert trajectory file")
	}

	if err := os.WriteFile(c.ExpertPath, []byte("not gob"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), c); err == nil {
		t.Error("expected an error for a malformed expert trajectory file")
	}

	if _, err := GenerateExpert(context.Background(), c, 4, 0); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, c); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
