package ppo

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/environment/envconfig"
	"github.com/samuelfneumann/goimitate/environment/vecenv"
	"github.com/samuelfneumann/goimitate/network"
)

func newTestEnv(t *testing.T, n int) *vecenv.Env {
	c := envconfig.NewConfig(envconfig.FixedHorizonMountainCar, false, 20,
		1.0)
	env, err := vecenv.New(c, 7, n)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func testConfig(t *testing.T) Config {
	c, err := DefaultConfig(1e-3)
	if err != nil {
		t.Fatal(err)
	}
	c.NSteps = 8
	c.BatchSize = 4
	c.NEpochs = 2
	c.PolicyLayers = []int{8}
	c.PolicyBiases = []bool{true}
	c.PolicyActivations = []*network.Activation{network.TanH()}
	c.ValueFnLayers = []int{8}
	c.ValueFnBiases = []bool{true}
	c.ValueFnActivations = []*network.Activation{network.TanH()}
	return c
}

func newTestPPO(t *testing.T, env vecenv.VecEnv) *PPO {
	p, err := New(env, testConfig(t), 3)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConfigValidate(t *testing.T) {
	mutations := map[string]func(*Config){
		"steps":      func(c *Config) { c.NSteps = 0 },
		"batch":      func(c *Config) { c.BatchSize = 0 },
		"epochs":     func(c *Config) { c.NEpochs = 0 },
		"clip":       func(c *Config) { c.ClipRange = 0 },
		"gamma":      func(c *Config) { c.Gamma = 1.5 },
		"lambda":     func(c *Config) { c.GAELambda = -0.1 },
		"entropy":    func(c *Config) { c.EntCoef = -1 },
		"biases":     func(c *Config) { c.PolicyBiases = []bool{true, true} },
		"vbiases":    func(c *Config) { c.ValueFnBiases = nil },
		"activation": func(c *Config) { c.ValueFnActivations = nil },
		"solver":     func(c *Config) { c.VSolver = nil },
	}

	for name, mutate := range mutations {
		c := testConfig(t)
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%v: expected a validation error", name)
		}
	}

	if err := testConfig(t).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigJSONKeepsDefaults(t *testing.T) {
	var c Config
	if err := json.Unmarshal([]byte(`{"NSteps": 16, "Gamma": 0.9}`), &c); err != nil {
		t.Fatal(err)
	}
	if c.NSteps != 16 || c.Gamma != 0.9 {
		t.Errorf("fields not decoded: %+v", c)
	}
	if c.BatchSize != 64 || c.NEpochs != 5 || c.GAELambda != 0.95 {
		t.Errorf("defaults not kept: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}

	data, err := json.Marshal(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	var decoded Config
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.BatchSize != 4 || len(decoded.PolicyLayers) != 1 {
		t.Errorf("round trip lost fields: %+v", decoded)
	}
}

func TestLearnCountsTimesteps(t *testing.T) {
	env := newTestEnv(t, 2)
	p := newTestPPO(t, env)
	defer p.Close()

	if p.RolloutSteps() != 16 {
		t.Fatalf("rollout steps: want 16, have %v", p.RolloutSteps())
	}

	if err := p.Learn(context.Background(), 16); err != nil {
		t.Fatal(err)
	}
	if p.NumTimesteps() != 16 {
		t.Errorf("timesteps: want 16, have %v", p.NumTimesteps())
	}

	// Learning continues from the previous count and rounds up to a
	// full rollout
	if err := p.Learn(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if p.NumTimesteps() != 32 {
		t.Errorf("timesteps: want 32, have %v", p.NumTimesteps())
	}

	if err := p.Learn(context.Background(), 0); err == nil {
		t.Error("expected an error for zero timesteps")
	}
}

func TestLearnCancelled(t *testing.T) {
	p := newTestPPO(t, newTestEnv(t, 2))
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Learn(ctx, 16)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, have %v", err)
	}
	if p.NumTimesteps() != 0 {
		t.Errorf("cancelled learning took %v steps", p.NumTimesteps())
	}
}

func TestPredict(t *testing.T) {
	p := newTestPPO(t, newTestEnv(t, 2))
	defer p.Close()

	obs := []float64{-0.5, 0, -0.4, 0.01, 0.2, -0.03}
	first, err := p.Predict(obs, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 {
		t.Fatalf("want 3 actions, have %v", len(first))
	}
	second, err := p.Predict(obs, true)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("deterministic predictions differ: %v, %v", first,
				second)
		}
		if first[i] < 0 || first[i] > 2 {
			t.Errorf("illegal action %v", first[i])
		}
	}

	if _, err := p.Predict(obs[:5], true); err == nil {
		t.Error("expected an error for a partial observation")
	}
}

func TestSetEnv(t *testing.T) {
	p := newTestPPO(t, newTestEnv(t, 2))
	defer p.Close()

	if err := p.SetEnv(newTestEnv(t, 3)); err == nil {
		t.Error("expected an error for a different number of environments")
	}

	env := newTestEnv(t, 2)
	if err := p.SetEnv(env); err != nil {
		t.Fatal(err)
	}
	if p.Env() != env {
		t.Error("environment not set")
	}
	if err := p.Learn(context.Background(), 16); err != nil {
		t.Fatal(err)
	}
}

func TestSaveLoad(t *testing.T) {
	env := newTestEnv(t, 2)
	p := newTestPPO(t, env)
	defer p.Close()
	if err := p.Learn(context.Background(), 16); err != nil {
		t.Fatal(err)
	}

	filename := filepath.Join(t.TempDir(), "ppo.bin")
	if err := p.Save(filename); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(filename, env, 11)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()

	if loaded.NumTimesteps() != p.NumTimesteps() {
		t.Errorf("timesteps: want %v, have %v", p.NumTimesteps(),
			loaded.NumTimesteps())
	}

	obs := []float64{-0.5, 0, -0.4, 0.01}
	want, err := p.values(obs)
	if err != nil {
		t.Fatal(err)
	}
	have, err := loaded.values(obs)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if want[i] != have[i] {
			t.Errorf("value %v: want %v, have %v", i, want[i], have[i])
		}
	}

	wantActs, _ := p.Predict(obs, true)
	haveActs, _ := loaded.Predict(obs, true)
	for i := range wantActs {
		if wantActs[i] != haveActs[i] {
			t.Errorf("action %v: want %v, have %v", i, wantActs[i],
				haveActs[i])
		}
	}
}

func TestNormalize(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	normalize(x)

	var mean float64
	for _, v := range x {
		mean += v
	}
	if mean > 1e-9 || mean < -1e-9 {
		t.Errorf("mean after normalizing: %v", mean)
	}
	if x[0] >= x[1] || x[2] >= x[3] {
		t.Errorf("order not kept: %v", x)
	}
}
