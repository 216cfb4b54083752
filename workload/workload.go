// Package workload loads declarative workload configuration: which
// models and harness to use, the iteration budget, and the sandbox
// policy for a run.
package workload

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/martinemde/cairn/harness"
)

// Config is one workload definition.
type Config struct {
	Name string `yaml:"name"`

	// Harness selects the backend ("api" or "subprocess"). Empty defers
	// to the environment and the built-in default.
	Harness string `yaml:"harness"`

	// Model drives the implementer; PlannerModel, when set, overrides it
	// for planning and review calls.
	Model        string `yaml:"model"`
	PlannerModel string `yaml:"planner_model"`

	SystemPrompt string `yaml:"system_prompt"`
	WorkingDir   string `yaml:"working_dir"`

	// MaxIterations bounds the loop; 0 means unbounded.
	MaxIterations int     `yaml:"max_iterations"`
	ReviewRounds  int     `yaml:"review_rounds"`
	MaxTurns      int     `yaml:"max_turns"`
	MaxBudgetUSD  float64 `yaml:"max_budget_usd"`

	Permission string                 `yaml:"permission"`
	Sandbox    *harness.SandboxPolicy `yaml:"sandbox"`
}

// Default returns a Config with baseline values filled in.
func Default() Config {
	return Config{
		Name:       "default",
		Model:      "claude-opus-4-6",
		WorkingDir: ".",
	}
}

// Load reads a YAML workload file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse workload %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("workload %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the config for structural problems.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	switch c.Harness {
	case "", harness.NameAPI, harness.NameSubprocess:
	default:
		return fmt.Errorf("unknown harness %q (valid: %s, %s)", c.Harness, harness.NameAPI, harness.NameSubprocess)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	if c.ReviewRounds < 0 {
		return fmt.Errorf("review_rounds must not be negative")
	}
	if c.MaxBudgetUSD < 0 {
		return fmt.Errorf("max_budget_usd must not be negative")
	}
	// permission values are owned by the harness config
	probe := c.agentConfig(c.Model)
	return probe.Validate()
}

// RepoDir resolves the working directory to an absolute path.
func (c *Config) RepoDir() (string, error) {
	dir := c.WorkingDir
	if dir == "" {
		dir = "."
	}
	return filepath.Abs(dir)
}

func (c *Config) agentConfig(model string) harness.AgentConfig {
	dir := c.WorkingDir
	if dir == "" {
		dir = "."
	}
	return harness.AgentConfig{
		Model:        model,
		MaxTurns:     c.MaxTurns,
		MaxBudgetUSD: c.MaxBudgetUSD,
		SystemPrompt: c.SystemPrompt,
		WorkingDir:   dir,
		Permission:   harness.PermissionMode(c.Permission),
		Sandbox:      c.Sandbox,
	}
}

// ImplementerAgent is the harness config for implementation turns.
func (c *Config) ImplementerAgent() harness.AgentConfig {
	return c.agentConfig(c.Model)
}

// PlannerAgent is the harness config for planning and review turns. It
// uses PlannerModel when one is set.
func (c *Config) PlannerAgent() harness.AgentConfig {
	model := c.PlannerModel
	if model == "" {
		model = c.Model
	}
	return c.agentConfig(model)
}
