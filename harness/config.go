package harness

import (
	"fmt"
	"io"
	"log/slog"
)

// PermissionMode controls how much autonomy the backend is granted over
// the working tree.
type PermissionMode string

const (
	PermissionDefault     PermissionMode = "default"
	PermissionAcceptEdits PermissionMode = "accept-edits"
	PermissionBypass      PermissionMode = "bypass"
)

// SandboxPolicy declares filesystem and network restrictions enforced at
// process-spawn time. Nil policy means no sandbox.
type SandboxPolicy struct {
	ReadPaths    []string `json:"read_paths" yaml:"read_paths"`
	WritePaths   []string `json:"write_paths" yaml:"write_paths"`
	BlockNetwork bool     `json:"block_network" yaml:"block_network"`
}

// clone returns a deep copy so per-session path merging never mutates
// the caller's policy.
func (p *SandboxPolicy) clone() *SandboxPolicy {
	if p == nil {
		return nil
	}
	c := &SandboxPolicy{BlockNetwork: p.BlockNetwork}
	c.ReadPaths = append([]string(nil), p.ReadPaths...)
	c.WritePaths = append([]string(nil), p.WritePaths...)
	return c
}

// AgentConfig is the execution request handed to a Harness. It is fixed
// at session creation; later turns may carry a partial override via
// Session.UpdateConfig.
type AgentConfig struct {
	Model        string
	MaxTurns     int     // model calls per turn for the in-process backend; 0 = backend default
	MaxBudgetUSD float64 // 0 = uncapped
	SystemPrompt string
	WorkingDir   string
	AddDirs      []string // additional readable directories
	ToolServers  []*ToolServer
	Permission   PermissionMode
	Sandbox      *SandboxPolicy
	Stderr       io.Writer // optional sink for raw backend stderr
	Logger       *slog.Logger
}

// ConfigPatch is a partial AgentConfig override applied to subsequent
// turns only. Nil fields leave the current value untouched.
type ConfigPatch struct {
	Model        *string
	MaxTurns     *int
	MaxBudgetUSD *float64
	SystemPrompt *string
	ToolServers  []*ToolServer // non-nil replaces the set wholesale
	Permission   *PermissionMode
}

// apply merges the patch into a copy of cfg.
func (p ConfigPatch) apply(cfg AgentConfig) AgentConfig {
	if p.Model != nil {
		cfg.Model = *p.Model
	}
	if p.MaxTurns != nil {
		cfg.MaxTurns = *p.MaxTurns
	}
	if p.MaxBudgetUSD != nil {
		cfg.MaxBudgetUSD = *p.MaxBudgetUSD
	}
	if p.SystemPrompt != nil {
		cfg.SystemPrompt = *p.SystemPrompt
	}
	if p.ToolServers != nil {
		cfg.ToolServers = p.ToolServers
	}
	if p.Permission != nil {
		cfg.Permission = *p.Permission
	}
	return cfg
}

// Validate checks the config for structural problems before a session is
// created from it.
func (c AgentConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("agent config: model is required")
	}
	if c.WorkingDir == "" {
		return fmt.Errorf("agent config: working directory is required")
	}
	switch c.Permission {
	case "", PermissionDefault, PermissionAcceptEdits, PermissionBypass:
	default:
		return fmt.Errorf("agent config: unknown permission mode %q", c.Permission)
	}
	return nil
}

// logger returns the configured logger or the process default.
func (c AgentConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
