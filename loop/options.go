package loop

import (
	"fmt"
	"log/slog"

	"github.com/martinemde/cairn/harness"
)

const (
	defaultReviewRounds = 5
	defaultGitLogDepth  = 10
)

// Options configures a Runner. Harness, RepoDir, and the planner and
// implementer configs are required; everything else has defaults.
type Options struct {
	Harness harness.Harness
	RepoDir string

	// MaxIterations bounds the loop. 0 means unbounded; only a fatal
	// error stops an unbounded loop.
	MaxIterations int

	// ReviewRounds caps review cycles per iteration. 0 means the
	// default of 5.
	ReviewRounds int

	// GitLogDepth is how many recent log lines feed the planner.
	GitLogDepth int

	Planner     harness.AgentConfig
	Implementer harness.AgentConfig

	// Reviewer defaults to the planner config restricted to a single
	// call with no tools.
	Reviewer *harness.AgentConfig

	Backoff  harness.BackoffConfig
	Observer Observer
	Logger   *slog.Logger
}

func (o *Options) withDefaults() error {
	if o.Harness == nil {
		return fmt.Errorf("loop: harness is required")
	}
	if o.RepoDir == "" {
		return fmt.Errorf("loop: repo dir is required")
	}
	if err := o.Planner.Validate(); err != nil {
		return fmt.Errorf("loop: planner config: %w", err)
	}
	if err := o.Implementer.Validate(); err != nil {
		return fmt.Errorf("loop: implementer config: %w", err)
	}
	if o.ReviewRounds <= 0 {
		o.ReviewRounds = defaultReviewRounds
	}
	if o.GitLogDepth <= 0 {
		o.GitLogDepth = defaultGitLogDepth
	}
	if o.Backoff == (harness.BackoffConfig{}) {
		o.Backoff = harness.DefaultBackoffConfig()
	}
	if o.Reviewer == nil {
		reviewer := o.Planner
		reviewer.MaxTurns = 1
		reviewer.ToolServers = nil
		o.Reviewer = &reviewer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}
