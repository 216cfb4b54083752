// Command cairn runs the iterative agent loop described by a workload
// file, committing each iteration's work to the target repository.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/martinemde/cairn/harness"
	"github.com/martinemde/cairn/loop"
	"github.com/martinemde/cairn/workload"
)

var (
	workloadPath = pflag.StringP("workload", "w", "", "path to a workload YAML file")
	harnessName  = pflag.String("harness", "", "backend override: api or subprocess")
	iterations   = pflag.IntP("iterations", "n", -1, "override max iterations (-1 keeps the workload value)")
	repoDir      = pflag.StringP("repo", "r", "", "override the working repository")
	verbose      = pflag.BoolP("verbose", "v", false, "debug logging")
)

func main() {
	pflag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cairn:", err)
		os.Exit(1)
	}
}

func run() error {
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := workload.Default()
	if *workloadPath != "" {
		loaded, err := workload.Load(*workloadPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	if *iterations >= 0 {
		cfg.MaxIterations = *iterations
	}
	if *repoDir != "" {
		cfg.WorkingDir = *repoDir
	}

	h, err := harness.Resolve(harness.ResolveOptions{
		Explicit:   *harnessName,
		Configured: cfg.Harness,
	})
	if err != nil {
		return err
	}

	dir, err := cfg.RepoDir()
	if err != nil {
		return err
	}

	runner, err := loop.NewRunner(loop.Options{
		Harness:       h,
		RepoDir:       dir,
		MaxIterations: cfg.MaxIterations,
		ReviewRounds:  cfg.ReviewRounds,
		Planner:       cfg.PlannerAgent(),
		Implementer:   cfg.ImplementerAgent(),
		Logger:        logger,
		Observer: loop.Observer{
			OnIteration: func(n int) {
				logger.Info("iteration starting", "n", n)
			},
			OnPlan: func(p loop.Plan) {
				logger.Info("plan", "summary", p.Summary, "steps", len(p.Steps), "complete", p.IsComplete)
			},
			OnCommit: func(hash, message string) {
				logger.Info("committed", "hash", hash, "message", message)
			},
			OnBackoff: func(remaining time.Duration) {
				fmt.Fprintf(os.Stderr, "\rwaiting %s  ", remaining)
			},
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := runner.Run(ctx)
	logger.Info("run finished",
		"iterations", state.Stats.Iterations,
		"commits", state.Stats.Commits,
		"lines_added", state.Stats.LinesAdded,
		"lines_removed", state.Stats.LinesRemoved,
		"input_tokens", state.Stats.InputTokens,
		"output_tokens", state.Stats.OutputTokens,
		"cost_usd", fmt.Sprintf("%.4f", state.Stats.CostUSD),
		"failures", len(state.Stats.Failures),
	)
	return err
}
