package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/martinemde/cairn/harness"
)

// Runner executes the iteration state machine.
type Runner struct {
	opts  Options
	git   *Git
	state State
}

// NewRunner validates options and builds a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if err := opts.withDefaults(); err != nil {
		return nil, err
	}
	return &Runner{opts: opts, git: NewGit(opts.RepoDir)}, nil
}

// Run drives iterations until the iteration cap is reached or a fatal
// error occurs. The returned state is valid, though partial, on error.
func (r *Runner) Run(ctx context.Context) (*State, error) {
	obs := r.opts.Observer

	if err := r.checkpointDirtyTree(ctx); err != nil {
		return &r.state, err
	}

	for iter := 1; r.opts.MaxIterations == 0 || iter <= r.opts.MaxIterations; iter++ {
		r.state.Iteration = iter
		r.state.Stats.Iterations = iter
		obs.iteration(iter)

		obs.mood(&r.state, MoodPlanning)
		plan, err := r.plan(ctx)
		if err != nil {
			return &r.state, err
		}
		r.state.Plans = append(r.state.Plans, plan)
		obs.plan(plan)
		if plan.IsComplete {
			// advisory only; the iteration cap decides when to stop
			r.opts.Logger.Info("planner reports work complete",
				"iteration", iter, "message", plan.CompletionMessage)
		}

		obs.mood(&r.state, MoodBuilding)
		if err := r.implement(ctx, plan); err != nil {
			return &r.state, err
		}

		obs.mood(&r.state, MoodReviewing)
		r.review(ctx)

		obs.mood(&r.state, MoodCommitting)
		if err := r.commitIteration(ctx, iter, plan); err != nil {
			return &r.state, err
		}
	}
	return &r.state, nil
}

// checkpointDirtyTree commits any pre-existing uncommitted changes so
// iteration 1 starts from a clean tree. No other phase touches the tree
// except commit.
func (r *Runner) checkpointDirtyTree(ctx context.Context) error {
	dirty, err := r.git.HasUncommittedChanges(ctx)
	if err != nil {
		return fmt.Errorf("loop: inspect working tree: %w", err)
	}
	if !dirty {
		return nil
	}
	r.opts.Logger.Info("committing pre-existing changes before iteration 1")
	if err := r.git.AddAll(ctx); err != nil {
		return err
	}
	_, err = r.git.Commit(ctx, "checkpoint uncommitted work")
	return err
}

// plan runs one planner turn with recent git log as context and a
// capture-only tool. Rate-limit failures retry indefinitely; any other
// failure is returned to the caller.
func (r *Runner) plan(ctx context.Context) (Plan, error) {
	prompt := planPrompt(r.git.RecentLog(ctx, r.opts.GitLogDepth), r.state.Stats.Failures)

	for attempt := 0; ; attempt++ {
		var captured harness.Capture[Plan]
		server := r.opts.Harness.CreateToolServer("planner", []harness.ToolDef{planTool(&captured)})
		cfg := r.opts.Planner
		cfg.ToolServers = []*harness.ToolServer{server}

		events, res, err := r.runTurn(ctx, cfg, prompt)
		if err != nil {
			return Plan{}, fmt.Errorf("planner turn: %w", err)
		}
		if res == nil || !res.Success {
			msg := turnFailureMessage(events, res)
			if harness.Classify(msg) != harness.ClassRateLimit {
				return Plan{}, fmt.Errorf("planner failed: %s", msg)
			}
			if err := r.waitRateLimit(ctx, msg, attempt); err != nil {
				return Plan{}, err
			}
			continue
		}
		if !server.Supported() {
			return parsePlanText(res.Text), nil
		}
		p, ok := captured.Get()
		if !ok {
			return Plan{}, fmt.Errorf("planner turn succeeded without submitting a plan")
		}
		return p, nil
	}
}

// implement runs the implementer turn for a plan. Rate limits retry the
// whole turn indefinitely with backoff; a transient failure retries at
// most once; anything else is recorded and the loop moves on so the next
// planning call can react to it through git history. Token stats keep
// accumulating across retries.
func (r *Runner) implement(ctx context.Context, p Plan) error {
	prompt := implementPrompt(p)
	attempt := 0
	transientRetried := false

	for {
		events, res, err := r.runTurn(ctx, r.opts.Implementer, prompt)
		if err == nil && res != nil && res.Success {
			return nil
		}

		msg := turnFailureMessage(events, res)
		if err != nil {
			msg = err.Error()
		}
		switch harness.Classify(msg) {
		case harness.ClassRateLimit:
			if werr := r.waitRateLimit(ctx, msg, attempt); werr != nil {
				return werr
			}
			attempt++
			continue
		case harness.ClassTransient:
			if !transientRetried {
				transientRetried = true
				r.opts.Observer.mood(&r.state, MoodRecovering)
				wait := r.opts.Backoff.TransientWait(0)
				if werr := harness.CountdownWait(ctx, wait, r.opts.Observer.backoff); werr != nil {
					return werr
				}
				continue
			}
		}
		r.recordFailure("implement", msg)
		return ctx.Err()
	}
}

// review runs bounded advisory review rounds. Nothing here can fail the
// iteration; exhausting all rounds without approval still proceeds to
// commit.
func (r *Runner) review(ctx context.Context) {
	for round := 1; round <= r.opts.ReviewRounds; round++ {
		if err := r.git.AddAll(ctx); err != nil {
			r.opts.Logger.Warn("review: staging failed", "error", err)
			return
		}
		diff, err := r.git.DiffCached(ctx)
		if err != nil {
			r.opts.Logger.Warn("review: diff failed", "error", err)
			return
		}
		if strings.TrimSpace(diff) == "" {
			return
		}

		_, res, err := r.runTurn(ctx, *r.opts.Reviewer, reviewPrompt(diff))
		if err != nil || res == nil || !res.Success {
			r.opts.Logger.Warn("review round failed, proceeding to commit", "round", round)
			return
		}
		verdict := res.Text
		if isApproval(verdict) {
			return
		}
		bullets := feedbackBullets(verdict)
		if len(bullets) == 0 {
			// Not an approval and not bullet-formatted. The verdict is
			// still actionable feedback, so hand it over verbatim.
			trimmed := strings.TrimSpace(verdict)
			if trimmed == "" {
				return
			}
			r.opts.Logger.Info("reviewer feedback not bullet-formatted, passing verbatim", "round", round)
			bullets = []string{trimmed}
		}

		r.opts.Logger.Info("applying review feedback", "round", round, "items", len(bullets))
		if _, fixRes, err := r.runTurn(ctx, r.opts.Implementer, fixPrompt(bullets)); err != nil || fixRes == nil || !fixRes.Success {
			r.opts.Logger.Warn("review fix turn failed, proceeding to commit", "round", round)
			return
		}
	}
}

// commitIteration stages everything, commits with a generated one-line
// message, and folds the commit's line counts into stats.
func (r *Runner) commitIteration(ctx context.Context, iter int, p Plan) error {
	if err := r.git.AddAll(ctx); err != nil {
		return fmt.Errorf("commit: staging failed: %w", err)
	}
	diff, err := r.git.DiffCached(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(diff) == "" {
		r.opts.Logger.Info("nothing to commit", "iteration", iter)
		return nil
	}

	msg := r.commitMessage(ctx, iter, p)
	hash, err := r.git.Commit(ctx, msg)
	if err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	r.state.Stats.Commits++
	if added, removed, err := r.git.LastCommitStats(ctx); err == nil {
		r.state.Stats.LinesAdded += added
		r.state.Stats.LinesRemoved += removed
	}
	r.opts.Observer.commit(hash, msg)
	return nil
}

// commitMessage asks for a one-line message via a minimal auxiliary
// call. Any failure falls back to a generic message; this never blocks a
// commit.
func (r *Runner) commitMessage(ctx context.Context, iter int, p Plan) string {
	fallback := fmt.Sprintf("iteration %d checkpoint", iter)

	_, res, err := r.runTurn(ctx, *r.opts.Reviewer, commitMessagePrompt(p.Summary))
	if err != nil || res == nil || !res.Success {
		return fallback
	}
	if line := firstLine(res.Text); line != "" {
		return line
	}
	return fallback
}

// runTurn runs one complete session turn and folds its usage and tool
// activity into stats, success or not.
func (r *Runner) runTurn(ctx context.Context, cfg harness.AgentConfig, prompt string) ([]harness.AgentEvent, *harness.ResultEvent, error) {
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = r.opts.RepoDir
	}
	session, err := r.opts.Harness.Run(ctx, cfg, prompt)
	if err != nil {
		return nil, nil, err
	}
	defer session.Close()

	events := harness.Drain(session.Events())
	for _, ev := range events {
		if ev.Kind == harness.EventToolUse {
			r.state.Stats.LastTool = ev.ToolUse.Name
		}
	}
	res := harness.FinalResult(events)
	if res != nil {
		r.state.Stats.InputTokens += res.Usage.InputTokens
		r.state.Stats.OutputTokens += res.Usage.OutputTokens
		r.state.Stats.CostUSD += res.CostUSD
	}
	return events, res, nil
}

func (r *Runner) waitRateLimit(ctx context.Context, msg string, attempt int) error {
	r.opts.Observer.mood(&r.state, MoodWaiting)
	wait := r.opts.Backoff.RateLimitWait(harness.ParseRateLimit(msg), attempt)
	r.opts.Logger.Info("rate limited, waiting", "wait", wait.String())
	return harness.CountdownWait(ctx, wait, r.opts.Observer.backoff)
}

func (r *Runner) recordFailure(phase, msg string) {
	r.opts.Logger.Warn("phase failed", "phase", phase, "error", msg)
	r.state.Stats.Failures = append(r.state.Stats.Failures, fmt.Sprintf("%s: %s", phase, msg))
	r.opts.Observer.failure(phase, msg)
}

// turnFailureMessage extracts the most specific failure text from a
// drained turn.
func turnFailureMessage(events []harness.AgentEvent, res *harness.ResultEvent) string {
	if errEv := harness.FirstError(events); errEv != nil {
		return errEv.Message
	}
	if res != nil && res.Text != "" {
		return res.Text
	}
	return "turn failed without detail"
}

// planTool is the capture-only submission tool handed to the planner.
func planTool(captured *harness.Capture[Plan]) harness.ToolDef {
	return harness.ToolDef{
		Name:        "submit_plan",
		Description: "Submit the plan for this iteration. Call exactly once.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"summary": map[string]interface{}{
					"type":        "string",
					"description": "What to build or change this iteration",
				},
				"steps": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Ordered implementation steps",
				},
				"validation": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "How to check the work is correct",
				},
				"is_complete": map[string]interface{}{
					"type":        "boolean",
					"description": "True when the repository needs no further work",
				},
				"completion_message": map[string]interface{}{
					"type":        "string",
					"description": "Why the work is complete, when is_complete is true",
				},
			},
			"required": []string{"summary"},
		},
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var p Plan
			if err := json.Unmarshal(input, &p); err != nil {
				return "", fmt.Errorf("invalid plan payload: %w", err)
			}
			if err := captured.Set(p); err != nil {
				return "", err
			}
			return "plan recorded", nil
		},
	}
}

// parsePlanText recovers a plan from result text when the backend cannot
// intercept tool calls. A JSON object matching the plan shape is used
// directly; anything else becomes the plan description verbatim.
func parsePlanText(text string) Plan {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var p Plan
		if err := json.Unmarshal([]byte(trimmed), &p); err == nil && p.Summary != "" {
			return p
		}
	}
	return Plan{Summary: trimmed}
}
