package standup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/martinemde/cairn/harness"
)

// Participant is one agent in the standup.
type Participant struct {
	Name   string
	Config harness.AgentConfig
	// Focus is what this participant should report on.
	Focus string
}

// StatusReport is a participant's one-shot report submission.
type StatusReport struct {
	Participant string   `json:"participant"`
	Summary     string   `json:"summary"`
	Blockers    []string `json:"blockers,omitempty"`
}

// SyncResponse is a participant's one-shot sync submission, produced
// after seeing all reports and every earlier sync response.
type SyncResponse struct {
	Participant string `json:"participant"`
	Response    string `json:"response"`
}

// Outcome collects both phases. Reports and Sync preserve participant
// order; a participant that failed a phase is simply absent from that
// slice and listed in Failures.
type Outcome struct {
	Reports  []StatusReport
	Sync     []SyncResponse
	Failures []string
}

// Options configures an Orchestrator.
type Options struct {
	Harness      harness.Harness
	Participants []Participant
	Logger       *slog.Logger
}

// Orchestrator runs the standup.
type Orchestrator struct {
	opts Options
}

// New validates options and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Harness == nil {
		return nil, fmt.Errorf("standup: harness is required")
	}
	if len(opts.Participants) == 0 {
		return nil, fmt.Errorf("standup: at least one participant is required")
	}
	for _, p := range opts.Participants {
		if p.Name == "" {
			return nil, fmt.Errorf("standup: participant name is required")
		}
		if err := p.Config.Validate(); err != nil {
			return nil, fmt.Errorf("standup: participant %s: %w", p.Name, err)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{opts: opts}, nil
}

// Run executes the report phase concurrently, then the sync phase
// sequentially. A participant failing a phase never aborts the others;
// Run errors only on context cancellation.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{}

	reports := make([]*StatusReport, len(o.opts.Participants))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, p := range o.opts.Participants {
		wg.Add(1)
		go func(i int, p Participant) {
			defer wg.Done()
			report, err := o.collectReport(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.opts.Logger.Warn("report failed", "participant", p.Name, "error", err)
				outcome.Failures = append(outcome.Failures, fmt.Sprintf("report %s: %v", p.Name, err))
				return
			}
			reports[i] = report
		}(i, p)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}

	for _, r := range reports {
		if r != nil {
			outcome.Reports = append(outcome.Reports, *r)
		}
	}

	// Sync runs strictly in order: participant i's prompt carries sync
	// responses 0..i-1 and nothing later.
	for i, p := range o.opts.Participants {
		if reports[i] == nil {
			continue
		}
		resp, err := o.collectSync(ctx, p, outcome.Reports, outcome.Sync)
		if err != nil {
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			o.opts.Logger.Warn("sync failed", "participant", p.Name, "error", err)
			outcome.Failures = append(outcome.Failures, fmt.Sprintf("sync %s: %v", p.Name, err))
			continue
		}
		outcome.Sync = append(outcome.Sync, *resp)
	}
	return outcome, nil
}

func (o *Orchestrator) collectReport(ctx context.Context, p Participant) (*StatusReport, error) {
	var captured harness.Capture[StatusReport]
	server := o.opts.Harness.CreateToolServer("standup", []harness.ToolDef{reportTool(p.Name, &captured)})

	res, err := o.runTurn(ctx, p, server, reportPrompt(p))
	if err != nil {
		return nil, err
	}
	if server.Supported() {
		report, ok := captured.Get()
		if !ok {
			return nil, fmt.Errorf("turn succeeded without a report submission")
		}
		return &report, nil
	}
	report := parseReportText(p.Name, res.Text)
	return &report, nil
}

func (o *Orchestrator) collectSync(ctx context.Context, p Participant, reports []StatusReport, earlier []SyncResponse) (*SyncResponse, error) {
	var captured harness.Capture[SyncResponse]
	server := o.opts.Harness.CreateToolServer("standup", []harness.ToolDef{syncTool(p.Name, &captured)})

	res, err := o.runTurn(ctx, p, server, syncPrompt(p, reports, earlier))
	if err != nil {
		return nil, err
	}
	if server.Supported() {
		resp, ok := captured.Get()
		if !ok {
			return nil, fmt.Errorf("turn succeeded without a sync submission")
		}
		return &resp, nil
	}
	return &SyncResponse{Participant: p.Name, Response: strings.TrimSpace(res.Text)}, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, p Participant, server *harness.ToolServer, prompt string) (*harness.ResultEvent, error) {
	cfg := p.Config
	cfg.ToolServers = []*harness.ToolServer{server}

	session, err := o.opts.Harness.Run(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	events := harness.Drain(session.Events())
	res := harness.FinalResult(events)
	if res == nil || !res.Success {
		if errEv := harness.FirstError(events); errEv != nil {
			return nil, fmt.Errorf("turn failed: %s", errEv.Message)
		}
		return nil, fmt.Errorf("turn failed")
	}
	return res, nil
}

func reportTool(participant string, captured *harness.Capture[StatusReport]) harness.ToolDef {
	return harness.ToolDef{
		Name:        "submit_report",
		Description: "Submit your status report. Call exactly once.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"summary": map[string]interface{}{
					"type":        "string",
					"description": "What happened since the last standup",
				},
				"blockers": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Anything blocking progress",
				},
			},
			"required": []string{"summary"},
		},
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var report StatusReport
			if err := json.Unmarshal(input, &report); err != nil {
				return "", fmt.Errorf("invalid report payload: %w", err)
			}
			report.Participant = participant
			if err := captured.Set(report); err != nil {
				return "", err
			}
			return "report recorded", nil
		},
	}
}

func syncTool(participant string, captured *harness.Capture[SyncResponse]) harness.ToolDef {
	return harness.ToolDef{
		Name:        "submit_sync",
		Description: "Submit your sync response. Call exactly once.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"response": map[string]interface{}{
					"type":        "string",
					"description": "Your resolution or follow-up, given everything said so far",
				},
			},
			"required": []string{"response"},
		},
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var resp SyncResponse
			if err := json.Unmarshal(input, &resp); err != nil {
				return "", fmt.Errorf("invalid sync payload: %w", err)
			}
			resp.Participant = participant
			if err := captured.Set(resp); err != nil {
				return "", err
			}
			return "sync recorded", nil
		},
	}
}

// parseReportText recovers a report from result text when the backend
// cannot intercept tool calls.
func parseReportText(participant, text string) StatusReport {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var report StatusReport
		if err := json.Unmarshal([]byte(trimmed), &report); err == nil && report.Summary != "" {
			report.Participant = participant
			return report
		}
	}
	return StatusReport{Participant: participant, Summary: trimmed}
}
