package harness

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/martinemde/cairn/llm"
)

// scriptedProvider returns canned responses in order, then errors.
type scriptedProvider struct {
	name      string
	responses []*llm.Response
	errs      []error
	calls     int
	requests  []llm.Request
}

func (p *scriptedProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "scripted"
}

func (p *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.requests = append(p.requests, req)
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return nil, errors.New("script exhausted")
}

func apiHarnessWith(p *scriptedProvider) Harness {
	client := llm.NewClient(llm.WithProvider(p), llm.WithDefaultProvider(p.Name()))
	return NewAPIHarness(APIOptions{
		Client: client,
		Retry:  llm.RetryPolicy{MaxRetries: 0, BaseDelay: 0.001, MaxDelay: 0.001, BackoffMultiplier: 1},
	})
}

func testConfig(servers ...*ToolServer) AgentConfig {
	return AgentConfig{
		Model:       "test-model",
		WorkingDir:  "/tmp",
		ToolServers: servers,
	}
}

func TestAPISessionToolLoop(t *testing.T) {
	var captured string
	tools := NewToolServer("notes", []ToolDef{{
		Name: "save_note",
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			captured = string(input)
			return "saved", nil
		},
	}})

	provider := &scriptedProvider{responses: []*llm.Response{
		{
			Text: "saving a note",
			ToolCalls: []llm.ToolCall{{
				ID: "tc-1", Name: "save_note", Arguments: json.RawMessage(`{"body":"hello"}`),
			}},
			Usage: llm.Usage{InputTokens: 100, OutputTokens: 20},
		},
		{
			Text:  "note saved, all done",
			Usage: llm.Usage{InputTokens: 150, OutputTokens: 10},
		},
	}}

	session, err := apiHarnessWith(provider).Run(context.Background(), testConfig(tools), "save hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer session.Close()

	events := Drain(session.Events())

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []EventKind{EventText, EventToolUse, EventToolResult, EventText, EventResult}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event kinds = %v, want %v", kinds, want)
		}
	}

	if captured != `{"body":"hello"}` {
		t.Errorf("tool handler input = %q", captured)
	}

	res := FinalResult(events)
	if !res.Success {
		t.Error("expected success")
	}
	if res.Text != "note saved, all done" {
		t.Errorf("result text = %q", res.Text)
	}
	if res.Usage.InputTokens != 250 || res.Usage.OutputTokens != 30 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if res.NumTurns != 2 {
		t.Errorf("num turns = %d, want 2", res.NumTurns)
	}
}

func TestAPISessionExactlyOneResultOnError(t *testing.T) {
	provider := &scriptedProvider{errs: []error{
		&llm.AuthenticationError{ProviderError: llm.ProviderError{
			ClientError: llm.ClientError{Message: "invalid api key"},
			Provider:    "scripted",
			StatusCode:  401,
		}},
	}}

	session, err := apiHarnessWith(provider).Run(context.Background(), testConfig(), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer session.Close()

	events := Drain(session.Events())

	results := 0
	for _, ev := range events {
		if ev.Kind == EventResult {
			results++
		}
	}
	if results != 1 {
		t.Fatalf("result events = %d, want exactly 1", results)
	}
	if FinalResult(events).Success {
		t.Error("failed turn reported success")
	}
	errEv := FirstError(events)
	if errEv == nil {
		t.Fatal("no error event")
	}
	if errEv.Retryable {
		t.Error("authentication error marked retryable")
	}
}

func TestAPISessionUnknownTool(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "tc-1", Name: "nonexistent"}}},
		{Text: "ok"},
	}}

	session, err := apiHarnessWith(provider).Run(context.Background(), testConfig(), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer session.Close()

	events := Drain(session.Events())
	for _, ev := range events {
		if ev.Kind == EventToolResult {
			if !ev.ToolResult.IsError {
				t.Error("unknown tool result not marked as error")
			}
			return
		}
	}
	t.Fatal("no tool result event")
}

func TestAPISessionSendReplaysTranscript(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{Text: "first answer"},
		{Text: "second answer"},
	}}

	session, err := apiHarnessWith(provider).Run(context.Background(), testConfig(), "first question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer session.Close()
	Drain(session.Events())

	ch, err := session.Send(context.Background(), "second question")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	Drain(ch)

	if len(provider.requests) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(provider.requests))
	}
	// second call carries the whole transcript: system + q1 + a1 + q2
	second := provider.requests[1]
	if len(second.Messages) != 4 {
		t.Errorf("replayed transcript length = %d, want 4", len(second.Messages))
	}
}

func TestAPISessionSendAfterClose(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{{Text: "x"}}}
	session, err := apiHarnessWith(provider).Run(context.Background(), testConfig(), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	Drain(session.Events())

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := session.Send(context.Background(), "more"); err == nil {
		t.Error("Send after Close should fail")
	}
}

func TestAPISessionBudgetCap(t *testing.T) {
	// named anthropic so the catalog routes the claude model to it
	provider := &scriptedProvider{name: "anthropic", responses: []*llm.Response{
		{
			ToolCalls: []llm.ToolCall{{ID: "t1", Name: "x"}},
			Usage:     llm.Usage{InputTokens: 2_000_000, OutputTokens: 2_000_000},
		},
		{Text: "should never be reached"},
	}}

	cfg := testConfig()
	cfg.Model = "claude-sonnet-4-5"
	cfg.MaxBudgetUSD = 0.01

	session, err := apiHarnessWith(provider).Run(context.Background(), cfg, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer session.Close()

	events := Drain(session.Events())
	if FinalResult(events).Success {
		t.Error("over-budget turn reported success")
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (stopped at budget)", provider.calls)
	}
}
