package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/cairn/llm"
)

// defaultMaxCalls bounds model calls within one turn when the config
// does not set MaxTurns. The transcript-replay strategy grows linearly
// per call, so an unbounded turn would eventually blow the context
// window.
const defaultMaxCalls = 40

// APIOptions configures the in-process backend.
type APIOptions struct {
	// Client routes model calls. Nil builds one from the environment.
	Client *llm.Client
	// Retry is the per-call policy for transient provider failures.
	// Zero value means the default policy.
	Retry llm.RetryPolicy
}

type apiHarness struct {
	client *llm.Client
	retry  llm.RetryPolicy
}

// NewAPIHarness builds the in-process backend. Each turn is one or more
// blocking model calls with tool execution interleaved locally; there is
// no subprocess and no sandbox at this layer. File and command scoping
// is enforced by cwd confinement and tool allowlists instead.
func NewAPIHarness(opts APIOptions) Harness {
	client := opts.Client
	if client == nil {
		client = llm.NewClientFromEnv()
	}
	retry := opts.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = llm.DefaultRetryPolicy()
	}
	return &apiHarness{client: client, retry: retry}
}

func (h *apiHarness) Name() string { return NameAPI }

func (h *apiHarness) CreateToolServer(name string, tools []ToolDef) *ToolServer {
	return NewToolServer(name, tools)
}

func (h *apiHarness) Run(ctx context.Context, cfg AgentConfig, initialPrompt string) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &apiSession{
		id:      uuid.New().String(),
		harness: h,
		cfg:     cfg,
		state:   stateCreated,
	}
	ch, err := s.startTurn(ctx, initialPrompt)
	if err != nil {
		return nil, err
	}
	s.events = ch
	return s, nil
}

// sessionState tracks the lifecycle documented on Session.
type sessionState string

const (
	stateCreated   sessionState = "created"
	stateStreaming sessionState = "streaming"
	stateIdle      sessionState = "idle"
	stateClosed    sessionState = "closed"
)

// apiSession replays the full role-tagged transcript on every model
// call; the backend has no native multi-turn resumption.
type apiSession struct {
	id      string
	harness *apiHarness

	mu         sync.Mutex
	cfg        AgentConfig
	state      sessionState
	transcript []llm.Message
	events     <-chan AgentEvent
}

func (s *apiSession) ID() string { return s.id }

func (s *apiSession) Events() <-chan AgentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func (s *apiSession) UpdateConfig(patch ConfigPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = patch.apply(s.cfg)
}

func (s *apiSession) Send(ctx context.Context, prompt string) (<-chan AgentEvent, error) {
	ch, err := s.startTurn(ctx, prompt)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.events = ch
	s.mu.Unlock()
	return ch, nil
}

func (s *apiSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
	return nil
}

func (s *apiSession) startTurn(ctx context.Context, prompt string) (<-chan AgentEvent, error) {
	s.mu.Lock()
	switch s.state {
	case stateClosed:
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s is closed", s.id)
	case stateStreaming:
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s: previous turn not drained", s.id)
	}
	s.state = stateStreaming
	cfg := s.cfg // snapshot; UpdateConfig affects later turns only
	s.transcript = append(s.transcript, llm.UserMessage(prompt))
	s.mu.Unlock()

	ch := make(chan AgentEvent, 64)
	go s.runTurn(ctx, cfg, ch)
	return ch, nil
}

func (s *apiSession) runTurn(ctx context.Context, cfg AgentConfig, ch chan<- AgentEvent) {
	start := time.Now()
	var apiDur time.Duration
	var usage TokenUsage
	var lastText string
	numCalls := 0
	resultSent := false

	finish := func(success bool, text string) {
		if resultSent {
			return
		}
		resultSent = true
		ch <- resultEvent(ResultEvent{
			Success:       success,
			Text:          text,
			Usage:         usage,
			CostUSD:       llm.CostUSD(cfg.Model, llm.Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens}),
			DurationMs:    time.Since(start).Milliseconds(),
			DurationAPIMs: apiDur.Milliseconds(),
			NumTurns:      numCalls,
			SessionID:     s.id,
		})
	}
	defer func() {
		finish(false, lastText)
		close(ch)
		s.mu.Lock()
		if s.state == stateStreaming {
			s.state = stateIdle
		}
		s.mu.Unlock()
	}()

	maxCalls := cfg.MaxTurns
	if maxCalls <= 0 {
		maxCalls = defaultMaxCalls
	}

	toolDefs := requestToolDefs(cfg.ToolServers)

	for {
		req := llm.Request{
			Model:    cfg.Model,
			Messages: append([]llm.Message{llm.SystemMessage(cfg.SystemPrompt)}, s.snapshotTranscript()...),
			Tools:    toolDefs,
		}
		if len(toolDefs) > 0 {
			req.ToolChoice = &llm.ToolChoice{Mode: "auto"}
		}

		callStart := time.Now()
		resp, err := llm.Retry(ctx, s.harness.retry, func(ctx context.Context) (*llm.Response, error) {
			return s.harness.client.Complete(ctx, req)
		})
		apiDur += time.Since(callStart)
		if err != nil {
			ch <- errorEvent(err.Error(), llm.IsRetryable(err))
			finish(false, err.Error())
			return
		}
		numCalls++
		usage = usage.Add(TokenUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens})

		if resp.Text != "" {
			lastText = resp.Text
			ch <- textEvent(resp.Text)
		}

		s.appendTranscript(llm.AssistantMessage(resp.Text, resp.ToolCalls...))

		if cfg.MaxBudgetUSD > 0 {
			cost := llm.CostUSD(cfg.Model, llm.Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens})
			if cost > cfg.MaxBudgetUSD {
				ch <- errorEvent(fmt.Sprintf("budget exhausted: $%.4f > $%.4f", cost, cfg.MaxBudgetUSD), false)
				finish(false, lastText)
				return
			}
		}

		if len(resp.ToolCalls) == 0 {
			finish(true, lastText)
			return
		}

		for _, tc := range resp.ToolCalls {
			ch <- toolUseEvent(tc.Name, tc.ID, tc.Arguments)
			content, isErr := s.executeTool(ctx, cfg, tc)
			ch <- toolResultEvent(tc.ID, content, isErr)
			s.appendTranscript(llm.ToolResultMessage(tc.ID, content, isErr))
		}

		if numCalls >= maxCalls {
			finish(true, lastText)
			return
		}
	}
}

func (s *apiSession) executeTool(ctx context.Context, cfg AgentConfig, tc llm.ToolCall) (string, bool) {
	def := lookupTool(cfg.ToolServers, tc.Name)
	if def == nil || def.Handler == nil {
		return fmt.Sprintf("unknown tool: %s", tc.Name), true
	}
	content, err := def.Handler(ctx, tc.Arguments)
	if err != nil {
		return fmt.Sprintf("tool error (%s): %v", tc.Name, err), true
	}
	return content, false
}

func (s *apiSession) snapshotTranscript() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *apiSession) appendTranscript(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msg)
}

// requestToolDefs flattens supported tool servers into request tool
// definitions.
func requestToolDefs(servers []*ToolServer) []llm.ToolDefinition {
	var defs []llm.ToolDefinition
	for _, srv := range servers {
		if srv == nil || !srv.Supported() {
			continue
		}
		for _, t := range srv.Tools() {
			defs = append(defs, llm.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
	}
	return defs
}
