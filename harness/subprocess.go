package harness

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	// defaultAgentBinary is the agent CLI the subprocess backend drives.
	defaultAgentBinary = "pi"

	// defaultContextTTL is the inactivity time-to-live registered on the
	// named context during session priming.
	defaultContextTTL = 12 * time.Hour

	// defaultGracePeriod is how long Close waits after SIGTERM before
	// escalating to SIGKILL.
	defaultGracePeriod = 5 * time.Second

	// sandboxDenialMarker tags stderr lines produced when the sandbox
	// refuses an operation. These are always surfaced as error events.
	sandboxDenialMarker = "sandbox-denial:"

	// maxWireLineBytes bounds a single stdout line. Tool results can
	// carry whole files.
	maxWireLineBytes = 4 << 20
)

// SubprocessOptions configures the subprocess backend.
type SubprocessOptions struct {
	// Binary is the agent CLI executable. Default "pi", resolved on PATH.
	Binary string
	// ContextTTL overrides the inactivity TTL registered at priming.
	ContextTTL time.Duration
	// GracePeriod overrides the SIGTERM-to-SIGKILL window on Close.
	GracePeriod time.Duration
	// PopulateHome seeds each session's ephemeral home directory with
	// backend plugins or config before the first spawn. Optional.
	PopulateHome func(dir string) error
	// DenialMarker overrides the stderr marker for sandbox refusals.
	DenialMarker string
}

type subprocessHarness struct {
	binary       string
	contextTTL   time.Duration
	gracePeriod  time.Duration
	populateHome func(dir string) error
	denialMarker string
}

// NewSubprocessHarness builds the subprocess backend. It resolves the
// agent binary eagerly so a missing executable fails at construction
// rather than mid-loop.
func NewSubprocessHarness(opts SubprocessOptions) (Harness, error) {
	binary := opts.Binary
	if binary == "" {
		binary = defaultAgentBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("subprocess harness: agent binary %q not found: %w", binary, err)
	}
	ttl := opts.ContextTTL
	if ttl <= 0 {
		ttl = defaultContextTTL
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	marker := opts.DenialMarker
	if marker == "" {
		marker = sandboxDenialMarker
	}
	return &subprocessHarness{
		binary:       path,
		contextTTL:   ttl,
		gracePeriod:  grace,
		populateHome: opts.PopulateHome,
		denialMarker: marker,
	}, nil
}

func (h *subprocessHarness) Name() string { return NameSubprocess }

// CreateToolServer returns the unsupported sentinel: the agent CLI runs
// its own tools out-of-process and cannot route calls back to local
// handlers. Orchestrators fall back to parsing result text.
func (h *subprocessHarness) CreateToolServer(name string, tools []ToolDef) *ToolServer {
	return UnsupportedToolServer(name, tools)
}

func (h *subprocessHarness) Run(ctx context.Context, cfg AgentConfig, initialPrompt string) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	home, err := NewEphemeralHome(h.populateHome)
	if err != nil {
		return nil, err
	}

	s := &subprocessSession{
		id:          uuid.New().String(),
		harness:     h,
		cfg:         cfg,
		contextName: "cairn-" + uuid.New().String(),
		home:        home,
		done:        make(chan struct{}),
		state:       stateCreated,
	}
	// Path sets are computed once here and never mutated afterward.
	s.sandbox = mergeSessionPaths(cfg.Sandbox, home.Path(), cfg.WorkingDir)

	// Priming sets the system prompt and context TTL. Best effort: the
	// turn request repeats neither, so a failed prime degrades quality
	// but never blocks the session.
	if err := s.prime(ctx); err != nil {
		cfg.logger().Warn("context priming failed", "session", s.id, "error", err)
	}

	ch, err := s.startTurn(ctx, initialPrompt)
	if err != nil {
		home.Remove()
		return nil, err
	}
	s.events = ch
	return s, nil
}

// turnRequest is the single JSON object written to the agent CLI's
// stdin per invocation.
type turnRequest struct {
	Command     string            `json:"command"`
	Context     string            `json:"context"`
	ProjectRoot string            `json:"project_root,omitempty"`
	Home        string            `json:"home,omitempty"`
	Flags       map[string]string `json:"flags,omitempty"`
	Config      *turnConfig       `json:"config,omitempty"`
}

type turnConfig struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
	TTLSeconds   int64  `json:"ttl_seconds,omitempty"`
	Model        string `json:"model,omitempty"`
}

// wireLine is the superset of stdout line shapes. Lines are parsed
// independently; anything that fails to decode is dropped.
type wireLine struct {
	Type      string          `json:"type"`
	EntryType string          `json:"entry_type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	ID        string          `json:"id"`
	Content   json.RawMessage `json:"content"`
	Message   string          `json:"message"`
	IsError   bool            `json:"is_error"`

	// result fields
	Success      *bool   `json:"success,omitempty"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	NumTurns     int     `json:"num_turns"`
	DurationMs   int64   `json:"duration_ms"`
}

type subprocessSession struct {
	id          string
	harness     *subprocessHarness
	contextName string
	home        *EphemeralHome
	sandbox     *SandboxPolicy

	// done is closed by Close. Event sends select against it so a turn
	// whose stream is abandoned undrained can still reach process
	// reaping instead of parking forever on a full channel.
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	cfg    AgentConfig
	state  sessionState
	events <-chan AgentEvent
	cmd    *exec.Cmd
	waited chan struct{}
}

func (s *subprocessSession) ID() string { return s.id }

func (s *subprocessSession) Events() <-chan AgentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func (s *subprocessSession) UpdateConfig(patch ConfigPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = patch.apply(s.cfg)
}

func (s *subprocessSession) Send(ctx context.Context, prompt string) (<-chan AgentEvent, error) {
	ch, err := s.startTurn(ctx, prompt)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.events = ch
	s.mu.Unlock()
	return ch, nil
}

// Close terminates any live child (SIGTERM, then SIGKILL after the
// grace period) and removes the ephemeral home. Safe to call multiple
// times and from defer regardless of prior errors.
func (s *subprocessSession) Close() error {
	s.mu.Lock()
	s.state = stateClosed
	cmd, waited := s.cmd, s.waited
	s.mu.Unlock()

	// Unblock any in-flight event sends first, or a turn with an
	// abandoned stream never reaches Wait and waited never closes.
	s.closeOnce.Do(func() { close(s.done) })

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-waited:
		case <-time.After(s.harness.gracePeriod):
			_ = cmd.Process.Kill()
			if waited != nil {
				<-waited
			}
		}
	}
	s.home.Remove()
	return nil
}

// prime performs the synchronous invocation that registers the system
// prompt and TTL on the named context. Stdout is discarded.
func (s *subprocessSession) prime(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	req := turnRequest{
		Context: s.contextName,
		Home:    s.home.Path(),
		Config: &turnConfig{
			SystemPrompt: s.cfg.SystemPrompt,
			TTLSeconds:   int64(s.harness.contextTTL.Seconds()),
			Model:        s.cfg.Model,
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	argv := WrapCommand([]string{s.harness.binary}, s.sandbox)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.cfg.WorkingDir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	cmd.Env = s.childEnv()
	return cmd.Run()
}

func (s *subprocessSession) childEnv() []string {
	env := os.Environ()
	if home := s.home.Path(); home != "" {
		env = append(env, "HOME="+home)
	}
	return env
}

func (s *subprocessSession) startTurn(ctx context.Context, prompt string) (<-chan AgentEvent, error) {
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
	cfg := s.cfg
	s.mu.Unlock()

	fail := func(err error) (<-chan AgentEvent, error) {
		s.mu.Lock()
		if s.state == stateStreaming {
			s.state = stateIdle
		}
		s.mu.Unlock()
		return nil, err
	}

	req := turnRequest{
		Command:     prompt,
		Context:     s.contextName,
		ProjectRoot: cfg.WorkingDir,
		Home:        s.home.Path(),
	}
	if cfg.Permission != "" {
		req.Flags = map[string]string{"permission": string(cfg.Permission)}
	}
	if cfg.Model != "" {
		req.Config = &turnConfig{Model: cfg.Model}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fail(fmt.Errorf("encode turn request: %w", err))
	}

	argv := WrapCommand([]string{s.harness.binary}, s.sandbox)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = s.childEnv()
	cmd.Stdin = bytes.NewReader(payload)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(err)
	}
	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("spawn agent: %w", err))
	}

	waited := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.waited = waited
	s.mu.Unlock()

	ch := make(chan AgentEvent, 64)
	go s.runTurn(ctx, cfg, cmd, stdout, stderr, waited, ch)
	return ch, nil
}

func (s *subprocessSession) runTurn(ctx context.Context, cfg AgentConfig, cmd *exec.Cmd, stdout, stderr io.ReadCloser, waited chan struct{}, ch chan<- AgentEvent) {
	start := time.Now()

	// Cancellation watcher. The turn normally outlives ctx only when
	// draining after exit, so a plain kill is enough here; the graceful
	// path lives in Close.
	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				_ = cmd.Process.Signal(syscall.SIGTERM)
			}
		case <-ctxDone:
		}
	}()

	// Stderr: buffer denial-marker lines for re-emission after stdout
	// closes, mirror everything else to the configured sink.
	var denialMu sync.Mutex
	var denials []string
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), maxWireLineBytes)
		for scanner.Scan() {
			line := scanner.Text()
			if bytes.Contains([]byte(line), []byte(s.harness.denialMarker)) {
				denialMu.Lock()
				denials = append(denials, line)
				denialMu.Unlock()
			}
			if cfg.Stderr != nil {
				fmt.Fprintln(cfg.Stderr, line)
			}
		}
	}()

	var lastText string
	sawError := false
	sawResult := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxWireLineBytes)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var line wireLine
		if err := json.Unmarshal(raw, &line); err != nil {
			cfg.logger().Debug("dropping malformed agent line", "session", s.id, "error", err)
			continue
		}
		for _, ev := range s.mapLine(line, &lastText, &sawError, &sawResult) {
			s.emit(ch, ev)
		}
	}

	<-stderrDone
	err := cmd.Wait()
	close(waited)
	close(ctxDone)

	s.mu.Lock()
	s.cmd = nil
	s.waited = nil
	s.mu.Unlock()

	// Denials surface after the stream regardless of verbosity. A
	// policy violation is never retryable.
	denialMu.Lock()
	for _, d := range denials {
		sawError = true
		s.emit(ch, errorEvent(d, false))
	}
	denialMu.Unlock()

	if !sawResult {
		exitOK := err == nil && cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 0
		text := lastText
		if text == "" && err != nil {
			text = err.Error()
		}
		s.emit(ch, resultEvent(ResultEvent{
			Success:    exitOK && !sawError,
			Text:       text,
			DurationMs: time.Since(start).Milliseconds(),
			SessionID:  s.id,
		}))
	}
	close(ch)

	s.mu.Lock()
	if s.state == stateStreaming {
		s.state = stateIdle
	}
	s.mu.Unlock()
}

// emit delivers an event unless the session has been closed, in which
// case the event is dropped so the turn can finish draining and reap
// the child.
func (s *subprocessSession) emit(ch chan<- AgentEvent, ev AgentEvent) {
	select {
	case ch <- ev:
	case <-s.done:
	}
}

// mapLine translates one decoded stdout line into zero or more events
// and updates turn-level bookkeeping.
func (s *subprocessSession) mapLine(line wireLine, lastText *string, sawError, sawResult *bool) []AgentEvent {
	if line.Type == "error" {
		*sawError = true
		msg := line.Message
		if msg == "" {
			msg = decodeWireString(line.Content)
		}
		return []AgentEvent{errorEvent(msg, Classify(msg) != ClassFatal)}
	}
	if line.Type == "result" {
		*sawResult = true
		success := true
		if line.Success != nil {
			success = *line.Success
		}
		text := decodeWireString(line.Content)
		if text != "" {
			*lastText = text
		}
		return []AgentEvent{resultEvent(ResultEvent{
			Success:    success && !*sawError,
			Text:       *lastText,
			Usage:      TokenUsage{InputTokens: line.InputTokens, OutputTokens: line.OutputTokens},
			CostUSD:    line.CostUSD,
			NumTurns:   line.NumTurns,
			DurationMs: line.DurationMs,
			SessionID:  s.id,
		})}
	}

	switch line.EntryType {
	case "message":
		if line.From == "user" {
			return nil
		}
		text := decodeWireString(line.Content)
		if text == "" {
			return nil
		}
		*lastText = text
		return []AgentEvent{textEvent(text)}
	case "tool_call":
		return []AgentEvent{toolUseEvent(line.To, line.ID, decodeWireInput(line.Content))}
	case "tool_result":
		return []AgentEvent{toolResultEvent(line.ID, decodeWireString(line.Content), line.IsError)}
	}
	return nil
}

// decodeWireString extracts text content that may be a JSON string or a
// bare value.
func decodeWireString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}

// decodeWireInput extracts tool input, which arrives as a JSON string
// containing encoded JSON. A raw object is passed through unchanged.
func decodeWireInput(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return json.RawMessage(str)
	}
	return raw
}
