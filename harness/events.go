package harness

import "encoding/json"

// EventKind identifies the type of an AgentEvent.
type EventKind string

const (
	EventText       EventKind = "text"
	EventToolUse    EventKind = "tool_use"
	EventToolResult EventKind = "tool_result"
	EventError      EventKind = "error"
	EventResult     EventKind = "result"
)

// AgentEvent is the normalized unit of backend output. It is the only
// channel through which backend detail crosses into orchestrator code;
// exactly one payload pointer is set, matching Kind.
type AgentEvent struct {
	Kind       EventKind        `json:"kind"`
	Text       *TextEvent       `json:"text,omitempty"`
	ToolUse    *ToolUseEvent    `json:"tool_use,omitempty"`
	ToolResult *ToolResultEvent `json:"tool_result,omitempty"`
	Error      *ErrorEvent      `json:"error,omitempty"`
	Result     *ResultEvent     `json:"result,omitempty"`
}

// TextEvent carries assistant prose.
type TextEvent struct {
	Content string `json:"content"`
}

// ToolUseEvent reports a backend-initiated tool invocation.
type ToolUseEvent struct {
	Name  string          `json:"name"`
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input"`
}

// ToolResultEvent reports the outcome of a tool invocation.
type ToolResultEvent struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// ErrorEvent reports a backend error. Retryable distinguishes transient
// failures (rate limits, connection resets) from fatal ones.
type ErrorEvent struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// TokenUsage is the token footprint of one turn.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// ResultEvent terminates every turn's event stream; backends that exit
// without producing one get a synthesized result.
type ResultEvent struct {
	Success       bool       `json:"success"`
	Text          string     `json:"text"`
	Usage         TokenUsage `json:"usage"`
	CostUSD       float64    `json:"cost_usd"`
	DurationMs    int64      `json:"duration_ms"`
	DurationAPIMs int64      `json:"duration_api_ms"`
	NumTurns      int        `json:"num_turns"`
	SessionID     string     `json:"session_id"`
}

// Event constructors keep call sites compact.

func textEvent(content string) AgentEvent {
	return AgentEvent{Kind: EventText, Text: &TextEvent{Content: content}}
}

func toolUseEvent(name, id string, input json.RawMessage) AgentEvent {
	return AgentEvent{Kind: EventToolUse, ToolUse: &ToolUseEvent{Name: name, ID: id, Input: input}}
}

func toolResultEvent(toolUseID, content string, isError bool) AgentEvent {
	return AgentEvent{Kind: EventToolResult, ToolResult: &ToolResultEvent{
		ToolUseID: toolUseID, Content: content, IsError: isError,
	}}
}

func errorEvent(message string, retryable bool) AgentEvent {
	return AgentEvent{Kind: EventError, Error: &ErrorEvent{Message: message, Retryable: retryable}}
}

func resultEvent(r ResultEvent) AgentEvent {
	return AgentEvent{Kind: EventResult, Result: &r}
}

// Drain consumes a turn's event stream to exhaustion and returns all
// events. Orchestrators must drain a turn before inspecting captured
// state or starting the next turn.
func Drain(ch <-chan AgentEvent) []AgentEvent {
	var events []AgentEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

// FinalResult returns the stream-terminating result event from a drained
// turn, or nil if the slice holds none (which indicates a backend bug;
// sessions always synthesize one).
func FinalResult(events []AgentEvent) *ResultEvent {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == EventResult {
			return events[i].Result
		}
	}
	return nil
}

// FirstError returns the first error event in a drained turn, or nil.
func FirstError(events []AgentEvent) *ErrorEvent {
	for _, ev := range events {
		if ev.Kind == EventError {
			return ev.Error
		}
	}
	return nil
}
