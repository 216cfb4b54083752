package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolHandler executes one tool call. The returned string becomes the
// tool result content; a non-nil error marks the result as an error but
// does not abort the turn.
type ToolHandler func(ctx context.Context, input json.RawMessage) (string, error)

// ToolDef is a caller-defined tool: serializable metadata plus a local
// handler. InputSchema is a JSON Schema object.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Handler     ToolHandler
}

// ToolServer groups tool definitions into the shape a backend's
// tool-calling mechanism consumes. Backends that cannot intercept tool
// calls out-of-process return the unsupported sentinel from
// CreateToolServer; orchestrators must check Supported before relying on
// handler interception.
type ToolServer struct {
	name        string
	tools       []ToolDef
	unsupported bool
}

// NewToolServer builds an in-process tool server.
func NewToolServer(name string, tools []ToolDef) *ToolServer {
	return &ToolServer{name: name, tools: tools}
}

// UnsupportedToolServer is the sentinel returned by backends that cannot
// intercept tool calls. Its tool definitions are retained so callers can
// still describe the intended tools in prompts.
func UnsupportedToolServer(name string, tools []ToolDef) *ToolServer {
	return &ToolServer{name: name, tools: tools, unsupported: true}
}

// Name returns the server name.
func (s *ToolServer) Name() string { return s.name }

// Tools returns the tool definitions.
func (s *ToolServer) Tools() []ToolDef { return s.tools }

// Supported reports whether the backend will route tool calls to the
// local handlers.
func (s *ToolServer) Supported() bool { return !s.unsupported }

// lookupTool finds a tool by name across a config's tool servers.
func lookupTool(servers []*ToolServer, name string) *ToolDef {
	for _, srv := range servers {
		if srv == nil || !srv.Supported() {
			continue
		}
		for i := range srv.tools {
			if srv.tools[i].Name == name {
				return &srv.tools[i]
			}
		}
	}
	return nil
}

// Capture is a single-assignment slot for one-shot tool submissions
// (plans, status reports). A second Set is a protocol violation and
// returns an error; a missing value after a successful turn is the
// caller's fatal condition to raise.
type Capture[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
}

// Set stores the value. It fails if a value was already captured.
func (c *Capture[T]) Set(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return fmt.Errorf("capture: value already set")
	}
	c.value = v
	c.set = true
	return nil
}

// Get returns the captured value and whether one was set.
func (c *Capture[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.set
}
