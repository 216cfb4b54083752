package harness

import (
	"context"
	"fmt"
	"os"
)

// Session is one backend-bound conversation. Turns are strictly
// sequential: the current turn's event channel must be drained before
// Send starts the next one.
type Session interface {
	// ID returns the session identifier.
	ID() string

	// Events returns the current turn's event stream. The channel is
	// closed after the turn's single result event.
	Events() <-chan AgentEvent

	// Send starts a new turn. It fails if the session is closed or the
	// previous turn has not been drained.
	Send(ctx context.Context, prompt string) (<-chan AgentEvent, error)

	// UpdateConfig merges a partial override into the held config for
	// subsequent turns only; an in-flight turn is unaffected.
	UpdateConfig(patch ConfigPatch)

	// Close terminates the session: any live subprocess is killed
	// (SIGTERM, then SIGKILL after a grace window) and ephemeral
	// resources are released. Idempotent and safe from defer.
	Close() error
}

// Harness constructs Sessions against one execution backend.
type Harness interface {
	// Name returns the harness identifier used in config resolution.
	Name() string

	// Run constructs a session and starts its first turn. It does not
	// block on backend work; streaming begins when the caller consumes
	// the session's event channel.
	Run(ctx context.Context, cfg AgentConfig, initialPrompt string) (Session, error)

	// CreateToolServer wraps caller tool definitions into the shape this
	// backend's tool-calling mechanism requires. Backends that cannot
	// intercept tool calls return an unsupported sentinel server.
	CreateToolServer(name string, tools []ToolDef) *ToolServer
}

// Harness names, forming the closed set of backends.
const (
	NameAPI        = "api"        // in-process llm client backend
	NameSubprocess = "subprocess" // spawned CLI backend speaking NDJSON
)

// EnvHarness is the environment variable consulted during resolution.
const EnvHarness = "CAIRN_HARNESS"

// DefaultHarness is used when nothing else selects a backend.
const DefaultHarness = NameAPI

// ResolveOptions carries the inputs to harness resolution plus the
// backend-specific construction options.
type ResolveOptions struct {
	// Explicit is the caller's direct choice and wins over everything.
	Explicit string

	// Configured is the declarative per-workload config field, consulted
	// after the environment.
	Configured string

	API        APIOptions
	Subprocess SubprocessOptions
}

// Resolve picks a harness: explicit override, then the CAIRN_HARNESS
// environment variable, then the workload config field, then the
// default.
func Resolve(opts ResolveOptions) (Harness, error) {
	name := opts.Explicit
	if name == "" {
		name = os.Getenv(EnvHarness)
	}
	if name == "" {
		name = opts.Configured
	}
	if name == "" {
		name = DefaultHarness
	}

	switch name {
	case NameAPI:
		return NewAPIHarness(opts.API), nil
	case NameSubprocess:
		return NewSubprocessHarness(opts.Subprocess)
	default:
		return nil, fmt.Errorf("unknown harness %q (valid: %s, %s)", name, NameAPI, NameSubprocess)
	}
}
