// Package harness abstracts agent execution backends behind a uniform
// Session contract: one event stream per turn, terminated by exactly one
// result event regardless of how the backend dies.
//
// Two backends exist. The in-process backend translates turns into
// model-client calls and runs the tool loop itself. The subprocess
// backend spawns an agent CLI per turn, speaks NDJSON over its stdout,
// and keeps conversation continuity through a named context persisted by
// the CLI. The package also carries the supporting machinery both
// orchestrators share: error classification and backoff computation,
// sandbox command wrapping, and ephemeral home directories.
package harness
