// Package standup coordinates a two-phase exchange across multiple
// agent sessions: a concurrent report phase where every participant
// produces a status report independently, and a strictly sequential sync
// phase where each participant sees all reports plus the sync responses
// of everyone before it. The ordering matters: later participants must
// not re-resolve what earlier ones already settled.
package standup
