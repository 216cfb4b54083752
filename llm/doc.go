// Package llm is a thin provider-agnostic client layer over gollm.
//
// It exposes a single blocking Complete call against a registered set of
// provider adapters, a typed error taxonomy with a retryability
// predicate, and a bounded retry helper for transient failures. The
// harness's in-process backend is the primary consumer; it translates an
// agent configuration into a Request per model call and reads text and
// tool calls back out of the Response.
//
// Rate-limit handling is split in two: this package only classifies and
// surfaces RateLimitError (with the provider's retry-after hint when one
// is present); deciding how long to wait and whether to keep trying is
// the caller's job.
package llm
