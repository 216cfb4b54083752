// Package loop drives the iterative plan, implement, review, commit
// cycle against a harness session, using the repository's git history as
// its only durable state. Each iteration plans from recent log context,
// applies the plan, runs a bounded advisory review, and commits; crash
// recovery is therefore free, since the next planning call reads
// everything it needs back out of git.
package loop
