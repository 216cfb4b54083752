package loop

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// gitRunner executes one git command in dir and returns trimmed stdout.
// Injectable so orchestrator logic is testable without a repository.
type gitRunner func(ctx context.Context, dir string, args ...string) (string, error)

// Git is a minimal porcelain wrapper scoped to one working tree.
type Git struct {
	dir string
	run gitRunner
}

// NewGit returns a Git bound to the repository at dir.
func NewGit(dir string) *Git {
	return &Git{dir: dir, run: execGit}
}

func execGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// HasUncommittedChanges reports whether the working tree or index is
// dirty.
func (g *Git) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, g.dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// RecentLog returns up to n one-line log entries, newest first. An empty
// string on a repository with no commits is not an error.
func (g *Git) RecentLog(ctx context.Context, n int) string {
	out, err := g.run(ctx, g.dir, "log", "--oneline", "-n", strconv.Itoa(n))
	if err != nil {
		return ""
	}
	return out
}

// AddAll stages every change in the working tree.
func (g *Git) AddAll(ctx context.Context) error {
	_, err := g.run(ctx, g.dir, "add", "-A")
	return err
}

// DiffCached returns the staged diff.
func (g *Git) DiffCached(ctx context.Context) (string, error) {
	return g.run(ctx, g.dir, "diff", "--cached")
}

// Commit records the staged changes and returns the new commit hash.
func (g *Git) Commit(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, g.dir, "commit", "-m", message); err != nil {
		return "", err
	}
	return g.run(ctx, g.dir, "rev-parse", "HEAD")
}

// LastCommitStats sums added and removed line counts across the files of
// the most recent commit. Binary files report "-" in numstat and are
// skipped.
func (g *Git) LastCommitStats(ctx context.Context) (added, removed int, err error) {
	out, err := g.run(ctx, g.dir, "show", "--numstat", "--format=", "HEAD")
	if err != nil {
		return 0, 0, err
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		a, errA := strconv.Atoi(fields[0])
		r, errR := strconv.Atoi(fields[1])
		if errA != nil || errR != nil {
			continue
		}
		added += a
		removed += r
	}
	return added, removed, nil
}
