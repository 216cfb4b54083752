package loop

import (
	"context"
	"errors"
	"testing"
)

func gitWith(output string, err error) *Git {
	return &Git{dir: "/repo", run: func(ctx context.Context, dir string, args ...string) (string, error) {
		return output, err
	}}
}

func TestHasUncommittedChanges(t *testing.T) {
	dirty, err := gitWith(" M main.go\n?? new.go", nil).HasUncommittedChanges(context.Background())
	if err != nil || !dirty {
		t.Errorf("dirty tree: got (%v, %v)", dirty, err)
	}

	clean, err := gitWith("", nil).HasUncommittedChanges(context.Background())
	if err != nil || clean {
		t.Errorf("clean tree: got (%v, %v)", clean, err)
	}
}

func TestRecentLogSwallowsErrors(t *testing.T) {
	// a repository with no commits is not a planning failure
	g := gitWith("", errors.New("fatal: your current branch does not have any commits yet"))
	if out := g.RecentLog(context.Background(), 10); out != "" {
		t.Errorf("RecentLog = %q, want empty", out)
	}
}

func TestLastCommitStats(t *testing.T) {
	g := gitWith("12\t4\tmain.go\n3\t0\tutil.go\n-\t-\tlogo.png", nil)
	added, removed, err := g.LastCommitStats(context.Background())
	if err != nil {
		t.Fatalf("LastCommitStats: %v", err)
	}
	if added != 15 || removed != 4 {
		t.Errorf("stats = +%d -%d, want +15 -4", added, removed)
	}
}

func TestLastCommitStatsEmptyCommit(t *testing.T) {
	added, removed, err := gitWith("", nil).LastCommitStats(context.Background())
	if err != nil || added != 0 || removed != 0 {
		t.Errorf("got (+%d -%d, %v), want zeros", added, removed, err)
	}
}
