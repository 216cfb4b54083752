package loop

import (
	"strings"
	"testing"
)

func TestIsApproval(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"LGTM", true},
		{"lgtm", true},
		{"  LGTM - ship it", true},
		{"Lgtm, with one nit for later", true},
		{"Looks good to me", false},
		{"- LGTM is not how this starts", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isApproval(tt.text); got != tt.want {
			t.Errorf("isApproval(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFeedbackBullets(t *testing.T) {
	text := "Several problems:\n- first issue\n  - indented issue\nnot a bullet\n- last issue"
	got := feedbackBullets(text)
	want := []string{"first issue", "indented issue", "last issue"}
	if len(got) != len(want) {
		t.Fatalf("bullets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bullet %d = %q, want %q", i, got[i], want[i])
		}
	}

	if bullets := feedbackBullets("all prose, no bullets"); bullets != nil {
		t.Errorf("expected no bullets, got %v", bullets)
	}
}

func TestParsePlanText(t *testing.T) {
	p := parsePlanText(`{"summary":"do the thing","steps":["a","b"],"is_complete":true}`)
	if p.Summary != "do the thing" || !p.IsComplete {
		t.Errorf("plan = %+v", p)
	}
	if len(p.Steps) != 2 || p.Steps[0] != "a" {
		t.Errorf("steps = %v", p.Steps)
	}

	p = parsePlanText("plain prose plan")
	if p.Summary != "plain prose plan" || p.IsComplete {
		t.Errorf("plan = %+v", p)
	}

	// malformed JSON degrades to verbatim text
	p = parsePlanText(`{"summary": broken`)
	if p.Summary != `{"summary": broken` {
		t.Errorf("plan = %+v", p)
	}
}

func TestImplementPromptIncludesStepsAndValidation(t *testing.T) {
	p := Plan{
		Summary:    "add retry to the fetcher",
		Steps:      []string{"wrap the client call", "add a test"},
		Validation: []string{"go test ./fetcher passes"},
	}
	prompt := implementPrompt(p)
	for _, want := range []string{
		"add retry to the fetcher",
		"1. wrap the client call",
		"2. add a test",
		"- go test ./fetcher passes",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("implement prompt missing %q:\n%s", want, prompt)
		}
	}

	// a bare summary stays a bare prompt
	bare := implementPrompt(Plan{Summary: "just this"})
	if strings.Contains(bare, "Steps:") || strings.Contains(bare, "Validate") {
		t.Errorf("unexpected sections in bare prompt:\n%s", bare)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("`add feature`\nextra detail"); got != "add feature" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine("  \"quoted message\"  "); got != "quoted message" {
		t.Errorf("firstLine = %q", got)
	}
}
