package llm

import "testing"

func TestGetModelInfoByAlias(t *testing.T) {
	info := GetModelInfo("sonnet")
	if info == nil {
		t.Fatal("expected alias lookup to succeed")
	}
	if info.ID != "claude-sonnet-4-5" {
		t.Errorf("unexpected model: %s", info.ID)
	}
}

func TestInferProvider(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		{"claude-opus-4-6", "anthropic"},
		{"claude-x-future", "anthropic"},
		{"gpt-5.2-mini", "openai"},
		{"gemini-3-flash-preview", "gemini"},
		{"mystery-model", ""},
	}
	for _, tc := range cases {
		if got := InferProvider(tc.model); got != tc.want {
			t.Errorf("InferProvider(%q) = %q, want %q", tc.model, got, tc.want)
		}
	}
}

func TestCostUSD(t *testing.T) {
	usage := Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	got := CostUSD("claude-sonnet-4-5", usage)
	if got != 18.0 {
		t.Errorf("expected 18.0, got %v", got)
	}
	if CostUSD("mystery-model", usage) != 0 {
		t.Error("expected zero cost for unknown model")
	}
}
