package harness

import "testing"

func TestDrainAndAccessors(t *testing.T) {
	ch := make(chan AgentEvent, 8)
	ch <- textEvent("thinking")
	ch <- errorEvent("connection reset", true)
	ch <- textEvent("done")
	ch <- resultEvent(ResultEvent{Success: true, Text: "done"})
	close(ch)

	events := Drain(ch)
	if len(events) != 4 {
		t.Fatalf("Drain returned %d events, want 4", len(events))
	}

	res := FinalResult(events)
	if res == nil || !res.Success || res.Text != "done" {
		t.Errorf("FinalResult = %+v", res)
	}

	errEv := FirstError(events)
	if errEv == nil || errEv.Message != "connection reset" || !errEv.Retryable {
		t.Errorf("FirstError = %+v", errEv)
	}
}

func TestFinalResultMissing(t *testing.T) {
	events := []AgentEvent{textEvent("no result here")}
	if FinalResult(events) != nil {
		t.Error("FinalResult on resultless stream should be nil")
	}
	if FirstError(events) != nil {
		t.Error("FirstError on errorless stream should be nil")
	}
}

func TestTokenUsageAdd(t *testing.T) {
	a := TokenUsage{InputTokens: 10, OutputTokens: 20}
	b := TokenUsage{InputTokens: 1, OutputTokens: 2}
	sum := a.Add(b)
	if sum.InputTokens != 11 || sum.OutputTokens != 22 {
		t.Errorf("Add = %+v", sum)
	}
}
