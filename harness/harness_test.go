package harness

import "testing"

func TestResolveExplicitWins(t *testing.T) {
	t.Setenv(EnvHarness, NameSubprocess)
	h, err := Resolve(ResolveOptions{Explicit: NameAPI, Configured: NameSubprocess})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if h.Name() != NameAPI {
		t.Errorf("harness = %s, want %s", h.Name(), NameAPI)
	}
}

func TestResolveEnvBeatsConfigured(t *testing.T) {
	t.Setenv(EnvHarness, NameAPI)
	h, err := Resolve(ResolveOptions{Configured: NameSubprocess})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if h.Name() != NameAPI {
		t.Errorf("harness = %s, want %s", h.Name(), NameAPI)
	}
}

func TestResolveDefault(t *testing.T) {
	t.Setenv(EnvHarness, "")
	h, err := Resolve(ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if h.Name() != DefaultHarness {
		t.Errorf("harness = %s, want default %s", h.Name(), DefaultHarness)
	}
}

func TestResolveUnknown(t *testing.T) {
	t.Setenv(EnvHarness, "")
	if _, err := Resolve(ResolveOptions{Explicit: "teleport"}); err == nil {
		t.Fatal("expected error for unknown harness")
	}
}
