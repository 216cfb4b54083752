package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEphemeralHomeLifecycle(t *testing.T) {
	home, err := NewEphemeralHome(func(dir string) error {
		return os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{}"), 0o644)
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path := home.Path()
	if path == "" {
		t.Fatal("empty path")
	}
	if _, err := os.Stat(filepath.Join(path, "settings.json")); err != nil {
		t.Fatalf("populate did not run: %v", err)
	}

	home.Remove()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("directory survived Remove")
	}
	if home.Path() != "" {
		t.Error("Path non-empty after Remove")
	}

	// second Remove is a no-op
	home.Remove()
}

func TestEphemeralHomePopulateFailureCleansUp(t *testing.T) {
	var dir string
	_, err := NewEphemeralHome(func(d string) error {
		dir = d
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Error("directory leaked after populate failure")
	}
}

func TestEphemeralHomeNilPopulate(t *testing.T) {
	home, err := NewEphemeralHome(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer home.Remove()
	if home.Path() == "" {
		t.Fatal("empty path")
	}
}
