package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.PollInterval != 10*time.Second {
		t.Errorf("unexpected default poll interval %v", cfg.Engine.PollInterval)
	}
	if cfg.Engine.Workers != 4 {
		t.Errorf("unexpected default workers %v", cfg.Engine.Workers)
	}
	if cfg.Safety.ErrorRateCeiling != 1.0 {
		t.Errorf("expected the default safety policy, got ceiling %v", cfg.Safety.ErrorRateCeiling)
	}
}

func TestLoadFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	doc := `
server:
  address: ":9999"
engine:
  pollInterval: 5s
  workers: 8
safety:
  errorRateCeiling: 2.5
  blackoutWindows:
    - start: "09:00"
      end: "17:00"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HAVOC_WORKERS", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("file value not applied, address %v", cfg.Server.Address)
	}
	if cfg.Engine.PollInterval != 5*time.Second {
		t.Errorf("duration not parsed, poll interval %v", cfg.Engine.PollInterval)
	}
	if cfg.Engine.Workers != 2 {
		t.Errorf("env override lost, workers %v", cfg.Engine.Workers)
	}
	if len(cfg.Safety.BlackoutWindows) != 1 || cfg.Safety.BlackoutWindows[0].Start != "09:00" {
		t.Errorf("blackout windows not loaded: %+v", cfg.Safety.BlackoutWindows)
	}
	// partial safety config must not wipe unrelated defaults
	if cfg.Safety.AvailabilityFloor != 99.0 {
		t.Errorf("partial safety section wiped defaults, floor %v", cfg.Safety.AvailabilityFloor)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing explicit path")
	}
}
