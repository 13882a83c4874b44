package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sipadi/padi/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "padi.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("DefaultsWithoutFile", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if diff := cmp.Diff(domain.DefaultConfig(), cfg); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("File", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9090
cache:
  localTTL: 30s
engine:
  minCF: 0.3
  gate: "result.cf_final >= 0.5"
limits:
  maxDiagnosesPerDay: 5
admin:
  token: secret
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		want := domain.DefaultConfig()
		want.Server.Port = 9090
		want.Cache.LocalTTL = 30 * time.Second
		want.Engine.MinCF = 0.3
		want.Engine.Gate = "result.cf_final >= 0.5"
		want.Limits.MaxDiagnosesPerDay = 5
		want.Admin.Token = "secret"
		if diff := cmp.Diff(want, cfg); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9090\n")
		t.Setenv("PADI_SERVER_PORT", "7070")
		t.Setenv("PADI_TREATMENT_ASYNC", "true")
		t.Setenv("PADI_EVENTBUS_TYPE", "nats")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("expected port 7070, got %d", cfg.Server.Port)
		}
		if !cfg.Treatment.Async {
			t.Error("expected async treatment")
		}
		if cfg.EventBus.Type != "nats" {
			t.Errorf("expected nats bus, got %s", cfg.EventBus.Type)
		}
	})

	t.Run("ScaledProfile", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("PADI_PROFILE", "scaled")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if diff := cmp.Diff(domain.ScaledConfig(), cfg); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("UnknownProfile", func(t *testing.T) {
		t.Setenv("PADI_PROFILE", "huge")
		if _, err := Load(""); err == nil {
			t.Error("expected error for unknown profile")
		}
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("MalformedFile", func(t *testing.T) {
		path := writeConfig(t, "server: [port\n")
		if _, err := Load(path); err == nil {
			t.Error("expected error for malformed YAML")
		}
	})
}
