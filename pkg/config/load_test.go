package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "governor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
engine:
  node_id: "rack-07"
  log_capacity: 25
  checkpoints: ["runtime", "update"]
policies:
  files: ["policies/memory.json"]
  inbox:
    enabled: true
    dir: "/var/lib/governor/inbox"
evidence:
  backend: "memory"
  recorder:
    hash_state: false
server:
  listen_address: "0.0.0.0:9000"
  read_timeout: 3s
telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Engine.NodeID != "rack-07" {
		t.Errorf("node id = %q", cfg.Engine.NodeID)
	}
	if cfg.Engine.LogCapacity != 25 {
		t.Errorf("log capacity = %d", cfg.Engine.LogCapacity)
	}
	if len(cfg.Engine.Checkpoints) != 2 {
		t.Errorf("checkpoints = %v", cfg.Engine.Checkpoints)
	}
	if !cfg.Policies.Inbox.Enabled || cfg.Policies.Inbox.Dir != "/var/lib/governor/inbox" {
		t.Errorf("inbox = %+v", cfg.Policies.Inbox)
	}
	if cfg.Evidence.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Evidence.Backend)
	}
	if cfg.Evidence.Recorder.HashState {
		t.Error("explicit hash_state: false was overwritten by the default")
	}
	if !cfg.Evidence.Enabled {
		t.Error("omitted evidence.enabled should keep its default")
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("write timeout = %v, want default", cfg.Server.WriteTimeout)
	}
	if cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("format = %q", cfg.Telemetry.Logging.Format)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "engine:\n  bogus: 1\n",
			wantErr: "field bogus not found",
		},
		{
			name:    "malformed yaml",
			content: "engine: [",
			wantErr: "failed to parse",
		},
		{
			name:    "invalid value",
			content: "engine:\n  log_capacity: -1\n",
			wantErr: "engine.log_capacity",
		},
		{
			name:    "bad duration",
			content: "server:\n  read_timeout: soon\n",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist in chain, got %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q, want default", cfg.Server.ListenAddress)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:9000"
`)
	t.Setenv("GOVERNOR_SERVER_LISTEN_ADDRESS", "0.0.0.0:9100")
	t.Setenv("GOVERNOR_ENGINE_LOG_CAPACITY", "42")
	t.Setenv("GOVERNOR_ENGINE_CHECKPOINTS", "runtime, update")
	t.Setenv("GOVERNOR_POLICIES_INBOX_ENABLED", "true")
	t.Setenv("GOVERNOR_SIGNATURE_TRUSTED_KEYS", "a.pub,b.pub")
	t.Setenv("GOVERNOR_EVIDENCE_BACKEND", "memory")
	t.Setenv("GOVERNOR_SERVER_ADMISSION_RATE", "2.5")
	t.Setenv("GOVERNOR_ENGINE_TIMEOUT", "20ms")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9100" {
		t.Errorf("listen address = %q, env should win over file", cfg.Server.ListenAddress)
	}
	if cfg.Engine.LogCapacity != 42 {
		t.Errorf("log capacity = %d", cfg.Engine.LogCapacity)
	}
	if len(cfg.Engine.Checkpoints) != 2 || cfg.Engine.Checkpoints[1] != "update" {
		t.Errorf("checkpoints = %v", cfg.Engine.Checkpoints)
	}
	if !cfg.Policies.Inbox.Enabled {
		t.Error("inbox should be enabled")
	}
	if len(cfg.Signature.TrustedKeys) != 2 {
		t.Errorf("trusted keys = %v", cfg.Signature.TrustedKeys)
	}
	if cfg.Evidence.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Evidence.Backend)
	}
	if cfg.Server.AdmissionRate != 2.5 {
		t.Errorf("admission rate = %v", cfg.Server.AdmissionRate)
	}
	if cfg.Engine.Timeout != 20*time.Millisecond {
		t.Errorf("timeout = %v", cfg.Engine.Timeout)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("GOVERNOR_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_BadValues(t *testing.T) {
	t.Setenv("GOVERNOR_ENGINE_LOG_CAPACITY", "lots")
	t.Setenv("GOVERNOR_SERVER_READ_TIMEOUT", "soon")
	t.Setenv("GOVERNOR_EVIDENCE_ENABLED", "maybe")

	_, err := LoadConfigWithEnvOverrides("")
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(verr.Errors), verr)
	}
	for _, fe := range verr.Errors {
		if !strings.HasPrefix(fe.Field, EnvPrefix) {
			t.Errorf("field %q should name the environment variable", fe.Field)
		}
	}
}
