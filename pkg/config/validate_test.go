package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"zero log capacity", func(c *Config) { c.Engine.LogCapacity = 0 }, "engine.log_capacity"},
		{"unknown checkpoint", func(c *Config) { c.Engine.Checkpoints = []string{"boot"} }, "engine.checkpoints"},
		{"duplicate checkpoint", func(c *Config) { c.Engine.Checkpoints = []string{"load", "load"} }, "engine.checkpoints"},
		{"zero capacity", func(c *Config) { c.Policies.Capacity = 0 }, "policies.capacity"},
		{"empty policy file", func(c *Config) { c.Policies.Files = []string{" "} }, "policies.files[0]"},
		{"inbox without dir", func(c *Config) {
			c.Policies.Inbox.Enabled = true
			c.Policies.Inbox.Dir = ""
		}, "policies.inbox.dir"},
		{"git without repository", func(c *Config) { c.Policies.Git.Enabled = true }, "policies.git.repository"},
		{"git token missing", func(c *Config) {
			c.Policies.Git.Enabled = true
			c.Policies.Git.Repository = "https://example.com/policies.git"
			c.Policies.Git.Auth.Type = "token"
		}, "policies.git.auth.token"},
		{"git bad auth type", func(c *Config) {
			c.Policies.Git.Enabled = true
			c.Policies.Git.Repository = "https://example.com/policies.git"
			c.Policies.Git.Auth.Type = "kerberos"
		}, "policies.git.auth.type"},
		{"git fast poll", func(c *Config) {
			c.Policies.Git.Enabled = true
			c.Policies.Git.Repository = "https://example.com/policies.git"
			c.Policies.Git.Poll.Interval = 10 * time.Millisecond
		}, "policies.git.poll.interval"},
		{"no algorithms", func(c *Config) { c.Signature.Algorithms = nil }, "signature.algorithms"},
		{"unknown algorithm", func(c *Config) { c.Signature.Algorithms = []string{"rsa"} }, "signature.algorithms"},
		{"unknown backend", func(c *Config) { c.Evidence.Backend = "mongo" }, "evidence.backend"},
		{"postgres without dsn", func(c *Config) { c.Evidence.Backend = "postgres" }, "evidence.postgres.dsn"},
		{"bad sqlite driver", func(c *Config) { c.Evidence.SQLite.Driver = "pg" }, "evidence.sqlite.driver"},
		{"negative retention", func(c *Config) { c.Evidence.Retention.Days = -1 }, "evidence.retention.days"},
		{"bad prune schedule", func(c *Config) { c.Evidence.Retention.PruneSchedule = "every day" }, "evidence.retention.prune_schedule"},
		{"max below default limit", func(c *Config) { c.Evidence.Query.MaxLimit = 10 }, "evidence.query.max_limit"},
		{"redis without stream", func(c *Config) {
			c.Evidence.Redis.Enabled = true
			c.Evidence.Redis.Stream = ""
		}, "evidence.redis.stream"},
		{"evidence disabled skips checks", func(c *Config) {
			c.Evidence.Enabled = false
			c.Evidence.Backend = "mongo"
		}, ""},
		{"bad listen address", func(c *Config) { c.Server.ListenAddress = "localhost" }, "server.listen_address"},
		{"zero admission rate", func(c *Config) { c.Server.AdmissionRate = 0 }, "server.admission_rate"},
		{"zero admission burst", func(c *Config) { c.Server.AdmissionBurst = 0 }, "server.admission_burst"},
		{"tls without cert", func(c *Config) {
			c.Server.TLS.Enabled = true
			c.Server.TLS.KeyFile = "server.key"
		}, "server.tls.cert_file"},
		{"tls old version", func(c *Config) {
			c.Server.TLS.Enabled = true
			c.Server.TLS.CertFile = "server.crt"
			c.Server.TLS.KeyFile = "server.key"
			c.Server.TLS.MinVersion = "1.0"
		}, "server.tls.min_version"},
		{"tls bad peer identity", func(c *Config) {
			c.Server.TLS.Enabled = true
			c.Server.TLS.CertFile = "server.crt"
			c.Server.TLS.KeyFile = "server.key"
			c.Server.TLS.PeerIdentity = "issuer"
		}, "server.tls.peer_identity"},
		{"tls disabled skips checks", func(c *Config) { c.Server.TLS.MinVersion = "1.0" }, ""},
		{"auth without keys", func(c *Config) { c.Server.Auth.Enabled = true }, "server.auth.keys"},
		{"statebus without brokers", func(c *Config) {
			c.StateBus.Enabled = true
			c.StateBus.Brokers = nil
		}, "statebus.brokers"},
		{"statebus same topics", func(c *Config) {
			c.StateBus.Enabled = true
			c.StateBus.VerdictTopic = c.StateBus.StateTopic
		}, "statebus.verdict_topic"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "verbose" }, "telemetry.logging.level"},
		{"bad log format", func(c *Config) { c.Telemetry.Logging.Format = "xml" }, "telemetry.logging.format"},
		{"metrics path", func(c *Config) { c.Telemetry.Metrics.Path = "metrics" }, "telemetry.metrics.path"},
		{"unsorted buckets", func(c *Config) { c.Telemetry.Metrics.EnforceDurationBuckets = []float64{1, 0.5} }, "telemetry.metrics.enforce_duration_buckets"},
		{"sample ratio", func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 }, "telemetry.tracing.sample_ratio"},
		{"tracing without endpoint", func(c *Config) { c.Telemetry.Tracing.Enabled = true }, "telemetry.tracing.endpoint"},
		{"health path", func(c *Config) { c.Telemetry.Health.ReadinessPath = "ready" }, "telemetry.health.readiness_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.wantField, verr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.LogCapacity = 0
	cfg.Server.AdmissionBurst = 0
	cfg.Telemetry.Logging.Level = "loud"

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d", len(verr.Errors))
	}
	if !strings.Contains(err.Error(), "with 3 errors") {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  ValidationError
		want string
	}{
		{"empty", ValidationError{}, "configuration validation failed"},
		{
			"single",
			ValidationError{Errors: []FieldError{{Field: "a.b", Message: "bad"}}},
			"configuration validation failed: a.b: bad",
		},
		{
			"multiple",
			ValidationError{Errors: []FieldError{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}},
			"configuration validation failed with 2 errors:\n  - a: x\n  - b: y\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
