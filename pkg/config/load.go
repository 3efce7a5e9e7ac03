package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GOVERNOR_"

// LoadConfig loads configuration from a YAML file. The file is decoded on top
// of DefaultConfig, so omitted fields keep their defaults, then the result is
// validated. Unknown keys are an error. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides named GOVERNOR_SECTION_FIELD (for example
// GOVERNOR_SERVER_LISTEN_ADDRESS). Environment variables take precedence over
// the file. An empty path loads the defaults.
//
// The loading sequence is:
// 1. Apply default values
// 2. Decode the YAML file, if any
// 3. Apply environment variable overrides
// 4. Validate the final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. A value that does
// not parse is reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	e := &envReader{}

	// Engine overrides
	e.str("ENGINE_NODE_ID", &cfg.Engine.NodeID)
	e.integer("ENGINE_LOG_CAPACITY", &cfg.Engine.LogCapacity)
	e.list("ENGINE_CHECKPOINTS", &cfg.Engine.Checkpoints)
	e.duration("ENGINE_TIMEOUT", &cfg.Engine.Timeout)

	// Policy overrides
	e.integer("POLICIES_CAPACITY", &cfg.Policies.Capacity)
	e.boolean("POLICIES_STRICT_FIELDS", &cfg.Policies.StrictFields)
	e.duration("POLICIES_REMOVAL_WINDOW", &cfg.Policies.RemovalWindow)
	e.list("POLICIES_FILES", &cfg.Policies.Files)
	e.boolean("POLICIES_INBOX_ENABLED", &cfg.Policies.Inbox.Enabled)
	e.str("POLICIES_INBOX_DIR", &cfg.Policies.Inbox.Dir)
	e.boolean("POLICIES_GIT_ENABLED", &cfg.Policies.Git.Enabled)
	e.str("POLICIES_GIT_REPOSITORY", &cfg.Policies.Git.Repository)
	e.str("POLICIES_GIT_BRANCH", &cfg.Policies.Git.Branch)
	e.str("POLICIES_GIT_PATH", &cfg.Policies.Git.Path)
	e.str("POLICIES_GIT_AUTH_TYPE", &cfg.Policies.Git.Auth.Type)
	e.str("POLICIES_GIT_AUTH_TOKEN", &cfg.Policies.Git.Auth.Token)
	e.str("POLICIES_GIT_AUTH_SSH_KEY_PATH", &cfg.Policies.Git.Auth.SSHKeyPath)
	e.str("POLICIES_GIT_AUTH_SSH_KEY_PASSPHRASE", &cfg.Policies.Git.Auth.SSHKeyPassphrase)
	e.duration("POLICIES_GIT_POLL_INTERVAL", &cfg.Policies.Git.Poll.Interval)

	// Signature overrides
	e.list("SIGNATURE_ALGORITHMS", &cfg.Signature.Algorithms)
	e.list("SIGNATURE_TRUSTED_KEYS", &cfg.Signature.TrustedKeys)

	// Evidence overrides
	e.boolean("EVIDENCE_ENABLED", &cfg.Evidence.Enabled)
	e.str("EVIDENCE_BACKEND", &cfg.Evidence.Backend)
	e.str("EVIDENCE_SQLITE_PATH", &cfg.Evidence.SQLite.Path)
	e.str("EVIDENCE_SQLITE_DRIVER", &cfg.Evidence.SQLite.Driver)
	e.str("EVIDENCE_POSTGRES_DSN", &cfg.Evidence.Postgres.DSN)
	e.integer("EVIDENCE_RETENTION_DAYS", &cfg.Evidence.Retention.Days)
	e.str("EVIDENCE_RETENTION_PRUNE_SCHEDULE", &cfg.Evidence.Retention.PruneSchedule)
	e.boolean("EVIDENCE_REDIS_ENABLED", &cfg.Evidence.Redis.Enabled)
	e.str("EVIDENCE_REDIS_ADDR", &cfg.Evidence.Redis.Addr)
	e.str("EVIDENCE_REDIS_PASSWORD", &cfg.Evidence.Redis.Password)

	// Server overrides
	e.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	e.boolean("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	e.str("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	e.str("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)
	e.str("SERVER_TLS_CLIENT_CA_FILE", &cfg.Server.TLS.ClientCAFile)
	e.boolean("SERVER_AUTH_ENABLED", &cfg.Server.Auth.Enabled)
	e.list("SERVER_AUTH_KEYS", &cfg.Server.Auth.Keys)
	e.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.float("SERVER_ADMISSION_RATE", &cfg.Server.AdmissionRate)
	e.integer("SERVER_ADMISSION_BURST", &cfg.Server.AdmissionBurst)

	// StateBus overrides
	e.boolean("STATEBUS_ENABLED", &cfg.StateBus.Enabled)
	e.list("STATEBUS_BROKERS", &cfg.StateBus.Brokers)
	e.str("STATEBUS_STATE_TOPIC", &cfg.StateBus.StateTopic)
	e.str("STATEBUS_VERDICT_TOPIC", &cfg.StateBus.VerdictTopic)
	e.str("STATEBUS_GROUP_ID", &cfg.StateBus.GroupID)

	// Telemetry overrides
	e.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	e.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	e.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	e.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	e.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	e.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	e.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	if len(e.errs) > 0 {
		return ValidationError{Errors: e.errs}
	}
	return nil
}

// envReader looks up GOVERNOR_ variables and collects parse failures.
type envReader struct {
	errs []FieldError
}

func (e *envReader) lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e *envReader) fail(name, val string, err error) {
	e.errs = append(e.errs, FieldError{
		Field:   EnvPrefix + name,
		Message: fmt.Sprintf("cannot parse %q: %v", val, err),
	})
}

func (e *envReader) str(name string, dst *string) {
	if val, ok := e.lookup(name); ok {
		*dst = val
	}
}

func (e *envReader) list(name string, dst *[]string) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *envReader) boolean(name string, dst *bool) {
	if val, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			e.fail(name, val, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(name string, dst *int) {
	if val, ok := e.lookup(name); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			e.fail(name, val, err)
			return
		}
		*dst = i
	}
}

func (e *envReader) float(name string, dst *float64) {
	if val, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			e.fail(name, val, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if val, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			e.fail(name, val, err)
			return
		}
		*dst = d
	}
}
