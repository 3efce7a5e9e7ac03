package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

var (
	validCheckpoints  = map[string]bool{"compile": true, "load": true, "runtime": true, "update": true}
	validAlgorithms   = map[string]bool{"dilithium2": true, "ed25519": true}
	validBackends     = map[string]bool{"sqlite": true, "postgres": true, "memory": true}
	validTLSVersions  = map[string]bool{"1.2": true, "1.3": true}
	validClientAuth   = map[string]bool{"require": true, "request": true, "verify_if_given": true}
	validPeerIdentity = map[string]bool{"subject.CN": true, "subject.OU": true, "subject.O": true, "SAN": true}
	validDrivers      = map[string]bool{"sqlite": true, "sqlite3": true}
	validAuthTypes    = map[string]bool{"none": true, "token": true, "ssh": true}
	validLevels       = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats      = map[string]bool{"json": true, "text": true}
	validSamplers     = map[string]bool{"always": true, "never": true, "ratio": true, "parent_ratio": true}
)

// Validate validates the entire configuration and returns a ValidationError
// if any rule fails. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validatePolicies(&cfg.Policies)...)
	errs = append(errs, validateSignature(&cfg.Signature)...)
	errs = append(errs, validateEvidence(&cfg.Evidence)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStateBus(&cfg.StateBus)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	if cfg.LogCapacity < 1 {
		errs = append(errs, FieldError{Field: "engine.log_capacity", Message: "log capacity must be at least 1"})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "engine.timeout", Message: "timeout must be non-negative"})
	}
	seen := map[string]bool{}
	for _, c := range cfg.Checkpoints {
		if !validCheckpoints[c] {
			errs = append(errs, FieldError{
				Field:   "engine.checkpoints",
				Message: fmt.Sprintf("unknown checkpoint %q: must be compile, load, runtime or update", c),
			})
		}
		if seen[c] {
			errs = append(errs, FieldError{Field: "engine.checkpoints", Message: fmt.Sprintf("checkpoint %q listed twice", c)})
		}
		seen[c] = true
	}
	return errs
}

func validatePolicies(cfg *PoliciesConfig) []FieldError {
	var errs []FieldError

	if cfg.Capacity < 1 {
		errs = append(errs, FieldError{Field: "policies.capacity", Message: "capacity must be at least 1"})
	}
	if cfg.RemovalWindow < 0 {
		errs = append(errs, FieldError{Field: "policies.removal_window", Message: "removal window must be non-negative"})
	}
	for i, f := range cfg.Files {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("policies.files[%d]", i), Message: "file path is empty"})
		}
	}

	if cfg.Inbox.Enabled {
		if cfg.Inbox.Dir == "" {
			errs = append(errs, FieldError{Field: "policies.inbox.dir", Message: "directory is required when the inbox is enabled"})
		}
		if cfg.Inbox.DebounceInterval < 0 {
			errs = append(errs, FieldError{Field: "policies.inbox.debounce_interval", Message: "debounce interval must be non-negative"})
		}
	}

	if cfg.Git.Enabled {
		errs = append(errs, validateGit(&cfg.Git)...)
	}
	return errs
}

func validateGit(cfg *GitPolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Repository == "" {
		errs = append(errs, FieldError{Field: "policies.git.repository", Message: "repository is required when git is enabled"})
	}
	if cfg.Branch == "" {
		errs = append(errs, FieldError{Field: "policies.git.branch", Message: "branch is required when git is enabled"})
	}
	if !validAuthTypes[cfg.Auth.Type] {
		errs = append(errs, FieldError{
			Field:   "policies.git.auth.type",
			Message: fmt.Sprintf("invalid auth type %q: must be 'none', 'token' or 'ssh'", cfg.Auth.Type),
		})
	}
	if cfg.Auth.Type == "token" && cfg.Auth.Token == "" {
		errs = append(errs, FieldError{Field: "policies.git.auth.token", Message: "token is required when auth type is 'token'"})
	}
	if cfg.Auth.Type == "ssh" && cfg.Auth.SSHKeyPath == "" {
		errs = append(errs, FieldError{Field: "policies.git.auth.ssh_key_path", Message: "ssh key path is required when auth type is 'ssh'"})
	}
	if cfg.Poll.Interval < time.Second {
		errs = append(errs, FieldError{Field: "policies.git.poll.interval", Message: "poll interval must be at least 1s"})
	}
	if cfg.Poll.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "policies.git.poll.timeout", Message: "poll timeout must be positive"})
	}
	if cfg.Clone.Depth < 0 {
		errs = append(errs, FieldError{Field: "policies.git.clone.depth", Message: "clone depth must be non-negative"})
	}
	return errs
}

func validateSignature(cfg *SignatureConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Algorithms) == 0 {
		errs = append(errs, FieldError{Field: "signature.algorithms", Message: "at least one algorithm is required"})
	}
	for _, alg := range cfg.Algorithms {
		if !validAlgorithms[alg] {
			errs = append(errs, FieldError{
				Field:   "signature.algorithms",
				Message: fmt.Sprintf("unknown algorithm %q: must be 'dilithium2' or 'ed25519'", alg),
			})
		}
	}
	for i, k := range cfg.TrustedKeys {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("signature.trusted_keys[%d]", i), Message: "key path is empty"})
		}
	}
	return errs
}

func validateEvidence(cfg *EvidenceConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "evidence.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite', 'postgres' or 'memory'", cfg.Backend),
		})
	}

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "evidence.sqlite.path", Message: "SQLite path is required when backend is 'sqlite'"})
		}
		if !validDrivers[cfg.SQLite.Driver] {
			errs = append(errs, FieldError{
				Field:   "evidence.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "evidence.sqlite.max_open_conns", Message: "max open connections must be at least 1"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{Field: "evidence.postgres.dsn", Message: "DSN is required when backend is 'postgres'"})
		}
		if cfg.Postgres.MaxConns < 1 {
			errs = append(errs, FieldError{Field: "evidence.postgres.max_conns", Message: "max connections must be at least 1"})
		}
	}

	if cfg.Recorder.AsyncBuffer < 1 {
		errs = append(errs, FieldError{Field: "evidence.recorder.async_buffer", Message: "async buffer must be at least 1"})
	}
	if cfg.Recorder.WriteTimeout <= 0 {
		errs = append(errs, FieldError{Field: "evidence.recorder.write_timeout", Message: "write timeout must be positive"})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "evidence.retention.days", Message: "retention days must be non-negative"})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "evidence.retention.max_records", Message: "max records must be non-negative"})
	}
	if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
		errs = append(errs, FieldError{Field: "evidence.retention.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
	}
	if cfg.Retention.ArchiveBeforeDelete && cfg.Retention.ArchivePath == "" {
		errs = append(errs, FieldError{Field: "evidence.retention.archive_path", Message: "archive path is required when archiving is enabled"})
	}

	if cfg.Query.DefaultLimit < 1 {
		errs = append(errs, FieldError{Field: "evidence.query.default_limit", Message: "default limit must be at least 1"})
	}
	if cfg.Query.MaxLimit < cfg.Query.DefaultLimit {
		errs = append(errs, FieldError{Field: "evidence.query.max_limit", Message: "max limit must not be below the default limit"})
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{Field: "evidence.redis.addr", Message: "address is required when the Redis mirror is enabled"})
		}
		if cfg.Redis.Stream == "" {
			errs = append(errs, FieldError{Field: "evidence.redis.stream", Message: "stream is required when the Redis mirror is enabled"})
		}
		if cfg.Redis.MaxLen < 0 {
			errs = append(errs, FieldError{Field: "evidence.redis.max_len", Message: "max length must be non-negative"})
		}
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("invalid address: %v", err)})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be non-negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be non-negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be non-negative"})
	}
	if cfg.MaxBodyBytes < 1 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be positive"})
	}
	if cfg.AdmissionRate <= 0 {
		errs = append(errs, FieldError{Field: "server.admission_rate", Message: "admission rate must be positive"})
	}
	if cfg.AdmissionBurst < 1 {
		errs = append(errs, FieldError{Field: "server.admission_burst", Message: "admission burst must be at least 1"})
	}
	if cfg.StreamBuffer < 1 {
		errs = append(errs, FieldError{Field: "server.stream_buffer", Message: "stream buffer must be at least 1"})
	}
	errs = append(errs, validateTLS(&cfg.TLS)...)

	if cfg.Auth.Enabled && len(cfg.Auth.Keys) == 0 {
		errs = append(errs, FieldError{Field: "server.auth.keys", Message: "at least one key is required when auth is enabled"})
	}
	return errs
}

func validateTLS(cfg *TLSConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError
	if cfg.CertFile == "" {
		errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert_file is required when TLS is enabled"})
	}
	if cfg.KeyFile == "" {
		errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key_file is required when TLS is enabled"})
	}
	if !validTLSVersions[cfg.MinVersion] {
		errs = append(errs, FieldError{Field: "server.tls.min_version", Message: fmt.Sprintf("invalid min_version %q: must be '1.2' or '1.3'", cfg.MinVersion)})
	}
	if !validClientAuth[cfg.ClientAuth] {
		errs = append(errs, FieldError{Field: "server.tls.client_auth", Message: fmt.Sprintf("invalid client_auth %q", cfg.ClientAuth)})
	}
	if !validPeerIdentity[cfg.PeerIdentity] {
		errs = append(errs, FieldError{Field: "server.tls.peer_identity", Message: fmt.Sprintf("invalid peer_identity %q", cfg.PeerIdentity)})
	}
	if cfg.ReloadInterval < 0 {
		errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "reload interval must be non-negative"})
	}
	return errs
}

func validateStateBus(cfg *StateBusConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}
	if len(cfg.Brokers) == 0 {
		errs = append(errs, FieldError{Field: "statebus.brokers", Message: "at least one broker is required"})
	}
	if cfg.StateTopic == "" {
		errs = append(errs, FieldError{Field: "statebus.state_topic", Message: "state topic is required"})
	}
	if cfg.GroupID == "" {
		errs = append(errs, FieldError{Field: "statebus.group_id", Message: "group id is required"})
	}
	if !validCheckpoints[cfg.Checkpoint] {
		errs = append(errs, FieldError{Field: "statebus.checkpoint", Message: fmt.Sprintf("unknown checkpoint %q", cfg.Checkpoint)})
	}
	if cfg.StateTopic != "" && cfg.StateTopic == cfg.VerdictTopic {
		errs = append(errs, FieldError{Field: "statebus.verdict_topic", Message: "verdict topic must differ from the state topic"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q: must be 'debug', 'info', 'warn' or 'error'", cfg.Logging.Level),
		})
	}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with '/'"})
	}
	for i := 1; i < len(cfg.Metrics.EnforceDurationBuckets); i++ {
		if cfg.Metrics.EnforceDurationBuckets[i] <= cfg.Metrics.EnforceDurationBuckets[i-1] {
			errs = append(errs, FieldError{Field: "telemetry.metrics.enforce_duration_buckets", Message: "buckets must be strictly increasing"})
			break
		}
	}

	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', 'ratio' or 'parent_ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0.0 and 1.0"})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}

	for field, path := range map[string]string{
		"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
		"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
		"telemetry.health.version_path":   cfg.Health.VersionPath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, FieldError{Field: field, Message: "path must start with '/'"})
		}
	}
	if cfg.Health.CheckTimeout <= 0 {
		errs = append(errs, FieldError{Field: "telemetry.health.check_timeout", Message: "check timeout must be positive"})
	}
	return errs
}
