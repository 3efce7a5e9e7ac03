package config

import "time"

// Config is the root configuration structure for the governor.
type Config struct {
	// Engine configures the enforcement pipeline and decision log.
	Engine EngineConfig `yaml:"engine"`

	// Policies configures the policy store and the update sources feeding it.
	Policies PoliciesConfig `yaml:"policies"`

	// Signature configures which signature schemes and keys are trusted.
	Signature SignatureConfig `yaml:"signature"`

	// Evidence configures the durable decision archive.
	Evidence EvidenceConfig `yaml:"evidence"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// StateBus configures Kafka ingestion of state snapshots.
	StateBus StateBusConfig `yaml:"statebus"`

	// Telemetry configures logging, metrics, tracing and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig configures the enforcement engine.
type EngineConfig struct {
	// NodeID identifies this governor in evidence records and verdict
	// messages. Default: the host name.
	NodeID string `yaml:"node_id"`

	// LogCapacity is the number of entries the decision ring retains.
	// Default: 100
	LogCapacity int `yaml:"log_capacity"`

	// Checkpoints lists the checkpoints the engine enforces. A checkpoint
	// left out always allows.
	// Default: compile, load, runtime, update
	Checkpoints []string `yaml:"checkpoints"`

	// Timeout bounds a single enforcement when callers go through the
	// watchdog. A timeout denies.
	// Default: 50ms
	Timeout time.Duration `yaml:"timeout"`
}

// PoliciesConfig configures the policy store and its sources.
type PoliciesConfig struct {
	// Capacity is the maximum number of active policies, the default policy
	// included.
	// Default: 5
	Capacity int `yaml:"capacity"`

	// StrictFields rejects conditions that reference unknown state fields.
	// Default: false
	StrictFields bool `yaml:"strict_fields"`

	// RemovalWindow bounds the age of an accepted removal request.
	// Default: 10m
	RemovalWindow time.Duration `yaml:"removal_window"`

	// Files are signed policy documents admitted at start-up, in order.
	Files []string `yaml:"files"`

	// Inbox configures the drop directory for signed updates.
	Inbox InboxConfig `yaml:"inbox"`

	// Git configures a Git repository of signed policy documents.
	Git GitPolicyConfig `yaml:"git"`
}

// InboxConfig configures the drop-directory watcher.
type InboxConfig struct {
	// Enabled starts the inbox watcher with the server.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Dir is the drop directory.
	// Default: "data/inbox"
	Dir string `yaml:"dir"`

	// DebounceInterval is how long a file must be quiet before it is applied.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// GitPolicyConfig configures Git-based policy updates.
type GitPolicyConfig struct {
	// Enabled starts the Git watcher with the server.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Repository URL (HTTPS, SSH or a local path).
	// Example: "https://github.com/company/governor-policies.git"
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path within the repository holding policy documents.
	// Default: "" (repository root)
	Path string `yaml:"path"`

	// Auth configures Git authentication.
	Auth GitAuthConfig `yaml:"auth"`

	// Poll configures change detection.
	Poll GitPollConfig `yaml:"poll"`

	// Clone configures repository cloning.
	Clone GitCloneConfig `yaml:"clone"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type: "token", "ssh", "none"
	// Default: "none"
	Type string `yaml:"type"`

	// Token for HTTPS authentication.
	// Required when Type is "token".
	Token string `yaml:"token"`

	// SSHKeyPath for SSH authentication.
	// Required when Type is "ssh".
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase for encrypted SSH keys.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GitPollConfig configures change detection.
type GitPollConfig struct {
	// Interval between polls.
	// Default: 30s
	Interval time.Duration `yaml:"interval"`

	// Timeout for Git operations.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// GitCloneConfig configures repository cloning.
type GitCloneConfig struct {
	// Depth for shallow clones (0 = full clone).
	// Default: 1
	Depth int `yaml:"depth"`

	// LocalPath where the repository is cloned.
	// Default: "data/policies"
	LocalPath string `yaml:"local_path"`

	// CleanOnStart removes the local clone before cloning.
	// Default: false
	CleanOnStart bool `yaml:"clean_on_start"`
}

// SignatureConfig configures signature verification.
type SignatureConfig struct {
	// Algorithms lists the accepted signature schemes.
	// Default: ["dilithium2", "ed25519"]
	Algorithms []string `yaml:"algorithms"`

	// TrustedKeys are PEM public key files of the policy authorities. Only
	// signatures made with one of these keys are accepted; with none, every
	// signed admission and removal is rejected.
	TrustedKeys []string `yaml:"trusted_keys"`
}

// EvidenceConfig configures the decision archive.
type EvidenceConfig struct {
	// Enabled controls whether decisions are archived.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "sqlite", "postgres", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres"`

	// Recorder contains evidence recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains retention policy configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Query contains query configuration.
	Query QueryConfig `yaml:"query"`

	// Export contains export configuration.
	Export ExportConfig `yaml:"export"`

	// Redis mirrors archived decisions onto a Redis stream.
	Redis RedisConfig `yaml:"redis"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/evidence.db"
	Path string `yaml:"path"`

	// Driver selects "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	// DSN is the connection string.
	// Example: "postgres://governor:secret@db:5432/governor?sslmode=require"
	DSN string `yaml:"dsn"`

	// MaxConns is the pool size.
	// Default: 10
	MaxConns int32 `yaml:"max_conns"`

	// ConnectRetries is how many times the initial connection is attempted.
	// Default: 5
	ConnectRetries int `yaml:"connect_retries"`

	// RetryDelay is the pause between connection attempts.
	// Default: 2s
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// RecorderConfig contains evidence recorder configuration.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for writing evidence to storage.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// HashState stores a digest of the evaluated state with each record.
	// Default: true
	HashState bool `yaml:"hash_state"`

	// SkipAllow archives only decisions that logged at least one entry.
	// Default: false
	SkipAllow bool `yaml:"skip_allow"`
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	// Days is the number of days to retain evidence records.
	// 0 keeps evidence forever.
	// Default: 90
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduling pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete writes pruned records to ArchivePath first.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the directory for archived evidence.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`

	// MaxRecords caps the archive size. 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`
}

// QueryConfig contains query configuration.
type QueryConfig struct {
	// DefaultLimit is the number of records returned when no limit is given.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the largest limit a query may request.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`

	// Timeout is the query execution timeout.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// ExportConfig contains export configuration.
type ExportConfig struct {
	// JSONPretty enables pretty-printing for JSON exports.
	// Default: true
	JSONPretty bool `yaml:"json_pretty"`
}

// RedisConfig configures the Redis stream mirror.
type RedisConfig struct {
	// Enabled forwards every archived decision to the stream.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Addr is the Redis server address.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	// Password for AUTH, empty for none.
	Password string `yaml:"password"`

	// DB is the database number.
	DB int `yaml:"db"`

	// Stream is the stream key.
	// Default: "governor:decisions"
	Stream string `yaml:"stream"`

	// MaxLen trims the stream to this many entries.
	// Default: 10000
	MaxLen int64 `yaml:"max_len"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// ListenAddress is the address the API binds to.
	// Default: "127.0.0.1:8480"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response. Websocket streams are exempt.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	// Default: 65536
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// AdmissionRate is the sustained rate of policy mutations per second
	// accepted over HTTP.
	// Default: 1
	AdmissionRate float64 `yaml:"admission_rate"`

	// AdmissionBurst is the burst allowance for policy mutations.
	// Default: 5
	AdmissionBurst int `yaml:"admission_burst"`

	// StreamBuffer is the per-subscriber buffer of the decision stream.
	// Default: 64
	StreamBuffer int `yaml:"stream_buffer"`

	// TLS serves the API over TLS, optionally requiring peer certificates.
	TLS TLSConfig `yaml:"tls"`

	// Auth requires an API key on the /v1 routes.
	Auth AuthConfig `yaml:"auth"`
}

// TLSConfig configures transport security for the API.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// rotation.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`

	// ClientCAFile enables mutual TLS: peer certificates must chain to it.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuth is "require", "request" or "verify_if_given".
	// Default: "require"
	ClientAuth string `yaml:"client_auth"`

	// PeerIdentity names the certificate field logged as the peer node:
	// "subject.CN", "subject.OU", "subject.O" or "SAN".
	// Default: "subject.CN"
	PeerIdentity string `yaml:"peer_identity"`
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// Keys are the accepted API keys.
	Keys []string `yaml:"keys"`

	// Header carries the key. A value of "Authorization" expects the
	// Bearer scheme.
	// Default: "Authorization"
	Header string `yaml:"header"`
}

// StateBusConfig configures Kafka ingestion.
type StateBusConfig struct {
	// Enabled starts the consumer with the server.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Brokers lists the Kafka bootstrap servers.
	// Default: ["localhost:9092"]
	Brokers []string `yaml:"brokers"`

	// StateTopic carries SystemState snapshots.
	// Default: "governor.state"
	StateTopic string `yaml:"state_topic"`

	// VerdictTopic receives one verdict per snapshot. Empty disables
	// publishing.
	// Default: "governor.verdicts"
	VerdictTopic string `yaml:"verdict_topic"`

	// GroupID is the consumer group.
	// Default: "governor"
	GroupID string `yaml:"group_id"`

	// Checkpoint applied to snapshots that do not name one.
	// Default: "runtime"
	Checkpoint string `yaml:"checkpoint"`

	// MaxWait bounds how long a fetch waits for data.
	// Default: 500ms
	MaxWait time.Duration `yaml:"max_wait"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "governor"
	Namespace string `yaml:"namespace"`

	// EnforceDurationBuckets defines histogram buckets for enforcement
	// latency in seconds.
	// Default: [0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01]
	EnforceDurationBuckets []float64 `yaml:"enforce_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio", "parent_ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "governor"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe.
	// Default: "/health/live"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe.
	// Default: "/health/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the path for version information.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout is the timeout for individual readiness checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
