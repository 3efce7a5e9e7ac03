package config

import (
	"os"
	"slices"
	"time"
)

// Default values for configuration fields.
const (
	// Engine defaults
	DefaultLogCapacity   = 100
	DefaultEngineTimeout = 50 * time.Millisecond

	// Policy defaults
	DefaultPolicyCapacity    = 5
	DefaultRemovalWindow     = 10 * time.Minute
	DefaultInboxDir          = "data/inbox"
	DefaultInboxDebounce     = 100 * time.Millisecond
	DefaultGitBranch         = "main"
	DefaultGitAuthType       = "none"
	DefaultGitPollInterval   = 30 * time.Second
	DefaultGitPollTimeout    = 10 * time.Second
	DefaultGitCloneDepth     = 1
	DefaultGitCloneLocalPath = "data/policies"

	// Evidence defaults
	DefaultEvidenceEnabled              = true
	DefaultEvidenceBackend              = "sqlite"
	DefaultEvidenceSQLitePath           = "data/evidence.db"
	DefaultEvidenceSQLiteDriver         = "sqlite"
	DefaultEvidenceSQLiteMaxOpenConns   = 10
	DefaultEvidenceSQLiteMaxIdleConns   = 5
	DefaultEvidenceSQLiteWALMode        = true
	DefaultEvidenceSQLiteBusyTimeout    = 5 * time.Second
	DefaultPostgresMaxConns             = int32(10)
	DefaultPostgresConnectRetries       = 5
	DefaultPostgresRetryDelay           = 2 * time.Second
	DefaultEvidenceRecorderAsyncBuffer  = 1000
	DefaultEvidenceRecorderWriteTimeout = 5 * time.Second
	DefaultEvidenceRecorderHashState    = true
	DefaultEvidenceRetentionDays        = 90
	DefaultEvidenceRetentionSchedule    = "0 3 * * *"
	DefaultEvidenceRetentionArchivePath = "data/archives/"
	DefaultEvidenceQueryDefaultLimit    = 100
	DefaultEvidenceQueryMaxLimit        = 10000
	DefaultEvidenceQueryTimeout         = 30 * time.Second
	DefaultEvidenceExportJSONPretty     = true
	DefaultRedisAddr                    = "localhost:6379"
	DefaultRedisStream                  = "governor:decisions"
	DefaultRedisMaxLen                  = int64(10000)

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8480"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = int64(64 * 1024)
	DefaultAdmissionRate   = 1.0
	DefaultAdmissionBurst  = 5
	DefaultStreamBuffer    = 64

	DefaultTLSMinVersion     = "1.3"
	DefaultTLSReloadInterval = 5 * time.Minute
	DefaultTLSClientAuth     = "require"
	DefaultTLSPeerIdentity   = "subject.CN"
	DefaultAuthHeader        = "Authorization"

	// StateBus defaults
	DefaultStateBusBroker       = "localhost:9092"
	DefaultStateBusStateTopic   = "governor.state"
	DefaultStateBusVerdictTopic = "governor.verdicts"
	DefaultStateBusGroupID      = "governor"
	DefaultStateBusCheckpoint   = "runtime"
	DefaultStateBusMaxWait      = 500 * time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsEnabled      = true
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "governor"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 0.1
	DefaultTracingServiceName  = "governor"
	DefaultOTLPInsecure        = true
	DefaultOTLPTimeout         = 10 * time.Second
	DefaultLivenessPath        = "/health/live"
	DefaultReadinessPath       = "/health/ready"
	DefaultVersionPath         = "/version"
	DefaultHealthCheckTimeout  = 5 * time.Second
)

// DefaultCheckpoints are enforced when the configuration names none.
var DefaultCheckpoints = []string{"compile", "load", "runtime", "update"}

// DefaultSignatureAlgorithms are accepted when the configuration names none.
var DefaultSignatureAlgorithms = []string{"dilithium2", "ed25519"}

// DefaultEnforceDurationBuckets cover the microsecond range enforcement runs in.
var DefaultEnforceDurationBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01}

// DefaultConfig returns a configuration with every default applied. Boolean
// options that default to true are only set here; LoadConfig decodes the file
// on top of this value so an explicit false in YAML is kept.
func DefaultConfig() *Config {
	cfg := &Config{
		Evidence: EvidenceConfig{
			Enabled: DefaultEvidenceEnabled,
			SQLite:  SQLiteConfig{WALMode: DefaultEvidenceSQLiteWALMode},
			Recorder: RecorderConfig{
				HashState: DefaultEvidenceRecorderHashState,
			},
			Retention: RetentionConfig{Days: DefaultEvidenceRetentionDays},
			Export:    ExportConfig{JSONPretty: DefaultEvidenceExportJSONPretty},
		},
		StateBus: StateBusConfig{VerdictTopic: DefaultStateBusVerdictTopic},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{OTLP: OTLPConfig{Insecure: DefaultOTLPInsecure}},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for any fields that have zero values. It is
// idempotent. Booleans and the retention period are left alone because their
// zero value is meaningful; DefaultConfig sets those.
func ApplyDefaults(cfg *Config) {
	applyEngineDefaults(&cfg.Engine)
	applyPolicyDefaults(&cfg.Policies)
	if len(cfg.Signature.Algorithms) == 0 {
		cfg.Signature.Algorithms = slices.Clone(DefaultSignatureAlgorithms)
	}
	applyEvidenceDefaults(&cfg.Evidence)
	applyServerDefaults(&cfg.Server)
	applyStateBusDefaults(&cfg.StateBus)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.NodeID = host
		} else {
			cfg.NodeID = "governor"
		}
	}
	if cfg.LogCapacity == 0 {
		cfg.LogCapacity = DefaultLogCapacity
	}
	if len(cfg.Checkpoints) == 0 {
		cfg.Checkpoints = slices.Clone(DefaultCheckpoints)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultEngineTimeout
	}
}

func applyPolicyDefaults(cfg *PoliciesConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultPolicyCapacity
	}
	if cfg.RemovalWindow == 0 {
		cfg.RemovalWindow = DefaultRemovalWindow
	}
	if cfg.Inbox.Dir == "" {
		cfg.Inbox.Dir = DefaultInboxDir
	}
	if cfg.Inbox.DebounceInterval == 0 {
		cfg.Inbox.DebounceInterval = DefaultInboxDebounce
	}

	git := &cfg.Git
	if git.Branch == "" {
		git.Branch = DefaultGitBranch
	}
	if git.Auth.Type == "" {
		git.Auth.Type = DefaultGitAuthType
	}
	if git.Poll.Interval == 0 {
		git.Poll.Interval = DefaultGitPollInterval
	}
	if git.Poll.Timeout == 0 {
		git.Poll.Timeout = DefaultGitPollTimeout
	}
	if git.Clone.Depth == 0 {
		git.Clone.Depth = DefaultGitCloneDepth
	}
	if git.Clone.LocalPath == "" {
		git.Clone.LocalPath = DefaultGitCloneLocalPath
	}
}

func applyEvidenceDefaults(cfg *EvidenceConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultEvidenceBackend
	}

	// SQLite defaults
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultEvidenceSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultEvidenceSQLiteDriver
	}
	if cfg.SQLite.MaxOpenConns == 0 {
		cfg.SQLite.MaxOpenConns = DefaultEvidenceSQLiteMaxOpenConns
	}
	if cfg.SQLite.MaxIdleConns == 0 {
		cfg.SQLite.MaxIdleConns = DefaultEvidenceSQLiteMaxIdleConns
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultEvidenceSQLiteBusyTimeout
	}

	// Postgres defaults
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = DefaultPostgresMaxConns
	}
	if cfg.Postgres.ConnectRetries == 0 {
		cfg.Postgres.ConnectRetries = DefaultPostgresConnectRetries
	}
	if cfg.Postgres.RetryDelay == 0 {
		cfg.Postgres.RetryDelay = DefaultPostgresRetryDelay
	}

	// Recorder defaults
	if cfg.Recorder.AsyncBuffer == 0 {
		cfg.Recorder.AsyncBuffer = DefaultEvidenceRecorderAsyncBuffer
	}
	if cfg.Recorder.WriteTimeout == 0 {
		cfg.Recorder.WriteTimeout = DefaultEvidenceRecorderWriteTimeout
	}

	// Retention defaults
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = DefaultEvidenceRetentionSchedule
	}
	if cfg.Retention.ArchivePath == "" {
		cfg.Retention.ArchivePath = DefaultEvidenceRetentionArchivePath
	}

	// Query defaults
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = DefaultEvidenceQueryDefaultLimit
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = DefaultEvidenceQueryMaxLimit
	}
	if cfg.Query.Timeout == 0 {
		cfg.Query.Timeout = DefaultEvidenceQueryTimeout
	}

	// Redis defaults
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = DefaultRedisStream
	}
	if cfg.Redis.MaxLen == 0 {
		cfg.Redis.MaxLen = DefaultRedisMaxLen
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.AdmissionRate == 0 {
		cfg.AdmissionRate = DefaultAdmissionRate
	}
	if cfg.AdmissionBurst == 0 {
		cfg.AdmissionBurst = DefaultAdmissionBurst
	}
	if cfg.StreamBuffer == 0 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}
	if cfg.TLS.MinVersion == "" {
		cfg.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.TLS.ReloadInterval == 0 {
		cfg.TLS.ReloadInterval = DefaultTLSReloadInterval
	}
	if cfg.TLS.ClientAuth == "" {
		cfg.TLS.ClientAuth = DefaultTLSClientAuth
	}
	if cfg.TLS.PeerIdentity == "" {
		cfg.TLS.PeerIdentity = DefaultTLSPeerIdentity
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = DefaultAuthHeader
	}
}

func applyStateBusDefaults(cfg *StateBusConfig) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{DefaultStateBusBroker}
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateBusStateTopic
	}
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultStateBusGroupID
	}
	if cfg.Checkpoint == "" {
		cfg.Checkpoint = DefaultStateBusCheckpoint
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = DefaultStateBusMaxWait
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Metrics.EnforceDurationBuckets) == 0 {
		cfg.Metrics.EnforceDurationBuckets = slices.Clone(DefaultEnforceDurationBuckets)
	}

	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.OTLP.Timeout == 0 {
		cfg.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}

	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Health.VersionPath == "" {
		cfg.Health.VersionPath = DefaultVersionPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
