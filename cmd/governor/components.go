package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/decisionlog"
	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/evidence/retention"
	"nanogov/governor/pkg/evidence/storage"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/telemetry/logging"
)

// loadConfig reads --config with GOVERNOR_* overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	lc := cfg.Telemetry.Logging
	if verbose {
		lc.Level = "debug"
	}
	l, err := logging.New(&lc, w)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return l, nil
}

// newRegistry builds the signature verifier from the signature section.
func newRegistry(cfg *config.SignatureConfig) (*signature.Registry, error) {
	var opts []signature.Option
	if len(cfg.Algorithms) > 0 {
		schemes := make([]signature.Scheme, 0, len(cfg.Algorithms))
		for _, name := range cfg.Algorithms {
			s, err := signature.SchemeByName(name)
			if err != nil {
				return nil, cli.NewConfigError("signature.algorithms", err.Error())
			}
			schemes = append(schemes, s)
		}
		opts = append(opts, signature.WithSchemes(schemes...))
	}
	for _, path := range cfg.TrustedKeys {
		_, key, err := signature.LoadPublicKey(path)
		if err != nil {
			return nil, cli.NewConfigError("signature.trusted_keys", err.Error())
		}
		opts = append(opts, signature.WithTrustedKeys(key))
	}
	return signature.NewRegistry(opts...), nil
}

// newStore builds the policy store from the policies section.
func newStore(cfg *config.Config, logger *slog.Logger, extra ...store.Option) (*store.Store, error) {
	opts := []store.Option{
		store.WithCapacity(cfg.Policies.Capacity),
		store.WithRemovalWindow(cfg.Policies.RemovalWindow),
		store.WithLogger(logger),
	}
	if cfg.Policies.StrictFields {
		opts = append(opts, store.WithStrictFields())
	}
	opts = append(opts, extra...)
	st, err := store.New(opts...)
	if err != nil {
		return nil, cli.NewConfigError("policies", err.Error())
	}
	return st, nil
}

// applyFiles admits or removes each document in order. The first rejection
// stops the sequence.
func applyFiles(st *store.Store, v signature.Verifier, paths []string) ([]store.Result, error) {
	results := make([]store.Result, 0, len(paths))
	for _, path := range paths {
		// #nosec G304 - Policy paths come from the operator's configuration or flags.
		data, err := os.ReadFile(path)
		if err != nil {
			return results, fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		res, err := st.Apply(data, v)
		if err != nil {
			return results, fmt.Errorf("policy %s rejected: %w", path, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// checkpointSet parses the engine checkpoint list.
func checkpointSet(names []string) (policy.CheckpointSet, error) {
	cps := make([]policy.Checkpoint, 0, len(names))
	for _, name := range names {
		cp, ok := policy.ParseCheckpoint(name)
		if !ok {
			return 0, cli.NewConfigError("engine.checkpoints", fmt.Sprintf("unknown checkpoint %q", name))
		}
		cps = append(cps, cp)
	}
	return policy.NewCheckpointSet(cps...), nil
}

// newEngine builds the enforcement engine over st with a fresh decision log.
func newEngine(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...enforce.Option) (*enforce.Engine, *decisionlog.Log, error) {
	set, err := checkpointSet(cfg.Engine.Checkpoints)
	if err != nil {
		return nil, nil, err
	}
	journal := decisionlog.New(cfg.Engine.LogCapacity)
	opts = append([]enforce.Option{enforce.WithCheckpoints(set), enforce.WithLogger(logger)}, opts...)
	engine, err := enforce.New(st, journal, opts...)
	if err != nil {
		return nil, nil, err
	}
	return engine, journal, nil
}

// openEvidence opens the configured evidence backend.
func openEvidence(ctx context.Context, cfg *config.EvidenceConfig) (evidence.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			ConnectRetries: cfg.Postgres.ConnectRetries,
			RetryDelay:     cfg.Postgres.RetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storage: %w", err)
		}
		return s, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, cli.NewConfigError("evidence.backend", fmt.Sprintf("unsupported evidence backend: %s", cfg.Backend))
	}
}

// retentionConfig maps the retention section onto the pruner settings.
func retentionConfig(cfg *config.RetentionConfig) *retention.Config {
	return &retention.Config{
		RetentionDays:       cfg.Days,
		PruneSchedule:       cfg.PruneSchedule,
		ArchiveBeforeDelete: cfg.ArchiveBeforeDelete,
		ArchivePath:         cfg.ArchivePath,
		MaxRecords:          cfg.MaxRecords,
	}
}
