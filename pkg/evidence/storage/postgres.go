package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nanogov/governor/pkg/evidence"
)

// PostgresConfig contains configuration for the PostgreSQL storage backend.
type PostgresConfig struct {
	// DSN is a postgres:// connection URL.
	DSN string

	// MaxConns bounds the connection pool.
	// Default: 10
	MaxConns int32

	// ConnectRetries is the number of connection attempts before giving up.
	// Default: 5
	ConnectRetries int

	// RetryDelay is the wait between connection attempts.
	// Default: 2 seconds
	RetryDelay time.Duration
}

// DefaultPostgresConfig returns the default PostgreSQL configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxConns:       10,
		ConnectRetries: 5,
		RetryDelay:     2 * time.Second,
	}
}

// PostgresStorage implements evidence.Storage on a pgx connection pool.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStorage connects, retrying until the server answers a ping,
// and creates the schema.
func NewPostgresStorage(ctx context.Context, config *PostgresConfig) (*PostgresStorage, error) {
	if config == nil || config.DSN == "" {
		return nil, evidence.NewStorageError("postgres", "open", fmt.Errorf("dsn is required"))
	}

	cfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "parse_dsn", err)
	}
	if config.MaxConns > 0 {
		cfg.MaxConns = config.MaxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	retries := max(config.ConnectRetries, 1)
	var pool *pgxpool.Pool
	var lastErr error
	for i := 0; i < retries; i++ {
		pool, lastErr = connect(ctx, cfg)
		if lastErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, evidence.NewStorageError("postgres", "connect", ctx.Err())
		case <-time.After(config.RetryDelay):
		}
	}
	if lastErr != nil {
		return nil, evidence.NewStorageError("postgres", "connect", fmt.Errorf("retries exhausted: %w", lastErr))
	}

	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, evidence.NewStorageError("postgres", "create_schema", err)
	}

	logger := slog.Default().With("component", "evidence.storage.postgres")
	logger.Info("PostgreSQL storage initialized",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns,
	)
	return &PostgresStorage{pool: pool, logger: logger}, nil
}

func connect(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store persists a record.
func (s *PostgresStorage) Store(ctx context.Context, record *evidence.Record) error {
	entries, anomalies, err := encodeTrail(record)
	if err != nil {
		return evidence.NewStorageError("postgres", "store", err)
	}

	_, err = s.pool.Exec(ctx, insertPostgresRecord,
		record.ID, record.NodeID, record.DecisionTime.UTC(), record.RecordedTime.UTC(),
		record.Checkpoint, record.Verdict, int16(record.VerdictCode), record.Effect,
		record.PolicyID, record.RuleID, record.Message, record.Fault, int64(record.Duration),
		entries, anomalies, int64(record.PolicyGeneration), record.StateHash,
	)
	if err != nil {
		return evidence.NewStorageError("postgres", "store", err)
	}
	return nil
}

// Query retrieves records matching the query filters.
func (s *PostgresStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Record, error) {
	sqlQuery, args, err := buildSelect(recordColumns, query, postgresDialect)
	if err != nil {
		return nil, evidence.NewQueryError(query, err)
	}

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "query", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*evidence.Record, error) {
		return scanPostgresRow(row)
	})
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "scan", err)
	}
	if records == nil {
		records = []*evidence.Record{}
	}
	return records, nil
}

// QueryStream streams records matching the query filters.
func (s *PostgresStorage) QueryStream(ctx context.Context, query *evidence.Query) (<-chan *evidence.Record, <-chan error, error) {
	sqlQuery, args, err := buildSelect(recordColumns, query, postgresDialect)
	if err != nil {
		return nil, nil, evidence.NewQueryError(query, err)
	}

	recordsCh := make(chan *evidence.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.pool.Query(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- evidence.NewStorageError("postgres", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanPostgresRow(rows)
			if err != nil {
				errCh <- evidence.NewStorageError("postgres", "scan", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- evidence.NewStorageError("postgres", "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *PostgresStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	sqlQuery, args := filtered("SELECT COUNT(*)", query, postgresDialect)

	var count int64
	if err := s.pool.QueryRow(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError("postgres", "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *PostgresStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	sqlQuery, args := filtered("DELETE", query, postgresDialect)

	tag, err := s.pool.Exec(ctx, sqlQuery, args...)
	if err != nil {
		return 0, evidence.NewStorageError("postgres", "delete", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the pool.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return evidence.NewStorageError("postgres", "ping", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	s.logger.Info("PostgreSQL storage closed")
	return nil
}

func scanPostgresRow(row pgx.Row) (*evidence.Record, error) {
	var record evidence.Record
	var verdictCode int16
	var durationNs, generation int64
	var entries, anomalies []byte

	err := row.Scan(
		&record.ID, &record.NodeID, &record.DecisionTime, &record.RecordedTime,
		&record.Checkpoint, &record.Verdict, &verdictCode, &record.Effect,
		&record.PolicyID, &record.RuleID, &record.Message, &record.Fault, &durationNs,
		&entries, &anomalies, &generation, &record.StateHash,
	)
	if err != nil {
		return nil, err
	}

	record.DecisionTime = record.DecisionTime.UTC()
	record.RecordedTime = record.RecordedTime.UTC()
	record.VerdictCode = int(verdictCode)
	record.Duration = time.Duration(durationNs)
	record.PolicyGeneration = uint64(generation)
	if err := decodeTrail(&record, entries, anomalies); err != nil {
		return nil, err
	}
	return &record, nil
}
