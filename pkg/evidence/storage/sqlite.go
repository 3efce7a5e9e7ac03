package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)

	"nanogov/governor/pkg/evidence"
)

// Driver names accepted by SQLiteConfig.Driver.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// SQLiteConfig selects the archive file and how it is opened. Zero values
// fall back to DefaultSQLiteConfig.
type SQLiteConfig struct {
	Path   string
	Driver string

	MaxOpenConns int
	MaxIdleConns int

	// WALMode lets readers proceed while the recorder writes.
	WALMode     bool
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the archive settings used when none are given.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/evidence.db",
		Driver:       DriverPure,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage is the single-node decision archive.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStorage opens the archive at cfg.Path and migrates it to
// SchemaVersion. An archive written by a newer schema is refused.
func NewSQLiteStorage(cfg *SQLiteConfig) (*SQLiteStorage, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPure
	}
	if driver != DriverCGO && driver != DriverPure {
		return nil, sqliteErr("open", fmt.Errorf("unknown driver %q", driver))
	}

	db, err := sql.Open(driver, cfg.Path)
	if err != nil {
		return nil, sqliteErr("open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := migrate(db, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger := slog.Default().With("component", "evidence.sqlite")
	logger.Info("decision archive opened", "path", cfg.Path, "driver", driver, "wal", cfg.WALMode)
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func migrate(db *sql.DB, cfg *SQLiteConfig) error {
	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds())}
	if cfg.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return sqliteErr("pragma", fmt.Errorf("%s: %w", p, err))
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		return sqliteErr("migrate", err)
	}
	if _, err := db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return sqliteErr("migrate", err)
	}
	var version int
	if err := db.QueryRow(GetSchemaVersion).Scan(&version); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return sqliteErr("migrate", err)
	}
	if version != SchemaVersion {
		return sqliteErr("migrate", fmt.Errorf("archive schema v%d, this build reads v%d", version, SchemaVersion))
	}
	return nil
}

func sqliteErr(op string, err error) error {
	return evidence.NewStorageError("sqlite", op, err)
}

// Store appends one record. IDs are unique; a duplicate is an error.
func (s *SQLiteStorage) Store(ctx context.Context, r *evidence.Record) error {
	entries, anomalies, err := encodeTrail(r)
	if err != nil {
		return sqliteErr("store", err)
	}
	if _, err := s.db.ExecContext(ctx, insertRecord,
		r.ID, r.NodeID,
		r.DecisionTime.UTC().UnixNano(), r.RecordedTime.UTC().UnixNano(),
		r.Checkpoint, r.Verdict, r.VerdictCode, r.Effect,
		r.PolicyID, r.RuleID, r.Message, r.Fault, int64(r.Duration),
		string(entries), string(anomalies), int64(r.PolicyGeneration), r.StateHash,
	); err != nil {
		return sqliteErr("store", err)
	}
	return nil
}

// Query returns the page of records selected by q.
func (s *SQLiteStorage) Query(ctx context.Context, q *evidence.Query) ([]*evidence.Record, error) {
	out := []*evidence.Record{}
	err := s.each(ctx, q, func(r *evidence.Record) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryStream yields the records selected by q one at a time. The error
// channel carries at most one error and is closed after the records.
func (s *SQLiteStorage) QueryStream(ctx context.Context, q *evidence.Query) (<-chan *evidence.Record, <-chan error, error) {
	stmt, args, err := buildSelect(recordColumns, q, sqliteDialect)
	if err != nil {
		return nil, nil, evidence.NewQueryError(q, err)
	}
	records := make(chan *evidence.Record, 100)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(records)
		err := s.scan(ctx, stmt, args, func(r *evidence.Record) error {
			select {
			case records <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errs <- err
		}
	}()
	return records, errs, nil
}

func (s *SQLiteStorage) each(ctx context.Context, q *evidence.Query, fn func(*evidence.Record) error) error {
	stmt, args, err := buildSelect(recordColumns, q, sqliteDialect)
	if err != nil {
		return evidence.NewQueryError(q, err)
	}
	return s.scan(ctx, stmt, args, fn)
}

func (s *SQLiteStorage) scan(ctx context.Context, stmt string, args []any, fn func(*evidence.Record) error) error {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return sqliteErr("query", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanSQLiteRow(rows)
		if err != nil {
			return sqliteErr("scan", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return sqliteErr("query", err)
	}
	return nil
}

// Count returns how many records match q's filters.
func (s *SQLiteStorage) Count(ctx context.Context, q *evidence.Query) (int64, error) {
	stmt, args := filtered("SELECT COUNT(*)", q, sqliteDialect)
	var n int64
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, sqliteErr("count", err)
	}
	return n, nil
}

// Delete removes every record matching q's filters and reports how many.
func (s *SQLiteStorage) Delete(ctx context.Context, q *evidence.Query) (int64, error) {
	stmt, args := filtered("DELETE", q, sqliteDialect)
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, sqliteErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqliteErr("delete", err)
	}
	return n, nil
}

// Ping checks that the archive file is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return sqliteErr("ping", err)
	}
	return nil
}

// Close closes the archive.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return sqliteErr("close", err)
	}
	s.logger.Debug("decision archive closed")
	return nil
}

func scanSQLiteRow(rows *sql.Rows) (*evidence.Record, error) {
	var (
		r                                evidence.Record
		decided, recorded, duration, gen int64
		entries, anomalies               string
	)
	if err := rows.Scan(
		&r.ID, &r.NodeID, &decided, &recorded,
		&r.Checkpoint, &r.Verdict, &r.VerdictCode, &r.Effect,
		&r.PolicyID, &r.RuleID, &r.Message, &r.Fault, &duration,
		&entries, &anomalies, &gen, &r.StateHash,
	); err != nil {
		return nil, err
	}
	r.DecisionTime = time.Unix(0, decided).UTC()
	r.RecordedTime = time.Unix(0, recorded).UTC()
	r.Duration = time.Duration(duration)
	r.PolicyGeneration = uint64(gen)
	if err := decodeTrail(&r, []byte(entries), []byte(anomalies)); err != nil {
		return nil, err
	}
	return &r, nil
}
