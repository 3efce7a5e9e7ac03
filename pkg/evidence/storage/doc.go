// Package storage provides archive backends for decision records.
//
// # Storage Backends
//
//   - SQLite: embedded database for single-node deployments, through either
//     the pure Go driver (modernc.org/sqlite, "sqlite") or the cgo driver
//     (mattn/go-sqlite3, "sqlite3")
//   - PostgreSQL: shared archive for fleets of nodes, through a pgx pool
//   - Memory: in-process map for tests and database-less nodes
//
// All backends apply the same filters, ordering and pagination. Queries sort
// newest first by decision time unless told otherwise, with the record ID as
// tie-breaker, and return at most DefaultQueryLimit records when no limit is
// set.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:        "data/evidence.db",
//	    Driver:      storage.DriverPure,
//	    WALMode:     true,
//	    BusyTimeout: 5 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	records, err := store.Query(ctx, &evidence.Query{
//	    Verdict:   "deny",
//	    StartTime: &since,
//	    Limit:     50,
//	})
//
// # Time Representation
//
// SQLite stores decision and recorded times as Unix nanoseconds so that the
// two drivers agree on ordering and comparison. PostgreSQL uses timestamptz.
//
// # Thread Safety
//
// All backends are safe for concurrent use. SQLite WAL mode lets readers run
// alongside the single writer.
package storage
