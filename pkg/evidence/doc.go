// Package evidence archives enforcement decisions beyond the fixed-size
// decision log so they can be queried, exported and pruned later.
//
// # Architecture
//
// The archive consists of four layers:
//
//  1. Recorder - turns engine decisions into Records off the enforcement path
//  2. Storage - persists Records (SQLite, PostgreSQL, memory)
//  3. Query - validates and applies filters
//  4. Retention - prunes Records older than the configured age
//
// # Recording Flow
//
//	Engine.Enforce -> Decision -> observer
//	     |
//	Recorder (buffered channel, background worker)
//	     |
//	Storage.Store
//
// The recorder never blocks enforcement: when its buffer is full the
// decision is dropped and counted.
//
// # Basic Usage
//
//	st, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: "data/evidence.db", WALMode: true})
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	rec := recorder.NewRecorder(st, recorder.DefaultConfig())
//	defer rec.Close()
//
//	engine, err := enforce.New(policies, log, enforce.WithObserver(rec.Observe))
//
// # Querying Evidence
//
//	records, err := st.Query(ctx, &evidence.Query{Verdict: "deny", Limit: 100})
//	export.NewJSONExporter(true).Export(ctx, records, os.Stdout)
//
// # Thread Safety
//
// Recorder and every Storage implementation are safe for concurrent use.
package evidence
