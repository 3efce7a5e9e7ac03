// Package metrics exposes governor activity as Prometheus metrics.
//
// A Collector is wired as an engine observer and a store listener:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	st, _ := store.New(store.WithListener(collector.ObserveStoreEvent))
//	engine, _ := enforce.New(st, log, enforce.WithObserver(collector.ObserveDecision))
//	router.Handle("/metrics", collector.Handler())
//
// Enforcement metrics carry the checkpoint and verdict. Rule match counters
// are capped at a fixed number of policy/rule label sets; matches beyond the
// cap are counted under "other".
package metrics
