// Package telemetry groups the observability packages of the governor.
//
// # Components
//
//   - logging: log/slog handlers with context fields and secret redaction
//   - metrics: Prometheus collectors for decisions, admissions and the pipeline
//   - tracing: OpenTelemetry spans for enforcement, admission and the API
//   - health: liveness and readiness checks mounted on the chi router
//
// # Usage
//
//	logger, err := logging.New(&cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//		return err
//	}
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	engine, err := enforce.New(store, journal, enforce.WithObserver(collector.ObserveDecision))
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck(health.CheckDefaultPolicy, health.DefaultPolicyCheck(store))
//	checker.Mount(router, &cfg.Telemetry.Health)
//
// Decision observers run on the enforcing goroutine after the verdict is
// fixed, so a slow collector delays the caller but never changes the verdict.
package telemetry
