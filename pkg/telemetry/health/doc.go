// Package health provides liveness, readiness and version endpoints for the
// governor.
//
// Liveness answers as long as the process serves HTTP. Readiness runs every
// registered check concurrently, each under the configured timeout. A
// failing critical check answers 503 "unavailable"; a failing advisory check
// answers 200 "degraded". The governor registers:
//
//   - default_policy (critical): the builtin security policy is active
//   - evidence_storage (critical): the evidence backend answers Ping
//   - tls_certificate (critical): the API certificate is loaded and unexpired
//   - evidence_sink (advisory): the Redis stream answers Ping
//   - policy_git (advisory): the git syncer is polling
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck(health.CheckDefaultPolicy, health.DefaultPolicyCheck(policies))
//	checker.RegisterCheck(health.CheckEvidence, health.PingCheck(storage))
//	checker.RegisterAdvisory(health.CheckEvidenceSink, health.PingCheck(sink))
//	checker.Mount(router, &cfg.Telemetry.Health)
package health
