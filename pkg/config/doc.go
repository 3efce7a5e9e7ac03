// Package config loads, defaults and validates the governor configuration.
//
// Configuration comes from a YAML file decoded on top of DefaultConfig, so a
// file only needs the fields it changes. Unknown keys are rejected.
//
//	cfg, err := config.LoadConfig("governor.yaml")
//
// LoadConfigWithEnvOverrides additionally applies GOVERNOR_SECTION_FIELD
// environment variables, which win over the file:
//
//   - GOVERNOR_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - GOVERNOR_EVIDENCE_POSTGRES_DSN overrides evidence.postgres.dsn
//   - GOVERNOR_SIGNATURE_TRUSTED_KEYS overrides signature.trusted_keys (comma separated)
//
// An environment value that does not parse (for example a bad duration) is
// reported as a validation error instead of being ignored.
//
// Validation collects every problem before failing:
//
//	configuration validation failed with 2 errors:
//	  - engine.log_capacity: log capacity must be at least 1
//	  - evidence.postgres.dsn: DSN is required when backend is 'postgres'
//
// A minimal file:
//
//	engine:
//	  node_id: "rack-07"
//	policies:
//	  files: ["policies/memory.json"]
//	  inbox:
//	    enabled: true
//	    dir: "data/inbox"
//	signature:
//	  trusted_keys: ["keys/authority.pub"]
//	evidence:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/evidence.db"
//	telemetry:
//	  logging:
//	    level: "info"
//
// Initialize and GetConfig expose a process-wide instance for the CLI.
// Library packages take explicit *Config sections instead.
package config
