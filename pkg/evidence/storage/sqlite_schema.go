package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the SQLite decision archive.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    node_id TEXT NOT NULL,

    decision_time INTEGER NOT NULL,
    recorded_time INTEGER NOT NULL,

    checkpoint TEXT NOT NULL,
    verdict TEXT NOT NULL,
    verdict_code INTEGER NOT NULL,
    effect TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    message TEXT NOT NULL,
    fault TEXT NOT NULL,
    duration_ns INTEGER NOT NULL,

    entries TEXT NOT NULL,
    anomalies TEXT NOT NULL,
    policy_generation INTEGER NOT NULL,
    state_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(decision_time);
CREATE INDEX IF NOT EXISTS idx_decisions_verdict ON decisions(verdict);
CREATE INDEX IF NOT EXISTS idx_decisions_policy ON decisions(policy_id, rule_id);
CREATE INDEX IF NOT EXISTS idx_decisions_checkpoint ON decisions(checkpoint);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertRecord = `
INSERT INTO decisions (` + recordColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
