package storage

// PostgresSchema creates the PostgreSQL decision archive.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    node_id TEXT NOT NULL,
    decision_time TIMESTAMPTZ NOT NULL,
    recorded_time TIMESTAMPTZ NOT NULL,
    checkpoint TEXT NOT NULL,
    verdict TEXT NOT NULL,
    verdict_code SMALLINT NOT NULL,
    effect TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    message TEXT NOT NULL,
    fault TEXT NOT NULL,
    duration_ns BIGINT NOT NULL,
    entries JSONB NOT NULL,
    anomalies JSONB NOT NULL,
    policy_generation BIGINT NOT NULL,
    state_hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(decision_time);
CREATE INDEX IF NOT EXISTS idx_decisions_verdict ON decisions(verdict);
CREATE INDEX IF NOT EXISTS idx_decisions_policy ON decisions(policy_id, rule_id);
`

const insertPostgresRecord = `
INSERT INTO decisions (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`
