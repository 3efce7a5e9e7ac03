package storage

import (
	"fmt"
	"strings"
	"time"

	"nanogov/governor/pkg/evidence"
)

// DefaultQueryLimit applies when a query sets no limit.
const DefaultQueryLimit = 100

var sortColumns = map[string]string{
	"":          "decision_time",
	"timestamp": "decision_time",
	"duration":  "duration_ns",
	"verdict":   "verdict_code",
}

// dialect captures the differences between the SQL backends.
type dialect struct {
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// timeArg converts a timestamp to its stored representation.
	timeArg func(t time.Time) any
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	timeArg:     func(t time.Time) any { return t.UTC().UnixNano() },
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	timeArg:     func(t time.Time) any { return t.UTC() },
}

// filtered renders "<verb> FROM decisions [WHERE ...]" for the query's
// filters. Paging does not apply.
func filtered(verb string, query *evidence.Query, d dialect) (string, []any) {
	where, args := buildWhereClause(query, d)
	stmt := verb + " FROM decisions"
	if where != "" {
		stmt += " WHERE " + where
	}
	return stmt, args
}

// buildWhereClause builds a SQL WHERE clause from query filters. Returns the
// clause (without "WHERE") and its arguments.
func buildWhereClause(query *evidence.Query, d dialect) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, d.placeholder(len(args))))
	}

	if query.StartTime != nil {
		add("decision_time >= %s", d.timeArg(*query.StartTime))
	}
	if query.EndTime != nil {
		add("decision_time <= %s", d.timeArg(*query.EndTime))
	}
	if query.NodeID != "" {
		add("node_id = %s", query.NodeID)
	}
	if query.Checkpoint != "" {
		add("checkpoint = %s", query.Checkpoint)
	}
	if query.Verdict != "" {
		add("verdict = %s", query.Verdict)
	}
	if query.PolicyID != "" {
		add("policy_id = %s", query.PolicyID)
	}
	if query.RuleID != "" {
		add("rule_id = %s", query.RuleID)
	}
	if query.FaultsOnly {
		conditions = append(conditions, "fault <> ''")
	}

	return strings.Join(conditions, " AND "), args
}

// buildSelect assembles a SELECT with ordering and pagination.
func buildSelect(columns string, query *evidence.Query, d dialect) (string, []any, error) {
	where, args := buildWhereClause(query, d)

	sortBy, ok := sortColumns[query.SortBy]
	if !ok {
		return "", nil, fmt.Errorf("unsupported sort field %q", query.SortBy)
	}
	order := "DESC"
	switch strings.ToLower(query.SortOrder) {
	case "", "desc":
	case "asc":
		order = "ASC"
	default:
		return "", nil, fmt.Errorf("unsupported sort order %q", query.SortOrder)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM decisions")
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, id %s", sortBy, order, order)

	limit := DefaultQueryLimit
	if query.Limit > 0 {
		limit = query.Limit
	}
	fmt.Fprintf(&b, " LIMIT %d", limit)
	if query.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", query.Offset)
	}
	return b.String(), args, nil
}

// recordColumns lists the columns in scan order.
const recordColumns = `id, node_id, decision_time, recorded_time,
	checkpoint, verdict, verdict_code, effect, policy_id, rule_id, message, fault, duration_ns,
	entries, anomalies, policy_generation, state_hash`

// matches applies the same filters as buildWhereClause in memory.
func matches(record *evidence.Record, query *evidence.Query) bool {
	if query.StartTime != nil && record.DecisionTime.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && record.DecisionTime.After(*query.EndTime) {
		return false
	}
	if query.NodeID != "" && record.NodeID != query.NodeID {
		return false
	}
	if query.Checkpoint != "" && record.Checkpoint != query.Checkpoint {
		return false
	}
	if query.Verdict != "" && record.Verdict != query.Verdict {
		return false
	}
	if query.PolicyID != "" && record.PolicyID != query.PolicyID {
		return false
	}
	if query.RuleID != "" && record.RuleID != query.RuleID {
		return false
	}
	if query.FaultsOnly && record.Fault == "" {
		return false
	}
	return true
}
