package query

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/policy"
)

const (
	// DefaultLimit is the default number of records to return if not specified.
	DefaultLimit = 100

	// MaxLimit is the maximum number of records that can be returned in a single query.
	MaxLimit = 10000
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	"timestamp": true,
	"duration":  true,
	"verdict":   true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate validates a query and returns an error if any parameters are invalid.
func Validate(q *evidence.Query) error {
	if q.Limit < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return evidence.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}

	if q.Verdict != "" {
		if _, ok := enforce.ParseVerdict(q.Verdict); !ok {
			return evidence.NewQueryError(q, fmt.Errorf("invalid verdict: %s", q.Verdict))
		}
	}
	if q.Checkpoint != "" {
		if _, ok := policy.ParseCheckpoint(q.Checkpoint); !ok {
			return evidence.NewQueryError(q, fmt.Errorf("invalid checkpoint: %s", q.Checkpoint))
		}
	}
	if q.PolicyID != "" && q.PolicyID != enforce.FaultPolicyID && q.PolicyID != policy.DefaultPolicyID && !policy.ValidID(q.PolicyID) {
		return evidence.NewQueryError(q, fmt.Errorf("invalid policy_id: %s", q.PolicyID))
	}

	return nil
}

// ApplyDefaults applies default values to a query.
func ApplyDefaults(q *evidence.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = "timestamp"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

// FromValues builds a query from URL parameters: since and until (RFC 3339),
// node, checkpoint, verdict, policy, rule, faults, limit, offset, sort and
// order. The result is validated and has defaults applied.
func FromValues(v url.Values) (*evidence.Query, error) {
	q := &evidence.Query{
		NodeID:     v.Get("node"),
		Checkpoint: v.Get("checkpoint"),
		Verdict:    v.Get("verdict"),
		PolicyID:   v.Get("policy"),
		RuleID:     v.Get("rule"),
		SortBy:     v.Get("sort"),
		SortOrder:  v.Get("order"),
	}

	var err error
	if q.StartTime, err = parseTime(v, "since"); err != nil {
		return nil, err
	}
	if q.EndTime, err = parseTime(v, "until"); err != nil {
		return nil, err
	}
	if s := v.Get("faults"); s != "" {
		if q.FaultsOnly, err = strconv.ParseBool(s); err != nil {
			return nil, fmt.Errorf("faults: %w", err)
		}
	}
	if q.Limit, err = parseInt(v, "limit"); err != nil {
		return nil, err
	}
	if q.Offset, err = parseInt(v, "offset"); err != nil {
		return nil, err
	}

	if err := Validate(q); err != nil {
		return nil, err
	}
	ApplyDefaults(q)
	return q, nil
}

func parseTime(v url.Values, key string) (*time.Time, error) {
	s := v.Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

func parseInt(v url.Values, key string) (int, error) {
	s := v.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
