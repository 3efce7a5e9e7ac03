package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"nanogov/governor/pkg/evidence"
)

// MemoryStorage implements evidence.Storage on an in-memory map. It backs
// tests and nodes configured without a database; records do not survive a
// restart.
type MemoryStorage struct {
	records map[string]*evidence.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*evidence.Record),
	}
}

// Store persists a copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *evidence.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		return evidence.NewStorageError("memory", "store", evidence.ErrClosed)
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

// Query retrieves records matching the query filters, ordered and paginated
// the same way as the SQL backends.
func (s *MemoryStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Record, error) {
	results, err := s.selectRecords(query)
	if err != nil {
		return nil, evidence.NewQueryError(query, err)
	}
	return results, nil
}

// QueryStream streams records matching the query filters.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *evidence.Query) (<-chan *evidence.Record, <-chan error, error) {
	results, err := s.selectRecords(query)
	if err != nil {
		return nil, nil, evidence.NewQueryError(query, err)
	}

	recordsCh := make(chan *evidence.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		for _, record := range results {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matches(record, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		return 0, evidence.NewStorageError("memory", "delete", evidence.ErrClosed)
	}
	var deleted int64
	for id, record := range s.records {
		if matches(record, query) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds while the storage is open.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.records == nil {
		return evidence.NewStorageError("memory", "ping", evidence.ErrClosed)
	}
	return nil
}

// Close drops every record.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return nil
}

// GetByID retrieves a single record by ID.
func (s *MemoryStorage) GetByID(id string) *evidence.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil
	}
	return cloneRecord(record)
}

// Size returns the number of records held.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func (s *MemoryStorage) selectRecords(query *evidence.Query) ([]*evidence.Record, error) {
	order := strings.ToLower(query.SortOrder)
	if order != "" && order != "asc" && order != "desc" {
		return nil, fmt.Errorf("unsupported sort order %q", query.SortOrder)
	}
	key, ok := sortKeys[query.SortBy]
	if !ok {
		return nil, fmt.Errorf("unsupported sort field %q", query.SortBy)
	}

	s.mu.RLock()
	results := []*evidence.Record{}
	for _, record := range s.records {
		if matches(record, query) {
			results = append(results, cloneRecord(record))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(results, func(a, b *evidence.Record) int {
		c := key(a, b)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if order == "asc" {
			return c
		}
		return -c
	})

	if query.Offset >= len(results) {
		return []*evidence.Record{}, nil
	}
	results = results[query.Offset:]
	limit := DefaultQueryLimit
	if query.Limit > 0 {
		limit = query.Limit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

var sortKeys = map[string]func(a, b *evidence.Record) int{
	"":          byDecisionTime,
	"timestamp": byDecisionTime,
	"duration": func(a, b *evidence.Record) int {
		return cmp.Compare(a.Duration, b.Duration)
	},
	"verdict": func(a, b *evidence.Record) int {
		return cmp.Compare(a.VerdictCode, b.VerdictCode)
	},
}

func byDecisionTime(a, b *evidence.Record) int {
	return a.DecisionTime.Compare(b.DecisionTime)
}

func cloneRecord(record *evidence.Record) *evidence.Record {
	c := *record
	c.Entries = slices.Clone(record.Entries)
	c.Anomalies = slices.Clone(record.Anomalies)
	return &c
}
