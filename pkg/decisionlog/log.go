package decisionlog

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the number of entries retained by New(0).
const DefaultCapacity = 100

// ErrLogCorruption reports that the retained entries are not a contiguous
// run of sequence numbers.
var ErrLogCorruption = errors.New("decision log corrupted")

// Log is a fixed-capacity ring of decision entries.
//
// # Ordering
//
// Every appended entry receives the next sequence number, starting at 1.
// When the ring is full the oldest entry is overwritten. Readers always see
// retained entries oldest to newest.
//
// # Thread Safety
//
// Appends are serialized by a mutex. Each slot is an atomic pointer that is
// written before the cursor advances, so readers that load the cursor first
// never observe a half-written entry and never take the lock.
type Log struct {
	mu     sync.Mutex
	slots  []atomic.Pointer[Entry]
	cursor atomic.Uint64
	now    func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New returns an empty log retaining capacity entries. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{
		slots: make([]atomic.Pointer[Entry], capacity),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stores e, assigning its sequence number and, if unset, its
// timestamp. The entry is always written. A non-nil error means the slot
// being overwritten did not hold the entry the ring expected and the log can
// no longer be trusted.
func (l *Log) Append(e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.cursor.Load() + 1
	e.Seq = seq
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	slot := &l.slots[l.index(seq)]
	var err error
	if old := slot.Load(); old != nil && old.Seq+uint64(len(l.slots)) != seq {
		err = fmt.Errorf("%w: slot for seq %d held seq %d", ErrLogCorruption, seq, old.Seq)
	} else if old == nil && seq > uint64(len(l.slots)) {
		err = fmt.Errorf("%w: slot for seq %d was empty", ErrLogCorruption, seq)
	}

	stored := e
	slot.Store(&stored)
	l.cursor.Store(seq)
	return e, err
}

// Entries returns the retained entries, oldest to newest.
func (l *Log) Entries() []Entry {
	return l.Since(0)
}

// Since returns retained entries with a sequence number greater than seq,
// oldest to newest.
func (l *Log) Since(seq uint64) []Entry {
	cur := l.cursor.Load()
	if seq >= cur {
		return nil
	}
	first := l.firstRetained(cur)
	if seq+1 > first {
		first = seq + 1
	}
	if first > cur {
		return nil
	}

	out := make([]Entry, 0, cur-first+1)
	for s := first; s <= cur; s++ {
		e := l.slots[l.index(s)].Load()
		// A concurrent append may already have replaced the slot with a
		// newer entry; that entry is returned by a later read.
		if e == nil || e.Seq != s {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// Last returns the most recent entry.
func (l *Log) Last() (Entry, bool) {
	cur := l.cursor.Load()
	if cur == 0 {
		return Entry{}, false
	}
	e := l.slots[l.index(cur)].Load()
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	return int(min(l.cursor.Load(), uint64(len(l.slots))))
}

// Cursor returns the sequence number of the most recent entry, or zero.
func (l *Log) Cursor() uint64 {
	return l.cursor.Load()
}

// Capacity returns the number of retained entries when full.
func (l *Log) Capacity() int {
	return len(l.slots)
}

// Verify checks that every retained slot holds the sequence number the ring
// position implies.
func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.cursor.Load()
	for s := l.firstRetained(cur); s <= cur && s > 0; s++ {
		e := l.slots[l.index(s)].Load()
		if e == nil {
			return fmt.Errorf("%w: seq %d missing", ErrLogCorruption, s)
		}
		if e.Seq != s {
			return fmt.Errorf("%w: expected seq %d, found %d", ErrLogCorruption, s, e.Seq)
		}
	}
	return nil
}

func (l *Log) firstRetained(cur uint64) uint64 {
	if n := uint64(len(l.slots)); cur > n {
		return cur - n + 1
	}
	return 1
}

func (l *Log) index(seq uint64) int {
	return int((seq - 1) % uint64(len(l.slots)))
}
