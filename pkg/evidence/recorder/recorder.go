package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/state"
)

// Config contains configuration for the evidence recorder.
type Config struct {
	// Enabled enables evidence recording.
	Enabled bool

	// NodeID identifies this node in every record.
	NodeID string

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// HashState enables hashing of the evaluated system state.
	// Default: true
	HashState bool

	// SkipAllow drops Allow decisions that triggered no rule, keeping the
	// archive to decisions that carry audit information.
	// Default: false
	SkipAllow bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
		HashState:    true,
	}
}

// Forwarder receives each record after it has been stored. The Redis stream
// sink implements it.
type Forwarder interface {
	Forward(ctx context.Context, record *evidence.Record) error
}

// Recorder archives enforcement decisions. Observe is registered as an
// engine observer; records are written by a background worker so the
// enforcing goroutine never waits on storage.
type Recorder struct {
	storage    evidence.Storage
	config     *Config
	forwarders []Forwarder
	onWrite    func(error)
	recordChan chan *evidence.Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
	now        func() time.Time

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithForwarder adds a forwarder that receives every stored record.
func WithForwarder(f Forwarder) Option {
	return func(r *Recorder) { r.forwarders = append(r.forwarders, f) }
}

// WithWriteHook registers fn to receive the outcome of every storage write,
// nil on success.
func WithWriteHook(fn func(error)) Option {
	return func(r *Recorder) { r.onWrite = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithClock overrides the clock used for RecordedTime.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a new evidence recorder with the provided storage
// backend and configuration, and starts its worker.
func NewRecorder(storage evidence.Storage, config *Config, opts ...Option) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *evidence.Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "evidence.recorder")

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("evidence recorder initialized",
		"node_id", config.NodeID,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"hash_state", config.HashState,
		"forwarders", len(r.forwarders),
	)
	return r
}

// Observe converts d into a record and enqueues it. It never blocks: when
// the buffer is full or the recorder is closed the record is dropped and
// counted. The signature matches enforce.Observer.
func (r *Recorder) Observe(d enforce.Decision, st *state.SystemState) {
	if !r.config.Enabled {
		return
	}
	if r.config.SkipAllow && d.Verdict == enforce.VerdictAllow && len(d.Entries) == 0 {
		return
	}

	record := NewRecord(r.config.NodeID, d)
	record.RecordedTime = r.now().UTC()
	if r.config.HashState {
		hash, err := HashState(st)
		if err != nil {
			r.logger.Warn("failed to hash system state", "record_id", record.ID, "error", err)
		}
		record.StateHash = hash
	}

	select {
	case <-r.done:
		r.dropped.Add(1)
		return
	default:
	}

	select {
	case r.recordChan <- record:
	default:
		r.dropped.Add(1)
		r.logger.Error("evidence record channel full, dropping record",
			"record_id", record.ID,
			"verdict", record.Verdict,
			"channel_capacity", r.config.AsyncBuffer,
		)
	}
}

// Record stores record synchronously and forwards it. Used by tooling that
// archives decisions outside a running engine.
func (r *Recorder) Record(ctx context.Context, record *evidence.Record) error {
	err := r.storage.Store(ctx, record)
	if r.onWrite != nil {
		r.onWrite(err)
	}
	if err != nil {
		r.failed.Add(1)
		return evidence.NewRecorderError(record.ID, err)
	}
	r.recorded.Add(1)
	r.forward(ctx, record)
	return nil
}

// Stats reports how many records were stored, dropped before storage and
// rejected by storage.
func (r *Recorder) Stats() (recorded, dropped, failed uint64) {
	return r.recorded.Load(), r.dropped.Load(), r.failed.Load()
}

// Close stops accepting records, drains the buffer and waits for pending
// writes to finish. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down evidence recorder")
		close(r.done)
		r.wg.Wait()
		recorded, dropped, failed := r.Stats()
		r.logger.Info("evidence recorder shut down complete",
			"recorded", recorded,
			"dropped", dropped,
			"failed", failed,
		)
	})
	return nil
}

// worker drains the record channel and writes records to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			r.logger.Info("draining evidence channel before shutdown",
				"pending_count", len(r.recordChan),
			)
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *evidence.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.Record(ctx, record); err != nil {
		r.logger.Error("failed to store evidence record",
			"record_id", record.ID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.logger.Debug("evidence recorded",
		"record_id", record.ID,
		"verdict", record.Verdict,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow evidence write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

func (r *Recorder) forward(ctx context.Context, record *evidence.Record) {
	for _, f := range r.forwarders {
		if err := f.Forward(ctx, record); err != nil {
			r.logger.Warn("failed to forward evidence record",
				"record_id", record.ID,
				"error", err,
			)
		}
	}
}
