package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/evidence/export"
)

// Config bounds how much decision history the archive keeps.
type Config struct {
	// RetentionDays drops records decided more than this many days ago.
	// Zero keeps records regardless of age.
	RetentionDays int

	// PruneSchedule is a five-field cron expression, e.g. "0 3 * * *".
	PruneSchedule string

	// ArchiveBeforeDelete copies doomed records to ArchivePath as JSON
	// Lines first. A failed copy aborts the deletion.
	ArchiveBeforeDelete bool
	ArchivePath         string

	// MaxRecords caps the archive size. Zero is unlimited.
	MaxRecords int64
}

// DefaultConfig keeps ninety days and prunes nightly at 03:00.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
		ArchivePath:   "data/archives/",
	}
}

// Pruner deletes decision records that fall outside the retention bounds.
type Pruner struct {
	storage evidence.Storage
	config  *Config
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithClock replaces the clock the age cutoff is computed from.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pruner) { p.logger = logger }
}

// NewPruner returns a pruner over st. A nil config means DefaultConfig.
func NewPruner(st evidence.Storage, cfg *Config, opts ...Option) *Pruner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Pruner{storage: st, config: cfg, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "evidence.retention")
	return p
}

// Config returns the pruner's bounds.
func (p *Pruner) Config() *Config {
	return p.config
}

// rule yields the cutoff of one retention bound, or nil when nothing is
// out of bounds.
type rule struct {
	name   string
	active bool
	cutoff func(context.Context) (*time.Time, error)
}

// Prune applies the age bound and then the size bound. It returns the
// number of records deleted, including those deleted before a failure.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	rules := []rule{
		{"age", p.config.RetentionDays > 0, p.ageCutoff},
		{"count", p.config.MaxRecords > 0, p.countCutoff},
	}
	var total int64
	for _, r := range rules {
		if !r.active {
			continue
		}
		n, err := p.apply(ctx, r)
		total += n
		if err != nil {
			return total, evidence.NewRetentionError(p.config.RetentionDays, fmt.Errorf("%s bound: %w", r.name, err))
		}
	}

	level := slog.LevelDebug
	if total > 0 {
		level = slog.LevelInfo
	}
	p.logger.Log(ctx, level, "evidence pruned",
		"deleted", total,
		"retention_days", p.config.RetentionDays,
		"max_records", p.config.MaxRecords,
	)
	return total, nil
}

func (p *Pruner) apply(ctx context.Context, r rule) (int64, error) {
	cutoff, err := r.cutoff(ctx)
	if err != nil || cutoff == nil {
		return 0, err
	}
	q := &evidence.Query{EndTime: cutoff}
	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, q, r.name); err != nil {
			return 0, fmt.Errorf("archive: %w", err)
		}
	}
	n, err := p.storage.Delete(ctx, q)
	if err != nil {
		return 0, err
	}
	p.logger.Debug("retention bound applied", "bound", r.name, "cutoff", *cutoff, "deleted", n)
	return n, nil
}

func (p *Pruner) ageCutoff(context.Context) (*time.Time, error) {
	t := p.now().AddDate(0, 0, -p.config.RetentionDays)
	return &t, nil
}

// countCutoff is the decision time of the newest record that must go.
// Records sharing that timestamp go together, so the archive may end
// slightly under MaxRecords.
func (p *Pruner) countCutoff(ctx context.Context) (*time.Time, error) {
	n, err := p.storage.Count(ctx, &evidence.Query{})
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	excess := n - p.config.MaxRecords
	if excess <= 0 {
		return nil, nil
	}
	p.logger.Info("archive over size bound", "records", n, "max_records", p.config.MaxRecords, "excess", excess)

	marker, err := p.storage.Query(ctx, &evidence.Query{
		SortBy:    "timestamp",
		SortOrder: "asc",
		Offset:    int(excess - 1),
		Limit:     1,
	})
	if err != nil || len(marker) == 0 {
		return nil, err
	}
	t := marker[0].DecisionTime
	return &t, nil
}

// archive writes the records selected by q, oldest first, to
// evidence-<bound>-<timestamp>.jsonl. Nothing is created when q selects
// no records.
func (p *Pruner) archive(ctx context.Context, q *evidence.Query, bound string) (err error) {
	n, err := p.storage.Count(ctx, q)
	if err != nil || n == 0 {
		return err
	}
	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return err
	}
	path := filepath.Join(p.config.ArchivePath,
		fmt.Sprintf("evidence-%s-%s.jsonl", bound, p.now().UTC().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	all := *q
	all.Limit = int(n)
	all.SortOrder = "asc"
	if err := export.Stream(ctx, p.storage, &all, export.NewJSONLinesExporter(), f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	p.logger.Info("evidence archived", "file", path, "records", n)
	return nil
}
