package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
	"nanogov/governor/pkg/policy/store"
)

const (
	processedDir = "processed"
	rejectedDir  = "rejected"
	reasonSuffix = ".reason"
)

// Applier is the store surface the inbox drives.
type Applier interface {
	Apply(data []byte, v signature.Verifier) (store.Result, error)
}

// Config contains configuration for the inbox watcher.
type Config struct {
	// Dir is the drop directory. processed/ and rejected/ are created
	// beneath it.
	Dir string

	// DebounceInterval is how long a file must be quiet before it is applied.
	// Default: 100ms
	DebounceInterval time.Duration

	// Keep leaves applied files in place instead of moving them. Used when
	// the directory is managed by another tool.
	Keep bool
}

// DefaultConfig returns the default inbox configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:              "data/inbox",
		DebounceInterval: 100 * time.Millisecond,
	}
}

// Stats counts what the watcher has done since it was created.
type Stats struct {
	Applied  int64
	Rejected int64
	Pending  int
}

// Watcher applies documents dropped into the inbox directory.
type Watcher struct {
	config   *Config
	target   Applier
	verifier signature.Verifier
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce *debouncer

	// applyMu serializes file handling between the scan and debounce timers.
	applyMu  sync.Mutex
	applied  atomic.Int64
	rejected atomic.Int64

	mu       sync.Mutex
	started  bool
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates the inbox directories and an fsnotify watcher.
func NewWatcher(config *Config, target Applier, verifier signature.Verifier, logger *slog.Logger) (*Watcher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Dir == "" {
		return nil, errors.New("inbox directory is required")
	}
	if target == nil {
		return nil, errors.New("inbox needs a policy store")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, dir := range []string{config.Dir, filepath.Join(config.Dir, processedDir), filepath.Join(config.Dir, rejectedDir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		config:   config,
		target:   target,
		verifier: verifier,
		logger:   logger.With("component", "policy-inbox"),
		watcher:  fsw,
		debounce: newDebouncer(config.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Scan applies every document already present in the inbox, in name order,
// and returns how many were applied successfully.
func (w *Watcher) Scan() (int, error) {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && accepts(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	ok := 0
	for _, name := range names {
		if w.process(filepath.Join(w.config.Dir, name)) {
			ok++
		}
	}
	return ok, nil
}

// Watch processes inbox events until the context is cancelled or Stop is
// called. A watcher runs at most once.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("inbox watcher already started")
	}
	w.started = true
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	w.logger.Info("inbox watcher started",
		"dir", w.config.Dir,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("inbox watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !shouldProcess(event) {
				continue
			}
			path := event.Name
			w.logger.Debug("inbox event", "path", path, "op", event.Op.String())
			w.debounce.trigger(path, func() { w.process(path) })

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("inbox watcher error", "error", err)
		}
	}
}

// Stop stops the watcher, cancels pending callbacks and releases the
// fsnotify handle. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if started {
			<-w.doneCh
		}
		w.debounce.stop()
		if cerr := w.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
	})
	return err
}

// IsRunning reports whether Watch is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns the watcher counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Applied:  w.applied.Load(),
		Rejected: w.rejected.Load(),
		Pending:  w.debounce.pending(),
	}
}

// process applies one file and moves it out of the inbox. It reports whether
// the store accepted the document.
func (w *Watcher) process(path string) bool {
	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	data, err := readDocument(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Moved or deleted before the debounce fired.
		return false
	}
	if err != nil {
		w.logger.Error("failed to read inbox file", "path", path, "error", err)
		w.rejected.Add(1)
		w.settle(path, err)
		return false
	}

	res, err := w.target.Apply(data, w.verifier)
	if err != nil {
		w.rejected.Add(1)
		w.logger.Warn("inbox document rejected",
			"file", filepath.Base(path),
			"op", res.Op,
			"policy_id", res.PolicyID,
			"reason", policy.ReasonOf(err),
			"error", err,
		)
		w.settle(path, err)
		return false
	}

	w.applied.Add(1)
	w.logger.Info("inbox document applied",
		"file", filepath.Base(path),
		"op", res.Op,
		"policy_id", res.PolicyID,
		"version", res.Version,
	)
	w.settle(path, nil)
	return true
}

// settle moves path to processed/ or rejected/. A rejected file gets a
// .reason sibling with the error text.
func (w *Watcher) settle(path string, cause error) {
	if w.config.Keep {
		return
	}
	sub := processedDir
	if cause != nil {
		sub = rejectedDir
	}
	dest := uniquePath(filepath.Join(w.config.Dir, sub, filepath.Base(path)))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Error("failed to move inbox file", "path", path, "dest", dest, "error", err)
		return
	}
	if cause != nil {
		if err := os.WriteFile(dest+reasonSuffix, []byte(cause.Error()+"\n"), 0o640); err != nil {
			w.logger.Error("failed to write rejection reason", "path", dest, "error", err)
		}
	}
}

func readDocument(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// One byte over the limit lets the decoder report the oversize document.
	return io.ReadAll(io.LimitReader(f, policy.MaxDocumentSize+1))
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", base, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

func shouldProcess(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return accepts(filepath.Base(event.Name))
}

// accepts reports whether name is a document the inbox handles. Hidden and
// editor temporary files are skipped.
func accepts(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".json")
}
