package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
	"nanogov/governor/pkg/policy/store"
)

// Applier is the store surface the syncer drives.
type Applier interface {
	Apply(data []byte, v signature.Verifier) (store.Result, error)
}

// Syncer keeps the policy store in step with a repository. On start it
// applies every policy document in the checkout; afterwards it polls the
// remote and applies only the documents a new commit touched.
//
// Each document is admitted on its own, so a rejected file never blocks its
// siblings and never unseats a policy that is already active. Deleting a file
// does not retire its policy; commit a signed removal request instead.
//
//	syncer := git.NewSyncer(repo, st, verifier, interval, logger)
//	if err := syncer.Start(ctx); err != nil {
//	    return err
//	}
//	defer syncer.Stop()
type Syncer struct {
	repo     *Repository
	target   Applier
	verifier signature.Verifier
	interval time.Duration
	logger   *slog.Logger

	mu         sync.RWMutex
	running    bool
	lastCommit string
	lastResult *SyncResult
	stats      SyncerStats

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSyncer creates a syncer polling repo every interval.
func NewSyncer(repo *Repository, target Applier, verifier signature.Verifier, interval time.Duration, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		repo:     repo,
		target:   target,
		verifier: verifier,
		interval: interval,
		logger:   logger.With("component", "policy-git"),
	}
}

// Start performs the initial full sync and begins polling in the background.
// The repository must already be cloned.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("syncer already running")
	}
	s.mu.Unlock()

	res, err := s.Sync()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("syncer started",
		"poll_interval", s.interval,
		"commit", shortSHA(res.Commit),
		"applied", len(res.Applied),
		"rejected", len(res.Rejected))

	go s.pollLoop(ctx)
	return nil
}

// Stop ends the poll loop and waits for it to exit.
func (s *Syncer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("syncer not running")
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("syncer stopped")
	return nil
}

// IsRunning reports whether the poll loop is active.
func (s *Syncer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Sync applies every policy document at the current HEAD.
func (s *Syncer) Sync() (*SyncResult, error) {
	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD: %w", err)
	}
	files, err := s.repo.PolicyFiles()
	if err != nil {
		return nil, err
	}
	return s.apply(head.SHA, files), nil
}

// ForceCheck pulls once without waiting for the next tick. It returns a nil
// result when the remote has nothing new.
func (s *Syncer) ForceCheck(ctx context.Context) (*SyncResult, error) {
	if !s.IsRunning() {
		return nil, fmt.Errorf("syncer not running")
	}
	return s.check(ctx)
}

func (s *Syncer) pollLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.check(ctx); err != nil {
				s.logger.Error("policy sync failed", "error", err)
			}
		}
	}
}

func (s *Syncer) check(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	s.stats.Polls++
	s.mu.Unlock()

	pulled, err := s.repo.Pull(ctx)
	if err != nil {
		return nil, err
	}
	if !pulled.HadChanges {
		return nil, nil
	}

	var files []string
	for _, f := range pulled.ChangedFiles {
		if !s.repo.IsPolicyFile(f) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.repo.Dir(), filepath.FromSlash(f))); err != nil {
			// Deleted in this commit.
			continue
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		s.mu.Lock()
		s.stats.SkippedPolls++
		s.lastCommit = pulled.ToSHA
		s.mu.Unlock()
		s.logger.Info("no policy documents changed",
			"from_sha", shortSHA(pulled.FromSHA),
			"to_sha", shortSHA(pulled.ToSHA),
			"changed_files", len(pulled.ChangedFiles))
		return nil, nil
	}

	return s.apply(pulled.ToSHA, files), nil
}

// apply feeds each file to the store and records the outcome.
func (s *Syncer) apply(commit string, files []string) *SyncResult {
	res := &SyncResult{Commit: commit, Time: time.Now(), Rejected: map[string]string{}}

	for _, f := range files {
		data, err := s.repo.ReadFile(f)
		if err != nil {
			res.Rejected[f] = err.Error()
			s.logger.Warn("policy document unreadable", "file", f, "error", err)
			continue
		}
		out, err := s.target.Apply(data, s.verifier)
		switch {
		case err == nil:
			res.Applied = append(res.Applied, f)
			s.logger.Info("policy document applied",
				"file", f,
				"op", out.Op,
				"policy_id", out.PolicyID,
				"version", out.Version,
				"commit", shortSHA(commit))
		case errors.Is(err, policy.ErrDuplicateIdentifier), errors.Is(err, policy.ErrReplayedRequest):
			res.Unchanged = append(res.Unchanged, f)
		default:
			res.Rejected[f] = string(policy.ReasonOf(err))
			s.logger.Warn("policy document rejected",
				"file", f,
				"policy_id", out.PolicyID,
				"reason", policy.ReasonOf(err),
				"error", err,
				"commit", shortSHA(commit))
		}
	}

	s.mu.Lock()
	s.lastCommit = commit
	s.lastResult = res
	s.stats.Syncs++
	s.stats.Applied += int64(len(res.Applied))
	s.stats.Rejected += int64(len(res.Rejected))
	s.stats.LastSync = res.Time
	s.mu.Unlock()
	return res
}

// LastCommit returns the SHA the store was last synced from.
func (s *Syncer) LastCommit() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCommit
}

// LastResult returns the outcome of the most recent sync, or nil.
func (s *Syncer) LastResult() *SyncResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// Stats returns a copy of the syncer counters.
func (s *Syncer) Stats() SyncerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
