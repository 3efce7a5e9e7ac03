package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/policy"
)

// policyExt is the extension of signed policy and removal documents.
const policyExt = ".json"

// ErrNotCloned is returned by operations that need a local checkout.
var ErrNotCloned = errors.New("repository not initialized, call Clone() first")

// Repository is a local checkout of a policy repository.
type Repository struct {
	cfg   config.GitPolicyConfig
	dir   string
	auth  AuthProvider
	repo  *gogit.Repository
	mu    sync.RWMutex
	stats RepositoryStats
}

// NewRepository validates cfg and prepares a repository. Nothing touches the
// network until Clone.
func NewRepository(cfg *config.GitPolicyConfig) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if filepath.IsAbs(cfg.Path) || strings.HasPrefix(filepath.Clean(cfg.Path), "..") {
		return nil, fmt.Errorf("policy path %q must be relative to the repository root", cfg.Path)
	}

	auth, err := NewAuthProvider(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	dir := cfg.Clone.LocalPath
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "governor-policies")
	}

	return &Repository{cfg: *cfg, dir: dir, auth: auth}, nil
}

// Clone checks the repository out into the local path. An existing checkout
// is reused unless CleanOnStart is set.
func (r *Repository) Clone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() { r.stats.CloneDuration = time.Since(start) }()

	if r.cfg.Clone.CleanOnStart {
		if err := os.RemoveAll(r.dir); err != nil {
			return fmt.Errorf("failed to clean existing repository: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(r.dir, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.dir)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		r.repo = repo
		return nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	auth, err := r.auth.Method()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	cloneCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, r.dir, false, &gogit.CloneOptions{
		URL:           r.cfg.Repository,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Depth:         r.cfg.Clone.Depth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	r.repo = repo
	return nil
}

// Pull fast-forwards the checkout and reports which files changed.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.stats.PullDuration = time.Since(start)
		r.stats.LastPullTime = time.Now()
	}()

	if r.repo == nil {
		return nil, ErrNotCloned
	}

	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	from := head.Hash().String()

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	auth, err := r.auth.Method()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth: %w", err)
	}

	pullCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = wt.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		r.stats.FailedPulls++
		return nil, fmt.Errorf("failed to pull: %w", err)
	}
	r.stats.SuccessfulPulls++

	head, err = r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get new HEAD: %w", err)
	}
	to := head.Hash().String()

	res := &PullResult{FromSHA: from, ToSHA: to, HadChanges: from != to}
	if res.HadChanges {
		if res.ChangedFiles, err = r.changedFiles(from, to); err != nil {
			return nil, fmt.Errorf("failed to get changed files: %w", err)
		}
		r.stats.LastCommitSHA = to
	}
	return res, nil
}

// Head returns metadata about the checked out commit.
func (r *Repository) Head() (*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return r.commitInfo(c), nil
}

// PolicyFiles lists the policy documents under the configured path, as paths
// relative to the repository root, sorted. Hidden files and directories are
// skipped.
func (r *Repository) PolicyFiles() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	root := filepath.Join(r.dir, r.cfg.Path)
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("policy path does not exist: %w", err)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".") && path != root
		if d.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || filepath.Ext(path) != policyExt {
			return nil
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk policy directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// IsPolicyFile reports whether a repository-relative path names a policy
// document under the configured path.
func (r *Repository) IsPolicyFile(rel string) bool {
	if filepath.Ext(rel) != policyExt {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	prefix := strings.Trim(filepath.ToSlash(r.cfg.Path), "/")
	if prefix == "" || prefix == "." {
		return true
	}
	return strings.HasPrefix(rel, prefix+"/")
}

// ReadFile reads a repository-relative file, refusing anything larger than a
// policy document may be.
func (r *Repository) ReadFile(rel string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, err := os.Open(filepath.Join(r.dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, policy.MaxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > policy.MaxDocumentSize {
		return nil, fmt.Errorf("%s: %w", rel, policy.ErrOversizePolicy)
	}
	return data, nil
}

// ChangedFiles returns the repository-relative paths that differ between two
// commits. Deleted files are reported under their old name.
func (r *Repository) ChangedFiles(fromSHA, toSHA string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changedFiles(fromSHA, toSHA)
}

func (r *Repository) changedFiles(fromSHA, toSHA string) ([]string, error) {
	if r.repo == nil {
		return nil, ErrNotCloned
	}
	fromTree, err := r.tree(fromSHA)
	if err != nil {
		return nil, fmt.Errorf("from commit: %w", err)
	}
	toTree, err := r.tree(toSHA)
	if err != nil {
		return nil, fmt.Errorf("to commit: %w", err)
	}
	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.To.Name != "" {
			files = append(files, ch.To.Name)
		} else {
			files = append(files, ch.From.Name)
		}
	}
	return files, nil
}

func (r *Repository) tree(sha string) (*object.Tree, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, err
	}
	return c.Tree()
}

// History returns up to limit commits reachable from HEAD, newest first.
func (r *Repository) History(limit int) ([]*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	iter, err := r.repo.Log(&gogit.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}
	defer iter.Close()

	var out []*CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if len(out) >= limit {
			return storer.ErrStop
		}
		out = append(out, r.commitInfo(c))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	return out, nil
}

// Stats returns a copy of the operation counters.
func (r *Repository) Stats() RepositoryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Dir returns the local checkout directory.
func (r *Repository) Dir() string {
	return r.dir
}

// PolicyDir returns the directory policy documents are read from.
func (r *Repository) PolicyDir() string {
	return filepath.Join(r.dir, r.cfg.Path)
}

func (r *Repository) commitInfo(c *object.Commit) *CommitInfo {
	return &CommitInfo{
		SHA:        c.Hash.String(),
		Author:     c.Author.Name,
		Email:      c.Author.Email,
		Timestamp:  c.Author.When,
		Message:    strings.TrimSpace(c.Message),
		Branch:     r.cfg.Branch,
		Repository: r.cfg.Repository,
	}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Poll.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.Poll.Timeout)
}
