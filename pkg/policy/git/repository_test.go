package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"nanogov/governor/pkg/config"
)

// sourceRepo is a non-bare repository standing in for the remote.
type sourceRepo struct {
	t    *testing.T
	dir  string
	repo *gogit.Repository
}

func newSourceRepo(t *testing.T) *sourceRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	s := &sourceRepo{t: t, dir: dir, repo: repo}
	s.commit("initial commit", map[string][]byte{"README.md": []byte("policies\n")})
	return s
}

// commit writes files (a nil value deletes) and commits them.
func (s *sourceRepo) commit(msg string, files map[string][]byte) string {
	s.t.Helper()
	wt, err := s.repo.Worktree()
	if err != nil {
		s.t.Fatalf("failed to get worktree: %v", err)
	}
	for name, data := range files {
		path := filepath.Join(s.dir, filepath.FromSlash(name))
		if data == nil {
			if _, err := wt.Remove(name); err != nil {
				s.t.Fatalf("failed to remove %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			s.t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			s.t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			s.t.Fatalf("failed to add %s: %v", name, err)
		}
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Policy Bot", Email: "bot@example.com", When: time.Now()},
	})
	if err != nil {
		s.t.Fatalf("failed to commit: %v", err)
	}
	return hash.String()
}

func testGitConfig(source, local string) *config.GitPolicyConfig {
	return &config.GitPolicyConfig{
		Enabled:    true,
		Repository: source,
		Branch:     "master",
		Path:       "policies",
		Auth:       config.GitAuthConfig{Type: "none"},
		Poll:       config.GitPollConfig{Interval: time.Second, Timeout: 10 * time.Second},
		Clone:      config.GitCloneConfig{LocalPath: local},
	}
}

func clonedRepo(t *testing.T, src *sourceRepo) *Repository {
	t.Helper()
	r, err := NewRepository(testGitConfig(src.dir, filepath.Join(t.TempDir(), "checkout")))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	if err := r.Clone(context.Background()); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	return r
}

func TestNewRepository(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.GitPolicyConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*config.GitPolicyConfig) {}},
		{name: "empty repository", mutate: func(c *config.GitPolicyConfig) { c.Repository = "" }, wantErr: true},
		{name: "empty branch", mutate: func(c *config.GitPolicyConfig) { c.Branch = "" }, wantErr: true},
		{name: "absolute path", mutate: func(c *config.GitPolicyConfig) { c.Path = "/etc" }, wantErr: true},
		{name: "escaping path", mutate: func(c *config.GitPolicyConfig) { c.Path = "../other" }, wantErr: true},
		{name: "bad auth", mutate: func(c *config.GitPolicyConfig) { c.Auth.Type = "oauth" }, wantErr: true},
		{name: "default local path", mutate: func(c *config.GitPolicyConfig) { c.Clone.LocalPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testGitConfig("https://example.com/policies.git", t.TempDir())
			tt.mutate(cfg)
			r, err := NewRepository(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRepository() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && r.Dir() == "" {
				t.Error("expected a local directory")
			}
		})
	}

	if _, err := NewRepository(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestRepository_NotCloned(t *testing.T) {
	r, err := NewRepository(testGitConfig("https://example.com/policies.git", t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Head(); !errors.Is(err, ErrNotCloned) {
		t.Errorf("Head() error = %v, want ErrNotCloned", err)
	}
	if _, err := r.Pull(context.Background()); !errors.Is(err, ErrNotCloned) {
		t.Errorf("Pull() error = %v, want ErrNotCloned", err)
	}
	if _, err := r.History(5); !errors.Is(err, ErrNotCloned) {
		t.Errorf("History() error = %v, want ErrNotCloned", err)
	}
}

func TestRepository_CloneAndHead(t *testing.T) {
	src := newSourceRepo(t)
	sha := src.commit("add policy", map[string][]byte{"policies/a.json": []byte("{}")})

	r := clonedRepo(t, src)
	if r.Stats().CloneDuration == 0 {
		t.Error("Clone() did not record duration")
	}

	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.SHA != sha {
		t.Errorf("Head().SHA = %s, want %s", head.SHA, sha)
	}
	if head.Message != "add policy" || head.Author != "Policy Bot" || head.Branch != "master" {
		t.Errorf("unexpected commit info: %+v", head)
	}
	if len(head.Short()) != 8 {
		t.Errorf("Short() = %q", head.Short())
	}
}

func TestRepository_CloneReusesCheckout(t *testing.T) {
	src := newSourceRepo(t)
	cfg := testGitConfig(src.dir, filepath.Join(t.TempDir(), "checkout"))

	first, err := NewRepository(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Clone(context.Background()); err != nil {
		t.Fatalf("first Clone() error = %v", err)
	}
	marker := filepath.Join(cfg.Clone.LocalPath, "marker")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	second, _ := NewRepository(cfg)
	if err := second.Clone(context.Background()); err != nil {
		t.Fatalf("second Clone() error = %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("reopening an existing checkout should keep its files")
	}

	cfg.Clone.CleanOnStart = true
	third, _ := NewRepository(cfg)
	if err := third.Clone(context.Background()); err != nil {
		t.Fatalf("clean Clone() error = %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("CleanOnStart should remove the old checkout")
	}
}

func TestRepository_CloneFailure(t *testing.T) {
	r, err := NewRepository(testGitConfig(filepath.Join(t.TempDir(), "nowhere"), filepath.Join(t.TempDir(), "checkout")))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Clone(context.Background()); err == nil {
		t.Fatal("expected clone of a missing repository to fail")
	}
}

func TestRepository_PolicyFiles(t *testing.T) {
	src := newSourceRepo(t)
	src.commit("layout", map[string][]byte{
		"policies/b.json":          []byte("{}"),
		"policies/a.json":          []byte("{}"),
		"policies/team/c.json":     []byte("{}"),
		"policies/notes.md":        []byte("x"),
		"policies/.draft.json":     []byte("{}"),
		"policies/.wip/d.json":     []byte("{}"),
		"elsewhere/ignored.json":   []byte("{}"),
		"policies/team/readme.txt": []byte("x"),
	})
	r := clonedRepo(t, src)

	files, err := r.PolicyFiles()
	if err != nil {
		t.Fatalf("PolicyFiles() error = %v", err)
	}
	want := []string{"policies/a.json", "policies/b.json", "policies/team/c.json"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("PolicyFiles() = %v, want %v", files, want)
	}
}

func TestRepository_IsPolicyFile(t *testing.T) {
	r, err := NewRepository(testGitConfig("https://example.com/p.git", t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]bool{
		"policies/a.json":         true,
		"policies/team/b.json":    true,
		"policies/a.yaml":         false,
		"policies/.hidden.json":   false,
		"policies/.wip/c.json":    false,
		"elsewhere/a.json":        false,
		"policies-old/a.json":     false,
		"policies/readme.md":      false,
		"policies/sub/dir/x.json": true,
	}
	for path, want := range tests {
		if got := r.IsPolicyFile(path); got != want {
			t.Errorf("IsPolicyFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestRepository_ReadFile(t *testing.T) {
	src := newSourceRepo(t)
	src.commit("docs", map[string][]byte{
		"policies/small.json": []byte(`{"id":"x"}`),
		"policies/huge.json":  []byte(strings.Repeat(" ", 17*1024)),
	})
	r := clonedRepo(t, src)

	data, err := r.ReadFile("policies/small.json")
	if err != nil || string(data) != `{"id":"x"}` {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
	if _, err := r.ReadFile("policies/huge.json"); err == nil {
		t.Error("expected oversize document to be refused")
	}
	if _, err := r.ReadFile("policies/absent.json"); !os.IsNotExist(err) {
		t.Errorf("ReadFile() missing error = %v", err)
	}
}

func TestRepository_PullAndChangedFiles(t *testing.T) {
	src := newSourceRepo(t)
	r := clonedRepo(t, src)

	res, err := r.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if res.HadChanges {
		t.Error("expected no changes on an up to date checkout")
	}

	from := res.ToSHA
	to := src.commit("two files", map[string][]byte{
		"policies/a.json": []byte("{}"),
		"README.md":       []byte("changed\n"),
	})

	res, err = r.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if !res.HadChanges || res.FromSHA != from || res.ToSHA != to {
		t.Fatalf("unexpected pull result: %+v", res)
	}
	got := strings.Join(res.ChangedFiles, ",")
	if !strings.Contains(got, "policies/a.json") || !strings.Contains(got, "README.md") {
		t.Errorf("ChangedFiles = %v", res.ChangedFiles)
	}

	files, err := r.ChangedFiles(from, to)
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Errorf("ChangedFiles() = %v", files)
	}

	stats := r.Stats()
	if stats.SuccessfulPulls != 2 || stats.LastCommitSHA != to {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRepository_History(t *testing.T) {
	src := newSourceRepo(t)
	src.commit("second", map[string][]byte{"policies/a.json": []byte("{}")})
	src.commit("third", map[string][]byte{"policies/b.json": []byte("{}")})
	r := clonedRepo(t, src)

	history, err := r.History(2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History(2) returned %d commits", len(history))
	}
	if history[0].Message != "third" || history[1].Message != "second" {
		t.Errorf("History order = %q, %q", history[0].Message, history[1].Message)
	}

	all, err := r.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("History(10) returned %d commits, want 3", len(all))
	}
}
