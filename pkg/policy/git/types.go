package git

import (
	"time"
)

// CommitInfo contains metadata about a Git commit.
type CommitInfo struct {
	SHA        string    `json:"sha"`
	Author     string    `json:"author"`
	Email      string    `json:"email"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	Branch     string    `json:"branch"`
	Repository string    `json:"repository"`
}

// Short returns the abbreviated SHA used in log lines.
func (c *CommitInfo) Short() string {
	return shortSHA(c.SHA)
}

// PullResult contains the result of a pull operation.
type PullResult struct {
	FromSHA      string
	ToSHA        string
	ChangedFiles []string
	HadChanges   bool
}

// RepositoryStats tracks Git operation timings and counts.
type RepositoryStats struct {
	CloneDuration   time.Duration
	PullDuration    time.Duration
	LastCommitSHA   string
	LastPullTime    time.Time
	FailedPulls     int64
	SuccessfulPulls int64
}

// SyncResult describes one pass of the syncer over a set of policy files.
// Paths are relative to the repository root.
type SyncResult struct {
	Commit    string            `json:"commit"`
	Applied   []string          `json:"applied,omitempty"`
	Unchanged []string          `json:"unchanged,omitempty"`
	Rejected  map[string]string `json:"rejected,omitempty"`
	Time      time.Time         `json:"time"`
}

// SyncerStats tracks syncer activity.
type SyncerStats struct {
	Polls        int64
	Syncs        int64
	Applied      int64
	Rejected     int64
	SkippedPolls int64
	LastSync     time.Time
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
