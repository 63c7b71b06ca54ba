package types

import (
	"sort"
	"time"
)

// Commit captures a repository version entry.
type Commit struct {
	Repo        string    `json:"repo"`
	Branch      string    `json:"branch"`
	Hash        string    `json:"hash"`
	Parent      string    `json:"parent,omitempty"`
	AuthorName  string    `json:"author"`
	AuthorID    string    `json:"authorId"`
	Message     string    `json:"message,omitempty"`
	ContentHash string    `json:"contentHash"`
	Timestamp   time.Time `json:"timestamp"`
	Archived    bool      `json:"archived"`
}

// Branch points to the latest commit for a repository branch.
type Branch struct {
	Repo      string    `json:"repo"`
	Name      string    `json:"name"`
	Commit    string    `json:"commit"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tag anchors a commit to a friendly label within a repository.
type Tag struct {
	Repo      string    `json:"repo"`
	Name      string    `json:"name"`
	Commit    string    `json:"commit"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is the full file set of one commit, keyed by slash separated relative path.
type Snapshot map[string]string

// Paths returns the snapshot paths in lexical order.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ChangeKind describes how a path differs between two commits.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// FileChange is one entry of a diff between two commits.
type FileChange struct {
	Path   string     `json:"path"`
	Change ChangeKind `json:"change"`
	Diff   string     `json:"diff,omitempty"`
}

// Actor identifies the user performing an operation. Identities come from the
// authentication layer; roles are matched against the authorization policies.
type Actor struct {
	ID       uint     `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
}

// IsAnonymous reports whether no user is attached.
func (a Actor) IsAnonymous() bool {
	return a.ID == 0
}
