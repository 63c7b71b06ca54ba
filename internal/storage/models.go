package storage

import (
	"time"

	"github.com/onexay/contentvs/internal/types"
)

// CommitRequest describes a full-snapshot submission for one content repository.
type CommitRequest struct {
	Repo string
	// Branch defaults to "draft".
	Branch string
	// Parent is the commit the snapshot derives from. Empty means the branch head.
	Parent     string
	Files      types.Snapshot
	Message    string
	AuthorName string
	AuthorID   string
}

// CommitResult summarises the commit created by a snapshot submission.
type CommitResult struct {
	CommitHash string
	Branch     string
	Parent     string
	CreatedAt  time.Time
	Changes    []types.FileChange
}

// DefaultBranch is the branch every content history grows on.
const DefaultBranch = "draft"

// ListCommitsOptions controls history retrieval.
type ListCommitsOptions struct {
	Repo       string
	Descending bool
	Limit      int
}

// BranchRequest is used to create or update a branch pointer.
type BranchRequest struct {
	Repo   string
	Name   string
	Commit string
}

// TagRequest is used to create a tag.
type TagRequest struct {
	Repo   string
	Name   string
	Commit string
	Note   string
}

func validateCommitRequest(req CommitRequest) error {
	if req.Repo == "" {
		return &types.ValidationError{Message: "repository name is required"}
	}
	if len(req.Files) == 0 {
		return &types.ValidationError{Message: "snapshot is empty"}
	}
	if req.AuthorName == "" || req.AuthorID == "" {
		return &types.ValidationError{Message: "author name and id are required"}
	}
	return nil
}
