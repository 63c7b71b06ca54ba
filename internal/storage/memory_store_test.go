package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onexay/contentvs/internal/types"
)

func snapshotV1() types.Snapshot {
	return types.Snapshot{
		"manifest.json":   `{"version":"2.1"}`,
		"introduction.md": "hello",
	}
}

func snapshotV2() types.Snapshot {
	return types.Snapshot{
		"manifest.json":   `{"version":"2.1"}`,
		"introduction.md": "hello world",
		"part-one.md":     "first extract",
	}
}

// exerciseStore runs the history scenarios shared by every backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	first, err := store.Commit(ctx, CommitRequest{Repo: "repo", Files: snapshotV1(), Message: "create", AuthorName: "Alice", AuthorID: "1"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if first.CommitHash == "" {
		t.Fatalf("expected commit hash")
	}
	if first.Branch != DefaultBranch {
		t.Fatalf("expected default branch, got %q", first.Branch)
	}
	if first.Parent != "" {
		t.Fatalf("first commit must not have a parent")
	}
	if len(first.Changes) != 2 {
		t.Fatalf("expected 2 added files, got %d", len(first.Changes))
	}

	second, err := store.Commit(ctx, CommitRequest{Repo: "repo", Files: snapshotV2(), Message: "edit", AuthorName: "Alice", AuthorID: "1"})
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if second.Parent != first.CommitHash {
		t.Fatalf("expected parent %s, got %s", first.CommitHash, second.Parent)
	}
	kinds := map[string]types.ChangeKind{}
	for _, c := range second.Changes {
		kinds[c.Path] = c.Change
	}
	if kinds["introduction.md"] != types.ChangeModified || kinds["part-one.md"] != types.ChangeAdded {
		t.Fatalf("unexpected changes: %+v", second.Changes)
	}

	commit, snap, err := store.Checkout(ctx, "repo", first.CommitHash)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if commit.Message != "create" || snap["introduction.md"] != "hello" {
		t.Fatalf("unexpected checkout of first commit: %+v %v", commit, snap)
	}
	if _, ok := snap["part-one.md"]; ok {
		t.Fatalf("first snapshot must not see later files")
	}

	snap["introduction.md"] = "mutated"
	_, again, err := store.Checkout(ctx, "repo", first.CommitHash)
	if err != nil {
		t.Fatalf("Checkout again: %v", err)
	}
	if again["introduction.md"] != "hello" {
		t.Fatalf("checkout must return an independent copy")
	}

	changes, err := store.Diff(ctx, "repo", first.CommitHash, second.CommitHash)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}

	if _, _, err := store.Checkout(ctx, "repo", "unknown"); !isNotFound(err) {
		t.Fatalf("expected not found for unknown commit, got %v", err)
	}
	if _, _, err := store.Checkout(ctx, "other", first.CommitHash); !isNotFound(err) {
		t.Fatalf("expected not found for commit of another repo, got %v", err)
	}

	if _, err := store.Commit(ctx, CommitRequest{Repo: "repo", Parent: "missing", Files: snapshotV1(), AuthorName: "Alice", AuthorID: "1"}); !isNotFound(err) {
		t.Fatalf("expected not found for unknown parent, got %v", err)
	}

	var verr *types.ValidationError
	if _, err := store.Commit(ctx, CommitRequest{Repo: "repo", AuthorName: "Alice", AuthorID: "1"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty snapshot, got %v", err)
	}

	commits := store.ListCommits(ctx, ListCommitsOptions{Repo: "repo", Descending: true, Limit: 1})
	if len(commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(commits))
	}
	if commits[0].Hash != second.CommitHash {
		t.Fatalf("expected newest commit returned")
	}
	if commits[0].AuthorName != "Alice" || commits[0].AuthorID != "1" {
		t.Fatalf("unexpected author metadata")
	}

	branch, err := store.UpsertBranch(ctx, BranchRequest{Repo: "repo", Name: "public", Commit: first.CommitHash})
	if err != nil {
		t.Fatalf("UpsertBranch: %v", err)
	}
	if branch.Commit != first.CommitHash {
		t.Fatalf("unexpected branch commit")
	}
	if branches := store.ListBranches(ctx, "repo"); len(branches) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(branches))
	}

	tag, err := store.CreateTag(ctx, TagRequest{Repo: "repo", Name: "v1", Commit: second.CommitHash})
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if tag.Name != "v1" {
		t.Fatalf("unexpected tag name")
	}
	var cerr *types.ConflictError
	if _, err := store.CreateTag(ctx, TagRequest{Repo: "repo", Name: "v1", Commit: first.CommitHash}); !errors.As(err, &cerr) {
		t.Fatalf("expected conflict on duplicate tag, got %v", err)
	}
	if tags := store.ListTags(ctx, "repo"); len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(tags))
	}

	defaultPolicy, err := store.GetPolicy(ctx, "unconfigured")
	if err != nil {
		t.Fatalf("GetPolicy (default): %v", err)
	}
	if defaultPolicy.Repo != "unconfigured" {
		t.Fatalf("unexpected repo in default policy")
	}

	policy, err := store.SetPolicy(ctx, RetentionPolicy{Repo: "repo", HotCommitLimit: 1})
	if err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	if !policy.Locked || policy.HotCommitLimit != 1 {
		t.Fatalf("unexpected policy response")
	}
	if _, err := store.SetPolicy(ctx, RetentionPolicy{Repo: "repo", HotCommitLimit: 5}); !errors.As(err, &cerr) {
		t.Fatalf("expected conflict when changing a locked policy, got %v", err)
	}

	// Snapshots moved to the archive stay readable.
	_, archived, err := store.Checkout(ctx, "repo", first.CommitHash)
	if err != nil {
		t.Fatalf("Checkout after retention: %v", err)
	}
	if archived["introduction.md"] != "hello" {
		t.Fatalf("unexpected archived snapshot: %v", archived)
	}

	if err := store.DeleteRepo(ctx, "repo"); err != nil {
		t.Fatalf("DeleteRepo: %v", err)
	}
	if commits := store.ListCommits(ctx, ListCommitsOptions{Repo: "repo"}); len(commits) != 0 {
		t.Fatalf("expected empty history after delete, got %d", len(commits))
	}
	if _, err := store.GetBranch(ctx, "repo", DefaultBranch); !isNotFound(err) {
		t.Fatalf("expected branch to be gone, got %v", err)
	}
}

func isNotFound(err error) bool {
	var nf *types.NotFoundError
	return errors.As(err, &nf)
}

func TestMemoryStoreCommitAndCheckout(t *testing.T) {
	exerciseStore(t, NewMemoryStore(Options{Archive: NewMemoryArchive()}))
}

func TestMemoryStoreRetentionKeepsBranchHeadsHot(t *testing.T) {
	archive := NewMemoryArchive()
	store := NewMemoryStore(Options{Archive: archive, Retention: RetentionDefaults{HotCommitLimit: 1}}).(*memoryStore)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var hashes []string
	for _, body := range []string{"a", "b", "c"} {
		res, err := store.Commit(ctx, CommitRequest{Repo: "repo", Files: types.Snapshot{"introduction.md": body}, AuthorName: "Alice", AuthorID: "1"})
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		hashes = append(hashes, res.CommitHash)
	}

	if n := archive.Len("repo"); n != 2 {
		t.Fatalf("expected 2 archived snapshots, got %d", n)
	}
	if _, ok := store.contents[hashes[2]]; !ok {
		t.Fatalf("branch head must stay hot")
	}

	for i, body := range []string{"a", "b", "c"} {
		_, snap, err := store.Checkout(ctx, "repo", hashes[i])
		if err != nil {
			t.Fatalf("Checkout %d: %v", i, err)
		}
		if snap["introduction.md"] != body {
			t.Fatalf("commit %d: expected %q, got %q", i, body, snap["introduction.md"])
		}
	}
}

func TestMemoryStoreExplicitParentMovesBranch(t *testing.T) {
	store := NewMemoryStore(Options{})
	ctx := context.Background()

	first, err := store.Commit(ctx, CommitRequest{Repo: "repo", Files: types.Snapshot{"a.md": "1"}, AuthorName: "Alice", AuthorID: "1"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := store.Commit(ctx, CommitRequest{Repo: "repo", Files: types.Snapshot{"a.md": "2"}, AuthorName: "Alice", AuthorID: "1"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	third, err := store.Commit(ctx, CommitRequest{Repo: "repo", Parent: first.CommitHash, Files: types.Snapshot{"a.md": "3"}, AuthorName: "Bob", AuthorID: "2"})
	if err != nil {
		t.Fatalf("Commit with parent: %v", err)
	}
	if third.Parent != first.CommitHash {
		t.Fatalf("expected explicit parent to be kept")
	}

	head, err := store.GetBranch(ctx, "repo", DefaultBranch)
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	if head.Commit != third.CommitHash {
		t.Fatalf("expected branch to point at the latest commit")
	}
	if n := len(store.ListCommits(ctx, ListCommitsOptions{Repo: "repo"})); n != 3 {
		t.Fatalf("history must keep every commit, got %d", n)
	}
}
