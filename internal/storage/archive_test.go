package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onexay/contentvs/internal/types"
)

func TestBoltArchiveRoundTrip(t *testing.T) {
	archive, err := NewBoltArchive(filepath.Join(t.TempDir(), "nested", "archive.db"))
	if err != nil {
		t.Fatalf("NewBoltArchive: %v", err)
	}
	defer archive.Close()
	ctx := context.Background()

	if err := archive.Store(ctx, "repo", "abc", []byte("payload")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	data, err := archive.Fetch(ctx, "repo", "abc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected payload %q", data)
	}

	if _, err := archive.Fetch(ctx, "other", "abc"); !isNotFound(err) {
		t.Fatalf("expected not found for unknown repo, got %v", err)
	}

	if err := archive.RemoveRepo(ctx, "repo"); err != nil {
		t.Fatalf("RemoveRepo: %v", err)
	}
	if _, err := archive.Fetch(ctx, "repo", "abc"); !isNotFound(err) {
		t.Fatalf("expected not found after RemoveRepo, got %v", err)
	}
	if err := archive.RemoveRepo(ctx, "repo"); err != nil {
		t.Fatalf("RemoveRepo on missing repo: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := archive.Store(cancelled, "repo", "abc", []byte("x")); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestDiffSnapshots(t *testing.T) {
	before := types.Snapshot{"keep.md": "same", "edit.md": "one\n", "gone.md": "bye"}
	after := types.Snapshot{"keep.md": "same", "edit.md": "two\n", "new.md": "hi"}

	changes := diffSnapshots(before, after)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %+v", changes)
	}
	want := []struct {
		path string
		kind types.ChangeKind
	}{
		{"edit.md", types.ChangeModified},
		{"gone.md", types.ChangeDeleted},
		{"new.md", types.ChangeAdded},
	}
	for i, w := range want {
		if changes[i].Path != w.path || changes[i].Change != w.kind {
			t.Fatalf("change %d: expected %s %s, got %s %s", i, w.kind, w.path, changes[i].Change, changes[i].Path)
		}
	}
	if !strings.Contains(changes[0].Diff, "-one") || !strings.Contains(changes[0].Diff, "+two") {
		t.Fatalf("unexpected unified diff:\n%s", changes[0].Diff)
	}
	if !strings.Contains(changes[0].Diff, "a/edit.md") {
		t.Fatalf("expected file headers in diff:\n%s", changes[0].Diff)
	}
}

func TestContentHashIgnoresMapOrder(t *testing.T) {
	a := types.Snapshot{"x.md": "1", "y.md": "2"}
	b := types.Snapshot{"y.md": "2", "x.md": "1"}
	if computeContentHash(a) != computeContentHash(b) {
		t.Fatalf("content hash must not depend on insertion order")
	}
	// Path and body boundaries are part of the digest.
	if computeContentHash(types.Snapshot{"ab": "c"}) == computeContentHash(types.Snapshot{"a": "bc"}) {
		t.Fatalf("distinct snapshots must hash differently")
	}
}
