package storage

import (
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/onexay/contentvs/internal/types"
)

func computeDiff(path, previous, current string) string {
	if previous == current {
		return ""
	}

	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}

	res, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return strings.TrimSpace(current)
	}

	return strings.TrimSpace(res)
}

// diffSnapshots lists every path that differs between two snapshots, in path order.
func diffSnapshots(previous, current types.Snapshot) []types.FileChange {
	seen := make(map[string]struct{}, len(previous)+len(current))
	paths := make([]string, 0, len(previous)+len(current))
	for _, p := range previous.Paths() {
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	for _, p := range current.Paths() {
		if _, ok := seen[p]; !ok {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)

	changes := make([]types.FileChange, 0)
	for _, p := range paths {
		before, inPrev := previous[p]
		after, inCur := current[p]
		switch {
		case inPrev && !inCur:
			changes = append(changes, types.FileChange{Path: p, Change: types.ChangeDeleted, Diff: computeDiff(p, before, "")})
		case !inPrev && inCur:
			changes = append(changes, types.FileChange{Path: p, Change: types.ChangeAdded, Diff: computeDiff(p, "", after)})
		case before != after:
			changes = append(changes, types.FileChange{Path: p, Change: types.ChangeModified, Diff: computeDiff(p, before, after)})
		}
	}
	return changes
}
