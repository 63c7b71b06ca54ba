package storage

import (
	"context"
	"time"
)

// Archive persists snapshot payloads evicted from the hot store.
type Archive interface {
	Store(ctx context.Context, repo, hash string, data []byte) error
	Fetch(ctx context.Context, repo, hash string) ([]byte, error)
	Remove(ctx context.Context, repo, hash string) error
	// RemoveRepo drops every payload archived for a repository.
	RemoveRepo(ctx context.Context, repo string) error
	Close() error
}

// RetentionPolicy describes the hot-cache limits for a repository.
type RetentionPolicy struct {
	Repo           string
	HotCommitLimit int
	HotDuration    time.Duration
	Locked         bool
}

// RetentionDefaults provides fallback retention when no policy is configured.
type RetentionDefaults struct {
	HotCommitLimit int
	HotDuration    time.Duration
}

// Options control storage behaviour across backends.
type Options struct {
	Archive   Archive
	Retention RetentionDefaults
}

// WithRepo returns a copy of the policy bound to the provided repo name.
func (p RetentionPolicy) WithRepo(repo string) RetentionPolicy {
	p.Repo = repo
	return p
}

// Copy returns a shallow copy of the policy.
func (p RetentionPolicy) Copy() RetentionPolicy {
	return RetentionPolicy{
		Repo:           p.Repo,
		HotCommitLimit: p.HotCommitLimit,
		HotDuration:    p.HotDuration,
		Locked:         p.Locked,
	}
}

// selectForArchive picks which commits leave the hot store. Entries must be in
// commit order; pinned hashes (branch heads) always stay hot.
func selectForArchive(entries []retentionEntry, policy RetentionPolicy, now time.Time, pinned map[string]struct{}) []string {
	if policy.HotCommitLimit <= 0 && policy.HotDuration <= 0 {
		return nil
	}

	toArchive := make(map[string]struct{})
	if policy.HotDuration > 0 {
		cutoff := now.Add(-policy.HotDuration)
		for _, e := range entries {
			if e.archived {
				continue
			}
			if _, ok := pinned[e.hash]; ok {
				continue
			}
			if e.timestamp.Before(cutoff) {
				toArchive[e.hash] = struct{}{}
			}
		}
	}

	if policy.HotCommitLimit > 0 {
		remaining := make([]retentionEntry, 0, len(entries))
		for _, e := range entries {
			if e.archived {
				continue
			}
			if _, ok := toArchive[e.hash]; ok {
				continue
			}
			remaining = append(remaining, e)
		}
		excess := len(remaining) - policy.HotCommitLimit
		for i := 0; i < len(remaining) && excess > 0; i++ {
			if _, ok := pinned[remaining[i].hash]; ok {
				continue
			}
			toArchive[remaining[i].hash] = struct{}{}
			excess--
		}
	}

	result := make([]string, 0, len(toArchive))
	for _, e := range entries {
		if _, ok := toArchive[e.hash]; ok {
			result = append(result, e.hash)
		}
	}
	return result
}

type retentionEntry struct {
	hash      string
	timestamp time.Time
	archived  bool
}
