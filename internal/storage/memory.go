package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/onexay/contentvs/internal/types"
)

// Store defines the persistence operations of a content history backend. Every
// repository holds the independent, append-only history of one content item.
type Store interface {
	Commit(ctx context.Context, req CommitRequest) (CommitResult, error)
	Checkout(ctx context.Context, repo, hash string) (types.Commit, types.Snapshot, error)
	Diff(ctx context.Context, repo, from, to string) ([]types.FileChange, error)
	ListCommits(ctx context.Context, opts ListCommitsOptions) []types.Commit
	GetCommit(ctx context.Context, repo, hash string) (types.Commit, error)
	UpsertBranch(ctx context.Context, req BranchRequest) (types.Branch, error)
	ListBranches(ctx context.Context, repo string) []types.Branch
	GetBranch(ctx context.Context, repo, name string) (types.Branch, error)
	CreateTag(ctx context.Context, req TagRequest) (types.Tag, error)
	ListTags(ctx context.Context, repo string) []types.Tag
	GetTag(ctx context.Context, repo, name string) (types.Tag, error)
	SetPolicy(ctx context.Context, policy RetentionPolicy) (RetentionPolicy, error)
	GetPolicy(ctx context.Context, repo string) (RetentionPolicy, error)
	DeleteRepo(ctx context.Context, repo string) error
	Close() error
}

// memoryStore provides an in-memory backend for development and testing.
type memoryStore struct {
	mu            sync.RWMutex
	clock         func() time.Time
	commits       map[string]types.Commit
	contents      map[string]types.Snapshot
	repoCommits   map[string][]string
	branches      map[string]map[string]types.Branch // repo -> branch -> branch metadata
	tags          map[string]map[string]types.Tag    // repo -> tag -> tag metadata
	policies      map[string]RetentionPolicy
	defaultPolicy RetentionPolicy
	archive       Archive
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore(opts Options) Store {
	return &memoryStore{
		clock:         time.Now,
		commits:       make(map[string]types.Commit),
		contents:      make(map[string]types.Snapshot),
		repoCommits:   make(map[string][]string),
		branches:      make(map[string]map[string]types.Branch),
		tags:          make(map[string]map[string]types.Tag),
		policies:      make(map[string]RetentionPolicy),
		defaultPolicy: RetentionPolicy{HotCommitLimit: opts.Retention.HotCommitLimit, HotDuration: opts.Retention.HotDuration},
		archive:       opts.Archive,
	}
}

func (m *memoryStore) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if err := validateCommitRequest(req); err != nil {
		return CommitResult{}, err
	}

	branch := req.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repoBranches, ok := m.branches[req.Repo]
	if !ok {
		repoBranches = make(map[string]types.Branch)
		m.branches[req.Repo] = repoBranches
	}

	parent := req.Parent
	if parent == "" {
		if existing, ok := repoBranches[branch]; ok {
			parent = existing.Commit
		}
	}

	var previous types.Snapshot
	if parent != "" {
		commit, ok := m.commits[parent]
		if !ok || commit.Repo != req.Repo {
			return CommitResult{}, &types.NotFoundError{Resource: "commit", Key: parent}
		}
		snap, err := m.snapshotLocked(ctx, req.Repo, parent)
		if err != nil {
			return CommitResult{}, err
		}
		previous = snap
	}

	files := req.Files.Clone()
	contentHash := computeContentHash(files)
	now := m.clock().UTC()
	commitHash := computeCommitHash(req.Repo, branch, parent, contentHash, req.Message, now)

	if _, exists := m.commits[commitHash]; exists {
		return CommitResult{}, &types.ConflictError{Resource: "commit", Key: commitHash}
	}

	m.commits[commitHash] = types.Commit{
		Repo:        req.Repo,
		Branch:      branch,
		Hash:        commitHash,
		Parent:      parent,
		AuthorName:  req.AuthorName,
		AuthorID:    req.AuthorID,
		Message:     req.Message,
		ContentHash: contentHash,
		Timestamp:   now,
	}
	m.contents[commitHash] = files
	repoBranches[branch] = types.Branch{
		Repo:      req.Repo,
		Name:      branch,
		Commit:    commitHash,
		UpdatedAt: now,
	}
	m.repoCommits[req.Repo] = append(m.repoCommits[req.Repo], commitHash)

	m.applyRetentionLocked(ctx, req.Repo)

	return CommitResult{
		CommitHash: commitHash,
		Branch:     branch,
		Parent:     parent,
		CreatedAt:  now,
		Changes:    diffSnapshots(previous, files),
	}, nil
}

func (m *memoryStore) Checkout(ctx context.Context, repo, hash string) (types.Commit, types.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	commit, ok := m.commits[hash]
	if !ok || commit.Repo != repo {
		return types.Commit{}, nil, &types.NotFoundError{Resource: "commit", Key: hash}
	}
	snap, err := m.snapshotLocked(ctx, repo, hash)
	if err != nil {
		return types.Commit{}, nil, err
	}
	return commit, snap.Clone(), nil
}

func (m *memoryStore) snapshotLocked(ctx context.Context, repo, hash string) (types.Snapshot, error) {
	if snap, ok := m.contents[hash]; ok {
		return snap, nil
	}
	if m.archive == nil {
		return nil, &types.NotFoundError{Resource: "content", Key: hash}
	}
	data, err := m.archive.Fetch(ctx, repo, hash)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func (m *memoryStore) Diff(ctx context.Context, repo, from, to string) ([]types.FileChange, error) {
	_, before, err := m.Checkout(ctx, repo, from)
	if err != nil {
		return nil, err
	}
	_, after, err := m.Checkout(ctx, repo, to)
	if err != nil {
		return nil, err
	}
	return diffSnapshots(before, after), nil
}

func (m *memoryStore) ListCommits(_ context.Context, opts ListCommitsOptions) []types.Commit {
	m.mu.RLock()
	defer m.mu.RUnlock()

	commitHashes, ok := m.repoCommits[opts.Repo]
	if !ok {
		return []types.Commit{}
	}

	result := make([]types.Commit, 0, len(commitHashes))
	limit := opts.Limit
	appendCommit := func(hash string) {
		if commit, ok := m.commits[hash]; ok {
			result = append(result, commit)
		}
	}

	if opts.Descending {
		for i := len(commitHashes) - 1; i >= 0; i-- {
			appendCommit(commitHashes[i])
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	} else {
		for _, hash := range commitHashes {
			appendCommit(hash)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}

	return result
}

func (m *memoryStore) GetCommit(_ context.Context, repo, hash string) (types.Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	commit, ok := m.commits[hash]
	if !ok || commit.Repo != repo {
		return types.Commit{}, &types.NotFoundError{Resource: "commit", Key: hash}
	}
	return commit, nil
}

func (m *memoryStore) DeleteRepo(ctx context.Context, repo string) error {
	if repo == "" {
		return &types.ValidationError{Message: "repository name is required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hash := range m.repoCommits[repo] {
		delete(m.commits, hash)
		delete(m.contents, hash)
	}
	delete(m.repoCommits, repo)
	delete(m.branches, repo)
	delete(m.tags, repo)
	delete(m.policies, repo)

	if m.archive != nil {
		return m.archive.RemoveRepo(ctx, repo)
	}
	return nil
}

func (m *memoryStore) Close() error {
	if m.archive != nil {
		return m.archive.Close()
	}
	return nil
}

func (m *memoryStore) SetPolicy(ctx context.Context, policy RetentionPolicy) (RetentionPolicy, error) {
	if err := validatePolicy(policy); err != nil {
		return RetentionPolicy{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.policies[policy.Repo]
	if ok && existing.Locked && (existing.HotCommitLimit != policy.HotCommitLimit || existing.HotDuration != policy.HotDuration) {
		return existing.Copy(), &types.ConflictError{Resource: "policy", Key: policy.Repo}
	}

	policy.Locked = true
	m.policies[policy.Repo] = policy
	m.applyRetentionLocked(ctx, policy.Repo)
	return policy.Copy(), nil
}

func (m *memoryStore) GetPolicy(_ context.Context, repo string) (RetentionPolicy, error) {
	if repo == "" {
		return RetentionPolicy{}, &types.ValidationError{Message: "repository name is required"}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPolicyLocked(repo), nil
}

func (m *memoryStore) getPolicyLocked(repo string) RetentionPolicy {
	if policy, ok := m.policies[repo]; ok {
		return policy.Copy()
	}
	return m.defaultPolicy.WithRepo(repo)
}

func (m *memoryStore) applyRetentionLocked(ctx context.Context, repo string) {
	if m.archive == nil {
		return
	}
	hashes := m.repoCommits[repo]
	entries := make([]retentionEntry, 0, len(hashes))
	for _, hash := range hashes {
		commit := m.commits[hash]
		entries = append(entries, retentionEntry{hash: hash, timestamp: commit.Timestamp, archived: commit.Archived})
	}
	pinned := make(map[string]struct{})
	for _, b := range m.branches[repo] {
		pinned[b.Commit] = struct{}{}
	}

	for _, hash := range selectForArchive(entries, m.getPolicyLocked(repo), m.clock(), pinned) {
		m.flushCommitLocked(ctx, repo, hash)
	}
}

func (m *memoryStore) flushCommitLocked(ctx context.Context, repo, hash string) {
	commit, ok := m.commits[hash]
	if !ok || commit.Archived {
		return
	}
	snap, ok := m.contents[hash]
	if !ok {
		commit.Archived = true
		m.commits[hash] = commit
		return
	}
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return
	}
	if err := m.archive.Store(ctx, repo, hash, payload); err != nil {
		return
	}
	delete(m.contents, hash)
	commit.Archived = true
	m.commits[hash] = commit
}

func (m *memoryStore) UpsertBranch(_ context.Context, req BranchRequest) (types.Branch, error) {
	if req.Repo == "" || req.Name == "" || req.Commit == "" {
		return types.Branch{}, &types.ValidationError{Message: "repo, name, and commit are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	commit, ok := m.commits[req.Commit]
	if !ok || commit.Repo != req.Repo {
		return types.Branch{}, &types.NotFoundError{Resource: "commit", Key: req.Commit}
	}

	repoBranches, ok := m.branches[req.Repo]
	if !ok {
		repoBranches = make(map[string]types.Branch)
		m.branches[req.Repo] = repoBranches
	}

	branch := types.Branch{
		Repo:      req.Repo,
		Name:      req.Name,
		Commit:    req.Commit,
		UpdatedAt: m.clock().UTC(),
	}

	repoBranches[req.Name] = branch
	return branch, nil
}

func (m *memoryStore) ListBranches(_ context.Context, repo string) []types.Branch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repoBranches, ok := m.branches[repo]
	if !ok {
		return []types.Branch{}
	}

	names := make([]string, 0, len(repoBranches))
	for name := range repoBranches {
		names = append(names, name)
	}
	slices.Sort(names)
	result := make([]types.Branch, 0, len(names))
	for _, name := range names {
		result = append(result, repoBranches[name])
	}
	return result
}

func (m *memoryStore) GetBranch(_ context.Context, repo, name string) (types.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	branch, ok := m.branches[repo][name]
	if !ok {
		return types.Branch{}, &types.NotFoundError{Resource: "branch", Key: name}
	}
	return branch, nil
}

func (m *memoryStore) CreateTag(_ context.Context, req TagRequest) (types.Tag, error) {
	if req.Repo == "" || req.Name == "" || req.Commit == "" {
		return types.Tag{}, &types.ValidationError{Message: "repo, name, and commit are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	commit, ok := m.commits[req.Commit]
	if !ok || commit.Repo != req.Repo {
		return types.Tag{}, &types.NotFoundError{Resource: "commit", Key: req.Commit}
	}

	repoTags, ok := m.tags[req.Repo]
	if !ok {
		repoTags = make(map[string]types.Tag)
		m.tags[req.Repo] = repoTags
	}

	if _, exists := repoTags[req.Name]; exists {
		return types.Tag{}, &types.ConflictError{Resource: "tag", Key: req.Name}
	}

	tag := types.Tag{
		Repo:      req.Repo,
		Name:      req.Name,
		Commit:    req.Commit,
		Note:      req.Note,
		CreatedAt: m.clock().UTC(),
	}

	repoTags[req.Name] = tag
	return tag, nil
}

func (m *memoryStore) ListTags(_ context.Context, repo string) []types.Tag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repoTags, ok := m.tags[repo]
	if !ok {
		return []types.Tag{}
	}

	names := make([]string, 0, len(repoTags))
	for name := range repoTags {
		names = append(names, name)
	}
	slices.Sort(names)
	result := make([]types.Tag, 0, len(names))
	for _, name := range names {
		result = append(result, repoTags[name])
	}
	return result
}

func (m *memoryStore) GetTag(_ context.Context, repo, name string) (types.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tag, ok := m.tags[repo][name]
	if !ok {
		return types.Tag{}, &types.NotFoundError{Resource: "tag", Key: name}
	}
	return tag, nil
}

func validatePolicy(policy RetentionPolicy) error {
	if policy.Repo == "" {
		return &types.ValidationError{Message: "repository name is required"}
	}
	if policy.HotCommitLimit < 0 {
		return &types.ValidationError{Message: "hotCommitLimit must be >= 0"}
	}
	if policy.HotDuration < 0 {
		return &types.ValidationError{Message: "hotDuration must be >= 0"}
	}
	return nil
}
