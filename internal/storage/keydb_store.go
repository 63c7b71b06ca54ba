package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/onexay/contentvs/internal/types"
)

const (
	repoCommitsKeyPrefix = "repo:commits"
	maxCommitRetries     = 16
)

type keydbStore struct {
	client        *redis.Client
	clock         func() time.Time
	archive       Archive
	defaultPolicy RetentionPolicy
}

type retentionRecord struct {
	HotCommitLimit     int   `json:"hotCommitLimit,omitempty"`
	HotDurationSeconds int64 `json:"hotDurationSeconds,omitempty"`
	Locked             bool  `json:"locked"`
}

func (r retentionRecord) toPolicy(repo string) RetentionPolicy {
	return RetentionPolicy{
		Repo:           repo,
		HotCommitLimit: r.HotCommitLimit,
		HotDuration:    time.Duration(r.HotDurationSeconds) * time.Second,
		Locked:         r.Locked,
	}
}

// Config defines KeyDB connection settings.
type Config struct {
	Addr     string
	Username string
	Password string
	Database int
}

// NewKeyDBStore initializes a Store backed by KeyDB.
func NewKeyDBStore(cfg Config, opts Options) (Store, error) {
	client := NewRedisClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to keydb: %w", err)
	}

	return newKeyDBStoreWithClient(client, opts), nil
}

// NewRedisClient builds a client for the configured KeyDB endpoint without
// checking connectivity.
func NewRedisClient(cfg Config) *redis.Client {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	})
}

func newKeyDBStoreWithClient(client *redis.Client, opts Options) *keydbStore {
	return &keydbStore{
		client:        client,
		clock:         time.Now,
		archive:       opts.Archive,
		defaultPolicy: RetentionPolicy{HotCommitLimit: opts.Retention.HotCommitLimit, HotDuration: opts.Retention.HotDuration},
	}
}

func (s *keydbStore) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if err := validateCommitRequest(req); err != nil {
		return CommitResult{}, err
	}

	branch := req.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	branchKey := branchKey(req.Repo, branch)
	repoCommitsKey := repoCommitsKey(req.Repo)
	branchSet := branchSetKey(req.Repo)
	files := req.Files.Clone()

	var result CommitResult

	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			parent := req.Parent
			if parent == "" {
				branchBytes, err := tx.Get(ctx, branchKey).Bytes()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
				if err == nil {
					var branchMeta types.Branch
					if err := json.Unmarshal(branchBytes, &branchMeta); err != nil {
						return err
					}
					parent = branchMeta.Commit
				}
			}

			var previous types.Snapshot
			if parent != "" {
				if _, err := s.getCommitMetadata(ctx, req.Repo, parent); err != nil {
					return err
				}
				snap, err := s.loadSnapshot(ctx, req.Repo, parent)
				if err != nil {
					return err
				}
				previous = snap
			}

			contentHash := computeContentHash(files)
			now := s.clock().UTC()
			commitHash := computeCommitHash(req.Repo, branch, parent, contentHash, req.Message, now)

			exists, err := tx.Exists(ctx, commitKey(req.Repo, commitHash)).Result()
			if err != nil {
				return err
			}
			if exists == 1 {
				return &types.ConflictError{Resource: "commit", Key: commitHash}
			}

			payload, err := json.Marshal(types.Commit{
				Repo:        req.Repo,
				Branch:      branch,
				Hash:        commitHash,
				Parent:      parent,
				AuthorName:  req.AuthorName,
				AuthorID:    req.AuthorID,
				Message:     req.Message,
				ContentHash: contentHash,
				Timestamp:   now,
			})
			if err != nil {
				return err
			}
			snapshotPayload, err := encodeSnapshot(files)
			if err != nil {
				return err
			}
			branchPayload, err := json.Marshal(types.Branch{
				Repo:      req.Repo,
				Name:      branch,
				Commit:    commitHash,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, commitKey(req.Repo, commitHash), payload, 0)
				pipe.Set(ctx, contentKey(req.Repo, commitHash), snapshotPayload, 0)
				pipe.Set(ctx, branchKey, branchPayload, 0)
				pipe.SAdd(ctx, branchSet, branch)
				pipe.ZAdd(ctx, repoCommitsKey, redis.Z{Score: float64(now.UnixNano()), Member: commitHash})
				return nil
			})
			if err != nil {
				return err
			}

			result = CommitResult{
				CommitHash: commitHash,
				Branch:     branch,
				Parent:     parent,
				CreatedAt:  now,
				Changes:    diffSnapshots(previous, files),
			}
			return nil
		}, branchKey, repoCommitsKey)

		if err == nil {
			s.enforceRetention(ctx, req.Repo, s.getPolicy(ctx, req.Repo))
			return result, nil
		}

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return CommitResult{}, err
	}

	return CommitResult{}, &types.ConflictError{Resource: "branch", Key: branch, Hint: "too many concurrent writers"}
}

func (s *keydbStore) Checkout(ctx context.Context, repo, hash string) (types.Commit, types.Snapshot, error) {
	commit, err := s.getCommitMetadata(ctx, repo, hash)
	if err != nil {
		return types.Commit{}, nil, err
	}
	snap, err := s.loadSnapshot(ctx, repo, hash)
	if err != nil {
		return types.Commit{}, nil, err
	}
	return commit, snap, nil
}

func (s *keydbStore) loadSnapshot(ctx context.Context, repo, hash string) (types.Snapshot, error) {
	data, err := s.client.Get(ctx, contentKey(repo, hash)).Bytes()
	if err == nil {
		return decodeSnapshot(data)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if s.archive == nil {
		return nil, &types.NotFoundError{Resource: "content", Key: hash}
	}
	data, err = s.archive.Fetch(ctx, repo, hash)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func (s *keydbStore) Diff(ctx context.Context, repo, from, to string) ([]types.FileChange, error) {
	_, before, err := s.Checkout(ctx, repo, from)
	if err != nil {
		return nil, err
	}
	_, after, err := s.Checkout(ctx, repo, to)
	if err != nil {
		return nil, err
	}
	return diffSnapshots(before, after), nil
}

func (s *keydbStore) ListCommits(ctx context.Context, opts ListCommitsOptions) []types.Commit {
	if opts.Repo == "" {
		return []types.Commit{}
	}

	key := repoCommitsKey(opts.Repo)
	var (
		hashes []string
		err    error
	)
	end := int64(-1)
	if opts.Limit > 0 {
		end = int64(opts.Limit) - 1
	}

	if opts.Descending {
		hashes, err = s.client.ZRevRange(ctx, key, 0, end).Result()
	} else {
		hashes, err = s.client.ZRange(ctx, key, 0, end).Result()
	}
	if err != nil {
		return []types.Commit{}
	}

	result := make([]types.Commit, 0, len(hashes))
	for _, hash := range hashes {
		commit, err := s.getCommitMetadata(ctx, opts.Repo, hash)
		if err != nil {
			continue
		}
		result = append(result, commit)
	}
	return result
}

func (s *keydbStore) GetCommit(ctx context.Context, repo, hash string) (types.Commit, error) {
	return s.getCommitMetadata(ctx, repo, hash)
}

func (s *keydbStore) UpsertBranch(ctx context.Context, req BranchRequest) (types.Branch, error) {
	if req.Repo == "" || req.Name == "" || req.Commit == "" {
		return types.Branch{}, &types.ValidationError{Message: "repo, name, and commit are required"}
	}

	if _, err := s.getCommitMetadata(ctx, req.Repo, req.Commit); err != nil {
		return types.Branch{}, err
	}

	branch := types.Branch{
		Repo:      req.Repo,
		Name:      req.Name,
		Commit:    req.Commit,
		UpdatedAt: s.clock().UTC(),
	}

	payload, err := json.Marshal(branch)
	if err != nil {
		return types.Branch{}, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, branchKey(req.Repo, req.Name), payload, 0)
	pipe.SAdd(ctx, branchSetKey(req.Repo), req.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.Branch{}, err
	}

	return branch, nil
}

func (s *keydbStore) ListBranches(ctx context.Context, repo string) []types.Branch {
	if repo == "" {
		return []types.Branch{}
	}
	names, err := s.client.SMembers(ctx, branchSetKey(repo)).Result()
	if err != nil {
		return []types.Branch{}
	}
	slices.Sort(names)
	result := make([]types.Branch, 0, len(names))
	for _, name := range names {
		branch, err := s.GetBranch(ctx, repo, name)
		if err == nil {
			result = append(result, branch)
		}
	}
	return result
}

func (s *keydbStore) GetBranch(ctx context.Context, repo, name string) (types.Branch, error) {
	if repo == "" || name == "" {
		return types.Branch{}, &types.ValidationError{Message: "repo and name are required"}
	}

	bytes, err := s.client.Get(ctx, branchKey(repo, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Branch{}, &types.NotFoundError{Resource: "branch", Key: name}
		}
		return types.Branch{}, err
	}

	var branch types.Branch
	if err := json.Unmarshal(bytes, &branch); err != nil {
		return types.Branch{}, err
	}
	return branch, nil
}

func (s *keydbStore) CreateTag(ctx context.Context, req TagRequest) (types.Tag, error) {
	if req.Repo == "" || req.Name == "" || req.Commit == "" {
		return types.Tag{}, &types.ValidationError{Message: "repo, name, and commit are required"}
	}

	if _, err := s.getCommitMetadata(ctx, req.Repo, req.Commit); err != nil {
		return types.Tag{}, err
	}

	tag := types.Tag{
		Repo:      req.Repo,
		Name:      req.Name,
		Commit:    req.Commit,
		Note:      req.Note,
		CreatedAt: s.clock().UTC(),
	}

	payload, err := json.Marshal(tag)
	if err != nil {
		return types.Tag{}, err
	}

	created, err := s.client.SetNX(ctx, tagKey(req.Repo, req.Name), payload, 0).Result()
	if err != nil {
		return types.Tag{}, err
	}
	if !created {
		return types.Tag{}, &types.ConflictError{Resource: "tag", Key: req.Name}
	}
	if err := s.client.SAdd(ctx, tagSetKey(req.Repo), req.Name).Err(); err != nil {
		return types.Tag{}, err
	}

	return tag, nil
}

func (s *keydbStore) ListTags(ctx context.Context, repo string) []types.Tag {
	if repo == "" {
		return []types.Tag{}
	}
	names, err := s.client.SMembers(ctx, tagSetKey(repo)).Result()
	if err != nil {
		return []types.Tag{}
	}
	slices.Sort(names)
	result := make([]types.Tag, 0, len(names))
	for _, name := range names {
		tag, err := s.GetTag(ctx, repo, name)
		if err == nil {
			result = append(result, tag)
		}
	}
	return result
}

func (s *keydbStore) GetTag(ctx context.Context, repo, name string) (types.Tag, error) {
	if repo == "" || name == "" {
		return types.Tag{}, &types.ValidationError{Message: "repo and name are required"}
	}

	bytes, err := s.client.Get(ctx, tagKey(repo, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Tag{}, &types.NotFoundError{Resource: "tag", Key: name}
		}
		return types.Tag{}, err
	}

	var tag types.Tag
	if err := json.Unmarshal(bytes, &tag); err != nil {
		return types.Tag{}, err
	}
	return tag, nil
}

func (s *keydbStore) SetPolicy(ctx context.Context, policy RetentionPolicy) (RetentionPolicy, error) {
	if err := validatePolicy(policy); err != nil {
		return RetentionPolicy{}, err
	}

	key := policyKey(policy.Repo)
	seconds := int64(policy.HotDuration / time.Second)

	existing, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var rec retentionRecord
		if err := json.Unmarshal(existing, &rec); err == nil {
			if rec.Locked && (rec.HotCommitLimit != policy.HotCommitLimit || rec.HotDurationSeconds != seconds) {
				return rec.toPolicy(policy.Repo), &types.ConflictError{Resource: "policy", Key: policy.Repo}
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		return RetentionPolicy{}, err
	}

	payload, err := json.Marshal(retentionRecord{
		HotCommitLimit:     policy.HotCommitLimit,
		HotDurationSeconds: seconds,
		Locked:             true,
	})
	if err != nil {
		return RetentionPolicy{}, err
	}

	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return RetentionPolicy{}, err
	}

	policy.Locked = true
	s.enforceRetention(ctx, policy.Repo, policy)
	return policy, nil
}

func (s *keydbStore) GetPolicy(ctx context.Context, repo string) (RetentionPolicy, error) {
	if repo == "" {
		return RetentionPolicy{}, &types.ValidationError{Message: "repository name is required"}
	}
	bytes, err := s.client.Get(ctx, policyKey(repo)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.defaultPolicy.WithRepo(repo), nil
		}
		return RetentionPolicy{}, err
	}
	var rec retentionRecord
	if err := json.Unmarshal(bytes, &rec); err != nil {
		return RetentionPolicy{}, err
	}
	return rec.toPolicy(repo), nil
}

func (s *keydbStore) getPolicy(ctx context.Context, repo string) RetentionPolicy {
	policy, err := s.GetPolicy(ctx, repo)
	if err != nil {
		return s.defaultPolicy.WithRepo(repo)
	}
	return policy
}

func (s *keydbStore) DeleteRepo(ctx context.Context, repo string) error {
	if repo == "" {
		return &types.ValidationError{Message: "repository name is required"}
	}

	hashes, err := s.client.ZRange(ctx, repoCommitsKey(repo), 0, -1).Result()
	if err != nil {
		return err
	}
	branches, err := s.client.SMembers(ctx, branchSetKey(repo)).Result()
	if err != nil {
		return err
	}
	tags, err := s.client.SMembers(ctx, tagSetKey(repo)).Result()
	if err != nil {
		return err
	}

	keys := []string{repoCommitsKey(repo), branchSetKey(repo), tagSetKey(repo), policyKey(repo)}
	for _, hash := range hashes {
		keys = append(keys, commitKey(repo, hash), contentKey(repo, hash))
	}
	for _, name := range branches {
		keys = append(keys, branchKey(repo, name))
	}
	for _, name := range tags {
		keys = append(keys, tagKey(repo, name))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return err
	}

	if s.archive != nil {
		return s.archive.RemoveRepo(ctx, repo)
	}
	return nil
}

func (s *keydbStore) Close() error {
	var archiveErr error
	if s.archive != nil {
		archiveErr = s.archive.Close()
	}
	return errors.Join(s.client.Close(), archiveErr)
}

func (s *keydbStore) enforceRetention(ctx context.Context, repo string, policy RetentionPolicy) {
	if s.archive == nil {
		return
	}
	if policy.HotCommitLimit <= 0 && policy.HotDuration <= 0 {
		return
	}
	hashes, err := s.client.ZRange(ctx, repoCommitsKey(repo), 0, -1).Result()
	if err != nil {
		return
	}
	entries := make([]retentionEntry, 0, len(hashes))
	for _, hash := range hashes {
		commit, err := s.getCommitMetadata(ctx, repo, hash)
		if err != nil {
			continue
		}
		entries = append(entries, retentionEntry{hash: commit.Hash, timestamp: commit.Timestamp, archived: commit.Archived})
	}
	pinned := make(map[string]struct{})
	for _, b := range s.ListBranches(ctx, repo) {
		pinned[b.Commit] = struct{}{}
	}
	for _, hash := range selectForArchive(entries, policy, s.clock(), pinned) {
		_ = s.archiveCommit(ctx, repo, hash)
	}
}

func (s *keydbStore) archiveCommit(ctx context.Context, repo, hash string) error {
	commit, err := s.getCommitMetadata(ctx, repo, hash)
	if err != nil {
		return err
	}
	if commit.Archived {
		return nil
	}
	data, err := s.client.Get(ctx, contentKey(repo, hash)).Bytes()
	if err != nil {
		return err
	}
	if err := s.archive.Store(ctx, repo, hash, data); err != nil {
		return err
	}
	commit.Archived = true
	payload, err := json.Marshal(commit)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, commitKey(repo, hash), payload, 0)
	pipe.Del(ctx, contentKey(repo, hash))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *keydbStore) getCommitMetadata(ctx context.Context, repo, hash string) (types.Commit, error) {
	bytes, err := s.client.Get(ctx, commitKey(repo, hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Commit{}, &types.NotFoundError{Resource: "commit", Key: hash}
		}
		return types.Commit{}, err
	}
	var commit types.Commit
	if err := json.Unmarshal(bytes, &commit); err != nil {
		return types.Commit{}, err
	}
	return commit, nil
}

func commitKey(repo, hash string) string {
	return fmt.Sprintf("commit:%s:%s", repo, hash)
}

func contentKey(repo, hash string) string {
	return fmt.Sprintf("content:%s:%s", repo, hash)
}

func branchKey(repo, branch string) string {
	return fmt.Sprintf("branch:%s:%s", repo, branch)
}

func repoCommitsKey(repo string) string {
	return fmt.Sprintf("%s:%s", repoCommitsKeyPrefix, repo)
}

func branchSetKey(repo string) string {
	return fmt.Sprintf("branchset:%s", repo)
}

func tagKey(repo, name string) string {
	return fmt.Sprintf("tag:%s:%s", repo, name)
}

func tagSetKey(repo string) string {
	return fmt.Sprintf("tagset:%s", repo)
}

func policyKey(repo string) string {
	return fmt.Sprintf("policy:%s", repo)
}
