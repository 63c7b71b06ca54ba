package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/onexay/contentvs/internal/types"
)

const (
	boltRootBucket = "snapshots"
)

// BoltArchive keeps evicted snapshots inside a BoltDB file, one bucket per repository.
type BoltArchive struct {
	db   *bolt.DB
	once sync.Once
}

// NewBoltArchive opens (or creates) a BoltDB archive at the provided path.
func NewBoltArchive(path string) (*BoltArchive, error) {
	if path == "" {
		return nil, errors.New("archive path is required")
	}

	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := bolt.Open(cleaned, 0o600, nil)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltRootBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltArchive{db: db}, nil
}

// Store writes a snapshot payload under repo/commit.
func (a *BoltArchive) Store(ctx context.Context, repo, hash string, data []byte) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		root := tx.Bucket([]byte(boltRootBucket))
		if root == nil {
			return errors.New("archive root bucket missing")
		}

		repoBucket, err := root.CreateBucketIfNotExists([]byte(repo))
		if err != nil {
			return err
		}

		return repoBucket.Put([]byte(hash), data)
	})
}

// Fetch retrieves the snapshot payload for repo/commit.
func (a *BoltArchive) Fetch(ctx context.Context, repo, hash string) ([]byte, error) {
	var result []byte
	err := a.db.View(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		repoBucket := a.repoBucket(tx, repo)
		if repoBucket == nil {
			return &types.NotFoundError{Resource: "archive", Key: hash}
		}

		data := repoBucket.Get([]byte(hash))
		if data == nil {
			return &types.NotFoundError{Resource: "archive", Key: hash}
		}

		result = append([]byte{}, data...)
		return nil
	})
	return result, err
}

// Remove deletes a payload (best-effort).
func (a *BoltArchive) Remove(ctx context.Context, repo, hash string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		repoBucket := a.repoBucket(tx, repo)
		if repoBucket == nil {
			return nil
		}
		return repoBucket.Delete([]byte(hash))
	})
}

// RemoveRepo drops the whole repository bucket.
func (a *BoltArchive) RemoveRepo(ctx context.Context, repo string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		root := tx.Bucket([]byte(boltRootBucket))
		if root == nil || root.Bucket([]byte(repo)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(repo))
	})
}

func (a *BoltArchive) repoBucket(tx *bolt.Tx, repo string) *bolt.Bucket {
	root := tx.Bucket([]byte(boltRootBucket))
	if root == nil {
		return nil
	}
	return root.Bucket([]byte(repo))
}

// Close shuts down the Bolt DB.
func (a *BoltArchive) Close() error {
	var err error
	a.once.Do(func() {
		err = a.db.Close()
	})
	return err
}
