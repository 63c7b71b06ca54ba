package storage

import (
	"context"
	"sync"

	"github.com/onexay/contentvs/internal/types"
)

// MemoryArchive is a map-backed archive used for tests and the in-process backend.
type MemoryArchive struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // repo -> commit -> snapshot payload
}

// NewMemoryArchive constructs an in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{data: make(map[string]map[string][]byte)}
}

func (m *MemoryArchive) Store(_ context.Context, repo, hash string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[repo]; !ok {
		m.data[repo] = make(map[string][]byte)
	}
	m.data[repo][hash] = append([]byte{}, data...)
	return nil
}

func (m *MemoryArchive) Fetch(_ context.Context, repo, hash string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.data[repo][hash]
	if !ok {
		return nil, &types.NotFoundError{Resource: "archive", Key: hash}
	}
	return append([]byte{}, payload...), nil
}

func (m *MemoryArchive) Remove(_ context.Context, repo, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[repo], hash)
	return nil
}

func (m *MemoryArchive) RemoveRepo(_ context.Context, repo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, repo)
	return nil
}

// Len reports how many payloads are archived for a repository.
func (m *MemoryArchive) Len(repo string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[repo])
}

func (m *MemoryArchive) Close() error { return nil }
