package publication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/onexay/contentvs/internal/types"
)

// Guard serializes publications of the same content. Acquire never waits: a
// concurrent publication is reported as a conflict.
type Guard interface {
	Acquire(ctx context.Context, contentID uint) (release func(), err error)
}

func busy(contentID uint) error {
	return &types.ConflictError{
		Resource: "publication",
		Key:      fmt.Sprint(contentID),
		Hint:     "a publication of this content is already running",
	}
}

// MemoryGuard holds locks in process.
type MemoryGuard struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewMemoryGuard returns an empty MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{locks: make(map[uint]*sync.Mutex)}
}

// Acquire implements Guard.
func (g *MemoryGuard) Acquire(_ context.Context, contentID uint) (func(), error) {
	g.mu.Lock()
	lock, ok := g.locks[contentID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[contentID] = lock
	}
	g.mu.Unlock()

	if !lock.TryLock() {
		return nil, busy(contentID)
	}
	var once sync.Once
	return func() { once.Do(lock.Unlock) }, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares locks between api and worker processes. The TTL bounds how
// long a crashed holder keeps the content locked.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisGuard builds a RedisGuard; prefix namespaces the keys.
func NewRedisGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) key(contentID uint) string {
	return fmt.Sprintf("%spublish-lock:%d", g.prefix, contentID)
}

// Acquire implements Guard.
func (g *RedisGuard) Acquire(ctx context.Context, contentID uint) (func(), error) {
	key := g.key(contentID)
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire publish lock: %w", err)
	}
	if !ok {
		return nil, busy(contentID)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, g.client, []string{key}, token).Err()
		})
	}, nil
}
