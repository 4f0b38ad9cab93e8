package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariefcatur/harvest-market/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Dedup remembers which events were handled. Claim reports false when id was
// already claimed; Release forgets a claim whose handling failed.
type Dedup interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type RedisDedup struct {
	Client  *redis.Client
	Service string
}

func (d *RedisDedup) key(id string) string { return fmt.Sprintf(redisx.KeyDedup, d.Service, id) }

func (d *RedisDedup) Claim(ctx context.Context, id string) (bool, error) {
	return redisx.Claim(ctx, d.Client, d.key(id), "1", redisx.TTLDedup)
}

func (d *RedisDedup) Release(ctx context.Context, id string) error {
	return d.Client.Del(ctx, d.key(id)).Err()
}

// MemDedup is a process-local Dedup for single-instance runs and tests.
type MemDedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (d *MemDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]struct{}{}
	}
	if _, ok := d.seen[id]; ok {
		return false, nil
	}
	d.seen[id] = struct{}{}
	return true, nil
}

func (d *MemDedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}
