package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskflow/domain"
)

var errStaleRead = errors.New("cache: generation changed during read")

// Cache wraps a façade with Redis-backed caching for read operations.
// Writes go straight to the wrapped service and evict the affected keys.
type Cache[E any, F any] struct {
	base  domain.Service[E, F]
	kind  domain.Kind[E, F]
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or a zero TTL turns the cache into a pass-through.
func NewCache[E any, F any](base domain.Service[E, F], kind domain.Kind[E, F], client *redis.Client, ttl time.Duration) *Cache[E, F] {
	if base == nil {
		panic("storage.NewCache: base service is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache[E, F]{base: base, kind: kind, redis: client, ttl: ttl}
}

func (c *Cache[E, F]) GetAll(ctx context.Context) ([]E, error) {
	var cached []E
	if c.load(ctx, c.listKey(), &cached) {
		return cached, nil
	}
	gen, genOK := c.generation(ctx)
	items, err := c.base.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if genOK {
		c.store(ctx, c.listKey(), items, gen)
	}
	return items, nil
}

func (c *Cache[E, F]) GetByID(ctx context.Context, id string) (E, error) {
	var cached E
	if c.load(ctx, c.recordKey(id), &cached) {
		return cached, nil
	}
	gen, genOK := c.generation(ctx)
	e, err := c.base.GetByID(ctx, id)
	if err != nil {
		return e, err
	}
	if genOK {
		c.store(ctx, c.recordKey(id), e, gen)
	}
	return e, nil
}

func (c *Cache[E, F]) Create(ctx context.Context, fields F) (E, error) {
	e, err := c.base.Create(ctx, fields)
	if err != nil {
		return e, err
	}
	c.evict(ctx, c.listKey())
	return e, nil
}

func (c *Cache[E, F]) Update(ctx context.Context, id string, fields F) (E, error) {
	e, err := c.base.Update(ctx, id, fields)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		c.evict(ctx, c.listKey(), c.recordKey(id))
	}
	return e, err
}

func (c *Cache[E, F]) Delete(ctx context.Context, id string) error {
	err := c.base.Delete(ctx, id)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		c.evict(ctx, c.listKey(), c.recordKey(id))
	}
	return err
}

func (c *Cache[E, F]) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing service without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// generation reads the write counter of the kind. A read result is cached
// only if no write bumped the counter while the backend was queried.
func (c *Cache[E, F]) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, c.genKey()).Int64()
	switch {
	case err == redis.Nil:
		return 0, true
	case err != nil:
		return 0, false
	}
	return gen, true
}

func (c *Cache[E, F]) store(ctx context.Context, key string, v any, gen int64) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	genKey := c.genKey()
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

func (c *Cache[E, F]) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey())
		pipe.Del(ctx, keys...)
		return nil
	})
}

func (c *Cache[E, F]) listKey() string {
	return c.kind.Plural + ":list"
}

func (c *Cache[E, F]) recordKey(id string) string {
	return c.kind.Plural + ":id:" + id
}

func (c *Cache[E, F]) genKey() string {
	return c.kind.Plural + ":gen"
}
