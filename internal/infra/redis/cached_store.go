package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-arena-service/internal/domain"
)

// Primary is the authoritative store behind the cache (Postgres in production).
type Primary interface {
	Create(ctx context.Context, s *domain.Session) error
	Load(ctx context.Context, id string) (*domain.Session, error)
	LoadByCode(ctx context.Context, code string) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
}

// CachedStore is a read-through cache in front of a Primary store. Writes
// go to the primary first; the cached copy is refreshed only after the
// primary accepted them and dropped when the primary reports a conflict.
type CachedStore struct {
	client  *redis.Client
	primary Primary
	ttl     *jitteredTTL
	sf      singleflight.Group
}

func NewCachedStore(client *redis.Client, primary Primary, ttl time.Duration) *CachedStore {
	return &CachedStore{
		client:  client,
		primary: primary,
		ttl:     newJitteredTTL(ttl),
	}
}

func (c *CachedStore) Create(ctx context.Context, sess *domain.Session) error {
	if err := c.primary.Create(ctx, sess); err != nil {
		return err
	}
	c.fill(ctx, sess)
	return nil
}

func (c *CachedStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	if sess, ok := c.cached(ctx, id); ok {
		return sess, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// another caller may have filled it meanwhile
		if sess, ok := c.cached(ctx, id); ok {
			return sess, nil
		}
		sess, err := c.primary.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, sess)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Session).Clone(), nil
}

func (c *CachedStore) LoadByCode(ctx context.Context, code string) (*domain.Session, error) {
	id, err := c.client.Get(ctx, cacheCodeKey(normalizeCode(code))).Result()
	if err == nil {
		return c.Load(ctx, id)
	}
	sess, err := c.primary.LoadByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, sess)
	return sess, nil
}

func (c *CachedStore) Save(ctx context.Context, sess *domain.Session) error {
	err := c.primary.Save(ctx, sess)
	if errors.Is(err, domain.ErrConflict) {
		_ = c.client.Del(ctx, cacheKey(sess.ID)).Err()
		return err
	}
	if err != nil {
		return err
	}
	c.fill(ctx, sess)
	return nil
}

func (c *CachedStore) cached(ctx context.Context, id string) (*domain.Session, bool) {
	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	sess, err := decode(raw)
	if err != nil {
		return nil, false
	}
	return sess, true
}

// fill is best effort; a failed cache write only costs a later primary read.
func (c *CachedStore) fill(ctx context.Context, sess *domain.Session) {
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	ttl := c.ttl.next()
	pipe := c.client.Pipeline()
	pipe.Set(ctx, cacheKey(sess.ID), raw, ttl)
	pipe.Set(ctx, cacheCodeKey(normalizeCode(sess.Code)), sess.ID, ttl)
	_, _ = pipe.Exec(ctx)
}

func cacheKey(id string) string {
	return "arena:cache:session:" + id
}

func cacheCodeKey(code string) string {
	return "arena:cache:code:" + code
}
