package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-arena-service/internal/domain"
)

// SessionStore keeps session documents as JSON strings in Redis.
// Keys:
//
//	arena:session:{id}  -> JSON document
//	arena:code:{CODE}   -> session id, reserved with SETNX
//
// Save is optimistic: the document is re-read under WATCH and written only
// when its version still matches.
type SessionStore struct {
	client *redis.Client
	ttl    *jitteredTTL
}

// NewSessionStore keeps documents for ttl after their last write; zero keeps them forever.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: newJitteredTTL(ttl)}
}

func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	code := normalizeCode(sess.Code)
	ttl := s.ttl.next()
	ok, err := s.client.SetNX(ctx, codeKey(code), sess.ID, ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve code: %w", err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}

	doc := *sess
	doc.Version = 1
	raw, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), raw, ttl).Err(); err != nil {
		_ = s.client.Del(ctx, codeKey(code)).Err()
		return fmt.Errorf("store session: %w", err)
	}
	sess.Version = 1
	return nil
}

func (s *SessionStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return decode(raw)
}

func (s *SessionStore) LoadByCode(ctx context.Context, code string) (*domain.Session, error) {
	id, err := s.client.Get(ctx, codeKey(normalizeCode(code))).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve code: %w", err)
	}
	return s.Load(ctx, id)
}

func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	key := sessionKey(sess.ID)
	doc := *sess
	doc.Version = sess.Version + 1
	raw, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := s.ttl.next()

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		stored, err := decode(cur)
		if err != nil {
			return err
		}
		if stored.Version != sess.Version {
			return domain.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			if ttl > 0 {
				pipe.Expire(ctx, codeKey(sess.Code), ttl)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrConflict
	}
	if err != nil {
		return err
	}
	sess.Version = doc.Version
	return nil
}

type jitteredTTL struct {
	base time.Duration
	mu   sync.Mutex
	rnd  *rand.Rand
}

func newJitteredTTL(base time.Duration) *jitteredTTL {
	return &jitteredTTL{base: base, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// next adds up to 10% jitter to spread expirations of documents written together.
func (j *jitteredTTL) next() time.Duration {
	if j.base <= 0 {
		return 0
	}
	jitterMax := int64(j.base) / 10
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.base + time.Duration(j.rnd.Int63n(jitterMax+1))
}

func decode(raw []byte) (*domain.Session, error) {
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func sessionKey(id string) string {
	return "arena:session:" + id
}

func codeKey(code string) string {
	return "arena:code:" + code
}
