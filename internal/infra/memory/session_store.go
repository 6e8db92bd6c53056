package memory

import (
	"context"
	"strings"
	"sync"

	"live-arena-service/internal/domain"
)

// SessionStore keeps session documents in process memory. Documents are
// cloned on the way in and out so callers never share state with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	codes    map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		codes:    make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := normalize(sess.Code)
	if _, taken := s.codes[code]; taken {
		return domain.ErrCodeTaken
	}
	sess.Version = 1
	s.sessions[sess.ID] = sess.Clone()
	s.codes[code] = sess.ID
	return nil
}

func (s *SessionStore) Load(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *SessionStore) LoadByCode(ctx context.Context, code string) (*domain.Session, error) {
	s.mu.RLock()
	id, ok := s.codes[normalize(code)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Load(ctx, id)
}

// Save replaces the stored document when its version still matches.
func (s *SessionStore) Save(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sess.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if cur.Version != sess.Version {
		return domain.ErrConflict
	}
	sess.Version++
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
