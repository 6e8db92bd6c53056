package app

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"live-arena-service/internal/domain"
)

// SessionStore persists session documents. Save must reject a document whose
// Version does not match the stored one with domain.ErrConflict and bump the
// Version on success. Create must fail with domain.ErrCodeTaken when the
// room code is already reserved.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Load(ctx context.Context, id string) (*domain.Session, error)
	LoadByCode(ctx context.Context, code string) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
}

// liveSession is the single in-process owner of a session document.
// Every read and write of doc happens under mu.
type liveSession struct {
	mu       sync.Mutex
	doc      *domain.Session
	timers   *sessionTimers
	detached bool
}

// registry maps session ids to their live owners. A session is registered at
// most once; completed sessions loaded from the store are handed out
// detached so they never re-enter the map.
type registry struct {
	store SessionStore
	group singleflight.Group

	mu     sync.Mutex
	byID   map[string]*liveSession
	byCode map[string]string
}

func newRegistry(store SessionStore) *registry {
	return &registry{
		store:  store,
		byID:   make(map[string]*liveSession),
		byCode: make(map[string]string),
	}
}

func (r *registry) lookup(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.byID[id]
	return ls, ok
}

// acquire returns the live owner of id, loading it from the store on a miss.
// Concurrent misses for the same id share one load.
func (r *registry) acquire(ctx context.Context, id string) (*liveSession, error) {
	if ls, ok := r.lookup(id); ok {
		return ls, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		return r.store.Load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	doc := v.(*domain.Session).Clone()

	if doc.Status == domain.StatusCompleted {
		return &liveSession{doc: doc, timers: newSessionTimers(), detached: true}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ls, ok := r.byID[id]; ok {
		return ls, nil
	}
	ls := &liveSession{doc: doc, timers: newSessionTimers()}
	r.byID[id] = ls
	r.byCode[doc.Code] = id
	return ls, nil
}

func (r *registry) acquireByCode(ctx context.Context, code string) (*liveSession, error) {
	code = NormalizeRoomCode(code)
	r.mu.Lock()
	id, ok := r.byCode[code]
	r.mu.Unlock()
	if ok {
		return r.acquire(ctx, id)
	}

	doc, err := r.store.LoadByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.acquire(ctx, doc.ID)
}

// remove drops a completed session. Callers hold ls.mu.
func (r *registry) remove(ls *liveSession) {
	if ls.detached {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byID[ls.doc.ID]; ok && cur == ls {
		delete(r.byID, ls.doc.ID)
		delete(r.byCode, ls.doc.Code)
	}
	ls.detached = true
}

func (r *registry) activeIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
