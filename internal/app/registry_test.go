package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"live-arena-service/internal/domain"
	"live-arena-service/internal/infra/memory"
)

func TestRegistrySharesOneLiveEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	_ = store.Create(ctx, &domain.Session{ID: "s1", Code: "HJK234", Status: domain.StatusActive})
	reg := newRegistry(store)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		entries = make(map[*liveSession]bool)
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ls, err := reg.acquire(ctx, "s1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			entries[ls] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(entries) != 1 || reg.size() != 1 {
		t.Fatalf("expected a single live entry, got %d (registry %d)", len(entries), reg.size())
	}

	byCode, err := reg.acquireByCode(ctx, "hjk234")
	if err != nil {
		t.Fatalf("acquire by code: %v", err)
	}
	if !entries[byCode] {
		t.Fatalf("code lookup returned a different entry")
	}

	reg.remove(byCode)
	if reg.size() != 0 {
		t.Fatalf("expected registry empty after remove")
	}
}

func TestRegistryDetachesCompletedSessions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	_ = store.Create(ctx, &domain.Session{ID: "done", Code: "MNP234", Status: domain.StatusCompleted})
	reg := newRegistry(store)

	ls, err := reg.acquire(ctx, "done")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ls.detached || reg.size() != 0 {
		t.Fatalf("completed session must not be registered")
	}
	if _, err := reg.acquire(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
