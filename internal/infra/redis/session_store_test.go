package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-arena-service/internal/domain"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func sampleSession() *domain.Session {
	return &domain.Session{
		ID:     "s1",
		Code:   "QWE234",
		Kind:   domain.KindContest,
		Status: domain.StatusWaiting,
		Items:  []domain.Item{{Prompt: "sum", Type: domain.ItemCode, Points: 100}},
		Participants: []*domain.Participant{{
			ID:         "p1",
			Score:      50,
			BestPassed: map[int]int{0: 2},
			Solved:     map[int]bool{},
		}},
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	store := NewSessionStore(client, time.Hour)

	sess := sampleSession()
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("arena:session:s1") || !mr.Exists("arena:code:QWE234") {
		t.Fatalf("expected session and code keys")
	}
	if ttl := mr.TTL("arena:session:s1"); ttl < time.Hour || ttl > 66*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	loaded, err := store.LoadByCode(ctx, "qwe234")
	if err != nil {
		t.Fatalf("load by code: %v", err)
	}
	if loaded.Version != 1 || loaded.Participants[0].BestPassed[0] != 2 {
		t.Fatalf("unexpected document %+v", loaded)
	}

	loaded.Status = domain.StatusActive
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, _ := store.Load(ctx, "s1")
	if again.Status != domain.StatusActive || again.Version != 2 || loaded.Version != 2 {
		t.Fatalf("save not applied: stored=%d local=%d status=%s", again.Version, loaded.Version, again.Status)
	}
}

func TestSessionStoreConflictsAndMisses(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	store := NewSessionStore(client, 0)

	if _, err := store.Load(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.LoadByCode(ctx, "NOPE22"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_ = store.Create(ctx, sampleSession())
	dup := sampleSession()
	dup.ID = "s2"
	if err := store.Create(ctx, dup); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}

	a, _ := store.Load(ctx, "s1")
	b, _ := store.Load(ctx, "s1")
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, b); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if b.Version != 1 {
		t.Fatalf("rejected save must not bump the caller's version")
	}
}
