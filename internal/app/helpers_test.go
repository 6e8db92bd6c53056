package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
	"live-arena-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type delivery struct {
	connID    string
	sessionID string
	evt       app.Event
}

// recorder captures every outbound event.
type recorder struct {
	mu     sync.Mutex
	sent   []delivery
	joined map[string]string
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{joined: make(map[string]string), notify: make(chan struct{}, 1)}
}

func (r *recorder) Join(connID, sessionID string) {
	r.mu.Lock()
	r.joined[connID] = sessionID
	r.mu.Unlock()
}

func (r *recorder) Send(connID string, evt app.Event) {
	r.record(delivery{connID: connID, evt: evt})
}

func (r *recorder) Broadcast(sessionID string, evt app.Event) {
	r.record(delivery{sessionID: sessionID, evt: evt})
}

func (r *recorder) record(d delivery) {
	r.mu.Lock()
	r.sent = append(r.sent, d)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) count(typ app.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.sent {
		if d.evt.Type == typ {
			n++
		}
	}
	return n
}

// last returns the most recent event of typ sent to connID, or broadcast when connID is empty.
func (r *recorder) last(typ app.EventType, connID string) (app.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		d := r.sent[i]
		if d.evt.Type == typ && d.connID == connID {
			return d.evt, true
		}
	}
	return app.Event{}, false
}

func (r *recorder) waitFor(t *testing.T, typ app.EventType, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for r.count(typ) == 0 {
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

type harness struct {
	engine *app.Engine
	store  *memory.SessionStore
	out    *recorder
	clock  *fakeClock
}

func newHarness(t *testing.T, judge app.Judge, opts ...app.Option) *harness {
	t.Helper()
	h := &harness{store: memory.NewSessionStore(), out: newRecorder(), clock: newFakeClock()}
	if judge == nil {
		judge = memory.StaticJudge{}
	}
	opts = append([]app.Option{app.WithClock(h.clock.Now)}, opts...)
	h.engine = app.NewEngine(h.store, h.out, []app.Strategy{
		app.NewQuizStrategy(),
		app.NewContestStrategy(judge, time.Second),
	}, zerolog.Nop(), opts...)
	t.Cleanup(h.engine.Shutdown)
	return h
}

func quizItems() []domain.Item {
	return []domain.Item{
		{Prompt: "2+2?", Type: domain.ItemShortAnswer, CorrectAnswer: "4", Points: 10, TimeLimitSeconds: 20},
		{Prompt: "Capital of France?", Type: domain.ItemMultipleChoice, Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris", Points: 10, TimeLimitSeconds: 20},
	}
}

func contestItems() []domain.Item {
	return []domain.Item{{
		Prompt: "Print the four words",
		Type:   domain.ItemCode,
		Points: 100,
		TestCases: []domain.TestCase{
			{Input: "1", ExpectedOutput: "alpha"},
			{Input: "2", ExpectedOutput: "beta"},
			{Input: "3", ExpectedOutput: "gamma", Hidden: true},
			{Input: "4", ExpectedOutput: "delta", Hidden: true},
		},
	}}
}

// activeSession creates, publishes and starts a session; it returns the
// host connection and the stored session.
func (h *harness) activeSession(t *testing.T, req app.CreateRequest) (*app.Conn, *domain.Session) {
	t.Helper()
	host := h.openSession(t, req)
	if err := h.engine.Start(context.Background(), host, host.SessionID); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := h.engine.Session(context.Background(), host.SessionID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return host, sess
}

func (h *harness) openSession(t *testing.T, req app.CreateRequest) *app.Conn {
	t.Helper()
	ctx := context.Background()
	if req.HostID == "" {
		req.HostID = "host-1"
	}
	if req.Title == "" {
		req.Title = "Friday warm-up"
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = 10
	}
	sess, err := h.engine.Create(ctx, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.engine.Publish(ctx, req.HostID, sess.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	host := app.NewConn("host-conn")
	if err := h.engine.HostJoin(ctx, host, sess.ID, req.HostID); err != nil {
		t.Fatalf("host join: %v", err)
	}
	return host
}

func (h *harness) join(t *testing.T, connID, code, name, userID string) *app.Conn {
	t.Helper()
	c := app.NewConn(connID)
	if err := h.engine.ParticipantJoin(context.Background(), c, app.JoinRequest{Code: code, DisplayName: name, UserID: userID}); err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return c
}
