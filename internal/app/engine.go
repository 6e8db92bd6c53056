// Package app holds the live session engine shared by quizzes and contests.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"live-arena-service/internal/domain"
	"live-arena-service/internal/metrics"
	"live-arena-service/internal/scoring"
)

const (
	defaultProgressInterval = 10 * time.Second
	defaultCodeAttempts     = 8
	defaultEndRetryDelay    = 2 * time.Second
	maxDisplayNameLength    = 30
)

// EndReason records which path completed a session.
type EndReason string

const (
	EndByHost   EndReason = "host"
	EndByTimer  EndReason = "timer"
	EndByExpiry EndReason = "expired"
)

// Engine is the session state machine. All mutations of one session are
// serialised by that session's registry entry lock.
type Engine struct {
	registry   *registry
	store      SessionStore
	out        Broadcaster
	strategies map[domain.Kind]Strategy
	logger     zerolog.Logger

	now              func() time.Time
	progressInterval time.Duration
	codeAttempts     int
	endRetryDelay    time.Duration
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.progressInterval = d
		}
	}
}

func WithRoomCodeAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.codeAttempts = n
		}
	}
}

// WithEndRetryDelay sets the back-off before a failed auto-end is retried.
func WithEndRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.endRetryDelay = d
		}
	}
}

func NewEngine(store SessionStore, out Broadcaster, strategies []Strategy, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry:         newRegistry(store),
		store:            store,
		out:              out,
		strategies:       make(map[domain.Kind]Strategy, len(strategies)),
		logger:           logger.With().Str("component", "session_engine").Logger(),
		now:              time.Now,
		progressInterval: defaultProgressInterval,
		codeAttempts:     defaultCodeAttempts,
		endRetryDelay:    defaultEndRetryDelay,
	}
	for _, s := range strategies {
		e.strategies[s.Kind()] = s
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateRequest describes a new session authored by a host.
type CreateRequest struct {
	Kind            domain.Kind
	Title           string
	HostID          string
	HostName        string
	Items           []domain.Item
	DurationMinutes int
	PartialScoring  bool
	// AllowLateJoin defaults to true when nil.
	AllowLateJoin *bool
}

// Create stores a new draft session under a fresh id and unique room code.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*domain.Session, error) {
	strategy, ok := e.strategies[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidPayload, req.Kind)
	}
	if strings.TrimSpace(req.Title) == "" || req.HostID == "" {
		return nil, fmt.Errorf("%w: title and host are required", domain.ErrInvalidPayload)
	}
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", domain.ErrInvalidPayload)
	}

	lateJoin := true
	if req.AllowLateJoin != nil {
		lateJoin = *req.AllowLateJoin
	}
	items := make([]domain.Item, len(req.Items))
	for i, item := range req.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.Points <= 0 {
			item.Points = strategy.DefaultPoints()
		}
		if item.TimeLimitSeconds <= 0 {
			item.TimeLimitSeconds = scoring.DefaultTimeLimitSeconds
		}
		items[i] = item
	}

	sess := &domain.Session{
		ID:              uuid.NewString(),
		Kind:            req.Kind,
		Title:           strings.TrimSpace(req.Title),
		HostID:          req.HostID,
		HostName:        req.HostName,
		Status:          domain.StatusDraft,
		Items:           items,
		Participants:    []*domain.Participant{},
		DurationMinutes: req.DurationMinutes,
		Settings:        domain.Settings{PartialScoring: req.PartialScoring, AllowLateJoin: lateJoin},
		CreatedAt:       e.now(),
	}

	for attempt := 0; attempt < e.codeAttempts; attempt++ {
		code, err := GenerateRoomCode()
		if err != nil {
			return nil, err
		}
		if _, err := e.store.LoadByCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}

		sess.Code = code
		err = e.store.Create(ctx, sess)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e.logger.Info().Str("session_id", sess.ID).Str("code", code).Str("kind", string(sess.Kind)).Msg("session created")
		return sess.Clone(), nil
	}
	return nil, fmt.Errorf("allocate room code: %w", domain.ErrCodeTaken)
}

// Publish moves a draft session to waiting.
func (e *Engine) Publish(ctx context.Context, hostID, sessionID string) (*domain.Session, error) {
	ls, err := e.registry.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.doc.HostID != hostID {
		return nil, domain.ErrNotHost
	}
	if ls.doc.Status != domain.StatusDraft {
		return nil, fmt.Errorf("%w: cannot publish a %s session", domain.ErrInvalidStatus, ls.doc.Status)
	}
	if len(ls.doc.Items) == 0 {
		return nil, domain.ErrNoItems
	}

	next := ls.doc.Clone()
	next.Status = domain.StatusWaiting
	if err := e.commit(ctx, ls, next); err != nil {
		return nil, err
	}
	return ls.doc.Clone(), nil
}

// Session returns a snapshot of a session for host-facing reads.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	ls, err := e.registry.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.doc.Clone(), nil
}

// Recover re-arms the timers of an active session from its persisted end
// time, ending it straight away when the deadline already passed. It is
// used after a process restart and on every host join.
func (e *Engine) Recover(ctx context.Context, sessionID string) error {
	ls, err := e.registry.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return e.recoverLocked(ctx, ls)
}

func (e *Engine) recoverLocked(ctx context.Context, ls *liveSession) error {
	if ls.doc.Status != domain.StatusActive || ls.doc.EndsAt == nil {
		return nil
	}
	if ls.doc.Expired(e.now()) {
		return e.endLocked(ctx, ls, EndByExpiry)
	}
	if !ls.timers.armed() {
		e.armLocked(ls)
	}
	return nil
}

// LiveSessions lists the ids currently owned by this process.
func (e *Engine) LiveSessions() []string {
	return e.registry.activeIDs()
}

// Shutdown stops every live timer. Session documents stay as persisted.
func (e *Engine) Shutdown() {
	for _, id := range e.registry.activeIDs() {
		if ls, ok := e.registry.lookup(id); ok {
			ls.timers.cancel()
		}
	}
}

func (e *Engine) strategyFor(s *domain.Session) (Strategy, error) {
	strategy, ok := e.strategies[s.Kind]
	if !ok {
		return nil, fmt.Errorf("no strategy for kind %q", s.Kind)
	}
	return strategy, nil
}

// commit persists next and swaps it in as the live copy only when the store
// accepted it. On a version conflict the live copy is reloaded. Callers hold ls.mu.
func (e *Engine) commit(ctx context.Context, ls *liveSession, next *domain.Session) error {
	if err := e.store.Save(ctx, next); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			if fresh, lerr := e.store.Load(ctx, next.ID); lerr == nil {
				ls.doc = fresh
			}
		}
		e.logger.Error().Err(err).Str("session_id", next.ID).Msg("save session")
		return err
	}
	ls.doc = next
	return nil
}

func (e *Engine) armLocked(ls *liveSession) {
	id := ls.doc.ID
	remaining := ls.doc.EndsAt.Sub(e.now())
	ls.timers.armAutoEnd(remaining, func() { e.expire(id) })
	ls.timers.startProgress(e.progressInterval, func() bool { return e.progressTick(id) })
	e.logger.Debug().Str("session_id", id).Dur("remaining", remaining).Msg("timers armed")
}

// expire is the auto-end timer callback.
func (e *Engine) expire(sessionID string) {
	ls, ok := e.registry.lookup(sessionID)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.doc.Status == domain.StatusCompleted {
		return
	}
	if err := e.endLocked(context.Background(), ls, EndByTimer); err != nil {
		e.logger.Warn().Err(err).Str("session_id", sessionID).Dur("retry_in", e.endRetryDelay).Msg("auto-end failed")
		ls.timers.armAutoEnd(e.endRetryDelay, func() { e.expire(sessionID) })
	}
}

func (e *Engine) progressTick(sessionID string) bool {
	ls, ok := e.registry.lookup(sessionID)
	if !ok {
		return false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.doc.Status != domain.StatusActive {
		return false
	}

	now := e.now()
	remaining := 0
	if ls.doc.EndsAt != nil {
		remaining = max(0, int(ls.doc.EndsAt.Sub(now).Seconds()))
	}
	e.out.Broadcast(sessionID, Event{Type: EventProgress, Payload: ProgressPayload{
		Leaderboard:      BuildLeaderboard(ls.doc, now),
		Progress:         buildProgress(ls.doc),
		RemainingSeconds: remaining,
	}})
	return true
}

// endLocked completes an active session exactly once. Callers hold ls.mu.
func (e *Engine) endLocked(ctx context.Context, ls *liveSession, reason EndReason) error {
	switch ls.doc.Status {
	case domain.StatusCompleted:
		return nil
	case domain.StatusActive:
	default:
		return fmt.Errorf("%w: cannot end a %s session", domain.ErrInvalidStatus, ls.doc.Status)
	}

	now := e.now()
	next := ls.doc.Clone()
	next.Status = domain.StatusCompleted
	next.EndedAt = &now
	if err := e.commit(ctx, ls, next); err != nil {
		return err
	}

	ls.timers.cancel()
	e.registry.remove(ls)

	elapsed := 0
	if next.StartedAt != nil {
		elapsed = int(now.Sub(*next.StartedAt).Seconds())
	}
	e.out.Broadcast(next.ID, Event{Type: EventEnded, Payload: EndedPayload{
		Reason:           reason,
		Leaderboard:      BuildLeaderboard(next, now),
		ParticipantCount: len(next.Participants),
		ItemCount:        len(next.Items),
		ElapsedSeconds:   elapsed,
	}})
	metrics.SessionEnded(string(next.Kind), string(reason))
	e.logger.Info().Str("session_id", next.ID).Str("reason", string(reason)).Msg("session ended")
	return nil
}
