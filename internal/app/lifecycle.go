package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"live-arena-service/internal/domain"
	"live-arena-service/internal/metrics"
)

// HostJoin attaches c as host of a session and replays its full state,
// answers included, to the caller.
func (e *Engine) HostJoin(ctx context.Context, c *Conn, sessionID, hostID string) error {
	ls, err := e.registry.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.doc.Status == domain.StatusCompleted {
		return domain.ErrSessionEnded
	}
	if ls.doc.HostID != hostID {
		return domain.ErrNotHost
	}
	if err := e.recoverLocked(ctx, ls); err != nil {
		return err
	}
	if ls.doc.Status == domain.StatusCompleted {
		return domain.ErrSessionEnded
	}

	c.attach(RoleHost, sessionID)
	e.out.Join(c.ID, sessionID)
	e.out.Send(c.ID, Event{Type: EventHostJoined, Payload: HostJoinedPayload{
		Session:     ls.doc.Clone(),
		Leaderboard: BuildLeaderboard(ls.doc, e.now()),
		EndsAt:      ls.doc.EndsAt,
	}})
	e.logger.Debug().Str("session_id", sessionID).Str("conn_id", c.ID).Msg("host joined")
	return nil
}

// JoinRequest is a participant's request to enter a session by room code.
type JoinRequest struct {
	Code        string
	DisplayName string
	UserID      string
}

// ParticipantJoin admits c into the session behind a room code, reattaching
// an existing participant when the connection or user id matches.
func (e *Engine) ParticipantJoin(ctx context.Context, c *Conn, req JoinRequest) error {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLength {
		return fmt.Errorf("%w: display name must be 1-%d characters", domain.ErrInvalidPayload, maxDisplayNameLength)
	}

	ls, err := e.registry.acquireByCode(ctx, req.Code)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	switch ls.doc.Status {
	case domain.StatusCompleted:
		return domain.ErrSessionEnded
	case domain.StatusDraft:
		return fmt.Errorf("%w: session is not open yet", domain.ErrInvalidStatus)
	}
	now := e.now()
	if ls.doc.Expired(now) {
		if err := e.endLocked(ctx, ls, EndByExpiry); err != nil {
			return err
		}
		return domain.ErrSessionEnded
	}
	strategy, err := e.strategyFor(ls.doc)
	if err != nil {
		return err
	}

	next := ls.doc.Clone()
	p := next.FindParticipant(c.ID)
	if p == nil {
		p = next.FindParticipantByUser(req.UserID)
	}
	if p == nil {
		if next.Status == domain.StatusActive && !next.Settings.AllowLateJoin {
			return domain.ErrLateJoinClosed
		}
		p = &domain.Participant{
			ID:             c.ID,
			UserID:         req.UserID,
			IntegrityScore: 100,
			JoinedAt:       now,
		}
		next.Participants = append(next.Participants, p)
	}
	p.ID = c.ID
	p.DisplayName = name
	if err := e.commit(ctx, ls, next); err != nil {
		return err
	}

	c.attach(RoleParticipant, next.ID)
	e.out.Join(c.ID, next.ID)

	joined := ParticipantJoinedPayload{
		ParticipantID:   p.ID,
		SessionID:       next.ID,
		Kind:            next.Kind,
		Status:          next.Status,
		Title:           next.Title,
		HostName:        next.HostName,
		EndsAt:          next.EndsAt,
		DurationMinutes: next.DurationMinutes,
		Score:           p.Score,
	}
	if next.Status == domain.StatusActive {
		joined.Items = strategy.Sanitize(next.Items)
		joined.Answered = p.AnsweredIndices()
	}
	e.out.Send(c.ID, Event{Type: EventParticipantJoined, Payload: joined})
	e.out.Broadcast(next.ID, Event{Type: EventRosterUpdate, Payload: RosterPayload{
		ParticipantCount: len(next.Participants),
		Leaderboard:      BuildLeaderboard(next, now),
	}})
	e.logger.Debug().Str("session_id", next.ID).Str("participant_id", p.ID).Msg("participant joined")
	return nil
}

// Start activates a draft or waiting session and arms its timers.
func (e *Engine) Start(ctx context.Context, c *Conn, sessionID string) error {
	if !c.IsHostOf(sessionID) {
		return domain.ErrNotHost
	}
	ls, err := e.registry.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.doc.Status != domain.StatusDraft && ls.doc.Status != domain.StatusWaiting {
		return fmt.Errorf("%w: cannot start a %s session", domain.ErrInvalidStatus, ls.doc.Status)
	}
	if len(ls.doc.Items) == 0 {
		return domain.ErrNoItems
	}
	strategy, err := e.strategyFor(ls.doc)
	if err != nil {
		return err
	}

	now := e.now()
	endsAt := now.Add(ls.doc.Duration())
	next := ls.doc.Clone()
	next.Status = domain.StatusActive
	next.StartedAt = &now
	next.EndsAt = &endsAt
	if err := e.commit(ctx, ls, next); err != nil {
		return err
	}
	e.armLocked(ls)

	e.out.Broadcast(sessionID, Event{Type: EventStarted, Payload: StartedPayload{
		Items:           strategy.Sanitize(next.Items),
		TotalItems:      len(next.Items),
		EndsAt:          endsAt,
		DurationMinutes: next.DurationMinutes,
	}})
	metrics.SessionStarted(string(next.Kind))
	e.logger.Info().Str("session_id", sessionID).Time("ends_at", endsAt).Msg("session started")
	return nil
}

// End completes the session on the host's request. Ending a completed
// session is a no-op.
func (e *Engine) End(ctx context.Context, c *Conn, sessionID string) error {
	if !c.IsHostOf(sessionID) {
		return domain.ErrNotHost
	}
	ls, err := e.registry.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return e.endLocked(ctx, ls, EndByHost)
}

// Disconnect keeps the participant record and refreshes the room's view.
func (e *Engine) Disconnect(_ context.Context, c *Conn) {
	if c.Role != RoleParticipant {
		return
	}
	ls, ok := e.registry.lookup(c.SessionID)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.doc.Status == domain.StatusCompleted {
		return
	}
	e.out.Broadcast(c.SessionID, Event{Type: EventLeaderboard, Payload: BuildLeaderboard(ls.doc, e.now())})
}
