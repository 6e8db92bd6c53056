package app

import (
	"context"
	"fmt"
	"strings"

	"live-arena-service/internal/domain"
	"live-arena-service/internal/metrics"
	"live-arena-service/internal/scoring"
)

// Submit grades an answer or code submission. Evaluation runs outside the
// session lock; every precondition is checked again before the result is
// applied, so an attempt that outlives the deadline is never credited.
func (e *Engine) Submit(ctx context.Context, c *Conn, at Attempt) error {
	if c.Role != RoleParticipant {
		return domain.ErrNotParticipant
	}
	ls, err := e.registry.acquire(ctx, c.SessionID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	kind := ls.doc.Kind
	strategy, item, err := e.admitLocked(ctx, ls, c, at)
	ls.mu.Unlock()
	if err != nil {
		e.rejected(kind, c, err)
		return err
	}

	ev, err := strategy.Evaluate(ctx, item, at)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, _, err := e.admitLocked(ctx, ls, c, at); err != nil {
		e.rejected(kind, c, err)
		return err
	}

	now := e.now()
	next := ls.doc.Clone()
	p := next.FindParticipant(c.ID)
	out := strategy.Apply(next, p, at, ev, now)
	completed := !p.Completed && strategy.Finished(next, p)
	if completed {
		p.Completed = true
	}
	if err := e.commit(ctx, ls, next); err != nil {
		return err
	}

	lb := BuildLeaderboard(next, now)
	e.out.Send(c.ID, strategy.Result(item, p, at, out, lb.RankOf(p.ID)))
	e.out.Broadcast(next.ID, Event{Type: EventLeaderboard, Payload: lb})
	if completed {
		e.out.Send(c.ID, Event{Type: EventComplete, Payload: CompletePayload{
			Score:    p.Score,
			Answered: len(p.AnsweredIndices()),
			Total:    len(next.Items),
		}})
	}

	outcome := "incorrect"
	if ev.Correct {
		outcome = "correct"
	}
	metrics.Submission(string(next.Kind), outcome)
	e.logger.Debug().
		Str("session_id", next.ID).
		Str("participant_id", p.ID).
		Int("item", at.ItemIndex).
		Int("awarded", out.Awarded).
		Msg("attempt graded")
	return nil
}

// admitLocked checks every precondition of a submission against the live copy.
// An expired session is ended on the spot. Callers hold ls.mu.
func (e *Engine) admitLocked(ctx context.Context, ls *liveSession, c *Conn, at Attempt) (Strategy, domain.Item, error) {
	p, err := e.activeParticipantLocked(ctx, ls, c.ID)
	if err != nil {
		return nil, domain.Item{}, err
	}
	if p.Disqualified {
		return nil, domain.Item{}, domain.ErrDisqualified
	}
	if at.ItemIndex < 0 || at.ItemIndex >= len(ls.doc.Items) {
		return nil, domain.Item{}, domain.ErrItemOutOfRange
	}
	strategy, err := e.strategyFor(ls.doc)
	if err != nil {
		return nil, domain.Item{}, err
	}
	if err := strategy.Admit(p, at.ItemIndex); err != nil {
		return nil, domain.Item{}, err
	}
	return strategy, ls.doc.Items[at.ItemIndex], nil
}

func (e *Engine) activeParticipantLocked(ctx context.Context, ls *liveSession, participantID string) (*domain.Participant, error) {
	switch ls.doc.Status {
	case domain.StatusActive:
	case domain.StatusCompleted:
		return nil, domain.ErrSessionEnded
	default:
		return nil, fmt.Errorf("%w: session has not started", domain.ErrInvalidStatus)
	}
	if ls.doc.Expired(e.now()) {
		if err := e.endLocked(ctx, ls, EndByExpiry); err != nil {
			return nil, err
		}
		return nil, domain.ErrSessionEnded
	}
	p := ls.doc.FindParticipant(participantID)
	if p == nil {
		return nil, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (e *Engine) rejected(kind domain.Kind, c *Conn, err error) {
	metrics.Submission(string(kind), "rejected")
	e.logger.Debug().Err(err).Str("session_id", c.SessionID).Str("participant_id", c.ID).Msg("attempt rejected")
}

// ViolationReport is a proctoring signal about one participant.
type ViolationReport struct {
	Type        string
	Severity    domain.Severity
	Description string
}

func (r ViolationReport) validate() error {
	if strings.TrimSpace(r.Type) == "" {
		return fmt.Errorf("%w: violation type is required", domain.ErrInvalidPayload)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", domain.ErrInvalidPayload, r.Severity)
	}
	return nil
}

// ReportViolation applies a violation reported over the participant's own connection.
func (e *Engine) ReportViolation(ctx context.Context, c *Conn, report ViolationReport) error {
	if c.Role != RoleParticipant {
		return domain.ErrNotParticipant
	}
	if err := report.validate(); err != nil {
		return err
	}
	ls, err := e.registry.acquire(ctx, c.SessionID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	p, err := e.activeParticipantLocked(ctx, ls, c.ID)
	if err != nil {
		return err
	}
	return e.applyViolationLocked(ctx, ls, p.ID, report)
}

// ParticipantRef identifies a participant from outside a connection.
// ID is tried first, then UserID.
type ParticipantRef struct {
	ID     string
	UserID string
}

// RecordViolation applies a violation from an external signal source.
func (e *Engine) RecordViolation(ctx context.Context, sessionID string, ref ParticipantRef, report ViolationReport) error {
	if err := report.validate(); err != nil {
		return err
	}
	ls, err := e.registry.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	id := ref.ID
	if id == "" || ls.doc.FindParticipant(id) == nil {
		p := ls.doc.FindParticipantByUser(ref.UserID)
		if p == nil {
			return domain.ErrParticipantNotFound
		}
		id = p.ID
	}
	if _, err := e.activeParticipantLocked(ctx, ls, id); err != nil {
		return err
	}
	return e.applyViolationLocked(ctx, ls, id, report)
}

func (e *Engine) applyViolationLocked(ctx context.Context, ls *liveSession, participantID string, report ViolationReport) error {
	strategy, err := e.strategyFor(ls.doc)
	if err != nil {
		return err
	}

	now := e.now()
	next := ls.doc.Clone()
	p := next.FindParticipant(participantID)
	prior := p.ViolationsOfType(report.Type)
	res := scoring.ApplyPenalty(strategy.Penalties(), report.Severity, prior, p.Score, p.IntegrityScore)

	p.Score = res.Score
	p.IntegrityScore = res.Integrity
	p.TotalPenalty += res.Penalty
	p.Disqualified = p.Disqualified || res.Disqualified
	p.Violations = append(p.Violations, domain.Violation{
		Type:          report.Type,
		Severity:      report.Severity,
		Description:   report.Description,
		Penalty:       res.Penalty,
		IntegrityLoss: res.IntegrityLoss,
		At:            now,
	})
	if err := e.commit(ctx, ls, next); err != nil {
		return err
	}

	lb := BuildLeaderboard(next, now)
	e.out.Send(p.ID, Event{Type: EventPenalty, Payload: PenaltyPayload{
		Type:           report.Type,
		Severity:       report.Severity,
		Penalty:        res.Penalty,
		Score:          p.Score,
		IntegrityScore: p.IntegrityScore,
		Rank:           lb.RankOf(p.ID),
		Disqualified:   p.Disqualified,
	}})
	e.out.Broadcast(next.ID, Event{Type: EventLeaderboard, Payload: lb})
	if p.Disqualified {
		e.out.Send(p.ID, Event{Type: EventDisqualified, Payload: DisqualifiedPayload{
			Message:        "integrity score exhausted; further submissions are not accepted",
			IntegrityScore: p.IntegrityScore,
		}})
	}

	metrics.Violation(string(report.Severity))
	e.logger.Info().
		Str("session_id", next.ID).
		Str("participant_id", p.ID).
		Str("type", report.Type).
		Int("penalty", res.Penalty).
		Int("integrity", p.IntegrityScore).
		Msg("violation recorded")
	return nil
}
