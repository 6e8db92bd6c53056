package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
)

// ViolationEvent is one proctoring signal as published on the topic.
type ViolationEvent struct {
	SessionID     string          `json:"sessionId"`
	ParticipantID string          `json:"participantId"`
	UserID        string          `json:"userId"`
	Type          string          `json:"type"`
	Severity      domain.Severity `json:"severity"`
	Description   string          `json:"description"`
	Timestamp     string          `json:"timestamp"`
}

// ViolationRecorder is the engine entry point for external signals.
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, sessionID string, ref app.ParticipantRef, report app.ViolationReport) error
}

type Handlers struct {
	engine ViolationRecorder
	logger zerolog.Logger
}

func NewHandlers(engine ViolationRecorder, logger zerolog.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		logger: logger.With().Str("component", "kafka-handlers").Logger(),
	}
}

// HandleViolation applies a proctoring signal. Signals for sessions that are
// gone or no longer active are dropped; retrying them cannot succeed.
func (h *Handlers) HandleViolation(ctx context.Context, msg kafka.Message) error {
	var event ViolationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal violation: %w", err)
	}
	if event.SessionID == "" {
		return fmt.Errorf("%w: violation without session id", domain.ErrInvalidPayload)
	}

	err := h.engine.RecordViolation(ctx, event.SessionID,
		app.ParticipantRef{ID: event.ParticipantID, UserID: event.UserID},
		app.ViolationReport{Type: event.Type, Severity: event.Severity, Description: event.Description},
	)
	if isStale(err) {
		h.logger.Debug().Err(err).Str("session_id", event.SessionID).Msg("dropping violation")
		return nil
	}
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("session_id", event.SessionID).
		Str("participant_id", event.ParticipantID).
		Str("type", event.Type).
		Str("severity", string(event.Severity)).
		Msg("violation applied")
	return nil
}

func isStale(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound) ||
		errors.Is(err, domain.ErrSessionEnded) ||
		errors.Is(err, domain.ErrInvalidStatus) ||
		errors.Is(err, domain.ErrParticipantNotFound)
}
