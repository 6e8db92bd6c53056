package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
)

// SessionAdmin is the subset of the engine behind the REST endpoints.
type SessionAdmin interface {
	Create(ctx context.Context, req app.CreateRequest) (*domain.Session, error)
	Publish(ctx context.Context, hostID, sessionID string) (*domain.Session, error)
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
}

type APIHandler struct {
	engine    SessionAdmin
	validator *payloadValidator
	logger    zerolog.Logger
}

func NewAPIHandler(engine SessionAdmin, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		engine:    engine,
		validator: newPayloadValidator(),
		logger:    logger.With().Str("component", "api_handler").Logger(),
	}
}

// Register mounts the session routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("POST /api/sessions/{id}/publish", h.publishSession)
	mux.HandleFunc("GET /api/sessions/{id}/leaderboard", h.leaderboard)
}

type testCaseRequest struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Hidden         bool   `json:"hidden"`
}

type itemRequest struct {
	Prompt           string            `json:"prompt" validate:"required"`
	Type             string            `json:"type" validate:"required,oneof=mcq short_answer code"`
	Options          []string          `json:"options" validate:"required_if=Type mcq"`
	CorrectAnswer    string            `json:"correctAnswer" validate:"required_unless=Type code"`
	Explanation      string            `json:"explanation"`
	TestCases        []testCaseRequest `json:"testCases" validate:"required_if=Type code"`
	Points           int               `json:"points" validate:"gte=0"`
	TimeLimitSeconds int               `json:"timeLimitSeconds" validate:"gte=0"`
	Difficulty       string            `json:"difficulty"`
}

type createSessionRequest struct {
	Kind            string        `json:"kind" validate:"required,oneof=quiz contest"`
	Title           string        `json:"title" validate:"required,max=200"`
	HostID          string        `json:"hostId" validate:"required"`
	HostName        string        `json:"hostName" validate:"max=60"`
	DurationMinutes int           `json:"durationMinutes" validate:"required,gt=0,lte=1440"`
	PartialScoring  bool          `json:"partialScoring"`
	AllowLateJoin   *bool         `json:"allowLateJoin"`
	Items           []itemRequest `json:"items" validate:"dive"`
}

type publishRequest struct {
	HostID string `json:"hostId" validate:"required"`
}

type sessionSummary struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	Kind            domain.Kind     `json:"kind"`
	Title           string          `json:"title"`
	Status          domain.Status   `json:"status"`
	ItemCount       int             `json:"itemCount"`
	DurationMinutes int             `json:"durationMinutes"`
	Settings        domain.Settings `json:"settings"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func summarize(s *domain.Session) sessionSummary {
	return sessionSummary{
		ID:              s.ID,
		Code:            s.Code,
		Kind:            s.Kind,
		Title:           s.Title,
		Status:          s.Status,
		ItemCount:       len(s.Items),
		DurationMinutes: s.DurationMinutes,
		Settings:        s.Settings,
		CreatedAt:       s.CreatedAt,
	}
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.bind(w, r, &req) {
		return
	}

	items := make([]domain.Item, len(req.Items))
	for i, it := range req.Items {
		cases := make([]domain.TestCase, len(it.TestCases))
		for j, tc := range it.TestCases {
			cases[j] = domain.TestCase{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput, Hidden: tc.Hidden}
		}
		items[i] = domain.Item{
			Prompt:           it.Prompt,
			Type:             domain.ItemType(it.Type),
			Options:          it.Options,
			CorrectAnswer:    it.CorrectAnswer,
			Explanation:      it.Explanation,
			TestCases:        cases,
			Points:           it.Points,
			TimeLimitSeconds: it.TimeLimitSeconds,
			Difficulty:       it.Difficulty,
		}
	}

	sess, err := h.engine.Create(r.Context(), app.CreateRequest{
		Kind:            domain.Kind(req.Kind),
		Title:           req.Title,
		HostID:          req.HostID,
		HostName:        req.HostName,
		Items:           items,
		DurationMinutes: req.DurationMinutes,
		PartialScoring:  req.PartialScoring,
		AllowLateJoin:   req.AllowLateJoin,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(sess))
}

func (h *APIHandler) publishSession(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !h.bind(w, r, &req) {
		return
	}
	sess, err := h.engine.Publish(r.Context(), req.HostID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(sess))
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app.BuildLeaderboard(sess, time.Now()))
}

func (h *APIHandler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, app.ErrorPayload{Message: "invalid JSON body"})
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, app.ErrorPayload{Message: err.Error()})
		return false
	}
	return true
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("request failed")
		writeJSON(w, status, app.ErrorPayload{Message: "internal error"})
		return
	}
	writeJSON(w, status, app.ErrorPayload{Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrNoItems),
		errors.Is(err, domain.ErrSessionEnded),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
