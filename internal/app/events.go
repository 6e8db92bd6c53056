package app

import (
	"time"

	"live-arena-service/internal/domain"
)

// EventType names an outbound message.
type EventType string

const (
	EventHostJoined        EventType = "host:joined"
	EventParticipantJoined EventType = "participant:joined"
	EventRosterUpdate      EventType = "roster:update"
	EventStarted           EventType = "session:started"
	EventAnswerResult      EventType = "answer:result"
	EventSubmissionResult  EventType = "submission:result"
	EventLeaderboard       EventType = "leaderboard:update"
	EventProgress          EventType = "progress:update"
	EventPenalty           EventType = "penalty:receipt"
	EventDisqualified      EventType = "participant:disqualified"
	EventComplete          EventType = "participant:complete"
	EventEnded             EventType = "session:ended"
	EventError             EventType = "error"
)

// Event is a typed outbound message.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Broadcaster delivers engine events to connected clients. Implementations
// must not block and must not call back into the engine.
type Broadcaster interface {
	// Join subscribes a connection to a session's room.
	Join(connID, sessionID string)
	Send(connID string, evt Event)
	Broadcast(sessionID string, evt Event)
}

type HostJoinedPayload struct {
	Session     *domain.Session    `json:"session"`
	Leaderboard domain.Leaderboard `json:"leaderboard"`
	EndsAt      *time.Time         `json:"endsAt,omitempty"`
}

type ParticipantJoinedPayload struct {
	ParticipantID   string              `json:"participantId"`
	SessionID       string              `json:"sessionId"`
	Kind            domain.Kind         `json:"kind"`
	Status          domain.Status       `json:"status"`
	Title           string              `json:"title"`
	HostName        string              `json:"hostName"`
	EndsAt          *time.Time          `json:"endsAt,omitempty"`
	DurationMinutes int                 `json:"durationMinutes"`
	Score           int                 `json:"score"`
	Items           []domain.PublicItem `json:"items,omitempty"`
	Answered        []int               `json:"answered,omitempty"`
}

type RosterPayload struct {
	ParticipantCount int                `json:"participantCount"`
	Leaderboard      domain.Leaderboard `json:"leaderboard"`
}

type StartedPayload struct {
	Items           []domain.PublicItem `json:"items"`
	TotalItems      int                 `json:"totalItems"`
	EndsAt          time.Time           `json:"endsAt"`
	DurationMinutes int                 `json:"durationMinutes"`
}

type AnswerResultPayload struct {
	ItemIndex     int    `json:"itemIndex"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation,omitempty"`
	Base          int    `json:"base"`
	TimeBonus     int    `json:"timeBonus"`
	StreakBonus   int    `json:"streakBonus"`
	Awarded       int    `json:"awarded"`
	TotalScore    int    `json:"totalScore"`
	Streak        int    `json:"streak"`
	Rank          int    `json:"rank"`
}

type SubmissionResultPayload struct {
	ItemIndex   int                 `json:"itemIndex"`
	Passed      int                 `json:"passed"`
	Total       int                 `json:"total"`
	Results     []domain.TestResult `json:"results"`
	Solved      bool                `json:"solved"`
	SolvedCount int                 `json:"solvedCount"`
	Awarded     int                 `json:"awarded"`
	TotalScore  int                 `json:"totalScore"`
	Rank        int                 `json:"rank"`
}

type PenaltyPayload struct {
	Type           string          `json:"type"`
	Severity       domain.Severity `json:"severity"`
	Penalty        int             `json:"penalty"`
	Score          int             `json:"score"`
	IntegrityScore int             `json:"integrityScore"`
	Rank           int             `json:"rank"`
	Disqualified   bool            `json:"disqualified"`
}

type DisqualifiedPayload struct {
	Message        string `json:"message"`
	IntegrityScore int    `json:"integrityScore"`
}

type CompletePayload struct {
	Score    int `json:"score"`
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

type ParticipantProgress struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Answered      int    `json:"answered"`
	Total         int    `json:"total"`
	Score         int    `json:"score"`
	Completed     bool   `json:"completed"`
}

type ProgressPayload struct {
	Leaderboard      domain.Leaderboard    `json:"leaderboard"`
	Progress         []ParticipantProgress `json:"progress"`
	RemainingSeconds int                   `json:"remainingSeconds"`
}

type EndedPayload struct {
	Reason           EndReason          `json:"reason"`
	Leaderboard      domain.Leaderboard `json:"leaderboard"`
	ParticipantCount int                `json:"participantCount"`
	ItemCount        int                `json:"itemCount"`
	ElapsedSeconds   int                `json:"elapsedSeconds"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ErrorEvent wraps a rejection for the triggering connection.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Message: err.Error()}}
}
