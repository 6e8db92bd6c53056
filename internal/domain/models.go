package domain

import "time"

// Kind distinguishes the two assessment flavours sharing the session engine.
type Kind string

const (
	KindQuiz    Kind = "quiz"
	KindContest Kind = "contest"
)

// Status is the session lifecycle. Transitions only move forward.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ItemType discriminates how an item is answered.
type ItemType string

const (
	ItemMultipleChoice ItemType = "mcq"
	ItemShortAnswer    ItemType = "short_answer"
	ItemCode           ItemType = "code"
)

// Severity of a proctoring violation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// TestCase is one input/expected-output pair of a contest challenge.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Hidden         bool   `json:"hidden"`
}

// Item is a quiz question or a contest challenge.
type Item struct {
	ID               string     `json:"id"`
	Prompt           string     `json:"prompt"`
	Type             ItemType   `json:"type"`
	Options          []string   `json:"options,omitempty"`
	CorrectAnswer    string     `json:"correctAnswer,omitempty"`
	Explanation      string     `json:"explanation,omitempty"`
	TestCases        []TestCase `json:"testCases,omitempty"`
	Points           int        `json:"points"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
	Difficulty       string     `json:"difficulty,omitempty"`
}

// Settings are per-session toggles chosen by the host.
type Settings struct {
	PartialScoring bool `json:"partialScoring"`
	AllowLateJoin  bool `json:"allowLateJoin"`
}

// Answer is a graded single-shot quiz answer.
type Answer struct {
	ItemIndex   int       `json:"itemIndex"`
	Answer      string    `json:"answer"`
	Correct     bool      `json:"correct"`
	Points      int       `json:"points"`
	TimeBonus   int       `json:"timeBonus"`
	StreakBonus int       `json:"streakBonus"`
	ElapsedMs   int64     `json:"elapsedMs"`
	AnsweredAt  time.Time `json:"answeredAt"`
}

// TestResult is the judge verdict for a single test case.
type TestResult struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Passed         bool   `json:"passed"`
	Error          string `json:"error,omitempty"`
	Hidden         bool   `json:"hidden"`
}

// Submission is one judged contest attempt. Several may exist per item.
type Submission struct {
	ItemIndex   int          `json:"itemIndex"`
	Language    string       `json:"language"`
	Code        string       `json:"code"`
	Passed      int          `json:"passed"`
	Total       int          `json:"total"`
	Points      int          `json:"points"`
	Results     []TestResult `json:"results"`
	SubmittedAt time.Time    `json:"submittedAt"`
}

// Violation is an append-only integrity event.
type Violation struct {
	Type          string    `json:"type"`
	Severity      Severity  `json:"severity"`
	Description   string    `json:"description,omitempty"`
	Penalty       int       `json:"penalty"`
	IntegrityLoss int       `json:"integrityLoss"`
	At            time.Time `json:"at"`
}

// Participant is one joined identity within a session. ID is the
// connection currently attached to it and changes on reconnect.
type Participant struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId,omitempty"`
	DisplayName    string       `json:"displayName"`
	Score          int          `json:"score"`
	Streak         int          `json:"streak"`
	Answers        []Answer     `json:"answers,omitempty"`
	Submissions    []Submission `json:"submissions,omitempty"`
	BestPassed     map[int]int  `json:"bestPassed,omitempty"`
	Solved         map[int]bool `json:"solved,omitempty"`
	Violations     []Violation  `json:"violations,omitempty"`
	TotalPenalty   int          `json:"totalPenalty"`
	IntegrityScore int          `json:"integrityScore"`
	Disqualified   bool         `json:"disqualified"`
	Completed      bool         `json:"completed"`
	JoinedAt       time.Time    `json:"joinedAt"`
}

// HasAnswered reports whether a single-shot answer exists for index.
func (p *Participant) HasAnswered(index int) bool {
	for _, a := range p.Answers {
		if a.ItemIndex == index {
			return true
		}
	}
	return false
}

// AnsweredIndices lists item indices the participant already answered or attempted.
func (p *Participant) AnsweredIndices() []int {
	seen := make(map[int]bool)
	out := make([]int, 0, len(p.Answers)+len(p.Submissions))
	for _, a := range p.Answers {
		if !seen[a.ItemIndex] {
			seen[a.ItemIndex] = true
			out = append(out, a.ItemIndex)
		}
	}
	for _, s := range p.Submissions {
		if !seen[s.ItemIndex] {
			seen[s.ItemIndex] = true
			out = append(out, s.ItemIndex)
		}
	}
	return out
}

// SolvedCount is the number of contest items fully passed.
func (p *Participant) SolvedCount() int {
	n := 0
	for _, ok := range p.Solved {
		if ok {
			n++
		}
	}
	return n
}

// ViolationsOfType counts prior violations sharing the given type tag.
func (p *Participant) ViolationsOfType(kind string) int {
	n := 0
	for _, v := range p.Violations {
		if v.Type == kind {
			n++
		}
	}
	return n
}

// Session is one live quiz or contest instance.
type Session struct {
	ID              string         `json:"id"`
	Code            string         `json:"code"`
	Kind            Kind           `json:"kind"`
	Title           string         `json:"title"`
	HostID          string         `json:"hostId"`
	HostName        string         `json:"hostName"`
	Status          Status         `json:"status"`
	Items           []Item         `json:"items"`
	Participants    []*Participant `json:"participants"`
	DurationMinutes int            `json:"durationMinutes"`
	Settings        Settings       `json:"settings"`
	CreatedAt       time.Time      `json:"createdAt"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	EndsAt          *time.Time     `json:"endsAt,omitempty"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	Version         int64          `json:"version"`
}

// Duration converts the configured minutes to a time.Duration.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Expired reports whether an active session has passed its deadline at now.
func (s *Session) Expired(now time.Time) bool {
	return s.Status == StatusActive && s.EndsAt != nil && !now.Before(*s.EndsAt)
}

// FindParticipant returns the participant attached to connection id.
func (s *Session) FindParticipant(id string) *Participant {
	for _, p := range s.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// FindParticipantByUser matches a participant by stable user id.
func (s *Session) FindParticipantByUser(userID string) *Participant {
	if userID == "" {
		return nil
	}
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = make([]Item, len(s.Items))
	for i, item := range s.Items {
		item.Options = append([]string(nil), item.Options...)
		item.TestCases = append([]TestCase(nil), item.TestCases...)
		out.Items[i] = item
	}
	out.Participants = make([]*Participant, len(s.Participants))
	for i, p := range s.Participants {
		out.Participants[i] = p.clone()
	}
	out.StartedAt = cloneTime(s.StartedAt)
	out.EndsAt = cloneTime(s.EndsAt)
	out.EndedAt = cloneTime(s.EndedAt)
	return &out
}

func (p *Participant) clone() *Participant {
	out := *p
	out.Answers = append([]Answer(nil), p.Answers...)
	out.Submissions = make([]Submission, len(p.Submissions))
	for i, sub := range p.Submissions {
		sub.Results = append([]TestResult(nil), sub.Results...)
		out.Submissions[i] = sub
	}
	if p.Submissions == nil {
		out.Submissions = nil
	}
	out.Violations = append([]Violation(nil), p.Violations...)
	if p.BestPassed != nil {
		out.BestPassed = make(map[int]int, len(p.BestPassed))
		for k, v := range p.BestPassed {
			out.BestPassed[k] = v
		}
	}
	if p.Solved != nil {
		out.Solved = make(map[int]bool, len(p.Solved))
		for k, v := range p.Solved {
			out.Solved[k] = v
		}
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PublicItem is the participant-facing view of an item: no answers, no hidden cases.
type PublicItem struct {
	Index            int        `json:"index"`
	ID               string     `json:"id"`
	Prompt           string     `json:"prompt"`
	Type             ItemType   `json:"type"`
	Options          []string   `json:"options,omitempty"`
	SampleTestCases  []TestCase `json:"sampleTestCases,omitempty"`
	HiddenTestCount  int        `json:"hiddenTestCount,omitempty"`
	Points           int        `json:"points"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
	Difficulty       string     `json:"difficulty,omitempty"`
}

// LeaderboardEntry is a ranked projection of a participant.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	ParticipantID  string `json:"participantId"`
	DisplayName    string `json:"displayName"`
	Score          int    `json:"score"`
	Solved         int    `json:"solved"`
	Streak         int    `json:"streak"`
	Answered       int    `json:"answered"`
	IntegrityScore int    `json:"integrityScore"`
	TotalPenalty   int    `json:"totalPenalty"`
	ViolationCount int    `json:"violationCount"`
	Disqualified   bool   `json:"disqualified"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// RankOf returns the 1-based rank of a participant, or 0 when absent.
func (l Leaderboard) RankOf(participantID string) int {
	for _, e := range l.Entries {
		if e.ParticipantID == participantID {
			return e.Rank
		}
	}
	return 0
}
