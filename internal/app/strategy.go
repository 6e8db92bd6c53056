package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"live-arena-service/internal/domain"
	"live-arena-service/internal/scoring"
)

// Attempt is a participant's raw answer or code for one item.
type Attempt struct {
	ItemIndex int
	Answer    string
	Code      string
	Language  string
	ElapsedMs int64
}

// Evaluation is the verdict on an attempt, computed without holding the
// session lock.
type Evaluation struct {
	Correct bool
	Results []domain.TestResult
}

// Outcome records what applying an evaluation changed.
type Outcome struct {
	Awarded    int
	Quiz       scoring.QuizResult
	Submission *domain.Submission
}

// Strategy holds everything that differs between quizzes and contests.
type Strategy interface {
	Kind() domain.Kind
	// Admit rejects attempts that can never be accepted for the participant.
	Admit(p *domain.Participant, index int) error
	Evaluate(ctx context.Context, item domain.Item, at Attempt) (Evaluation, error)
	// Apply mutates p and returns the credit. It runs under the session lock.
	Apply(s *domain.Session, p *domain.Participant, at Attempt, ev Evaluation, now time.Time) Outcome
	Result(item domain.Item, p *domain.Participant, at Attempt, out Outcome, rank int) Event
	Sanitize(items []domain.Item) []domain.PublicItem
	Penalties() scoring.PenaltyTable
	Finished(s *domain.Session, p *domain.Participant) bool
	DefaultPoints() int
}

// Judge executes code against test cases.
type Judge interface {
	Run(ctx context.Context, code, language string, cases []domain.TestCase) ([]domain.TestResult, error)
}

type quizStrategy struct{}

// NewQuizStrategy scores single-shot answers with time and streak bonuses.
func NewQuizStrategy() Strategy {
	return quizStrategy{}
}

func (quizStrategy) Kind() domain.Kind { return domain.KindQuiz }

func (quizStrategy) DefaultPoints() int { return 10 }

func (quizStrategy) Penalties() scoring.PenaltyTable { return scoring.QuizPenalties }

func (quizStrategy) Admit(p *domain.Participant, index int) error {
	if p.HasAnswered(index) {
		return domain.ErrAlreadyAnswered
	}
	return nil
}

func (quizStrategy) Evaluate(_ context.Context, item domain.Item, at Attempt) (Evaluation, error) {
	if strings.TrimSpace(at.Answer) == "" {
		return Evaluation{}, fmt.Errorf("%w: answer is required", domain.ErrInvalidPayload)
	}
	return Evaluation{Correct: scoring.AnswerMatches(at.Answer, item.CorrectAnswer)}, nil
}

func (quizStrategy) Apply(s *domain.Session, p *domain.Participant, at Attempt, ev Evaluation, now time.Time) Outcome {
	item := s.Items[at.ItemIndex]
	res := scoring.GradeQuiz(ev.Correct, item.Points, item.TimeLimitSeconds, at.ElapsedMs, p.Streak)
	p.Streak = res.Streak
	p.Score += res.Total()
	p.Answers = append(p.Answers, domain.Answer{
		ItemIndex:   at.ItemIndex,
		Answer:      at.Answer,
		Correct:     res.Correct,
		Points:      res.Total(),
		TimeBonus:   res.TimeBonus,
		StreakBonus: res.StreakBonus,
		ElapsedMs:   at.ElapsedMs,
		AnsweredAt:  now,
	})
	return Outcome{Awarded: res.Total(), Quiz: res}
}

func (quizStrategy) Result(item domain.Item, p *domain.Participant, at Attempt, out Outcome, rank int) Event {
	return Event{Type: EventAnswerResult, Payload: AnswerResultPayload{
		ItemIndex:     at.ItemIndex,
		Correct:       out.Quiz.Correct,
		CorrectAnswer: item.CorrectAnswer,
		Explanation:   item.Explanation,
		Base:          out.Quiz.Base,
		TimeBonus:     out.Quiz.TimeBonus,
		StreakBonus:   out.Quiz.StreakBonus,
		Awarded:       out.Awarded,
		TotalScore:    p.Score,
		Streak:        p.Streak,
		Rank:          rank,
	}}
}

func (quizStrategy) Sanitize(items []domain.Item) []domain.PublicItem {
	out := make([]domain.PublicItem, len(items))
	for i, item := range items {
		out[i] = domain.PublicItem{
			Index:            i,
			ID:               item.ID,
			Prompt:           item.Prompt,
			Type:             item.Type,
			Options:          append([]string(nil), item.Options...),
			Points:           item.Points,
			TimeLimitSeconds: item.TimeLimitSeconds,
			Difficulty:       item.Difficulty,
		}
	}
	return out
}

func (quizStrategy) Finished(s *domain.Session, p *domain.Participant) bool {
	return len(s.Items) > 0 && len(p.Answers) >= len(s.Items)
}

type contestStrategy struct {
	judge   Judge
	timeout time.Duration
}

// NewContestStrategy judges code submissions. timeout bounds a whole judge
// run; zero means no extra bound beyond the caller's context.
func NewContestStrategy(judge Judge, timeout time.Duration) Strategy {
	return &contestStrategy{judge: judge, timeout: timeout}
}

func (c *contestStrategy) Kind() domain.Kind { return domain.KindContest }

func (c *contestStrategy) DefaultPoints() int { return 100 }

func (c *contestStrategy) Penalties() scoring.PenaltyTable { return scoring.ContestPenalties }

// Admit allows resubmission; credit is decided in Apply.
func (c *contestStrategy) Admit(*domain.Participant, int) error { return nil }

func (c *contestStrategy) Evaluate(ctx context.Context, item domain.Item, at Attempt) (Evaluation, error) {
	if strings.TrimSpace(at.Code) == "" {
		return Evaluation{}, fmt.Errorf("%w: code is required", domain.ErrInvalidPayload)
	}
	if strings.TrimSpace(at.Language) == "" {
		return Evaluation{}, fmt.Errorf("%w: language is required", domain.ErrInvalidPayload)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	results, err := c.judge.Run(ctx, at.Code, at.Language, item.TestCases)
	if err != nil {
		return Evaluation{Results: failAll(item.TestCases, err)}, nil
	}
	passed := countPassed(results)
	return Evaluation{Correct: len(results) > 0 && passed == len(results), Results: results}, nil
}

// failAll marks every case failed when the judge itself broke down.
func failAll(cases []domain.TestCase, cause error) []domain.TestResult {
	out := make([]domain.TestResult, len(cases))
	for i, tc := range cases {
		out[i] = domain.TestResult{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Error:          cause.Error(),
			Hidden:         tc.Hidden,
		}
	}
	return out
}

func countPassed(results []domain.TestResult) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}

func (c *contestStrategy) Apply(s *domain.Session, p *domain.Participant, at Attempt, ev Evaluation, now time.Time) Outcome {
	item := s.Items[at.ItemIndex]
	passed, total := countPassed(ev.Results), len(ev.Results)
	if p.BestPassed == nil {
		p.BestPassed = make(map[int]int)
	}
	if p.Solved == nil {
		p.Solved = make(map[int]bool)
	}

	credit := scoring.ContestCredit(item.Points, passed, total, p.BestPassed[at.ItemIndex], s.Settings.PartialScoring, p.Solved[at.ItemIndex])
	p.Score += credit
	if passed > p.BestPassed[at.ItemIndex] {
		p.BestPassed[at.ItemIndex] = passed
	}
	if total > 0 && passed == total {
		p.Solved[at.ItemIndex] = true
	}

	sub := domain.Submission{
		ItemIndex:   at.ItemIndex,
		Language:    at.Language,
		Code:        at.Code,
		Passed:      passed,
		Total:       total,
		Points:      credit,
		Results:     ev.Results,
		SubmittedAt: now,
	}
	p.Submissions = append(p.Submissions, sub)
	return Outcome{Awarded: credit, Submission: &sub}
}

func (c *contestStrategy) Result(_ domain.Item, p *domain.Participant, at Attempt, out Outcome, rank int) Event {
	sub := out.Submission
	return Event{Type: EventSubmissionResult, Payload: SubmissionResultPayload{
		ItemIndex:   at.ItemIndex,
		Passed:      sub.Passed,
		Total:       sub.Total,
		Results:     redactHidden(sub.Results),
		Solved:      p.Solved[at.ItemIndex],
		SolvedCount: p.SolvedCount(),
		Awarded:     out.Awarded,
		TotalScore:  p.Score,
		Rank:        rank,
	}}
}

// redactHidden keeps only the verdict of hidden cases.
func redactHidden(results []domain.TestResult) []domain.TestResult {
	out := make([]domain.TestResult, len(results))
	for i, r := range results {
		if r.Hidden {
			out[i] = domain.TestResult{Passed: r.Passed, Hidden: true}
			continue
		}
		out[i] = r
	}
	return out
}

func (c *contestStrategy) Sanitize(items []domain.Item) []domain.PublicItem {
	out := make([]domain.PublicItem, len(items))
	for i, item := range items {
		pub := domain.PublicItem{
			Index:            i,
			ID:               item.ID,
			Prompt:           item.Prompt,
			Type:             item.Type,
			Points:           item.Points,
			TimeLimitSeconds: item.TimeLimitSeconds,
			Difficulty:       item.Difficulty,
		}
		for _, tc := range item.TestCases {
			if tc.Hidden {
				pub.HiddenTestCount++
				continue
			}
			pub.SampleTestCases = append(pub.SampleTestCases, tc)
		}
		out[i] = pub
	}
	return out
}

func (c *contestStrategy) Finished(s *domain.Session, p *domain.Participant) bool {
	return len(s.Items) > 0 && p.SolvedCount() >= len(s.Items)
}
