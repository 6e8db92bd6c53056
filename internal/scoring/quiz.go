// Package scoring holds the pure point calculations shared by quiz and contest sessions.
package scoring

import (
	"math"
	"strings"
)

const (
	// DefaultTimeLimitSeconds applies when an item carries no time allowance.
	DefaultTimeLimitSeconds = 30

	streakThreshold = 3
	timeBonusShare  = 0.5
	streakShare     = 0.2
)

// QuizResult is the breakdown of a graded quiz answer.
type QuizResult struct {
	Correct     bool
	Base        int
	TimeBonus   int
	StreakBonus int
	Streak      int
}

// Total is the amount credited to the participant.
func (r QuizResult) Total() int {
	return r.Base + r.TimeBonus + r.StreakBonus
}

// AnswerMatches compares trimmed answers case-insensitively.
func AnswerMatches(given, correct string) bool {
	return strings.ToLower(strings.TrimSpace(given)) == strings.ToLower(strings.TrimSpace(correct))
}

// GradeQuiz scores an answer given the participant's streak before answering.
func GradeQuiz(correct bool, points, timeLimitSeconds int, elapsedMs int64, streak int) QuizResult {
	if !correct {
		return QuizResult{Streak: 0}
	}
	res := QuizResult{Correct: true, Base: points, Streak: streak + 1}
	res.TimeBonus = TimeBonus(points, timeLimitSeconds, elapsedMs)
	if res.Streak >= streakThreshold {
		res.StreakBonus = round(streakShare * float64(points))
	}
	return res
}

// TimeBonus rewards fast answers linearly down to zero at the item's time limit.
func TimeBonus(points, timeLimitSeconds int, elapsedMs int64) int {
	if timeLimitSeconds <= 0 {
		timeLimitSeconds = DefaultTimeLimitSeconds
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	fraction := math.Max(0, 1-float64(elapsedMs)/float64(timeLimitSeconds*1000))
	return round(timeBonusShare * float64(points) * fraction)
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
