package scoring

import "live-arena-service/internal/domain"

const (
	// MaxIntegrity is the starting integrity score of every participant.
	MaxIntegrity = 100

	diminishAfter = 3
	diminishShare = 0.5
)

// PenaltyTable maps violation severity to score penalties.
type PenaltyTable struct {
	Base map[domain.Severity]int
	// Min floors a diminished penalty.
	Min int
}

var (
	// QuizPenalties applies to quiz sessions.
	QuizPenalties = PenaltyTable{
		Base: map[domain.Severity]int{
			domain.SeverityLow:      2,
			domain.SeverityMedium:   5,
			domain.SeverityHigh:     10,
			domain.SeverityCritical: 20,
		},
		Min: 1,
	}
	// ContestPenalties applies to contest sessions.
	ContestPenalties = PenaltyTable{
		Base: map[domain.Severity]int{
			domain.SeverityLow:      5,
			domain.SeverityMedium:   10,
			domain.SeverityHigh:     20,
			domain.SeverityCritical: 50,
		},
		Min: 2,
	}

	integrityLoss = map[domain.Severity]int{
		domain.SeverityLow:      5,
		domain.SeverityMedium:   10,
		domain.SeverityHigh:     20,
		domain.SeverityCritical: 50,
	}
)

// Penalty is the score deduction for a violation. priorSameType counts earlier
// violations of the same type; from the fourth onwards the charge is halved.
func (t PenaltyTable) Penalty(severity domain.Severity, priorSameType int) int {
	base := t.Base[severity]
	if priorSameType < diminishAfter {
		return base
	}
	return max(t.Min, round(float64(base)*diminishShare))
}

// IntegrityLoss is never diminished.
func IntegrityLoss(severity domain.Severity) int {
	return integrityLoss[severity]
}

// PenaltyOutcome is the participant state after applying a violation.
type PenaltyOutcome struct {
	Penalty       int
	IntegrityLoss int
	Score         int
	Integrity     int
	Disqualified  bool
}

// ApplyPenalty computes new score and integrity, both floored at zero.
func ApplyPenalty(t PenaltyTable, severity domain.Severity, priorSameType, score, integrity int) PenaltyOutcome {
	out := PenaltyOutcome{
		Penalty:       t.Penalty(severity, priorSameType),
		IntegrityLoss: IntegrityLoss(severity),
	}
	out.Score = max(0, score-out.Penalty)
	out.Integrity = max(0, integrity-out.IntegrityLoss)
	out.Disqualified = out.Integrity == 0
	return out
}
