package app

import (
	"sort"
	"time"

	"live-arena-service/internal/domain"
)

// BuildLeaderboard ranks participants by score. Contests break ties on the
// number of solved items; remaining ties keep join order. Ranks are 1-based
// and computed fresh on every call.
func BuildLeaderboard(s *domain.Session, now time.Time) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(s.Participants))
	for _, p := range s.Participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID:  p.ID,
			DisplayName:    p.DisplayName,
			Score:          p.Score,
			Solved:         p.SolvedCount(),
			Streak:         p.Streak,
			Answered:       len(p.AnsweredIndices()),
			IntegrityScore: p.IntegrityScore,
			TotalPenalty:   p.TotalPenalty,
			ViolationCount: len(p.Violations),
			Disqualified:   p.Disqualified,
		})
	}

	contest := s.Kind == domain.KindContest
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if contest {
			return entries[i].Solved > entries[j].Solved
		}
		return false
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return domain.Leaderboard{
		SessionID: s.ID,
		Entries:   entries,
		UpdatedAt: now,
	}
}

func buildProgress(s *domain.Session) []ParticipantProgress {
	out := make([]ParticipantProgress, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, ParticipantProgress{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Answered:      len(p.AnsweredIndices()),
			Total:         len(s.Items),
			Score:         p.Score,
			Completed:     p.Completed,
		})
	}
	return out
}
