package app

import (
	"testing"
	"time"

	"live-arena-service/internal/domain"
)

func TestLeaderboardContestTieBreaksOnSolved(t *testing.T) {
	s := &domain.Session{
		ID:   "s1",
		Kind: domain.KindContest,
		Participants: []*domain.Participant{
			{ID: "a", DisplayName: "A", Score: 100, Solved: map[int]bool{0: true}},
			{ID: "b", DisplayName: "B", Score: 100, Solved: map[int]bool{0: true, 1: true}},
			{ID: "c", DisplayName: "C", Score: 150},
		},
	}
	lb := BuildLeaderboard(s, time.Unix(0, 0))

	want := []string{"c", "b", "a"}
	for i, id := range want {
		if lb.Entries[i].ParticipantID != id || lb.Entries[i].Rank != i+1 {
			t.Fatalf("position %d: got %+v", i, lb.Entries[i])
		}
	}
}

func TestLeaderboardQuizTiesKeepJoinOrder(t *testing.T) {
	s := &domain.Session{
		Kind: domain.KindQuiz,
		Participants: []*domain.Participant{
			{ID: "first", Score: 10, Answers: []domain.Answer{{ItemIndex: 0}}},
			{ID: "second", Score: 10, Answers: []domain.Answer{{ItemIndex: 0}, {ItemIndex: 1}}},
			{ID: "third", Score: 0, Violations: []domain.Violation{{Type: "paste"}}, TotalPenalty: 2, IntegrityScore: 95},
		},
	}
	lb := BuildLeaderboard(s, time.Unix(0, 0))

	if lb.Entries[0].ParticipantID != "first" || lb.Entries[1].ParticipantID != "second" {
		t.Fatalf("quiz ties must keep input order: %+v", lb.Entries)
	}
	last := lb.Entries[2]
	if last.ViolationCount != 1 || last.TotalPenalty != 2 || last.IntegrityScore != 95 {
		t.Fatalf("unexpected projection %+v", last)
	}
	if lb.RankOf("second") != 2 || lb.RankOf("nobody") != 0 {
		t.Fatalf("unexpected ranks")
	}
}
