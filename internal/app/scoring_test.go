package app

import (
	"testing"
	"time"

	"trivia-match-service/internal/domain"
)

func scoringSession() *domain.Session {
	return &domain.Session{
		SessionID:         "session-1",
		CurrentRound:      1,
		CurrentQuestionID: "q1",
		Phase:             domain.PhaseRoundClosed,
		Roster: []domain.Player{
			{UserID: "a", Name: "Ana"},
			{UserID: "b", Name: "Bruno"},
			{UserID: "c", Name: "Carla"},
		},
		PointsPerGuess: 10,
		Answers: map[string]string{
			"a": "Red",
			"b": "Blue",
			"c": "Red",
		},
		Guesses: map[string]domain.Guess{
			"a": {Target: "b", Guess: "Blue"},
			"b": {Target: "c", Guess: "Blue"},
			"c": {Target: "a", Guess: "Red"},
		},
		Scores:    map[string]int{"a": 0, "b": 0, "c": 0},
		StartedAt: time.Now(),
	}
}

func TestScoreRoundAwardsCorrectGuesses(t *testing.T) {
	s := scoringSession()
	outcome := scoreRound(s, time.Now())

	if len(outcome.results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(outcome.results))
	}
	// Ana guessed Bruno's Blue and Carla guessed Ana's Red; Bruno missed.
	if outcome.scores["a"] != 10 || outcome.scores["c"] != 10 || outcome.scores["b"] != 0 {
		t.Fatalf("unexpected scores %+v", outcome.scores)
	}
	if outcome.deltas["b"] != 0 {
		t.Fatalf("expected no delta for a miss, got %d", outcome.deltas["b"])
	}

	for _, r := range outcome.results {
		if r.GuesserID == "b" {
			if r.Correct || r.PointsAwarded != 0 || r.ActualAnswer != "Red" {
				t.Fatalf("expected Bruno's miss against Red, got %+v", r)
			}
		} else if !r.Correct || r.PointsAwarded != 10 {
			t.Fatalf("expected a correct 10-point guess, got %+v", r)
		}
	}
}

func TestScoreRoundTotalMatchesCorrectCount(t *testing.T) {
	s := scoringSession()
	outcome := scoreRound(s, time.Now())

	correct := 0
	for _, r := range outcome.results {
		if r.Correct {
			correct++
		}
	}
	sum := 0
	for _, v := range outcome.scores {
		sum += v
	}
	if sum != correct*s.PointsPerGuess {
		t.Fatalf("score sum %d does not match %d correct guesses at %d points", sum, correct, s.PointsPerGuess)
	}
}

func TestScoreRoundDoesNotMutateSession(t *testing.T) {
	s := scoringSession()
	_ = scoreRound(s, time.Now())

	if s.Scores["a"] != 0 || s.Scores["c"] != 0 {
		t.Fatalf("scoreRound must not mutate the snapshot, got %+v", s.Scores)
	}
}

func TestComputeRankingStableTies(t *testing.T) {
	roster := []domain.Player{
		{UserID: "a", Name: "Ana"},
		{UserID: "b", Name: "Bruno"},
		{UserID: "c", Name: "Carla"},
	}
	ranking := computeRanking(roster, map[string]int{"a": 10, "b": 20, "c": 10})

	if ranking[0].UserID != "b" {
		t.Fatalf("expected Bruno first, got %+v", ranking)
	}
	// Ties keep roster order: Ana before Carla.
	if ranking[1].UserID != "a" || ranking[2].UserID != "c" {
		t.Fatalf("expected stable tie order a then c, got %+v", ranking)
	}
}

func TestBuildStats(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	s := &domain.Session{
		QuestionIDs: []string{"q1", "q2"},
		StartedAt:   start,
	}
	ranking := []domain.RankingEntry{
		{UserID: "a", Score: 20},
		{UserID: "b", Score: 10},
		{UserID: "c", Score: 0},
	}

	stats := buildStats(s, ranking, end)
	if stats.TotalRounds != 2 || stats.Players != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.DurationMS != 90000 {
		t.Fatalf("expected 90000ms, got %d", stats.DurationMS)
	}
	if stats.MaxScore != 20 || stats.MinScore != 0 || stats.MeanScore != 10 {
		t.Fatalf("unexpected score stats %+v", stats)
	}
}
