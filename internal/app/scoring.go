package app

import (
	"sort"
	"time"

	"trivia-match-service/internal/domain"
)

// roundOutcome is the full output of scoring one round.
type roundOutcome struct {
	results []domain.RoundResult
	deltas  map[string]int
	scores  map[string]int
	ranking []domain.RankingEntry
}

// scoreRound computes the results for a closed guessing phase. The session
// snapshot must be complete (every participant answered and guessed); the
// caller guarantees that by winning the phase swap after a full progress
// check. Pure: no I/O, no mutation of the input.
func scoreRound(s *domain.Session, at time.Time) roundOutcome {
	deltas := make(map[string]int, len(s.Guesses))
	results := make([]domain.RoundResult, 0, len(s.Guesses))

	// Roster order keeps result rows deterministic.
	for _, p := range s.Roster {
		guess, ok := s.Guesses[p.UserID]
		if !ok {
			continue
		}
		actual := s.Answers[guess.Target]
		correct := guess.Guess == actual

		awarded := 0
		if correct {
			awarded = s.PointsPerGuess
			deltas[p.UserID] += awarded
		}

		target, _ := s.PlayerInfo(guess.Target)
		results = append(results, domain.RoundResult{
			GuesserID:     p.UserID,
			GuesserName:   p.Name,
			TargetID:      guess.Target,
			TargetName:    target.Name,
			Guess:         guess.Guess,
			ActualAnswer:  actual,
			Correct:       correct,
			PointsAwarded: awarded,
		})
	}

	scores := make(map[string]int, len(s.Scores))
	for id, score := range s.Scores {
		scores[id] = score + deltas[id]
	}

	return roundOutcome{
		results: results,
		deltas:  deltas,
		scores:  scores,
		ranking: computeRanking(s.Roster, scores),
	}
}

// computeRanking sorts the scoreboard by score descending. Ties keep the
// roster's relative order: the sort is stable and the input follows the
// player order captured at match start.
func computeRanking(roster []domain.Player, scores map[string]int) []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(roster))
	for _, p := range roster {
		entries = append(entries, domain.RankingEntry{
			UserID:    p.UserID,
			Name:      p.Name,
			AvatarURL: p.AvatarURL,
			Score:     scores[p.UserID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// buildRoundRecord assembles the history entry for a scored round.
func buildRoundRecord(s *domain.Session, results []domain.RoundResult, at time.Time) domain.RoundRecord {
	answers := make(map[string]string, len(s.Answers))
	for id, a := range s.Answers {
		answers[id] = a
	}
	guesses := make(map[string]domain.Guess, len(s.Guesses))
	for id, g := range s.Guesses {
		guesses[id] = g
	}
	return domain.RoundRecord{
		Round:      s.CurrentRound,
		QuestionID: s.CurrentQuestionID,
		Answers:    answers,
		Guesses:    guesses,
		Results:    results,
		RecordedAt: at,
	}
}

// buildStats computes the final match statistics from the closing ranking.
func buildStats(s *domain.Session, ranking []domain.RankingEntry, at time.Time) domain.MatchStats {
	stats := domain.MatchStats{
		TotalRounds: s.TotalRounds(),
		DurationMS:  at.Sub(s.StartedAt).Milliseconds(),
		Players:     len(ranking),
	}
	if len(ranking) == 0 {
		return stats
	}
	sum := 0
	for _, e := range ranking {
		sum += e.Score
	}
	stats.MaxScore = ranking[0].Score
	stats.MinScore = ranking[len(ranking)-1].Score
	stats.MeanScore = float64(sum) / float64(len(ranking))
	return stats
}
