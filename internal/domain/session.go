package domain

import "time"

// Phase is the sub-state of a round plus the match-level endpoints.
// Per round the order is answering -> guessing -> round_closed; match-level
// it is initialized -> (round cycle)* -> finished. Transitions only happen
// through phase-guarded store writes, never implicitly.
type Phase string

const (
	PhaseInitialized Phase = "initialized"
	PhaseAnswering   Phase = "answering"
	PhaseGuessing    Phase = "guessing"
	PhaseRoundClosed Phase = "round_closed"
	PhaseFinished    Phase = "finished"
)

// SessionStatus is the coarse match lifecycle.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
)

// Session is the authoritative record for one match. It is owned by the
// session store; core logic loads it, validates the requested action and
// applies the mutation through the store's conditional primitives.
type Session struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
	Topic     string `json:"topic"`

	// QuestionIDs is fixed at creation; CurrentRound never exceeds its length.
	QuestionIDs       []string `json:"questionIds"`
	CurrentRound      int      `json:"currentRound"`
	CurrentQuestionID string   `json:"currentQuestionId,omitempty"`

	Phase  Phase         `json:"phase"`
	Status SessionStatus `json:"status"`

	// Answers and Guesses are cleared at every round start. Their key sets
	// are subsets of the roster captured at creation.
	Answers map[string]string `json:"answers"`
	Guesses map[string]Guess  `json:"guesses"`
	Scores  map[string]int    `json:"scores"`

	// Roster preserves the room's player order at match start; ranking ties
	// keep this relative order.
	Roster         []Player       `json:"roster"`
	PointsPerGuess int            `json:"pointsPerGuess"`
	Ranking        []RankingEntry `json:"ranking"`
	Stats          *MatchStats    `json:"stats,omitempty"`

	StartedAt      time.Time `json:"startedAt"`
	RoundStartedAt time.Time `json:"roundStartedAt,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
	FinishedAt     time.Time `json:"finishedAt,omitempty"`
}

// TotalRounds is the number of questions drawn at match start.
func (s *Session) TotalRounds() int {
	return len(s.QuestionIDs)
}

// PlayerCount is the roster size fixed at match start.
func (s *Session) PlayerCount() int {
	return len(s.Roster)
}

// IsParticipant reports whether the user was in the room at match start.
func (s *Session) IsParticipant(userID string) bool {
	_, ok := s.Scores[userID]
	return ok
}

// PlayerInfo returns roster metadata for a participant.
func (s *Session) PlayerInfo(userID string) (Player, bool) {
	for _, p := range s.Roster {
		if p.UserID == userID {
			return p, true
		}
	}
	return Player{}, false
}

// HasAnswered reports whether the player already answered this round.
func (s *Session) HasAnswered(userID string) bool {
	_, ok := s.Answers[userID]
	return ok
}

// HasGuessed reports whether the player already guessed this round.
func (s *Session) HasGuessed(userID string) bool {
	_, ok := s.Guesses[userID]
	return ok
}

// AnswerProgress counts answers received for the current round.
func (s *Session) AnswerProgress() Progress {
	total := s.PlayerCount()
	return Progress{
		Submitted: len(s.Answers),
		Total:     total,
		Remaining: total - len(s.Answers),
	}
}

// GuessProgress counts guesses received for the current round.
func (s *Session) GuessProgress() Progress {
	total := s.PlayerCount()
	return Progress{
		Submitted: len(s.Guesses),
		Total:     total,
		Remaining: total - len(s.Guesses),
	}
}
