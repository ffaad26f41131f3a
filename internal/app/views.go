package app

import (
	"time"

	"trivia-match-service/internal/domain"
)

// View types returned by game operations. They double as push payloads,
// so every field carries a JSON tag.

// QuestionView is the client-facing question shape. It never includes
// usage counters or the active flag.
type QuestionView struct {
	ID       string   `json:"questionId"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Category string   `json:"category"`
}

// PlayerView is the public slice of a participant.
type PlayerView struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// MatchStarted is the start-match result and the game_started payload.
type MatchStarted struct {
	SessionID   string `json:"sessionId"`
	RoomID      string `json:"roomId"`
	Topic       string `json:"topic"`
	TotalRounds int    `json:"totalRounds"`
	Players     int    `json:"players"`
}

// RoundStarted is the start-round result and the round_started payload.
type RoundStarted struct {
	Round       int          `json:"round"`
	TotalRounds int          `json:"totalRounds"`
	Phase       domain.Phase `json:"phase"`
	Question    QuestionView `json:"question"`
}

// AnswerAccepted is the submit-answer result.
type AnswerAccepted struct {
	PlayerID    string          `json:"playerId"`
	Progress    domain.Progress `json:"progress"`
	AllAnswered bool            `json:"allAnswered"`
}

// GuessAccepted is the submit-guess result.
type GuessAccepted struct {
	PlayerID   string          `json:"playerId"`
	TargetID   string          `json:"targetId"`
	Progress   domain.Progress `json:"progress"`
	AllGuessed bool            `json:"allGuessed"`
}

// ProgressEvent is the payload for player_answered / player_guessed.
// Progress only: no option values leak before the round closes.
type ProgressEvent struct {
	PlayerID    string          `json:"playerId"`
	Progress    domain.Progress `json:"progress"`
	AllReceived bool            `json:"allReceived"`
}

// AnsweringClosed is the close-answering result and phase_changed payload.
type AnsweringClosed struct {
	Phase   domain.Phase `json:"phase"`
	Players []PlayerView `json:"players"`
}

// RoundClosed is the close-guessing result and the round_ended payload.
type RoundClosed struct {
	Round       int                   `json:"round"`
	TotalRounds int                   `json:"totalRounds"`
	Results     []domain.RoundResult  `json:"results"`
	Ranking     []domain.RankingEntry `json:"ranking"`
	LastRound   bool                  `json:"lastRound"`
}

// MatchFinished is the finish-match result and the game_ended payload.
type MatchFinished struct {
	SessionID string                `json:"sessionId"`
	Winner    *domain.RankingEntry  `json:"winner,omitempty"`
	Ranking   []domain.RankingEntry `json:"ranking"`
	Stats     domain.MatchStats     `json:"stats"`
}

// ViewerState is the viewer-scoped slice of a snapshot.
type ViewerState struct {
	UserID      string        `json:"userId"`
	Score       int           `json:"score"`
	HasAnswered bool          `json:"hasAnswered"`
	HasGuessed  bool          `json:"hasGuessed"`
	Answer      string        `json:"answer,omitempty"`
	Guess       *domain.Guess `json:"guess,omitempty"`
}

// GameState is the read-only snapshot served by get-state.
type GameState struct {
	SessionID      string                `json:"sessionId"`
	RoomID         string                `json:"roomId"`
	Topic          string                `json:"topic"`
	Status         domain.SessionStatus  `json:"status"`
	Phase          domain.Phase          `json:"phase"`
	CurrentRound   int                   `json:"currentRound"`
	TotalRounds    int                   `json:"totalRounds"`
	Question       *QuestionView         `json:"question,omitempty"`
	Ranking        []domain.RankingEntry `json:"ranking"`
	AnswerProgress domain.Progress       `json:"answerProgress"`
	GuessProgress  domain.Progress       `json:"guessProgress"`
	Viewer         *ViewerState          `json:"viewer,omitempty"`
	StartedAt      time.Time             `json:"startedAt"`
	RoundStartedAt time.Time             `json:"roundStartedAt,omitempty"`
}

// RankedPlayer is a ranking row with its computed position.
type RankedPlayer struct {
	Position int `json:"position"`
	domain.RankingEntry
	First bool `json:"first"`
	Last  bool `json:"last"`
}

// RankingView is the detailed scoreboard served by get-ranking.
type RankingView struct {
	SessionID    string                       `json:"sessionId"`
	RoomID       string                       `json:"roomId"`
	Status       domain.SessionStatus         `json:"status"`
	Topic        string                       `json:"topic"`
	Ranking      []RankedPlayer               `json:"ranking"`
	Players      []domain.PlayerRankingDetail `json:"players"`
	Winner       *domain.RankingEntry         `json:"winner,omitempty"`
	TotalRounds  int                          `json:"totalRounds"`
	RoundsPlayed int                          `json:"roundsPlayed"`
	Stats        *domain.MatchStats           `json:"stats,omitempty"`
}
