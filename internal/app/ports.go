package app

import (
	"context"
	"time"

	"trivia-match-service/internal/domain"
)

// SubmissionStatus is the outcome of a conditional submission write.
type SubmissionStatus int

const (
	// SubmissionAccepted means the store inserted the entry.
	SubmissionAccepted SubmissionStatus = iota
	// SubmissionDuplicate means an entry already existed for the player.
	SubmissionDuplicate
	// SubmissionWrongPhase means the session left the expected phase.
	SubmissionWrongPhase
)

// SubmissionResult reports a conditional submission together with the
// submission count observed atomically with the write.
type SubmissionResult struct {
	Status    SubmissionStatus
	Phase     domain.Phase
	Submitted int
}

// SessionStore is the keyed document store holding one Session record per
// match. Correctness rests on its conditional primitives: submissions are
// insert-if-absent atomic with a phase guard, and phase transitions are
// compare-and-set, so concurrent writers can never overwrite each other's
// entries or double-run a transition.
type SessionStore interface {
	// Create stores a freshly initialized session record.
	Create(ctx context.Context, s *domain.Session) error
	// Get loads the session or returns domain.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	// History returns the append-only round records, oldest first.
	History(ctx context.Context, sessionID string) ([]domain.RoundRecord, error)

	// BeginRound advances to the given round only while the phase is
	// initialized or round_closed and the round number matches the
	// expected successor. It sets the question, clears answers and guesses
	// and stamps the round start, all atomically. Returns false when the
	// guard fails.
	BeginRound(ctx context.Context, sessionID string, round int, questionID string, at time.Time) (bool, error)

	// AddAnswer inserts the player's answer only if the phase is still
	// answering and the player has no answer on record.
	AddAnswer(ctx context.Context, sessionID, playerID, option string) (SubmissionResult, error)
	// AddGuess inserts the player's guess only if the phase is still
	// guessing and the player has no guess on record.
	AddGuess(ctx context.Context, sessionID, playerID string, guess domain.Guess) (SubmissionResult, error)

	// SwapPhase compare-and-sets the phase field. Exactly one of two
	// concurrent swaps with the same expectation succeeds.
	SwapPhase(ctx context.Context, sessionID string, from, to domain.Phase) (bool, error)

	// ApplyRoundResults persists scoring output. Only the winner of the
	// guessing -> round_closed swap calls this, so plain writes suffice.
	ApplyRoundResults(ctx context.Context, sessionID string, deltas map[string]int, ranking []domain.RankingEntry, record domain.RoundRecord) error

	// Finish marks the session finished and stores the final stats. Only
	// the winner of the round_closed -> finished swap calls this.
	Finish(ctx context.Context, sessionID string, stats domain.MatchStats, at time.Time) error
}

// QuestionCatalog provides immutable question records.
type QuestionCatalog interface {
	Question(ctx context.Context, questionID string) (domain.Question, error)
	// ActiveByTopic returns the active question pool for a topic.
	ActiveByTopic(ctx context.Context, topic string) ([]domain.Question, error)
	// IncrementUsage bumps a question's usage counter. Callers treat it as
	// best-effort.
	IncrementUsage(ctx context.Context, questionID string) error
}

// RoomDirectory provides room membership, host identity and configuration.
type RoomDirectory interface {
	Room(ctx context.Context, roomID string) (domain.Room, error)
	SetStatus(ctx context.Context, roomID string, status domain.RoomStatus, sessionID string) error
	// MarkDisconnected flags a participant as offline without removing
	// their seat or score.
	MarkDisconnected(ctx context.Context, roomID, userID string) error
}

// Notifier pushes events to connected clients. Delivery failures stay
// inside the stats and are never surfaced to game operations.
type Notifier interface {
	Broadcast(ctx context.Context, roomID, event string, payload any, excludeUserID string) domain.DeliveryStats
	SendToUser(ctx context.Context, userID, event string, payload any) domain.DeliveryStats
}

// Push event types, room-scoped unless noted.
const (
	EventGameStarted    = "game_started"
	EventRoundStarted   = "round_started"
	EventPlayerAnswered = "player_answered"
	EventPhaseChanged   = "phase_changed"
	EventPlayerGuessed  = "player_guessed"
	EventRoundEnded     = "round_ended"
	EventGameEnded      = "game_ended"
)
