package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no session exists for the given ID.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrRoomNotFound is returned when the room directory has no such room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrQuestionNotFound indicates the catalog has no record for a question ID.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotHost is returned when a non-host user tries to start a match.
	ErrNotHost = errors.New("only the host can start the match")
	// ErrRoomNotWaiting is returned when the room already has a match going.
	ErrRoomNotWaiting = errors.New("room is not in waiting state")
	// ErrNotEnoughPlayers is returned when a match start needs more players.
	ErrNotEnoughPlayers = errors.New("at least two players are required")
	// ErrNotAPlayer is returned when the acting user is not in the match.
	ErrNotAPlayer = errors.New("user is not a participant of this match")
	// ErrTargetNotAPlayer is returned when a guess targets an unknown user.
	ErrTargetNotAPlayer = errors.New("target user is not a participant of this match")
	// ErrAlreadyAnswered is returned on a second answer in the same round.
	ErrAlreadyAnswered = errors.New("answer already submitted for this round")
	// ErrAlreadyGuessed is returned on a second guess in the same round.
	ErrAlreadyGuessed = errors.New("guess already submitted for this round")
	// ErrInvalidOption is returned when a value is not one of the question's options.
	ErrInvalidOption = errors.New("value is not one of the question options")
	// ErrSelfGuess is returned when a player guesses their own answer.
	ErrSelfGuess = errors.New("cannot guess your own answer")
	// ErrTargetNotAnswered is returned when the guess target has no answer yet.
	ErrTargetNotAnswered = errors.New("target has not answered yet")
	// ErrAllRoundsPlayed is returned when startRound runs past the question list.
	ErrAllRoundsPlayed = errors.New("all rounds have been played")
	// ErrSessionFinished is returned for any mutation of a finished session.
	ErrSessionFinished = errors.New("session is already finished")
	// ErrLastRoundNotClosed is returned when finish is requested mid-round.
	ErrLastRoundNotClosed = errors.New("close the last round before finishing the match")
)

// PhaseError is a state conflict: the session is not in a phase that
// permits the requested action. It carries the observed phase so clients
// can resynchronize via get-state.
type PhaseError struct {
	Current Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("action not allowed in phase %q", e.Current)
}

// IncompletePhaseError is returned by phase-close operations while
// submissions are still outstanding.
type IncompletePhaseError struct {
	Phase     Phase
	Remaining int
}

func (e *IncompletePhaseError) Error() string {
	return fmt.Sprintf("%d player(s) still pending in phase %q", e.Remaining, e.Phase)
}

// RoundsRemainingError is returned by finishMatch before the question list
// has been exhausted.
type RoundsRemainingError struct {
	Remaining int
}

func (e *RoundsRemainingError) Error() string {
	return fmt.Sprintf("%d round(s) still to be played", e.Remaining)
}

// InsufficientQuestionsError is returned when the topic pool cannot cover
// the configured round count.
type InsufficientQuestionsError struct {
	Topic     string
	Needed    int
	Available int
}

func (e *InsufficientQuestionsError) Error() string {
	return fmt.Sprintf("topic %q has %d active question(s), %d needed", e.Topic, e.Available, e.Needed)
}
