package http

import (
	"errors"
	"net/http"

	"trivia-match-service/internal/domain"
)

// errorBody is the wire shape for every failure, with enough context for
// the client to resynchronize via get-state.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// mapError classifies a failure into an HTTP status and a machine code.
// State conflicts carry the observed phase or the remaining count; store
// outages collapse into a generic 5xx and the client retries the whole
// action, which is safe because every mutation is idempotent-guarded.
func mapError(err error) (int, errorBody) {
	var phaseErr *domain.PhaseError
	if errors.As(err, &phaseErr) {
		return http.StatusConflict, errorBody{
			Code:    "INVALID_PHASE",
			Message: err.Error(),
			Details: map[string]any{"currentPhase": phaseErr.Current},
		}
	}
	var incompleteErr *domain.IncompletePhaseError
	if errors.As(err, &incompleteErr) {
		return http.StatusConflict, errorBody{
			Code:    "INCOMPLETE_PHASE",
			Message: err.Error(),
			Details: map[string]any{"phase": incompleteErr.Phase, "remaining": incompleteErr.Remaining},
		}
	}
	var roundsErr *domain.RoundsRemainingError
	if errors.As(err, &roundsErr) {
		return http.StatusConflict, errorBody{
			Code:    "ROUNDS_REMAINING",
			Message: err.Error(),
			Details: map[string]any{"remaining": roundsErr.Remaining},
		}
	}
	var questionsErr *domain.InsufficientQuestionsError
	if errors.As(err, &questionsErr) {
		return http.StatusBadRequest, errorBody{
			Code:    "INSUFFICIENT_QUESTIONS",
			Message: err.Error(),
			Details: map[string]any{"topic": questionsErr.Topic, "needed": questionsErr.Needed, "available": questionsErr.Available},
		}
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden, errorBody{Code: "NOT_HOST", Message: err.Error()}
	case errors.Is(err, domain.ErrNotAPlayer):
		return http.StatusForbidden, errorBody{Code: "NOT_A_PLAYER", Message: err.Error()}
	case errors.Is(err, domain.ErrTargetNotAPlayer):
		return http.StatusNotFound, errorBody{Code: "TARGET_NOT_A_PLAYER", Message: err.Error()}
	case errors.Is(err, domain.ErrRoomNotWaiting):
		return http.StatusConflict, errorBody{Code: "ROOM_NOT_WAITING", Message: err.Error()}
	case errors.Is(err, domain.ErrNotEnoughPlayers):
		return http.StatusBadRequest, errorBody{Code: "INSUFFICIENT_PLAYERS", Message: err.Error()}
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return http.StatusConflict, errorBody{Code: "ALREADY_ANSWERED", Message: err.Error()}
	case errors.Is(err, domain.ErrAlreadyGuessed):
		return http.StatusConflict, errorBody{Code: "ALREADY_GUESSED", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidOption):
		return http.StatusBadRequest, errorBody{Code: "INVALID_OPTION", Message: err.Error()}
	case errors.Is(err, domain.ErrSelfGuess):
		return http.StatusBadRequest, errorBody{Code: "SELF_GUESS", Message: err.Error()}
	case errors.Is(err, domain.ErrTargetNotAnswered):
		return http.StatusConflict, errorBody{Code: "TARGET_NOT_ANSWERED", Message: err.Error()}
	case errors.Is(err, domain.ErrAllRoundsPlayed):
		return http.StatusConflict, errorBody{Code: "ALL_ROUNDS_PLAYED", Message: err.Error()}
	case errors.Is(err, domain.ErrLastRoundNotClosed):
		return http.StatusConflict, errorBody{Code: "LAST_ROUND_NOT_CLOSED", Message: err.Error()}
	case errors.Is(err, domain.ErrSessionFinished):
		return http.StatusConflict, errorBody{Code: "SESSION_FINISHED", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Message: "internal error"}
	}
}
