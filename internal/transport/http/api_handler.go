package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"trivia-match-service/internal/app"
)

// APIHandler exposes the game actions as a JSON API, mirroring the
// websocket action surface for clients that prefer request/response.
type APIHandler struct {
	game     *app.GameService
	log      *logrus.Logger
	validate *validator.Validate
}

func NewAPIHandler(game *app.GameService, log *logrus.Logger) *APIHandler {
	if log == nil {
		log = logrus.New()
	}
	return &APIHandler{game: game, log: log, validate: validator.New()}
}

// Register mounts all game routes on the router.
func (h *APIHandler) Register(router *httprouter.Router) {
	router.POST("/game/:roomId/start", h.startMatch)
	router.POST("/session/:sessionId/round", h.startRound)
	router.POST("/session/:sessionId/answer", h.submitAnswer)
	router.POST("/session/:sessionId/answers/close", h.closeAnswering)
	router.POST("/session/:sessionId/guess", h.submitGuess)
	router.POST("/session/:sessionId/guesses/close", h.closeGuessing)
	router.POST("/session/:sessionId/finish", h.finishMatch)
	router.GET("/session/:sessionId/state", h.getState)
	router.GET("/session/:sessionId/ranking", h.getRanking)
}

type startMatchRequest struct {
	HostID string `json:"hostId" validate:"required"`
}

type submitAnswerRequest struct {
	UserID string `json:"userId" validate:"required"`
	Option string `json:"option" validate:"required"`
}

type submitGuessRequest struct {
	UserID   string `json:"userId" validate:"required"`
	TargetID string `json:"targetId" validate:"required"`
	Guess    string `json:"guess" validate:"required"`
}

func (h *APIHandler) startMatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req startMatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, func() (any, error) {
		return h.game.StartMatch(r.Context(), ps.ByName("roomId"), req.HostID)
	})
}

func (h *APIHandler) startRound(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.respond(w, r, func() (any, error) {
		return h.game.StartRound(r.Context(), ps.ByName("sessionId"))
	})
}

func (h *APIHandler) submitAnswer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req submitAnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, func() (any, error) {
		return h.game.SubmitAnswer(r.Context(), ps.ByName("sessionId"), req.UserID, req.Option)
	})
}

func (h *APIHandler) closeAnswering(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.respond(w, r, func() (any, error) {
		return h.game.CloseAnsweringPhase(r.Context(), ps.ByName("sessionId"))
	})
}

func (h *APIHandler) submitGuess(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req submitGuessRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, func() (any, error) {
		return h.game.SubmitGuess(r.Context(), ps.ByName("sessionId"), req.UserID, req.TargetID, req.Guess)
	})
}

func (h *APIHandler) closeGuessing(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.respond(w, r, func() (any, error) {
		return h.game.CloseGuessingPhase(r.Context(), ps.ByName("sessionId"))
	})
}

func (h *APIHandler) finishMatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.respond(w, r, func() (any, error) {
		return h.game.FinishMatch(r.Context(), ps.ByName("sessionId"))
	})
}

func (h *APIHandler) getState(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	viewerID := r.URL.Query().Get("userId")
	h.respond(w, r, func() (any, error) {
		return h.game.GetState(r.Context(), ps.ByName("sessionId"), viewerID)
	})
}

func (h *APIHandler) getRanking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.respond(w, r, func() (any, error) {
		return h.game.GetRanking(r.Context(), ps.ByName("sessionId"))
	})
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: "malformed request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: err.Error()})
		return false
	}
	return true
}

func (h *APIHandler) respond(w http.ResponseWriter, r *http.Request, op func() (any, error)) {
	result, err := op()
	if err != nil {
		status, body := mapError(err)
		if status >= http.StatusInternalServerError {
			h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		}
		h.writeJSON(w, status, body)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.WithError(err).Error("failed to write response")
	}
}
