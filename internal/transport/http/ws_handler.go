package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trivia-match-service/internal/app"
	"trivia-match-service/internal/realtime"
)

// WSHandler upgrades HTTP requests to websockets, registers the connection
// for fan-out and routes inbound game actions to the service.
type WSHandler struct {
	game     *app.GameService
	registry *realtime.Registry
	rooms    app.RoomDirectory
	log      *logrus.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewWSHandler(game *app.GameService, registry *realtime.Registry, rooms app.RoomDirectory, log *logrus.Logger) *WSHandler {
	if log == nil {
		log = logrus.New()
	}
	return &WSHandler{
		game:     game,
		registry: registry,
		rooms:    rooms,
		log:      log,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type answerPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	Option    string `json:"option" validate:"required"`
}

type guessPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	TargetID  string `json:"targetId" validate:"required"`
	Guess     string `json:"guess" validate:"required"`
}

// wsClient wraps a connection with a write pump so pushes from multiple
// broadcasts never write concurrently.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

// Push queues one serialized event for the write pump.
func (c *wsClient) Push(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return realtime.ErrConnectionGone
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- data:
		return nil
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsClient) writePump(log *logrus.Logger) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("ws write failed")
				c.close()
				return
			}
		}
	}
}

// ServeWS registers the connection and runs the read loop. Connect
// requires roomId and userId query parameters; disconnect needs nothing.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	userID := r.URL.Query().Get("userId")
	if roomID == "" || userID == "" {
		http.Error(w, "missing roomId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	client := newWSClient(conn)
	connectionID := uuid.NewString()
	h.registry.Register(connectionID, roomID, userID, client)
	h.log.WithFields(logrus.Fields{
		"connectionId": connectionID,
		"roomId":       roomID,
		"userId":       userID,
	}).Info("ws connected")

	go client.writePump(h.log)

	defer func() {
		client.close()
		if record, ok := h.registry.Unregister(connectionID); ok {
			// The seat and score persist; only the presence flag flips.
			if err := h.rooms.MarkDisconnected(context.Background(), record.RoomID, record.UserID); err != nil {
				h.log.WithError(err).WithField("roomId", record.RoomID).Debug("failed to flag disconnect")
			}
		}
		h.log.WithFields(logrus.Fields{
			"connectionId": connectionID,
			"roomId":       roomID,
			"userId":       userID,
		}).Info("ws disconnected")
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		h.dispatch(r.Context(), client, roomID, userID, inbound)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *wsClient, roomID, userID string, inbound inboundMessage) {
	switch inbound.Type {
	case "start_match":
		h.reply(ctx, client, "match_started", func() (any, error) {
			return h.game.StartMatch(ctx, roomID, userID)
		})
	case "start_round":
		var payload sessionPayload
		if !h.decode(ctx, client, inbound.Payload, &payload) {
			return
		}
		h.reply(ctx, client, "round_started", func() (any, error) {
			return h.game.StartRound(ctx, payload.SessionID)
		})
	case "submit_answer":
		var payload answerPayload
		if !h.decode(ctx, client, inbound.Payload, &payload) {
			return
		}
		h.reply(ctx, client, "answer_accepted", func() (any, error) {
			return h.game.SubmitAnswer(ctx, payload.SessionID, userID, payload.Option)
		})
	case "close_answering":
		var payload sessionPayload
		if !h.decode(ctx, client, inbound.Payload, &payload) {
			return
		}
		h.reply(ctx, client, "answering_closed", func() (any, error) {
			return h.game.CloseAnsweringPhase(ctx, payload.SessionID)
		})
	case "submit_guess":
		var payload guessPayload
		if !h.decode(ctx, client, inbound.Payload, &payload) {
			return
		}
		h.reply(ctx, client, "guess_accepted", func() (any, error) {
			return h.game.SubmitGuess(ctx, payload.SessionID, userID, payload.TargetID, payload.Guess)
		})
	case "close_guessing":
		var payload sessionPayload
		if !h.decode(ctx, client, inbound.Payload, &payload) {
			return
		}
		h.reply(ctx, client, "guessing_closed", func() (any, error) {
			return h.game.CloseGuessingPhase(ctx, payload.SessionID)
		})
	case "finish_match":
		var payload sessionPayload
		if !h.decode(ctx, client, inbound.Payload, &payload) {
			return
		}
		h.reply(ctx, client, "match_finished", func() (any, error) {
			return h.game.FinishMatch(ctx, payload.SessionID)
		})
	case "get_state":
		var payload sessionPayload
		if !h.decode(ctx, client, inbound.Payload, &payload) {
			return
		}
		h.reply(ctx, client, "state", func() (any, error) {
			return h.game.GetState(ctx, payload.SessionID, userID)
		})
	case "get_ranking":
		var payload sessionPayload
		if !h.decode(ctx, client, inbound.Payload, &payload) {
			return
		}
		h.reply(ctx, client, "ranking", func() (any, error) {
			return h.game.GetRanking(ctx, payload.SessionID)
		})
	default:
		h.sendError(ctx, client, errorBody{Code: "VALIDATION_ERROR", Message: "unsupported message type"})
	}
}

func (h *WSHandler) decode(ctx context.Context, client *wsClient, raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		h.sendError(ctx, client, errorBody{Code: "VALIDATION_ERROR", Message: "malformed payload"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.sendError(ctx, client, errorBody{Code: "VALIDATION_ERROR", Message: err.Error()})
		return false
	}
	return true
}

func (h *WSHandler) reply(ctx context.Context, client *wsClient, successType string, op func() (any, error)) {
	result, err := op()
	if err != nil {
		_, body := mapError(err)
		h.sendError(ctx, client, body)
		return
	}
	h.send(ctx, client, outboundMessage{Type: successType, Payload: result})
}

func (h *WSHandler) sendError(ctx context.Context, client *wsClient, body errorBody) {
	h.send(ctx, client, outboundMessage{Type: "error", Payload: body})
}

func (h *WSHandler) send(ctx context.Context, client *wsClient, msg outboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("failed to encode outbound message")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Push(ctx, data); err != nil {
		h.log.WithError(err).Debug("direct reply failed")
	}
}
