package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trivia-match-service/internal/app"
	"trivia-match-service/internal/domain"
	"trivia-match-service/internal/infra/memory"
	"trivia-match-service/internal/realtime"
)

func wsQuestions() []domain.Question {
	options := []string{"Red", "Blue", "Green", "Yellow"}
	return []domain.Question{
		{ID: "q1", Text: "Pick a color.", Options: options, Topic: "colors", Active: true},
		{ID: "q2", Text: "Another color.", Options: options, Topic: "colors", Active: true},
	}
}

func wsRoom() domain.Room {
	return domain.Room{
		RoomID: "room-1",
		HostID: "u1",
		Status: domain.RoomWaiting,
		Config: domain.RoomConfig{Rounds: 1, PointsPerGuess: 10, Topic: "colors"},
		Players: []domain.Player{
			{UserID: "u1", Name: "Ana", Connected: true},
			{UserID: "u2", Name: "Bruno", Connected: true},
		},
	}
}

func newWSTestServer(t *testing.T) (*httptest.Server, *memory.RoomDirectory) {
	t.Helper()
	store := memory.NewSessionStore()
	catalog := memory.NewQuestionCatalog(memory.NewStaticQuestionLoader(wsQuestions()), time.Minute)
	rooms := memory.NewRoomDirectory(wsRoom())
	registry := realtime.NewRegistry(time.Minute)
	broadcaster := realtime.NewBroadcaster(registry, nil)
	service := app.NewGameService(store, catalog, rooms, broadcaster, nil)
	wsHandler := NewWSHandler(service, registry, rooms, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, rooms
}

func dialWS(t *testing.T, server *httptest.Server, roomID, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?roomId=" + roomID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil drains messages until one of the wanted type arrives. Replies
// carry a payload field, broadcasts a data field; both are returned raw.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
			Data    map[string]any `json:"data"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			if msg.Payload != nil {
				return msg.Payload
			}
			return msg.Data
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func writeAction(t *testing.T, conn *websocket.Conn, action string, payload map[string]any) {
	t.Helper()
	msg := map[string]any{"type": action}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", action, err)
	}
}

func TestWebSocketFullMatch(t *testing.T) {
	server, _ := newWSTestServer(t)

	host := dialWS(t, server, "room-1", "u1")
	peer := dialWS(t, server, "room-1", "u2")

	writeAction(t, host, "start_match", nil)
	started := readUntil(t, host, "match_started")
	sessionID, _ := started["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("expected session id in %+v", started)
	}
	// Non-host connections get the room broadcast.
	if got := readUntil(t, peer, "game_started"); got["sessionId"] != sessionID {
		t.Fatalf("expected peer to see the same session, got %+v", got)
	}

	session := map[string]any{"sessionId": sessionID}
	writeAction(t, host, "start_round", session)
	round := readUntil(t, host, "round_started")
	if round["round"].(float64) != 1 {
		t.Fatalf("unexpected round payload %+v", round)
	}
	readUntil(t, peer, "round_started")

	writeAction(t, host, "submit_answer", map[string]any{"sessionId": sessionID, "option": "Red"})
	readUntil(t, host, "answer_accepted")
	readUntil(t, peer, "player_answered")

	writeAction(t, peer, "submit_answer", map[string]any{"sessionId": sessionID, "option": "Blue"})
	readUntil(t, peer, "answer_accepted")

	writeAction(t, host, "close_answering", session)
	closed := readUntil(t, host, "answering_closed")
	if closed["phase"] != string(domain.PhaseGuessing) {
		t.Fatalf("unexpected phase payload %+v", closed)
	}

	writeAction(t, host, "submit_guess", map[string]any{"sessionId": sessionID, "targetId": "u2", "guess": "Blue"})
	readUntil(t, host, "guess_accepted")
	writeAction(t, peer, "submit_guess", map[string]any{"sessionId": sessionID, "targetId": "u1", "guess": "Green"})
	readUntil(t, peer, "guess_accepted")

	writeAction(t, host, "close_guessing", session)
	ended := readUntil(t, host, "guessing_closed")
	if ended["lastRound"] != true {
		t.Fatalf("expected last round flag, got %+v", ended)
	}

	writeAction(t, host, "finish_match", session)
	finished := readUntil(t, host, "match_finished")
	winner, _ := finished["winner"].(map[string]any)
	if winner == nil || winner["userId"] != "u1" {
		t.Fatalf("expected Ana as winner, got %+v", finished)
	}
	readUntil(t, peer, "game_ended")

	writeAction(t, peer, "get_state", session)
	state := readUntil(t, peer, "state")
	if state["status"] != string(domain.SessionFinished) {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestWebSocketRejectsMalformedActions(t *testing.T) {
	server, _ := newWSTestServer(t)
	conn := dialWS(t, server, "room-1", "u1")

	writeAction(t, conn, "submit_answer", map[string]any{"option": "Red"})
	errPayload := readUntil(t, conn, "error")
	if errPayload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %+v", errPayload)
	}

	writeAction(t, conn, "warp_to_round_nine", nil)
	errPayload = readUntil(t, conn, "error")
	if errPayload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %+v", errPayload)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	server, _ := newWSTestServer(t)

	resp, err := http.Get(server.URL + "/ws?roomId=room-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", resp.StatusCode)
	}
}

func TestWebSocketDisconnectFlagsPresence(t *testing.T) {
	server, rooms := newWSTestServer(t)

	conn := dialWS(t, server, "room-1", "u2")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		room, err := rooms.Room(context.Background(), "room-1")
		if err != nil {
			t.Fatalf("room: %v", err)
		}
		if p, _ := room.Player("u2"); !p.Connected {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("disconnect never flagged")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
