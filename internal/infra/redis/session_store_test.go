package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trivia-match-service/internal/app"
	"trivia-match-service/internal/domain"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionStore(client, time.Minute), mr
}

func redisSession() *domain.Session {
	return &domain.Session{
		SessionID:   "session-1",
		RoomID:      "room-1",
		Topic:       "colors",
		QuestionIDs: []string{"q1", "q2"},
		Phase:       domain.PhaseInitialized,
		Status:      domain.SessionActive,
		Roster: []domain.Player{
			{UserID: "u1", Name: "Ana"},
			{UserID: "u2", Name: "Bruno"},
		},
		PointsPerGuess: 10,
		Answers:        map[string]string{},
		Guesses:        map[string]domain.Guess{},
		Scores:         map[string]int{"u1": 0, "u2": 0},
		Ranking: []domain.RankingEntry{
			{UserID: "u1", Name: "Ana"},
			{UserID: "u2", Name: "Bruno"},
		},
		StartedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestSessionStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	if _, err := store.Get(ctx, "missing"); err != domain.ErrSessionNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := store.Create(ctx, redisSession()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("game:session:session-1") {
		t.Fatalf("expected session hash to be set")
	}

	loaded, err := store.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.RoomID != "room-1" || loaded.Topic != "colors" {
		t.Fatalf("unexpected session %+v", loaded)
	}
	if loaded.Phase != domain.PhaseInitialized || loaded.Status != domain.SessionActive {
		t.Fatalf("unexpected state %s/%s", loaded.Phase, loaded.Status)
	}
	if len(loaded.Roster) != 2 || loaded.PointsPerGuess != 10 {
		t.Fatalf("meta did not round-trip: %+v", loaded)
	}
	if loaded.Scores["u1"] != 0 || loaded.Scores["u2"] != 0 {
		t.Fatalf("unexpected scores %+v", loaded.Scores)
	}
	if len(loaded.Ranking) != 2 {
		t.Fatalf("unexpected ranking %+v", loaded.Ranking)
	}
}

func TestSessionStoreBeginRoundGuards(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, redisSession())

	ok, err := store.BeginRound(ctx, "session-1", 1, "q1", time.Now())
	if err != nil || !ok {
		t.Fatalf("begin round: ok=%v err=%v", ok, err)
	}

	// Already answering: the guard must reject.
	ok, err = store.BeginRound(ctx, "session-1", 2, "q2", time.Now())
	if err != nil || ok {
		t.Fatalf("expected rejection, ok=%v err=%v", ok, err)
	}

	if _, err := store.BeginRound(ctx, "missing", 1, "q1", time.Now()); err != domain.ErrSessionNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	session, _ := store.Get(ctx, "session-1")
	if session.CurrentRound != 1 || session.CurrentQuestionID != "q1" || session.Phase != domain.PhaseAnswering {
		t.Fatalf("unexpected session after begin %+v", session)
	}
}

func TestSessionStoreBeginRoundClearsSubmissions(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, redisSession())
	_, _ = store.BeginRound(ctx, "session-1", 1, "q1", time.Now())

	if _, err := store.AddAnswer(ctx, "session-1", "u1", "Red"); err != nil {
		t.Fatalf("add answer: %v", err)
	}
	if _, err := store.SwapPhase(ctx, "session-1", domain.PhaseAnswering, domain.PhaseGuessing); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, err := store.AddGuess(ctx, "session-1", "u2", domain.Guess{Target: "u1", Guess: "Red"}); err != nil {
		t.Fatalf("add guess: %v", err)
	}
	if _, err := store.SwapPhase(ctx, "session-1", domain.PhaseGuessing, domain.PhaseRoundClosed); err != nil {
		t.Fatalf("swap: %v", err)
	}

	ok, err := store.BeginRound(ctx, "session-1", 2, "q2", time.Now())
	if err != nil || !ok {
		t.Fatalf("begin second round: ok=%v err=%v", ok, err)
	}

	session, _ := store.Get(ctx, "session-1")
	if len(session.Answers) != 0 || len(session.Guesses) != 0 {
		t.Fatalf("expected cleared submissions, got %+v / %+v", session.Answers, session.Guesses)
	}
	if session.CurrentRound != 2 {
		t.Fatalf("expected round 2, got %d", session.CurrentRound)
	}
}

func TestSessionStoreConditionalSubmissions(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, redisSession())

	res, err := store.AddAnswer(ctx, "session-1", "u1", "Red")
	if err != nil {
		t.Fatalf("add answer: %v", err)
	}
	if res.Status != app.SubmissionWrongPhase || res.Phase != domain.PhaseInitialized {
		t.Fatalf("expected wrong-phase before round start, got %+v", res)
	}

	_, _ = store.BeginRound(ctx, "session-1", 1, "q1", time.Now())

	res, err = store.AddAnswer(ctx, "session-1", "u1", "Red")
	if err != nil {
		t.Fatalf("add answer: %v", err)
	}
	if res.Status != app.SubmissionAccepted || res.Submitted != 1 {
		t.Fatalf("expected accepted, got %+v", res)
	}

	res, err = store.AddAnswer(ctx, "session-1", "u1", "Blue")
	if err != nil {
		t.Fatalf("add answer: %v", err)
	}
	if res.Status != app.SubmissionDuplicate || res.Submitted != 1 {
		t.Fatalf("expected duplicate, got %+v", res)
	}

	res, err = store.AddAnswer(ctx, "session-1", "u2", "Green")
	if err != nil {
		t.Fatalf("add answer: %v", err)
	}
	if res.Submitted != 2 {
		t.Fatalf("expected count 2 with the write, got %+v", res)
	}

	// First write wins.
	session, _ := store.Get(ctx, "session-1")
	if session.Answers["u1"] != "Red" {
		t.Fatalf("duplicate overwrote the answer: %+v", session.Answers)
	}

	if _, err := store.AddAnswer(ctx, "missing", "u1", "Red"); err != domain.ErrSessionNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreGuessRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, redisSession())
	_, _ = store.BeginRound(ctx, "session-1", 1, "q1", time.Now())
	_, _ = store.SwapPhase(ctx, "session-1", domain.PhaseAnswering, domain.PhaseGuessing)

	res, err := store.AddGuess(ctx, "session-1", "u1", domain.Guess{Target: "u2", Guess: "Blue"})
	if err != nil {
		t.Fatalf("add guess: %v", err)
	}
	if res.Status != app.SubmissionAccepted || res.Submitted != 1 {
		t.Fatalf("expected accepted guess, got %+v", res)
	}

	session, _ := store.Get(ctx, "session-1")
	guess, ok := session.Guesses["u1"]
	if !ok || guess.Target != "u2" || guess.Guess != "Blue" {
		t.Fatalf("guess did not round-trip: %+v", session.Guesses)
	}
}

func TestSessionStoreSwapPhaseCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, redisSession())
	_, _ = store.BeginRound(ctx, "session-1", 1, "q1", time.Now())

	ok, err := store.SwapPhase(ctx, "session-1", domain.PhaseAnswering, domain.PhaseGuessing)
	if err != nil || !ok {
		t.Fatalf("swap: ok=%v err=%v", ok, err)
	}
	ok, err = store.SwapPhase(ctx, "session-1", domain.PhaseAnswering, domain.PhaseGuessing)
	if err != nil || ok {
		t.Fatalf("stale swap must lose, ok=%v err=%v", ok, err)
	}
	if _, err := store.SwapPhase(ctx, "missing", domain.PhaseAnswering, domain.PhaseGuessing); err != domain.ErrSessionNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreApplyResultsAndFinish(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	_ = store.Create(ctx, redisSession())
	_, _ = store.BeginRound(ctx, "session-1", 1, "q1", time.Now())

	now := time.Now().UTC()
	record := domain.RoundRecord{Round: 1, QuestionID: "q1", RecordedAt: now}
	ranking := []domain.RankingEntry{
		{UserID: "u1", Name: "Ana", Score: 10},
		{UserID: "u2", Name: "Bruno", Score: 0},
	}
	if err := store.ApplyRoundResults(ctx, "session-1", map[string]int{"u1": 10}, ranking, record); err != nil {
		t.Fatalf("apply results: %v", err)
	}
	if !mr.Exists("game:session:session-1:history") {
		t.Fatalf("expected history list to be set")
	}

	session, _ := store.Get(ctx, "session-1")
	if session.Scores["u1"] != 10 || session.Scores["u2"] != 0 {
		t.Fatalf("unexpected scores %+v", session.Scores)
	}
	if session.Ranking[0].UserID != "u1" || session.Ranking[0].Score != 10 {
		t.Fatalf("unexpected ranking %+v", session.Ranking)
	}

	history, err := store.History(ctx, "session-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Round != 1 || history[0].QuestionID != "q1" {
		t.Fatalf("unexpected history %+v", history)
	}

	stats := domain.MatchStats{TotalRounds: 2, Players: 2, MaxScore: 10}
	if err := store.Finish(ctx, "session-1", stats, now); err != nil {
		t.Fatalf("finish: %v", err)
	}
	session, _ = store.Get(ctx, "session-1")
	if session.Status != domain.SessionFinished {
		t.Fatalf("expected finished status, got %s", session.Status)
	}
	if session.Stats == nil || session.Stats.MaxScore != 10 {
		t.Fatalf("unexpected stats %+v", session.Stats)
	}
	if session.FinishedAt.IsZero() {
		t.Fatalf("expected finishedAt to be stamped")
	}
}
