package app

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trivia-match-service/internal/domain"
)

// GameService owns the round state machine for match sessions. Every
// operation loads the session, validates the action against the current
// phase and applies the mutation through the store's conditional
// primitives; fan-out runs after the write has been committed and its
// failures never roll anything back.
type GameService struct {
	sessions SessionStore
	catalog  QuestionCatalog
	rooms    RoomDirectory
	notify   Notifier
	log      *logrus.Logger
	now      func() time.Time
	newID    func() string
}

func NewGameService(sessions SessionStore, catalog QuestionCatalog, rooms RoomDirectory, notify Notifier, log *logrus.Logger) *GameService {
	if log == nil {
		log = logrus.New()
	}
	return &GameService{
		sessions: sessions,
		catalog:  catalog,
		rooms:    rooms,
		notify:   notify,
		log:      log,
		now:      time.Now,
		newID:    func() string { return "session-" + uuid.NewString() },
	}
}

// WithClock is test-only for deterministic timestamps.
func (g *GameService) WithClock(now func() time.Time) *GameService {
	g.now = now
	return g
}

// WithIDGenerator is test-only for deterministic session IDs.
func (g *GameService) WithIDGenerator(gen func() string) *GameService {
	g.newID = gen
	return g
}

// StartMatch creates a session for the room with a freshly sampled
// question list and flips the room into its in-game state. Only the host
// can start, the room must still be waiting, and the topic pool must cover
// the configured round count.
func (g *GameService) StartMatch(ctx context.Context, roomID, hostID string) (MatchStarted, error) {
	room, err := g.rooms.Room(ctx, roomID)
	if err != nil {
		return MatchStarted{}, err
	}
	if room.HostID != hostID {
		return MatchStarted{}, domain.ErrNotHost
	}
	if room.Status != domain.RoomWaiting {
		return MatchStarted{}, domain.ErrRoomNotWaiting
	}
	if len(room.Players) < domain.MinPlayers {
		return MatchStarted{}, domain.ErrNotEnoughPlayers
	}

	cfg := room.Config.Normalized()
	pool, err := g.catalog.ActiveByTopic(ctx, cfg.Topic)
	if err != nil {
		return MatchStarted{}, err
	}
	if len(pool) < cfg.Rounds {
		return MatchStarted{}, &domain.InsufficientQuestionsError{
			Topic:     cfg.Topic,
			Needed:    cfg.Rounds,
			Available: len(pool),
		}
	}

	questionIDs := sampleQuestionIDs(pool, cfg.Rounds)

	now := g.now()
	scores := make(map[string]int, len(room.Players))
	roster := make([]domain.Player, len(room.Players))
	copy(roster, room.Players)
	for _, p := range roster {
		scores[p.UserID] = 0
	}

	session := &domain.Session{
		SessionID:      g.newID(),
		RoomID:         roomID,
		Topic:          cfg.Topic,
		QuestionIDs:    questionIDs,
		CurrentRound:   0,
		Phase:          domain.PhaseInitialized,
		Status:         domain.SessionActive,
		Answers:        map[string]string{},
		Guesses:        map[string]domain.Guess{},
		Scores:         scores,
		Roster:         roster,
		PointsPerGuess: cfg.PointsPerGuess,
		Ranking:        computeRanking(roster, scores),
		StartedAt:      now,
		UpdatedAt:      now,
	}

	if err := g.sessions.Create(ctx, session); err != nil {
		return MatchStarted{}, err
	}
	if err := g.rooms.SetStatus(ctx, roomID, domain.RoomInGame, session.SessionID); err != nil {
		g.log.WithError(err).WithField("roomId", roomID).Warn("failed to flip room into game state")
	}

	g.log.WithFields(logrus.Fields{
		"sessionId": session.SessionID,
		"roomId":    roomID,
		"topic":     cfg.Topic,
		"rounds":    cfg.Rounds,
		"players":   len(roster),
	}).Info("match started")

	started := MatchStarted{
		SessionID:   session.SessionID,
		RoomID:      roomID,
		Topic:       cfg.Topic,
		TotalRounds: cfg.Rounds,
		Players:     len(roster),
	}
	g.notify.Broadcast(ctx, roomID, EventGameStarted, started, "")
	return started, nil
}

// StartRound advances to the next question. The store guards the
// transition: the phase must be initialized or round_closed and the round
// number must be the expected successor, so two concurrent starts yield
// one winner.
func (g *GameService) StartRound(ctx context.Context, sessionID string) (RoundStarted, error) {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return RoundStarted{}, err
	}
	if session.Status == domain.SessionFinished {
		return RoundStarted{}, domain.ErrSessionFinished
	}
	if session.Phase != domain.PhaseInitialized && session.Phase != domain.PhaseRoundClosed {
		return RoundStarted{}, &domain.PhaseError{Current: session.Phase}
	}
	next := session.CurrentRound + 1
	if next > session.TotalRounds() {
		return RoundStarted{}, domain.ErrAllRoundsPlayed
	}

	questionID := session.QuestionIDs[session.CurrentRound]
	question, err := g.catalog.Question(ctx, questionID)
	if err != nil {
		return RoundStarted{}, err
	}

	now := g.now()
	ok, err := g.sessions.BeginRound(ctx, sessionID, next, questionID, now)
	if err != nil {
		return RoundStarted{}, err
	}
	if !ok {
		return RoundStarted{}, g.phaseConflict(ctx, sessionID)
	}

	// Usage counters are advisory; never block the round on them.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.catalog.IncrementUsage(ctx, questionID); err != nil {
			g.log.WithError(err).WithField("questionId", questionID).Debug("usage counter increment failed")
		}
	}()

	started := RoundStarted{
		Round:       next,
		TotalRounds: session.TotalRounds(),
		Phase:       domain.PhaseAnswering,
		Question: QuestionView{
			ID:       question.ID,
			Text:     question.Text,
			Options:  question.Options,
			Category: question.Category,
		},
	}
	g.notify.Broadcast(ctx, session.RoomID, EventRoundStarted, started, "")
	return started, nil
}

// SubmitAnswer records a player's answer for the current round. The store
// accepts at most one answer per player per round, atomically with the
// phase check, so two concurrent submissions for the same player yield
// exactly one success.
func (g *GameService) SubmitAnswer(ctx context.Context, sessionID, playerID, option string) (AnswerAccepted, error) {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return AnswerAccepted{}, err
	}
	if session.Status == domain.SessionFinished {
		return AnswerAccepted{}, domain.ErrSessionFinished
	}
	if session.Phase != domain.PhaseAnswering {
		return AnswerAccepted{}, &domain.PhaseError{Current: session.Phase}
	}
	if !session.IsParticipant(playerID) {
		return AnswerAccepted{}, domain.ErrNotAPlayer
	}

	question, err := g.catalog.Question(ctx, session.CurrentQuestionID)
	if err != nil {
		return AnswerAccepted{}, err
	}
	if !question.HasOption(option) {
		return AnswerAccepted{}, domain.ErrInvalidOption
	}

	res, err := g.sessions.AddAnswer(ctx, sessionID, playerID, option)
	if err != nil {
		return AnswerAccepted{}, err
	}
	switch res.Status {
	case SubmissionWrongPhase:
		return AnswerAccepted{}, &domain.PhaseError{Current: res.Phase}
	case SubmissionDuplicate:
		return AnswerAccepted{}, domain.ErrAlreadyAnswered
	}

	total := session.PlayerCount()
	progress := domain.Progress{
		Submitted: res.Submitted,
		Total:     total,
		Remaining: total - res.Submitted,
	}
	accepted := AnswerAccepted{
		PlayerID:    playerID,
		Progress:    progress,
		AllAnswered: progress.Complete(),
	}
	// Progress only; nobody learns what was answered before the round closes.
	g.notify.Broadcast(ctx, session.RoomID, EventPlayerAnswered, ProgressEvent{
		PlayerID:    playerID,
		Progress:    progress,
		AllReceived: accepted.AllAnswered,
	}, "")
	return accepted, nil
}

// CloseAnsweringPhase moves answering -> guessing once every participant
// has answered.
func (g *GameService) CloseAnsweringPhase(ctx context.Context, sessionID string) (AnsweringClosed, error) {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return AnsweringClosed{}, err
	}
	if session.Status == domain.SessionFinished {
		return AnsweringClosed{}, domain.ErrSessionFinished
	}
	if session.Phase != domain.PhaseAnswering {
		return AnsweringClosed{}, &domain.PhaseError{Current: session.Phase}
	}
	if progress := session.AnswerProgress(); !progress.Complete() {
		return AnsweringClosed{}, &domain.IncompletePhaseError{
			Phase:     domain.PhaseAnswering,
			Remaining: progress.Remaining,
		}
	}

	ok, err := g.sessions.SwapPhase(ctx, sessionID, domain.PhaseAnswering, domain.PhaseGuessing)
	if err != nil {
		return AnsweringClosed{}, err
	}
	if !ok {
		return AnsweringClosed{}, g.phaseConflict(ctx, sessionID)
	}

	// List who can be guessed about without revealing any answer.
	players := make([]PlayerView, 0, len(session.Roster))
	for _, p := range session.Roster {
		if session.HasAnswered(p.UserID) {
			players = append(players, PlayerView{UserID: p.UserID, Name: p.Name, AvatarURL: p.AvatarURL})
		}
	}

	closed := AnsweringClosed{Phase: domain.PhaseGuessing, Players: players}
	g.notify.Broadcast(ctx, session.RoomID, EventPhaseChanged, closed, "")
	return closed, nil
}

// SubmitGuess records a player's guess about another player's answer.
func (g *GameService) SubmitGuess(ctx context.Context, sessionID, guesserID, targetID, option string) (GuessAccepted, error) {
	if guesserID == targetID {
		return GuessAccepted{}, domain.ErrSelfGuess
	}
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return GuessAccepted{}, err
	}
	if session.Status == domain.SessionFinished {
		return GuessAccepted{}, domain.ErrSessionFinished
	}
	if session.Phase != domain.PhaseGuessing {
		return GuessAccepted{}, &domain.PhaseError{Current: session.Phase}
	}
	if !session.IsParticipant(guesserID) {
		return GuessAccepted{}, domain.ErrNotAPlayer
	}
	if !session.IsParticipant(targetID) {
		return GuessAccepted{}, domain.ErrTargetNotAPlayer
	}
	// Answers only ever grow within a round, so this check stays valid
	// even against a slightly stale snapshot.
	if !session.HasAnswered(targetID) {
		return GuessAccepted{}, domain.ErrTargetNotAnswered
	}

	question, err := g.catalog.Question(ctx, session.CurrentQuestionID)
	if err != nil {
		return GuessAccepted{}, err
	}
	if !question.HasOption(option) {
		return GuessAccepted{}, domain.ErrInvalidOption
	}

	res, err := g.sessions.AddGuess(ctx, sessionID, guesserID, domain.Guess{Target: targetID, Guess: option})
	if err != nil {
		return GuessAccepted{}, err
	}
	switch res.Status {
	case SubmissionWrongPhase:
		return GuessAccepted{}, &domain.PhaseError{Current: res.Phase}
	case SubmissionDuplicate:
		return GuessAccepted{}, domain.ErrAlreadyGuessed
	}

	total := session.PlayerCount()
	progress := domain.Progress{
		Submitted: res.Submitted,
		Total:     total,
		Remaining: total - res.Submitted,
	}
	accepted := GuessAccepted{
		PlayerID:   guesserID,
		TargetID:   targetID,
		Progress:   progress,
		AllGuessed: progress.Complete(),
	}
	g.notify.Broadcast(ctx, session.RoomID, EventPlayerGuessed, ProgressEvent{
		PlayerID:    guesserID,
		Progress:    progress,
		AllReceived: accepted.AllGuessed,
	}, "")
	return accepted, nil
}

// CloseGuessingPhase scores the round and moves guessing -> round_closed.
// The compare-and-set on the phase elects a single scorer; the loser gets
// a phase conflict and no points are ever applied twice.
func (g *GameService) CloseGuessingPhase(ctx context.Context, sessionID string) (RoundClosed, error) {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return RoundClosed{}, err
	}
	if session.Status == domain.SessionFinished {
		return RoundClosed{}, domain.ErrSessionFinished
	}
	if session.Phase != domain.PhaseGuessing {
		return RoundClosed{}, &domain.PhaseError{Current: session.Phase}
	}
	if progress := session.GuessProgress(); !progress.Complete() {
		return RoundClosed{}, &domain.IncompletePhaseError{
			Phase:     domain.PhaseGuessing,
			Remaining: progress.Remaining,
		}
	}

	ok, err := g.sessions.SwapPhase(ctx, sessionID, domain.PhaseGuessing, domain.PhaseRoundClosed)
	if err != nil {
		return RoundClosed{}, err
	}
	if !ok {
		return RoundClosed{}, g.phaseConflict(ctx, sessionID)
	}

	// The snapshot is final: every participant has exactly one answer and
	// one guess, and nothing mutates them once the swap is won.
	now := g.now()
	outcome := scoreRound(session, now)
	record := buildRoundRecord(session, outcome.results, now)
	if err := g.sessions.ApplyRoundResults(ctx, sessionID, outcome.deltas, outcome.ranking, record); err != nil {
		return RoundClosed{}, err
	}

	g.log.WithFields(logrus.Fields{
		"sessionId": sessionID,
		"round":     session.CurrentRound,
		"correct":   len(outcome.deltas),
	}).Info("round scored")

	closed := RoundClosed{
		Round:       session.CurrentRound,
		TotalRounds: session.TotalRounds(),
		Results:     outcome.results,
		Ranking:     outcome.ranking,
		LastRound:   session.CurrentRound == session.TotalRounds(),
	}
	g.notify.Broadcast(ctx, session.RoomID, EventRoundEnded, closed, "")
	return closed, nil
}

// FinishMatch closes the session after the last round, computes the final
// stats and flips the room out of its in-game state. Finished sessions
// accept no further mutations.
func (g *GameService) FinishMatch(ctx context.Context, sessionID string) (MatchFinished, error) {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return MatchFinished{}, err
	}
	if session.Status == domain.SessionFinished {
		return MatchFinished{}, domain.ErrSessionFinished
	}
	if remaining := session.TotalRounds() - session.CurrentRound; remaining > 0 {
		return MatchFinished{}, &domain.RoundsRemainingError{Remaining: remaining}
	}
	if session.Phase != domain.PhaseRoundClosed {
		return MatchFinished{}, domain.ErrLastRoundNotClosed
	}

	ok, err := g.sessions.SwapPhase(ctx, sessionID, domain.PhaseRoundClosed, domain.PhaseFinished)
	if err != nil {
		return MatchFinished{}, err
	}
	if !ok {
		return MatchFinished{}, g.phaseConflict(ctx, sessionID)
	}

	now := g.now()
	stats := buildStats(session, session.Ranking, now)
	if err := g.sessions.Finish(ctx, sessionID, stats, now); err != nil {
		return MatchFinished{}, err
	}
	if err := g.rooms.SetStatus(ctx, session.RoomID, domain.RoomFinished, sessionID); err != nil {
		g.log.WithError(err).WithField("roomId", session.RoomID).Warn("failed to flip room into finished state")
	}

	finished := MatchFinished{
		SessionID: sessionID,
		Ranking:   session.Ranking,
		Stats:     stats,
	}
	if len(session.Ranking) > 0 {
		winner := session.Ranking[0]
		finished.Winner = &winner
	}

	g.log.WithFields(logrus.Fields{
		"sessionId":  sessionID,
		"durationMs": stats.DurationMS,
		"players":    stats.Players,
	}).Info("match finished")

	g.notify.Broadcast(ctx, session.RoomID, EventGameEnded, finished, "")
	return finished, nil
}

// GetState returns a read-only snapshot. With a viewer it includes that
// player's own submissions; other players' answers and guesses are never
// exposed before the round closes.
func (g *GameService) GetState(ctx context.Context, sessionID, viewerID string) (GameState, error) {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return GameState{}, err
	}

	state := GameState{
		SessionID:      session.SessionID,
		RoomID:         session.RoomID,
		Topic:          session.Topic,
		Status:         session.Status,
		Phase:          session.Phase,
		CurrentRound:   session.CurrentRound,
		TotalRounds:    session.TotalRounds(),
		Ranking:        session.Ranking,
		AnswerProgress: session.AnswerProgress(),
		GuessProgress:  session.GuessProgress(),
		StartedAt:      session.StartedAt,
		RoundStartedAt: session.RoundStartedAt,
	}

	if session.CurrentQuestionID != "" {
		if question, err := g.catalog.Question(ctx, session.CurrentQuestionID); err == nil {
			state.Question = &QuestionView{
				ID:       question.ID,
				Text:     question.Text,
				Options:  question.Options,
				Category: question.Category,
			}
		}
	}

	if viewerID != "" {
		if !session.IsParticipant(viewerID) {
			return GameState{}, domain.ErrNotAPlayer
		}
		viewer := &ViewerState{
			UserID:      viewerID,
			Score:       session.Scores[viewerID],
			HasAnswered: session.HasAnswered(viewerID),
			HasGuessed:  session.HasGuessed(viewerID),
		}
		if answer, ok := session.Answers[viewerID]; ok {
			viewer.Answer = answer
		}
		if guess, ok := session.Guesses[viewerID]; ok {
			viewer.Guess = &guess
		}
		state.Viewer = viewer
	}
	return state, nil
}

// GetRanking returns the detailed scoreboard with per-player accuracy
// counted from the round history.
func (g *GameService) GetRanking(ctx context.Context, sessionID string) (RankingView, error) {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return RankingView{}, err
	}
	history, err := g.sessions.History(ctx, sessionID)
	if err != nil {
		return RankingView{}, err
	}

	hits := make(map[string]int, len(session.Roster))
	misses := make(map[string]int, len(session.Roster))
	for _, round := range history {
		for _, r := range round.Results {
			if r.Correct {
				hits[r.GuesserID]++
			} else {
				misses[r.GuesserID]++
			}
		}
	}

	totalRounds := session.TotalRounds()
	positions := make([]RankedPlayer, 0, len(session.Ranking))
	details := make([]domain.PlayerRankingDetail, 0, len(session.Ranking))
	for i, e := range session.Ranking {
		positions = append(positions, RankedPlayer{
			Position:     i + 1,
			RankingEntry: e,
			First:        i == 0,
			Last:         i == len(session.Ranking)-1,
		})
		accuracy := 0
		if totalRounds > 0 {
			accuracy = int(float64(hits[e.UserID]) / float64(totalRounds) * 100.0)
		}
		details = append(details, domain.PlayerRankingDetail{
			UserID:          e.UserID,
			Name:            e.Name,
			AvatarURL:       e.AvatarURL,
			Score:           e.Score,
			Hits:            hits[e.UserID],
			Misses:          misses[e.UserID],
			TotalRounds:     totalRounds,
			AccuracyPercent: accuracy,
		})
	}

	view := RankingView{
		SessionID:    sessionID,
		RoomID:       session.RoomID,
		Status:       session.Status,
		Topic:        session.Topic,
		Ranking:      positions,
		Players:      details,
		TotalRounds:  totalRounds,
		RoundsPlayed: session.CurrentRound,
		Stats:        session.Stats,
	}
	if len(session.Ranking) > 0 {
		winner := session.Ranking[0]
		view.Winner = &winner
	}
	return view, nil
}

// phaseConflict reloads the session to report the phase that won the race.
func (g *GameService) phaseConflict(ctx context.Context, sessionID string) error {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return &domain.PhaseError{Current: session.Phase}
}

// sampleQuestionIDs draws n question IDs without replacement.
func sampleQuestionIDs(pool []domain.Question, n int) []string {
	ids := make([]string, len(pool))
	for i, q := range pool {
		ids[i] = q.ID
	}
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return ids[:n]
}
