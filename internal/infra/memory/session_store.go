package memory

import (
	"context"
	"sync"
	"time"

	"trivia-match-service/internal/app"
	"trivia-match-service/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionStore, used
// for tests and redis-less runs. A single mutex gives it the same
// conditional-write semantics the redis scripts provide: submissions are
// insert-if-absent under a phase guard and phase swaps are compare-and-set.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	history  map[string][]domain.RoundRecord
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		history:  make(map[string][]domain.RoundRecord),
	}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) History(_ context.Context, sessionID string) ([]domain.RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domain.ErrSessionNotFound
	}
	records := make([]domain.RoundRecord, len(s.history[sessionID]))
	copy(records, s.history[sessionID])
	return records, nil
}

func (s *SessionStore) BeginRound(_ context.Context, sessionID string, round int, questionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.Phase != domain.PhaseInitialized && session.Phase != domain.PhaseRoundClosed {
		return false, nil
	}
	if session.CurrentRound+1 != round || round > len(session.QuestionIDs) {
		return false, nil
	}
	session.CurrentRound = round
	session.CurrentQuestionID = questionID
	session.Phase = domain.PhaseAnswering
	session.Answers = map[string]string{}
	session.Guesses = map[string]domain.Guess{}
	session.RoundStartedAt = at
	session.UpdatedAt = at
	return true, nil
}

func (s *SessionStore) AddAnswer(_ context.Context, sessionID, playerID, option string) (app.SubmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return app.SubmissionResult{}, domain.ErrSessionNotFound
	}
	if session.Phase != domain.PhaseAnswering {
		return app.SubmissionResult{Status: app.SubmissionWrongPhase, Phase: session.Phase}, nil
	}
	if _, exists := session.Answers[playerID]; exists {
		return app.SubmissionResult{Status: app.SubmissionDuplicate, Phase: session.Phase, Submitted: len(session.Answers)}, nil
	}
	session.Answers[playerID] = option
	session.UpdatedAt = time.Now()
	return app.SubmissionResult{Status: app.SubmissionAccepted, Phase: session.Phase, Submitted: len(session.Answers)}, nil
}

func (s *SessionStore) AddGuess(_ context.Context, sessionID, playerID string, guess domain.Guess) (app.SubmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return app.SubmissionResult{}, domain.ErrSessionNotFound
	}
	if session.Phase != domain.PhaseGuessing {
		return app.SubmissionResult{Status: app.SubmissionWrongPhase, Phase: session.Phase}, nil
	}
	if _, exists := session.Guesses[playerID]; exists {
		return app.SubmissionResult{Status: app.SubmissionDuplicate, Phase: session.Phase, Submitted: len(session.Guesses)}, nil
	}
	session.Guesses[playerID] = guess
	session.UpdatedAt = time.Now()
	return app.SubmissionResult{Status: app.SubmissionAccepted, Phase: session.Phase, Submitted: len(session.Guesses)}, nil
}

func (s *SessionStore) SwapPhase(_ context.Context, sessionID string, from, to domain.Phase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.Phase != from {
		return false, nil
	}
	session.Phase = to
	session.UpdatedAt = time.Now()
	return true, nil
}

func (s *SessionStore) ApplyRoundResults(_ context.Context, sessionID string, deltas map[string]int, ranking []domain.RankingEntry, record domain.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for playerID, delta := range deltas {
		session.Scores[playerID] += delta
	}
	session.Ranking = make([]domain.RankingEntry, len(ranking))
	copy(session.Ranking, ranking)
	session.UpdatedAt = record.RecordedAt
	s.history[sessionID] = append(s.history[sessionID], record)
	return nil
}

func (s *SessionStore) Finish(_ context.Context, sessionID string, stats domain.MatchStats, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Status = domain.SessionFinished
	session.Phase = domain.PhaseFinished
	session.Stats = &stats
	session.FinishedAt = at
	session.UpdatedAt = at
	return nil
}

func cloneSession(s *domain.Session) *domain.Session {
	out := *s
	out.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	out.Roster = append([]domain.Player(nil), s.Roster...)
	out.Ranking = append([]domain.RankingEntry(nil), s.Ranking...)
	out.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.Guesses = make(map[string]domain.Guess, len(s.Guesses))
	for k, v := range s.Guesses {
		out.Guesses[k] = v
	}
	out.Scores = make(map[string]int, len(s.Scores))
	for k, v := range s.Scores {
		out.Scores[k] = v
	}
	if s.Stats != nil {
		stats := *s.Stats
		out.Stats = &stats
	}
	return &out
}
