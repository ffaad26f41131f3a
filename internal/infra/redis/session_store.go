package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-match-service/internal/app"
	"trivia-match-service/internal/domain"
)

// SessionStore keeps one hash per session plus a list for round history,
// both expiring with the session TTL. All invariant-bearing writes go
// through Lua scripts so the check and the write are a single atomic step:
// submissions are insert-if-absent under a phase guard, phase transitions
// are compare-and-set. Plain GETs and the post-swap result writes use
// pipelines.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

const (
	answerPrefix = "answer:"
	guessPrefix  = "guess:"
	scorePrefix  = "score:"
)

// Script results map onto app.SubmissionResult / swap outcomes.
const (
	scriptOK        = "ok"
	scriptMissing   = "missing"
	scriptConflict  = "conflict"
	scriptDuplicate = "duplicate"
	scriptPhase     = "phase"
)

// submitScript inserts a submission field only while the phase matches and
// the field is absent, and reports the resulting submission count in the
// same atomic step.
var submitScript = redis.NewScript(`
local phase = redis.call('HGET', KEYS[1], 'phase')
if not phase then
  return {'missing', '', 0}
end
if phase ~= ARGV[1] then
  return {'phase', phase, 0}
end
local function count(prefix)
  local n = 0
  for _, f in ipairs(redis.call('HKEYS', KEYS[1])) do
    if string.sub(f, 1, #prefix) == prefix then
      n = n + 1
    end
  end
  return n
end
if redis.call('HEXISTS', KEYS[1], ARGV[2]) == 1 then
  return {'duplicate', phase, count(ARGV[4])}
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3], 'updatedAt', ARGV[5])
return {'ok', phase, count(ARGV[4])}
`)

// swapScript compare-and-sets the phase field.
var swapScript = redis.NewScript(`
local phase = redis.call('HGET', KEYS[1], 'phase')
if not phase then
  return 'missing'
end
if phase ~= ARGV[1] then
  return 'conflict'
end
redis.call('HSET', KEYS[1], 'phase', ARGV[2], 'updatedAt', ARGV[3])
return 'ok'
`)

// beginRoundScript advances the round under the phase and round-number
// guards, clearing the previous round's submissions in the same step.
var beginRoundScript = redis.NewScript(`
local phase = redis.call('HGET', KEYS[1], 'phase')
if not phase then
  return 'missing'
end
if phase ~= 'initialized' and phase ~= 'round_closed' then
  return 'conflict'
end
local round = tonumber(redis.call('HGET', KEYS[1], 'round')) or 0
if round + 1 ~= tonumber(ARGV[1]) then
  return 'conflict'
end
for _, f in ipairs(redis.call('HKEYS', KEYS[1])) do
  if string.sub(f, 1, 7) == 'answer:' or string.sub(f, 1, 6) == 'guess:' then
    redis.call('HDEL', KEYS[1], f)
  end
end
redis.call('HSET', KEYS[1],
  'phase', 'answering',
  'round', ARGV[1],
  'question', ARGV[2],
  'roundStartedAt', ARGV[3],
  'updatedAt', ARGV[4])
return 'ok'
`)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// sessionMeta is the immutable part of the record, stored as one JSON field.
type sessionMeta struct {
	SessionID      string          `json:"sessionId"`
	RoomID         string          `json:"roomId"`
	Topic          string          `json:"topic"`
	QuestionIDs    []string        `json:"questionIds"`
	Roster         []domain.Player `json:"roster"`
	PointsPerGuess int             `json:"pointsPerGuess"`
	StartedAt      time.Time       `json:"startedAt"`
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	meta, err := json.Marshal(sessionMeta{
		SessionID:      session.SessionID,
		RoomID:         session.RoomID,
		Topic:          session.Topic,
		QuestionIDs:    session.QuestionIDs,
		Roster:         session.Roster,
		PointsPerGuess: session.PointsPerGuess,
		StartedAt:      session.StartedAt,
	})
	if err != nil {
		return fmt.Errorf("encode session meta: %w", err)
	}
	ranking, err := json.Marshal(session.Ranking)
	if err != nil {
		return fmt.Errorf("encode ranking: %w", err)
	}

	fields := map[string]interface{}{
		"meta":      string(meta),
		"phase":     string(session.Phase),
		"status":    string(session.Status),
		"round":     session.CurrentRound,
		"ranking":   string(ranking),
		"updatedAt": session.UpdatedAt.Format(time.RFC3339Nano),
	}
	for _, p := range session.Roster {
		fields[scorePrefix+p.UserID] = 0
	}

	key := s.key(session.SessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return decodeSession(raw)
}

func (s *SessionStore) History(ctx context.Context, sessionID string) ([]domain.RoundRecord, error) {
	exists, err := s.client.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, domain.ErrSessionNotFound
	}
	entries, err := s.client.LRange(ctx, s.historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	records := make([]domain.RoundRecord, 0, len(entries))
	for _, entry := range entries {
		var record domain.RoundRecord
		if err := json.Unmarshal([]byte(entry), &record); err != nil {
			return nil, fmt.Errorf("decode round record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *SessionStore) BeginRound(ctx context.Context, sessionID string, round int, questionID string, at time.Time) (bool, error) {
	res, err := beginRoundScript.Run(ctx, s.client, []string{s.key(sessionID)},
		round, questionID, at.Format(time.RFC3339Nano), at.Format(time.RFC3339Nano)).Text()
	if err != nil {
		return false, err
	}
	switch res {
	case scriptOK:
		return true, nil
	case scriptMissing:
		return false, domain.ErrSessionNotFound
	default:
		return false, nil
	}
}

func (s *SessionStore) AddAnswer(ctx context.Context, sessionID, playerID, option string) (app.SubmissionResult, error) {
	return s.submit(ctx, sessionID, domain.PhaseAnswering, answerPrefix+playerID, option, answerPrefix)
}

func (s *SessionStore) AddGuess(ctx context.Context, sessionID, playerID string, guess domain.Guess) (app.SubmissionResult, error) {
	payload, err := json.Marshal(guess)
	if err != nil {
		return app.SubmissionResult{}, fmt.Errorf("encode guess: %w", err)
	}
	return s.submit(ctx, sessionID, domain.PhaseGuessing, guessPrefix+playerID, string(payload), guessPrefix)
}

func (s *SessionStore) submit(ctx context.Context, sessionID string, phase domain.Phase, field, value, prefix string) (app.SubmissionResult, error) {
	raw, err := submitScript.Run(ctx, s.client, []string{s.key(sessionID)},
		string(phase), field, value, prefix, time.Now().Format(time.RFC3339Nano)).Slice()
	if err != nil {
		return app.SubmissionResult{}, err
	}
	if len(raw) != 3 {
		return app.SubmissionResult{}, fmt.Errorf("unexpected submit script reply: %v", raw)
	}
	status, _ := raw[0].(string)
	currentPhase, _ := raw[1].(string)
	submitted, _ := raw[2].(int64)

	result := app.SubmissionResult{Phase: domain.Phase(currentPhase), Submitted: int(submitted)}
	switch status {
	case scriptOK:
		result.Status = app.SubmissionAccepted
	case scriptDuplicate:
		result.Status = app.SubmissionDuplicate
	case scriptPhase:
		result.Status = app.SubmissionWrongPhase
	case scriptMissing:
		return app.SubmissionResult{}, domain.ErrSessionNotFound
	default:
		return app.SubmissionResult{}, fmt.Errorf("unexpected submit status %q", status)
	}
	return result, nil
}

func (s *SessionStore) SwapPhase(ctx context.Context, sessionID string, from, to domain.Phase) (bool, error) {
	res, err := swapScript.Run(ctx, s.client, []string{s.key(sessionID)},
		string(from), string(to), time.Now().Format(time.RFC3339Nano)).Text()
	if err != nil {
		return false, err
	}
	switch res {
	case scriptOK:
		return true, nil
	case scriptMissing:
		return false, domain.ErrSessionNotFound
	default:
		return false, nil
	}
}

func (s *SessionStore) ApplyRoundResults(ctx context.Context, sessionID string, deltas map[string]int, ranking []domain.RankingEntry, record domain.RoundRecord) error {
	rankingJSON, err := json.Marshal(ranking)
	if err != nil {
		return fmt.Errorf("encode ranking: %w", err)
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode round record: %w", err)
	}

	key := s.key(sessionID)
	historyKey := s.historyKey(sessionID)
	pipe := s.client.TxPipeline()
	for playerID, delta := range deltas {
		pipe.HIncrBy(ctx, key, scorePrefix+playerID, int64(delta))
	}
	pipe.HSet(ctx, key, "ranking", string(rankingJSON), "updatedAt", record.RecordedAt.Format(time.RFC3339Nano))
	pipe.RPush(ctx, historyKey, string(recordJSON))
	if s.ttl > 0 {
		pipe.Expire(ctx, historyKey, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Finish(ctx context.Context, sessionID string, stats domain.MatchStats, at time.Time) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return s.client.HSet(ctx, s.key(sessionID),
		"status", string(domain.SessionFinished),
		"stats", string(statsJSON),
		"finishedAt", at.Format(time.RFC3339Nano),
		"updatedAt", at.Format(time.RFC3339Nano),
	).Err()
}

func (s *SessionStore) key(sessionID string) string {
	return "game:session:" + sessionID
}

func (s *SessionStore) historyKey(sessionID string) string {
	return "game:session:" + sessionID + ":history"
}

func decodeSession(raw map[string]string) (*domain.Session, error) {
	var meta sessionMeta
	if err := json.Unmarshal([]byte(raw["meta"]), &meta); err != nil {
		return nil, fmt.Errorf("decode session meta: %w", err)
	}

	session := &domain.Session{
		SessionID:      meta.SessionID,
		RoomID:         meta.RoomID,
		Topic:          meta.Topic,
		QuestionIDs:    meta.QuestionIDs,
		Roster:         meta.Roster,
		PointsPerGuess: meta.PointsPerGuess,
		StartedAt:      meta.StartedAt,
		Phase:          domain.Phase(raw["phase"]),
		Status:         domain.SessionStatus(raw["status"]),
		Answers:        map[string]string{},
		Guesses:        map[string]domain.Guess{},
		Scores:         map[string]int{},
	}
	session.CurrentQuestionID = raw["question"]

	if v, ok := raw["round"]; ok {
		round, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("decode round: %w", err)
		}
		session.CurrentRound = round
	}
	if v, ok := raw["ranking"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &session.Ranking); err != nil {
			return nil, fmt.Errorf("decode ranking: %w", err)
		}
	}
	if v, ok := raw["stats"]; ok && v != "" {
		var stats domain.MatchStats
		if err := json.Unmarshal([]byte(v), &stats); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
		session.Stats = &stats
	}
	for _, pair := range []struct {
		field string
		dst   *time.Time
	}{
		{"roundStartedAt", &session.RoundStartedAt},
		{"updatedAt", &session.UpdatedAt},
		{"finishedAt", &session.FinishedAt},
	} {
		if v, ok := raw[pair.field]; ok && v != "" {
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", pair.field, err)
			}
			*pair.dst = t
		}
	}

	for field, value := range raw {
		switch {
		case strings.HasPrefix(field, answerPrefix):
			session.Answers[strings.TrimPrefix(field, answerPrefix)] = value
		case strings.HasPrefix(field, guessPrefix):
			var guess domain.Guess
			if err := json.Unmarshal([]byte(value), &guess); err != nil {
				return nil, fmt.Errorf("decode guess: %w", err)
			}
			session.Guesses[strings.TrimPrefix(field, guessPrefix)] = guess
		case strings.HasPrefix(field, scorePrefix):
			score, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("decode score: %w", err)
			}
			session.Scores[strings.TrimPrefix(field, scorePrefix)] = score
		}
	}
	return session, nil
}
