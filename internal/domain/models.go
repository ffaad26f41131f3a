package domain

import "time"

// OptionsPerQuestion is the fixed option count for every question.
const OptionsPerQuestion = 4

// Room config bounds, mirrored by the validators at the transport boundary.
const (
	MinPlayers          = 2
	MaxPlayers          = 8
	DefaultRounds       = 10
	MinPhaseSeconds     = 30
	MaxPhaseSeconds     = 300
	DefaultPhaseSeconds = 150
	DefaultGuessPoints  = 10
	MinGuessPoints      = 5
	MaxGuessPoints      = 20
	DefaultTopic        = "general-culture"
)

// Player is a room participant as known to the room directory.
type Player struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Connected bool   `json:"connected"`
}

// RoomStatus tracks the lifecycle of a room relative to matches.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomInGame   RoomStatus = "in_game"
	RoomFinished RoomStatus = "finished"
)

// RoomConfig is the per-room match configuration.
type RoomConfig struct {
	Rounds         int    `json:"rounds"`
	AnswerSeconds  int    `json:"answerSeconds"`
	GuessSeconds   int    `json:"guessSeconds"`
	PointsPerGuess int    `json:"pointsPerGuess"`
	Topic          string `json:"topic"`
}

// Normalized returns the config with defaults applied and the guess
// reward clamped to its allowed range.
func (c RoomConfig) Normalized() RoomConfig {
	if c.Rounds <= 0 {
		c.Rounds = DefaultRounds
	}
	if c.AnswerSeconds <= 0 {
		c.AnswerSeconds = DefaultPhaseSeconds
	}
	if c.GuessSeconds <= 0 {
		c.GuessSeconds = DefaultPhaseSeconds
	}
	switch {
	case c.PointsPerGuess <= 0:
		c.PointsPerGuess = DefaultGuessPoints
	case c.PointsPerGuess < MinGuessPoints:
		c.PointsPerGuess = MinGuessPoints
	case c.PointsPerGuess > MaxGuessPoints:
		c.PointsPerGuess = MaxGuessPoints
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	return c
}

// Room is the directory record for a game room.
type Room struct {
	RoomID     string     `json:"roomId"`
	HostID     string     `json:"hostId"`
	Players    []Player   `json:"players"`
	MaxPlayers int        `json:"maxPlayers"`
	Status     RoomStatus `json:"status"`
	SessionID  string     `json:"sessionId,omitempty"`
	Config     RoomConfig `json:"config"`
}

// Player returns the participant with the given user ID, if present.
func (r Room) Player(userID string) (Player, bool) {
	for _, p := range r.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return Player{}, false
}

// Question is an immutable catalog record. Options always has exactly
// four entries; answers and guesses must match one of them verbatim.
type Question struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	Topic     string   `json:"topic"`
	Category  string   `json:"category"`
	Active    bool     `json:"active"`
	TimesUsed int      `json:"timesUsed,omitempty"`
}

// HasOption reports whether the given value is one of the question's options.
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Guess is a player's bet on what another player answered.
type Guess struct {
	Target string `json:"target"`
	Guess  string `json:"guess"`
}

// RankingEntry is one row of the session scoreboard.
type RankingEntry struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Score     int    `json:"score"`
}

// RoundResult captures the outcome of a single guess after scoring.
type RoundResult struct {
	GuesserID     string `json:"guesserId"`
	GuesserName   string `json:"guesserName"`
	TargetID      string `json:"targetId"`
	TargetName    string `json:"targetName"`
	Guess         string `json:"guess"`
	ActualAnswer  string `json:"actualAnswer"`
	Correct       bool   `json:"correct"`
	PointsAwarded int    `json:"pointsAwarded"`
}

// RoundRecord is the append-only history entry for one completed round.
type RoundRecord struct {
	Round      int               `json:"round"`
	QuestionID string            `json:"questionId"`
	Answers    map[string]string `json:"answers"`
	Guesses    map[string]Guess  `json:"guesses"`
	Results    []RoundResult     `json:"results"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// MatchStats summarizes a finished match.
type MatchStats struct {
	TotalRounds int     `json:"totalRounds"`
	DurationMS  int64   `json:"durationMs"`
	Players     int     `json:"players"`
	MaxScore    int     `json:"maxScore"`
	MinScore    int     `json:"minScore"`
	MeanScore   float64 `json:"meanScore"`
}

// Progress counts submissions received for the current phase.
type Progress struct {
	Submitted int `json:"submitted"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// Complete reports whether every participant has submitted.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Submitted >= p.Total
}

// PlayerRankingDetail is the per-player breakdown served by the ranking view.
type PlayerRankingDetail struct {
	UserID          string `json:"userId"`
	Name            string `json:"name"`
	AvatarURL       string `json:"avatarUrl,omitempty"`
	Score           int    `json:"score"`
	Hits            int    `json:"hits"`
	Misses          int    `json:"misses"`
	TotalRounds     int    `json:"totalRounds"`
	AccuracyPercent int    `json:"accuracyPercent"`
}
