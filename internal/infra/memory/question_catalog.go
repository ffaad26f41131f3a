package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-match-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store (e.g., a
// document DB).
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, questionID string) (domain.Question, error)
	LoadTopic(ctx context.Context, topic string) ([]domain.Question, error)
}

// QuestionCatalog caches questions and topic pools with TTL to avoid
// repeated backing-store hits.
type QuestionCatalog struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu      sync.RWMutex
	byID    map[string]cachedQuestion
	byTopic map[string]cachedTopic
	usage   map[string]int
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

type cachedTopic struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCatalog(loader QuestionLoader, ttl time.Duration) *QuestionCatalog {
	return &QuestionCatalog{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		byID:    make(map[string]cachedQuestion),
		byTopic: make(map[string]cachedTopic),
		usage:   make(map[string]int),
	}
}

func (c *QuestionCatalog) Question(ctx context.Context, questionID string) (domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.byID[questionID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.question, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("q:"+questionID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.byID[questionID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.question, nil
		}
		c.mu.RUnlock()

		question, err := c.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}

		c.mu.Lock()
		c.byID[questionID] = cachedQuestion{question: question, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return question, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCatalog) ActiveByTopic(ctx context.Context, topic string) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.byTopic[topic]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("t:"+topic, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.byTopic[topic]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		pool, err := c.loader.LoadTopic(ctx, topic)
		if err != nil {
			return nil, err
		}
		active := make([]domain.Question, 0, len(pool))
		for _, q := range pool {
			if q.Active {
				active = append(active, q)
			}
		}

		c.mu.Lock()
		c.byTopic[topic] = cachedTopic{questions: active, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return active, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCatalog) IncrementUsage(_ context.Context, questionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage[questionID]++
	return nil
}

// Usage is test-only visibility into the usage counters.
func (c *QuestionCatalog) Usage(questionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usage[questionID]
}

func (c *QuestionCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map, useful for
// tests and demos.
type StaticQuestionLoader struct {
	questions map[string]domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &StaticQuestionLoader{questions: byID}
}

func (l *StaticQuestionLoader) LoadQuestion(_ context.Context, questionID string) (domain.Question, error) {
	if q, ok := l.questions[questionID]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (l *StaticQuestionLoader) LoadTopic(_ context.Context, topic string) ([]domain.Question, error) {
	var pool []domain.Question
	for _, q := range l.questions {
		if q.Topic == topic {
			pool = append(pool, q)
		}
	}
	return pool, nil
}
