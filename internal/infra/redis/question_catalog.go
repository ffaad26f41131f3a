package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-match-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store (e.g., a
// document DB).
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, questionID string) (domain.Question, error)
	LoadTopic(ctx context.Context, topic string) ([]domain.Question, error)
}

// QuestionCatalog caches question JSON and topic pools in Redis and falls
// back to a loader on cache miss. Layout:
//
//	SET  game:question:{id}        -> question JSON
//	SET  game:topic:{topic}        -> active pool JSON
//	HASH game:question:usage       -> {questionID} {count}
//
// Usage counters live only in Redis; they are advisory.
type QuestionCatalog struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCatalog(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCatalog {
	return &QuestionCatalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCatalog) Question(ctx context.Context, questionID string) (domain.Question, error) {
	key := c.questionKey(questionID)

	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		var question domain.Question
		if err := json.Unmarshal([]byte(raw), &question); err == nil {
			return question, nil
		}
	}

	result, err, _ := c.sf.Do("q:"+questionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Result(); err == nil {
			var question domain.Question
			if err := json.Unmarshal([]byte(raw), &question); err == nil {
				return question, nil
			}
		}

		question, err := c.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		if data, err := json.Marshal(question); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return question, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCatalog) ActiveByTopic(ctx context.Context, topic string) ([]domain.Question, error) {
	key := c.topicKey(topic)

	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		var pool []domain.Question
		if err := json.Unmarshal([]byte(raw), &pool); err == nil {
			return pool, nil
		}
	}

	result, err, _ := c.sf.Do("t:"+topic, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Result(); err == nil {
			var pool []domain.Question
			if err := json.Unmarshal([]byte(raw), &pool); err == nil {
				return pool, nil
			}
		}

		loaded, err := c.loader.LoadTopic(ctx, topic)
		if err != nil {
			return nil, err
		}
		active := make([]domain.Question, 0, len(loaded))
		for _, q := range loaded {
			if q.Active {
				active = append(active, q)
			}
		}

		data, err := json.Marshal(active)
		if err != nil {
			return nil, fmt.Errorf("encode topic pool: %w", err)
		}
		pipe := c.client.Pipeline()
		pipe.Set(ctx, key, data, c.ttlWithJitter())
		for _, q := range active {
			if qData, err := json.Marshal(q); err == nil {
				pipe.Set(ctx, c.questionKey(q.ID), qData, c.ttlWithJitter())
			}
		}
		_, _ = pipe.Exec(ctx)

		return active, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCatalog) IncrementUsage(ctx context.Context, questionID string) error {
	return c.client.HIncrBy(ctx, c.usageKey(), questionID, 1).Err()
}

func (c *QuestionCatalog) questionKey(questionID string) string {
	return "game:question:" + questionID
}

func (c *QuestionCatalog) topicKey(topic string) string {
	return "game:topic:" + topic
}

func (c *QuestionCatalog) usageKey() string {
	return "game:question:usage"
}

func (c *QuestionCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
