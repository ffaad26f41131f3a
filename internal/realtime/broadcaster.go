package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trivia-match-service/internal/domain"
)

// defaultPushLimit bounds concurrent pushes per broadcast.
const defaultPushLimit = 16

// Event is the wire envelope for every push.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Broadcaster fans events out to every live connection of a room or user.
// Pushes run in a bounded task group that joins before the stats are
// returned; one failing push never fails the group, and a push to a gone
// endpoint prunes its connection so the registry heals itself.
type Broadcaster struct {
	registry *Registry
	log      *logrus.Logger
	limit    int
	now      func() time.Time
}

func NewBroadcaster(registry *Registry, log *logrus.Logger) *Broadcaster {
	if log == nil {
		log = logrus.New()
	}
	return &Broadcaster{
		registry: registry,
		log:      log,
		limit:    defaultPushLimit,
		now:      time.Now,
	}
}

// Broadcast pushes the event to every connection of the room, optionally
// skipping one user's connections. Never returns an error: delivery
// failures only show up in the stats.
func (b *Broadcaster) Broadcast(ctx context.Context, roomID, event string, payload any, excludeUserID string) domain.DeliveryStats {
	targets := b.registry.ForRoom(roomID)
	if excludeUserID != "" {
		kept := targets[:0]
		for _, t := range targets {
			if t.Connection.UserID != excludeUserID {
				kept = append(kept, t)
			}
		}
		targets = kept
	}
	return b.deliver(ctx, event, payload, targets)
}

// SendToUser pushes the event to every connection of one user.
func (b *Broadcaster) SendToUser(ctx context.Context, userID, event string, payload any) domain.DeliveryStats {
	return b.deliver(ctx, event, payload, b.registry.ForUser(userID))
}

func (b *Broadcaster) deliver(ctx context.Context, event string, payload any, targets []Target) domain.DeliveryStats {
	stats := domain.DeliveryStats{Total: len(targets)}
	if len(targets) == 0 {
		return stats
	}

	data, err := json.Marshal(Event{Type: event, Timestamp: b.now(), Data: payload})
	if err != nil {
		b.log.WithError(err).WithField("event", event).Error("failed to encode push event")
		stats.Failed = len(targets)
		return stats
	}

	var delivered, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(b.limit)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			if t.Connection.Expired(b.now()) {
				failed.Add(1)
				b.registry.Remove(t.Connection.ConnectionID)
				return nil
			}
			if err := t.Pusher.Push(ctx, data); err != nil {
				failed.Add(1)
				if errors.Is(err, ErrConnectionGone) {
					b.registry.Remove(t.Connection.ConnectionID)
				}
				b.log.WithError(err).WithFields(logrus.Fields{
					"connectionId": t.Connection.ConnectionID,
					"event":        event,
				}).Debug("push failed")
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats.Delivered = int(delivered.Load())
	stats.Failed = int(failed.Load())
	if stats.Failed > 0 {
		b.log.WithFields(logrus.Fields{
			"event":     event,
			"total":     stats.Total,
			"delivered": stats.Delivered,
			"failed":    stats.Failed,
		}).Info("broadcast completed with failures")
	}
	return stats
}
