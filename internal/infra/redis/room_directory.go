package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-match-service/internal/domain"
)

// RoomDirectory stores one JSON document per room. Mutations go through
// WATCH-guarded transactions so concurrent status flips and disconnect
// flags cannot lose each other's updates.
type RoomDirectory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomDirectory(client *redis.Client, ttl time.Duration) *RoomDirectory {
	return &RoomDirectory{client: client, ttl: ttl}
}

// Put inserts or replaces a room document (seeding/demo path).
func (d *RoomDirectory) Put(ctx context.Context, room domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	return d.client.Set(ctx, d.key(room.RoomID), data, d.ttl).Err()
}

func (d *RoomDirectory) Room(ctx context.Context, roomID string) (domain.Room, error) {
	raw, err := d.client.Get(ctx, d.key(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return domain.Room{}, fmt.Errorf("decode room: %w", err)
	}
	return room, nil
}

func (d *RoomDirectory) SetStatus(ctx context.Context, roomID string, status domain.RoomStatus, sessionID string) error {
	return d.update(ctx, roomID, func(room *domain.Room) {
		room.Status = status
		if sessionID != "" {
			room.SessionID = sessionID
		}
	})
}

func (d *RoomDirectory) MarkDisconnected(ctx context.Context, roomID, userID string) error {
	return d.update(ctx, roomID, func(room *domain.Room) {
		for i := range room.Players {
			if room.Players[i].UserID == userID {
				room.Players[i].Connected = false
				return
			}
		}
	})
}

// update applies mutate under an optimistic WATCH transaction, retrying a
// bounded number of times on contention.
func (d *RoomDirectory) update(ctx context.Context, roomID string, mutate func(*domain.Room)) error {
	key := d.key(roomID)
	for attempt := 0; attempt < 5; attempt++ {
		err := d.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				return domain.ErrRoomNotFound
			}
			if err != nil {
				return err
			}
			var room domain.Room
			if err := json.Unmarshal([]byte(raw), &room); err != nil {
				return fmt.Errorf("decode room: %w", err)
			}
			mutate(&room)
			data, err := json.Marshal(room)
			if err != nil {
				return fmt.Errorf("encode room: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, d.ttl)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

func (d *RoomDirectory) key(roomID string) string {
	return "game:room:" + roomID
}
