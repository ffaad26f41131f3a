package memory

import (
	"context"
	"sync"

	"trivia-match-service/internal/domain"
)

// RoomDirectory is an in-memory implementation of app.RoomDirectory,
// seeded with rooms at construction.
type RoomDirectory struct {
	mu    sync.RWMutex
	rooms map[string]domain.Room
}

func NewRoomDirectory(rooms ...domain.Room) *RoomDirectory {
	byID := make(map[string]domain.Room, len(rooms))
	for _, r := range rooms {
		byID[r.RoomID] = r
	}
	return &RoomDirectory{rooms: byID}
}

// Put inserts or replaces a room record.
func (d *RoomDirectory) Put(room domain.Room) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[room.RoomID] = room
}

func (d *RoomDirectory) Room(_ context.Context, roomID string) (domain.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	room.Players = append([]domain.Player(nil), room.Players...)
	return room, nil
}

func (d *RoomDirectory) SetStatus(_ context.Context, roomID string, status domain.RoomStatus, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Status = status
	if sessionID != "" {
		room.SessionID = sessionID
	}
	d.rooms[roomID] = room
	return nil
}

func (d *RoomDirectory) MarkDisconnected(_ context.Context, roomID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for i := range room.Players {
		if room.Players[i].UserID == userID {
			room.Players[i].Connected = false
			break
		}
	}
	d.rooms[roomID] = room
	return nil
}
