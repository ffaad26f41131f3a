package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"trivia-match-service/internal/domain"
)

// ErrConnectionGone signals that the endpoint behind a connection no
// longer accepts pushes. The broadcaster prunes the connection on sight.
var ErrConnectionGone = errors.New("connection gone")

// Pusher delivers one serialized event to a client endpoint.
type Pusher interface {
	Push(ctx context.Context, data []byte) error
}

// Registry tracks live duplex connections by room and user. Connections
// carry an absolute expiry; expired entries are treated as gone the next
// time they come up for delivery.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	conns map[string]*registration
}

type registration struct {
	conn   domain.Connection
	pusher Pusher
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:   ttl,
		now:   time.Now,
		conns: make(map[string]*registration),
	}
}

// WithClock is test-only for deterministic expiries.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Register inserts a connection with a fresh expiry. Idempotent on the
// connection ID: re-registering refreshes the expiry and replaces the
// pusher.
func (r *Registry) Register(connectionID, roomID, userID string, p Pusher) domain.Connection {
	now := r.now()
	conn := domain.Connection{
		ConnectionID: connectionID,
		RoomID:       roomID,
		UserID:       userID,
		ConnectedAt:  now,
		ExpiresAt:    now.Add(r.ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.conns[connectionID]; ok {
		existing.conn.ExpiresAt = conn.ExpiresAt
		existing.pusher = p
		return existing.conn
	}
	r.conns[connectionID] = &registration{conn: conn, pusher: p}
	return conn
}

// Unregister removes the connection and returns its record so callers can
// flag the corresponding room participant as disconnected. Best-effort:
// unknown IDs report ok=false.
func (r *Registry) Unregister(connectionID string) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.conns[connectionID]
	if !ok {
		return domain.Connection{}, false
	}
	delete(r.conns, connectionID)
	return reg.conn, true
}

// Remove drops a connection without returning it (stale-pruning path).
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connectionID)
}

// ForRoom returns the registrations associated with a room.
func (r *Registry) ForRoom(roomID string) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]Target, 0, 4)
	for _, reg := range r.conns {
		if reg.conn.RoomID == roomID {
			targets = append(targets, Target{Connection: reg.conn, Pusher: reg.pusher})
		}
	}
	return targets
}

// ForUser returns the registrations associated with a user across rooms.
func (r *Registry) ForUser(userID string) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]Target, 0, 2)
	for _, reg := range r.conns {
		if reg.conn.UserID == userID {
			targets = append(targets, Target{Connection: reg.conn, Pusher: reg.pusher})
		}
	}
	return targets
}

// Len reports the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Target pairs a connection record with its delivery endpoint.
type Target struct {
	Connection domain.Connection
	Pusher     Pusher
}
