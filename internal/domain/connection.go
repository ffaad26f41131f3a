package domain

import "time"

// Connection is one live duplex link, looked up by room or user for
// fan-out only. It is not owned by any session; a player's seat and score
// survive the connection.
type Connection struct {
	ConnectionID string    `json:"connectionId"`
	RoomID       string    `json:"roomId"`
	UserID       string    `json:"userId"`
	ConnectedAt  time.Time `json:"connectedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the connection's TTL has elapsed.
func (c Connection) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// DeliveryStats summarizes one fan-out attempt. Failures are counted, not
// escalated; a dead client must never block game progress.
type DeliveryStats struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}
