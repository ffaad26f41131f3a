package realtime

import (
	"context"
	"testing"
	"time"
)

type nopPusher struct{}

func (nopPusher) Push(context.Context, []byte) error { return nil }

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(time.Minute)

	r.Register("c1", "room-1", "u1", nopPusher{})
	r.Register("c2", "room-1", "u2", nopPusher{})
	r.Register("c3", "room-2", "u1", nopPusher{})

	if r.Len() != 3 {
		t.Fatalf("expected 3 registrations, got %d", r.Len())
	}
	if got := len(r.ForRoom("room-1")); got != 2 {
		t.Fatalf("expected 2 connections in room-1, got %d", got)
	}
	if got := len(r.ForUser("u1")); got != 2 {
		t.Fatalf("expected 2 connections for u1, got %d", got)
	}
	if got := len(r.ForRoom("room-9")); got != 0 {
		t.Fatalf("expected empty room, got %d", got)
	}
}

func TestRegistryReRegisterRefreshesExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := NewRegistry(time.Minute).WithClock(func() time.Time { return now })

	first := r.Register("c1", "room-1", "u1", nopPusher{})

	now = base.Add(30 * time.Second)
	second := r.Register("c1", "room-1", "u1", nopPusher{})

	if r.Len() != 1 {
		t.Fatalf("re-register must not duplicate, got %d", r.Len())
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("expected refreshed expiry, got %v then %v", first.ExpiresAt, second.ExpiresAt)
	}
}

func TestRegistryUnregisterReturnsRecord(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("c1", "room-1", "u1", nopPusher{})

	record, ok := r.Unregister("c1")
	if !ok || record.RoomID != "room-1" || record.UserID != "u1" {
		t.Fatalf("unexpected unregister result %+v ok=%v", record, ok)
	}
	if _, ok := r.Unregister("c1"); ok {
		t.Fatalf("second unregister must report missing")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}
