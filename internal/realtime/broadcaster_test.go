package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type capturePusher struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (p *capturePusher) Push(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, data)
	return nil
}

func (p *capturePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestBroadcastDeliversToRoom(t *testing.T) {
	r := NewRegistry(time.Minute)
	b := NewBroadcaster(r, nil)

	p1 := &capturePusher{}
	p2 := &capturePusher{}
	other := &capturePusher{}
	r.Register("c1", "room-1", "u1", p1)
	r.Register("c2", "room-1", "u2", p2)
	r.Register("c3", "room-2", "u3", other)

	stats := b.Broadcast(context.Background(), "room-1", "round_started", map[string]int{"round": 1}, "")
	if stats.Total != 2 || stats.Delivered != 2 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if p1.count() != 1 || p2.count() != 1 || other.count() != 0 {
		t.Fatalf("delivery crossed room boundaries: %d/%d/%d", p1.count(), p2.count(), other.count())
	}

	var event Event
	if err := json.Unmarshal(p1.messages[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != "round_started" || event.Timestamp.IsZero() {
		t.Fatalf("unexpected envelope %+v", event)
	}
}

func TestBroadcastExcludesUser(t *testing.T) {
	r := NewRegistry(time.Minute)
	b := NewBroadcaster(r, nil)

	p1 := &capturePusher{}
	p2 := &capturePusher{}
	r.Register("c1", "room-1", "u1", p1)
	r.Register("c2", "room-1", "u2", p2)

	stats := b.Broadcast(context.Background(), "room-1", "player_answered", nil, "u1")
	if stats.Total != 1 || stats.Delivered != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if p1.count() != 0 || p2.count() != 1 {
		t.Fatalf("expected only u2 to receive, got %d/%d", p1.count(), p2.count())
	}
}

func TestBroadcastPrunesGoneConnections(t *testing.T) {
	r := NewRegistry(time.Minute)
	b := NewBroadcaster(r, nil)

	alive := &capturePusher{}
	gone := &capturePusher{err: ErrConnectionGone}
	r.Register("c1", "room-1", "u1", alive)
	r.Register("c2", "room-1", "u2", gone)

	stats := b.Broadcast(context.Background(), "room-1", "round_ended", nil, "")
	if stats.Total != 2 || stats.Delivered != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if r.Len() != 1 {
		t.Fatalf("expected gone connection pruned, registry has %d", r.Len())
	}
}

func TestBroadcastCountsExpiredAsFailed(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := NewRegistry(time.Minute).WithClock(func() time.Time { return now })
	b := NewBroadcaster(r, nil)
	b.now = func() time.Time { return now }

	stale := &capturePusher{}
	fresh := &capturePusher{}
	r.Register("c1", "room-1", "u1", stale)

	now = base.Add(2 * time.Minute)
	r.Register("c2", "room-1", "u2", fresh)

	stats := b.Broadcast(context.Background(), "room-1", "game_ended", nil, "")
	if stats.Total != 2 || stats.Delivered != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stale.count() != 0 {
		t.Fatalf("expired connection must not receive pushes")
	}
	if r.Len() != 1 {
		t.Fatalf("expected expired connection pruned, registry has %d", r.Len())
	}
}

func TestSendToUserHitsEveryConnection(t *testing.T) {
	r := NewRegistry(time.Minute)
	b := NewBroadcaster(r, nil)

	p1 := &capturePusher{}
	p2 := &capturePusher{}
	other := &capturePusher{}
	r.Register("c1", "room-1", "u1", p1)
	r.Register("c2", "room-2", "u1", p2)
	r.Register("c3", "room-1", "u2", other)

	stats := b.SendToUser(context.Background(), "u1", "state", nil)
	if stats.Total != 2 || stats.Delivered != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if p1.count() != 1 || p2.count() != 1 || other.count() != 0 {
		t.Fatalf("unexpected fan-out %d/%d/%d", p1.count(), p2.count(), other.count())
	}
}
