package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestPublisher(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Publisher) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	p := NewPublisher(rdb, "agent-1", "Preprod", zap.NewNop())
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return mr, rdb, p
}

// ── Publish ───────────────────────────────────────────────────────────────────

func TestPublish_QueuesEvent(t *testing.T) {
	_, rdb, p := newTestPublisher(t)
	ctx := context.Background()

	if err := p.Publish(ctx, "abc"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	n, _ := rdb.LLen(ctx, fmt.Sprintf(QueueKeyFmt, "agent-1")).Result()
	if n != 1 {
		t.Fatalf("queue length: got %d want 1", n)
	}
	events, err := p.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := Event{PaymentID: "abc", AgentIdentifier: "agent-1", Network: "Preprod", ConfirmedAt: 1_700_000_000}
	if len(events) != 1 || events[0] != want {
		t.Errorf("events: got %+v want [%+v]", events, want)
	}
}

func TestPublish_Dedup(t *testing.T) {
	_, rdb, p := newTestPublisher(t)
	ctx := context.Background()

	p.Publish(ctx, "abc") //nolint:errcheck
	p.Publish(ctx, "abc") //nolint:errcheck

	n, _ := rdb.LLen(ctx, fmt.Sprintf(QueueKeyFmt, "agent-1")).Result()
	if n != 1 {
		t.Errorf("queue length after duplicate: got %d want 1", n)
	}
}

func TestPublish_SeenKeyExpires(t *testing.T) {
	mr, _, p := newTestPublisher(t)
	ctx := context.Background()

	p.Publish(ctx, "abc") //nolint:errcheck
	ttl := mr.TTL(fmt.Sprintf(SeenKeyFmt, "abc"))
	if ttl != defaultSeenTTL {
		t.Errorf("seen TTL: got %v want %v", ttl, defaultSeenTTL)
	}
}

func TestPublish_RedisDown(t *testing.T) {
	mr, _, p := newTestPublisher(t)
	mr.Close()

	if err := p.Publish(context.Background(), "abc"); err == nil {
		t.Fatal("expected error with redis down, got nil")
	}
}

// ── Recent / Pop ──────────────────────────────────────────────────────────────

func TestRecent_NewestWindow(t *testing.T) {
	_, _, p := newTestPublisher(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		p.Publish(ctx, id) //nolint:errcheck
	}

	events, err := p.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].PaymentID != "b" || events[1].PaymentID != "c" {
		t.Errorf("recent: got %+v", events)
	}
}

func TestRecent_SkipsMalformed(t *testing.T) {
	_, rdb, p := newTestPublisher(t)
	ctx := context.Background()
	rdb.RPush(ctx, fmt.Sprintf(QueueKeyFmt, "agent-1"), "not-json") //nolint:errcheck
	if err := p.Publish(ctx, "abc"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	events, _ := p.Recent(ctx, 10)
	if len(events) != 1 || events[0].PaymentID != "abc" {
		t.Errorf("events: got %+v", events)
	}
}

func TestPop_OldestFirst(t *testing.T) {
	_, _, p := newTestPublisher(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		p.Publish(ctx, id) //nolint:errcheck
	}

	events, err := p.Pop(ctx, 2)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if len(events) != 2 || events[0].PaymentID != "a" || events[1].PaymentID != "b" {
		t.Errorf("popped: got %+v", events)
	}
	rest, _ := p.Recent(ctx, 10)
	if len(rest) != 1 || rest[0].PaymentID != "c" {
		t.Errorf("remaining: got %+v", rest)
	}
}

func TestPop_Empty(t *testing.T) {
	_, _, p := newTestPublisher(t)
	events, err := p.Pop(context.Background(), 5)
	if err != nil {
		t.Fatalf("Pop on empty queue: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events: got %+v", events)
	}
}
