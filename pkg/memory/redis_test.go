package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, window time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, window), mr
}

func TestRedisViolationSequence(t *testing.T) {
	s, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	for want := 1; want <= 5; want++ {
		hits, err := s.RecordAndEscalate(ctx, "user-1", true)
		if err != nil {
			t.Fatalf("RecordAndEscalate: %v", err)
		}
		if hits != want {
			t.Fatalf("hits = %d, want %d", hits, want)
		}
	}
}

func TestRedisNonViolation(t *testing.T) {
	s, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	if hits, err := s.RecordAndEscalate(ctx, "user-1", false); err != nil || hits != 0 {
		t.Fatalf("unknown identity: hits=%d err=%v", hits, err)
	}

	_, _ = s.RecordAndEscalate(ctx, "user-1", true)
	_, _ = s.RecordAndEscalate(ctx, "user-1", true)

	hits, err := s.RecordAndEscalate(ctx, "user-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Fatalf("non-violation hits = %d, want 2", hits)
	}
}

func TestRedisDecay(t *testing.T) {
	s, mr := newTestRedisStore(t, 10*time.Minute)
	ctx := context.Background()

	_, _ = s.RecordAndEscalate(ctx, "user-1", true)
	_, _ = s.RecordAndEscalate(ctx, "user-1", true)

	mr.FastForward(9 * time.Minute)
	if hits, _ := s.RecordAndEscalate(ctx, "user-1", false); hits != 2 {
		t.Fatalf("hits before decay = %d, want 2", hits)
	}

	// The violation refreshed the TTL; expire it fully.
	mr.FastForward(11 * time.Minute)
	if hits, _ := s.RecordAndEscalate(ctx, "user-1", false); hits != 0 {
		t.Fatalf("hits after decay = %d, want 0", hits)
	}
	if hits, _ := s.RecordAndEscalate(ctx, "user-1", true); hits != 1 {
		t.Fatal("violation after decay should restart at 1")
	}
}

func TestRedisRead(t *testing.T) {
	s, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	if _, ok, err := s.Read(ctx, "user-1"); err != nil || ok {
		t.Fatalf("unknown identity: ok=%v err=%v", ok, err)
	}

	_, _ = s.RecordAndEscalate(ctx, "user-1", true)
	rec, ok, err := s.Read(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if rec.ViolationCount != 1 {
		t.Fatalf("count = %d, want 1", rec.ViolationCount)
	}
}

func TestRedisIdentityIsolation(t *testing.T) {
	s, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	_, _ = s.RecordAndEscalate(ctx, "user-1", true)
	if hits, _ := s.RecordAndEscalate(ctx, "user-2", true); hits != 1 {
		t.Fatalf("user-2 hits = %d, want 1", hits)
	}
}

func TestRedisUnavailable(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	mr.Close()

	if _, err := s.RecordAndEscalate(context.Background(), "user-1", true); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
