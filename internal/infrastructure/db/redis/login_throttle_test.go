package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestThrottle(t *testing.T, maxAttempts int, window time.Duration) (*LoginThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLoginThrottle(client, maxAttempts, window), mr
}

func mustAllow(t *testing.T, th *LoginThrottle, email string) bool {
	t.Helper()
	ok, err := th.Allow(context.Background(), email)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	return ok
}

func TestLoginThrottle_BlocksAtMaxAttempts(t *testing.T) {
	th, _ := newTestThrottle(t, 2, time.Minute)
	ctx := context.Background()

	if !mustAllow(t, th, "a@x.com") {
		t.Fatalf("fresh address must be allowed")
	}
	if err := th.RecordFailure(ctx, "a@x.com"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !mustAllow(t, th, "a@x.com") {
		t.Fatalf("one failure must still be allowed")
	}
	if err := th.RecordFailure(ctx, "A@X.com"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if mustAllow(t, th, "a@x.com") {
		t.Fatalf("expected block after max failures")
	}
	if !mustAllow(t, th, "b@x.com") {
		t.Fatalf("other addresses must not be affected")
	}
}

func TestLoginThrottle_WindowStartsOnFirstFailure(t *testing.T) {
	th, mr := newTestThrottle(t, 2, time.Minute)
	ctx := context.Background()
	key := th.key("a@x.com")

	if err := th.RecordFailure(ctx, "a@x.com"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := mr.TTL(key); got != time.Minute {
		t.Fatalf("ttl after first failure = %v, want %v", got, time.Minute)
	}

	mr.FastForward(20 * time.Second)
	if err := th.RecordFailure(ctx, "a@x.com"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := mr.TTL(key); got != 40*time.Second {
		t.Fatalf("later failures must not extend the window, ttl = %v", got)
	}

	mr.FastForward(40 * time.Second)
	if !mustAllow(t, th, "a@x.com") {
		t.Fatalf("expected window to reopen after expiry")
	}
}

func TestLoginThrottle_ResetReopensWindow(t *testing.T) {
	th, mr := newTestThrottle(t, 1, time.Minute)
	ctx := context.Background()

	if err := th.RecordFailure(ctx, "a@x.com"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if mustAllow(t, th, "a@x.com") {
		t.Fatalf("expected block")
	}
	if err := th.Reset(ctx, "a@x.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mr.Exists(th.key("a@x.com")) {
		t.Fatalf("counter must be removed on reset")
	}
	if !mustAllow(t, th, "a@x.com") {
		t.Fatalf("expected allow after reset")
	}
}

func TestLoginThrottle_KeyIsNormalizedAndOpaque(t *testing.T) {
	th := NewLoginThrottle(nil, 5, time.Minute)

	a := th.key("Alice@Example.com ")
	b := th.key("alice@example.com")
	if a != b {
		t.Fatalf("keys differ for the same address: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "login_fail:") {
		t.Fatalf("unexpected key prefix: %s", a)
	}
	if strings.Contains(a, "alice") {
		t.Fatalf("key must not contain the plaintext email: %s", a)
	}
}
