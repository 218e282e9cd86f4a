package runlock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/studiosync/internal/clock"
)

func TestLocalLockerExcludesUntilExpiry(t *testing.T) {
	c := clock.NewFakeClock(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	l := NewLocalLocker(c)
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, KeyImportRun, time.Hour)
	if err != nil || !ok || token == "" {
		t.Fatalf("expected lock, got %q %v %v", token, ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, KeyImportRun, time.Hour); ok {
		t.Fatalf("expected lock to be held")
	}

	c.Advance(time.Hour)
	stolen, ok, _ := l.TryLock(ctx, KeyImportRun, time.Hour)
	if !ok {
		t.Fatalf("expected expired lock to be taken over")
	}

	// The first holder's late release must not free the new lease.
	if err := l.Release(ctx, KeyImportRun, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, KeyImportRun, time.Hour); ok {
		t.Fatalf("stale release freed the lock")
	}

	if err := l.Release(ctx, KeyImportRun, stolen); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, KeyImportRun, time.Hour); !ok {
		t.Fatalf("expected lock after release")
	}
}

func TestLockValidation(t *testing.T) {
	l := NewLocalLocker(nil)
	if _, _, err := l.TryLock(context.Background(), "", time.Second); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, _, err := l.TryLock(context.Background(), "k", 0); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	l := NewRedisLocker(client)
	key := "studiosync:test:" + t.Name()
	_ = client.Del(ctx, key).Err()

	token, ok, err := l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock, got %v %v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); ok {
		t.Fatalf("expected lock to be held")
	}
	if err := l.Release(ctx, key, "someone-else"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); ok {
		t.Fatalf("foreign token released the lock")
	}
	if err := l.Release(ctx, key, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); !ok {
		t.Fatalf("expected lock after release")
	}
}
