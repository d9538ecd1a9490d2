package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

func TestRedisLock(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()
	locker := NewLocker(client, nil, "sweep:")

	a := locker.For("campaign-1", time.Minute)
	b := locker.For("campaign-1", time.Minute)

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first Acquire() = %v, %v", ok, err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("second holder acquired a held lock")
	}

	// Releasing someone else's lock is a no-op.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if !mr.Exists("lock:sweep:campaign-1") {
		t.Fatal("foreign release deleted the lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock not free after release")
	}
}

func TestRedisLockExpiresAndExtend(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	l := NewRedisLock(client, "k", time.Second)
	if ok, _ := l.Acquire(ctx); !ok {
		t.Fatal("Acquire() failed")
	}
	if err := l.Extend(ctx, time.Minute); err != nil {
		t.Fatalf("Extend() error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if err := l.Extend(ctx, time.Minute); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("Extend() after expiry = %v, want ErrNotHeld", err)
	}
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	a := NewLock(nil, nil, "local-key", time.Minute)
	b := NewLock(nil, nil, "local-key", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("Acquire() failed")
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("second local holder acquired")
	}
	if err := a.Extend(ctx, time.Minute); err != nil {
		t.Errorf("holder Extend() error: %v", err)
	}
	if err := b.Extend(ctx, time.Minute); !errors.Is(err, ErrNotHeld) {
		t.Errorf("non-holder Extend() = %v, want ErrNotHeld", err)
	}
	b.Release(ctx)
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("non-holder release freed the lock")
	}
	a.Release(ctx)
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock not free after release")
	}
	b.Release(ctx)
}
