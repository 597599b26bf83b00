package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLockAcquireRelease(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	l := NewRedisLock(client, "msg:abc", time.Minute)
	acquired, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("first acquire should succeed")
	}

	// A second holder contends for the same key.
	other := NewRedisLock(client, "msg:abc", time.Minute)
	acquired, err = other.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if acquired {
		t.Fatal("contending acquire should fail while lock is held")
	}

	if err := l.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	acquired, err = other.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !acquired {
		t.Fatal("acquire should succeed after release")
	}
}

func TestRedisLockReleaseOnlyIfOwned(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	holder := NewRedisLock(client, "msg:xyz", time.Minute)
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// A different instance releasing the same key must not free
	// the holder's lock.
	impostor := NewRedisLock(client, "msg:xyz", time.Minute)
	if err := impostor.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	contender := NewRedisLock(client, "msg:xyz", time.Minute)
	acquired, err := contender.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if acquired {
		t.Fatal("lock should still be held by original owner")
	}
}

func TestRedisLockExtend(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	l := NewRedisLock(client, "msg:extend", time.Minute)
	if ok, _ := l.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Extend(ctx, 5*time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
}

func TestNewLockPrefersRedis(t *testing.T) {
	client := newTestClient(t)

	l := NewLock(client, nil, "msg:pick", time.Minute)
	if _, ok := l.(*RedisLock); !ok {
		t.Fatalf("expected *RedisLock, got %T", l)
	}

	l = NewLock(nil, nil, "msg:pick", time.Minute)
	if _, ok := l.(*PGAdvisoryLock); !ok {
		t.Fatalf("expected *PGAdvisoryLock, got %T", l)
	}
}

func TestPGAdvisoryLockIDDeterministic(t *testing.T) {
	a := NewPGAdvisoryLock(nil, "msg:42")
	b := NewPGAdvisoryLock(nil, "msg:42")
	c := NewPGAdvisoryLock(nil, "msg:43")

	if a.lockID != b.lockID {
		t.Error("same key should map to same lock ID")
	}
	if a.lockID == c.lockID {
		t.Error("different keys should map to different lock IDs")
	}
}
