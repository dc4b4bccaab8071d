package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	a, _ := NewRedisLock(store, "sw:maintenance:lock:test", time.Minute)
	b, _ := NewRedisLock(store, "sw:maintenance:lock:test", time.Minute)
	ctx := context.Background()

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("second owner acquired held lock")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("non-owner release: %v", err)
	}
	if _, held := store.values["sw:maintenance:lock:test"]; !held {
		t.Fatal("non-owner release removed the lock")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock not free after owner release")
	}
}

func TestRedisLockLeavesTakenOverLease(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "k", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	store.values["k"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "someone-else" {
		t.Fatal("released a lease owned by another worker")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewRedisLock(store, "", time.Minute); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := NewRedisLock(store, "k", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
