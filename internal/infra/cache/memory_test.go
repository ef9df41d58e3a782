package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"tg-importance-bot/internal/domain"
)

func TestMemoryCacheOnceRunsOnce(t *testing.T) {
	c := NewMemory(16, time.Hour)
	calls := 0
	for i := 0; i < 3; i++ {
		if err := c.Once(context.Background(), "k", time.Minute, func() error {
			calls++
			return nil
		}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("ожидали один вызов, получили %d", calls)
	}
}

func TestMemoryCacheOnceReleasesOnError(t *testing.T) {
	c := NewMemory(16, time.Hour)
	boom := errors.New("boom")
	if err := c.Once(context.Background(), "k", time.Minute, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("ожидали ошибку fn, получили %v", err)
	}
	called := false
	_ = c.Once(context.Background(), "k", time.Minute, func() error {
		called = true
		return nil
	})
	if !called {
		t.Fatalf("после ошибки ключ должен освобождаться")
	}
}

func TestMemoryCacheGetSet(t *testing.T) {
	c := NewMemory(16, time.Hour)
	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, err := c.Get(context.Background(), "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("ожидали v, получили %q %v", got, err)
	}
}

func TestMemoryCacheEntryTTL(t *testing.T) {
	c := NewMemory(16, time.Hour)
	_ = c.Set(context.Background(), "k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("запись должна истечь, получили %v", err)
	}
}
