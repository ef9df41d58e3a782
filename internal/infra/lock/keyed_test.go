package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "post")
			if err != nil {
				t.Errorf("не ожидали ошибку: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("под блокировкой одновременно было %d горутин", maxInside)
	}
	if k.Size() != 0 {
		t.Fatalf("после освобождения не должно оставаться ключей, осталось %d", k.Size())
	}
}

func TestKeyedDifferentKeysIndependent(t *testing.T) {
	k := NewKeyed()
	unlockA, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer unlockA()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("другой ключ не должен блокироваться: %v", err)
	}
	unlockB()
}

func TestKeyedRespectsContext(t *testing.T) {
	k := NewKeyed()
	unlock, _ := k.Lock(context.Background(), "a")
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ожидали DeadlineExceeded, получили %v", err)
	}
}

func TestKeyedUnlockIsIdempotent(t *testing.T) {
	k := NewKeyed()
	unlock, _ := k.Lock(context.Background(), "a")
	unlock()
	unlock()
	if k.Size() != 0 {
		t.Fatalf("повторный unlock не должен ломать счётчики")
	}
}
