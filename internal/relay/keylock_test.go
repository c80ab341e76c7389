package relay

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyLocksSerialiseSameKey(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("k")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
	if locks.size() != 0 {
		t.Fatalf("expected entries to be released, %d left", locks.size())
	}
}

func TestKeyLocksIndependentKeys(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()
	unlockA := locks.lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlock := locks.lock("b")
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyLocksUnlockIdempotent(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()
	unlock := locks.lock("k")
	unlock()
	unlock()

	if locks.size() != 0 {
		t.Fatalf("expected no entries, got %d", locks.size())
	}
}
