package relay

import (
	"sync"

	"github.com/ashureev/llama-relay/internal/domain"
)

// keyLocks hands out one mutex per session key. Entries are reference
// counted and removed once no goroutine holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[domain.SessionKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[domain.SessionKey]*keyLock)}
}

// lock blocks until key is free and returns the function that releases it.
func (l *keyLocks) lock(key domain.SessionKey) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			kl.mu.Unlock()

			l.mu.Lock()
			kl.refs--
			if kl.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// size returns the number of live entries.
func (l *keyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
