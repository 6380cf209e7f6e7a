package ledger

import "sync"

// Locks serializes work per key. Entries are reference counted and
// removed once nobody holds or waits for them.
type Locks struct {
	mu sync.Mutex
	m  map[Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks { return &Locks{m: map[Key]*keyLock{}} }

// Lock blocks until k is free and returns the matching unlock.
func (l *Locks) Lock(k Key) (unlock func()) {
	l.mu.Lock()
	kl := l.m[k]
	if kl == nil {
		kl = &keyLock{}
		l.m[k] = kl
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
				delete(l.m, k)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
