package otc

import "sync"

// offerLocks serialises operations touching the same offer. Entries are
// reference counted and dropped once no goroutine holds or waits on them.
type offerLocks struct {
	mu      sync.Mutex
	entries map[[20]byte]*offerLock
}

type offerLock struct {
	mu   sync.Mutex
	refs int
}

func (l *offerLocks) lock(addr [20]byte) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[[20]byte]*offerLock)
	}
	entry, ok := l.entries[addr]
	if !ok {
		entry = &offerLock{}
		l.entries[addr] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, addr)
		}
		l.mu.Unlock()
	}
}
