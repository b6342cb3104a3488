package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// locker hands out one mutex per account so that read-validate-write on the
// same balance is serialized while different accounts proceed in parallel.
// Entries are dropped once nobody holds or waits for them.
type locker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLocker() *locker {
	return &locker{locks: make(map[uuid.UUID]*lockEntry)}
}

func (l *locker) lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()

	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}

	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--

		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
