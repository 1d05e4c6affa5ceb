package reconcile

import "sync"

// Locker serializes ledger mutations per member inside this process.
// The row lock taken in LockMember covers other processes on Postgres.
type Locker struct {
	mu    sync.Mutex
	locks map[uint]*memberLock
}

type memberLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[uint]*memberLock)}
}

// Lock blocks until the member is free and returns the unlock func.
func (l *Locker) Lock(memberID uint) func() {
	l.mu.Lock()
	ml, ok := l.locks[memberID]
	if !ok {
		ml = &memberLock{}
		l.locks[memberID] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.mu.Lock()
	return func() {
		ml.mu.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, memberID)
		}
		l.mu.Unlock()
	}
}
