package repositories

import (
	"sync"
)

// lockTable hands out one mutex per account so that at most one commit per
// account is in flight. Entries are refcounted and dropped when unused, so
// the table stays proportional to live contention, not to account count.
type lockTable struct {
	mu    sync.Mutex
	locks map[uint]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uint]*accountLock)}
}

func (t *lockTable) acquire(accountID uint) UnlockFunc {
	e := t.ref(accountID)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.unref(accountID, e)
	}
}

func (t *lockTable) tryAcquire(accountID uint) (UnlockFunc, bool) {
	e := t.ref(accountID)
	if !e.mu.TryLock() {
		t.unref(accountID, e)
		return nil, false
	}
	return func() {
		e.mu.Unlock()
		t.unref(accountID, e)
	}, true
}

func (t *lockTable) ref(accountID uint) *accountLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.locks[accountID]
	if !ok {
		e = &accountLock{}
		t.locks[accountID] = e
	}
	e.refs++
	return e
}

func (t *lockTable) unref(accountID uint, e *accountLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.locks, accountID)
	}
}
