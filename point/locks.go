package point

import "sync"

// accountLocks hands out one mutex per account.
// Mutexes are created on first use and never removed, so two callers for the
// same account always contend on the same mutex while different accounts
// never share one.
type accountLocks struct {
	m sync.Map // AccountID -> *sync.Mutex
}

func (l *accountLocks) get(id AccountID) *sync.Mutex {
	if mu, ok := l.m.Load(id); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := l.m.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// lock acquires the account's mutex and returns its unlock func.
func (l *accountLocks) lock(id AccountID) func() {
	mu := l.get(id)
	mu.Lock()
	return mu.Unlock
}
