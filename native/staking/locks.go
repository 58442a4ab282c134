package staking

import "sync"

// accountLocks hands out one mutex per account so operations on the same
// account serialise while different accounts proceed in parallel.
type accountLocks struct {
	mu    sync.Mutex
	locks map[[20]byte]*sync.Mutex
}

func (l *accountLocks) lock(addr [20]byte) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[[20]byte]*sync.Mutex)
	}
	m, ok := l.locks[addr]
	if !ok {
		m = &sync.Mutex{}
		l.locks[addr] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
