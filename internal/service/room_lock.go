package service

import "sync"

// roomLocks hands out one mutex per room and forgets it once nobody holds
// or waits on it.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// lock blocks until roomID is free and returns the matching unlock.
func (r *roomLocks) lock(roomID string) func() {
	r.mu.Lock()
	rl, ok := r.locks[roomID]
	if !ok {
		rl = &roomLock{}
		r.locks[roomID] = rl
	}
	rl.refs++
	r.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		r.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(r.locks, roomID)
		}
		r.mu.Unlock()
	}
}

func (r *roomLocks) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
