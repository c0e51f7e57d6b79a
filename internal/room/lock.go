package room

import "sync"

// Locker serializes all playback-state and queue mutations for one room.
// The reconciliation sweep and user commands can touch the same room
// concurrently; both must hold the room's lock around read-modify-write
// sections so re-normalization passes never interleave.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for roomID and returns its unlock function.
func (l *Locker) Lock(roomID string) func() {
	l.mu.Lock()
	m, ok := l.locks[roomID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[roomID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
