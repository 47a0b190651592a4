package service

import "sync"

// keyMutex serializes writers per submission identity so two concurrent
// submits for the same candidate cannot race each other. The map grows with
// the number of distinct candidates, which is bounded by invitations.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
