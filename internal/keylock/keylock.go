// Package keylock provides mutexes keyed by numeric IDs
package keylock

import "sync"

// Keyed hands out one mutex per key and forgets it once nobody holds
// or waits for it
type Keyed struct {
	mu    sync.Mutex
	locks map[uint]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func New() *Keyed {
	return &Keyed{locks: make(map[uint]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock func
func (k *Keyed) Lock(key uint) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
