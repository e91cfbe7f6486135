// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account

import (
	"context"
	"sync"
)

// keyMutex hands out one lock per key. Entries are reference counted and
// dropped once no caller holds or waits on them, so unrelated keys never
// share a lock.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is held while its one-slot channel is full.
type keyLock struct {
	held chan struct{}
	refs int
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*keyLock)}
}

// Lock waits until key is held or ctx is done. On success it returns the
// matching unlock function; otherwise it returns ctx.Err().
func (m *keyMutex) Lock(ctx context.Context, key string) (unlock func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{held: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.held <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}

	return func() {
		<-l.held
		m.release(key, l)
	}, nil
}

func (m *keyMutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// size returns the number of live entries.
func (m *keyMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
