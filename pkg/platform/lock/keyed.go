// Package lock provides per-key mutual exclusion scopes.
//
// The distribution engines serialize every Issue/Return/Renew operation on the
// armory it touches; operations against different armories must not block each
// other. Locker is the boundary: an in-process implementation for
// single-instance deployments and a Redis implementation for multi-instance
// ones.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive access scoped to a string key.
type Locker interface {
	// Acquire blocks until the key's lock is held or ctx is done. On success
	// it returns a release function; the caller must invoke it on every exit
	// path.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Keyed is an in-process Locker backed by one mutex per key. Entries are
// reference-counted and removed when the last holder releases, so the map does
// not grow with the number of keys ever seen.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// NewKeyed constructs an empty in-process keyed locker.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*keyedEntry)}
}

func (k *Keyed) entry(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) put(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Acquire implements Locker. A caller whose context is cancelled while waiting
// does not end up holding the lock.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	e := k.entry(key)
	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				k.put(key, e)
			})
		}, nil
	case <-ctx.Done():
		k.put(key, e)
		return nil, ctx.Err()
	}
}
