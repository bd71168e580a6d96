package lending

import (
	"sort"
	"sync"
)

// lockTable serializes work per key while letting unrelated keys proceed in
// parallel. Multi-key acquisition sorts first so two handlers touching the
// same pair of accounts can never deadlock.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) lockFor(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

// acquire locks every key in sorted order and returns the matching release.
// Duplicate keys are collapsed so locking (a, a) does not self-deadlock.
func (t *lockTable) acquire(keys ...string) func() {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	held := make([]*sync.Mutex, 0, len(unique))
	for _, key := range unique {
		l := t.lockFor(key)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
