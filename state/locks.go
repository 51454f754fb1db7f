// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"slices"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

// lock acquires every key in ascending order so overlapping transitions
// cannot deadlock. The returned func releases them.
func (t *lockTable) lock(keys []ids.ID) func() {
	unique := set.NewSet[ids.ID](len(keys))
	unique.Add(keys...)
	ordered := unique.List()
	slices.SortFunc(ordered, func(a, b ids.ID) int {
		return a.Compare(b)
	})

	held := make([]*keyLock, 0, len(ordered))
	for _, key := range ordered {
		l := t.acquire(key)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			t.release(ordered[i])
		}
	}
}

func (t *lockTable) acquire(key ids.ID) *keyLock {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{}
		t.locks[key] = l
	}
	l.refs++
	return l
}

func (t *lockTable) release(key ids.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l := t.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}
