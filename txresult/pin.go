// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txresult

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// pin holds a remap mutex's shared side open so the mapping a Result
// points into cannot be moved out from under it by a concurrent
// Reserve/Resize. release is idempotent: the pool's eviction callback
// and an explicit Result.Close may both call it.
type pin struct {
	mutex *sync.RWMutex
	once  sync.Once
}

func newPin(mutex *sync.RWMutex) *pin {
	mutex.RLock()
	return &pin{mutex: mutex}
}

func (p *pin) release() {
	p.once.Do(p.mutex.RUnlock)
}

// pool bounds how many pins may be held open at once. Deferred readers
// are cheap individually, but each one keeps the remap mutex's shared
// side locked until released; without a cap, a slow consumer walking a
// large result set could starve a pending Reserve indefinitely. When
// the LRU evicts an older pin to admit a new one, the evicted pin's
// lock is dropped immediately rather than left for its Result to
// release on its own schedule.
type pool struct {
	mutex *sync.RWMutex
	cache *lru.Cache
}

// newPool builds a pin pool of the given capacity over mutex. capacity
// below 1 is treated as 1.
func newPool(mutex *sync.RWMutex, capacity int) *pool {
	if capacity < 1 {
		capacity = 1
	}
	cache, err := lru.NewWithEvict(capacity, func(_ interface{}, value interface{}) {
		value.(*pin).release()
	})
	if nil != err {
		// only returned for a non-positive size, excluded above
		panic(err)
	}
	return &pool{mutex: mutex, cache: cache}
}

// acquire returns the pin open for id, taking out a fresh shared lock
// and admitting it to the pool if none is open yet.
func (p *pool) acquire(id uint64) *pin {
	if v, ok := p.cache.Get(id); ok {
		return v.(*pin)
	}
	newPin := newPin(p.mutex)
	p.cache.Add(id, newPin)
	return newPin
}
