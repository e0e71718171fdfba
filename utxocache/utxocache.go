// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package utxocache is a bounded in-memory cache of recently confirmed,
// still-unspent outputs. It exists purely to short-circuit the common
// "is this output still there and unspent" query without a slab-table
// walk; a miss always falls back to txstore. txstore removes an entry
// when its output is spent (Spend) or its transaction is returned to
// the pool (Pool).
package utxocache

import (
	"container/list"
	"strconv"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/bitmark-inc/bitmarkd/wire"
)

// Output is the cached view of a confirmed, unspent output.
type Output struct {
	Value       uint64
	Script      []byte
	Height      uint64
	CoinbaseOut bool
}

// Cache is a size-bounded, thread-safe map of output_point -> Output.
//
// go-cache itself is TTL-based, not size-bounded (storage/cache.go's
// own use of it is exactly that: a short-lived write buffer). Layering
// an LRU ring of touched keys on top turns it into the size-bounded
// cache this store actually needs.
type Cache struct {
	mutex    sync.Mutex
	store    *gocache.Cache
	order    *list.List
	elements map[string]*list.Element
	capacity int
}

// New creates a cache bounded at capacity entries.
func New(capacity int) *Cache {
	return &Cache{
		store:    gocache.New(gocache.NoExpiration, gocache.NoExpiration),
		order:    list.New(),
		elements: make(map[string]*list.Element),
		capacity: capacity,
	}
}

func pointKey(point wire.OutputPoint) string {
	return point.Hash.String() + ":" + strconv.FormatUint(uint64(point.Index), 10)
}

// Populate fills point's cached output if present and unspent; its
// return mirrors the confirmation predicate for cached (always
// confirmed, always unspent) entries — the caller only needs the
// spent=false, confirmed=true view because spent/indexed states are
// never cached in the first place.
func (c *Cache) Populate(point wire.OutputPoint) (Output, bool) {
	key := pointKey(point)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	value, found := c.store.Get(key)
	if !found {
		return Output{}, false
	}
	c.touch(key)
	return value.(Output), true
}

// Add inserts every output of a newly confirmed transaction.
// confirming distinguishes the (height, position, state) transition
// that made these outputs spendable from a re-store that should not
// be cached (e.g. a re-pool followed by re-confirm at a different
// position keeps calling Add, which is fine since it is idempotent).
func (c *Cache) Add(tx *wire.Tx, height uint64, confirming bool) {
	if !confirming {
		return
	}

	hash := tx.Hash()
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for i, out := range tx.Outputs {
		point := wire.OutputPoint{Hash: hash, Index: uint32(i)}
		key := pointKey(point)
		c.store.Set(key, Output{
			Value:       out.Value,
			Script:      out.Script,
			Height:      height,
			CoinbaseOut: tx.IsCoinbase(),
		}, gocache.NoExpiration)
		c.touch(key)
	}
	c.evictIfNeeded()
}

// Remove evicts point from the cache, called when it is spent.
func (c *Cache) Remove(point wire.OutputPoint) {
	key := pointKey(point)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.store.Delete(key)
	if el, ok := c.elements[key]; ok {
		c.order.Remove(el)
		delete(c.elements, key)
	}
}

// touch marks key as most recently used.
func (c *Cache) touch(key string) {
	if el, ok := c.elements[key]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.elements[key] = c.order.PushFront(key)
}

// evictIfNeeded drops least recently used entries until the cache is
// back at capacity. Every Add ends with this call under the cache
// mutex, so the cache is never over capacity once Add returns.
func (c *Cache) evictIfNeeded() {
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if nil == oldest {
			return
		}
		key := oldest.Value.(string)
		c.order.Remove(oldest)
		delete(c.elements, key)
		c.store.Delete(key)
	}
}
