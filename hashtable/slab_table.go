// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hashtable

import (
	"encoding/binary"
	"sync"

	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/slabfile"
)

// EmptySlab is the slab-table empty sentinel. Deliberately 0 rather
// than all-ones (spec section 9's open question, resolved as the
// source resolves it): offset 0 is never a valid allocation because
// slabfile.Manager reserves it for its own size header.
const EmptySlab uint64 = 0

const slabNextSize = 8

// SlabTable is an intrusive, separate-chaining hash map whose rows
// live in a variable-width slabfile.Manager arena:
// [next:8 | key | value...]. The public offset handed to callers
// points past the prefix, directly at value.
type SlabTable struct {
	header  *Header[uint64]
	rows    *slabfile.Manager
	keySize int
	mutex   sync.Mutex
}

// NewSlabTable builds a slab hash table over rows.
func NewSlabTable(header *Header[uint64], rows *slabfile.Manager, keySize int) *SlabTable {
	return &SlabTable{
		header:  header,
		rows:    rows,
		keySize: keySize,
	}
}

func (t *SlabTable) prefixSize() uint64 {
	return slabNextSize + uint64(t.keySize)
}

func (t *SlabTable) bucket(key []byte) uint64 {
	return fold(key, t.header.Buckets())
}

// prefix returns the [next|key] bytes preceding the public offset.
func (t *SlabTable) prefix(publicOffset uint64) ([]byte, error) {
	raw, err := t.rows.Get(publicOffset - t.prefixSize())
	if nil != err {
		return nil, err
	}
	return raw[:t.prefixSize()], nil
}

func prefixNext(prefix []byte) uint64 {
	return binary.LittleEndian.Uint64(prefix)
}

func setPrefixNext(prefix []byte, next uint64) {
	binary.LittleEndian.PutUint64(prefix, next)
}

func prefixKey(prefix []byte, keySize int) []byte {
	return prefix[slabNextSize : slabNextSize+keySize]
}

// walk returns the public offset and prefix bytes of the first row
// matching key, or EmptySlab and a nil prefix if none is found.
func (t *SlabTable) walk(key []byte) (uint64, []byte, error) {
	empty := t.header.Empty()
	offset := t.header.Read(t.bucket(key))

	visited := 0
	limit := int(t.rows.Size()/t.prefixSize()) + 1
	for offset != empty {
		if visited > limit {
			return empty, nil, fault.ErrChainDidNotEnd
		}
		visited++

		prefix, err := t.prefix(offset)
		if nil != err {
			return empty, nil, err
		}
		if bytesEqual(prefixKey(prefix, t.keySize), key) {
			return offset, prefix, nil
		}
		offset = prefixNext(prefix)
	}
	return empty, nil, nil
}

// Store allocates a new row of valueSize bytes, writes key and the
// caller's value via write, and prepends the row to key's bucket chain.
func (t *SlabTable) Store(key []byte, valueSize uint64, write func([]byte)) (uint64, error) {
	if len(key) != t.keySize {
		return EmptySlab, fault.ErrInconsistentField
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	rawOffset, err := t.rows.Allocate(t.prefixSize() + valueSize)
	if nil != err {
		return EmptySlab, err
	}
	publicOffset := rawOffset + t.prefixSize()

	prefix, err := t.rows.Get(rawOffset)
	if nil != err {
		return EmptySlab, err
	}

	bucket := t.bucket(key)
	head := t.header.Read(bucket)
	setPrefixNext(prefix, head)
	copy(prefixKey(prefix, t.keySize), key)

	if nil != write {
		value, err := t.rows.Get(publicOffset)
		if nil != err {
			return EmptySlab, err
		}
		write(value[:valueSize])
	}

	t.header.Write(bucket, publicOffset)
	return publicOffset, nil
}

// Find walks the bucket chain and returns the value bytes (running to
// the end of the arena) of the first matching row, or nil if key was
// never stored. Pins the backing mmfile for the duration of the walk
// and the final Get so a concurrent grow cannot move the mapping
// between them.
func (t *SlabTable) Find(key []byte) ([]byte, error) {
	t.rows.RLock()
	defer t.rows.RUnlock()

	offset, prefix, err := t.walk(key)
	if nil != err {
		return nil, err
	}
	if nil == prefix {
		return nil, nil
	}
	return t.rows.Get(offset)
}

// Locate is Find plus the row's own public offset, for a caller that
// needs to address the row again later (e.g. as a deferred reader's
// pin key) without re-walking the chain. Pins the backing mmfile the
// same way Find does.
func (t *SlabTable) Locate(key []byte) (uint64, []byte, error) {
	t.rows.RLock()
	defer t.rows.RUnlock()

	offset, prefix, err := t.walk(key)
	if nil != err {
		return t.header.Empty(), nil, err
	}
	if nil == prefix {
		return t.header.Empty(), nil, nil
	}
	value, err := t.rows.Get(offset)
	if nil != err {
		return t.header.Empty(), nil, err
	}
	return offset, value, nil
}

// RowAt returns a row's key and value given its public offset,
// reading the key back out of the row's own prefix. Used to recover a
// transaction's hash from a bare file offset. Pins the backing mmfile
// across both Get calls.
func (t *SlabTable) RowAt(offset uint64) ([]byte, []byte, error) {
	t.rows.RLock()
	defer t.rows.RUnlock()

	prefix, err := t.prefix(offset)
	if nil != err {
		return nil, nil, err
	}
	value, err := t.rows.Get(offset)
	if nil != err {
		return nil, nil, err
	}
	return prefixKey(prefix, t.keySize), value, nil
}

// Sync flushes the backing arena's size header.
func (t *SlabTable) Sync() error {
	return t.rows.Sync()
}

// Update finds the first match for key and lets write mutate its
// value bytes in place; returns the row's public offset or the empty
// sentinel if key was never stored. Pins the backing mmfile across
// the walk and the write, same as Find.
func (t *SlabTable) Update(key []byte, write func([]byte)) (uint64, error) {
	t.rows.RLock()
	defer t.rows.RUnlock()

	offset, prefix, err := t.walk(key)
	if nil != err {
		return t.header.Empty(), err
	}
	if nil == prefix {
		return t.header.Empty(), nil
	}
	value, err := t.rows.Get(offset)
	if nil != err {
		return t.header.Empty(), err
	}
	write(value)
	return offset, nil
}

// Unlink removes the first match for key from its bucket chain. Not
// safe against concurrent writers.
func (t *SlabTable) Unlink(key []byte) error {
	empty := t.header.Empty()
	bucket := t.bucket(key)
	offset := t.header.Read(bucket)

	var previousPrefix []byte
	for offset != empty {
		prefix, err := t.prefix(offset)
		if nil != err {
			return err
		}
		if bytesEqual(prefixKey(prefix, t.keySize), key) {
			next := prefixNext(prefix)
			if nil == previousPrefix {
				t.header.Write(bucket, next)
			} else {
				setPrefixNext(previousPrefix, next)
			}
			return nil
		}
		previousPrefix = prefix
		offset = prefixNext(prefix)
	}
	return fault.ErrNotFound
}
