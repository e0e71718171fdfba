// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hashtable

import (
	"encoding/binary"
	"sync"

	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/recordfile"
)

// EmptyRecord is the all-ones sentinel for a 32-bit record-table cell.
const EmptyRecord uint32 = 0xFFFFFFFF

const recordNextSize = 4

// RecordTable is an intrusive, separate-chaining hash map whose rows
// live in a fixed-width recordfile.Manager arena: [key | next:4 | value].
type RecordTable struct {
	header    *Header[uint32]
	rows      *recordfile.Manager
	keySize   int
	valueSize int
	mutex     sync.Mutex
}

// NewRecordTable builds a record hash table over rows, whose width
// must already equal keySize+4+valueSize.
func NewRecordTable(header *Header[uint32], rows *recordfile.Manager, keySize, valueSize int) *RecordTable {
	return &RecordTable{
		header:    header,
		rows:      rows,
		keySize:   keySize,
		valueSize: valueSize,
	}
}

func (t *RecordTable) rowWidth() uint64 {
	return uint64(t.keySize + recordNextSize + t.valueSize)
}

func (t *RecordTable) rowKey(row []byte) []byte {
	return row[:t.keySize]
}

func (t *RecordTable) rowNext(row []byte) uint32 {
	return binary.LittleEndian.Uint32(row[t.keySize:])
}

func (t *RecordTable) setRowNext(row []byte, next uint32) {
	binary.LittleEndian.PutUint32(row[t.keySize:], next)
}

func (t *RecordTable) rowValue(row []byte) []byte {
	return row[t.keySize+recordNextSize:]
}

func (t *RecordTable) bucket(key []byte) uint64 {
	return fold(key, t.header.Buckets())
}

// walk returns the row bytes for the first row matching key starting
// from the bucket head, along with its index; guards against a
// corrupt chain that never reaches the empty sentinel.
func (t *RecordTable) walk(key []byte) (uint32, []byte, error) {
	empty := t.header.Empty()
	index := t.header.Read(t.bucket(key))

	visited := uint32(0)
	limit := t.rows.Count() + 1
	for index != empty {
		if visited > limit {
			return empty, nil, fault.ErrChainDidNotEnd
		}
		visited++

		row, err := t.rows.Get(index)
		if nil != err {
			return empty, nil, err
		}
		if bytesEqual(t.rowKey(row), key) {
			return index, row, nil
		}
		index = t.rowNext(row)
	}
	return empty, nil, nil
}

// Store always allocates a new row and prepends it to key's bucket
// chain; duplicate keys coexist, most recently stored first.
func (t *RecordTable) Store(key []byte, write func([]byte)) (uint32, error) {
	if len(key) != t.keySize {
		return 0, fault.ErrInconsistentField
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	index, err := t.rows.NewRecords(1)
	if nil != err {
		return 0, err
	}
	row, err := t.rows.Get(index)
	if nil != err {
		return 0, err
	}

	copy(t.rowKey(row), key)
	bucket := t.bucket(key)
	head := t.header.Read(bucket)
	t.setRowNext(row, head)
	if nil != write {
		write(t.rowValue(row))
	}

	t.header.Write(bucket, index)
	return index, nil
}

// Find walks the bucket chain and returns the first matching row's
// value buffer, or nil if key was never stored. Pins the backing
// mmfile for the duration of the walk so a concurrent grow cannot
// move the mapping out from under it.
func (t *RecordTable) Find(key []byte) ([]byte, error) {
	t.rows.RLock()
	defer t.rows.RUnlock()

	_, row, err := t.walk(key)
	if nil != err {
		return nil, err
	}
	if nil == row {
		return nil, nil
	}
	return t.rowValue(row), nil
}

// Update finds the first match for key and lets write mutate its
// value buffer in place; returns the row's index or the table's empty
// sentinel if key was never stored. Callers must serialize against
// conflicting writers themselves. Pins the backing mmfile for the
// duration of the walk, same as Find.
func (t *RecordTable) Update(key []byte, write func([]byte)) (uint32, error) {
	t.rows.RLock()
	defer t.rows.RUnlock()

	index, row, err := t.walk(key)
	if nil != err {
		return t.header.Empty(), err
	}
	if nil == row {
		return t.header.Empty(), nil
	}
	write(t.rowValue(row))
	return index, nil
}

// Sync flushes the backing arena's record count.
func (t *RecordTable) Sync() error {
	return t.rows.Sync()
}

// Unlink removes the first match for key from its bucket chain. Not
// safe against concurrent writers.
func (t *RecordTable) Unlink(key []byte) error {
	empty := t.header.Empty()
	bucket := t.bucket(key)
	index := t.header.Read(bucket)

	var previous []byte
	for index != empty {
		row, err := t.rows.Get(index)
		if nil != err {
			return err
		}
		if bytesEqual(t.rowKey(row), key) {
			next := t.rowNext(row)
			if nil == previous {
				t.header.Write(bucket, next)
			} else {
				t.setRowNext(previous, next)
			}
			return nil
		}
		previous = row
		index = t.rowNext(row)
	}
	return fault.ErrNotFound
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
