// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package multimap layers a one-key-to-many-values index on top of
// hashtable.RecordTable and recordfile.Manager: one primary row per
// distinct key carries the head of a secondary, append-at-head list
// of value rows sharing that key.
package multimap

import (
	"encoding/binary"
	"sync"

	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/hashtable"
	"github.com/bitmark-inc/bitmarkd/recordfile"
)

const headIndexSize = 4
const secondaryNextSize = 4

// Multimap is a primary hash table (key -> head index) over a
// secondary record arena (next | payload).
type Multimap struct {
	primary     *hashtable.RecordTable
	secondary   *recordfile.Manager
	payloadSize int
	mutex       sync.Mutex
}

// New builds a multimap. primary must have been constructed with a
// value size of headIndexSize; secondary's row width must equal
// secondaryNextSize+payloadSize.
func New(primary *hashtable.RecordTable, secondary *recordfile.Manager, payloadSize int) *Multimap {
	return &Multimap{
		primary:     primary,
		secondary:   secondary,
		payloadSize: payloadSize,
	}
}

func (m *Multimap) secondaryNext(row []byte) uint32 {
	return binary.LittleEndian.Uint32(row)
}

func (m *Multimap) setSecondaryNext(row []byte, next uint32) {
	binary.LittleEndian.PutUint32(row, next)
}

func (m *Multimap) secondaryPayload(row []byte) []byte {
	return row[secondaryNextSize:]
}

// AddRow allocates a new secondary row sharing key, prepending it to
// key's list; write fills the row's payload.
func (m *Multimap) AddRow(key []byte, write func([]byte)) (uint32, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	index, err := m.secondary.NewRecords(1)
	if nil != err {
		return 0, err
	}
	row, err := m.secondary.Get(index)
	if nil != err {
		return 0, err
	}

	existing, err := m.primary.Find(key)
	if nil != err {
		return 0, err
	}

	if nil == existing {
		m.setSecondaryNext(row, hashtable.EmptyRecord)
		if nil != write {
			write(m.secondaryPayload(row))
		}
		if _, err := m.primary.Store(key, func(v []byte) {
			binary.LittleEndian.PutUint32(v, index)
		}); nil != err {
			return 0, err
		}
		return index, nil
	}

	head := binary.LittleEndian.Uint32(existing)
	m.setSecondaryNext(row, head)
	if nil != write {
		write(m.secondaryPayload(row))
	}
	if _, err := m.primary.Update(key, func(v []byte) {
		binary.LittleEndian.PutUint32(v, index)
	}); nil != err {
		return 0, err
	}
	return index, nil
}

// Lookup returns the head index of key's secondary list, or
// hashtable.EmptyRecord if key has no rows.
func (m *Multimap) Lookup(key []byte) (uint32, error) {
	value, err := m.primary.Find(key)
	if nil != err {
		return hashtable.EmptyRecord, err
	}
	if nil == value {
		return hashtable.EmptyRecord, nil
	}
	return binary.LittleEndian.Uint32(value), nil
}

// DeleteLastRow unlinks the head of key's secondary list, leaving the
// primary row in place even if the list becomes empty.
func (m *Multimap) DeleteLastRow(key []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	value, err := m.primary.Find(key)
	if nil != err {
		return err
	}
	if nil == value {
		return fault.ErrNotFound
	}
	head := binary.LittleEndian.Uint32(value)
	if hashtable.EmptyRecord == head {
		return fault.ErrNotFound
	}

	row, err := m.secondary.Get(head)
	if nil != err {
		return err
	}
	next := m.secondaryNext(row)

	_, err = m.primary.Update(key, func(v []byte) {
		binary.LittleEndian.PutUint32(v, next)
	})
	return err
}

// Sync flushes both the primary table's and the secondary arena's
// record counts.
func (m *Multimap) Sync() error {
	if err := m.primary.Sync(); nil != err {
		return err
	}
	return m.secondary.Sync()
}

// Iterator walks a secondary list forward from a head index. It is
// finite and not restartable once exhausted.
type Iterator struct {
	secondary *recordfile.Manager
	current   uint32
	visited   uint32
	limit     uint32
}

// Iterate returns an iterator starting at head.
func (m *Multimap) Iterate(head uint32) *Iterator {
	return &Iterator{
		secondary: m.secondary,
		current:   head,
		limit:     m.secondary.Count() + 1,
	}
}

// Next returns the next payload in the list, or ok=false once the
// list is exhausted.
func (it *Iterator) Next() (payload []byte, ok bool, err error) {
	if hashtable.EmptyRecord == it.current {
		return nil, false, nil
	}
	if it.visited > it.limit {
		return nil, false, fault.ErrChainDidNotEnd
	}
	it.visited++

	row, err := it.secondary.Get(it.current)
	if nil != err {
		return nil, false, err
	}

	payload = row[secondaryNextSize:]
	it.current = binary.LittleEndian.Uint32(row)
	return payload, true, nil
}
