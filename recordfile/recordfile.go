// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package recordfile provides a fixed-width record arena backed by an
// mmfile.File: an append-only array of W-byte rows with a 4-byte count
// kept at a caller-chosen header offset.
package recordfile

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/mmfile"
)

// countSize is the width of the record count field.
const countSize = 4

// Manager is a fixed-width record arena.
type Manager struct {
	file         *mmfile.File
	headerOffset uint64
	width        uint64
	count        uint32
}

// New attaches a record manager of the given row width to an already
// open mmfile, reading any count already present at headerOffset.
func New(file *mmfile.File, headerOffset uint64, width uint64) (*Manager, error) {
	if err := file.Reserve(headerOffset + countSize); nil != err {
		return nil, err
	}

	m := &Manager{
		file:         file,
		headerOffset: headerOffset,
		width:        width,
	}
	m.count = binary.LittleEndian.Uint32(file.Data()[headerOffset:])
	return m, nil
}

// Count returns the number of records allocated so far.
func (m *Manager) Count() uint32 {
	return atomic.LoadUint32(&m.count)
}

// NewRecords allocates n contiguous records and returns the index of
// the first one. The backing file is grown if necessary before the
// count is advanced, so a reader observing the new count can always
// dereference the corresponding bytes.
func (m *Manager) NewRecords(n uint32) (uint32, error) {
	oldCount := m.count
	newCount := oldCount + n

	dataOffset := m.headerOffset + countSize
	required := dataOffset + uint64(newCount)*m.width
	if err := m.file.Reserve(required); nil != err {
		return 0, err
	}

	m.count = newCount
	return oldCount, nil
}

// Get returns the byte slice backing record i. The slice aliases the
// mapping directly and is only valid while the caller holds the
// database's remap mutex.
func (m *Manager) Get(i uint32) ([]byte, error) {
	if i >= m.count {
		return nil, fault.ErrBucketOutOfRange
	}
	dataOffset := m.headerOffset + countSize + uint64(i)*m.width
	return m.file.Data()[dataOffset : dataOffset+m.width], nil
}

// RLock pins the backing mmfile against a concurrent grow. A reader
// that calls Get more than once across a single logical walk must
// hold this for the whole walk, not re-acquire it per call.
func (m *Manager) RLock() {
	m.file.RLock()
}

// RUnlock releases the lock taken by RLock.
func (m *Manager) RUnlock() {
	m.file.RUnlock()
}

// Width returns the fixed row width in bytes.
func (m *Manager) Width() uint64 {
	return m.width
}

// Sync writes the current count back to the header slot.
func (m *Manager) Sync() error {
	binary.LittleEndian.PutUint32(m.file.Data()[m.headerOffset:], m.count)
	return nil
}
