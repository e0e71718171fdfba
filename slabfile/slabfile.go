// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package slabfile provides a variable-width, bump-allocated arena
// backed by an mmfile.File: an 8-byte "size" header field followed by
// byte-granular allocations. Offset 0 is reserved by the size header
// itself, so a valid allocation offset is never zero - that lets
// hashtable.SlabTable use 0 as its "empty" sentinel without ambiguity.
package slabfile

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/mmfile"
)

// sizeFieldWidth is the width of the size header field.
const sizeFieldWidth = 8

// Manager is a variable-width slab arena.
type Manager struct {
	file         *mmfile.File
	headerOffset uint64
	size         uint64
}

// New attaches a slab manager to an already open mmfile at headerOffset,
// reading any size already present there. The first allocation's
// public offset is headerOffset+sizeFieldWidth, just past the size
// field, so with headerOffset 0 no allocation ever returns offset 0.
func New(file *mmfile.File, headerOffset uint64) (*Manager, error) {
	if err := file.Reserve(headerOffset + sizeFieldWidth); nil != err {
		return nil, err
	}

	m := &Manager{
		file:         file,
		headerOffset: headerOffset,
	}
	// size is the next free offset measured from the first byte past
	// the header, so size == 0 means "nothing allocated yet" and the
	// public offset of that first allocation is headerOffset+sizeFieldWidth,
	// never headerOffset itself.
	m.size = binary.LittleEndian.Uint64(file.Data()[headerOffset:])
	return m, nil
}

// Size returns the number of bytes allocated so far, measured from
// the first byte past the header.
func (m *Manager) Size() uint64 {
	return atomic.LoadUint64(&m.size)
}

// Allocate reserves n bytes and returns the public offset at which
// they start. That offset is always >= headerOffset+sizeFieldWidth,
// so it is never 0 when headerOffset is 0 - preserving the reservation
// the slab hash table's empty sentinel relies on.
func (m *Manager) Allocate(n uint64) (uint64, error) {
	offset := m.headerOffset + sizeFieldWidth + m.size
	newSize := m.size + n

	if err := m.file.Reserve(m.headerOffset + sizeFieldWidth + newSize); nil != err {
		return 0, err
	}

	m.size = newSize
	return offset, nil
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

// Get returns the byte slice starting at the given public offset,
// running to the end of the allocated region.
func (m *Manager) Get(offset uint64) ([]byte, error) {
	start := m.headerOffset + sizeFieldWidth
	end := start + m.size
	if offset < start || offset > end {
		return nil, fault.ErrBucketOutOfRange
	}
	return m.file.Data()[offset:end], nil
}

// Sync writes the current size back to the header slot.
func (m *Manager) Sync() error {
	binary.LittleEndian.PutUint64(m.file.Data()[m.headerOffset:], m.size)
	return nil
}
