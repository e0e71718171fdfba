// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hashtable implements the two intrusive, separate-chaining
// hash map variants the store builds its indexes from: one whose
// bucket cells and rows live in a fixed-width recordfile.Manager
// arena, and one whose bucket cells and rows live in a variable-width
// slabfile.Manager arena. Both share the same flat bucket-array
// header and the same byte-xor-fold hashing.
package hashtable

import (
	"encoding/binary"
	"unsafe"

	"github.com/bitmark-inc/bitmarkd/mmfile"
)

// Cell is the set of integer widths a bucket header can be built from:
// 32-bit array indexes for record tables, 64-bit file offsets for
// slab tables.
type Cell interface {
	~uint32 | ~uint64
}

// Header is a flat array of B bucket cells at a fixed file offset.
type Header[T Cell] struct {
	file    *mmfile.File
	offset  uint64
	buckets uint64
	empty   T
	width   uint64
}

func cellWidth[T Cell]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

// Create initialises a fresh bucket array of the given size, filling
// every cell with empty. It does not record buckets on disk; the
// caller is responsible for supplying the same buckets value on every
// subsequent Open, the way the rest of the table's settings are fixed
// at creation time and never changed (spec section 4.3).
func Create[T Cell](file *mmfile.File, offset uint64, buckets uint64, empty T) (*Header[T], error) {
	h := &Header[T]{
		file:    file,
		offset:  offset,
		buckets: buckets,
		empty:   empty,
		width:   cellWidth[T](),
	}

	if err := file.Reserve(offset + buckets*h.width); nil != err {
		return nil, err
	}

	for i := uint64(0); i < buckets; i++ {
		h.Write(i, empty)
	}

	return h, nil
}

// Open attaches to an already-initialised bucket array, without
// touching its contents.
func Open[T Cell](file *mmfile.File, offset uint64, buckets uint64, empty T) (*Header[T], error) {
	h := &Header[T]{
		file:    file,
		offset:  offset,
		buckets: buckets,
		empty:   empty,
		width:   cellWidth[T](),
	}

	if err := file.Reserve(offset + buckets*h.width); nil != err {
		return nil, err
	}

	return h, nil
}

// Buckets returns the fixed bucket count.
func (h *Header[T]) Buckets() uint64 {
	return h.buckets
}

// Empty returns the sentinel value used for an unoccupied bucket.
func (h *Header[T]) Empty() T {
	return h.empty
}

// Read loads the value of bucket i.
func (h *Header[T]) Read(i uint64) T {
	cell := h.file.Data()[h.offset+i*h.width:]
	return readCell[T](cell)
}

// Write stores v into bucket i.
func (h *Header[T]) Write(i uint64, v T) {
	cell := h.file.Data()[h.offset+i*h.width:]
	writeCell(cell, v)
}

// readCell and writeCell bridge the generic cell type to the fixed
// little endian encodings; the branch taken always matches T's actual
// width since cellWidth[T] is determined by the same underlying type.
func readCell[T Cell](b []byte) T {
	if 4 == cellWidth[T]() {
		return T(binary.LittleEndian.Uint32(b))
	}
	return T(binary.LittleEndian.Uint64(b))
}

func writeCell[T Cell](b []byte, v T) {
	if 4 == cellWidth[T]() {
		binary.LittleEndian.PutUint32(b, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(b, uint64(v))
}
