// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package spenddb maps a previously-confirmed output point to the
// input that spent it, so a caller tracing wallet history can answer
// "what spent this?" without scanning every transaction for one that
// references the point.
package spenddb

import (
	"encoding/binary"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/hashtable"
	"github.com/bitmark-inc/bitmarkd/wire"
)

// PointSize is the packed width of a wire.OutputPoint: a 32-byte hash
// plus a 4-byte index.
const PointSize = chainhash.HashLength + 4

// Store is a previous-output -> spending-point index over a
// hashtable.RecordTable keyed and valued by packed output points.
type Store struct {
	table *hashtable.RecordTable
}

// New builds a spend index over table, whose key and value sizes must
// both equal PointSize.
func New(table *hashtable.RecordTable) *Store {
	return &Store{table: table}
}

func encodePoint(buffer []byte, point wire.OutputPoint) {
	copy(buffer, point.Hash[:])
	binary.LittleEndian.PutUint32(buffer[chainhash.HashLength:], point.Index)
}

func decodePoint(buffer []byte) (wire.OutputPoint, error) {
	var point wire.OutputPoint
	if err := chainhash.FromBytes(&point.Hash, buffer[:chainhash.HashLength]); nil != err {
		return wire.OutputPoint{}, err
	}
	point.Index = binary.LittleEndian.Uint32(buffer[chainhash.HashLength:])
	return point, nil
}

// Put records that spender spends prevout, overwriting any earlier
// record for the same prevout (a reorganize followed by a re-push can
// legitimately spend the same output a second time).
func (s *Store) Put(prevout, spender wire.OutputPoint) error {
	key := make([]byte, PointSize)
	encodePoint(key, prevout)
	write := func(v []byte) { encodePoint(v, spender) }

	existing, err := s.table.Find(key)
	if nil != err {
		return err
	}
	if nil != existing {
		_, err = s.table.Update(key, write)
		return err
	}

	_, err = s.table.Store(key, write)
	return err
}

// Get returns the point that spends prevout, if any.
func (s *Store) Get(prevout wire.OutputPoint) (wire.OutputPoint, bool, error) {
	key := make([]byte, PointSize)
	encodePoint(key, prevout)

	value, err := s.table.Find(key)
	if nil != err {
		return wire.OutputPoint{}, false, err
	}
	if nil == value {
		return wire.OutputPoint{}, false, nil
	}
	point, err := decodePoint(value)
	if nil != err {
		return wire.OutputPoint{}, false, err
	}
	return point, true, nil
}

// Delete removes prevout's spend record, used when a spend is
// reversed by pooling the spending transaction.
func (s *Store) Delete(prevout wire.OutputPoint) error {
	key := make([]byte, PointSize)
	encodePoint(key, prevout)

	err := s.table.Unlink(key)
	if fault.ErrNotFound == err {
		return nil
	}
	return err
}

// Sync flushes the backing table's record count.
func (s *Store) Sync() error {
	return s.table.Sync()
}
