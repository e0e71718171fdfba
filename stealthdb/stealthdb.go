// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package stealthdb is an append-only index of stealth-payment sightings:
// for each output pair in a block where the first carries an extractable
// unsigned ephemeral key and prefix and the second resolves to a payment
// address, one row is recorded.
package stealthdb

import (
	"encoding/binary"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/recordfile"
)

// EphemeralKeySize is the width of a compressed ephemeral public key.
const EphemeralKeySize = 33

// RecordSize is the packed row width: height:4 | prefix:4 |
// ephemeral_key:33 | address_hash:32 | tx_hash:32.
const RecordSize = 4 + 4 + EphemeralKeySize + chainhash.HashLength + chainhash.HashLength

// Record is one stealth sighting.
type Record struct {
	Height       uint32
	Prefix       uint32
	EphemeralKey [EphemeralKeySize]byte
	AddressHash  chainhash.Hash
	TxHash       chainhash.Hash
}

func encodeRecord(buffer []byte, r Record) {
	binary.LittleEndian.PutUint32(buffer[0:], r.Height)
	binary.LittleEndian.PutUint32(buffer[4:], r.Prefix)
	copy(buffer[8:8+EphemeralKeySize], r.EphemeralKey[:])
	offset := 8 + EphemeralKeySize
	copy(buffer[offset:offset+chainhash.HashLength], r.AddressHash[:])
	offset += chainhash.HashLength
	copy(buffer[offset:offset+chainhash.HashLength], r.TxHash[:])
}

func decodeRecord(buffer []byte) (Record, error) {
	if len(buffer) < RecordSize {
		return Record{}, fault.ErrInconsistentField
	}
	var r Record
	r.Height = binary.LittleEndian.Uint32(buffer[0:])
	r.Prefix = binary.LittleEndian.Uint32(buffer[4:])
	copy(r.EphemeralKey[:], buffer[8:8+EphemeralKeySize])
	offset := 8 + EphemeralKeySize
	if err := chainhash.FromBytes(&r.AddressHash, buffer[offset:offset+chainhash.HashLength]); nil != err {
		return Record{}, err
	}
	offset += chainhash.HashLength
	if err := chainhash.FromBytes(&r.TxHash, buffer[offset:offset+chainhash.HashLength]); nil != err {
		return Record{}, err
	}
	return r, nil
}

// Store is an append-only arena of stealth sightings, addressed by
// the row index Push returns.
type Store struct {
	rows *recordfile.Manager
}

// New builds a stealth store over rows, whose width must equal
// RecordSize.
func New(rows *recordfile.Manager) *Store {
	return &Store{rows: rows}
}

// Push appends record and returns its row index.
func (s *Store) Push(record Record) (uint32, error) {
	index, err := s.rows.NewRecords(1)
	if nil != err {
		return 0, err
	}
	row, err := s.rows.Get(index)
	if nil != err {
		return 0, err
	}
	encodeRecord(row, record)
	return index, nil
}

// Get returns the record at index.
func (s *Store) Get(index uint32) (Record, error) {
	row, err := s.rows.Get(index)
	if nil != err {
		return Record{}, err
	}
	return decodeRecord(row)
}

// Count returns the number of rows stored so far.
func (s *Store) Count() uint32 {
	return s.rows.Count()
}

// PopStealth is a documented no-op. The stealth index has no unlink
// operation: a reorganize leaves the rows contributed by the
// discarded branch in place as dead entries until a full re-index,
// an accepted limitation rather than an oversight.
func (s *Store) PopStealth(uint64) error {
	return nil
}

// Sync flushes the row count.
func (s *Store) Sync() error {
	return s.rows.Sync()
}
