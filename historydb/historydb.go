// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package historydb indexes per-address transaction activity: for
// each address seen in a confirmed transaction's inputs or outputs,
// an append-only list of history records keyed by the address hash.
package historydb

import (
	"encoding/binary"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/multimap"
)

// Kind distinguishes whether a history record describes an output
// credited to an address or an input that spent from one.
type Kind byte

const (
	KindOutput Kind = 0
	KindInput  Kind = 1
)

// RecordSize is the packed width of a Record: height:4 | kind:1 |
// point_hash:32 | point_index:2 | data:8.
const RecordSize = 4 + 1 + chainhash.HashLength + 2 + 8

// Record is one entry in an address's history: the point (tx hash and
// output/input index) involved at height, plus 8 bytes of context
// whose meaning depends on Kind (an output's value, or an input's
// previous-output checksum).
type Record struct {
	Height     uint32
	Kind       Kind
	PointHash  chainhash.Hash
	PointIndex uint16
	Data       uint64
}

func encodeRecord(buffer []byte, r Record) {
	binary.LittleEndian.PutUint32(buffer[0:], r.Height)
	buffer[4] = byte(r.Kind)
	copy(buffer[5:5+chainhash.HashLength], r.PointHash[:])
	binary.LittleEndian.PutUint16(buffer[5+chainhash.HashLength:], r.PointIndex)
	binary.LittleEndian.PutUint64(buffer[7+chainhash.HashLength:], r.Data)
}

func decodeRecord(buffer []byte) (Record, error) {
	if len(buffer) < RecordSize {
		return Record{}, fault.ErrInconsistentField
	}
	var r Record
	r.Height = binary.LittleEndian.Uint32(buffer[0:])
	r.Kind = Kind(buffer[4])
	if err := chainhash.FromBytes(&r.PointHash, buffer[5:5+chainhash.HashLength]); nil != err {
		return Record{}, err
	}
	r.PointIndex = binary.LittleEndian.Uint16(buffer[5+chainhash.HashLength:])
	r.Data = binary.LittleEndian.Uint64(buffer[7+chainhash.HashLength:])
	return r, nil
}

// Store is an address-hash-keyed multimap of history records.
type Store struct {
	mm *multimap.Multimap
}

// New builds a history store over mm, whose secondary row payload
// size must equal RecordSize.
func New(mm *multimap.Multimap) *Store {
	return &Store{mm: mm}
}

// Add appends record to addressHash's history, most recent first.
func (s *Store) Add(addressHash []byte, record Record) error {
	_, err := s.mm.AddRow(addressHash, func(payload []byte) {
		encodeRecord(payload, record)
	})
	return err
}

// RemoveLast unlinks the most recently added record for addressHash,
// used when a history-producing transaction is popped or pooled.
func (s *Store) RemoveLast(addressHash []byte) error {
	return s.mm.DeleteLastRow(addressHash)
}

// History returns every record stored for addressHash, most recently
// added first.
func (s *Store) History(addressHash []byte) ([]Record, error) {
	head, err := s.mm.Lookup(addressHash)
	if nil != err {
		return nil, err
	}

	var records []Record
	it := s.mm.Iterate(head)
	for {
		payload, ok, err := it.Next()
		if nil != err {
			return nil, err
		}
		if !ok {
			break
		}
		record, err := decodeRecord(payload)
		if nil != err {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Sync flushes the backing multimap's record counts.
func (s *Store) Sync() error {
	return s.mm.Sync()
}
