// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire carries the minimal block/transaction shapes the storage
// engine needs to lay out §6's on-disk records. Parsing a transaction
// off the network and validating its script semantics are someone
// else's job; this package only has to round-trip the fields §3 names.
package wire

import (
	"encoding/binary"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/fault"
)

// byte sizes for the fixed fields of an output point
const (
	outputIndexSize = 4
)

// OutputPoint identifies a single previous output: the transaction
// that created it and its index within that transaction's output list.
type OutputPoint struct {
	Hash  chainhash.Hash `json:"hash"`
	Index uint32         `json:"index"`
}

// IsNull reports whether the point is the null point used by coinbase inputs.
func (p OutputPoint) IsNull() bool {
	return p.Hash.IsZero() && 0xffffffff == p.Index
}

// Output is a single spendable value plus its locking script.
type Output struct {
	Value  uint64 `json:"value"`
	Script []byte `json:"script"`
}

// Input spends a previous output, presenting an unlocking script.
type Input struct {
	PreviousOutput OutputPoint `json:"previousOutput"`
	Script         []byte      `json:"script"`
	Sequence       uint32      `json:"sequence"`
}

// Tx is the minimal transaction shape the storage layer indexes.
type Tx struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint32   `json:"lockTime"`
}

// IsCoinbase reports whether tx has the single null-point input that
// marks a block's foundation transaction.
func (tx *Tx) IsCoinbase() bool {
	return 1 == len(tx.Inputs) && tx.Inputs[0].PreviousOutput.IsNull()
}

// Pack serialises the transaction using the same little endian,
// varint-prefixed layout as the rest of the store (spec section 6).
func (tx *Tx) Pack() []byte {
	buffer := make([]byte, 0, 64)

	v := make([]byte, 4)
	binary.LittleEndian.PutUint32(v, tx.Version)
	buffer = append(buffer, v...)

	buffer = PutVarint(buffer, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buffer = append(buffer, in.PreviousOutput.Hash[:]...)
		idx := make([]byte, outputIndexSize)
		binary.LittleEndian.PutUint32(idx, in.PreviousOutput.Index)
		buffer = append(buffer, idx...)
		buffer = PutBytes(buffer, in.Script)
		seq := make([]byte, 4)
		binary.LittleEndian.PutUint32(seq, in.Sequence)
		buffer = append(buffer, seq...)
	}

	buffer = PutVarint(buffer, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		val := make([]byte, 8)
		binary.LittleEndian.PutUint64(val, out.Value)
		buffer = append(buffer, val...)
		buffer = PutBytes(buffer, out.Script)
	}

	buffer = PutVarint(buffer, uint64(tx.LockTime))

	return buffer
}

// Unpack reverses Pack, returning the transaction and any trailing bytes.
func Unpack(record []byte) (*Tx, []byte, error) {
	if len(record) < 4 {
		return nil, nil, fault.ErrInconsistentField
	}
	tx := &Tx{
		Version: binary.LittleEndian.Uint32(record[:4]),
	}
	record = record[4:]

	inputCount, record, err := GetVarint(record)
	if nil != err {
		return nil, nil, err
	}
	tx.Inputs = make([]Input, inputCount)
	for i := uint64(0); i < inputCount; i++ {
		if len(record) < chainhash.HashLength+outputIndexSize {
			return nil, nil, fault.ErrInconsistentField
		}
		var in Input
		if err := chainhash.FromBytes(&in.PreviousOutput.Hash, record[:chainhash.HashLength]); nil != err {
			return nil, nil, err
		}
		record = record[chainhash.HashLength:]
		in.PreviousOutput.Index = binary.LittleEndian.Uint32(record[:outputIndexSize])
		record = record[outputIndexSize:]

		in.Script, record, err = GetBytes(record)
		if nil != err {
			return nil, nil, err
		}
		if len(record) < 4 {
			return nil, nil, fault.ErrInconsistentField
		}
		in.Sequence = binary.LittleEndian.Uint32(record[:4])
		record = record[4:]

		tx.Inputs[i] = in
	}

	outputCount, record, err := GetVarint(record)
	if nil != err {
		return nil, nil, err
	}
	tx.Outputs = make([]Output, outputCount)
	for i := uint64(0); i < outputCount; i++ {
		if len(record) < 8 {
			return nil, nil, fault.ErrInconsistentField
		}
		var out Output
		out.Value = binary.LittleEndian.Uint64(record[:8])
		record = record[8:]

		out.Script, record, err = GetBytes(record)
		if nil != err {
			return nil, nil, err
		}

		tx.Outputs[i] = out
	}

	lockTime, record, err := GetVarint(record)
	if nil != err {
		return nil, nil, err
	}
	tx.LockTime = uint32(lockTime)

	return tx, record, nil
}

// Hash computes the transaction's digest over its packed bytes.
func (tx *Tx) Hash() chainhash.Hash {
	return chainhash.DoubleSHA256(tx.Pack())
}
