// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txresult

import (
	"encoding/binary"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/wire"
)

// outputPrefixSize is the width of the mutable per-output header
// (index_spend:1, spender_height:4) that precedes each output's
// value:8 and varint-length script.
const outputPrefixSize = 5

const (
	outputIndexSpendOffset    = 0
	outputSpenderHeightOffset = 1
)

// OutputRecord is one transaction output plus its spend-tracking
// fields, as laid out in the slab body.
type OutputRecord struct {
	Value         uint64
	Script        []byte
	SpenderHeight uint32
}

// LoadSpenderHeight reads an output's spender_height field. The
// original source documents this field as "unprotected because tx
// result reader is unprotectable here" and writes it with a plain
// little-endian store rather than a CPU-atomic one, relying on the
// validation sequence's single-writer discipline rather than the word
// itself being interlocked; this does the same, since the field is
// not guaranteed to sit at a 4-byte-aligned address within the slab
// (a varint-length script precedes every output but the first) and a
// sync/atomic operation on a misaligned address is undefined on some
// architectures.
func LoadSpenderHeight(prefix []byte) uint32 {
	return binary.LittleEndian.Uint32(prefix[outputSpenderHeightOffset:])
}

// StoreSpenderHeight writes an output's spender_height field. See
// LoadSpenderHeight for why this is a plain store, not an atomic one.
func StoreSpenderHeight(prefix []byte, height uint32) {
	binary.LittleEndian.PutUint32(prefix[outputSpenderHeightOffset:], height)
}

// Record is the decoded transaction body that follows the metadata
// header in a txstore slab: per-output spend tracking plus the same
// inputs/locktime/version shape wire.Tx carries.
type Record struct {
	Outputs  []OutputRecord
	Inputs   []wire.Input
	LockTime uint32
	Version  uint32
}

// FromWireTx builds a fresh Record from an incoming transaction, with
// every output's spender_height initialised to NotSpent.
func FromWireTx(tx *wire.Tx) *Record {
	outputs := make([]OutputRecord, len(tx.Outputs))
	for i, out := range tx.Outputs {
		outputs[i] = OutputRecord{
			Value:         out.Value,
			Script:        out.Script,
			SpenderHeight: NotSpent,
		}
	}
	return &Record{
		Outputs:  outputs,
		Inputs:   tx.Inputs,
		LockTime: tx.LockTime,
		Version:  tx.Version,
	}
}

// ToWireTx projects the record back to the plain wire shape, dropping
// the spend-tracking fields.
func (r *Record) ToWireTx() *wire.Tx {
	outputs := make([]wire.Output, len(r.Outputs))
	for i, out := range r.Outputs {
		outputs[i] = wire.Output{Value: out.Value, Script: out.Script}
	}
	return &wire.Tx{
		Version:  r.Version,
		Inputs:   r.Inputs,
		Outputs:  outputs,
		LockTime: r.LockTime,
	}
}

// EncodedSize returns the number of bytes Encode will write.
func (r *Record) EncodedSize() uint64 {
	return uint64(len(r.Encode()))
}

// Encode serialises the body (not the metadata prefix) using the
// same varint convention wire.Tx uses, with the additional per-output
// spend-tracking prefix spec section 3 names.
func (r *Record) Encode() []byte {
	buffer := make([]byte, 0, 64)

	buffer = wire.PutVarint(buffer, uint64(len(r.Outputs)))
	for _, out := range r.Outputs {
		prefix := make([]byte, outputPrefixSize)
		prefix[outputIndexSpendOffset] = 0
		binary.LittleEndian.PutUint32(prefix[outputSpenderHeightOffset:], out.SpenderHeight)
		buffer = append(buffer, prefix...)

		val := make([]byte, 8)
		binary.LittleEndian.PutUint64(val, out.Value)
		buffer = append(buffer, val...)
		buffer = wire.PutBytes(buffer, out.Script)
	}

	buffer = wire.PutVarint(buffer, uint64(len(r.Inputs)))
	for _, in := range r.Inputs {
		buffer = append(buffer, in.PreviousOutput.Hash[:]...)
		idx := make([]byte, 4)
		binary.LittleEndian.PutUint32(idx, in.PreviousOutput.Index)
		buffer = append(buffer, idx...)
		buffer = wire.PutBytes(buffer, in.Script)
		seq := make([]byte, 4)
		binary.LittleEndian.PutUint32(seq, in.Sequence)
		buffer = append(buffer, seq...)
	}

	buffer = wire.PutVarint(buffer, uint64(r.LockTime))
	buffer = wire.PutVarint(buffer, uint64(r.Version))

	return buffer
}

// DecodeRecord reverses Encode.
func DecodeRecord(body []byte) (*Record, error) {
	outputCount, body, err := wire.GetVarint(body)
	if nil != err {
		return nil, err
	}
	outputs := make([]OutputRecord, outputCount)
	for i := uint64(0); i < outputCount; i++ {
		if len(body) < outputPrefixSize+8 {
			return nil, fault.ErrInconsistentField
		}
		spenderHeight := binary.LittleEndian.Uint32(body[outputSpenderHeightOffset:])
		body = body[outputPrefixSize:]

		value := binary.LittleEndian.Uint64(body[:8])
		body = body[8:]

		var script []byte
		script, body, err = wire.GetBytes(body)
		if nil != err {
			return nil, err
		}

		outputs[i] = OutputRecord{Value: value, Script: script, SpenderHeight: spenderHeight}
	}

	inputCount, body, err := wire.GetVarint(body)
	if nil != err {
		return nil, err
	}
	inputs := make([]wire.Input, inputCount)
	for i := uint64(0); i < inputCount; i++ {
		if len(body) < chainhash.HashLength+4 {
			return nil, fault.ErrInconsistentField
		}
		var in wire.Input
		if err := chainhash.FromBytes(&in.PreviousOutput.Hash, body[:chainhash.HashLength]); nil != err {
			return nil, err
		}
		body = body[chainhash.HashLength:]
		in.PreviousOutput.Index = binary.LittleEndian.Uint32(body[:4])
		body = body[4:]

		in.Script, body, err = wire.GetBytes(body)
		if nil != err {
			return nil, err
		}
		if len(body) < 4 {
			return nil, fault.ErrInconsistentField
		}
		in.Sequence = binary.LittleEndian.Uint32(body[:4])
		body = body[4:]

		inputs[i] = in
	}

	lockTime, body, err := wire.GetVarint(body)
	if nil != err {
		return nil, err
	}
	version, _, err := wire.GetVarint(body)
	if nil != err {
		return nil, err
	}

	return &Record{
		Outputs:  outputs,
		Inputs:   inputs,
		LockTime: uint32(lockTime),
		Version:  uint32(version),
	}, nil
}

// OutputPrefixOffset returns the byte offset, relative to the start
// of the encoded body, of the i-th output's mutable spend-tracking
// prefix. Used by txstore.Spend to locate the field to update without
// decoding the whole record.
func OutputPrefixOffset(body []byte, index int) (int, error) {
	outputCount, rest, err := wire.GetVarint(body)
	if nil != err {
		return 0, err
	}
	if uint64(index) >= outputCount {
		return 0, fault.ErrOutputIndex
	}

	offset := len(body) - len(rest)
	for i := uint64(0); i < uint64(index); i++ {
		if len(rest) < outputPrefixSize+8 {
			return 0, fault.ErrInconsistentField
		}
		rest = rest[outputPrefixSize+8:]

		rest, err = skipVarintBytes(rest)
		if nil != err {
			return 0, err
		}
		offset = len(body) - len(rest)
	}
	return offset, nil
}

// skipVarintBytes advances past a varint-prefixed byte slice without
// retaining it.
func skipVarintBytes(record []byte) ([]byte, error) {
	_, rest, err := wire.GetBytes(record)
	return rest, err
}
