// Copyright (c) 2014-2018 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/fault"
)

// use a fixed size array to simplify validation, the way
// blockrecord.PackedHeader does
type PackedHeader [totalHeaderSize]byte

// byte sizes for the header fields
const (
	versionSize       = 4 // block version number
	previousBlockSize = chainhash.HashLength
	merkleRootSize    = chainhash.HashLength
	timestampSize     = 4 // seconds since 1970-01-01T00:00 UTC
	bitsSize          = 4 // compact target difficulty
	nonceSize         = 4
)

// offsets of the fields
const (
	versionOffset       = 0
	previousBlockOffset = versionOffset + versionSize
	merkleRootOffset    = previousBlockOffset + previousBlockSize
	timestampOffset     = merkleRootOffset + merkleRootSize
	bitsOffset          = timestampOffset + timestampSize
	nonceOffset         = bitsOffset + bitsSize

	totalHeaderSize = nonceOffset + nonceSize
)

// HeaderSize is the packed width of a Header, for callers laying out
// fixed-width rows that embed one (e.g. blockstore's block index).
const HeaderSize = totalHeaderSize

// Header is the unpacked form of a block header.
type Header struct {
	Version       uint32         `json:"version"`
	PreviousBlock chainhash.Hash `json:"previousBlock"`
	MerkleRoot    chainhash.Hash `json:"merkleRoot"`
	Timestamp     uint32         `json:"timestamp"`
	Bits          uint32         `json:"bits"`
	Nonce         uint32         `json:"nonce"`
}

// Pack turns a header into its fixed byte layout.
func (header *Header) Pack() PackedHeader {
	buffer := PackedHeader{}

	binary.LittleEndian.PutUint32(buffer[versionOffset:], header.Version)
	copy(buffer[previousBlockOffset:], header.PreviousBlock[:])
	copy(buffer[merkleRootOffset:], header.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buffer[timestampOffset:], header.Timestamp)
	binary.LittleEndian.PutUint32(buffer[bitsOffset:], header.Bits)
	binary.LittleEndian.PutUint32(buffer[nonceOffset:], header.Nonce)

	return buffer
}

// Unpack turns a packed byte array back into a header.
func (record PackedHeader) Unpack() (*Header, error) {
	header := &Header{
		Version:   binary.LittleEndian.Uint32(record[versionOffset:]),
		Timestamp: binary.LittleEndian.Uint32(record[timestampOffset:]),
		Bits:      binary.LittleEndian.Uint32(record[bitsOffset:]),
		Nonce:     binary.LittleEndian.Uint32(record[nonceOffset:]),
	}

	if err := chainhash.FromBytes(&header.PreviousBlock, record[previousBlockOffset:merkleRootOffset]); nil != err {
		return nil, err
	}
	if err := chainhash.FromBytes(&header.MerkleRoot, record[merkleRootOffset:timestampOffset]); nil != err {
		return nil, err
	}

	return header, nil
}

// ExtractHeader pulls a header from the front of a packed block.
func ExtractHeader(block []byte) (*Header, chainhash.Hash, []byte, error) {
	if len(block) < totalHeaderSize {
		return nil, chainhash.Hash{}, nil, fault.ErrInconsistentField
	}
	packed := PackedHeader{}
	copy(packed[:], block[:totalHeaderSize])

	header, err := packed.Unpack()
	if nil != err {
		return nil, chainhash.Hash{}, nil, err
	}

	digest := chainhash.DoubleSHA256(packed[:])
	return header, digest, block[totalHeaderSize:], nil
}

// Digest computes the block digest over the packed header bytes.
func (record PackedHeader) Digest() chainhash.Hash {
	return chainhash.DoubleSHA256(record[:])
}

// Block is a header plus its full transaction list.
type Block struct {
	Header       Header `json:"header"`
	Transactions []*Tx  `json:"transactions"`
}

// Checkpoint names a height/hash pair, used to mark a fork point
// for Reorganize.
type Checkpoint struct {
	Height uint64         `json:"height"`
	Hash   chainhash.Hash `json:"hash"`
}
