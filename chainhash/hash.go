// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainhash carries the 32-byte and 20-byte digest types shared
// by every on-disk record in the storage engine. Hashing here is a
// stand-in double-SHA256 (the Bitcoin convention); actual transaction
// and block hashing is a responsibility of the parsing layer, out of
// scope for this package - it only needs a stable, comparable digest
// type to index by.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/bitmark-inc/bitmarkd/fault"
)

// number of bytes in a full digest
const HashLength = 32

// number of bytes in a short (address/script) hash
const ShortLength = 20

// Hash is a 256-bit digest.
//
// stored as little endian byte array
// represented as big endian hex value for print
type Hash [HashLength]byte

// Short is a 160-bit digest, used for address and stealth prefixes.
type Short [ShortLength]byte

// DoubleSHA256 computes the Bitcoin-style double SHA-256 digest.
func DoubleSHA256(record []byte) Hash {
	first := sha256.Sum256(record)
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// internal function to return a reversed byte order copy of a hash
func reversed(h Hash) []byte {
	result := make([]byte, HashLength)
	for i := 0; i < HashLength; i++ {
		result[i] = h[HashLength-1-i]
	}
	return result
}

// String converts a binary hash to hex for use by the fmt package (%s)
//
// the stored version is little endian, the output string is big endian
func (h Hash) String() string {
	return hex.EncodeToString(reversed(h))
}

// GoString converts a binary hash to a big endian hex string for %#v
func (h Hash) GoString() string {
	return "<HASH256:" + hex.EncodeToString(reversed(h)) + ">"
}

// IsZero reports whether the hash is the all-zero null hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Scan implements fmt.Scanner for big-endian hex text.
func (h *Hash) Scan(state fmt.ScanState, verb rune) error {
	token, err := state.Token(true, func(c rune) bool {
		switch {
		case c >= '0' && c <= '9':
			return true
		case c >= 'a' && c <= 'f':
			return true
		case c >= 'A' && c <= 'F':
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if len(token) != hex.EncodedLen(HashLength) {
		return fault.ErrInconsistentField
	}

	buffer := make([]byte, hex.DecodedLen(len(token)))
	n, err := hex.Decode(buffer, token)
	if err != nil {
		return err
	}
	for i, v := range buffer[:n] {
		h[HashLength-1-i] = v
	}
	return nil
}

// MarshalText converts hash to little endian hex text.
func (h Hash) MarshalText() ([]byte, error) {
	size := hex.EncodedLen(len(h))
	buffer := make([]byte, size)
	hex.Encode(buffer, h[:])
	return buffer, nil
}

// UnmarshalText converts little endian hex text into a hash.
func (h *Hash) UnmarshalText(s []byte) error {
	if HashLength != hex.DecodedLen(len(s)) {
		return fault.ErrInconsistentField
	}
	buffer := make([]byte, hex.DecodedLen(len(s)))
	n, err := hex.Decode(buffer, s)
	if err != nil {
		return err
	}
	copy(h[:], buffer[:n])
	return nil
}

// FromBytes validates and copies a little endian binary byte slice into a hash.
func FromBytes(h *Hash, buffer []byte) error {
	if HashLength != len(buffer) {
		return fault.ErrInconsistentField
	}
	copy(h[:], buffer)
	return nil
}

// String for the short (20-byte) digest.
func (s Short) String() string {
	rev := make([]byte, ShortLength)
	for i := 0; i < ShortLength; i++ {
		rev[i] = s[ShortLength-1-i]
	}
	return hex.EncodeToString(rev)
}
