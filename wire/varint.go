// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"

	"github.com/bitmark-inc/bitmarkd/fault"
)

// compact-size variable length integer, the same prefix-byte encoding
// used throughout the on-disk transaction slab (spec section 6):
// values below 0xfd are a single byte, otherwise a marker byte
// followed by a fixed-width little endian integer. Exported so the
// txresult package's slab body codec can use the identical encoding
// without duplicating it.
const (
	varintMarker16 = 0xfd
	varintMarker32 = 0xfe
	varintMarker64 = 0xff
)

// PutVarint appends the compact encoding of n to buffer and returns the result.
func PutVarint(buffer []byte, n uint64) []byte {
	switch {
	case n < varintMarker16:
		return append(buffer, byte(n))
	case n <= 0xffff:
		b := make([]byte, 3)
		b[0] = varintMarker16
		binary.LittleEndian.PutUint16(b[1:], uint16(n))
		return append(buffer, b...)
	case n <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = varintMarker32
		binary.LittleEndian.PutUint32(b[1:], uint32(n))
		return append(buffer, b...)
	default:
		b := make([]byte, 9)
		b[0] = varintMarker64
		binary.LittleEndian.PutUint64(b[1:], n)
		return append(buffer, b...)
	}
}

// GetVarint decodes a compact integer from the front of record,
// returning the value and the remaining bytes.
func GetVarint(record []byte) (uint64, []byte, error) {
	if len(record) < 1 {
		return 0, nil, fault.ErrInconsistentField
	}
	switch marker := record[0]; marker {
	case varintMarker16:
		if len(record) < 3 {
			return 0, nil, fault.ErrInconsistentField
		}
		return uint64(binary.LittleEndian.Uint16(record[1:3])), record[3:], nil
	case varintMarker32:
		if len(record) < 5 {
			return 0, nil, fault.ErrInconsistentField
		}
		return uint64(binary.LittleEndian.Uint32(record[1:5])), record[5:], nil
	case varintMarker64:
		if len(record) < 9 {
			return 0, nil, fault.ErrInconsistentField
		}
		return binary.LittleEndian.Uint64(record[1:9]), record[9:], nil
	default:
		return uint64(marker), record[1:], nil
	}
}

// PutBytes writes a varint length prefix followed by the bytes themselves.
func PutBytes(buffer []byte, data []byte) []byte {
	buffer = PutVarint(buffer, uint64(len(data)))
	return append(buffer, data...)
}

// GetBytes reads a varint-prefixed byte slice from the front of record.
func GetBytes(record []byte) ([]byte, []byte, error) {
	n, rest, err := GetVarint(record)
	if nil != err {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, fault.ErrInconsistentField
	}
	return rest[:n], rest[n:], nil
}
