// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txresult

import "encoding/binary"

// MetadataSize is the width of the atomic1 metadata tuple: 4 bytes of
// height/forks/error-code, 2 bytes of block position, 1 byte of state.
const MetadataSize = 7

const (
	metadataHeightOffset   = 0
	metadataPositionOffset = 4
	metadataStateOffset    = 6
)

// Metadata is the decoded (height, position, state) tuple. When state
// is not confirmed, Height is overloaded to carry the validation
// "forks" context and Position is the unconfirmed sentinel.
type Metadata struct {
	Height   uint32
	Position uint16
	State    State
}

// DecodeMetadata reads the 7-byte metadata tuple from the front of a
// slab value. Callers must hold the table's metadata mutex (shared is
// sufficient) so the three fields are observed as a single snapshot.
func DecodeMetadata(row []byte) Metadata {
	return Metadata{
		Height:   binary.LittleEndian.Uint32(row[metadataHeightOffset:]),
		Position: binary.LittleEndian.Uint16(row[metadataPositionOffset:]),
		State:    State(row[metadataStateOffset]),
	}
}

// EncodeMetadata writes m into the front of a slab value. Callers
// must hold the table's metadata mutex exclusively.
func EncodeMetadata(row []byte, m Metadata) {
	binary.LittleEndian.PutUint32(row[metadataHeightOffset:], m.Height)
	binary.LittleEndian.PutUint16(row[metadataPositionOffset:], m.Position)
	row[metadataStateOffset] = byte(m.State)
}
