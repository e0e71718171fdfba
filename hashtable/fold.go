// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hashtable

import "encoding/binary"

// fold reduces an already-hashed key (a 32-byte transaction hash or a
// 20-byte address/stealth short hash) to a bucket index by xor-folding
// it into a 64-bit accumulator eight bytes at a time, then reducing
// mod buckets. The key is assumed uniformly distributed already, so
// no further mixing is needed.
func fold(key []byte, buckets uint64) uint64 {
	var acc uint64
	i := 0
	for ; i+8 <= len(key); i += 8 {
		acc ^= binary.LittleEndian.Uint64(key[i : i+8])
	}
	if i < len(key) {
		var tail [8]byte
		copy(tail[:], key[i:])
		acc ^= binary.LittleEndian.Uint64(tail[:])
	}
	return acc % buckets
}
