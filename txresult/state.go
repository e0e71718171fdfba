// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txresult decodes the transaction slab value stored by
// txstore: a small mutable metadata header (height, block position,
// confirmation state) followed by the transaction body itself. It
// also owns the deferred-reader idiom that lets a caller hold a
// decoded view without re-walking the hash table on every field
// access, while bounding how many such views may pin the underlying
// mapping open at once.
package txresult

// State is a transaction's place in the confirmation state machine.
type State uint8

const (
	// StateMissing is interface-only: it is never written to disk,
	// only returned to callers who looked up a hash with no record.
	StateMissing State = 0
	// StateInvalid marks a slab whose height field holds an error code
	// instead of a real height.
	StateInvalid State = 1
	StatePooled  State = 2
	StateIndexed State = 3
	// StateConfirmed is the only state for which position is a real
	// block position rather than the unconfirmed sentinel.
	StateConfirmed State = 4
)

// UnconfirmedPosition is the sentinel position for any state other
// than confirmed.
const UnconfirmedPosition uint16 = 0xFFFF

// NotSpent is the spender_height sentinel meaning "not spent".
const NotSpent uint32 = 0xFFFFFFFF

// Unverified is the height sentinel used while a tx sits pooled,
// overloading the height field to carry "forks" validation context
// instead, per spec section 3.
const Unverified uint32 = 0xFFFFFFFF
