// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txresult

import (
	"sync"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/wire"
)

// MaxForkHeight is the fork height a caller passes to mean "the tip",
// as opposed to a real height a reorganisation is unwinding to: an
// indexed (not yet confirmed) transaction counts as confirmed only
// when queried with this sentinel.
const MaxForkHeight uint32 = 0xFFFFFFFF

// Pool bounds how many deferred Result views may hold the remap
// mutex's shared side open at once. txstore owns one Pool per
// transaction table.
type Pool struct {
	pool *pool
}

// NewPool builds a pool of the given capacity over the table's remap
// mutex.
func NewPool(remapMutex *sync.RWMutex, capacity int) *Pool {
	return &Pool{pool: newPool(remapMutex, capacity)}
}

// Result is a decoded view onto one transaction's slab row: the
// mutable (height, position, state) metadata plus the still-encoded
// body, decoded lazily by Transaction/Output so a caller that only
// needs the state does not pay for a full parse.
type Result struct {
	hash     chainhash.Hash
	metadata Metadata
	body     []byte
	pin      *pin
}

// NewResult decodes row, as returned by a SlabTable.Find against the
// transaction table, into a Result for hash, taking a pin from p so
// row's backing mapping cannot move until the caller is done with it.
// id identifies the row for the pool's LRU, typically its slab offset.
func NewResult(p *Pool, id uint64, hash chainhash.Hash, row []byte) (*Result, error) {
	if len(row) < MetadataSize {
		return nil, fault.ErrInconsistentField
	}
	return &Result{
		hash:     hash,
		metadata: DecodeMetadata(row),
		body:     row[MetadataSize:],
		pin:      p.pool.acquire(id),
	}, nil
}

// Hash returns the transaction's digest.
func (r *Result) Hash() chainhash.Hash { return r.hash }

// State returns the confirmation state snapshot taken at decode time.
func (r *Result) State() State { return r.metadata.State }

// Height returns the metadata height field. For a pooled transaction
// this is overloaded to carry validation "forks" context rather than
// a real block height.
func (r *Result) Height() uint32 { return r.metadata.Height }

// Position returns the transaction's position within its block, or
// UnconfirmedPosition if State is not StateConfirmed.
func (r *Result) Position() uint16 { return r.metadata.Position }

// Transaction decodes the full record body into the wire shape.
func (r *Result) Transaction() (*wire.Tx, error) {
	record, err := DecodeRecord(r.body)
	if nil != err {
		return nil, err
	}
	return record.ToWireTx(), nil
}

// Output decodes output i's value, script and current spender_height.
func (r *Result) Output(i int) (OutputRecord, error) {
	record, err := DecodeRecord(r.body)
	if nil != err {
		return OutputRecord{}, err
	}
	if i < 0 || i >= len(record.Outputs) {
		return OutputRecord{}, fault.ErrOutputIndex
	}
	return record.Outputs[i], nil
}

// IsSpent reports whether every output is spent relative to forkHeight,
// the height a reorganisation is unwinding back to. It first applies
// the same confirmed/indexed rule GetOutput uses: an indexed
// transaction counts as confirmed only when forkHeight is the
// MaxForkHeight tip sentinel, and a confirmed transaction counts only
// when its height is at or below forkHeight. A transaction that is not
// confirmed by that rule is never spent. Otherwise every output must
// have a spender at or below forkHeight; an output spent above
// forkHeight is still spendable once the fork has rewound past its
// spender, so a single such output makes the whole result unspent.
func (r *Result) IsSpent(forkHeight uint32) (bool, error) {
	allowIndexed := MaxForkHeight == forkHeight
	confirmed := (StateIndexed == r.metadata.State && allowIndexed) ||
		(StateConfirmed == r.metadata.State && r.metadata.Height <= forkHeight)
	if !confirmed {
		return false, nil
	}

	record, err := DecodeRecord(r.body)
	if nil != err {
		return false, err
	}
	for _, out := range record.Outputs {
		if NotSpent == out.SpenderHeight || out.SpenderHeight > forkHeight {
			return false, nil
		}
	}
	return true, nil
}

// Close releases the underlying pin early, rather than waiting for the
// pool's LRU to evict it. Safe to call more than once.
func (r *Result) Close() {
	if nil != r.pin {
		r.pin.release()
	}
}
