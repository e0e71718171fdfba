// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txstore implements the transaction store's state machine:
// store/pool/confirm transitions, per-output spend tracking, and
// output-point validation, layered on a hashtable.SlabTable keyed by
// transaction hash.
package txstore

import (
	"sync"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/dblog"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/hashtable"
	"github.com/bitmark-inc/bitmarkd/txresult"
	"github.com/bitmark-inc/bitmarkd/utxocache"
	"github.com/bitmark-inc/bitmarkd/wire"
	"github.com/bitmark-inc/logger"
)

// MaxForkHeight is the fork height passed by a caller that wants the
// "tip" view: an indexed (not yet confirmed) transaction counts as
// confirmed only when queried at this sentinel height.
const MaxForkHeight = txresult.MaxForkHeight

// Store is one transaction table plus the metadata mutex that guards
// its mutable (height, position, state) tuple as a single critical
// section, per spec section 3's invariant. Per-output spender_height
// is not guarded by this mutex; it is written with a single plain
// 32-bit little-endian store (txresult.StoreSpenderHeight), matching
// the original source's own "unprotected" write to this field.
type Store struct {
	table         *hashtable.SlabTable
	cache         *utxocache.Cache
	pool          *txresult.Pool
	metadataMutex sync.RWMutex
	log           *logger.L
}

// New builds a transaction store over table, fronted by cache and
// bounding its deferred readers with a pin pool of pinCapacity over
// remapMutex.
func New(table *hashtable.SlabTable, cache *utxocache.Cache, remapMutex *sync.RWMutex, pinCapacity int) *Store {
	return &Store{
		table: table,
		cache: cache,
		pool:  txresult.NewPool(remapMutex, pinCapacity),
		log:   dblog.New("txstore"),
	}
}

// Get locates a transaction by hash and snapshots its metadata under
// the table's metadata mutex. A missing hash is not an error: it
// returns a nil result.
func (s *Store) Get(hash chainhash.Hash) (*txresult.Result, error) {
	s.metadataMutex.RLock()
	offset, row, err := s.table.Locate(hash[:])
	if nil != err {
		s.metadataMutex.RUnlock()
		return nil, err
	}
	if nil == row {
		s.metadataMutex.RUnlock()
		return nil, nil
	}
	result, err := txresult.NewResult(s.pool, offset, hash, row)
	s.metadataMutex.RUnlock()
	if nil != err {
		return nil, err
	}
	return result, nil
}

// GetByOffset locates a transaction by its slab offset, recovering
// the hash from the row's own prefix.
func (s *Store) GetByOffset(offset uint64) (*txresult.Result, error) {
	s.metadataMutex.RLock()
	key, row, err := s.table.RowAt(offset)
	if nil != err {
		s.metadataMutex.RUnlock()
		return nil, err
	}
	var hash chainhash.Hash
	if err := chainhash.FromBytes(&hash, key); nil != err {
		s.metadataMutex.RUnlock()
		return nil, err
	}
	result, err := txresult.NewResult(s.pool, offset, hash, row)
	s.metadataMutex.RUnlock()
	if nil != err {
		return nil, err
	}
	return result, nil
}

// Store writes tx at (height, position, state). If state is
// confirmed, every input's previous output is spent at height first.
// If the transaction already has a slab (a pool -> confirm or
// confirm -> indexed transition), its metadata is rewritten in place;
// otherwise a new slab is allocated with the metadata written before
// the row becomes reachable, so a concurrent Get never observes a
// half-populated transaction.
func (s *Store) Store(tx *wire.Tx, height uint32, position uint16, state txresult.State) (uint64, error) {
	hash := tx.Hash()

	if txresult.StateConfirmed == state {
		for _, in := range tx.Inputs {
			if in.PreviousOutput.IsNull() {
				continue
			}
			if err := s.Spend(in.PreviousOutput, height); nil != err {
				return 0, err
			}
		}
	}

	s.metadataMutex.Lock()
	offset, row, err := s.table.Locate(hash[:])
	if nil != err {
		s.metadataMutex.Unlock()
		return 0, err
	}

	metadata := txresult.Metadata{Height: height, Position: position, State: state}

	if nil != row {
		txresult.EncodeMetadata(row, metadata)
		s.metadataMutex.Unlock()
		if txresult.StateConfirmed == state {
			s.cache.Add(tx, uint64(height), true)
		}
		return offset, nil
	}

	body := txresult.FromWireTx(tx).Encode()
	newOffset, err := s.table.Store(hash[:], uint64(txresult.MetadataSize)+uint64(len(body)), func(value []byte) {
		txresult.EncodeMetadata(value, metadata)
		copy(value[txresult.MetadataSize:], body)
	})
	s.metadataMutex.Unlock()
	if nil != err {
		return 0, err
	}
	if txresult.StateConfirmed == state {
		s.cache.Add(tx, uint64(height), true)
	}
	return newOffset, nil
}

// Pool reverses a confirmed or indexed transaction back to pooled:
// every input's previous output is unspent, then this transaction's
// own metadata is reset to (Unverified, UnconfirmedPosition, Pooled),
// and its outputs are dropped from the output cache.
func (s *Store) Pool(tx *wire.Tx) error {
	for _, in := range tx.Inputs {
		if in.PreviousOutput.IsNull() {
			continue
		}
		if err := s.unspend(in.PreviousOutput); nil != err {
			return err
		}
	}

	hash := tx.Hash()

	s.metadataMutex.Lock()
	defer s.metadataMutex.Unlock()

	_, row, err := s.table.Locate(hash[:])
	if nil != err {
		return err
	}
	if nil == row {
		return fault.ErrNotFound
	}
	txresult.EncodeMetadata(row, txresult.Metadata{
		Height:   txresult.Unverified,
		Position: txresult.UnconfirmedPosition,
		State:    txresult.StatePooled,
	})
	for i := range tx.Outputs {
		s.cache.Remove(wire.OutputPoint{Hash: hash, Index: uint32(i)})
	}
	return nil
}

// PoolByOffset is Pool for a caller that only has a block's tx-offset
// list, as used when popping a block back to pooled transactions.
func (s *Store) PoolByOffset(offset uint64) error {
	_, value, err := s.table.RowAt(offset)
	if nil != err {
		return err
	}
	record, err := txresult.DecodeRecord(value[txresult.MetadataSize:])
	if nil != err {
		return err
	}
	return s.Pool(record.ToWireTx())
}

// unspend writes the not-spent sentinel into point's spender_height,
// reversing a prior Spend.
func (s *Store) unspend(point wire.OutputPoint) error {
	_, row, err := s.table.Locate(point.Hash[:])
	if nil != err {
		return err
	}
	if nil == row {
		return fault.ErrNotFound
	}
	body := row[txresult.MetadataSize:]
	prefixOffset, err := txresult.OutputPrefixOffset(body, int(point.Index))
	if nil != err {
		return err
	}
	txresult.StoreSpenderHeight(body[prefixOffset:], txresult.NotSpent)
	return nil
}

// Spend locates point's transaction, requires it be confirmed at or
// below spenderHeight, and overwrites its spender_height with a
// single plain 32-bit store rather than under the metadata mutex —
// correct because every caller of Spend runs inside the orchestrator's
// serialized write phase. The output cache is evicted for point since
// it only ever holds unspent outputs.
func (s *Store) Spend(point wire.OutputPoint, spenderHeight uint32) error {
	s.metadataMutex.RLock()
	_, row, err := s.table.Locate(point.Hash[:])
	if nil != err {
		s.metadataMutex.RUnlock()
		return err
	}
	if nil == row {
		s.metadataMutex.RUnlock()
		return fault.ErrNotFound
	}
	metadata := txresult.DecodeMetadata(row)
	s.metadataMutex.RUnlock()

	if txresult.StateConfirmed != metadata.State {
		return fault.ErrNotConfirmed
	}
	if metadata.Height > spenderHeight {
		return fault.ErrSpendTooHigh
	}

	body := row[txresult.MetadataSize:]
	prefixOffset, err := txresult.OutputPrefixOffset(body, int(point.Index))
	if nil != err {
		return err
	}
	txresult.StoreSpenderHeight(body[prefixOffset:], spenderHeight)

	s.cache.Remove(point)
	return nil
}

// OutputView is the validation-facing projection of one output:
// whether it is confirmed at the queried fork height, already spent,
// and (when it is position 0 of its block) the coinbase height.
type OutputView struct {
	Value          uint64
	Script         []byte
	Confirmed      bool
	Spent          bool
	CoinbaseHeight uint32
}

// GetOutput resolves point's validation view at forkHeight: a cache
// hit always means unspent, and confirmed when its height is at or
// below forkHeight; otherwise it falls through
// to the store and applies spec section 4.8's confirmation predicate.
// The genesis coinbase output is never populated, matching the store
// level invariant that it is never spendable.
func (s *Store) GetOutput(point wire.OutputPoint, forkHeight uint32) (OutputView, bool, error) {
	if cached, ok := s.cache.Populate(point); ok && 0 != cached.Height {
		view := OutputView{
			Value:     cached.Value,
			Script:    cached.Script,
			Confirmed: cached.Height <= uint64(forkHeight),
			Spent:     false,
		}
		if cached.CoinbaseOut {
			view.CoinbaseHeight = uint32(cached.Height)
		}
		return view, true, nil
	}

	result, err := s.Get(point.Hash)
	if nil != err {
		return OutputView{}, false, err
	}
	if nil == result {
		return OutputView{}, false, nil
	}
	defer result.Close()

	if txresult.StateConfirmed == result.State() && 0 == result.Height() {
		return OutputView{}, false, nil
	}

	confirmed := (txresult.StateIndexed == result.State() && MaxForkHeight == forkHeight) ||
		(txresult.StateConfirmed == result.State() && result.Height() <= forkHeight)

	out, err := result.Output(int(point.Index))
	if nil != err {
		return OutputView{}, false, err
	}

	spent := confirmed && txresult.NotSpent != out.SpenderHeight && out.SpenderHeight <= forkHeight

	view := OutputView{
		Value:     out.Value,
		Script:    out.Script,
		Confirmed: confirmed,
		Spent:     spent,
	}
	if 0 == result.Position() {
		view.CoinbaseHeight = result.Height()
	}
	return view, true, nil
}

// Sync flushes the backing table's size header.
func (s *Store) Sync() error {
	return s.table.Sync()
}
