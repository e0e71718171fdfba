// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockstore indexes block headers by height, keeps each
// block's transaction slab offsets so a block can be reconstructed
// without re-hashing any transaction, and fronts an auxiliary
// leveldb-backed side table that reverse-maps a miner address to the
// most recent block it mined.
package blockstore

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/bitmark-inc/bitmarkd/dblog"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/mmfile"
	"github.com/bitmark-inc/bitmarkd/recordfile"
	"github.com/bitmark-inc/bitmarkd/slabfile"
	"github.com/bitmark-inc/bitmarkd/wire"
	"github.com/bitmark-inc/logger"
)

// row layout: [header:80][txCount:4][txOffsetsAt:8][confirmed:1]
const (
	rowTxCountOffset   = wire.HeaderSize
	rowOffsetsAtOffset = rowTxCountOffset + 4
	rowConfirmedOffset = rowOffsetsAtOffset + 8
	rowWidth           = rowConfirmedOffset + 1
)

// tipSize is the width of the confirmed-tip counter kept ahead of the
// recordfile's own row-count header. It tracks the chain tip
// separately from the row array's allocated length: recordfile.Manager
// never shrinks, but Pop/Push at the same height must, since a block
// store addresses rows directly by height rather than appending.
const tipSize = 4

// Row is the decoded view of one block-index entry.
type Row struct {
	Header    wire.Header
	TxOffsets []uint64
	Confirmed bool
}

// Store is the block index: one fixed-width row per height plus the
// variable-width slab holding each row's transaction offset list.
type Store struct {
	file    *mmfile.File
	blocks  *recordfile.Manager
	offsets *slabfile.Manager
	miner   *minerIndex
	mutex   sync.Mutex
	tip     uint32
	log     *logger.L
}

// New builds a block store over file (used for the row array and the
// confirmed-tip counter) and offsets (the transaction-offset-list
// slab), with its miner index rooted at minerIndexPath.
func New(file *mmfile.File, offsets *slabfile.Manager, minerIndexPath string) (*Store, error) {
	if err := file.Reserve(tipSize); nil != err {
		return nil, err
	}
	blocks, err := recordfile.New(file, tipSize, rowWidth)
	if nil != err {
		return nil, err
	}

	miner, err := newMinerIndex(minerIndexPath, 'M')
	if nil != err {
		return nil, err
	}

	return &Store{
		file:    file,
		blocks:  blocks,
		offsets: offsets,
		miner:   miner,
		tip:     binary.LittleEndian.Uint32(file.Data()[:tipSize]),
		log:     dblog.New("blockstore"),
	}, nil
}

// Height returns the height of the current chain tip. A freshly
// created store (no genesis pushed yet) returns false.
func (s *Store) Height() (uint64, bool) {
	tip := atomic.LoadUint32(&s.tip)
	if 0 == tip {
		return 0, false
	}
	return uint64(tip) - 1, true
}

func (s *Store) setTip(tip uint32) {
	atomic.StoreUint32(&s.tip, tip)
	binary.LittleEndian.PutUint32(s.file.Data()[:tipSize], tip)
}

// Push writes header at height, which must be exactly one above the
// current tip, or 0 for an empty store (the caller, not this store,
// verifies chain linkage — this
// store only enforces internal consistency). If height was
// previously pushed and then popped, its row is reused in place
// rather than appended, since a row's identity is its height.
// txOffsets is the already-decided list of each transaction's slab
// offset within txstore, stored so a later Get/Pop never needs to
// re-hash a transaction to find it.
func (s *Store) Push(height uint64, header wire.Header, txOffsets []uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if uint64(atomic.LoadUint32(&s.tip)) != height {
		return fault.ErrInvalidHeight
	}

	offsetsAt, err := s.offsets.Allocate(offsetListSize(len(txOffsets)))
	if nil != err {
		return err
	}
	offsetsBytes, err := s.offsets.Get(offsetsAt)
	if nil != err {
		return err
	}
	encodeOffsetList(offsetsBytes[:offsetListSize(len(txOffsets))], txOffsets)

	var row []byte
	if height < uint64(s.blocks.Count()) {
		row, err = s.blocks.Get(uint32(height))
	} else {
		var index uint32
		index, err = s.blocks.NewRecords(1)
		if nil == err {
			row, err = s.blocks.Get(index)
		}
	}
	if nil != err {
		return err
	}

	packed := header.Pack()
	copy(row, packed[:])
	binary.LittleEndian.PutUint32(row[rowTxCountOffset:], uint32(len(txOffsets)))
	binary.LittleEndian.PutUint64(row[rowOffsetsAtOffset:], offsetsAt)
	row[rowConfirmedOffset] = 1

	s.setTip(uint32(height) + 1)
	return nil
}

// Get returns the decoded row at height. A height that was pushed
// and later popped still decodes, with Confirmed false; a height
// that was never pushed returns fault.ErrNotFound.
func (s *Store) Get(height uint64) (Row, error) {
	if height >= uint64(s.blocks.Count()) {
		return Row{}, fault.ErrNotFound
	}
	row, err := s.blocks.Get(uint32(height))
	if nil != err {
		return Row{}, err
	}
	return s.decodeRow(row)
}

// Pop marks height's block slot unconfirmed and retreats the tip to
// height-1. height must be the current tip; the row's bytes (header,
// offsets) are left in place, ready to be overwritten by a later
// Push at the same height.
func (s *Store) Pop(height uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tip := atomic.LoadUint32(&s.tip)
	if 0 == tip || height != uint64(tip)-1 {
		return fault.ErrNotFound
	}
	row, err := s.blocks.Get(uint32(height))
	if nil != err {
		return err
	}
	row[rowConfirmedOffset] = 0
	s.setTip(uint32(height))
	return nil
}

func (s *Store) decodeRow(row []byte) (Row, error) {
	var packed wire.PackedHeader
	copy(packed[:], row[:wire.HeaderSize])
	header, err := packed.Unpack()
	if nil != err {
		return Row{}, err
	}

	txCount := binary.LittleEndian.Uint32(row[rowTxCountOffset:])
	offsetsAt := binary.LittleEndian.Uint64(row[rowOffsetsAtOffset:])

	raw, err := s.offsets.Get(offsetsAt)
	if nil != err {
		return Row{}, err
	}
	txOffsets, err := decodeOffsetList(raw, int(txCount))
	if nil != err {
		return Row{}, err
	}

	return Row{
		Header:    *header,
		TxOffsets: txOffsets,
		Confirmed: 1 == row[rowConfirmedOffset],
	}, nil
}

// RecordMiner notes address as the miner of height/hash in the side
// table, overwriting any prior entry for the same address.
func (s *Store) RecordMiner(address []byte, height uint64, hash []byte) error {
	return s.miner.Put(address, height, hash)
}

// LastBlockByMiner returns the most recent block recorded for address.
func (s *Store) LastBlockByMiner(address []byte) (uint64, []byte, bool, error) {
	record, ok, err := s.miner.Get(address)
	if nil != err || !ok {
		return 0, nil, ok, err
	}
	return record.Height, record.Hash, true, nil
}

// DeleteMiner removes address's most-recent-miner entry, used by a
// pop that is reversing the push which set it.
func (s *Store) DeleteMiner(address []byte) error {
	return s.miner.Delete(address)
}

// Sync writes the block index's row count and the offsets slab's size
// to their header slots. The confirmed-tip counter needs no step here:
// every Push and Pop already writes it into the mapping.
func (s *Store) Sync() error {
	if err := s.blocks.Sync(); nil != err {
		return err
	}
	return s.offsets.Sync()
}

// Close releases the miner index's leveldb handle.
func (s *Store) Close() error {
	return s.miner.Close()
}

func offsetListSize(n int) uint64 {
	return 4 + uint64(n)*8
}

func encodeOffsetList(buffer []byte, offsets []uint64) {
	binary.LittleEndian.PutUint32(buffer, uint32(len(offsets)))
	for i, offset := range offsets {
		binary.LittleEndian.PutUint64(buffer[4+i*8:], offset)
	}
}

func decodeOffsetList(raw []byte, count int) ([]uint64, error) {
	if len(raw) < offsetListSizeInt(count) {
		return nil, fault.ErrInconsistentField
	}
	n := binary.LittleEndian.Uint32(raw)
	if int(n) != count {
		return nil, fault.ErrInconsistentField
	}
	offsets := make([]uint64, count)
	for i := 0; i < count; i++ {
		offsets[i] = binary.LittleEndian.Uint64(raw[4+i*8:])
	}
	return offsets, nil
}

func offsetListSizeInt(n int) int {
	return 4 + n*8
}
