// Copyright (c) 2014-2018 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/bitmark-inc/bitmarkd/dblog"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/logger"
)

// minerIndex is an auxiliary leveldb side table keyed by miner address
// hash, reverse-mapping an address to the most recent block it mined.
// The mmap record/slab tables above have no cheap way to do this
// secondary-key lookup without a full scan; leveldb's own keyed
// lookup does, which is the one thing this store needs from it.
type minerIndex struct {
	prefix byte
	db     *leveldb.DB
	log    *logger.L
}

// minerRecord is what is stored under a miner address key.
type minerRecord struct {
	Height uint64
	Hash   []byte
}

func newMinerIndex(path string, prefix byte) (*minerIndex, error) {
	db, err := leveldb.OpenFile(path, nil)
	if nil != err {
		return nil, err
	}
	return &minerIndex{
		prefix: prefix,
		db:     db,
		log:    dblog.New("blockstore-minerindex"),
	}, nil
}

func (m *minerIndex) prefixKey(key []byte) []byte {
	prefixed := make([]byte, 1, len(key)+1)
	prefixed[0] = m.prefix
	return append(prefixed, key...)
}

// Put records address as the miner of height/hash, overwriting any
// earlier entry for the same address.
func (m *minerIndex) Put(address []byte, height uint64, hash []byte) error {
	value := encodeMinerRecord(minerRecord{Height: height, Hash: hash})
	return m.db.Put(m.prefixKey(address), value, nil)
}

// Get returns the most recent block mined by address, if any.
func (m *minerIndex) Get(address []byte) (minerRecord, bool, error) {
	value, err := m.db.Get(m.prefixKey(address), nil)
	if leveldb.ErrNotFound == err {
		return minerRecord{}, false, nil
	}
	if nil != err {
		return minerRecord{}, false, err
	}
	record, err := decodeMinerRecord(value)
	if nil != err {
		return minerRecord{}, false, err
	}
	return record, true, nil
}

// Delete removes address's entry, used when popping the block that
// made it the most recent miner.
func (m *minerIndex) Delete(address []byte) error {
	return m.db.Delete(m.prefixKey(address), nil)
}

func (m *minerIndex) Close() error {
	return m.db.Close()
}

func encodeMinerRecord(r minerRecord) []byte {
	buffer := make([]byte, 8, 8+len(r.Hash))
	for i := 0; i < 8; i++ {
		buffer[i] = byte(r.Height >> (8 * (7 - i)))
	}
	return append(buffer, r.Hash...)
}

func decodeMinerRecord(value []byte) (minerRecord, error) {
	if len(value) < 8 {
		return minerRecord{}, fault.ErrInconsistentField
	}
	var height uint64
	for i := 0; i < 8; i++ {
		height = height<<8 | uint64(value[i])
	}
	hash := make([]byte, len(value)-8)
	copy(hash, value[8:])
	return minerRecord{Height: height, Hash: hash}, nil
}
