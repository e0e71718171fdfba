// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package database is the storage engine's write orchestrator: the
// single entry point that turns the external push/pop/reorganize
// vocabulary into coordinated calls against the transaction, block,
// spend, history and stealth stores, with a flush-lock sentinel
// bracketing every mutation so a crash mid-write is detectable on the
// next open.
package database

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/bitmark-inc/bitmarkd/blockstore"
	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/dbconfig"
	"github.com/bitmark-inc/bitmarkd/dblog"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/bitmarkd/hashtable"
	"github.com/bitmark-inc/bitmarkd/historydb"
	"github.com/bitmark-inc/bitmarkd/mmfile"
	"github.com/bitmark-inc/bitmarkd/multimap"
	"github.com/bitmark-inc/bitmarkd/recordfile"
	"github.com/bitmark-inc/bitmarkd/slabfile"
	"github.com/bitmark-inc/bitmarkd/spenddb"
	"github.com/bitmark-inc/bitmarkd/stealthdb"
	"github.com/bitmark-inc/bitmarkd/txresult"
	"github.com/bitmark-inc/bitmarkd/txstore"
	"github.com/bitmark-inc/bitmarkd/utxocache"
	"github.com/bitmark-inc/bitmarkd/wire"
	"github.com/bitmark-inc/logger"
)

// addressHashSize is the width of an address hash as stored by
// historydb's primary table. Deriving the hash itself from a script
// is an AddressResolver's job, not this package's.
const addressHashSize = chainhash.HashLength

// defaultPushWorkers bounds how many goroutines fan out over a
// block's transaction list in PushBlock. A block with fewer
// transactions than this uses one worker per transaction instead.
const defaultPushWorkers = 8

const pinPoolCapacity = 4096

const lockFileName = "lock"
const flushLockFileName = "flush.lock"

// AddressResolver extracts the address-hash and stealth-payment facts
// that address/stealth indexing needs from a transaction's scripts.
// Deriving an address or a stealth key from raw script bytes is
// outside this package's interface to the index tables; a caller
// that enables Settings.IndexAddresses must supply a real resolver
// via SetAddressResolver, or indexing silently finds nothing.
type AddressResolver interface {
	Resolve(script []byte) (addressHash []byte, ok bool)
	StealthPair(first, second wire.Output) (record stealthdb.Record, ok bool)
}

type noOpResolver struct{}

func (noOpResolver) Resolve([]byte) ([]byte, bool)                                 { return nil, false }
func (noOpResolver) StealthPair(wire.Output, wire.Output) (stealthdb.Record, bool) { return stealthdb.Record{}, false }

// DB is the write orchestrator over one storage directory.
type DB struct {
	directory     string
	lockFile      *os.File
	flushLockPath string
	remapMutex    *sync.RWMutex

	txFile               *mmfile.File
	blockFile            *mmfile.File
	offsetsFile          *mmfile.File
	spendFile            *mmfile.File
	historyPrimaryFile   *mmfile.File
	historySecondaryFile *mmfile.File
	stealthFile          *mmfile.File

	tx      *txstore.Store
	blocks  *blockstore.Store
	spends  *spenddb.Store
	history *historydb.Store
	stealth *stealthdb.Store

	indexAddresses bool
	resolver       AddressResolver
	workers        int

	writeMutex sync.Mutex

	registry      *prometheus.Registry
	blocksPushed  prometheus.Counter
	blocksPopped  prometheus.Counter
	flushLockHeld prometheus.Gauge

	log *logger.L
}

// SetAddressResolver installs r as the address/stealth derivation
// collaborator used when Settings.IndexAddresses is true. Called
// before the first Push.
func (db *DB) SetAddressResolver(r AddressResolver) {
	if nil == r {
		r = noOpResolver{}
	}
	db.resolver = r
}

func flushLockPath(directory string) string {
	return filepath.Join(directory, flushLockFileName)
}

func lockDirectory(directory string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(directory, lockFileName), os.O_CREATE|os.O_RDWR, 0600)
	if nil != err {
		return nil, fault.ErrFileOpenFailed
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); nil != err {
		f.Close()
		return nil, fault.ErrAlreadyInitialised
	}
	return f, nil
}

// Open attaches to an already-created storage directory. It refuses
// to proceed if the flush-lock sentinel from a previous, uncompleted
// write is still present: per spec, recovery from that state is the
// caller's job, not an automatic retry.
func Open(cfg dbconfig.Settings) (*DB, error) {
	if err := dbconfig.ApplyDefaults(&cfg); nil != err {
		return nil, err
	}
	if err := dbconfig.Validate(cfg); nil != err {
		return nil, err
	}

	if _, err := os.Stat(flushLockPath(cfg.Directory)); nil == err {
		return nil, fault.ErrWriteLockHeld
	} else if !os.IsNotExist(err) {
		return nil, fault.ErrFileOpenFailed
	}

	return openStore(cfg)
}

// Create initialises a fresh storage directory and pushes genesis as
// height 0.
func Create(cfg dbconfig.Settings, genesis *wire.Block) (*DB, error) {
	if err := dbconfig.ApplyDefaults(&cfg); nil != err {
		return nil, err
	}
	if err := dbconfig.Validate(cfg); nil != err {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Directory, 0700); nil != err {
		return nil, fault.ErrFileOpenFailed
	}

	db, err := openStore(cfg)
	if nil != err {
		return nil, err
	}

	if err := db.PushBlock(genesis, 0); nil != err {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openStore opens every backing file and wires up each sub-store.
// Any error closes whatever was already opened before returning.
func openStore(cfg dbconfig.Settings) (db *DB, err error) {
	var closers []io.Closer
	defer func() {
		if nil != err {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
		}
	}()

	lockFile, lockErr := lockDirectory(cfg.Directory)
	if nil != lockErr {
		return nil, lockErr
	}
	closers = append(closers, lockFile)

	var remapMutex sync.RWMutex

	open := func(name string) (*mmfile.File, error) {
		f, openErr := mmfile.Open(filepath.Join(cfg.Directory, name), &remapMutex)
		if nil != openErr {
			return nil, openErr
		}
		closers = append(closers, f)
		return f, nil
	}

	txFile, err := open("transactions.dat")
	if nil != err {
		return nil, err
	}
	txHeader, err := hashtable.Create[uint64](txFile, 0, cfg.TransactionTableBuckets, hashtable.EmptySlab)
	if nil != err {
		return nil, err
	}
	txRows, err := slabfile.New(txFile, cfg.TransactionTableBuckets*8)
	if nil != err {
		return nil, err
	}
	txTable := hashtable.NewSlabTable(txHeader, txRows, chainhash.HashLength)
	cache := utxocache.New(cfg.CacheCapacity)
	txStore := txstore.New(txTable, cache, &remapMutex, pinPoolCapacity)

	blockFile, err := open("blocks.dat")
	if nil != err {
		return nil, err
	}
	offsetsFile, err := open("block-offsets.dat")
	if nil != err {
		return nil, err
	}
	offsets, err := slabfile.New(offsetsFile, 0)
	if nil != err {
		return nil, err
	}
	blockStore, err := blockstore.New(blockFile, offsets, filepath.Join(cfg.Directory, "miner-index.ldb"))
	if nil != err {
		return nil, err
	}
	closers = append(closers, blockStore)

	spendFile, err := open("spends.dat")
	if nil != err {
		return nil, err
	}
	spendHeader, err := hashtable.Create[uint32](spendFile, 0, cfg.SpendTableBuckets, hashtable.EmptyRecord)
	if nil != err {
		return nil, err
	}
	spendRowWidth := uint64(spenddb.PointSize) + 4 + uint64(spenddb.PointSize)
	spendRows, err := recordfile.New(spendFile, cfg.SpendTableBuckets*4, spendRowWidth)
	if nil != err {
		return nil, err
	}
	spendTable := hashtable.NewRecordTable(spendHeader, spendRows, spenddb.PointSize, spenddb.PointSize)
	spendStore := spenddb.New(spendTable)

	historyPrimaryFile, err := open("history-primary.dat")
	if nil != err {
		return nil, err
	}
	historyHeader, err := hashtable.Create[uint32](historyPrimaryFile, 0, cfg.HistoryTableBuckets, hashtable.EmptyRecord)
	if nil != err {
		return nil, err
	}
	historyPrimaryRowWidth := uint64(addressHashSize) + 4 + 4
	historyPrimaryRows, err := recordfile.New(historyPrimaryFile, cfg.HistoryTableBuckets*4, historyPrimaryRowWidth)
	if nil != err {
		return nil, err
	}
	historyPrimaryTable := hashtable.NewRecordTable(historyHeader, historyPrimaryRows, addressHashSize, 4)

	historySecondaryFile, err := open("history-secondary.dat")
	if nil != err {
		return nil, err
	}
	historySecondaryRows, err := recordfile.New(historySecondaryFile, 0, 4+uint64(historydb.RecordSize))
	if nil != err {
		return nil, err
	}
	historyMM := multimap.New(historyPrimaryTable, historySecondaryRows, historydb.RecordSize)
	historyStore := historydb.New(historyMM)

	stealthFile, err := open("stealth.dat")
	if nil != err {
		return nil, err
	}
	stealthRows, err := recordfile.New(stealthFile, 0, uint64(stealthdb.RecordSize))
	if nil != err {
		return nil, err
	}
	stealthStore := stealthdb.New(stealthRows)

	registry := prometheus.NewRegistry()
	blocksPushed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bitmarkd_storage_blocks_pushed_total",
		Help: "Total number of blocks pushed onto the confirmed chain.",
	})
	blocksPopped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bitmarkd_storage_blocks_popped_total",
		Help: "Total number of blocks popped off the confirmed chain.",
	})
	flushLockHeld := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bitmarkd_storage_flush_lock_held",
		Help: "1 while the flush-lock sentinel file is present on disk.",
	})
	registry.MustRegister(blocksPushed, blocksPopped, flushLockHeld)

	return &DB{
		directory:     cfg.Directory,
		lockFile:      lockFile,
		flushLockPath: flushLockPath(cfg.Directory),
		remapMutex:    &remapMutex,

		txFile:               txFile,
		blockFile:            blockFile,
		offsetsFile:          offsetsFile,
		spendFile:            spendFile,
		historyPrimaryFile:   historyPrimaryFile,
		historySecondaryFile: historySecondaryFile,
		stealthFile:          stealthFile,

		tx:      txStore,
		blocks:  blockStore,
		spends:  spendStore,
		history: historyStore,
		stealth: stealthStore,

		indexAddresses: cfg.IndexAddresses,
		resolver:       noOpResolver{},
		workers:        defaultPushWorkers,

		registry:      registry,
		blocksPushed:  blocksPushed,
		blocksPopped:  blocksPopped,
		flushLockHeld: flushLockHeld,

		log: dblog.New("database"),
	}, nil
}

// Close flushes nothing further (a clean shutdown must already have
// gone through a successful write bracket) and releases every file
// handle and the directory lock.
func (db *DB) Close() error {
	var first error
	record := func(err error) {
		if nil != err && nil == first {
			first = err
		}
	}

	record(db.blocks.Close())
	for _, f := range []*mmfile.File{
		db.txFile, db.blockFile, db.offsetsFile, db.spendFile,
		db.historyPrimaryFile, db.historySecondaryFile, db.stealthFile,
	} {
		record(f.Close())
	}
	if nil != db.lockFile {
		unix.Flock(int(db.lockFile.Fd()), unix.LOCK_UN)
		record(db.lockFile.Close())
	}
	return first
}

// Registry exposes the per-instance prometheus registry so a caller
// can mount it under its own metrics endpoint.
func (db *DB) Registry() *prometheus.Registry {
	return db.registry
}

// beginWrite creates the flush-lock sentinel. Its presence on the
// next Open means the previous write never reached endWrite.
func (db *DB) beginWrite() error {
	f, err := os.OpenFile(db.flushLockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if nil != err {
		return fault.ErrWriteLockHeld
	}
	f.Close()
	db.flushLockHeld.Set(1)
	return nil
}

// endWrite flushes every mutated store to disk and only then removes
// the sentinel, so a crash between flush and removal is still
// detected as incomplete rather than silently accepted.
func (db *DB) endWrite() error {
	if err := db.flushAll(); nil != err {
		return err
	}
	return db.clearFlushLock()
}

func (db *DB) clearFlushLock() error {
	if err := os.Remove(db.flushLockPath); nil != err && !os.IsNotExist(err) {
		return err
	}
	db.flushLockHeld.Set(0)
	return nil
}

// failWrite reports err from a bracketed mutation. Per spec, local
// recovery (clearing the sentinel so the directory remains usable) is
// only safe for a validation failure that never touched the stores;
// NotFoundError and InvalidPushError are exactly that class. Any
// other error leaves the sentinel in place, forcing explicit recovery
// on the next Open.
func (db *DB) failWrite(err error) error {
	if fault.IsErrNotFound(err) || fault.IsErrInvalidPush(err) {
		db.clearFlushLock()
		return err
	}
	return dblog.CriticalIfError(db.log, "write aborted, flush lock left in place", err)
}

func (db *DB) flushAll() error {
	if err := db.tx.Sync(); nil != err {
		return err
	}
	if err := db.blocks.Sync(); nil != err {
		return err
	}
	if err := db.spends.Sync(); nil != err {
		return err
	}
	if err := db.history.Sync(); nil != err {
		return err
	}
	if err := db.stealth.Sync(); nil != err {
		return err
	}

	for _, f := range []*mmfile.File{
		db.txFile, db.blockFile, db.offsetsFile, db.spendFile,
		db.historyPrimaryFile, db.historySecondaryFile, db.stealthFile,
	} {
		if err := f.Flush(); nil != err {
			return err
		}
	}
	return nil
}

// PushTx admits tx into the unconfirmed pool at the given fork
// height, after verifying no unspent output it would create is
// already claimed by a still-unspent, already-confirmed duplicate
// (spec section 4.8's duplicate-transaction check).
func (db *DB) PushTx(tx *wire.Tx, forks uint32) error {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if err := db.beginWrite(); nil != err {
		return err
	}

	dup, err := db.hasUnspentDuplicate(tx)
	if nil != err {
		return db.failWrite(err)
	}
	if dup {
		return db.failWrite(fault.ErrUnspentDuplicate)
	}

	if _, err := db.tx.Store(tx, forks, txresult.UnconfirmedPosition, txresult.StatePooled); nil != err {
		return db.failWrite(err)
	}
	return db.endWrite()
}

func (db *DB) hasUnspentDuplicate(tx *wire.Tx) (bool, error) {
	hash := tx.Hash()
	result, err := db.tx.Get(hash)
	if nil != err {
		return false, err
	}
	if nil == result {
		return false, nil
	}
	defer result.Close()
	if txresult.StateConfirmed != result.State() {
		return false, nil
	}

	for i := range tx.Outputs {
		point := wire.OutputPoint{Hash: hash, Index: uint32(i)}
		view, ok, err := db.tx.GetOutput(point, txstore.MaxForkHeight)
		if nil != err {
			return false, err
		}
		if ok && view.Confirmed && !view.Spent {
			return true, nil
		}
	}
	return false, nil
}

// PushHeader records header at height without indexing any
// transaction, for a caller that is syncing headers ahead of the
// blocks themselves.
func (db *DB) PushHeader(header wire.Header, height uint64) error {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if err := db.beginWrite(); nil != err {
		return err
	}
	if err := db.verifyLinkage(header, height); nil != err {
		return db.failWrite(err)
	}
	if err := db.blocks.Push(height, header, nil); nil != err {
		return db.failWrite(err)
	}
	db.blocksPushed.Inc()
	return db.endWrite()
}

// verifyLinkage checks that height is exactly next-expected and that
// header's previous-block hash matches the current tip's digest,
// the two structural checks every push variant shares.
func (db *DB) verifyLinkage(header wire.Header, height uint64) error {
	tipHeight, ok := db.blocks.Height()
	expected := uint64(0)
	if ok {
		expected = tipHeight + 1
	}
	if height != expected {
		return fault.ErrInvalidHeight
	}
	if !ok {
		return nil
	}
	tip, err := db.blocks.Get(tipHeight)
	if nil != err {
		return err
	}
	if tip.Header.Pack().Digest() != header.PreviousBlock {
		return fault.ErrParentHashMismatch
	}
	return nil
}

// PushBlock confirms every transaction in block at height, fanned out
// over a worker pool, then records the block itself and, when address
// indexing is enabled, the addresses each transaction touches.
func (db *DB) PushBlock(block *wire.Block, height uint64) error {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if err := db.beginWrite(); nil != err {
		return err
	}
	if err := db.doPushBlock(block, height); nil != err {
		return db.failWrite(err)
	}
	db.blocksPushed.Inc()
	return db.endWrite()
}

func (db *DB) doPushBlock(block *wire.Block, height uint64) error {
	if 0 == len(block.Transactions) {
		return fault.ErrEmptyBlock
	}
	if err := db.verifyLinkage(block.Header, height); nil != err {
		return err
	}

	offsets, err := db.pushTransactions(block.Transactions, height)
	if nil != err {
		return err
	}

	if err := db.blocks.Push(height, block.Header, offsets); nil != err {
		return err
	}

	if err := db.recordMiner(block, height); nil != err {
		return err
	}

	if db.indexAddresses {
		if err := db.indexBlock(block, height); nil != err {
			return err
		}
	}
	return nil
}

// recordMiner notes the coinbase's payout address as height's miner in
// blockstore's side table, resolved the same way indexBlock resolves
// any other output script. A resolver that cannot identify the
// address (including the default noOpResolver) leaves the side table
// untouched rather than failing the push.
func (db *DB) recordMiner(block *wire.Block, height uint64) error {
	coinbase := block.Transactions[0]
	if !coinbase.IsCoinbase() || 0 == len(coinbase.Outputs) {
		return nil
	}
	addressHash, ok := db.resolver.Resolve(coinbase.Outputs[0].Script)
	if !ok {
		return nil
	}
	digest := block.Header.Pack().Digest()
	return db.blocks.RecordMiner(addressHash, height, digest[:])
}

// pushTransactions confirms every transaction in txs at height,
// partitioned across a bounded worker pool by position modulo the
// worker count, and returns each transaction's slab offset ordered by
// position.
func (db *DB) pushTransactions(txs []*wire.Tx, height uint64) ([]uint64, error) {
	total := len(txs)
	workers := db.workers
	if workers > total {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}

	offsets := make([]uint64, total)
	var group errgroup.Group
	for w := 0; w < workers; w++ {
		worker := w
		group.Go(func() error {
			for position := worker; position < total; position += workers {
				offset, err := db.tx.Store(txs[position], uint32(height), uint16(position), txresult.StateConfirmed)
				if nil != err {
					return err
				}
				offsets[position] = offset
			}
			return nil
		})
	}
	if err := group.Wait(); nil != err {
		return nil, err
	}
	return offsets, nil
}

// indexBlock walks every transaction's inputs and outputs, recording
// per-address history and previous-output spend records, and every
// consecutive output pair that resolves to a stealth sighting.
func (db *DB) indexBlock(block *wire.Block, height uint64) error {
	for _, tx := range block.Transactions {
		hash := tx.Hash()

		if !tx.IsCoinbase() {
			for inputIndex, input := range tx.Inputs {
				spendingPoint := wire.OutputPoint{Hash: hash, Index: uint32(inputIndex)}
				if err := db.spends.Put(input.PreviousOutput, spendingPoint); nil != err {
					return err
				}

				if addressHash, ok := db.resolver.Resolve(input.Script); ok {
					checksum := chainhash.DoubleSHA256(encodePointBytes(input.PreviousOutput))
					record := historydb.Record{
						Height:     uint32(height),
						Kind:       historydb.KindInput,
						PointHash:  hash,
						PointIndex: uint16(inputIndex),
						Data:       binary.LittleEndian.Uint64(checksum[:8]),
					}
					if err := db.history.Add(addressHash, record); nil != err {
						return err
					}
				}
			}
		}

		for outputIndex, output := range tx.Outputs {
			if addressHash, ok := db.resolver.Resolve(output.Script); ok {
				record := historydb.Record{
					Height:     uint32(height),
					Kind:       historydb.KindOutput,
					PointHash:  hash,
					PointIndex: uint16(outputIndex),
					Data:       output.Value,
				}
				if err := db.history.Add(addressHash, record); nil != err {
					return err
				}
			}
		}

		for i := 0; i+1 < len(tx.Outputs); i++ {
			record, ok := db.resolver.StealthPair(tx.Outputs[i], tx.Outputs[i+1])
			if !ok {
				continue
			}
			record.Height = uint32(height)
			record.TxHash = hash
			if _, err := db.stealth.Push(record); nil != err {
				return err
			}
		}
	}
	return nil
}

func encodePointBytes(point wire.OutputPoint) []byte {
	buffer := make([]byte, spenddb.PointSize)
	copy(buffer, point.Hash[:])
	binary.LittleEndian.PutUint32(buffer[chainhash.HashLength:], point.Index)
	return buffer
}

// Pop reverses the confirmed block at height, which must be the
// current tip, returning it reconstructed from the transaction
// offsets recorded alongside it.
func (db *DB) Pop(height uint64) (*wire.Block, error) {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if err := db.beginWrite(); nil != err {
		return nil, err
	}
	block, err := db.doPop(height)
	if nil != err {
		return nil, db.failWrite(err)
	}
	db.blocksPopped.Inc()
	if err := db.endWrite(); nil != err {
		return nil, err
	}
	return block, nil
}

func (db *DB) doPop(height uint64) (*wire.Block, error) {
	tipHeight, ok := db.blocks.Height()
	if !ok || height != tipHeight {
		return nil, fault.ErrNotFound
	}

	row, err := db.blocks.Get(height)
	if nil != err {
		return nil, err
	}

	txs := make([]*wire.Tx, len(row.TxOffsets))
	for i, offset := range row.TxOffsets {
		result, err := db.tx.GetByOffset(offset)
		if nil != err {
			return nil, err
		}
		tx, err := result.Transaction()
		result.Close()
		if nil != err {
			return nil, err
		}
		txs[i] = tx
	}

	block := &wire.Block{Header: row.Header, Transactions: txs}

	if db.indexAddresses {
		if err := db.unindexBlock(block); nil != err {
			return nil, err
		}
	}

	if err := db.unrecordMiner(block, height); nil != err {
		return nil, err
	}

	for _, offset := range row.TxOffsets {
		if err := db.tx.PoolByOffset(offset); nil != err {
			return nil, err
		}
	}

	if err := db.blocks.Pop(height); nil != err {
		return nil, err
	}

	return block, nil
}

// unrecordMiner reverses recordMiner. The miner side table keeps only
// the single most recent block per address, not a history, so there
// is no earlier value to restore on pop; if the address's recorded
// entry is exactly the block being popped, clearing it is the correct
// reversal back to the pre-push state.
func (db *DB) unrecordMiner(block *wire.Block, height uint64) error {
	coinbase := block.Transactions[0]
	if !coinbase.IsCoinbase() || 0 == len(coinbase.Outputs) {
		return nil
	}
	addressHash, ok := db.resolver.Resolve(coinbase.Outputs[0].Script)
	if !ok {
		return nil
	}
	recordedHeight, _, found, err := db.blocks.LastBlockByMiner(addressHash)
	if nil != err {
		return err
	}
	if !found || recordedHeight != height {
		return nil
	}
	return db.blocks.DeleteMiner(addressHash)
}

// unindexBlock reverses indexBlock's writes for block, in the exact
// reverse of the order indexBlock added them: historydb.Store.RemoveLast
// pops the most recently added record for an address, and the multimap
// underneath has no notion of which block a record came from, so
// undoing out of order would pop a different transaction's entry.
// Stealth sightings stay put, same as indexBlock's own §9 no-op for
// unindexing them.
func (db *DB) unindexBlock(block *wire.Block) error {
	for i := len(block.Transactions) - 1; i >= 0; i-- {
		tx := block.Transactions[i]

		for outputIndex := len(tx.Outputs) - 1; outputIndex >= 0; outputIndex-- {
			if addressHash, ok := db.resolver.Resolve(tx.Outputs[outputIndex].Script); ok {
				if err := db.history.RemoveLast(addressHash); nil != err {
					return err
				}
			}
		}

		if tx.IsCoinbase() {
			continue
		}
		for inputIndex := len(tx.Inputs) - 1; inputIndex >= 0; inputIndex-- {
			input := tx.Inputs[inputIndex]
			if addressHash, ok := db.resolver.Resolve(input.Script); ok {
				if err := db.history.RemoveLast(addressHash); nil != err {
					return err
				}
			}
			if err := db.spends.Delete(input.PreviousOutput); nil != err {
				return err
			}
		}
	}
	return nil
}

// Reorganize pops every block above forkPoint into outgoing, ascending
// by height (outgoing[0] is forkPoint.Height+1's block), then pushes
// incoming in order above forkPoint, all under one flush bracket.
// outgoing's length must match what is actually popped; the caller
// supplies it pre-sized so this fills it in place rather than
// allocating a result slice of its own.
func (db *DB) Reorganize(forkPoint wire.Checkpoint, incoming, outgoing []*wire.Block) error {
	if forkPoint.Height > math.MaxUint64-uint64(len(incoming)) {
		return fault.ErrForkPointOutOfRange
	}

	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if err := db.beginWrite(); nil != err {
		return err
	}

	tipHeight, ok := db.blocks.Height()
	if !ok || tipHeight < forkPoint.Height || uint64(len(outgoing)) != tipHeight-forkPoint.Height {
		return db.failWrite(fault.ErrForkPointOutOfRange)
	}

	for h := tipHeight; h > forkPoint.Height; h-- {
		block, err := db.doPop(h)
		if nil != err {
			return db.failWrite(err)
		}
		outgoing[h-forkPoint.Height-1] = block
		db.blocksPopped.Inc()
	}

	for i, block := range incoming {
		height := forkPoint.Height + 1 + uint64(i)
		if err := db.doPushBlock(block, height); nil != err {
			return db.failWrite(err)
		}
		db.blocksPushed.Inc()
	}

	return db.endWrite()
}
