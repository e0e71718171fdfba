// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txstore_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/hashtable"
	"github.com/bitmark-inc/bitmarkd/mmfile"
	"github.com/bitmark-inc/bitmarkd/slabfile"
	"github.com/bitmark-inc/bitmarkd/txresult"
	"github.com/bitmark-inc/bitmarkd/txstore"
	"github.com/bitmark-inc/bitmarkd/utxocache"
	"github.com/bitmark-inc/bitmarkd/wire"
)

func newStore(t *testing.T) (*txstore.Store, *sync.RWMutex) {
	filename := filepath.Join(t.TempDir(), "transactions.dat")
	var remapMutex sync.RWMutex
	f, err := mmfile.Open(filename, &remapMutex)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	const buckets = 16
	header, err := hashtable.Create[uint64](f, 0, buckets, hashtable.EmptySlab)
	require.NoError(t, err)

	rows, err := slabfile.New(f, buckets*8)
	require.NoError(t, err)

	table := hashtable.NewSlabTable(header, rows, chainhash.HashLength)
	cache := utxocache.New(64)

	return txstore.New(table, cache, &remapMutex, 8), &remapMutex
}

func coinbaseTx(value uint64) *wire.Tx {
	return &wire.Tx{
		Version: 1,
		Inputs: []wire.Input{
			{PreviousOutput: wire.OutputPoint{Index: 0xffffffff}, Sequence: 0xffffffff},
		},
		Outputs: []wire.Output{
			{Value: value, Script: []byte{0xaa}},
		},
	}
}

func spendingTx(point wire.OutputPoint, value uint64) *wire.Tx {
	return &wire.Tx{
		Version: 1,
		Inputs: []wire.Input{
			{PreviousOutput: point, Sequence: 0xffffffff},
		},
		Outputs: []wire.Output{
			{Value: value, Script: []byte{0xbb}},
		},
	}
}

func TestStorePoolThenConfirm(t *testing.T) {
	store, _ := newStore(t)
	tx := coinbaseTx(1000)

	_, err := store.Store(tx, txstore.MaxForkHeight, txresult.UnconfirmedPosition, txresult.StatePooled)
	require.NoError(t, err)

	result, err := store.Get(tx.Hash())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txresult.StatePooled, result.State())
	result.Close()

	_, err = store.Store(tx, 5, 0, txresult.StateConfirmed)
	require.NoError(t, err)

	result, err = store.Get(tx.Hash())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txresult.StateConfirmed, result.State())
	assert.Equal(t, uint32(5), result.Height())
	result.Close()
}

func TestGetMissingReturnsNilNoError(t *testing.T) {
	store, _ := newStore(t)

	result, err := store.Get(chainhash.DoubleSHA256([]byte("nothing")))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestSpendRequiresConfirmed(t *testing.T) {
	store, _ := newStore(t)
	tx := coinbaseTx(1000)
	_, err := store.Store(tx, txstore.MaxForkHeight, txresult.UnconfirmedPosition, txresult.StatePooled)
	require.NoError(t, err)

	point := wire.OutputPoint{Hash: tx.Hash(), Index: 0}
	err = store.Spend(point, 10)
	assert.Error(t, err)
}

func TestSpendChainAndGetOutput(t *testing.T) {
	store, _ := newStore(t)

	coinbase := coinbaseTx(1000)
	// store the coinbase confirmed at height 1, so height != 0 and it
	// is spendable.
	_, err := store.Store(coinbase, 1, 0, txresult.StateConfirmed)
	require.NoError(t, err)

	point := wire.OutputPoint{Hash: coinbase.Hash(), Index: 0}

	view, ok, err := store.GetOutput(point, txstore.MaxForkHeight)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, view.Spent)
	assert.Equal(t, uint64(1000), view.Value)

	spender := spendingTx(point, 900)
	_, err = store.Store(spender, 5, 1, txresult.StateConfirmed)
	require.NoError(t, err)

	view, ok, err = store.GetOutput(point, txstore.MaxForkHeight)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, view.Spent)

	// below the spender's height, the output is still unspent from
	// that vantage point.
	view, ok, err = store.GetOutput(point, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, view.Spent)
}

// TestGenesisCoinbaseNeverSpendable checks the store-level invariant
// against GetOutput, the only place it is enforced: the genesis
// coinbase is never reported as a populated, spendable output, even
// though an internal Spend of it (e.g. a later block's input
// referencing it) is not itself rejected.
func TestGenesisCoinbaseNeverSpendable(t *testing.T) {
	store, _ := newStore(t)
	genesis := coinbaseTx(5000000000)
	_, err := store.Store(genesis, 0, 0, txresult.StateConfirmed)
	require.NoError(t, err)

	point := wire.OutputPoint{Hash: genesis.Hash(), Index: 0}

	view, ok, err := store.GetOutput(point, txstore.MaxForkHeight)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, view)

	require.NoError(t, store.Spend(point, 1))
}

func TestPoolReversesSpend(t *testing.T) {
	store, _ := newStore(t)

	coinbase := coinbaseTx(1000)
	_, err := store.Store(coinbase, 1, 0, txresult.StateConfirmed)
	require.NoError(t, err)

	point := wire.OutputPoint{Hash: coinbase.Hash(), Index: 0}
	spender := spendingTx(point, 900)
	_, err = store.Store(spender, 5, 1, txresult.StateConfirmed)
	require.NoError(t, err)

	view, _, err := store.GetOutput(point, txstore.MaxForkHeight)
	require.NoError(t, err)
	assert.True(t, view.Spent)

	require.NoError(t, store.Pool(spender))

	view, _, err = store.GetOutput(point, txstore.MaxForkHeight)
	require.NoError(t, err)
	assert.False(t, view.Spent)

	result, err := store.Get(spender.Hash())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txresult.StatePooled, result.State())
	assert.Equal(t, txresult.UnconfirmedPosition, result.Position())
	result.Close()
}

func TestUtxoCacheServesConfirmedOutput(t *testing.T) {
	store, _ := newStore(t)
	coinbase := coinbaseTx(4200)
	_, err := store.Store(coinbase, 10, 0, txresult.StateConfirmed)
	require.NoError(t, err)

	point := wire.OutputPoint{Hash: coinbase.Hash(), Index: 0}
	view, ok, err := store.GetOutput(point, txstore.MaxForkHeight)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4200), view.Value)
	assert.Equal(t, uint32(10), view.CoinbaseHeight)
}
