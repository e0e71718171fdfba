// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package historydb_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/hashtable"
	"github.com/bitmark-inc/bitmarkd/historydb"
	"github.com/bitmark-inc/bitmarkd/mmfile"
	"github.com/bitmark-inc/bitmarkd/multimap"
	"github.com/bitmark-inc/bitmarkd/recordfile"
)

const addressHashSize = 32

func newStore(t *testing.T) *historydb.Store {
	var remapMutex sync.RWMutex

	primaryFile, err := mmfile.Open(filepath.Join(t.TempDir(), "history-primary.dat"), &remapMutex)
	require.NoError(t, err)
	t.Cleanup(func() { primaryFile.Close() })

	secondaryFile, err := mmfile.Open(filepath.Join(t.TempDir(), "history-secondary.dat"), &remapMutex)
	require.NoError(t, err)
	t.Cleanup(func() { secondaryFile.Close() })

	const buckets = 16
	header, err := hashtable.Create[uint32](primaryFile, 0, buckets, hashtable.EmptyRecord)
	require.NoError(t, err)
	primary := hashtable.NewRecordTable(header, mustRecordfile(t, primaryFile, buckets*4, addressHashSize+4+4), addressHashSize, 4)

	secondary, err := recordfile.New(secondaryFile, 0, 4+historydb.RecordSize)
	require.NoError(t, err)

	mm := multimap.New(primary, secondary, historydb.RecordSize)
	return historydb.New(mm)
}

func mustRecordfile(t *testing.T, f *mmfile.File, offset, width uint64) *recordfile.Manager {
	m, err := recordfile.New(f, offset, width)
	require.NoError(t, err)
	return m
}

func addressHash(tag byte) []byte {
	hash := chainhash.DoubleSHA256([]byte{tag})
	return hash[:addressHashSize]
}

func TestAddAndHistory(t *testing.T) {
	store := newStore(t)
	address := addressHash('a')

	point1 := chainhash.DoubleSHA256([]byte("tx1"))
	point2 := chainhash.DoubleSHA256([]byte("tx2"))

	require.NoError(t, store.Add(address, historydb.Record{
		Height: 10, Kind: historydb.KindOutput, PointHash: point1, PointIndex: 0, Data: 5000,
	}))
	require.NoError(t, store.Add(address, historydb.Record{
		Height: 11, Kind: historydb.KindInput, PointHash: point2, PointIndex: 1, Data: 0xdeadbeef,
	}))

	records, err := store.History(address)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// most recently added comes first.
	assert.Equal(t, uint32(11), records[0].Height)
	assert.Equal(t, historydb.KindInput, records[0].Kind)
	assert.Equal(t, point2, records[0].PointHash)
	assert.Equal(t, uint64(0xdeadbeef), records[0].Data)

	assert.Equal(t, uint32(10), records[1].Height)
	assert.Equal(t, historydb.KindOutput, records[1].Kind)
	assert.Equal(t, uint64(5000), records[1].Data)
}

func TestHistoryEmptyForUnknownAddress(t *testing.T) {
	store := newStore(t)
	records, err := store.History(addressHash('z'))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRemoveLast(t *testing.T) {
	store := newStore(t)
	address := addressHash('a')

	require.NoError(t, store.Add(address, historydb.Record{Height: 1, Kind: historydb.KindOutput}))
	require.NoError(t, store.Add(address, historydb.Record{Height: 2, Kind: historydb.KindOutput}))

	require.NoError(t, store.RemoveLast(address))

	records, err := store.History(address)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(1), records[0].Height)
}
