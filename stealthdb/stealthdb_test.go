// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stealthdb_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/mmfile"
	"github.com/bitmark-inc/bitmarkd/recordfile"
	"github.com/bitmark-inc/bitmarkd/stealthdb"
)

func newStore(t *testing.T) *stealthdb.Store {
	var remapMutex sync.RWMutex
	f, err := mmfile.Open(filepath.Join(t.TempDir(), "stealth.dat"), &remapMutex)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	rows, err := recordfile.New(f, 0, stealthdb.RecordSize)
	require.NoError(t, err)

	return stealthdb.New(rows)
}

func TestPushAndGet(t *testing.T) {
	store := newStore(t)

	record := stealthdb.Record{
		Height:      3,
		Prefix:      0xabcd,
		AddressHash: chainhash.DoubleSHA256([]byte("address")),
		TxHash:      chainhash.DoubleSHA256([]byte("tx")),
	}
	copy(record.EphemeralKey[:], []byte{0x02, 0x01, 0x02, 0x03})

	index, err := store.Push(record)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), index)

	got, err := store.Get(index)
	require.NoError(t, err)
	assert.Equal(t, record, got)
	assert.Equal(t, uint32(1), store.Count())
}

func TestPopStealthIsNoOp(t *testing.T) {
	store := newStore(t)

	record := stealthdb.Record{Height: 1}
	index, err := store.Push(record)
	require.NoError(t, err)

	require.NoError(t, store.PopStealth(1))

	// the row survives a pop: stealth has no unlink.
	got, err := store.Get(index)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}
