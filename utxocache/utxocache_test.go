// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxocache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/utxocache"
	"github.com/bitmark-inc/bitmarkd/wire"
)

func sampleTx() *wire.Tx {
	return &wire.Tx{
		Version: 1,
		Inputs: []wire.Input{
			{PreviousOutput: wire.OutputPoint{Hash: chainhash.DoubleSHA256([]byte("prev")), Index: 0}},
		},
		Outputs: []wire.Output{
			{Value: 1000, Script: []byte{0x01}},
			{Value: 2000, Script: []byte{0x02}},
		},
	}
}

func TestAddAndPopulate(t *testing.T) {
	c := utxocache.New(16)
	tx := sampleTx()

	c.Add(tx, 10, true)

	point := wire.OutputPoint{Hash: tx.Hash(), Index: 0}
	out, ok := c.Populate(point)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), out.Value)
	assert.Equal(t, uint64(10), out.Height)
}

func TestAddNotConfirmingIsNoop(t *testing.T) {
	c := utxocache.New(16)
	tx := sampleTx()

	c.Add(tx, 10, false)

	point := wire.OutputPoint{Hash: tx.Hash(), Index: 0}
	_, ok := c.Populate(point)
	assert.False(t, ok)
}

func TestRemoveEvicts(t *testing.T) {
	c := utxocache.New(16)
	tx := sampleTx()
	c.Add(tx, 10, true)

	point := wire.OutputPoint{Hash: tx.Hash(), Index: 0}
	c.Remove(point)

	_, ok := c.Populate(point)
	assert.False(t, ok)
}

func TestCapacityEviction(t *testing.T) {
	c := utxocache.New(2)

	for i := 0; i < 5; i++ {
		tx := &wire.Tx{
			Version: uint32(i + 1),
			Outputs: []wire.Output{{Value: uint64(i), Script: []byte{byte(i)}}},
		}
		c.Add(tx, uint64(i), true)
	}

	// only the most recently added entries should remain reachable;
	// the very first tx's output should have been evicted by now.
	firstTx := &wire.Tx{Version: 1, Outputs: []wire.Output{{Value: 0, Script: []byte{0}}}}
	_, ok := c.Populate(wire.OutputPoint{Hash: firstTx.Hash(), Index: 0})
	assert.False(t, ok)
}

func TestPopulateMissing(t *testing.T) {
	c := utxocache.New(4)
	_, ok := c.Populate(wire.OutputPoint{})
	assert.False(t, ok)
}
