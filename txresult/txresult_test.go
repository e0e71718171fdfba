// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txresult_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/chainhash"
	"github.com/bitmark-inc/bitmarkd/txresult"
	"github.com/bitmark-inc/bitmarkd/wire"
)

func sampleTx() *wire.Tx {
	return &wire.Tx{
		Version: 1,
		Inputs: []wire.Input{
			{PreviousOutput: wire.OutputPoint{Index: 0xffffffff}, Sequence: 0xffffffff},
		},
		Outputs: []wire.Output{
			{Value: 500, Script: []byte{0x01, 0x02}},
			{Value: 700, Script: []byte{0x03}},
		},
		LockTime: 0,
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	row := make([]byte, txresult.MetadataSize)
	m := txresult.Metadata{Height: 123456, Position: 7, State: txresult.StateConfirmed}
	txresult.EncodeMetadata(row, m)
	assert.Equal(t, m, txresult.DecodeMetadata(row))
}

func TestRecordRoundTrip(t *testing.T) {
	record := txresult.FromWireTx(sampleTx())
	record.Outputs[1].SpenderHeight = 999

	encoded := record.Encode()
	decoded, err := txresult.DecodeRecord(encoded)
	require.NoError(t, err)

	require.Len(t, decoded.Outputs, 2)
	assert.Equal(t, uint64(500), decoded.Outputs[0].Value)
	assert.Equal(t, txresult.NotSpent, decoded.Outputs[0].SpenderHeight)
	assert.Equal(t, uint64(700), decoded.Outputs[1].Value)
	assert.Equal(t, uint32(999), decoded.Outputs[1].SpenderHeight)
	assert.Equal(t, record.LockTime, decoded.LockTime)
	assert.Equal(t, record.Version, decoded.Version)
}

func TestOutputPrefixOffset(t *testing.T) {
	record := txresult.FromWireTx(sampleTx())
	encoded := record.Encode()

	offset0, err := txresult.OutputPrefixOffset(encoded, 0)
	require.NoError(t, err)
	offset1, err := txresult.OutputPrefixOffset(encoded, 1)
	require.NoError(t, err)

	assert.Less(t, offset0, offset1)

	// reading a 4-byte spender_height at each offset should line up with
	// what DecodeRecord itself reported.
	decoded, err := txresult.DecodeRecord(encoded)
	require.NoError(t, err)

	spender0 := txresult.LoadSpenderHeight(encoded[offset0:])
	spender1 := txresult.LoadSpenderHeight(encoded[offset1:])
	assert.Equal(t, decoded.Outputs[0].SpenderHeight, spender0)
	assert.Equal(t, decoded.Outputs[1].SpenderHeight, spender1)
}

func TestOutputPrefixOffsetOutOfRange(t *testing.T) {
	record := txresult.FromWireTx(sampleTx())
	encoded := record.Encode()

	_, err := txresult.OutputPrefixOffset(encoded, 5)
	assert.Error(t, err)
}

func TestSpenderHeightRoundTrip(t *testing.T) {
	prefix := make([]byte, 5)
	txresult.StoreSpenderHeight(prefix, 42)
	assert.Equal(t, uint32(42), txresult.LoadSpenderHeight(prefix))
}

func newConfirmedResult(t *testing.T, height uint32, outputSpenders []uint32) *txresult.Result {
	record := txresult.FromWireTx(sampleTx())
	for i, spender := range outputSpenders {
		record.Outputs[i].SpenderHeight = spender
	}

	row := make([]byte, txresult.MetadataSize)
	txresult.EncodeMetadata(row, txresult.Metadata{
		Height:   height,
		Position: 3,
		State:    txresult.StateConfirmed,
	})
	row = append(row, record.Encode()...)

	var mutex sync.RWMutex
	pool := txresult.NewPool(&mutex, 4)

	hash := chainhash.DoubleSHA256([]byte("tx"))
	result, err := txresult.NewResult(pool, 0x1000, hash, row)
	require.NoError(t, err)
	t.Cleanup(result.Close)
	return result
}

func TestResultOutput(t *testing.T) {
	result := newConfirmedResult(t, 200, []uint32{100, txresult.NotSpent})

	assert.Equal(t, txresult.StateConfirmed, result.State())
	assert.Equal(t, uint32(200), result.Height())
	assert.Equal(t, uint16(3), result.Position())

	out0, err := result.Output(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), out0.Value)

	tx, err := result.Transaction()
	require.NoError(t, err)
	assert.Len(t, tx.Outputs, 2)
}

func TestIsSpentRequiresConfirmation(t *testing.T) {
	result := newConfirmedResult(t, 200, []uint32{100, 150})

	// forkHeight below the transaction's own confirmed height: the
	// confirmed/indexed rule rejects it outright, regardless of the
	// outputs' own spender heights.
	spent, err := result.IsSpent(150)
	require.NoError(t, err)
	assert.False(t, spent)
}

func TestIsSpentRequiresEveryOutputSpent(t *testing.T) {
	// only output 0 has a spender; output 1 is still unspent.
	result := newConfirmedResult(t, 200, []uint32{100, txresult.NotSpent})

	spent, err := result.IsSpent(250)
	require.NoError(t, err)
	assert.False(t, spent)
}

func TestIsSpentTrueWhenAllOutputsSpentAtOrBelowForkHeight(t *testing.T) {
	result := newConfirmedResult(t, 200, []uint32{100, 220})

	spent, err := result.IsSpent(250)
	require.NoError(t, err)
	assert.True(t, spent)

	// rewinding the fork back past output 1's spender makes it
	// unspent again from that vantage point.
	spent, err = result.IsSpent(210)
	require.NoError(t, err)
	assert.False(t, spent)
}

func TestResultOutputIndexOutOfRange(t *testing.T) {
	record := txresult.FromWireTx(sampleTx())
	row := make([]byte, txresult.MetadataSize)
	txresult.EncodeMetadata(row, txresult.Metadata{State: txresult.StatePooled, Position: txresult.UnconfirmedPosition})
	row = append(row, record.Encode()...)

	var mutex sync.RWMutex
	pool := txresult.NewPool(&mutex, 1)

	result, err := txresult.NewResult(pool, 1, chainhash.Hash{}, row)
	require.NoError(t, err)
	defer result.Close()

	_, err = result.Output(9)
	assert.Error(t, err)
}

func TestPoolBoundsConcurrentPins(t *testing.T) {
	var mutex sync.RWMutex
	pool := txresult.NewPool(&mutex, 1)

	record := txresult.FromWireTx(sampleTx())
	row := make([]byte, txresult.MetadataSize)
	txresult.EncodeMetadata(row, txresult.Metadata{State: txresult.StateConfirmed})
	row = append(row, record.Encode()...)

	first, err := txresult.NewResult(pool, 1, chainhash.Hash{}, row)
	require.NoError(t, err)

	// capacity is 1: acquiring a second distinct id evicts and releases
	// the first pin. Once the second is closed as well, an exclusive lock
	// must not deadlock even though first.Close has not been called yet.
	second, err := txresult.NewResult(pool, 2, chainhash.Hash{}, row)
	require.NoError(t, err)
	second.Close()

	locked := make(chan struct{})
	go func() {
		mutex.Lock()
		mutex.Unlock()
		close(locked)
	}()

	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("exclusive lock did not become available after eviction")
	}

	first.Close()
}
