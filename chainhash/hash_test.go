// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainhash_test

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/chainhash"
)

func TestDoubleSHA256(t *testing.T) {
	h1 := chainhash.DoubleSHA256([]byte("hello"))
	h2 := chainhash.DoubleSHA256([]byte("hello"))
	assert.Equal(t, h1, h2)

	h3 := chainhash.DoubleSHA256([]byte("world"))
	assert.NotEqual(t, h1, h3)
}

func TestHashStringRoundTrip(t *testing.T) {
	h := chainhash.DoubleSHA256([]byte("genesis"))
	s := h.String()

	// String() is big endian hex of the reversed bytes
	decoded, err := hex.DecodeString(s)
	require.NoError(t, err)
	require.Len(t, decoded, chainhash.HashLength)

	for i := 0; i < chainhash.HashLength; i++ {
		assert.Equal(t, h[i], decoded[chainhash.HashLength-1-i])
	}
}

func TestHashIsZero(t *testing.T) {
	var zero chainhash.Hash
	assert.True(t, zero.IsZero())

	h := chainhash.DoubleSHA256([]byte("x"))
	assert.False(t, h.IsZero())
}

func TestHashTextMarshal(t *testing.T) {
	h := chainhash.DoubleSHA256([]byte("round trip"))

	text, err := h.MarshalText()
	require.NoError(t, err)

	var back chainhash.Hash
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, h, back)
}

func TestHashFromBytes(t *testing.T) {
	buffer := make([]byte, chainhash.HashLength)
	for i := range buffer {
		buffer[i] = byte(i)
	}

	var h chainhash.Hash
	require.NoError(t, chainhash.FromBytes(&h, buffer))
	assert.Equal(t, buffer, h[:])

	err := chainhash.FromBytes(&h, buffer[:10])
	assert.Error(t, err)
}

func TestHashScan(t *testing.T) {
	h := chainhash.DoubleSHA256([]byte("scan me"))
	s := h.String()

	var back chainhash.Hash
	n, err := fmt.Sscan(s, &back)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, h, back)
}

func TestShortString(t *testing.T) {
	var s chainhash.Short
	for i := range s {
		s[i] = byte(i)
	}
	text := s.String()
	assert.Len(t, text, chainhash.ShortLength*2)
}
