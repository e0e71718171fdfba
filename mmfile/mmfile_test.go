// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmfile_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/mmfile"
)

func tempFilename(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.dat")
}

func TestOpenCreatesFile(t *testing.T) {
	filename := tempFilename(t)

	var remapMutex sync.RWMutex
	f, err := mmfile.Open(filename, &remapMutex)
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, f.Size() > 0)
	_, err = os.Stat(filename)
	assert.NoError(t, err)
}

func TestReserveGrows(t *testing.T) {
	filename := tempFilename(t)

	var remapMutex sync.RWMutex
	f, err := mmfile.Open(filename, &remapMutex)
	require.NoError(t, err)
	defer f.Close()

	initial := f.Size()
	target := initial + 1024*1024

	require.NoError(t, f.Reserve(target))
	assert.True(t, f.Size() >= target)
	assert.True(t, f.Size() >= target*3/2 || f.Size() == target)
}

func TestReserveNoGrowthWhenAlreadyLargeEnough(t *testing.T) {
	filename := tempFilename(t)

	var remapMutex sync.RWMutex
	f, err := mmfile.Open(filename, &remapMutex)
	require.NoError(t, err)
	defer f.Close()

	size := f.Size()
	require.NoError(t, f.Reserve(size/2))
	assert.Equal(t, size, f.Size())
}

func TestWriteSurvivesResize(t *testing.T) {
	filename := tempFilename(t)

	var remapMutex sync.RWMutex
	f, err := mmfile.Open(filename, &remapMutex)
	require.NoError(t, err)
	defer f.Close()

	data := f.Data()
	copy(data, []byte("hello"))

	require.NoError(t, f.Reserve(f.Size()+1024*1024))

	data = f.Data()
	assert.Equal(t, []byte("hello"), data[:5])
}

func TestFlushAndClose(t *testing.T) {
	filename := tempFilename(t)

	var remapMutex sync.RWMutex
	f, err := mmfile.Open(filename, &remapMutex)
	require.NoError(t, err)

	assert.NoError(t, f.Flush())
	assert.NoError(t, f.Close())
}

func TestReopenPreservesSize(t *testing.T) {
	filename := tempFilename(t)

	var remapMutex sync.RWMutex
	f, err := mmfile.Open(filename, &remapMutex)
	require.NoError(t, err)
	require.NoError(t, f.Reserve(f.Size()+2*1024*1024))
	size := f.Size()
	require.NoError(t, f.Close())

	var remapMutex2 sync.RWMutex
	f2, err := mmfile.Open(filename, &remapMutex2)
	require.NoError(t, err)
	defer f2.Close()

	assert.Equal(t, size, f2.Size())
}
