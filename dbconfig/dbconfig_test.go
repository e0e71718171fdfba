// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dbconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/dbconfig"
)

func TestApplyDefaultsFillsZeroFields(t *testing.T) {
	s := dbconfig.Settings{Directory: "/var/lib/bitmarkd"}
	require.NoError(t, dbconfig.ApplyDefaults(&s))

	assert.Equal(t, "/var/lib/bitmarkd", s.Directory)
	assert.True(t, s.FlushWrites)
	assert.Equal(t, 50, s.FileGrowthRate)
	assert.Equal(t, 10000, s.CacheCapacity)
	assert.Equal(t, uint64(1024), s.BlockTableBuckets)
	assert.Equal(t, uint64(1048576), s.TransactionTableBuckets)
}

func TestApplyDefaultsDoesNotOverwriteSetFields(t *testing.T) {
	s := dbconfig.Settings{Directory: "/x", CacheCapacity: 99, BlockTableBuckets: 4}
	require.NoError(t, dbconfig.ApplyDefaults(&s))

	assert.Equal(t, 99, s.CacheCapacity)
	assert.Equal(t, uint64(4), s.BlockTableBuckets)
	assert.Equal(t, uint64(1048576), s.TransactionTableBuckets)
}

func TestValidateRejectsEmptyDirectory(t *testing.T) {
	s := dbconfig.Settings{}
	require.NoError(t, dbconfig.ApplyDefaults(&s))
	assert.Error(t, dbconfig.Validate(s))
}

func TestValidateAcceptsDefaulted(t *testing.T) {
	s := dbconfig.Settings{Directory: "/x"}
	require.NoError(t, dbconfig.ApplyDefaults(&s))
	assert.NoError(t, dbconfig.Validate(s))
}

func TestGenesisPaymentAddressDecodes(t *testing.T) {
	decoded, err := dbconfig.GenesisPaymentAddress()
	require.NoError(t, err)
	assert.NotEmpty(t, decoded)
}
