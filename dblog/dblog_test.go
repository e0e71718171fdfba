// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dblog_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/bitmarkd/dblog"
)

func TestNewReturnsUsableLogger(t *testing.T) {
	log := dblog.New("txstore")
	require.NotNil(t, log)
}

func TestCriticalIfErrorPassesThroughNil(t *testing.T) {
	log := dblog.New("database")
	assert.Nil(t, dblog.CriticalIfError(log, "flush", nil))
}

func TestCriticalIfErrorReturnsErrUnchanged(t *testing.T) {
	log := dblog.New("database")
	err := errors.New("disk full")
	assert.Equal(t, err, dblog.CriticalIfError(log, "flush", err))
}
