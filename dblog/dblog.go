// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package dblog is the storage engine's shared logging convention: one
// place that ties every package's per-component logger to a common tag
// prefix, the way reservoir/setup.go's globalDataType.log field and
// storage/handle.go's per-pool logger both drew from logger.New without
// agreeing on a shared naming scheme. Packages here use dblog.New
// instead of calling logger.New directly so a log viewer can group every
// storage component under one prefix.
package dblog

import "github.com/bitmark-inc/logger"

const tagPrefix = "storage-"

// New returns a per-component logger tagged "storage-<name>".
func New(name string) *logger.L {
	return logger.New(tagPrefix + name)
}

// CriticalIfError logs err as critical through log, tagged with
// context, and returns err unchanged so a caller can log-and-propagate
// in one line instead of storage/handle.go's harder logger.PanicIfError.
func CriticalIfError(log *logger.L, context string, err error) error {
	if nil != err {
		log.Criticalf("%s: %s", context, err)
	}
	return err
}
