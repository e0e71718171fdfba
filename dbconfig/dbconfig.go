// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package dbconfig carries the storage engine's configuration surface.
// Reading the settings in from a file or flag set is someone else's
// job; this package only owns the struct and its defaulting.
package dbconfig

import (
	"reflect"
	"strconv"

	"github.com/mr-tron/base58"

	"github.com/bitmark-inc/bitmarkd/fault"
)

// GenesisPaymentAddressBase58 is the base58-encoded payment address the
// bundled create(genesis) smoke test attributes the genesis coinbase
// to, matching bitmarkd's own base58 address encoding.
const GenesisPaymentAddressBase58 = "eZqZCVD9PonsaAYh1fJ3Uru7pQoucHwFxsrB"

// GenesisPaymentAddress decodes GenesisPaymentAddressBase58.
func GenesisPaymentAddress() ([]byte, error) {
	decoded, err := base58.Decode(GenesisPaymentAddressBase58)
	if nil != err {
		return nil, fault.ErrInconsistentField
	}
	return decoded, nil
}

// Settings is the configuration surface the write orchestrator
// recognizes, exactly as spec section 6 lists it.
type Settings struct {
	Directory               string `default:""`
	IndexAddresses          bool   `default:"false"`
	FlushWrites             bool   `default:"true"`
	FileGrowthRate          int    `default:"50"` // percent
	CacheCapacity           int    `default:"10000"`
	BlockTableBuckets       uint64 `default:"1024"`
	TransactionTableBuckets uint64 `default:"1048576"`
	SpendTableBuckets       uint64 `default:"1048576"`
	HistoryTableBuckets     uint64 `default:"65536"`
}

// ApplyDefaults fills every zero-valued field of s from its `default`
// struct tag, mirroring the teacher's own reflect-over-tagged-fields
// scan (storage/setup.go's pool wiring) but applied to defaulting
// instead of database-handle construction.
func ApplyDefaults(s *Settings) error {
	value := reflect.ValueOf(s).Elem()
	t := value.Type()

	for i := 0; i < t.NumField(); i++ {
		field := value.Field(i)
		if !field.IsZero() {
			continue
		}

		tag, ok := t.Field(i).Tag.Lookup("default")
		if !ok || "" == tag {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(tag)
		case reflect.Bool:
			b, err := strconv.ParseBool(tag)
			if nil != err {
				return fault.ErrInconsistentField
			}
			field.SetBool(b)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(tag, 10, 64)
			if nil != err {
				return fault.ErrInconsistentField
			}
			field.SetInt(n)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n, err := strconv.ParseUint(tag, 10, 64)
			if nil != err {
				return fault.ErrInconsistentField
			}
			field.SetUint(n)
		}
	}
	return nil
}

// Validate rejects settings that ApplyDefaults cannot repair: an empty
// directory, or a growth rate / bucket count that would make the
// storage layer nonsensical.
func Validate(s Settings) error {
	if "" == s.Directory {
		return fault.ErrInconsistentField
	}
	if s.FileGrowthRate <= 0 {
		return fault.ErrInconsistentField
	}
	for _, buckets := range []uint64{s.BlockTableBuckets, s.TransactionTableBuckets, s.SpendTableBuckets, s.HistoryTableBuckets} {
		if 0 == buckets {
			return fault.ErrInconsistentField
		}
	}
	return nil
}
