// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmfile

import (
	"golang.org/x/sys/unix"

	"github.com/bitmark-inc/bitmarkd/fault"
)

// remap grows or shrinks the mapping in place with mremap(2), which on
// Linux can relocate the mapping (MREMAP_MAYMOVE) without an
// intervening unmap - avoiding the window where the file has no
// mapping at all that the portable fallback must tolerate.
func (f *File) remap(newSize uint64) error {
	data, err := unix.Mremap(f.data, int(newSize), unix.MREMAP_MAYMOVE)
	if nil != err {
		f.log.Errorf("mremap: error: %s", err)
		_ = unix.Munmap(f.data)
		f.data = nil
		f.size = 0
		return fault.ErrMapFailed
	}

	f.data = data
	f.size = newSize
	return nil
}
