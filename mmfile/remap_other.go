// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !linux

package mmfile

import (
	"golang.org/x/sys/unix"

	"github.com/bitmark-inc/bitmarkd/fault"
)

// remap unmaps then re-maps the file at its new size, for platforms
// without mremap(2). The caller already holds remapMutex exclusively,
// so the brief window with no mapping at all is invisible to readers.
func (f *File) remap(newSize uint64) error {
	if len(f.data) > 0 {
		if err := unix.Munmap(f.data); nil != err {
			f.log.Errorf("munmap: error: %s", err)
			f.data = nil
			f.size = 0
			return fault.ErrMapFailed
		}
	}

	data, err := unix.Mmap(int(f.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if nil != err {
		f.log.Errorf("mmap: error: %s", err)
		f.data = nil
		f.size = 0
		return fault.ErrMapFailed
	}

	f.data = data
	f.size = newSize
	return nil
}
