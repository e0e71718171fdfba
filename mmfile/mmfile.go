// Copyright (c) 2014-2016 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mmfile provides a growable, memory-mapped file. Growth is
// 1.5x the requested size, matching the store's amortised-append
// usage pattern; every grow-or-shrink operation takes the shared
// remap mutex exclusively so that accessors holding the mapping under
// a shared lock never see the backing slice change underneath them.
package mmfile

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bitmark-inc/bitmarkd/dblog"
	"github.com/bitmark-inc/bitmarkd/fault"
	"github.com/bitmark-inc/logger"
)

// File is a single memory mapped, growable file.
type File struct {
	log        *logger.L
	file       *os.File
	data       []byte
	size       uint64
	remapMutex *sync.RWMutex
}

// Open maps filename for read/write, creating it if absent.
//
// remapMutex is shared by every table built on top of this file; Open
// takes it exclusively only for the duration of the initial mapping.
func Open(filename string, remapMutex *sync.RWMutex) (*File, error) {
	log := dblog.New("mmfile")

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0600)
	if nil != err {
		log.Errorf("open: %q  error: %s", filename, err)
		return nil, fault.ErrFileOpenFailed
	}

	info, err := f.Stat()
	if nil != err {
		f.Close()
		return nil, fault.ErrFileOpenFailed
	}

	size := uint64(info.Size())
	if 0 == size {
		size = initialFileSize
		if err := f.Truncate(int64(size)); nil != err {
			f.Close()
			return nil, fault.ErrFileOpenFailed
		}
	}

	remapMutex.Lock()
	defer remapMutex.Unlock()

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if nil != err {
		log.Errorf("mmap: %q  error: %s", filename, err)
		f.Close()
		return nil, fault.ErrMapFailed
	}

	return &File{
		log:        log,
		file:       f,
		data:       data,
		size:       size,
		remapMutex: remapMutex,
	}, nil
}

// smallest file a fresh table is created with
const initialFileSize = 64 * 1024

// Data returns the current mapping. Callers must hold remapMutex
// (shared is sufficient) for as long as they retain the slice.
func (f *File) Data() []byte {
	return f.data
}

// RLock takes the shared side of the remap mutex, blocking until any
// in-progress Reserve/Resize completes. A reader that walks multiple
// offsets into Data() across several calls must hold this for the
// whole walk, not re-acquire it per call, or a grow between calls can
// move the mapping out from under it.
func (f *File) RLock() {
	f.remapMutex.RLock()
}

// RUnlock releases the shared lock taken by RLock.
func (f *File) RUnlock() {
	f.remapMutex.RUnlock()
}

// Size returns the current mapped size in bytes.
func (f *File) Size() uint64 {
	return f.size
}

// Reserve grows the mapping to at least n bytes, using the teacher's
// 1.5x amortised growth rule; a no-op when n is already covered.
func (f *File) Reserve(n uint64) error {
	if n <= f.size {
		return nil
	}
	return f.Resize(n * 3 / 2)
}

// Resize truncates the underlying file to exactly newSize and remaps it.
func (f *File) Resize(newSize uint64) error {
	f.remapMutex.Lock()
	defer f.remapMutex.Unlock()

	if err := f.file.Truncate(int64(newSize)); nil != err {
		f.log.Errorf("truncate: error: %s", err)
		return fault.ErrOutOfSpace
	}

	return f.remap(newSize)
}

// Flush synchronises the mapping and the file descriptor to disk.
func (f *File) Flush() error {
	f.remapMutex.RLock()
	defer f.remapMutex.RUnlock()

	if len(f.data) > 0 {
		if err := unix.Msync(f.data, unix.MS_SYNC); nil != err {
			return fault.ErrFlushFailed
		}
	}
	if err := f.file.Sync(); nil != err {
		return fault.ErrFlushFailed
	}
	return nil
}

// Close flushes, unmaps, and closes the file.
func (f *File) Close() error {
	if err := f.Flush(); nil != err {
		f.log.Errorf("flush on close: error: %s", err)
	}

	f.remapMutex.Lock()
	defer f.remapMutex.Unlock()

	if len(f.data) > 0 {
		if err := unix.Munmap(f.data); nil != err {
			f.log.Errorf("munmap: error: %s", err)
		}
		f.data = nil
	}

	return f.file.Close()
}
