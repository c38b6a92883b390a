// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package memmap

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func reserve(hint uintptr, size int) ([]byte, error) {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(hint), uintptr(size),
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "memmap: reserve")
	}

	return unsafe.Slice((*byte)(p), size), nil
}

func commit(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return errors.Wrap(err, "memmap: commit")
	}

	return nil
}

func mapCommitted(size int) ([]byte, error) {
	p, err := unix.MmapPtr(-1, 0, nil, uintptr(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "memmap: map")
	}

	return unsafe.Slice((*byte)(p), size), nil
}

func unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if err := unix.MunmapPtr(unsafe.Pointer(&b[0]), uintptr(len(b))); err != nil {
		return errors.Wrap(err, "memmap: unmap")
	}

	return nil
}
