// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package memmap

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func reserve(hint uintptr, size int) ([]byte, error) {
	p, err := windows.VirtualAlloc(hint, uintptr(size),
		windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil && hint != 0 {
		// the hint may be unavailable, let the OS choose
		p, err = windows.VirtualAlloc(0, uintptr(size),
			windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	}
	if err != nil {
		return nil, errors.Wrap(err, "memmap: reserve")
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(p)), size), nil
}

func commit(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	_, err := windows.VirtualAlloc(uintptr(unsafe.Pointer(&b[0])),
		uintptr(len(b)), windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return errors.Wrap(err, "memmap: commit")
	}

	return nil
}

func mapCommitted(size int) ([]byte, error) {
	p, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, errors.Wrap(err, "memmap: map")
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(p)), size), nil
}

func unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	err := windows.VirtualFree(uintptr(unsafe.Pointer(&b[0])), 0, windows.MEM_RELEASE)
	if err != nil {
		return errors.Wrap(err, "memmap: unmap")
	}

	return nil
}
