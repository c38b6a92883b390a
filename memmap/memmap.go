// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memmap provides the anonymous-memory primitives the allocators are
// built on: reserving address space without backing it, committing pages of a
// reservation in place, mapping committed memory directly, and unmapping.
//
// A reservation is a contiguous range of PROT_NONE (resp. MEM_RESERVE) pages.
// Committing turns a page-aligned prefix (or any page-aligned sub-range) of
// it into usable read/write memory without moving it, which is what lets the
// reservation allocator grow an allocation in place.
package memmap

import "os"

// PageSize returns the OS memory page size in bytes.
func PageSize() int { return os.Getpagesize() }

// Reserve reserves count pages of contiguous address space, committing none
// of them. hint, when non-zero, suggests a start address to the OS; the OS is
// free to ignore it. The returned slice spans the whole reservation but must
// not be accessed until (sub-ranges of) it are committed.
func Reserve(hint uintptr, count int) ([]byte, error) {
	return reserve(hint, count*PageSize())
}

// Commit makes b, a page-aligned sub-range of a reservation, readable and
// writable. The range keeps its address.
func Commit(b []byte) error { return commit(b) }

// Map maps size bytes (rounded up to a whole number of pages) of committed
// anonymous read/write memory. The returned slice covers the rounded size.
func Map(size int) ([]byte, error) {
	ps := PageSize()
	size = (size + ps - 1) &^ (ps - 1)
	return mapCommitted(size)
}

// Unmap releases a mapping or reservation previously returned by Map or
// Reserve. b must cover the entire original range.
func Unmap(b []byte) error { return unmap(b) }
