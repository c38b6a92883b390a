// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import (
	"sync"
	"unsafe"
)

// CAllocator is the system-heap passthrough: the one trivially constructible
// ThreadsafeHeap. It is useful when generic allocator operations are wanted
// without a bounded backing buffer, and for passing as the parent of other
// allocators. Its zero value is ready for use.
//
// CAllocator is abstraction-breaking in two ways: RemapBytes always fails,
// because the system heap cannot guarantee non-moving growth, and OnDestroy
// always fails, because the process-lifetime system heap is not owned by this
// wrapper. Nest another allocator inside it to get either.
//
// CAllocator is reentrant: all methods may be called concurrently.
type CAllocator struct {
	mu   sync.Mutex
	heap sysheap
}

var _ ThreadsafeHeap = (*CAllocator)(nil)

// Kind implements Basic.
func (c *CAllocator) Kind() Kind { return KindCAllocator }

// AllocBytes implements Basic. The type hash is ignored: the system heap is
// untyped.
func (c *CAllocator) AllocBytes(size int, alignExp uint8, typehash uint64) ([]byte, error) {
	if size <= 0 {
		return nil, &ErrINVAL{"CAllocator.AllocBytes: invalid size", size}
	}

	if alignExp >= invalidAlignmentExponent || alignExp > 5 { // 2^5 == mallocAlign
		return nil, &ErrTooAligned{Src: "CAllocator.AllocBytes", Exponent: alignExp, Max: mallocAlign}
	}

	c.mu.Lock()
	b, err := c.heap.malloc(size)
	c.mu.Unlock()
	if err != nil {
		return nil, &ErrOOM{Src: "CAllocator.AllocBytes", More: err}
	}

	return b, nil
}

// RemapBytes implements Stack. It always fails: the system allocator cannot
// guarantee non-moving growth.
func (c *CAllocator) RemapBytes(mem []byte, oldHash uint64, newSize int, newHash uint64) ([]byte, error) {
	return nil, &ErrINVAL{"CAllocator.RemapBytes", "the system heap cannot remap"}
}

// FreeBytes implements Stack. mem must have been returned by AllocBytes or
// ThreadsafeReallocBytes of this allocator.
func (c *CAllocator) FreeBytes(mem []byte, typehash uint64) error {
	c.mu.Lock()
	err := c.heap.free(mem)
	c.mu.Unlock()
	if err != nil {
		return &ErrOS{Src: "CAllocator.FreeBytes", Err: err}
	}

	return nil
}

// FreeStatus implements Stack. The system heap does not track freed status.
func (c *CAllocator) FreeStatus(mem []byte, typehash uint64) error { return nil }

// ThreadsafeReallocBytes implements ThreadsafeHeap.
func (c *CAllocator) ThreadsafeReallocBytes(mem []byte, oldHash uint64, newSize int, newHash uint64) ([]byte, error) {
	if newSize < 0 {
		return nil, &ErrINVAL{"CAllocator.ThreadsafeReallocBytes: invalid size", newSize}
	}

	c.mu.Lock()
	b, err := c.heap.realloc(mem, newSize)
	c.mu.Unlock()
	if err != nil {
		return nil, &ErrOOM{Src: "CAllocator.ThreadsafeReallocBytes", More: err}
	}

	return b, nil
}

// Properties implements Basic: unbounded contiguous allocation at the natural
// alignment of the system heap.
func (c *CAllocator) Properties() Properties {
	return Properties{maxContiguousBytes: 0, maxAlignment: mallocAlign}
}

// OnDestroy implements Basic. It always fails; the lifetime of the system
// heap is not owned by this wrapper.
func (c *CAllocator) OnDestroy(cb DestructionCallback, userData unsafe.Pointer) error {
	return &ErrINVAL{"CAllocator.OnDestroy", "the system heap has no destruction point"}
}

// Destroy implements Basic. It releases every page this instance obtained
// from the OS; outstanding allocations become invalid.
func (c *CAllocator) Destroy() {
	c.mu.Lock()
	c.heap.close()
	c.mu.Unlock()
}

func (c *CAllocator) isStackAllocator() {}
func (c *CAllocator) isHeapAllocator()  {}
