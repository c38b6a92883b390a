// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import "unsafe"

// OneshotAllocator wraps a single byte buffer as its sole allocation.
// AllocBytes always fails, RemapBytes returns prefixes of the buffer and
// cannot grow past it, and FreeBytes is a no-op, so the buffer persists until
// Destroy. Its purpose is to break
// dependency cycles between allocators which need to consume a buffer they
// did not themselves allocate.
type OneshotAllocator struct {
	mem    []byte
	parent freer // when non-nil, mem is returned to it at Destroy
}

var _ Heap = (*OneshotAllocator)(nil)

// NewOneshot wraps memory without taking ownership of it.
func NewOneshot(memory []byte) (*OneshotAllocator, error) {
	if len(memory) == 0 {
		return nil, &ErrINVAL{"NewOneshot", "empty buffer"}
	}

	return &OneshotAllocator{mem: memory}, nil
}

// NewOneshotOwned wraps memory and frees it back to parent at Destroy.
// memory must have been allocated from parent.
func NewOneshotOwned(memory []byte, parent Stack) (*OneshotAllocator, error) {
	if len(memory) == 0 {
		return nil, &ErrINVAL{"NewOneshotOwned", "empty buffer"}
	}

	return &OneshotAllocator{mem: memory, parent: parent}, nil
}

// Kind implements Basic.
func (o *OneshotAllocator) Kind() Kind { return KindOneshotAllocator }

// CurrentMemory returns the wrapped buffer.
func (o *OneshotAllocator) CurrentMemory() []byte { return o.mem }

// AllocBytes implements Basic. It always fails; obtain the buffer through
// RemapBytes of CurrentMemory instead.
func (o *OneshotAllocator) AllocBytes(size int, alignExp uint8, typehash uint64) ([]byte, error) {
	return nil, &ErrOOM{Src: "OneshotAllocator.AllocBytes", More: "a oneshot allocator holds exactly one allocation"}
}

// RemapBytes implements Stack: it returns the prefix of the wrapped buffer
// when newSize fits, and cannot grow past it.
func (o *OneshotAllocator) RemapBytes(mem []byte, oldHash uint64, newSize int, newHash uint64) ([]byte, error) {
	if len(mem) == 0 || base(mem) != base(o.mem) || len(mem) > len(o.mem) {
		return nil, &ErrMemInvalid{Src: "OneshotAllocator.RemapBytes"}
	}

	if newSize > len(o.mem) {
		return nil, &ErrOOM{Src: "OneshotAllocator.RemapBytes", More: newSize}
	}

	return o.mem[:newSize], nil
}

// FreeBytes implements Stack as a no-op: the buffer remains valid until
// Destroy.
func (o *OneshotAllocator) FreeBytes(mem []byte, typehash uint64) error { return nil }

// FreeStatus implements Stack.
func (o *OneshotAllocator) FreeStatus(mem []byte, typehash uint64) error { return nil }

// Properties implements Basic.
func (o *OneshotAllocator) Properties() Properties {
	return Properties{
		maxContiguousBytes: len(o.mem),
		maxAlignment:       1 << nearestAlignmentExponent(base(o.mem)),
	}
}

// OnDestroy implements Basic. The buffer has no room reserved for callback
// entries.
func (o *OneshotAllocator) OnDestroy(cb DestructionCallback, userData unsafe.Pointer) error {
	return &ErrOOM{Src: "OneshotAllocator.OnDestroy"}
}

// Destroy implements Basic, returning the buffer to the owning parent when
// there is one.
func (o *OneshotAllocator) Destroy() {
	if o.parent != nil {
		o.parent.FreeBytes(o.mem, 0)
		o.parent = nil
	}
	o.mem = nil
}

func (o *OneshotAllocator) isStackAllocator() {}
func (o *OneshotAllocator) isHeapAllocator()  {}
