// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The capability tiers all allocators are consumed through, and the small
// amount of arithmetic shared by their implementations.

package allo

import (
	"unsafe"

	"github.com/cznic/mathutil"
)

// Kind identifies the concrete type behind an allocator interface value.
type Kind byte

// Allocator kinds.
const (
	KindCAllocator Kind = iota
	KindBlockAllocator
	KindStackAllocator
	KindScratchAllocator
	KindReservationAllocator
	KindOneshotAllocator
	KindHeapAllocator
	maxKind
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindCAllocator:
		return "CAllocator"
	case KindBlockAllocator:
		return "BlockAllocator"
	case KindStackAllocator:
		return "StackAllocator"
	case KindScratchAllocator:
		return "ScratchAllocator"
	case KindReservationAllocator:
		return "ReservationAllocator"
	case KindOneshotAllocator:
		return "OneshotAllocator"
	case KindHeapAllocator:
		return "HeapAllocator"
	}
	return "<unknown allocator>"
}

// A DestructionCallback is invoked exactly once with its registered userData
// when the allocator it was registered on is destroyed. The callback value is
// stored in memory the garbage collector does not scan, so it must be a
// function or a closure the caller keeps reachable for the allocator's
// lifetime.
type DestructionCallback func(userData unsafe.Pointer)

// Properties describes what an allocator can satisfy.
type Properties struct {
	maxContiguousBytes int
	maxAlignment       int
}

// MaxContiguousBytes is the upper bound on a single allocation. Zero means
// effectively unbounded.
func (p Properties) MaxContiguousBytes() int { return p.maxContiguousBytes }

// MaxAlignment is the largest alignment, in bytes, the allocator can satisfy.
func (p Properties) MaxAlignment() int { return p.maxAlignment }

// Requirements is a client's declared upper bounds on the contiguous size and
// alignment it intends to request.
type Requirements struct {
	// MaxContiguousBytes is the largest single contiguous allocation the
	// client plans to make. Zero means the client needs an unbounded
	// allocator.
	MaxContiguousBytes int
	// MaxAlignment is the largest alignment, in bytes, the client will
	// request.
	MaxAlignment int
}

// Meets reports whether an allocator with properties p can satisfy every
// request declared by r.
func (p Properties) Meets(r Requirements) bool {
	if r.MaxContiguousBytes == 0 {
		if p.maxContiguousBytes != 0 {
			return false
		}
	} else if p.maxContiguousBytes != 0 && r.MaxContiguousBytes > p.maxContiguousBytes {
		return false
	}

	return p.maxAlignment >= r.MaxAlignment
}

// A Basic allocator can allocate, report its properties and register
// destruction callbacks. Every allocator satisfies Basic.
type Basic interface {
	// AllocBytes requests size bytes aligned to 2^alignExp, recording
	// typehash (0 for untyped bytes) for later verification. The returned
	// slice has length and capacity size.
	AllocBytes(size int, alignExp uint8, typehash uint64) ([]byte, error)

	// Properties returns what this allocator can satisfy.
	Properties() Properties

	// OnDestroy registers cb to be called with userData when the allocator
	// is destroyed. Callbacks run in reverse registration order, before the
	// allocator releases its backing memory.
	OnDestroy(cb DestructionCallback, userData unsafe.Pointer) error

	// Destroy runs all registered destruction callbacks in reverse
	// registration order and releases any owned resources. The allocator
	// must not be used afterwards.
	Destroy()

	// Kind identifies the concrete allocator.
	Kind() Kind
}

// A Stack allocator is a Basic allocator whose allocations can additionally
// be resized in place and freed, with frees required in reverse allocation
// order.
type Stack interface {
	Basic
	remapper

	// FreeBytes returns mem, allocated with typehash, to the allocator.
	FreeBytes(mem []byte, typehash uint64) error

	// FreeStatus is the dry run of FreeBytes: it returns what FreeBytes
	// would return, without mutating anything.
	FreeStatus(mem []byte, typehash uint64) error

	isStackAllocator()
}

// A Heap allocator has the Stack surface without the LIFO contract: frees and
// remaps may occur in any order.
type Heap interface {
	Stack
	isHeapAllocator()
}

// A ThreadsafeHeap is a Heap whose ThreadsafeReallocBytes may be invoked
// concurrently with itself and with AllocBytes/FreeBytes on the same
// allocator.
type ThreadsafeHeap interface {
	Heap

	// ThreadsafeReallocBytes resizes mem, moving it if necessary, atomically
	// with respect to other operations on this allocator.
	ThreadsafeReallocBytes(mem []byte, oldHash uint64, newSize int, newHash uint64) ([]byte, error)
}

// remapper is the in-place resize capability. It is part of the Stack tier
// but also satisfied by allocators outside it (the reservation allocator),
// which is how a child heap grows through a reservation parent.
type remapper interface {
	// RemapBytes resizes mem to newSize without moving it, verifying that
	// oldHash matches the recorded hash and recording newHash. The returned
	// slice has the same base address as mem.
	RemapBytes(mem []byte, oldHash uint64, newSize int, newHash uint64) ([]byte, error)
}

// freer is what a parent must provide for a child to return its backing
// buffer. Any Stack (and so any Heap) is a freer.
type freer interface {
	FreeBytes(mem []byte, typehash uint64) error
}

const (
	uintptrBits = 32 << (^uintptr(0) >> 63)

	// invalidAlignmentExponent is the sentinel "no such exponent" value: an
	// alignment of 2^wordbits is never satisfiable.
	invalidAlignmentExponent = uint8(uintptrBits)
)

// if n%m != 0 { n += m-n%m }. m must be a power of 2.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }

// alignmentExponent returns e such that 2^e == alignment, or
// invalidAlignmentExponent when alignment is not a power of two.
func alignmentExponent(alignment uintptr) uint8 {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return invalidAlignmentExponent
	}

	return uint8(mathutil.BitLenUint64(uint64(alignment)) - 1)
}

// nearestAlignmentExponent returns the exponent of the largest power of two
// dividing n. Useful for finding the alignment shared by all items in a grid
// of n-sized slots.
func nearestAlignmentExponent(n uintptr) uint8 {
	if n == 0 {
		return invalidAlignmentExponent
	}

	return uint8(mathutil.BitLenUint64(uint64(n&-n))) - 1
}

// base returns the address of the first byte of b. b must not be empty.
func base(b []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(b))) }

// contains reports whether inner lies fully within outer. Both non-empty.
func contains(outer, inner []byte) bool {
	return base(inner) >= base(outer) && base(inner)+uintptr(len(inner)) <= base(outer)+uintptr(len(outer))
}
