// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import "unsafe"

// A stackRecord sits, 8-byte aligned, behind every allocation and is what
// makes the O(1) rewind on free possible.
type stackRecord struct {
	prevTop  uint64
	prevHash uint64
}

const stackRecordSize = int(unsafe.Sizeof(stackRecord{}))

// StackAllocator is a LIFO bump allocator over a fixed buffer. Allocations of
// any size and alignment up to 8 succeed while space remains, but they can
// only be freed in the reverse of the order they were allocated in; the type
// hash of the most recent allocation is what enforces this. A correctly
// paired sequence of allocations and frees returns the allocator to its
// initial state.
type StackAllocator struct {
	parent   freer  // optional owner of orig
	orig     []byte // as handed in, for returning to parent
	memory   []byte // orig trimmed to an 8-aligned base
	top      int    // offset of the first available byte
	cbFloor  int    // offset where the callback region begins
	lastHash uint64
}

var _ Stack = (*StackAllocator)(nil)

// NewStackAllocator wraps memory without taking ownership of it. Bytes before
// the first 8-byte boundary of memory are discarded.
func NewStackAllocator(memory []byte) (*StackAllocator, error) {
	return newStackAllocator(memory, nil)
}

// NewStackAllocatorOwned is NewStackAllocator, but memory is returned to
// parent at Destroy. memory must have been allocated from parent.
func NewStackAllocatorOwned(memory []byte, parent Stack) (*StackAllocator, error) {
	return newStackAllocator(memory, parent)
}

func newStackAllocator(memory []byte, parent freer) (*StackAllocator, error) {
	if len(memory) == 0 {
		return nil, &ErrINVAL{"NewStackAllocator", "empty buffer"}
	}

	trimmed := memory[int(-base(memory)&7):]
	if len(trimmed) <= stackRecordSize {
		return nil, &ErrINVAL{"NewStackAllocator: buffer smaller than one bookkeeping record", len(memory)}
	}

	return &StackAllocator{
		parent:  parent,
		orig:    memory,
		memory:  trimmed,
		cbFloor: len(trimmed),
	}, nil
}

// Kind implements Basic.
func (s *StackAllocator) Kind() Kind { return KindStackAllocator }

// AllocBytes implements Basic.
func (s *StackAllocator) AllocBytes(size int, alignExp uint8, typehash uint64) ([]byte, error) {
	if size <= 0 {
		return nil, &ErrINVAL{"StackAllocator.AllocBytes: invalid size", size}
	}

	if alignExp >= invalidAlignmentExponent {
		return nil, &ErrINVAL{"StackAllocator.AllocBytes: invalid alignment exponent", alignExp}
	}

	if alignExp > 3 { // bookkeeping records cap the alignment at 8
		return nil, &ErrTooAligned{Src: "StackAllocator.AllocBytes", Exponent: alignExp, Max: 8}
	}

	rec := roundup(s.top, 8)
	user := roundup(rec+stackRecordSize, 1<<alignExp)
	end := user + size
	if end > s.cbFloor {
		return nil, &ErrOOM{Src: "StackAllocator.AllocBytes", More: size}
	}

	*(*stackRecord)(unsafe.Pointer(&s.memory[rec])) = stackRecord{
		prevTop:  uint64(s.top),
		prevHash: s.lastHash,
	}
	s.top = end
	s.lastHash = typehash
	return s.memory[user:end:end], nil
}

// freeCommon locates and validates the bookkeeping record behind mem without
// mutating anything.
func (s *StackAllocator) freeCommon(mem []byte, typehash uint64) (*stackRecord, error) {
	if typehash != s.lastHash {
		return nil, &ErrTypeMismatch{Src: "StackAllocator.FreeBytes", Want: s.lastHash, Got: typehash}
	}

	if len(mem) == 0 || !contains(s.memory, mem) {
		return nil, &ErrMemInvalid{Src: "StackAllocator.FreeBytes"}
	}

	off := int(base(mem) - base(s.memory))
	recOff := (off - stackRecordSize) &^ 7
	if recOff < 0 {
		return nil, &ErrCorrupt{Src: "StackAllocator.FreeBytes", More: off}
	}

	rec := (*stackRecord)(unsafe.Pointer(&s.memory[recOff]))
	if int(rec.prevTop) >= s.top || int(rec.prevTop) > recOff {
		return nil, &ErrCorrupt{Src: "StackAllocator.FreeBytes", More: rec.prevTop}
	}

	return rec, nil
}

// FreeBytes implements Stack. mem must be the most recent outstanding
// allocation; out-of-order frees fail without mutating state.
func (s *StackAllocator) FreeBytes(mem []byte, typehash uint64) error {
	rec, err := s.freeCommon(mem, typehash)
	if err != nil {
		return err
	}

	s.top = int(rec.prevTop)
	s.lastHash = rec.prevHash
	return nil
}

// FreeStatus implements Stack.
func (s *StackAllocator) FreeStatus(mem []byte, typehash uint64) error {
	_, err := s.freeCommon(mem, typehash)
	return err
}

// RemapBytes implements Stack. A stack allocation can never be resized in
// place; the bookkeeping of the next allocation sits directly above it.
func (s *StackAllocator) RemapBytes(mem []byte, oldHash uint64, newSize int, newHash uint64) ([]byte, error) {
	if oldHash != s.lastHash {
		return nil, &ErrINVAL{"StackAllocator.RemapBytes", "not the most recent allocation"}
	}

	return nil, &ErrOOM{Src: "StackAllocator.RemapBytes"}
}

// Properties implements Basic.
func (s *StackAllocator) Properties() Properties {
	return Properties{maxContiguousBytes: len(s.memory), maxAlignment: 8}
}

// OnDestroy implements Basic. Entries are stored at the high end of the
// buffer, growing downward toward the allocation top.
func (s *StackAllocator) OnDestroy(cb DestructionCallback, userData unsafe.Pointer) error {
	floor, err := placeCallbackEntry(s.memory, s.top, s.cbFloor, cb, userData)
	if err != nil {
		return err
	}

	s.cbFloor = floor
	return nil
}

// Destroy implements Basic.
func (s *StackAllocator) Destroy() {
	runRegionCallbacks(s.memory, s.cbFloor)
	if s.parent != nil {
		s.parent.FreeBytes(s.orig, 0)
		s.parent = nil
	}
	s.memory = nil
	s.orig = nil
}

func (s *StackAllocator) isStackAllocator() {}
