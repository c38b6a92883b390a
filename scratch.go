// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import "unsafe"

// scratchSegment remembers a retired backing buffer together with the
// callback entries registered while it was current.
type scratchSegment struct {
	orig    []byte
	mem     []byte
	cbFloor int
}

// ScratchAllocator is a monotonic arena: allocation bumps a pointer and
// nothing is ever freed individually. When constructed over a parent heap it
// acquires a fresh buffer on exhaustion (the previous buffer's size, doubled
// until the request fits) and retains the old ones, so
// outstanding addresses stay valid until Destroy. Destruction callbacks are
// stored at the high end of the current buffer and run newest first.
type ScratchAllocator struct {
	parent       Heap // optional: growth and ownership
	orig         []byte
	memory       []byte
	top          int
	cbFloor      int
	originalSize int
	retired      *SegmentedStack[scratchSegment] // only after growth
}

var _ Basic = (*ScratchAllocator)(nil)

// NewScratch wraps memory without taking ownership; the arena cannot grow.
// Bytes before the first 8-byte boundary of memory are discarded.
func NewScratch(memory []byte) (*ScratchAllocator, error) {
	return newScratch(memory, nil)
}

// NewScratchOwned wraps memory allocated from parent. The buffer is returned
// to parent at Destroy, and the arena acquires additional buffers from parent
// when it runs out.
func NewScratchOwned(memory []byte, parent Heap) (*ScratchAllocator, error) {
	return newScratch(memory, parent)
}

func newScratch(memory []byte, parent Heap) (*ScratchAllocator, error) {
	if len(memory) == 0 {
		return nil, &ErrINVAL{"NewScratch", "empty buffer"}
	}

	trimmed := memory[int(-base(memory)&7):]
	if len(trimmed) == 0 {
		return nil, &ErrINVAL{"NewScratch: buffer too small", len(memory)}
	}

	return &ScratchAllocator{
		parent:       parent,
		orig:         memory,
		memory:       trimmed,
		cbFloor:      len(trimmed),
		originalSize: len(trimmed),
	}, nil
}

// Kind implements Basic.
func (s *ScratchAllocator) Kind() Kind { return KindScratchAllocator }

// AllocBytes implements Basic.
func (s *ScratchAllocator) AllocBytes(size int, alignExp uint8, typehash uint64) ([]byte, error) {
	if size <= 0 {
		return nil, &ErrINVAL{"ScratchAllocator.AllocBytes: invalid size", size}
	}

	if alignExp >= invalidAlignmentExponent {
		return nil, &ErrINVAL{"ScratchAllocator.AllocBytes: invalid alignment exponent", alignExp}
	}

	if maxAlign := s.Properties().maxAlignment; alignExp > nearestAlignmentExponent(uintptr(maxAlign)) {
		return nil, &ErrTooAligned{Src: "ScratchAllocator.AllocBytes", Exponent: alignExp, Max: maxAlign}
	}

	user := roundup(s.top, 1<<alignExp)
	if user+size > s.cbFloor {
		if err := s.grow(size + 1<<alignExp); err != nil {
			return nil, err
		}

		user = roundup(s.top, 1<<alignExp)
		if user+size > s.cbFloor {
			return nil, &ErrOOM{Src: "ScratchAllocator.AllocBytes", More: size}
		}
	}

	s.top = user + size
	return s.memory[user : user+size : user+size], nil
}

// grow retires the current buffer and installs a fresh one from the parent,
// at least as large as the previous one.
func (s *ScratchAllocator) grow(need int) error {
	if s.parent == nil {
		return &ErrOOM{Src: "ScratchAllocator.AllocBytes", More: need}
	}

	if s.retired == nil {
		st, err := NewSegmentedStackOwned[scratchSegment](s.parent, 2)
		if err != nil {
			return err
		}

		s.retired = st
	}
	if err := s.retired.TryPush(scratchSegment{orig: s.orig, mem: s.memory, cbFloor: s.cbFloor}); err != nil {
		return err
	}

	newLen := roundUpToValidBuffersize(need, s.originalSize)
	b, err := s.parent.AllocBytes(newLen, 3, 0)
	if err != nil {
		s.retired.Pop()
		return err
	}

	s.orig = b
	s.memory = b[int(-base(b)&7):]
	s.top = 0
	s.cbFloor = len(s.memory)
	s.originalSize = newLen
	return nil
}

// Properties implements Basic. The alignment bound follows the current
// buffer's base.
func (s *ScratchAllocator) Properties() Properties {
	maxAlign := 1 << nearestAlignmentExponent(base(s.memory))
	if maxAlign > 4096 {
		maxAlign = 4096
	}
	return Properties{maxContiguousBytes: len(s.memory), maxAlignment: maxAlign}
}

// OnDestroy implements Basic. Entries are stored at the high end of the
// current buffer, growing downward toward the bump pointer; registration
// fails once the two would meet.
func (s *ScratchAllocator) OnDestroy(cb DestructionCallback, userData unsafe.Pointer) error {
	floor, err := placeCallbackEntry(s.memory, s.top, s.cbFloor, cb, userData)
	if err != nil {
		return err
	}

	s.cbFloor = floor
	return nil
}

// Destroy implements Basic: callbacks run newest to oldest, current buffer
// first, then each retired buffer; owned buffers are returned to the parent.
func (s *ScratchAllocator) Destroy() {
	runRegionCallbacks(s.memory, s.cbFloor)
	if s.retired != nil {
		for {
			seg, ok := s.retired.End()
			if !ok {
				break
			}

			runRegionCallbacks(seg.mem, seg.cbFloor)
			if s.parent != nil {
				s.parent.FreeBytes(seg.orig, 0)
			}
			s.retired.Pop()
		}
		s.retired.Destroy()
		s.retired = nil
	}
	if s.parent != nil {
		s.parent.FreeBytes(s.orig, 0)
		s.parent = nil
	}
	s.memory = nil
	s.orig = nil
}
