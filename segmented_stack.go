// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import "unsafe"

// segmentEndcap links a segment into the doubly linked chain. It leads the
// segment; items follow at the stack's itemsOffset.
type segmentEndcap struct {
	prev, next unsafe.Pointer // segment base addresses
}

const segmentEndcapSize = int(unsafe.Sizeof(segmentEndcap{}))

// SegmentedStack is a stack of elements stored in a doubly linked chain of
// fixed-count segments, each a small multiple of a cache line. Pushing and
// popping never move elements, so interior element addresses stay valid for
// an element's whole lifetime - which is what lets the allocators themselves
// use it to keep track of retired backing buffers. The chain grows by one
// segment on push into a full tail and never shrinks before Destroy.
//
// A SegmentedStack must not outlive its parent allocator.
type SegmentedStack[T any] struct {
	parent Basic
	owner  Heap // non-nil when segments are freed at Destroy

	head       unsafe.Pointer // first segment, never nil
	endSeg     unsafe.Pointer // segment containing the topmost item
	endIndex   int            // index of endSeg in the chain
	itemsInEnd int            // items in endSeg; 0 means the stack is empty

	segBytes    int
	itemsPer    int
	itemsOffset int
}

// segGeometry sizes a segment for T: the endcap plus at least one item,
// rounded up to whole cache lines.
func segGeometry[T any]() (segBytes, itemsPer, itemsOffset int) {
	size := sizeOf[T]()
	if size == 0 {
		size = 1
	}
	align := int(unsafe.Alignof(*new(T)))
	itemsOffset = roundup(segmentEndcapSize, align)
	segBytes = 64
	for segBytes < itemsOffset+size {
		segBytes += 64
	}
	itemsPer = (segBytes - itemsOffset) / size
	return segBytes, itemsPer, itemsOffset
}

// NewSegmentedStack allocates enough segments for initialItems elements from
// parent. The segments are not freed at Destroy; use this with arena-style
// parents whose memory is reclaimed wholesale.
func NewSegmentedStack[T any](parent Basic, initialItems int) (*SegmentedStack[T], error) {
	return newSegmentedStack[T](parent, nil, initialItems)
}

// NewSegmentedStackOwned is NewSegmentedStack over a heap parent; every
// segment is returned to it at Destroy.
func NewSegmentedStackOwned[T any](parent Heap, initialItems int) (*SegmentedStack[T], error) {
	return newSegmentedStack[T](parent, parent, initialItems)
}

func newSegmentedStack[T any](parent Basic, owner Heap, initialItems int) (*SegmentedStack[T], error) {
	if initialItems < 1 {
		initialItems = 1
	}

	segBytes, itemsPer, itemsOffset := segGeometry[T]()
	s := &SegmentedStack[T]{
		parent:      parent,
		owner:       owner,
		segBytes:    segBytes,
		itemsPer:    itemsPer,
		itemsOffset: itemsOffset,
	}

	needed := (initialItems + itemsPer - 1) / itemsPer
	var prev unsafe.Pointer
	for i := 0; i < needed; i++ {
		seg, err := s.allocSegment()
		if err != nil {
			// unwind what exists when the parent can take it back
			if owner != nil {
				for iter := s.head; iter != nil; {
					next := s.endcap(iter).next
					owner.FreeBytes(unsafe.Slice((*byte)(iter), segBytes), 0)
					iter = next
				}
			}
			return nil, err
		}

		s.endcap(seg).prev = prev
		if prev != nil {
			s.endcap(prev).next = seg
		} else {
			s.head = seg
		}
		prev = seg
	}
	s.endSeg = s.head
	return s, nil
}

func (s *SegmentedStack[T]) allocSegment() (unsafe.Pointer, error) {
	alignExp := alignExpOf[T]()
	if alignExp < 3 {
		alignExp = 3
	}
	b, err := s.parent.AllocBytes(s.segBytes, alignExp, 0)
	if err != nil {
		return nil, err
	}

	seg := unsafe.Pointer(&b[0])
	*s.endcap(seg) = segmentEndcap{}
	return seg, nil
}

func (s *SegmentedStack[T]) endcap(seg unsafe.Pointer) *segmentEndcap {
	return (*segmentEndcap)(seg)
}

func (s *SegmentedStack[T]) item(seg unsafe.Pointer, i int) *T {
	return (*T)(unsafe.Add(seg, s.itemsOffset+i*sizeOf[T]()))
}

// Size returns the number of elements on the stack.
func (s *SegmentedStack[T]) Size() int {
	return s.itemsPer*s.endIndex + s.itemsInEnd
}

// TryPush places v on top of the stack, allocating a fresh segment from the
// parent when the tail segment is full and no spare segment exists.
func (s *SegmentedStack[T]) TryPush(v T) error {
	if s.itemsInEnd == s.itemsPer {
		if next := s.endcap(s.endSeg).next; next != nil {
			s.endSeg = next
		} else {
			seg, err := s.allocSegment()
			if err != nil {
				return err
			}

			s.endcap(seg).prev = s.endSeg
			s.endcap(s.endSeg).next = seg
			s.endSeg = seg
		}
		s.endIndex++
		s.itemsInEnd = 0
	}

	*s.item(s.endSeg, s.itemsInEnd) = v
	s.itemsInEnd++
	return nil
}

// End returns the topmost element, or false when the stack is empty. The
// pointer stays valid until the element is popped.
func (s *SegmentedStack[T]) End() (*T, bool) {
	if s.itemsInEnd == 0 {
		return nil, false
	}

	return s.item(s.endSeg, s.itemsInEnd-1), true
}

// EndUnchecked is End for callers that know the stack is non-empty.
func (s *SegmentedStack[T]) EndUnchecked() *T {
	if s.itemsInEnd == 0 {
		panic("allo: EndUnchecked on empty SegmentedStack")
	}

	return s.item(s.endSeg, s.itemsInEnd-1)
}

// Pop removes the topmost element. Popping an empty stack does nothing. The
// segment the element lived in is kept for reuse.
func (s *SegmentedStack[T]) Pop() {
	if s.itemsInEnd == 0 {
		return
	}

	s.itemsInEnd--
	if s.itemsInEnd == 0 && s.endIndex != 0 {
		s.endIndex--
		s.endSeg = s.endcap(s.endSeg).prev
		s.itemsInEnd = s.itemsPer // earlier segments are always full
	}
}

// ForEach calls fn on every element in insertion order, oldest first.
func (s *SegmentedStack[T]) ForEach(fn func(*T)) {
	if s.itemsInEnd == 0 && s.endIndex == 0 {
		return
	}

	seg := s.head
	for index := 0; index <= s.endIndex; index++ {
		count := s.itemsPer
		if index == s.endIndex {
			count = s.itemsInEnd
		}
		for i := 0; i < count; i++ {
			fn(s.item(seg, i))
		}
		seg = s.endcap(seg).next
	}
}

// Destroy returns every segment to the owning parent. Unowned stacks leave
// their segments to the parent's lifetime.
func (s *SegmentedStack[T]) Destroy() {
	if s.owner != nil {
		for iter := s.head; iter != nil; {
			next := s.endcap(iter).next
			s.owner.FreeBytes(unsafe.Slice((*byte)(iter), s.segBytes), 0)
			iter = next
		}
		s.owner = nil
	}
	s.head = nil
	s.endSeg = nil
	s.parent = nil
	s.endIndex = 0
	s.itemsInEnd = 0
}
