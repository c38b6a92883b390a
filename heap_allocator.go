// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import (
	"sort"
	"unsafe"

	"github.com/cznic/sortutil"
)

// heapFreeNode occupies a free region; the free list is threaded through the
// regions themselves.
type heapFreeNode struct {
	size uintptr
	next *heapFreeNode
}

// heapBookkeeping precedes every allocation. magic is the disambiguation
// word: when alignment padding pushes the user pointer past the record, the
// word immediately before the user pointer holds the record's address
// instead, and can never equal heapMagic.
type heapBookkeeping struct {
	sizeRequested uintptr
	sizeActual    uintptr
	typehash      uint64
	magic         uintptr
}

const (
	heapFreeNodeSize    = int(unsafe.Sizeof(heapFreeNode{}))
	heapBookkeepingSize = int(unsafe.Sizeof(heapBookkeeping{}))
	heapMagic           = uintptr(0xA110C0DE)
)

// heapBuffer is one owned backing buffer in multi-segment mode.
type heapBuffer struct {
	orig []byte // as allocated from the parent
	mem  []byte // trimmed to an 8-aligned base
}

// HeapAllocator is a general-purpose allocator over one or more backing
// buffers: a first-fit walk of an explicit free list, with a bookkeeping
// record behind every allocation. Frees and remaps may occur in any order.
//
// When constructed over a parent, an exhausted heap first tries to grow its
// current buffer in place through the parent's RemapBytes (a
// ReservationAllocator parent makes this reliable); failing that it acquires
// a fresh buffer from the parent and retains the old ones, so outstanding
// addresses remain valid until Destroy.
type HeapAllocator struct {
	parent       Basic // optional
	orig         []byte
	memory       []byte // orig trimmed to an 8-aligned base
	originalSize int    // growth doubling base
	head         *heapFreeNode
	retired      *SegmentedStack[heapBuffer] // only in multi-segment mode

	cbEnd   *callbackNode
	cbCount int
}

var _ Heap = (*HeapAllocator)(nil)

// NewHeapAllocator wraps memory without taking ownership of it; the heap
// cannot grow. Bytes before the first 8-byte boundary of memory are
// discarded.
func NewHeapAllocator(memory []byte) (*HeapAllocator, error) {
	return newHeapAllocator(memory, nil)
}

// NewHeapAllocatorOwned wraps memory allocated from parent. The heap grows
// through the parent when exhausted and returns every buffer it owns at
// Destroy, provided the parent can free.
func NewHeapAllocatorOwned(memory []byte, parent Basic) (*HeapAllocator, error) {
	return newHeapAllocator(memory, parent)
}

func newHeapAllocator(memory []byte, parent Basic) (*HeapAllocator, error) {
	if len(memory) == 0 {
		return nil, &ErrINVAL{"NewHeapAllocator", "empty buffer"}
	}

	trimmed := memory[int(-base(memory)&7):]
	if len(trimmed) < heapBookkeepingSize+heapFreeNodeSize {
		return nil, &ErrINVAL{"NewHeapAllocator: buffer too small", len(memory)}
	}

	h := &HeapAllocator{
		parent:       parent,
		orig:         memory,
		memory:       trimmed,
		originalSize: len(memory),
	}
	h.head = (*heapFreeNode)(unsafe.Pointer(&trimmed[0]))
	*h.head = heapFreeNode{size: uintptr(len(trimmed))}
	return h, nil
}

// Kind implements Basic.
func (h *HeapAllocator) Kind() Kind { return KindHeapAllocator }

// roundUpToValidBuffersize returns the smallest power-of-two multiple of
// original that is >= needed.
func roundUpToValidBuffersize(needed, original int) int {
	if original <= 0 {
		return needed
	}

	m := original
	for m < needed {
		m <<= 1
	}
	return m
}

// AllocBytes implements Basic: first fit over the free list, growing through
// the parent and retrying once when no node is large enough.
func (h *HeapAllocator) AllocBytes(size int, alignExp uint8, typehash uint64) ([]byte, error) {
	if size <= 0 {
		return nil, &ErrINVAL{"HeapAllocator.AllocBytes: invalid size", size}
	}

	if alignExp >= invalidAlignmentExponent {
		return nil, &ErrINVAL{"HeapAllocator.AllocBytes: invalid alignment exponent", alignExp}
	}

	if alignExp > 12 { // 2^12, the page
		return nil, &ErrTooAligned{Src: "HeapAllocator.AllocBytes", Exponent: alignExp, Max: 4096}
	}

	// 8 bytes is the minimum: free nodes and bookkeeping records share
	// allocations, and both are 8-aligned
	if alignExp < 3 {
		alignExp = 3
	}
	align := uintptr(1) << alignExp

	if mem, ok := h.allocFrom(size, align, typehash); ok {
		return mem, nil
	}

	actualSize := size + int(align) + heapBookkeepingSize
	if err := h.tryMakeSpaceForAtLeast(actualSize); err != nil {
		return nil, err
	}

	if mem, ok := h.allocFrom(size, align, typehash); ok {
		return mem, nil
	}

	return nil, &ErrOOM{Src: "HeapAllocator.AllocBytes", More: size}
}

// allocFrom walks the free list for the first node that can hold a
// bookkeeping record plus size user bytes at the given alignment.
func (h *HeapAllocator) allocFrom(size int, align uintptr, typehash uint64) ([]byte, bool) {
	var prev *heapFreeNode
	for iter := h.head; iter != nil; prev, iter = iter, iter.next {
		nodeAddr := uintptr(unsafe.Pointer(iter))
		nodeEnd := nodeAddr + iter.size
		user := (nodeAddr + uintptr(heapBookkeepingSize) + align - 1) &^ (align - 1)
		end := user + uintptr(size)
		if end > nodeEnd {
			continue
		}

		// split the remainder off as a new free node when it can hold one
		remStart := (end + 7) &^ 7
		var sizeActual uintptr
		if remStart+uintptr(heapFreeNodeSize) <= nodeEnd {
			newNode := (*heapFreeNode)(unsafe.Pointer(remStart))
			*newNode = heapFreeNode{size: nodeEnd - remStart, next: iter.next}
			if prev != nil {
				prev.next = newNode
			} else {
				h.head = newNode
			}
			sizeActual = remStart - nodeAddr
		} else {
			if prev != nil {
				prev.next = iter.next
			} else {
				h.head = iter.next
			}
			sizeActual = iter.size
		}

		bk := (*heapBookkeeping)(unsafe.Pointer(nodeAddr))
		*bk = heapBookkeeping{
			sizeRequested: uintptr(size),
			sizeActual:    sizeActual,
			typehash:      typehash,
			magic:         heapMagic,
		}
		if user != nodeAddr+uintptr(heapBookkeepingSize) {
			// aligned past the record: leave its address in the word
			// before the user pointer
			*(*uintptr)(unsafe.Pointer(user - 8)) = nodeAddr
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(user)), size), true
	}
	return nil, false
}

// tryMakeSpaceForAtLeast grows the heap by bytes: in place through a
// remapping parent when possible, otherwise by switching to multi-segment
// mode and acquiring a fresh buffer. The free list is unchanged on failure.
func (h *HeapAllocator) tryMakeSpaceForAtLeast(bytes int) error {
	if h.parent == nil {
		return &ErrOOM{Src: "HeapAllocator.AllocBytes", More: bytes}
	}

	if bytes < heapFreeNodeSize+8 {
		bytes = heapFreeNodeSize + 8
	}

	if rm, ok := h.parent.(remapper); ok {
		newSize := roundUpToValidBuffersize(bytes+len(h.orig), h.originalSize)
		if b, err := rm.RemapBytes(h.orig, 0, newSize, 0); err == nil {
			oldEnd := base(h.orig) + uintptr(len(h.orig))
			h.orig = b
			h.memory = b[int(-base(b)&7):]
			h.installFreeRegion(oldEnd, base(b)+uintptr(len(b)))
			return nil
		}
		// the parent cannot grow the buffer in place; fall through to
		// acquiring a separate one
	}

	if h.retired == nil {
		var st *SegmentedStack[heapBuffer]
		var err error
		if ph, ok := h.parent.(Heap); ok {
			st, err = NewSegmentedStackOwned[heapBuffer](ph, 2)
		} else {
			st, err = NewSegmentedStack[heapBuffer](h.parent, 2)
		}
		if err != nil {
			return err
		}

		h.retired = st
	}

	if err := h.retired.TryPush(heapBuffer{orig: h.orig, mem: h.memory}); err != nil {
		return err
	}

	b, err := h.parent.AllocBytes(roundUpToValidBuffersize(bytes, h.originalSize), 3, 0)
	if err != nil {
		h.retired.Pop()
		return err
	}

	h.orig = b
	h.memory = b[int(-base(b)&7):]
	h.originalSize = len(b)
	h.installFreeRegion(base(h.memory), base(h.memory)+uintptr(len(h.memory)))
	return nil
}

// installFreeRegion links [start, end) into the free list as one node.
func (h *HeapAllocator) installFreeRegion(start, end uintptr) {
	start = (start + 7) &^ 7
	if start+uintptr(heapFreeNodeSize) > end {
		return
	}

	node := (*heapFreeNode)(unsafe.Pointer(start))
	*node = heapFreeNode{size: end - start, next: h.head}
	h.head = node
}

// owningBuffer returns the buffer [addr, addr+size) lies in, if any.
func (h *HeapAllocator) owningBuffer(addr, size uintptr) ([]byte, bool) {
	in := func(mem []byte) bool {
		return addr >= base(mem) && addr+size <= base(mem)+uintptr(len(mem))
	}
	if in(h.memory) {
		return h.memory, true
	}

	var owner []byte
	if h.retired != nil {
		h.retired.ForEach(func(b *heapBuffer) {
			if in(b.mem) {
				owner = b.mem
			}
		})
	}
	return owner, owner != nil
}

// ownsRegion reports whether [addr, addr+size) lies in one of the heap's
// buffers.
func (h *HeapAllocator) ownsRegion(addr, size uintptr) bool {
	_, ok := h.owningBuffer(addr, size)
	return ok
}

// freeCommon recovers and validates the bookkeeping record behind mem.
func (h *HeapAllocator) freeCommon(mem []byte, typehash uint64) (*heapBookkeeping, error) {
	if len(mem) == 0 {
		return nil, &ErrMemInvalid{Src: "HeapAllocator.FreeBytes"}
	}

	buf, ok := h.owningBuffer(base(mem), uintptr(len(mem)))
	if !ok {
		return nil, &ErrMemInvalid{Src: "HeapAllocator.FreeBytes"}
	}

	// every allocation has its record, and so at least a record's worth of
	// buffer, below it
	if base(mem)-base(buf) < uintptr(heapBookkeepingSize) {
		return nil, &ErrMemInvalid{Src: "HeapAllocator.FreeBytes"}
	}

	user := base(mem)
	word := *(*uintptr)(unsafe.Pointer(user - 8))
	var bk *heapBookkeeping
	if word == heapMagic {
		bk = (*heapBookkeeping)(unsafe.Pointer(user - uintptr(heapBookkeepingSize)))
	} else {
		if !h.ownsRegion(word, uintptr(heapBookkeepingSize)) {
			return nil, &ErrCorrupt{Src: "HeapAllocator.FreeBytes: bookkeeping pointer out of range", More: word}
		}

		bk = (*heapBookkeeping)(unsafe.Pointer(word))
		if bk.magic != heapMagic {
			return nil, &ErrCorrupt{Src: "HeapAllocator.FreeBytes: bookkeeping magic overwritten", More: bk.magic}
		}
	}
	if bk.sizeRequested != uintptr(len(mem)) {
		return nil, &ErrMemInvalid{Src: "HeapAllocator.FreeBytes: size does not match allocation", More: len(mem)}
	}

	if bk.typehash != typehash {
		return nil, &ErrTypeMismatch{Src: "HeapAllocator.FreeBytes", Want: bk.typehash, Got: typehash}
	}

	return bk, nil
}

// FreeBytes implements Heap: the record and payload become a free node pushed
// at the head of the list.
func (h *HeapAllocator) FreeBytes(mem []byte, typehash uint64) error {
	bk, err := h.freeCommon(mem, typehash)
	if err != nil {
		return err
	}

	node := (*heapFreeNode)(unsafe.Pointer(bk))
	size := bk.sizeActual
	*node = heapFreeNode{size: size, next: h.head}
	h.head = node
	return nil
}

// FreeStatus implements Stack.
func (h *HeapAllocator) FreeStatus(mem []byte, typehash uint64) error {
	_, err := h.freeCommon(mem, typehash)
	return err
}

// RemapBytes implements Stack: a heap allocation can only shrink in place;
// the space past it belongs to a neighbor or the free list.
func (h *HeapAllocator) RemapBytes(mem []byte, oldHash uint64, newSize int, newHash uint64) ([]byte, error) {
	if oldHash != newHash {
		return nil, &ErrINVAL{"HeapAllocator.RemapBytes", "cannot change types in place"}
	}

	if newSize <= 0 || newSize > len(mem) {
		return nil, &ErrOOM{Src: "HeapAllocator.RemapBytes", More: newSize}
	}

	bk, err := h.freeCommon(mem, oldHash)
	if err != nil {
		return nil, err
	}

	bk.sizeRequested = uintptr(newSize)
	return mem[:newSize], nil
}

// Properties implements Basic.
func (h *HeapAllocator) Properties() Properties {
	maxContiguous := len(h.memory)
	if h.parent != nil {
		maxContiguous = 0 // can grow
	}
	return Properties{maxContiguousBytes: maxContiguous, maxAlignment: 4096}
}

// OnDestroy implements Basic. Registry nodes are ordinary allocations from
// this heap, three entries per cache-line-sized node.
func (h *HeapAllocator) OnDestroy(cb DestructionCallback, userData unsafe.Pointer) error {
	if cb == nil {
		return &ErrINVAL{"HeapAllocator.OnDestroy", "nil callback"}
	}

	if h.cbEnd == nil || h.cbCount == callbackEntriesPerNode {
		b, err := h.AllocBytes(int(unsafe.Sizeof(callbackNode{})), 3, 0)
		if err != nil {
			return err
		}

		node := (*callbackNode)(unsafe.Pointer(&b[0]))
		node.prev = h.cbEnd
		h.cbEnd = node
		h.cbCount = 0
	}

	h.cbEnd.entries[h.cbCount] = callbackEntry{callback: cb, userData: userData}
	h.cbCount++
	return nil
}

// Destroy implements Basic: callbacks run in reverse registration order, then
// every owned buffer is returned to a parent that can free.
func (h *HeapAllocator) Destroy() {
	runCallbackNodes(h.cbEnd, h.cbCount)
	h.cbEnd = nil
	h.cbCount = 0

	pf, canFree := h.parent.(freer)
	if h.retired != nil {
		if canFree {
			pf.FreeBytes(h.orig, 0)
			for {
				b, ok := h.retired.End()
				if !ok {
					break
				}

				pf.FreeBytes(b.orig, 0)
				h.retired.Pop()
			}
		}
		h.retired.Destroy()
		h.retired = nil
	} else if canFree {
		pf.FreeBytes(h.orig, 0)
	}
	h.parent = nil
	h.memory = nil
	h.orig = nil
	h.head = nil
}

// HeapStats is the accounting Verify reports.
type HeapStats struct {
	FreeNodes int
	FreeBytes int64
	OwnedBytes int64 // total bytes across all owned buffers
}

// Verify walks the free list checking that every node lies inside owned
// memory and that no two nodes overlap. It mutates nothing.
func (h *HeapAllocator) Verify() (HeapStats, error) {
	var stats HeapStats
	stats.OwnedBytes = int64(len(h.memory))
	if h.retired != nil {
		h.retired.ForEach(func(b *heapBuffer) { stats.OwnedBytes += int64(len(b.mem)) })
	}

	var addrs sortutil.Int64Slice
	ends := map[int64]int64{}
	for iter := h.head; iter != nil; iter = iter.next {
		addr := uintptr(unsafe.Pointer(iter))
		if !h.ownsRegion(addr, iter.size) {
			return stats, &ErrCorrupt{Src: "HeapAllocator.Verify: free node out of range", More: addr}
		}

		stats.FreeNodes++
		stats.FreeBytes += int64(iter.size)
		addrs = append(addrs, int64(addr))
		ends[int64(addr)] = int64(addr) + int64(iter.size)
	}
	sort.Sort(addrs)
	for i := 1; i < len(addrs); i++ {
		if ends[addrs[i-1]] > addrs[i] {
			return stats, &ErrCorrupt{Src: "HeapAllocator.Verify: overlapping free nodes", More: addrs[i]}
		}
	}
	return stats, nil
}

func (h *HeapAllocator) isStackAllocator() {}
func (h *HeapAllocator) isHeapAllocator()  {}
