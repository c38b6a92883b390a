// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Destruction-callback storage. Registered callbacks live inside the owning
// allocator's own memory: packed downward from the top of a buffer (stack and
// scratch allocators), in a chain of nodes the allocator allocates from itself
// (heap allocator), or in repurposed free blocks (block allocator, see
// block_allocator.go). Every layout invokes in reverse registration order.

package allo

import "unsafe"

type callbackEntry struct {
	callback DestructionCallback
	userData unsafe.Pointer
}

const callbackEntrySize = int(unsafe.Sizeof(callbackEntry{}))

// callbackEntriesPerNode is chosen so a node fits in one cache line: an 8-byte
// prev pointer plus three 16-byte entries, 56 bytes.
const callbackEntriesPerNode = 3

// callbackNode is the chain node used by allocators that can allocate their
// own registry storage.
type callbackNode struct {
	prev    *callbackNode
	entries [callbackEntriesPerNode]callbackEntry
}

// runCallbackNodes invokes every entry reachable from end in reverse
// registration order. end holds itemsInEnd entries; all earlier nodes are
// full.
func runCallbackNodes(end *callbackNode, itemsInEnd int) {
	count := itemsInEnd
	for n := end; n != nil; n = n.prev {
		for i := count - 1; i >= 0; i-- {
			e := &n.entries[i]
			e.callback(e.userData)
		}
		count = callbackEntriesPerNode
	}
}

// placeCallbackEntry stores an entry just below floor, an offset into mem
// where the callback region begins, and returns the lowered floor. top is the
// first offset past the allocator's outstanding allocations; the entry is
// refused when it would cross it.
func placeCallbackEntry(mem []byte, top, floor int, cb DestructionCallback, userData unsafe.Pointer) (newFloor int, err error) {
	if cb == nil {
		return floor, &ErrINVAL{"allo.OnDestroy", "nil callback"}
	}

	at := (floor - callbackEntrySize) &^ 7
	if at < top {
		return floor, &ErrOOM{Src: "allo.OnDestroy"}
	}

	*(*callbackEntry)(unsafe.Pointer(&mem[at])) = callbackEntry{callback: cb, userData: userData}
	return at, nil
}

// runRegionCallbacks invokes the entries stored between floor and the end of
// mem. Entries were packed downward, so ascending address order is reverse
// registration order.
func runRegionCallbacks(mem []byte, floor int) {
	for at := floor; at+callbackEntrySize <= len(mem); at += callbackEntrySize {
		e := (*callbackEntry)(unsafe.Pointer(&mem[at]))
		e.callback(e.userData)
	}
}
