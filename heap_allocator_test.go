// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/the-argus/allo-sub000/memmap"
)

func TestHeapAllocatorRoundTrip(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(2776, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	h, err := NewHeapAllocator(buf)
	require.NoError(t, err)

	a, err := h.AllocBytes(100, 3, 1)
	require.NoError(t, err)
	require.Equal(t, 100, len(a))
	require.Zero(t, base(a)&7)
	require.True(t, contains(buf, a))

	b, err := h.AllocBytes(200, 3, 2)
	require.NoError(t, err)

	// frees in any order
	require.NoError(t, h.FreeBytes(a, 1))
	require.NoError(t, h.FreeBytes(b, 2))

	if _, err := h.Verify(); err != nil {
		t.Fatal(err)
	}
	h.Destroy()
}

func TestHeapAllocatorLinkedListOfStrings(t *testing.T) {
	type node struct {
		next *node
		name []byte
	}

	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(2776, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	h, err := NewHeapAllocator(buf)
	require.NoError(t, err)

	names := []string{"hello", "what?", "the seventh son of the seventh son", "123456789"}
	var head *node
	for i := len(names) - 1; i >= 0; i-- {
		nm, err := Alloc[byte](h, len(names[i]))
		require.NoError(t, err)
		copy(nm, names[i])
		n, err := ConstructOne(h, node{next: head, name: nm})
		require.NoError(t, err)
		head = n
	}

	seen := map[uintptr]bool{}
	iter := head
	for _, want := range names {
		require.NotNil(t, iter)
		require.Equal(t, want, string(iter.name))
		addr := uintptr(unsafe.Pointer(iter))
		require.False(t, seen[addr])
		seen[addr] = true
		require.True(t, contains(buf, iter.name))
		iter = iter.next
	}
	require.Nil(t, iter)

	for head != nil {
		next := head.next
		require.NoError(t, Free(h, head.name))
		require.NoError(t, FreeOne(h, head))
		head = next
	}

	if _, err := h.Verify(); err != nil {
		t.Fatal(err)
	}
	h.Destroy()
}

func TestHeapAllocatorAlignmentPadding(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(4096, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	// starting 8 bytes past the 32-aligned buffer, the wider alignments
	// force padding between the bookkeeping record and the user pointer
	h, err := NewHeapAllocator(buf[8:])
	require.NoError(t, err)

	for _, e := range []uint8{3, 4, 5, 6} {
		b, err := h.AllocBytes(32, e, 9)
		require.NoError(t, err)
		require.Zero(t, base(b)&(1<<e-1))
		require.NoError(t, h.FreeStatus(b, 9))
		require.NoError(t, h.FreeBytes(b, 9))
	}
	h.Destroy()
}

func TestHeapAllocatorFreeValidation(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(1024, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	h, err := NewHeapAllocator(buf)
	require.NoError(t, err)

	b, err := h.AllocBytes(64, 3, 5)
	require.NoError(t, err)

	var mi *ErrMemInvalid
	require.ErrorAs(t, h.FreeBytes(b[:32], 5), &mi) // wrong length

	var tm *ErrTypeMismatch
	require.ErrorAs(t, h.FreeBytes(b, 6), &tm) // wrong type

	outside := make([]byte, 8)
	require.ErrorAs(t, h.FreeBytes(outside, 0), &mi)

	require.NoError(t, h.FreeBytes(b, 5))
	h.Destroy()
}

func TestHeapAllocatorRemapShrinks(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(1024, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	h, err := NewHeapAllocator(buf)
	require.NoError(t, err)

	b, err := h.AllocBytes(128, 3, 3)
	require.NoError(t, err)

	small, err := h.RemapBytes(b, 3, 64, 3)
	require.NoError(t, err)
	require.Equal(t, 64, len(small))
	if g, e := base(small), base(b); g != e {
		t.Fatalf("remap moved the allocation: %#x, expected %#x", g, e)
	}

	_, err = h.RemapBytes(small, 3, 256, 3)
	var oom *ErrOOM
	require.ErrorAs(t, err, &oom)

	// the shrunk allocation frees cleanly at its new size
	require.NoError(t, h.FreeBytes(small, 3))
	h.Destroy()
}

func TestHeapAllocatorGrowsThroughReservation(t *testing.T) {
	res, err := NewReservation(ReservationOptions{CommittedPages: 1, AdditionalPagesReserved: 19})
	require.NoError(t, err)

	h, err := NewHeapAllocatorOwned(res.CurrentMemory(), res)
	require.NoError(t, err)

	first, err := h.AllocBytes(64, 3, 0)
	require.NoError(t, err)
	firstAddr := base(first)

	// far larger than one page: the heap must remap the reservation in place
	ps := memmap.PageSize()
	big, err := h.AllocBytes(3*ps, 3, 0)
	require.NoError(t, err)
	require.Equal(t, 3*ps, len(big))

	// earlier allocations did not move
	if g, e := base(first), firstAddr; g != e {
		t.Fatalf("allocation moved to %#x from %#x during growth", g, e)
	}

	require.NoError(t, h.FreeBytes(big, 0))
	require.NoError(t, h.FreeBytes(first, 0))
	if _, err := h.Verify(); err != nil {
		t.Fatal(err)
	}
	h.Destroy()
	res.Destroy()
}

func TestHeapAllocatorMultiSegmentGrowth(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(512, 5, 0)
	require.NoError(t, err)

	// CAllocator cannot remap, so growth switches to multi-segment mode
	h, err := NewHeapAllocatorOwned(buf, c)
	require.NoError(t, err)

	var ptrs [][]byte
	for i := 0; i < 64; i++ {
		b, err := h.AllocBytes(96, 3, 0)
		require.NoError(t, err)
		for j := range b {
			b[j] = byte(i)
		}
		ptrs = append(ptrs, b)
	}

	// every earlier allocation is still intact at its original address
	for i, b := range ptrs {
		for _, g := range b {
			if e := byte(i); g != e {
				t.Fatalf("allocation %v: %#02x, expected %#02x", i, g, e)
			}
		}
	}

	for _, b := range ptrs {
		require.NoError(t, h.FreeBytes(b, 0))
	}
	if _, err := h.Verify(); err != nil {
		t.Fatal(err)
	}
	h.Destroy() // returns every owned buffer to c
}

func TestHeapAllocatorCallbacks(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(2048, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	h, err := NewHeapAllocator(buf)
	require.NoError(t, err)

	rec := newCallbackRecorder()
	tags := make([]int, 7) // spans three registry nodes
	for i := range tags {
		tags[i] = i
		require.NoError(t, h.OnDestroy(rec.cb, unsafe.Pointer(&tags[i])))
	}

	h.Destroy()
	require.Equal(t, []int{6, 5, 4, 3, 2, 1, 0}, rec.order)
}

func TestHeapAllocatorVerifyAccounting(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(4096, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	h, err := NewHeapAllocator(buf)
	require.NoError(t, err)

	stats, err := h.Verify()
	require.NoError(t, err)
	require.Equal(t, 1, stats.FreeNodes)
	require.Equal(t, int64(4096), stats.FreeBytes)

	a, err := h.AllocBytes(100, 3, 0)
	require.NoError(t, err)
	b, err := h.AllocBytes(100, 3, 0)
	require.NoError(t, err)
	require.NoError(t, h.FreeBytes(a, 0))
	require.NoError(t, h.FreeBytes(b, 0))

	stats, err = h.Verify()
	require.NoError(t, err)
	require.Equal(t, int64(4096), stats.FreeBytes)
	h.Destroy()
}
