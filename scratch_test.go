// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestScratchAllocatorBumps(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(256, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	s, err := NewScratch(buf)
	require.NoError(t, err)

	a, err := s.AllocBytes(10, 0, 0)
	require.NoError(t, err)
	b, err := s.AllocBytes(10, 3, 0)
	require.NoError(t, err)

	// monotonic: b sits above a, aligned to 8
	require.True(t, base(b) > base(a))
	require.Zero(t, base(b)&7)

	// exhaustion without a parent is final
	_, err = s.AllocBytes(512, 0, 0)
	var oom *ErrOOM
	require.ErrorAs(t, err, &oom)
	s.Destroy()
}

func TestScratchAllocatorGrowsThroughParent(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	heapBuf, err := c.AllocBytes(1<<16, 5, 0)
	require.NoError(t, err)

	parent, err := NewHeapAllocatorOwned(heapBuf, c)
	require.NoError(t, err)

	first, err := Alloc[byte](parent, 128)
	require.NoError(t, err)

	s, err := NewScratchOwned(first, parent)
	require.NoError(t, err)

	var ptrs [][]byte
	for i := 0; i < 32; i++ {
		b, err := s.AllocBytes(48, 3, 0)
		require.NoError(t, err)
		for j := range b {
			b[j] = byte(i)
		}
		ptrs = append(ptrs, b)
	}

	// earlier buffers were retired, not recycled: contents are intact
	for i, b := range ptrs {
		for _, g := range b {
			if e := byte(i); g != e {
				t.Fatalf("allocation %v: %#02x, expected %#02x", i, g, e)
			}
		}
	}

	s.Destroy()
	parent.Destroy()
}

func TestScratchAllocatorCallbacks(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(256, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	s, err := NewScratch(buf)
	require.NoError(t, err)

	rec := newCallbackRecorder()
	tags := [2]int{1, 2}
	for i := range tags {
		require.NoError(t, s.OnDestroy(rec.cb, unsafe.Pointer(&tags[i])))
	}

	s.Destroy()
	require.Equal(t, []int{2, 1}, rec.order)
}

func TestScratchAllocatorCallbackRegionIsRespected(t *testing.T) {
	c := &CAllocator{}
	defer c.Destroy()

	buf, err := c.AllocBytes(64, 5, 0)
	require.NoError(t, err)
	defer c.FreeBytes(buf, 0)

	s, err := NewScratch(buf)
	require.NoError(t, err)

	rec := newCallbackRecorder()
	require.NoError(t, s.OnDestroy(rec.cb, nil))

	// the callback entry occupies the top 16 bytes; an allocation reaching
	// into them must fail rather than overwrite the registry
	_, err = s.AllocBytes(56, 0, 0)
	var oom *ErrOOM
	require.ErrorAs(t, err, &oom)

	b, err := s.AllocBytes(48, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 48, len(b))

	// and registration fails once the bump pointer is in the way
	require.Error(t, s.OnDestroy(rec.cb, nil))

	s.Destroy()
	require.Equal(t, []int{-1}, rec.order)
}
