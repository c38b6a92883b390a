// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The capability matrix, spelled as interface satisfaction. Kinds absent from
// a tier must not compile into it, which the type checker enforces by these
// being the only assertions possible.
var (
	_ ThreadsafeHeap = (*CAllocator)(nil)
	_ Heap           = (*OneshotAllocator)(nil)
	_ Heap           = (*BlockAllocator)(nil)
	_ Heap           = (*HeapAllocator)(nil)
	_ Stack          = (*StackAllocator)(nil)
	_ Basic          = (*ScratchAllocator)(nil)
	_ Basic          = (*ReservationAllocator)(nil)
)

func TestPropertiesMeets(t *testing.T) {
	bounded := Properties{maxContiguousBytes: 1024, maxAlignment: 8}
	unbounded := Properties{maxContiguousBytes: 0, maxAlignment: 32}

	require.True(t, bounded.Meets(Requirements{MaxContiguousBytes: 1024, MaxAlignment: 8}))
	require.True(t, bounded.Meets(Requirements{MaxContiguousBytes: 1, MaxAlignment: 1}))
	require.False(t, bounded.Meets(Requirements{MaxContiguousBytes: 1025, MaxAlignment: 8}))
	require.False(t, bounded.Meets(Requirements{MaxContiguousBytes: 16, MaxAlignment: 16}))

	// an unbounded requirement is only met by an unbounded allocator
	require.False(t, bounded.Meets(Requirements{MaxContiguousBytes: 0}))
	require.True(t, unbounded.Meets(Requirements{MaxContiguousBytes: 0, MaxAlignment: 32}))
	require.True(t, unbounded.Meets(Requirements{MaxContiguousBytes: 1 << 30}))
}

func TestAlignmentExponent(t *testing.T) {
	for e := uint8(0); e < 20; e++ {
		if g := alignmentExponent(uintptr(1) << e); g != e {
			t.Fatalf("alignmentExponent(1<<%d) = %d", e, g)
		}
	}
	require.Equal(t, invalidAlignmentExponent, alignmentExponent(0))
	require.Equal(t, invalidAlignmentExponent, alignmentExponent(3))
	require.Equal(t, invalidAlignmentExponent, alignmentExponent(12))

	require.Equal(t, uint8(3), nearestAlignmentExponent(8))
	require.Equal(t, uint8(0), nearestAlignmentExponent(7))
	require.Equal(t, uint8(2), nearestAlignmentExponent(12))
	require.Equal(t, invalidAlignmentExponent, nearestAlignmentExponent(0))
}

func TestKindStrings(t *testing.T) {
	for k := Kind(0); k < maxKind; k++ {
		require.NotEqual(t, "<unknown allocator>", k.String())
	}
	require.Equal(t, "<unknown allocator>", maxKind.String())

	c := &CAllocator{}
	require.Equal(t, KindCAllocator, c.Kind())
}
