// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allo implements a composable allocator toolkit: a family of memory
// allocators plus a small set of intrusive, allocator-aware data structures.
//
// Client code allocates, reallocates and frees typed buffers through uniform
// interfaces while choosing, per call site, how that storage is managed:
//
//	CAllocator           system-heap passthrough, reentrant
//	ReservationAllocator page reservation growable in place
//	OneshotAllocator     a single externally supplied buffer
//	StackAllocator       LIFO bump allocation with O(1) rewind
//	BlockAllocator       fixed-size blocks over one buffer
//	ScratchAllocator     monotonic arena, optionally growing via a parent
//	HeapAllocator        general free-list heap
//
// Allocators nest: a parent allocator supplies the backing memory of a child,
// and every allocator carries a registry of destruction callbacks which run,
// in reverse registration order, when the allocator is destroyed - before it
// releases its backing memory. Callbacks registered on a parent are the
// mechanism for tearing down children in the right order; see MakeInto.
//
// Capability tiers
//
// Any allocator can be consumed through one of four interface tiers: Basic,
// Stack, Heap and ThreadsafeHeap. Stack and Heap share a method set; the
// difference is contractual - a Stack requires frees in reverse allocation
// order. Which tiers an allocator satisfies is fixed per kind:
//
//	               Basic  Stack  Heap  ThreadsafeHeap
//	CAllocator       x      x      x        x
//	Reservation      x      -      -        -
//	Oneshot          x      x      x        -
//	Stack            x      x      -        -
//	Block            x      x      x        -
//	Scratch          x      -      -        -
//	Heap             x      x      x        -
//
// Alignment is always passed as an exponent e meaning 2^e bytes. Every typed
// allocation carries a type hash (package rtti); the hash is checked again on
// free and remap, and 0 means untyped bytes.
//
// Allocator instances are not safe for concurrent use and must not be copied
// once used. The sole exception is CAllocator, which is reentrant.
package allo
