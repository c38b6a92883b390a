// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import (
	"unsafe"

	"github.com/the-argus/allo-sub000/memmap"
)

// ReservationAllocator owns a virtually reserved address range of which a
// prefix is committed. The whole committed region is its one allocation:
// AllocBytes always fails, and RemapBytes grows the region in place by
// committing further reserved pages, so addresses never move. It is the
// natural parent for a HeapAllocator that must grow without relocating.
//
// ReservationAllocator satisfies only the Basic tier, but RemapBytes is
// available as a concrete method and is what a child heap grows through.
type ReservationAllocator struct {
	reserved  []byte // the whole reservation; only a prefix is committed
	committed int    // committed bytes
	pagesize  int
}

var _ Basic = (*ReservationAllocator)(nil)
var _ remapper = (*ReservationAllocator)(nil)

// ReservationOptions configures NewReservation.
type ReservationOptions struct {
	// CommittedPages is the number of pages committed immediately.
	CommittedPages int
	// AdditionalPagesReserved is how many pages past the committed region
	// the allocation can later be remapped into.
	AdditionalPagesReserved int
	// AddressHint optionally suggests a start address to the OS.
	AddressHint uintptr
}

// NewReservation reserves CommittedPages+AdditionalPagesReserved pages of
// address space and commits the first CommittedPages of them. Get the usable
// memory out of the reservation by calling CurrentMemory.
func NewReservation(opts ReservationOptions) (*ReservationAllocator, error) {
	if opts.CommittedPages < 0 || opts.AdditionalPagesReserved < 0 {
		return nil, &ErrINVAL{"NewReservation: negative page count", opts}
	}

	total := opts.CommittedPages + opts.AdditionalPagesReserved
	if total == 0 {
		return nil, &ErrINVAL{"NewReservation", "zero pages reserved"}
	}

	ps := memmap.PageSize()
	reserved, err := memmap.Reserve(opts.AddressHint, total)
	if err != nil {
		return nil, &ErrOS{Src: "NewReservation", Err: err}
	}

	committed := opts.CommittedPages * ps
	if err := memmap.Commit(reserved[:committed]); err != nil {
		memmap.Unmap(reserved)
		return nil, &ErrOS{Src: "NewReservation", Err: err}
	}

	return &ReservationAllocator{reserved: reserved, committed: committed, pagesize: ps}, nil
}

// Kind implements Basic.
func (r *ReservationAllocator) Kind() Kind { return KindReservationAllocator }

// CurrentMemory returns the committed region. Its base never changes; its
// length grows under RemapBytes.
func (r *ReservationAllocator) CurrentMemory() []byte {
	return r.reserved[:r.committed:r.committed]
}

// AllocBytes implements Basic. It always fails: the whole reservation is the
// one allocation.
func (r *ReservationAllocator) AllocBytes(size int, alignExp uint8, typehash uint64) ([]byte, error) {
	return nil, &ErrOOM{Src: "ReservationAllocator.AllocBytes", More: "a reservation allocates only once"}
}

// RemapBytes grows the committed region in place. mem must be the committed
// region; newSize beyond it commits ceil((newSize-committed)/pagesize)
// further pages, capped by the reservation. Type hashes are ignored, the
// reservation is untyped.
func (r *ReservationAllocator) RemapBytes(mem []byte, oldHash uint64, newSize int, newHash uint64) ([]byte, error) {
	if newSize <= 0 {
		return nil, &ErrINVAL{"ReservationAllocator.RemapBytes: invalid size", newSize}
	}

	if len(mem) == 0 || base(mem) != base(r.reserved) {
		return nil, &ErrMemInvalid{Src: "ReservationAllocator.RemapBytes"}
	}

	if newSize > r.committed {
		need := roundup(newSize-r.committed, r.pagesize)
		if r.committed+need > len(r.reserved) {
			return nil, &ErrOOM{Src: "ReservationAllocator.RemapBytes", More: newSize}
		}

		if err := memmap.Commit(r.reserved[r.committed : r.committed+need]); err != nil {
			return nil, &ErrOS{Src: "ReservationAllocator.RemapBytes", Err: err}
		}

		r.committed += need
	}
	return r.reserved[:newSize:r.committed], nil
}

// FreeBytes accepts only the committed region and is otherwise a no-op; the
// reservation persists until Destroy.
func (r *ReservationAllocator) FreeBytes(mem []byte, typehash uint64) error {
	return r.FreeStatus(mem, typehash)
}

// FreeStatus reports whether mem is the slice FreeBytes accepts.
func (r *ReservationAllocator) FreeStatus(mem []byte, typehash uint64) error {
	if len(mem) == 0 || base(mem) != base(r.reserved) {
		return &ErrMemInvalid{Src: "ReservationAllocator.FreeStatus"}
	}

	return nil
}

// Properties implements Basic. The bound is the whole reservation, committed
// or not.
func (r *ReservationAllocator) Properties() Properties {
	return Properties{maxContiguousBytes: len(r.reserved), maxAlignment: r.pagesize}
}

// OnDestroy implements Basic. A bare reservation has nowhere to store
// callbacks; nest another allocator inside it to get them.
func (r *ReservationAllocator) OnDestroy(cb DestructionCallback, userData unsafe.Pointer) error {
	return &ErrOOM{Src: "ReservationAllocator.OnDestroy"}
}

// Destroy implements Basic: the entire reservation is unmapped.
func (r *ReservationAllocator) Destroy() {
	memmap.Unmap(r.reserved)
	r.reserved = nil
	r.committed = 0
}
