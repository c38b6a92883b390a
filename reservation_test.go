// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/the-argus/allo-sub000/memmap"
)

func TestReservationAllocatorRemapGrowsInPlace(t *testing.T) {
	ps := memmap.PageSize()
	r, err := NewReservation(ReservationOptions{CommittedPages: 1, AdditionalPagesReserved: 3})
	require.NoError(t, err)

	mem := r.CurrentMemory()
	require.Equal(t, ps, len(mem))
	mem[0] = 1
	mem[ps-1] = 2

	grown, err := r.RemapBytes(mem, 0, 2*ps+1, 0)
	require.NoError(t, err)
	require.Equal(t, 2*ps+1, len(grown))
	if g, e := base(grown), base(mem); g != e {
		t.Fatalf("remap moved the reservation: %#x, expected %#x", g, e)
	}

	// committed pages are usable and the old contents survive
	grown[2*ps] = 3
	require.Equal(t, byte(1), grown[0])
	require.Equal(t, byte(2), grown[ps-1])

	// growth is capped by the reservation
	_, err = r.RemapBytes(r.CurrentMemory(), 0, 5*ps, 0)
	var oom *ErrOOM
	require.ErrorAs(t, err, &oom)

	r.Destroy()
}

func TestReservationAllocatorContracts(t *testing.T) {
	r, err := NewReservation(ReservationOptions{CommittedPages: 1, AdditionalPagesReserved: 1})
	require.NoError(t, err)

	_, err = r.AllocBytes(8, 3, 0)
	var oom *ErrOOM
	require.ErrorAs(t, err, &oom)

	rec := newCallbackRecorder()
	require.ErrorAs(t, r.OnDestroy(rec.cb, nil), &oom)

	require.NoError(t, r.FreeStatus(r.CurrentMemory(), 0))
	require.NoError(t, r.FreeBytes(r.CurrentMemory(), 0))

	other := make([]byte, 8)
	var mi *ErrMemInvalid
	require.ErrorAs(t, r.FreeBytes(other, 0), &mi)

	_, err = NewReservation(ReservationOptions{})
	require.Error(t, err)

	r.Destroy()
}
