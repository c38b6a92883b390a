// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The page-based size-class heap backing CAllocator. Small requests share
// mapped pages partitioned into power-of-two slots threaded on per-class free
// lists; large requests get a dedicated mapping. The page header of any
// allocation is recovered by masking its address.

package allo

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/cznic/mathutil"

	"github.com/the-argus/allo-sub000/memmap"
)

const (
	mallocAlign = 32 // Must be >= 16
	sysTrace    = false
)

var (
	sysHeaderSize = roundup(int(unsafe.Sizeof(syspage{})), mallocAlign)
	sysPageSize   = os.Getpagesize()
	sysPageMask   = uintptr(sysPageSize - 1)
	sysPageAvail  = sysPageSize - sysHeaderSize
	maxSlotSize   = sysPageAvail >> 1
)

type sysnode struct {
	prev, next *sysnode
}

type syspage struct {
	brk  int
	log  uint
	size int
	used int
}

// sysheap allocates and frees memory in the manner of the system allocator.
// Its zero value is ready for use.
type sysheap struct {
	allocs int // # of allocs.
	bytes  int // Asked from OS.
	cap    [64]int
	lists  [64]*sysnode
	mmaps  int // Asked from OS.
	pages  [64]*syspage
	regs   map[*syspage]struct{}
}

func (a *sysheap) mmap(size int) (*syspage, error) {
	b, err := memmap.Map(size)
	if err != nil {
		return nil, err
	}

	a.mmaps++
	a.bytes += len(b)
	p := (*syspage)(unsafe.Pointer(&b[0]))
	if a.regs == nil {
		a.regs = map[*syspage]struct{}{}
	}
	p.size = len(b)
	a.regs[p] = struct{}{}
	return p, nil
}

func (a *sysheap) newPage(size int) (*syspage, error) {
	size += sysHeaderSize
	p, err := a.mmap(size)
	if err != nil {
		return nil, err
	}

	p.log = 0
	return p, nil
}

func (a *sysheap) newSharedPage(log uint) (*syspage, error) {
	if a.cap[log] == 0 {
		a.cap[log] = sysPageAvail / (1 << log)
	}
	size := sysHeaderSize + a.cap[log]<<log
	p, err := a.mmap(size)
	if err != nil {
		return nil, err
	}

	a.pages[log] = p
	p.log = log
	return p, nil
}

func (a *sysheap) unmap(p *syspage) error {
	delete(a.regs, p)
	a.mmaps--
	return memmap.Unmap(unsafe.Slice((*byte)(unsafe.Pointer(p)), p.size))
}

// close releases all OS resources used by a and sets it to its zero value.
func (a *sysheap) close() (err error) {
	for p := range a.regs {
		if e := a.unmap(p); e != nil && err == nil {
			err = e
		}
	}
	*a = sysheap{}
	return err
}

// malloc allocates size bytes and returns a byte slice of the allocated
// memory. The memory is not initialized. The capacity of the result is the
// usable slot size, which can exceed size.
func (a *sysheap) malloc(size int) (r []byte, err error) {
	if sysTrace {
		defer func() {
			var p *byte
			if len(r) != 0 {
				p = &r[0]
			}
			fmt.Fprintf(os.Stderr, "malloc(%#x) %p, %v\n", size, p, err)
		}()
	}
	if size < 0 {
		panic("invalid malloc size")
	}

	if size == 0 {
		return nil, nil
	}

	a.allocs++
	log := uint(mathutil.BitLen(roundup(size, mallocAlign) - 1))
	if 1<<log > maxSlotSize {
		p, err := a.newPage(size)
		if err != nil {
			return nil, err
		}

		return unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(p), sysHeaderSize)), size), nil
	}

	if a.lists[log] == nil && a.pages[log] == nil {
		if _, err := a.newSharedPage(log); err != nil {
			return nil, err
		}
	}

	if p := a.pages[log]; p != nil {
		p.used++
		b := unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(p), sysHeaderSize+p.brk<<log)), 1<<log)
		p.brk++
		if p.brk == a.cap[log] {
			a.pages[log] = nil
		}
		return b[:size], nil
	}

	n := a.lists[log]
	p := (*syspage)(unsafe.Pointer(uintptr(unsafe.Pointer(n)) &^ sysPageMask))
	a.lists[log] = n.next
	if n.next != nil {
		n.next.prev = nil
	}
	p.used++
	return unsafe.Slice((*byte)(unsafe.Pointer(n)), 1<<log)[:size], nil
}

// free deallocates memory. The argument of free must have been acquired from
// malloc or realloc.
func (a *sysheap) free(b []byte) (err error) {
	if sysTrace {
		var p *byte
		if len(b) != 0 {
			p = &b[0]
		}
		defer func() {
			fmt.Fprintf(os.Stderr, "free(%p) %v\n", p, err)
		}()
	}
	b = b[:cap(b)]
	if len(b) == 0 {
		return nil
	}

	a.allocs--
	p := (*syspage)(unsafe.Pointer(uintptr(unsafe.Pointer(&b[0])) &^ sysPageMask))
	log := p.log
	if log == 0 {
		a.bytes -= p.size
		return a.unmap(p)
	}

	n := (*sysnode)(unsafe.Pointer(&b[0]))
	n.prev = nil
	n.next = a.lists[log]
	if n.next != nil {
		n.next.prev = n
	}
	a.lists[log] = n
	p.used--
	if p.used != 0 {
		return nil
	}

	for i := 0; i < p.brk; i++ {
		n := (*sysnode)(unsafe.Add(unsafe.Pointer(p), sysHeaderSize+i<<log))
		switch {
		case n.prev == nil:
			a.lists[log] = n.next
			if n.next != nil {
				n.next.prev = nil
			}
		case n.next == nil:
			n.prev.next = nil
		default:
			n.prev.next = n.next
			n.next.prev = n.prev
		}
	}

	if a.pages[log] == p {
		a.pages[log] = nil
	}
	a.bytes -= p.size
	return a.unmap(p)
}

// usableSize reports the size of the slot backing the allocation at p.
func usableSize(p unsafe.Pointer) int {
	pg := (*syspage)(unsafe.Pointer(uintptr(p) &^ sysPageMask))
	if pg.log != 0 {
		return 1 << pg.log
	}

	return pg.size - sysHeaderSize
}

// realloc changes the size of the backing array of b to size bytes. The
// contents are unchanged in the range from the start of the region up to the
// minimum of the old and new sizes. If the area was moved, a free(b) is done.
func (a *sysheap) realloc(b []byte, size int) (r []byte, err error) {
	switch {
	case cap(b) == 0:
		return a.malloc(size)
	case size == 0 && cap(b) != 0:
		return nil, a.free(b)
	case size <= cap(b):
		return b[:size], nil
	}

	us := usableSize(unsafe.Pointer(&b[0]))
	if us >= size {
		return b[:size:us], nil
	}

	if r, err = a.malloc(size); err != nil {
		return nil, err
	}

	copy(r, b[:cap(b)])
	return r, a.free(b)
}
