// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The typed entry points the rest of a program allocates through. They attach
// the type hash of T (package rtti) and forward to the chosen allocator;
// byte always hashes to 0, the untyped-bytes marker.
//
// T must be trivially relocatable, and values stored through these functions
// live in memory the garbage collector does not scan: anything they reference
// on the Go heap must be kept reachable elsewhere for as long as the
// allocation lives.

package allo

import (
	"unsafe"

	"github.com/the-argus/allo-sub000/rtti"
)

func sizeOf[T any]() int { return int(unsafe.Sizeof(*new(T))) }

func alignExpOf[T any]() uint8 { return alignmentExponent(unsafe.Alignof(*new(T))) }

// asBytes reinterprets a typed slice as the byte region the allocator vended.
func asBytes[T any](s []T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*sizeOf[T]())
}

// AllocOne allocates memory for one T. The contents are undefined.
func AllocOne[T any](a Basic) (*T, error) {
	b, err := a.AllocBytes(sizeOf[T](), alignExpOf[T](), rtti.Of[T]())
	if err != nil {
		return nil, err
	}

	return (*T)(unsafe.Pointer(&b[0])), nil
}

// Alloc allocates memory for a contiguous buffer of n items of T. The
// contents are undefined.
func Alloc[T any](a Basic, n int) ([]T, error) {
	if n <= 0 {
		return nil, &ErrINVAL{"allo.Alloc: invalid count", n}
	}

	b, err := a.AllocBytes(sizeOf[T]()*n, alignExpOf[T](), rtti.Of[T]())
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n), nil
}

// ConstructOne allocates one T and initializes it to v.
func ConstructOne[T any](a Basic, v T) (*T, error) {
	p, err := AllocOne[T](a)
	if err != nil {
		return nil, err
	}

	*p = v
	return p, nil
}

// Construct allocates n items of T, initializing every one to v.
func Construct[T any](a Basic, n int, v T) ([]T, error) {
	s, err := Alloc[T](a, n)
	if err != nil {
		return nil, err
	}

	for i := range s {
		s[i] = v
	}
	return s, nil
}

// FreeOne returns the allocation holding *p to the allocator.
func FreeOne[T any](a Stack, p *T) error {
	return a.FreeBytes(unsafe.Slice((*byte)(unsafe.Pointer(p)), sizeOf[T]()), rtti.Of[T]())
}

// Free returns the allocation backing s to the allocator. s must be the full
// slice returned by Alloc, Construct or Realloc.
func Free[T any](a Stack, s []T) error {
	if len(s) == 0 {
		return &ErrINVAL{"allo.Free", "empty slice"}
	}

	return a.FreeBytes(asBytes(s), rtti.Of[T]())
}

// DestroyOne runs fin on *p, then frees it. fin may be nil.
func DestroyOne[T any](a Stack, p *T, fin func(*T)) error {
	if fin != nil {
		fin(p)
	}
	return FreeOne(a, p)
}

// Destroy runs fin on every element of s in order, then frees s. fin may be
// nil.
func Destroy[T any](a Stack, s []T, fin func(*T)) error {
	if fin != nil {
		for i := range s {
			fin(&s[i])
		}
	}
	return Free(a, s)
}

// Remap resizes s to n elements without moving it. The result shares s's base
// address. It fails often: growth succeeds only on allocators that can extend
// an allocation in place.
func Remap[T any](a Stack, s []T, n int) ([]T, error) {
	if len(s) == 0 || n <= 0 {
		return nil, &ErrINVAL{"allo.Remap: invalid slice or count", n}
	}

	hash := rtti.Of[T]()
	b, err := a.RemapBytes(asBytes(s), hash, n*sizeOf[T](), hash)
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n), nil
}

// Realloc resizes s to n elements, moving it if necessary: first a remap is
// tried, then the allocator's own atomic reallocation when it is a
// ThreadsafeHeap, and finally allocate-copy-free. Elements are moved in order
// and the old storage is freed on relocation.
func Realloc[T any](a Stack, s []T, n int) ([]T, error) {
	if n == len(s) {
		return s, nil
	}

	if r, err := Remap(a, s, n); err == nil {
		return r, nil
	}

	hash := rtti.Of[T]()
	if ts, ok := a.(ThreadsafeHeap); ok {
		b, err := ts.ThreadsafeReallocBytes(asBytes(s), hash, n*sizeOf[T](), hash)
		if err != nil {
			return nil, err
		}

		return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n), nil
	}

	dst, err := Alloc[T](a, n)
	if err != nil {
		return nil, err
	}

	copy(dst, s)
	if err := Free(a, s); err != nil {
		return nil, err
	}

	return dst, nil
}

// destroyer matches allocators and other owners of resources torn down by a
// single Destroy call.
type destroyer interface{ Destroy() }

// RegisterDestroy arranges for p.Destroy to run when a is destroyed.
func RegisterDestroy[T any, PT interface {
	*T
	destroyer
}](a Basic, p PT) error {
	return a.OnDestroy(destroyCallbackFor[T, PT], unsafe.Pointer(p))
}

func destroyCallbackFor[T any, PT interface {
	*T
	destroyer
}](userData unsafe.Pointer) {
	PT((*T)(userData)).Destroy()
}

// MakeInto moves the freshly constructed allocator *child into memory
// obtained from parent and registers the relocated allocator's Destroy as a
// parent destruction callback, so the child is torn down - and its callbacks
// run - before the parent releases the memory under it. *child is zeroed: the
// relocated copy owns the backing memory now.
//
// On registration failure the allocation is freed when parent can free, and
// leaks into parent's lifetime otherwise.
func MakeInto[T any, PT interface {
	*T
	destroyer
}](parent Basic, child PT) (PT, error) {
	hash := rtti.Of[T]()
	b, err := parent.AllocBytes(sizeOf[T](), alignExpOf[T](), hash)
	if err != nil {
		return nil, err
	}

	p := (*T)(unsafe.Pointer(&b[0]))
	*p = *(*T)(child)
	var zero T
	*(*T)(child) = zero

	if err := parent.OnDestroy(destroyCallbackFor[T, PT], unsafe.Pointer(p)); err != nil {
		if f, ok := parent.(freer); ok {
			f.FreeBytes(b, hash)
		}
		return nil, err
	}

	return PT(p), nil
}
