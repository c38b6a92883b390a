// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import "fmt"

// ErrOOM means no contiguous region of the requested size and alignment is
// available from the allocator.
type ErrOOM struct {
	Src  string
	More interface{}
}

// Error implements the error interface.
func (e *ErrOOM) Error() string {
	if e.More == nil {
		return fmt.Sprintf("%s: out of memory", e.Src)
	}

	return fmt.Sprintf("%s: out of memory: %v", e.Src, e.More)
}

// ErrTooAligned means the requested alignment exceeds the allocator's
// advertised maximum alignment.
type ErrTooAligned struct {
	Src      string
	Exponent uint8 // requested alignment is 2^Exponent
	Max      int   // the allocator's maximum alignment in bytes
}

// Error implements the error interface.
func (e *ErrTooAligned) Error() string {
	return fmt.Sprintf("%s: requested alignment %d exceeds maximum %d", e.Src, 1<<e.Exponent, e.Max)
}

// ErrMemInvalid means the memory passed in could not conceivably be owned by
// this allocator, either by being outside its bounds or misaligned to its
// block grid.
type ErrMemInvalid struct {
	Src  string
	More interface{}
}

// Error implements the error interface.
func (e *ErrMemInvalid) Error() string {
	return fmt.Sprintf("%s: memory not owned by this allocator: %v", e.Src, e.More)
}

// ErrAlreadyFreed means the memory passed in is owned by the allocator, but
// the allocator tracks freed status and the memory has already been freed.
type ErrAlreadyFreed struct {
	Src string
	Off int
}

// Error implements the error interface.
func (e *ErrAlreadyFreed) Error() string {
	return fmt.Sprintf("%s: memory at offset %#x already freed", e.Src, e.Off)
}

// ErrCorrupt means bookkeeping metadata inside the allocator failed an
// internal consistency check, usually because an allocation overran its
// bounds or a stack allocator was freed out of order.
type ErrCorrupt struct {
	Src  string
	More interface{}
}

// Error implements the error interface.
func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("%s: bookkeeping corrupted: %v", e.Src, e.More)
}

// ErrTypeMismatch means the type hash supplied to a free or remap does not
// match the hash recorded when the memory was allocated.
type ErrTypeMismatch struct {
	Src       string
	Want, Got uint64
}

// Error implements the error interface.
func (e *ErrTypeMismatch) Error() string {
	return fmt.Sprintf("%s: type hash %#x does not match recorded %#x", e.Src, e.Got, e.Want)
}

// ErrINVAL means the operation is not supported by this allocator or its
// arguments are semantically inconsistent.
type ErrINVAL struct {
	Src  string
	More interface{}
}

// Error implements the error interface.
func (e *ErrINVAL) Error() string {
	return fmt.Sprintf("%s: %v", e.Src, e.More)
}

// ErrOS wraps a failure reported by the operating system.
type ErrOS struct {
	Src string
	Err error
}

// Error implements the error interface.
func (e *ErrOS) Error() string { return fmt.Sprintf("%s: %v", e.Src, e.Err) }

// Unwrap returns the underlying OS error.
func (e *ErrOS) Unwrap() error { return e.Err }
