// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rtti produces a stable integer identity per Go type.
//
// Of[T] returns the same non-zero hash for every instantiation with the same
// type within and across processes built from the same source, and 0 for
// byte. Allocators attach the hash to allocations and check it again on free
// and remap; 0 marks untyped bytes.
package rtti

import (
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var (
	mu    sync.RWMutex
	cache = map[reflect.Type]uint64{}
)

// Of returns the type hash of T. The hash is 0 iff T is byte.
func Of[T any]() uint64 {
	return OfType(reflect.TypeOf((*T)(nil)).Elem())
}

// OfType is Of for a reflected type.
func OfType(t reflect.Type) uint64 {
	if t == reflect.TypeOf(byte(0)) {
		return 0
	}

	mu.RLock()
	h, ok := cache[t]
	mu.RUnlock()
	if ok {
		return h
	}

	s := t.String()
	if pp := t.PkgPath(); pp != "" {
		s = pp + "." + s
	}
	h = xxhash.Sum64String(s)
	if h == 0 {
		h = 1
	}
	mu.Lock()
	cache[t] = h
	mu.Unlock()
	return h
}
