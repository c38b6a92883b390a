// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import "fmt"

// listGrowthNumerator / listGrowthDenominator give the 1.5 geometric growth
// factor.
const (
	listGrowthNumerator   = 3
	listGrowthDenominator = 2
)

// List is a dynamically sized sequence backed by a heap allocator: amortized
// O(1) append, O(n) insert and remove. The element type must be trivially
// relocatable - growth moves elements with a flat copy.
//
// A List must not be copied after first use.
type List[T any] struct {
	parent   Heap // nil when wrapping a fixed buffer
	elements []T  // full capacity
	length   int
}

// MakeList allocates space for initialItems elements (at least one) from
// parent. The backing buffer is freed by Destroy and grows on demand.
func MakeList[T any](parent Heap, initialItems int) (List[T], error) {
	if initialItems < 1 {
		initialItems = 1
	}

	elements, err := Alloc[T](parent, initialItems)
	if err != nil {
		return List[T]{}, err
	}

	return List[T]{parent: parent, elements: elements}, nil
}

// ListOf wraps an existing buffer without owning it; the list cannot grow
// past len(buffer).
func ListOf[T any](buffer []T) List[T] {
	return List[T]{elements: buffer}
}

// Len returns the number of elements in the list.
func (l *List[T]) Len() int { return l.length }

// Capacity returns how many elements the list can hold before growing.
func (l *List[T]) Capacity() int { return len(l.elements) }

// Items returns a view of the elements. The view is invalidated by any
// operation that grows the list.
func (l *List[T]) Items() []T { return l.elements[:l.length] }

// TryGetAt returns a pointer to the element at index i, or false when i is
// out of range.
func (l *List[T]) TryGetAt(i int) (*T, bool) {
	if i < 0 || i >= l.length {
		return nil, false
	}

	return &l.elements[i], true
}

// GetAtUnchecked returns the element at index i, panicking when i is out of
// range.
func (l *List[T]) GetAtUnchecked(i int) *T {
	if i < 0 || i >= l.length {
		panic(fmt.Sprintf("allo: List index %d out of range [0, %d)", i, l.length))
	}

	return &l.elements[i]
}

func (l *List[T]) grow() error {
	if l.parent == nil {
		return &ErrOOM{Src: "allo.List", More: "fixed buffer full"}
	}

	newCap := l.length * listGrowthNumerator / listGrowthDenominator
	if newCap <= l.length {
		newCap = l.length + 1
	}
	elements, err := Realloc(l.parent, l.elements, newCap)
	if err != nil {
		return err
	}

	l.elements = elements
	return nil
}

// TryAppend places v after the last element, growing by factor 1.5 when
// full. On growth failure the list is unmodified.
func (l *List[T]) TryAppend(v T) error {
	if l.length == len(l.elements) {
		if err := l.grow(); err != nil {
			return err
		}
	}

	l.elements[l.length] = v
	l.length++
	return nil
}

// TryInsertAt places v at index i, shifting elements [i, Len()) upward by
// one. i == Len() appends. On growth failure the list is unmodified.
func (l *List[T]) TryInsertAt(i int, v T) error {
	if i < 0 || i > l.length {
		return &ErrINVAL{"allo.List.TryInsertAt: index out of range", i}
	}

	if l.length == len(l.elements) {
		if err := l.grow(); err != nil {
			return err
		}
	}

	copy(l.elements[i+1:l.length+1], l.elements[i:l.length])
	l.elements[i] = v
	l.length++
	return nil
}

// TryRemoveAt removes the element at index i, shifting elements [i+1, Len())
// downward by one.
func (l *List[T]) TryRemoveAt(i int) error {
	if i < 0 || i >= l.length {
		return &ErrINVAL{"allo.List.TryRemoveAt: index out of range", i}
	}

	copy(l.elements[i:l.length-1], l.elements[i+1:l.length])
	l.length--
	var zero T
	l.elements[l.length] = zero
	return nil
}

// Destroy frees the backing buffer when the list owns one.
func (l *List[T]) Destroy() {
	if l.parent != nil {
		Free(l.parent, l.elements)
		l.parent = nil
	}
	l.elements = nil
	l.length = 0
}
