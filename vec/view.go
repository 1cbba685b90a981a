// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package vec

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// View is a read-only window onto the live
// elements of a Vec. While a View is open the
// Vec cannot be modified, so references obtained
// from the View stay valid until Release.
type View[T any] struct {
	v *Vec[T]
	s []T
}

// Borrow opens a View of v.
// The View must be released with Release.
func (v *Vec[T]) Borrow() *View[T] {
	v.live()
	v.borrows++
	return &View[T]{v: v, s: v.slots()}
}

// Borrowed returns the number of
// outstanding views and iterators.
func (v *Vec[T]) Borrowed() int { return v.borrows }

func (w *View[T]) check() {
	if w.v == nil {
		panic(errors.AssertionFailedf("vec: use of released View"))
	}
}

// Len returns the number of elements in the view.
func (w *View[T]) Len() int {
	w.check()
	return len(w.s)
}

// At returns a copy of element i.
// It panics with ErrOutOfRange if
// i is out of range.
func (w *View[T]) At(i int) T {
	return *w.Ref(i)
}

// Ref returns a pointer to element i.
// The pointer must not be used
// after the view is released.
func (w *View[T]) Ref(i int) *T {
	w.check()
	if i < 0 || i >= len(w.s) {
		panic(outOfRange("View.Ref", i, len(w.s)))
	}
	return &w.s[i]
}

// Slice returns the elements as a slice
// aliasing the Vec's storage. The slice
// must not be modified or retained after
// the view is released.
func (w *View[T]) Slice() []T {
	w.check()
	return w.s[:len(w.s):len(w.s)]
}

// All yields each index and element in order.
func (w *View[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		w.check()
		for i := range w.s {
			if !yield(i, w.s[i]) {
				return
			}
		}
	}
}

// Release closes the view. Releasing
// a view twice panics.
func (w *View[T]) Release() {
	w.check()
	w.v.borrows--
	w.v, w.s = nil, nil
}

// All returns an iterator over the index and
// value of each element, in order. v is borrowed
// for the duration of each loop, so the loop
// body must not modify v.
func (v *Vec[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		w := v.Borrow()
		defer w.Release()
		for i := range w.s {
			if !yield(i, w.s[i]) {
				return
			}
		}
	}
}

// Values is like All but yields only the elements.
func (v *Vec[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		w := v.Borrow()
		defer w.Release()
		for i := range w.s {
			if !yield(w.s[i]) {
				return
			}
		}
	}
}

// Iter is an explicit cursor over a Vec,
// for callers that cannot use range-over-func.
//
//	it := v.Iter()
//	defer it.Close()
//	for it.Next() {
//	    use(it.Value())
//	}
type Iter[T any] struct {
	w   *View[T]
	i   int
	cur T
}

// Iter returns a cursor positioned before the first element.
// v is borrowed until the cursor is exhausted or closed.
func (v *Vec[T]) Iter() *Iter[T] {
	return &Iter[T]{w: v.Borrow(), i: -1}
}

// Next advances to the next element, returning
// false (and closing the cursor) at the end.
func (it *Iter[T]) Next() bool {
	if it.w == nil {
		return false
	}
	it.i++
	if it.i >= len(it.w.s) {
		it.Close()
		return false
	}
	it.cur = it.w.s[it.i]
	return true
}

// Index returns the index of the current element.
func (it *Iter[T]) Index() int { return it.i }

// Value returns the current element.
func (it *Iter[T]) Value() T { return it.cur }

// Close releases the borrow. It is
// safe to call Close more than once.
func (it *Iter[T]) Close() {
	if it.w != nil {
		it.w.Release()
		it.w = nil
	}
}
