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

// Package heap implements generic min-heap
// operations on a vec.Vec.
package heap

import (
	"github.com/SnellerInc/rawvec/vec"
)

// Fix fixes the element at index in order
// to preserve the min-heap invariant determined
// by the provided comparison function.
func Fix[T any](v *vec.Vec[T], index int, less func(x, y T) bool) {
	siftDown(v, index, less)
	siftUp(v, index, less)
}

// Pop removes the "smallest" element from v
// based on the provided comparison function
// and updates v appropriately to preserve the
// heap invariant. Pop returns false if v is empty.
func Pop[T any](v *vec.Vec[T], less func(x, y T) bool) (T, bool) {
	if v.IsEmpty() {
		var zero T
		return zero, false
	}
	ret := v.SwapRemove(0)
	if v.Len() > 0 {
		siftDown(v, 0, less)
	}
	return ret, true
}

// Push adds item to v while preserving
// the min-heap invariant determined by the
// provided comparison function.
func Push[T any](v *vec.Vec[T], item T, less func(x, y T) bool) {
	v.Push(item)
	siftUp(v, v.Len()-1, less)
}

// Order shuffles v into min-heap ordering
// according to the provided comparison function.
// If v is not empty, the "smallest" element in v will
// always be at index 0.
func Order[T any](v *vec.Vec[T], less func(x, y T) bool) {
	for i := v.Len()/2 - 1; i >= 0; i-- {
		siftDown(v, i, less)
	}
}

func siftUp[T any](v *vec.Vec[T], index int, less func(x, y T) bool) {
	for index > 0 {
		p := (index - 1) / 2
		if less(v.Index(p), v.Index(index)) {
			break
		}
		v.Swap(p, index)
		index = p
	}
}

func siftDown[T any](v *vec.Vec[T], index int, less func(x, y T) bool) {
	n := v.Len()
	for {
		left := (index * 2) + 1
		right := left + 1
		if left >= n {
			break
		}
		c := left
		if n > right && less(v.Index(right), v.Index(left)) {
			c = right
		}
		if less(v.Index(index), v.Index(c)) {
			break
		}
		v.Swap(c, index)
		index = c
	}
}
