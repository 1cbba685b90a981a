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

package alloc

import (
	"reflect"
	"unsafe"

	"github.com/SnellerInc/rawvec/ints"
	"github.com/cockroachdb/errors"
)

// Heap is an Allocator backed by the Go heap.
//
// Release only drops the allocator's interest
// in a block; the memory is reclaimed by the
// garbage collector once nothing refers to it.
type Heap struct{}

// Global is the allocator used when none is specified.
var Global Allocator = Heap{}

const wordSize = unsafe.Sizeof(uint64(0))

// Request implements Allocator.Request
func (h Heap) Request(l Layout) (p unsafe.Pointer, err error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	// the runtime panics (rather than failing the
	// allocation) for sizes it can never satisfy
	defer func() {
		if e := recover(); e != nil {
			p, err = nil, outOfMemory(l, errors.Newf("%v", e))
		}
	}()
	if l.Pointers() {
		return h.typed(l), nil
	}
	return h.words(l), nil
}

// typed allocates l as a slice of l.Elem so
// that the collector knows where the pointers are
func (Heap) typed(l Layout) unsafe.Pointer {
	n := l.Count()
	s := reflect.MakeSlice(reflect.SliceOf(l.Elem), n, n)
	return s.UnsafePointer()
}

// words allocates l from pointer-free memory,
// over-allocating when l wants more alignment
// than the runtime guarantees
func (Heap) words(l Layout) unsafe.Pointer {
	size := l.Size
	if l.Align > wordSize {
		size += l.Align - wordSize
	}
	w := make([]uint64, ints.ChunkCount(size, wordSize))
	base := uintptr(unsafe.Pointer(&w[0]))
	if l.Align <= wordSize {
		return unsafe.Pointer(&w[0])
	}
	off := ints.AlignUp(base, l.Align) - base
	return unsafe.Add(unsafe.Pointer(&w[0]), off)
}

// Resize implements Allocator.Resize
//
// The Go heap cannot grow a block in place,
// so Resize always returns a new block.
func (h Heap) Resize(p unsafe.Pointer, from, to Layout) (unsafe.Pointer, error) {
	q, err := h.Request(to)
	if err != nil {
		return nil, err
	}
	if to.Pointers() {
		// typed copy so the write barrier sees the pointers
		src := reflect.SliceAt(from.Elem, p, from.Count())
		dst := reflect.SliceAt(to.Elem, q, to.Count())
		reflect.Copy(dst, src)
		return q, nil
	}
	moveBytes(q, p, from, to)
	return q, nil
}

// Release implements Allocator.Release
func (Heap) Release(p unsafe.Pointer, l Layout) {}
