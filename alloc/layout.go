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
	"math"
	"reflect"
	"unsafe"

	"github.com/SnellerInc/rawvec/ints"
	"github.com/cockroachdb/errors"
)

// MaxSize is the largest block size in bytes
// that any allocator will be asked for.
const MaxSize = uintptr(math.MaxInt)

// Layout describes a block of memory.
//
// Elem, if non-nil, is the type of the elements
// stored in the block; Size is then a multiple
// of Elem.Size(). Allocators that hand out memory
// visible to the garbage collector use Elem to
// decide whether the block has to be scanned.
type Layout struct {
	Size  uintptr
	Align uintptr
	Elem  reflect.Type
}

// LayoutOf returns the layout of a single T.
func LayoutOf[T any]() Layout {
	var zero T
	return Layout{
		Size:  unsafe.Sizeof(zero),
		Align: unsafe.Alignof(zero),
		Elem:  reflect.TypeOf((*T)(nil)).Elem(),
	}
}

// Bytes returns the layout of n untyped bytes
// with the given alignment.
func Bytes(n, align uintptr) Layout {
	return Layout{Size: n, Align: align}
}

// Array returns the layout of n consecutive
// elements described by l.
//
// Array returns an error marked with ErrCapacityOverflow
// if the total size would exceed MaxSize.
func (l Layout) Array(n int) (Layout, error) {
	if n < 0 {
		return Layout{}, errors.Wrapf(ErrCapacityOverflow, "negative element count %d", n)
	}
	size, ok := ints.MulChecked(l.Size, uintptr(n))
	if !ok || size > MaxSize {
		return Layout{}, errors.Wrapf(ErrCapacityOverflow, "%d elements of %d bytes", n, l.Size)
	}
	return Layout{Size: size, Align: l.Align, Elem: l.Elem}, nil
}

// Count returns the number of elements of type
// l.Elem that fit in l, or 0 if l is untyped.
func (l Layout) Count() int {
	if l.Elem == nil || l.Elem.Size() == 0 {
		return 0
	}
	return int(l.Size / l.Elem.Size())
}

// Pointers returns whether a block with
// this layout may hold Go pointers.
func (l Layout) Pointers() bool {
	return l.Elem != nil && HasPointers(l.Elem)
}

// Validate checks that l can be passed to an Allocator.
func (l Layout) Validate() error {
	if l.Size == 0 {
		return errors.Wrap(ErrBadLayout, "zero-sized block")
	}
	if l.Size > MaxSize {
		return errors.Wrapf(ErrCapacityOverflow, "%d bytes", l.Size)
	}
	if !ints.IsPow2(l.Align) {
		return errors.Wrapf(ErrBadLayout, "alignment %d is not a power of two", l.Align)
	}
	if l.Elem != nil {
		if l.Elem.Size() == 0 {
			return errors.Wrapf(ErrBadLayout, "zero-sized element type %s", l.Elem)
		}
		if l.Size%l.Elem.Size() != 0 {
			return errors.Wrapf(ErrBadLayout, "size %d is not a multiple of %s", l.Size, l.Elem)
		}
	}
	return nil
}

// HasPointers returns whether values of type t
// contain anything the garbage collector has to trace.
func HasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && HasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if HasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		// pointers, strings, slices, maps,
		// channels, funcs, interfaces
		return true
	}
}
