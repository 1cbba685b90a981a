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

// Package rawbuf implements the storage half of a
// growable array: a single contiguous block of
// element slots obtained from an alloc.Allocator.
//
// A Buf knows how many slots it has, not which of
// them hold live values; that bookkeeping belongs
// to the container that owns it.
package rawbuf

import (
	"math"
	"unsafe"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/SnellerInc/rawvec/ints"
	"github.com/cockroachdb/errors"
)

// MinCapacity is the capacity of the first
// block allocated when growing an empty Buf.
const MinCapacity = 4

// zerobase is the address handed out
// for zero-sized element types
var zerobase uintptr

// Buf is a block of element slots.
//
// The zero Buf is not usable; construct one
// with Empty or WithCapacity. A Buf must be
// released exactly once with Release.
type Buf[T any] struct {
	ptr      unsafe.Pointer // nil while cap == 0
	cap      int
	elem     alloc.Layout
	a        alloc.Allocator
	released bool
}

// Empty returns a Buf with no capacity.
// It does not allocate. If a is nil,
// alloc.Global is used.
func Empty[T any](a alloc.Allocator) Buf[T] {
	if a == nil {
		a = alloc.Global
	}
	return Buf[T]{a: a, elem: alloc.LayoutOf[T]()}
}

// WithCapacity returns a Buf with room for
// exactly n elements, allocated up front.
//
// WithCapacity panics with an error marked
// alloc.ErrOutOfMemory or alloc.ErrCapacityOverflow
// if the block cannot be obtained.
func WithCapacity[T any](a alloc.Allocator, n int) Buf[T] {
	b, err := TryWithCapacity[T](a, n)
	if err != nil {
		panic(err)
	}
	return b
}

// TryWithCapacity is like WithCapacity
// but returns the error instead of panicking.
func TryWithCapacity[T any](a alloc.Allocator, n int) (Buf[T], error) {
	b := Empty[T](a)
	if n < 0 {
		return b, errors.Wrapf(alloc.ErrCapacityOverflow, "rawbuf: negative capacity %d", n)
	}
	if n == 0 || b.zeroSized() {
		return b, nil
	}
	if err := b.resize(n); err != nil {
		return b, err
	}
	return b, nil
}

func (b *Buf[T]) zeroSized() bool { return b.elem.Size == 0 }

func (b *Buf[T]) checkLive() {
	if b.released {
		panic(errors.Wrap(alloc.ErrDoubleRelease, "rawbuf: use of released buffer"))
	}
	if b.a == nil {
		panic(errors.AssertionFailedf("rawbuf: use of uninitialized Buf"))
	}
}

// Cap returns the number of element slots.
// Zero-sized element types never need
// storage, so their capacity is math.MaxInt.
func (b *Buf[T]) Cap() int {
	if b.zeroSized() && !b.released {
		return math.MaxInt
	}
	return b.cap
}

// Layout returns the layout of a single element.
func (b *Buf[T]) Layout() alloc.Layout { return b.elem }

// Allocator returns the allocator that
// provides b's memory.
func (b *Buf[T]) Allocator() alloc.Allocator { return b.a }

// Released returns whether Release has been called.
func (b *Buf[T]) Released() bool { return b.released }

// Slice returns all Cap() slots of b.
//
// The slice aliases b's block and is invalidated
// by any call that changes the capacity.
// Which slots hold meaningful values is up to the caller.
func (b *Buf[T]) Slice() []T {
	if b.zeroSized() {
		return unsafe.Slice((*T)(unsafe.Pointer(&zerobase)), b.Cap())
	}
	if b.cap == 0 {
		return nil
	}
	return unsafe.Slice((*T)(b.ptr), b.cap)
}

// Grow makes room for at least min elements.
//
// If min exceeds the current capacity, the new
// capacity is the larger of min and twice the current
// capacity (and at least MinCapacity), so that a
// sequence of n single-element grows costs O(n).
//
// Grow panics with an error marked alloc.ErrOutOfMemory
// or alloc.ErrCapacityOverflow if the allocator fails;
// b is left exactly as it was.
func (b *Buf[T]) Grow(min int) {
	if err := b.TryGrow(min); err != nil {
		panic(err)
	}
}

// TryGrow is like Grow but returns
// the error instead of panicking.
func (b *Buf[T]) TryGrow(min int) error {
	b.checkLive()
	if min <= b.Cap() {
		return nil
	}
	if b.zeroSized() {
		return errors.Wrapf(alloc.ErrCapacityOverflow, "rawbuf: capacity %d", min)
	}
	want, ok := ints.MulIntChecked(b.cap, 2)
	if !ok {
		want = min
	}
	want = max(want, min, MinCapacity)
	return b.resize(want)
}

// Reserve ensures that there is room for extra
// more elements after the first n slots.
// It panics like Grow on failure.
func (b *Buf[T]) Reserve(n, extra int) {
	if err := b.TryReserve(n, extra); err != nil {
		panic(err)
	}
}

// TryReserve is like Reserve but returns
// the error instead of panicking.
func (b *Buf[T]) TryReserve(n, extra int) error {
	if extra < 0 {
		return errors.Wrapf(alloc.ErrCapacityOverflow, "rawbuf: negative reservation %d", extra)
	}
	need, ok := ints.AddChecked(uint(n), uint(extra))
	if !ok || need > math.MaxInt {
		return errors.Wrapf(alloc.ErrCapacityOverflow, "rawbuf: %d + %d elements", n, extra)
	}
	return b.TryGrow(int(need))
}

// ShrinkTo reduces the capacity to n
// if it is currently larger. Shrinking to
// zero returns the block to the allocator
// and leaves b empty but usable.
// ShrinkTo panics like Grow if the allocator
// cannot resize the block.
func (b *Buf[T]) ShrinkTo(n int) {
	b.checkLive()
	if n < 0 {
		n = 0
	}
	if b.zeroSized() || n >= b.cap {
		return
	}
	if n == 0 {
		b.free()
		return
	}
	if err := b.resize(n); err != nil {
		panic(err)
	}
}

// resize moves b to a block of exactly n slots;
// on failure b is unchanged
func (b *Buf[T]) resize(n int) error {
	to, err := b.elem.Array(n)
	if err != nil {
		return errors.Wrap(err, "rawbuf")
	}
	var p unsafe.Pointer
	if b.cap == 0 {
		p, err = b.a.Request(to)
	} else {
		from, _ := b.elem.Array(b.cap)
		p, err = b.a.Resize(b.ptr, from, to)
	}
	if err != nil {
		return errors.Wrapf(err, "rawbuf: resizing %d -> %d elements", b.cap, n)
	}
	b.ptr, b.cap = p, n
	return nil
}

func (b *Buf[T]) free() {
	if b.cap > 0 {
		l, _ := b.elem.Array(b.cap)
		b.a.Release(b.ptr, l)
	}
	b.ptr, b.cap = nil, 0
}

// Release returns b's block to its allocator.
// A second call panics with an error
// marked alloc.ErrDoubleRelease.
func (b *Buf[T]) Release() {
	b.checkLive()
	b.free()
	b.released = true
}
