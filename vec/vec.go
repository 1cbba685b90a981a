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
	"fmt"
	"strings"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/SnellerInc/rawvec/rawbuf"
	"github.com/cockroachdb/errors"
)

// exists to tickle the "go vet" copylocks check
type noCopy struct{}

func (n noCopy) Lock()   {}
func (n noCopy) Unlock() {}

// Vec is a growable array of T.
//
// A Vec must not be copied; pass *Vec.
// A Vec is not safe for concurrent use.
type Vec[T any] struct {
	_       noCopy
	buf     rawbuf.Buf[T]
	len     int
	borrows int
	dropped bool
	drop    func(*T)

	finalizer bool // a leak check is armed
}

// New returns an empty Vec. It does not allocate.
func New[T any](opts ...Option) *Vec[T] {
	a, drop := resolve[T](opts)
	v := &Vec[T]{buf: rawbuf.Empty[T](a), drop: drop}
	leakCheck(v)
	return v
}

// WithCapacity returns an empty Vec with room for
// at least n elements, allocated up front.
//
// WithCapacity panics with an error marked
// alloc.ErrOutOfMemory or alloc.ErrCapacityOverflow
// if the storage cannot be obtained.
func WithCapacity[T any](n int, opts ...Option) *Vec[T] {
	v, err := TryWithCapacity[T](n, opts...)
	if err != nil {
		panic(err)
	}
	return v
}

// TryWithCapacity is like WithCapacity but
// returns the error instead of panicking.
func TryWithCapacity[T any](n int, opts ...Option) (*Vec[T], error) {
	a, drop := resolve[T](opts)
	buf, err := rawbuf.TryWithCapacity[T](a, n)
	if err != nil {
		return nil, err
	}
	v := &Vec[T]{buf: buf, drop: drop}
	leakCheck(v)
	return v, nil
}

// From returns a Vec holding a copy of xs.
func From[T any](xs []T, opts ...Option) *Vec[T] {
	v := WithCapacity[T](len(xs), opts...)
	v.Extend(xs...)
	return v
}

// live panics if v has been dropped
func (v *Vec[T]) live() {
	if v.dropped {
		panic(errors.Wrap(ErrDropped, "vec: use after Drop"))
	}
}

// mut panics unless v may be modified
func (v *Vec[T]) mut() {
	v.live()
	if v.borrows > 0 {
		panic(errors.Wrapf(ErrBorrowed, "vec: mutation with %d borrows outstanding", v.borrows))
	}
}

// slots returns the live elements
func (v *Vec[T]) slots() []T {
	return v.buf.Slice()[:v.len]
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int { return v.len }

// Cap returns the number of elements
// v can hold without reallocating.
func (v *Vec[T]) Cap() int { return v.buf.Cap() }

// IsEmpty returns whether Len() == 0.
func (v *Vec[T]) IsEmpty() bool { return v.len == 0 }

// Allocator returns the allocator
// that provides v's storage.
func (v *Vec[T]) Allocator() alloc.Allocator { return v.buf.Allocator() }

// Push appends x.
//
// If v is full, its storage grows first;
// if that fails, Push panics and v is unchanged.
func (v *Vec[T]) Push(x T) {
	if err := v.TryPush(x); err != nil {
		panic(err)
	}
}

// TryPush is like Push but returns an
// allocator failure instead of panicking.
func (v *Vec[T]) TryPush(x T) error {
	v.mut()
	if v.len == v.buf.Cap() {
		if err := v.buf.TryReserve(v.len, 1); err != nil {
			return err
		}
	}
	v.buf.Slice()[v.len] = x
	v.len++
	return nil
}

// Pop removes and returns the last element,
// or returns false if v is empty.
// The capacity is unchanged.
func (v *Vec[T]) Pop() (T, bool) {
	v.mut()
	var zero T
	if v.len == 0 {
		return zero, false
	}
	s := v.slots()
	x := s[v.len-1]
	s[v.len-1] = zero
	v.len--
	return x, true
}

// Get returns a copy of element i,
// or false if i is out of range.
func (v *Vec[T]) Get(i int) (T, bool) {
	v.live()
	if i < 0 || i >= v.len {
		var zero T
		return zero, false
	}
	return v.slots()[i], true
}

// Index returns a copy of element i.
// It panics with ErrOutOfRange if i
// is not less than Len().
func (v *Vec[T]) Index(i int) T {
	v.live()
	if i < 0 || i >= v.len {
		panic(outOfRange("Index", i, v.len))
	}
	return v.slots()[i]
}

// First returns the first element, if any.
func (v *Vec[T]) First() (T, bool) { return v.Get(0) }

// Last returns the last element, if any.
func (v *Vec[T]) Last() (T, bool) { return v.Get(v.len - 1) }

// Set replaces element i with x, dropping
// the previous value. It panics with
// ErrOutOfRange if i is out of range.
func (v *Vec[T]) Set(i int, x T) {
	v.mut()
	if i < 0 || i >= v.len {
		panic(outOfRange("Set", i, v.len))
	}
	s := v.slots()
	old := s[i]
	s[i] = x
	if v.drop != nil {
		v.drop(&old)
	}
}

// Insert places x at index i, shifting
// the elements at i and after one place
// to the right. i may equal Len().
// Insert panics with ErrOutOfRange if
// i > Len(), and like Push if the
// storage cannot grow.
func (v *Vec[T]) Insert(i int, x T) {
	v.mut()
	if i < 0 || i > v.len {
		panic(outOfRange("Insert", i, v.len))
	}
	if v.len == v.buf.Cap() {
		v.buf.Reserve(v.len, 1)
	}
	s := v.buf.Slice()[:v.len+1]
	// copy has memmove semantics, which is
	// equivalent to moving the highest index first
	copy(s[i+1:], s[i:v.len])
	s[i] = x
	v.len++
}

// Remove removes and returns element i,
// shifting the elements after it one place
// to the left. It panics with ErrOutOfRange
// if i >= Len().
func (v *Vec[T]) Remove(i int) T {
	v.mut()
	if i < 0 || i >= v.len {
		panic(outOfRange("Remove", i, v.len))
	}
	s := v.slots()
	x := s[i]
	copy(s[i:], s[i+1:])
	var zero T
	s[v.len-1] = zero
	v.len--
	return x
}

// SwapRemove removes and returns element i,
// replacing it with the last element.
// It does not preserve ordering but is O(1).
// It panics with ErrOutOfRange if i >= Len().
func (v *Vec[T]) SwapRemove(i int) T {
	v.mut()
	if i < 0 || i >= v.len {
		panic(outOfRange("SwapRemove", i, v.len))
	}
	s := v.slots()
	x := s[i]
	s[i] = s[v.len-1]
	var zero T
	s[v.len-1] = zero
	v.len--
	return x
}

// Swap exchanges elements i and j.
func (v *Vec[T]) Swap(i, j int) {
	v.mut()
	if i < 0 || i >= v.len {
		panic(outOfRange("Swap", i, v.len))
	}
	if j < 0 || j >= v.len {
		panic(outOfRange("Swap", j, v.len))
	}
	s := v.slots()
	s[i], s[j] = s[j], s[i]
}

// Extend appends xs in order, growing
// the storage at most once.
func (v *Vec[T]) Extend(xs ...T) {
	v.mut()
	if len(xs) == 0 {
		return
	}
	v.buf.Reserve(v.len, len(xs))
	copy(v.buf.Slice()[v.len:], xs)
	v.len += len(xs)
}

// Reserve ensures there is room for at
// least extra more elements. It panics
// like Push if the storage cannot grow.
func (v *Vec[T]) Reserve(extra int) {
	if err := v.TryReserve(extra); err != nil {
		panic(err)
	}
}

// TryReserve is like Reserve but returns
// the error instead of panicking.
func (v *Vec[T]) TryReserve(extra int) error {
	v.mut()
	return v.buf.TryReserve(v.len, extra)
}

// ShrinkToFit reduces the capacity to Len().
// Shrinking an empty Vec returns its storage
// to the allocator.
func (v *Vec[T]) ShrinkToFit() {
	v.mut()
	v.buf.ShrinkTo(v.len)
}

// Truncate drops every element at index n
// and after. It is a no-op if n >= Len().
func (v *Vec[T]) Truncate(n int) {
	v.mut()
	if n < 0 {
		n = 0
	}
	if n >= v.len {
		return
	}
	tail := v.slots()[n:]
	// shorten first so that a panicking
	// destructor can't cause a second drop
	v.len = n
	defer clear(tail)
	dropAll(tail, v.drop)
}

// Clear drops every element.
// The capacity is unchanged.
func (v *Vec[T]) Clear() { v.Truncate(0) }

// String implements fmt.Stringer.
func (v *Vec[T]) String() string {
	if v.dropped {
		return "Vec(dropped)"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v.slots() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(&b, x)
	}
	b.WriteByte(']')
	return b.String()
}
