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
	"github.com/cockroachdb/errors"
)

// Drop destroys v: it runs the element destructor
// on elements 0 through Len()-1 in order, then returns
// the storage to the allocator.
//
// If a destructor panics, the remaining elements are
// still destroyed and the storage is still released
// before the panic continues.
//
// Drop must be called exactly once. A second call,
// like any other use of v afterwards, panics with an
// error marked ErrDropped. Dropping a Vec that has
// views or iterators outstanding panics with ErrBorrowed
// and leaves v intact.
func (v *Vec[T]) Drop() {
	if v.dropped {
		panic(errors.Wrap(ErrDropped, "vec: Drop called twice"))
	}
	if v.borrows > 0 {
		panic(errors.Wrapf(ErrBorrowed, "vec: Drop with %d borrows outstanding", v.borrows))
	}
	v.dropped = true
	noLeakCheck(v)
	elems := v.slots()
	v.len = 0
	defer v.buf.Release()
	dropAll(elems, v.drop)
}

// Dropped returns whether Drop has been called.
func (v *Vec[T]) Dropped() bool { return v.dropped }

// dropAll runs drop on each element of s in order;
// a panic from drop does not stop the elements
// after it from being dropped
func dropAll[T any](s []T, drop func(*T)) {
	if drop == nil {
		return
	}
	i := 0
	defer func() {
		if i < len(s) {
			// s[i] panicked; the panic resumes
			// once the rest have been dropped
			dropAll(s[i+1:], drop)
		}
	}()
	for ; i < len(s); i++ {
		drop(&s[i])
	}
}

// Scope creates a Vec, passes it to fn, and drops
// it when fn returns or panics. The Vec must not
// escape fn. fn may drop the Vec itself.
func Scope[T any](fn func(v *Vec[T]) error, opts ...Option) error {
	v := New[T](opts...)
	defer func() {
		if !v.dropped {
			v.Drop()
		}
	}()
	return fn(v)
}
