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

// Package vec implements Vec, a growable array whose
// storage is obtained from an alloc.Allocator instead
// of the Go runtime's append.
//
// A Vec has a single owner. The first Len() slots of
// its storage hold live elements; the remaining
// Cap()-Len() slots are allocated but hold nothing and
// are never exposed. Growth doubles the capacity.
//
// Routine outcomes (popping an empty Vec, Get with an
// index that is out of range) are reported through a
// boolean result. Contract violations and allocator
// failures panic with an error value; use errors.Is
// with ErrOutOfRange, ErrBorrowed, ErrDropped,
// alloc.ErrOutOfMemory, or alloc.ErrCapacityOverflow
// to classify a recovered panic.
//
// # Borrows
//
// Growing a Vec may move its storage, so any reference
// into the old storage would dangle. Read access that
// hands out references (Borrow, Iter, All, Values)
// registers a borrow, and every mutating method panics
// with ErrBorrowed while a borrow is outstanding.
//
// # Destruction
//
// Drop runs the element destructor (see Dropper and
// WithDrop) on every live element in index order and
// then returns the storage to the allocator. It must be
// called exactly once; Scope arranges that on every
// exit path.
package vec
