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
	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfMemory is the mark carried by every
	// error returned when an allocator cannot satisfy
	// a request.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrCapacityOverflow indicates that a requested
	// capacity cannot be represented in bytes.
	ErrCapacityOverflow = errors.New("capacity overflow")
	// ErrPointers is returned by allocators that cannot
	// hold Go pointers when asked for such a layout.
	ErrPointers = errors.New("layout holds Go pointers")
	// ErrBadLayout indicates a malformed Layout
	// (zero size or a non power-of-two alignment).
	ErrBadLayout = errors.New("bad layout")
	// ErrDoubleRelease is the mark on panics raised
	// when a block is released more than once.
	ErrDoubleRelease = errors.New("double release")
)

func outOfMemory(l Layout, cause error) error {
	if cause == nil {
		return errors.Wrapf(ErrOutOfMemory, "%d bytes (align %d)", l.Size, l.Align)
	}
	return errors.Mark(errors.Wrapf(cause, "allocating %d bytes (align %d)", l.Size, l.Align), ErrOutOfMemory)
}
