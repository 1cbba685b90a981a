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
	"unsafe"
)

// Allocator is the capability the containers
// use to obtain, resize, and return raw memory.
//
// A block returned by Request or Resize belongs to
// the caller until it is passed to Resize or Release.
// Callers must pass back the same Layout they used
// to obtain the block.
type Allocator interface {
	// Request returns a block of at least l.Size bytes
	// aligned to l.Align. The contents are unspecified.
	Request(l Layout) (unsafe.Pointer, error)
	// Resize returns a block described by to
	// holding the first min(from.Size, to.Size) bytes
	// of p. The result may or may not equal p.
	// If Resize fails, p remains valid and unchanged.
	Resize(p unsafe.Pointer, from, to Layout) (unsafe.Pointer, error)
	// Release returns p to the allocator.
	// Releasing a block twice is a contract
	// violation that allocators may not detect;
	// see Tracker.
	Release(p unsafe.Pointer, l Layout)
}

// bytesOf returns the first n bytes at p.
func bytesOf(p unsafe.Pointer, n uintptr) []byte {
	return unsafe.Slice((*byte)(p), n)
}

// moveBytes copies the common prefix of two
// pointer-free blocks.
func moveBytes(dst, src unsafe.Pointer, from, to Layout) {
	n := from.Size
	if to.Size < n {
		n = to.Size
	}
	copy(bytesOf(dst, n), bytesOf(src, n))
}
