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
	"sync/atomic"
	"unsafe"

	"github.com/SnellerInc/rawvec/ints"
	"github.com/cockroachdb/errors"
)

// Pages is an Allocator that maps memory
// directly from the operating system.
//
// Every block occupies a whole number of
// OS pages, so Pages is best suited to large
// buffers. Blocks live outside the Go heap and
// therefore must not hold Go pointers; Request
// and Resize fail with ErrPointers for layouts
// whose element type has any.
//
// The zero value is ready to use. A Pages
// may be shared between goroutines.
type Pages struct {
	// bytes currently mapped
	inuse atomic.Int64
}

// InUse returns the number of bytes currently
// mapped through p that have not been released.
func (p *Pages) InUse() int64 {
	return p.inuse.Load()
}

// PageSize returns the granularity of
// blocks returned by a Pages allocator.
func PageSize() int {
	return int(pageSize())
}

func roundPage(n uintptr) uintptr {
	return ints.AlignUp(n, pageSize())
}

func (p *Pages) check(l Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.Pointers() {
		return errors.Wrapf(ErrPointers, "cannot map %s outside the Go heap", l.Elem)
	}
	if l.Align > pageSize() {
		return errors.Wrapf(ErrBadLayout, "alignment %d exceeds the page size", l.Align)
	}
	return nil
}

// Request implements Allocator.Request
func (p *Pages) Request(l Layout) (unsafe.Pointer, error) {
	if err := p.check(l); err != nil {
		return nil, err
	}
	size := roundPage(l.Size)
	mem, err := mapPages(size)
	if err != nil {
		return nil, outOfMemory(l, err)
	}
	p.inuse.Add(int64(size))
	return unsafe.Pointer(&mem[0]), nil
}

// Resize implements Allocator.Resize
//
// Where the platform supports it, the
// mapping is extended in place.
func (p *Pages) Resize(ptr unsafe.Pointer, from, to Layout) (unsafe.Pointer, error) {
	if err := p.check(to); err != nil {
		return nil, err
	}
	oldsize, newsize := roundPage(from.Size), roundPage(to.Size)
	if oldsize == newsize {
		return ptr, nil
	}
	mem, err := remapPages(bytesOf(ptr, oldsize), newsize)
	if err != nil {
		return nil, outOfMemory(to, err)
	}
	p.inuse.Add(int64(newsize) - int64(oldsize))
	return unsafe.Pointer(&mem[0]), nil
}

// Release implements Allocator.Release
func (p *Pages) Release(ptr unsafe.Pointer, l Layout) {
	size := roundPage(l.Size)
	if err := unmapPages(bytesOf(ptr, size)); err != nil {
		panic("alloc: couldn't unmap pages: " + err.Error())
	}
	p.inuse.Add(-int64(size))
}

// remapCopy moves old into a fresh
// mapping of size bytes
func remapCopy(old []byte, size uintptr) ([]byte, error) {
	mem, err := mapPages(size)
	if err != nil {
		return nil, err
	}
	copy(mem, old)
	if err := unmapPages(old); err != nil {
		unmapPages(mem)
		return nil, err
	}
	return mem, nil
}
