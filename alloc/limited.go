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
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Limited wraps an Allocator and refuses to let the
// number of bytes outstanding exceed Max.
//
// Requests that would go over the limit fail with
// an error marked ErrOutOfMemory without reaching
// the underlying allocator.
type Limited struct {
	Allocator Allocator
	Max       uintptr

	mu    sync.Mutex
	inuse uintptr
}

// NewLimited returns a Limited wrapping a.
func NewLimited(a Allocator, max uintptr) *Limited {
	return &Limited{Allocator: a, Max: max}
}

func (m *Limited) inner() Allocator {
	if m.Allocator == nil {
		return Global
	}
	return m.Allocator
}

// InUse returns the number of bytes charged against the limit.
func (m *Limited) InUse() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inuse
}

// charge reserves delta bytes against the
// limit; credit gives them back
func (m *Limited) charge(delta uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if delta > m.Max || m.inuse > m.Max-delta {
		return errors.Wrapf(ErrOutOfMemory, "limit of %d bytes reached (%d in use, %d requested)",
			m.Max, m.inuse, delta)
	}
	m.inuse += delta
	return nil
}

func (m *Limited) credit(delta uintptr) {
	m.mu.Lock()
	m.inuse -= delta
	m.mu.Unlock()
}

// Request implements Allocator.Request
func (m *Limited) Request(l Layout) (unsafe.Pointer, error) {
	if err := m.charge(l.Size); err != nil {
		return nil, err
	}
	p, err := m.inner().Request(l)
	if err != nil {
		m.credit(l.Size)
		return nil, err
	}
	return p, nil
}

// Resize implements Allocator.Resize
func (m *Limited) Resize(p unsafe.Pointer, from, to Layout) (unsafe.Pointer, error) {
	if to.Size <= from.Size {
		q, err := m.inner().Resize(p, from, to)
		if err == nil {
			m.credit(from.Size - to.Size)
		}
		return q, err
	}
	grow := to.Size - from.Size
	if err := m.charge(grow); err != nil {
		return nil, err
	}
	q, err := m.inner().Resize(p, from, to)
	if err != nil {
		m.credit(grow)
		return nil, err
	}
	return q, nil
}

// Release implements Allocator.Release
func (m *Limited) Release(p unsafe.Pointer, l Layout) {
	m.inner().Release(p, l)
	m.credit(l.Size)
}
