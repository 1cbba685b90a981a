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
	"fmt"
	"sort"
	"strings"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// PoisonByte is written over pointer-free
// blocks released through a Tracker with
// Poison set, so that reads of released
// memory produce recognizable garbage.
const PoisonByte = 0xdd

// Tracker wraps an Allocator and keeps a record
// of every block it has handed out.
//
// A Tracker panics with an error marked ErrDoubleRelease
// when asked to resize or release a block that it does
// not know about, and reports the blocks that are still
// outstanding through Leaks. It is meant for tests and
// debugging; the bookkeeping costs a map operation per call.
type Tracker struct {
	// Allocator is the allocator that
	// actually provides memory.
	Allocator Allocator
	// Logger, if non-nil, receives a debug
	// line for every operation and an error
	// line for every contract violation.
	Logger log.Logger
	// Poison, if set, overwrites pointer-free
	// blocks with PoisonByte before they are released.
	Poison bool

	mu       sync.Mutex
	live     map[uintptr]Layout
	inuse    uintptr
	peak     uintptr
	requests int
	releases int
}

// NewTracker returns a Tracker wrapping a.
func NewTracker(a Allocator, logger log.Logger) *Tracker {
	return &Tracker{Allocator: a, Logger: logger}
}

func (t *Tracker) logger() log.Logger {
	if t.Logger == nil {
		return log.NewNopLogger()
	}
	return t.Logger
}

func (t *Tracker) inner() Allocator {
	if t.Allocator == nil {
		return Global
	}
	return t.Allocator
}

func (t *Tracker) add(p unsafe.Pointer, l Layout) {
	if t.live == nil {
		t.live = make(map[uintptr]Layout)
	}
	t.live[uintptr(p)] = l
	t.inuse += l.Size
	if t.inuse > t.peak {
		t.peak = t.inuse
	}
}

// locked runs fn with t.mu held; the lock is
// dropped even if fn panics, so a recovered
// misuse leaves t usable
func (t *Tracker) locked(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn()
}

// take removes p from the live set, panicking
// if p is unknown or l disagrees with the layout
// p was obtained with
func (t *Tracker) take(op string, p unsafe.Pointer, l Layout) {
	got, ok := t.live[uintptr(p)]
	if !ok {
		err := errors.Wrapf(ErrDoubleRelease, "%s of unknown block %p", op, p)
		level.Error(t.logger()).Log("msg", "bad block", "op", op, "addr", fmt.Sprintf("%p", p), "err", err)
		panic(err)
	}
	if got.Size != l.Size || got.Align != l.Align {
		err := errors.AssertionFailedf("%s of block %p with layout %d/%d; allocated as %d/%d",
			op, p, l.Size, l.Align, got.Size, got.Align)
		level.Error(t.logger()).Log("msg", "layout mismatch", "op", op, "err", err)
		panic(err)
	}
	delete(t.live, uintptr(p))
	t.inuse -= got.Size
}

// Request implements Allocator.Request
func (t *Tracker) Request(l Layout) (unsafe.Pointer, error) {
	p, err := t.inner().Request(l)
	if err != nil {
		level.Debug(t.logger()).Log("msg", "request failed", "size", l.Size, "err", err)
		return nil, err
	}
	t.mu.Lock()
	t.add(p, l)
	t.requests++
	t.mu.Unlock()
	level.Debug(t.logger()).Log("msg", "request", "addr", fmt.Sprintf("%p", p), "size", l.Size)
	return p, nil
}

// Resize implements Allocator.Resize
func (t *Tracker) Resize(p unsafe.Pointer, from, to Layout) (unsafe.Pointer, error) {
	t.mu.Lock()
	_, ok := t.live[uintptr(p)]
	t.mu.Unlock()
	if !ok {
		err := errors.Wrapf(ErrDoubleRelease, "resize of unknown block %p", p)
		level.Error(t.logger()).Log("msg", "bad block", "op", "resize", "err", err)
		panic(err)
	}
	q, err := t.inner().Resize(p, from, to)
	if err != nil {
		level.Debug(t.logger()).Log("msg", "resize failed", "from", from.Size, "to", to.Size, "err", err)
		return nil, err
	}
	t.locked(func() {
		t.take("resize", p, from)
		t.add(q, to)
	})
	level.Debug(t.logger()).Log("msg", "resize", "from", from.Size, "to", to.Size, "moved", p != q)
	return q, nil
}

// Release implements Allocator.Release
func (t *Tracker) Release(p unsafe.Pointer, l Layout) {
	t.locked(func() {
		t.take("release", p, l)
		t.releases++
	})
	if t.Poison && !l.Pointers() {
		mem := bytesOf(p, l.Size)
		for i := range mem {
			mem[i] = PoisonByte
		}
	}
	t.inner().Release(p, l)
	level.Debug(t.logger()).Log("msg", "release", "addr", fmt.Sprintf("%p", p), "size", l.Size)
}

// TrackerStats is a snapshot of a Tracker's counters.
type TrackerStats struct {
	Live     int     // blocks outstanding
	InUse    uintptr // bytes outstanding
	Peak     uintptr // high-water mark of InUse
	Requests int     // successful Request calls
	Releases int     // Release calls
}

// Stats returns the current counters.
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackerStats{
		Live:     len(t.live),
		InUse:    t.inuse,
		Peak:     t.peak,
		Requests: t.requests,
		Releases: t.releases,
	}
}

// Live returns the number of outstanding blocks.
func (t *Tracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Leaks returns an error describing every
// outstanding block, or nil if there are none.
func (t *Tracker) Leaks() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.live) == 0 {
		return nil
	}
	addrs := make([]uintptr, 0, len(t.live))
	for p := range t.live {
		addrs = append(addrs, p)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	var b strings.Builder
	for i, p := range addrs {
		if i > 0 {
			b.WriteString(", ")
		}
		l := t.live[p]
		fmt.Fprintf(&b, "%#x (%d bytes)", p, l.Size)
	}
	return errors.Newf("%d blocks leaked: %s", len(addrs), b.String())
}
