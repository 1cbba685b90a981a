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
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerDoubleRelease(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(Heap{}, log.NewLogfmtLogger(&buf))
	l := Bytes(64, 8)
	p, err := tr.Request(l)
	require.NoError(t, err)
	require.Equal(t, 1, tr.Live())
	require.Error(t, tr.Leaks())

	tr.Release(p, l)
	require.NoError(t, tr.Leaks())

	defer func() {
		e := recover()
		require.NotNil(t, e)
		err, ok := e.(error)
		require.True(t, ok)
		require.True(t, errors.Is(err, ErrDoubleRelease))
		require.Contains(t, buf.String(), "bad block")
	}()
	tr.Release(p, l)
	t.Fatal("second release should panic")
}

func TestTrackerResize(t *testing.T) {
	tr := NewTracker(nil, nil)
	a, b := Bytes(16, 8), Bytes(256, 8)
	p, err := tr.Request(a)
	require.NoError(t, err)
	q, err := tr.Resize(p, a, b)
	require.NoError(t, err)
	st := tr.Stats()
	require.Equal(t, 1, st.Live)
	require.Equal(t, uintptr(256), st.InUse)
	require.Equal(t, uintptr(256), st.Peak)

	// the old block is gone once it has been resized
	require.Panics(t, func() { tr.Release(p, a) })
	tr.Release(q, b)
	require.Equal(t, 0, tr.Live())
}

func TestTrackerUsableAfterRecoveredMisuse(t *testing.T) {
	tr := NewTracker(nil, nil)
	l := Bytes(64, 8)
	p, err := tr.Request(l)
	require.NoError(t, err)
	q, err := tr.Request(l)
	require.NoError(t, err)
	tr.Release(p, l)

	require.Panics(t, func() { tr.Release(p, l) })
	require.Panics(t, func() { tr.Release(q, Bytes(128, 8)) })
	_, err = tr.Resize(q, l, Bytes(128, 8))
	require.NoError(t, err)
	require.Panics(t, func() { tr.Resize(p, l, Bytes(128, 8)) })

	// none of the panics may leave the lock held
	require.Error(t, tr.Leaks())
	require.Equal(t, 1, tr.Live())
	require.Equal(t, 1, tr.Stats().Releases)
}

func TestTrackerLayoutMismatch(t *testing.T) {
	tr := NewTracker(nil, nil)
	p, err := tr.Request(Bytes(32, 8))
	require.NoError(t, err)
	require.Panics(t, func() { tr.Release(p, Bytes(64, 8)) })
}

func TestTrackerPoison(t *testing.T) {
	tr := &Tracker{Poison: true}
	l := Bytes(32, 8)
	p, err := tr.Request(l)
	require.NoError(t, err)
	mem := bytesOf(p, l.Size)
	copy(mem, "live data")
	tr.Release(p, l)
	// the heap allocator doesn't unmap anything,
	// so the poisoned bytes are still observable
	for i := range mem {
		require.Equal(t, byte(PoisonByte), mem[i])
	}
}

func TestLimited(t *testing.T) {
	lim := NewLimited(Heap{}, 1024)
	a := Bytes(512, 8)
	p, err := lim.Request(a)
	require.NoError(t, err)
	_, err = lim.Request(Bytes(1024, 8))
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.Equal(t, uintptr(512), lim.InUse())

	_, err = lim.Resize(p, a, Bytes(2048, 8))
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.Equal(t, uintptr(512), lim.InUse(), "failed resize must not charge")

	q, err := lim.Resize(p, a, Bytes(1024, 8))
	require.NoError(t, err)
	require.Equal(t, uintptr(1024), lim.InUse())
	q, err = lim.Resize(q, Bytes(1024, 8), Bytes(128, 8))
	require.NoError(t, err)
	require.Equal(t, uintptr(128), lim.InUse())
	lim.Release(q, Bytes(128, 8))
	require.Zero(t, lim.InUse())
}

func TestInstrumented(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInstrumented(NewLimited(nil, 100), reg, "test")
	l := Bytes(64, 8)
	p, err := m.Request(l)
	require.NoError(t, err)
	_, err = m.Request(l)
	require.Error(t, err)
	q, err := m.Resize(p, l, Bytes(96, 8))
	require.NoError(t, err)

	require.Equal(t, 2.0, testutil.ToFloat64(m.ops.WithLabelValues("request")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("request")))
	require.Equal(t, 96.0, testutil.ToFloat64(m.bytes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.blocks))

	m.Release(q, Bytes(96, 8))
	require.Equal(t, 0.0, testutil.ToFloat64(m.bytes))
	require.Equal(t, 0.0, testutil.ToFloat64(m.blocks))

	n, err := testutil.GatherAndCount(reg, "rawvec_alloc_bytes_in_use")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMemTotal(t *testing.T) {
	require.GreaterOrEqual(t, MemTotal(), int64(0))
}
