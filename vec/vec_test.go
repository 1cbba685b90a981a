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
	"runtime"
	"slices"
	"testing"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func contents[T any](v *Vec[T]) []T {
	return slices.Collect(v.Values())
}

// requirePanic runs fn and checks that it
// panicked with an error marked target
func requirePanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		e := recover()
		require.NotNil(t, e, "expected a panic")
		err, ok := e.(error)
		require.True(t, ok, "panic value %v is not an error", e)
		require.True(t, errors.Is(err, target), "panic %v is not %v", err, target)
	}()
	fn()
}

func TestNewIsEmpty(t *testing.T) {
	tr := alloc.NewTracker(nil, nil)
	v := New[int](WithAllocator(tr))
	require.Equal(t, 0, v.Len())
	require.Equal(t, 0, v.Cap())
	require.True(t, v.IsEmpty())
	v.Drop()
	require.Zero(t, tr.Stats().Requests)
}

func TestPushGet(t *testing.T) {
	v := New[int]()
	defer v.Drop()
	for i := 1; i <= 5; i++ {
		v.Push(i)
	}
	require.Equal(t, 5, v.Len())
	require.GreaterOrEqual(t, v.Cap(), 5)
	x, ok := v.Get(0)
	require.True(t, ok)
	require.Equal(t, 1, x)
	x, ok = v.Get(4)
	require.True(t, ok)
	require.Equal(t, 5, x)
	_, ok = v.Get(5)
	require.False(t, ok)
	_, ok = v.Get(-1)
	require.False(t, ok)
	require.Equal(t, 3, v.Index(2))
	requirePanic(t, ErrOutOfRange, func() { v.Index(5) })
}

func TestWithCapacityNoRealloc(t *testing.T) {
	tr := alloc.NewTracker(nil, nil)
	v := WithCapacity[int](10, WithAllocator(tr))
	for i := 0; i < 3; i++ {
		v.Push(i)
	}
	require.Equal(t, 10, v.Cap())
	require.Equal(t, 1, tr.Stats().Requests)
	v.Drop()
	require.NoError(t, tr.Leaks())
}

func TestRemove(t *testing.T) {
	v := From([]int{1, 2, 3})
	defer v.Drop()
	require.Equal(t, 2, v.Remove(1))
	require.Equal(t, []int{1, 3}, contents(v))
	require.Equal(t, 2, v.Len())
	requirePanic(t, ErrOutOfRange, func() { v.Remove(2) })
	require.Equal(t, 3, v.Remove(1))
	require.Equal(t, 1, v.Remove(0))
	require.True(t, v.IsEmpty())
}

func TestInsert(t *testing.T) {
	v := From([]int{1, 2, 3})
	defer v.Drop()
	v.Insert(1, 99)
	require.Equal(t, []int{1, 99, 2, 3}, contents(v))
	require.Equal(t, 4, v.Len())
	v.Insert(4, 100)
	v.Insert(0, -1)
	require.Equal(t, []int{-1, 1, 99, 2, 3, 100}, contents(v))
	requirePanic(t, ErrOutOfRange, func() { v.Insert(7, 0) })
	requirePanic(t, ErrOutOfRange, func() { v.Insert(-1, 0) })
}

func TestInsertGrows(t *testing.T) {
	v := New[string]()
	defer v.Drop()
	for i := 0; i < 50; i++ {
		v.Insert(0, string(rune('a'+i%26)))
	}
	require.Equal(t, 50, v.Len())
	first, _ := v.First()
	last, _ := v.Last()
	require.Equal(t, string(rune('a'+49%26)), first)
	require.Equal(t, "a", last)
}

func TestPushPopRoundTrip(t *testing.T) {
	v := From([]string{"x", "y"})
	defer v.Drop()
	n := v.Len()
	v.Push("z")
	got, ok := v.Pop()
	require.True(t, ok)
	require.Equal(t, "z", got)
	require.Equal(t, n, v.Len())

	c := v.Cap()
	v.Pop()
	v.Pop()
	_, ok = v.Pop()
	require.False(t, ok)
	require.Equal(t, c, v.Cap(), "Pop must not shrink")
}

func TestSwapRemoveAndSet(t *testing.T) {
	v := From([]int{10, 20, 30, 40})
	defer v.Drop()
	require.Equal(t, 20, v.SwapRemove(1))
	require.Equal(t, []int{10, 40, 30}, contents(v))
	v.Set(0, 5)
	v.Swap(0, 2)
	require.Equal(t, []int{30, 40, 5}, contents(v))
	requirePanic(t, ErrOutOfRange, func() { v.Set(3, 0) })
	requirePanic(t, ErrOutOfRange, func() { v.Swap(0, 3) })
	requirePanic(t, ErrOutOfRange, func() { v.SwapRemove(3) })
}

func TestExtendTruncateClear(t *testing.T) {
	tr := alloc.NewTracker(nil, nil)
	v := New[int](WithAllocator(tr))
	v.Extend(1, 2, 3, 4, 5, 6, 7)
	require.Equal(t, 1, tr.Stats().Requests, "Extend grows once")
	v.Truncate(3)
	require.Equal(t, []int{1, 2, 3}, contents(v))
	v.Truncate(10)
	require.Equal(t, 3, v.Len())
	c := v.Cap()
	v.Clear()
	require.True(t, v.IsEmpty())
	require.Equal(t, c, v.Cap())
	v.Drop()
	require.NoError(t, tr.Leaks())
}

func TestReserveShrink(t *testing.T) {
	tr := alloc.NewTracker(nil, nil)
	v := New[uint16](WithAllocator(tr))
	v.Reserve(100)
	require.GreaterOrEqual(t, v.Cap(), 100)
	v.Extend(1, 2, 3)
	v.ShrinkToFit()
	require.Equal(t, 3, v.Cap())
	require.Equal(t, []uint16{1, 2, 3}, contents(v))
	v.Clear()
	v.ShrinkToFit()
	require.Equal(t, 0, v.Cap())
	require.Equal(t, 0, tr.Live(), "shrinking an empty Vec frees its block")
	v.Push(9)
	require.Equal(t, 4, v.Cap())
	v.Drop()
	require.NoError(t, tr.Leaks())
}

func TestOutOfMemoryLeavesVec(t *testing.T) {
	lim := alloc.NewLimited(nil, 4*8)
	v := New[int64](WithAllocator(lim))
	for i := 0; i < 4; i++ {
		require.NoError(t, v.TryPush(int64(i)))
	}
	err := v.TryPush(4)
	require.True(t, errors.Is(err, alloc.ErrOutOfMemory))
	require.Equal(t, 4, v.Len())
	require.Equal(t, 4, v.Cap())
	requirePanic(t, alloc.ErrOutOfMemory, func() { v.Push(4) })
	requirePanic(t, alloc.ErrOutOfMemory, func() { v.Insert(0, 4) })
	require.Equal(t, []int64{0, 1, 2, 3}, contents(v))
	require.Error(t, v.TryReserve(1))

	_, err = TryWithCapacity[int64](5, WithAllocator(lim))
	require.True(t, errors.Is(err, alloc.ErrOutOfMemory))
	v.Drop()
	require.Zero(t, lim.InUse())
}

func TestPagesAllocator(t *testing.T) {
	var pg alloc.Pages
	v := New[[2]uint64](WithAllocator(&pg))
	for i := uint64(0); i < 10000; i++ {
		v.Push([2]uint64{i, i * i})
	}
	for i := 0; i < 10000; i += 997 {
		require.Equal(t, [2]uint64{uint64(i), uint64(i * i)}, v.Index(i))
	}
	v.Drop()
	require.Zero(t, pg.InUse())
}

func TestPagesRejectsPointers(t *testing.T) {
	_, err := TryWithCapacity[*int](4, WithAllocator(new(alloc.Pages)))
	require.True(t, errors.Is(err, alloc.ErrPointers))
}

func TestPointerElementsSurviveGC(t *testing.T) {
	v := New[*[]int]()
	defer v.Drop()
	for i := 0; i < 1000; i++ {
		s := make([]int, 10)
		s[9] = i
		v.Push(&s)
	}
	runtime.GC()
	for i, p := range v.All() {
		require.Equal(t, i, (*p)[9])
	}
}

func TestString(t *testing.T) {
	v := From([]int{1, 2, 3})
	require.Equal(t, "[1 2 3]", v.String())
	v.Drop()
	require.Equal(t, "Vec(dropped)", v.String())
}

func TestZeroSizedElements(t *testing.T) {
	tr := alloc.NewTracker(nil, nil)
	v := New[struct{}](WithAllocator(tr))
	for i := 0; i < 1000; i++ {
		v.Push(struct{}{})
	}
	v.Remove(10)
	v.Insert(0, struct{}{})
	require.Equal(t, 1000, v.Len())
	v.Drop()
	require.Zero(t, tr.Stats().Requests)
}

func TestSequenceDiff(t *testing.T) {
	v := New[string]()
	defer v.Drop()
	want := []string{}
	words := []string{"alpha", "beta", "gamma", "delta"}
	for i, w := range words {
		v.Insert(i/2, w)
		want = slices.Insert(want, i/2, w)
	}
	if diff := cmp.Diff(want, contents(v)); diff != "" {
		t.Fatalf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendFunc(t *testing.T) {
	v := From([]int{1})
	defer v.Drop()
	err := v.AppendFunc(3, func(spare []int) error {
		require.Len(t, spare, 3)
		requirePanic(t, ErrBorrowed, func() { v.Push(0) })
		for i := range spare {
			spare[i] = 10 + i
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 10, 11, 12}, contents(v))

	errFill := errors.New("fill failed")
	err = v.AppendFunc(2, func(spare []int) error {
		spare[0] = 99
		return errFill
	})
	require.True(t, errors.Is(err, errFill))
	require.Equal(t, 4, v.Len())
	require.Zero(t, v.Borrowed())
	require.NoError(t, v.AppendFunc(0, nil))

	lim := alloc.NewLimited(nil, 16)
	w := New[int64](WithAllocator(lim))
	defer w.Drop()
	err = w.AppendFunc(3, func([]int64) error { return nil })
	require.True(t, errors.Is(err, alloc.ErrOutOfMemory))
	require.Zero(t, w.Len())
}
