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
	"runtime"
	"testing"
	"time"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// counted tracks how many instances are alive
type counted struct {
	id    int
	alive *int
	order *[]int
}

func newCounted(id int, alive *int, order *[]int) counted {
	*alive++
	return counted{id: id, alive: alive, order: order}
}

func (c *counted) Drop() {
	*c.alive--
	if c.order != nil {
		*c.order = append(*c.order, c.id)
	}
}

func TestDropRunsDestructors(t *testing.T) {
	alive := 0
	var order []int
	tr := alloc.NewTracker(nil, nil)
	v := New[counted](WithAllocator(tr))
	for i := 0; i < 20; i++ {
		v.Push(newCounted(i, &alive, &order))
	}
	require.Equal(t, 20, alive)
	v.Drop()
	require.Zero(t, alive)
	require.Len(t, order, 20)
	for i := range order {
		require.Equal(t, i, order[i], "destructors must run in index order")
	}
	require.NoError(t, tr.Leaks())
}

func TestMovedOutValuesAreNotDropped(t *testing.T) {
	alive := 0
	v := New[counted]()
	for i := 0; i < 5; i++ {
		v.Push(newCounted(i, &alive, nil))
	}
	x, _ := v.Pop()
	y := v.Remove(0)
	z := v.SwapRemove(0)
	v.Drop()
	// the three moved-out values belong to the caller now
	require.Equal(t, 3, alive)
	x.Drop()
	y.Drop()
	z.Drop()
	require.Zero(t, alive)
}

func TestTruncateAndSetDrop(t *testing.T) {
	alive := 0
	v := New[counted]()
	for i := 0; i < 10; i++ {
		v.Push(newCounted(i, &alive, nil))
	}
	v.Truncate(4)
	require.Equal(t, 4, alive)
	v.Set(0, newCounted(100, &alive, nil))
	require.Equal(t, 4, alive)
	v.Clear()
	require.Zero(t, alive)
	v.Drop()
	require.Zero(t, alive)
}

func TestWithDropOverrides(t *testing.T) {
	var dropped []string
	v := New[string](WithDrop(func(s *string) { dropped = append(dropped, *s) }))
	v.Extend("a", "b", "c")
	v.Drop()
	require.Equal(t, []string{"a", "b", "c"}, dropped)

	require.Panics(t, func() { New[int](WithDrop(func(*string) {})) })
}

func TestPanickingDestructor(t *testing.T) {
	tr := alloc.NewTracker(nil, nil)
	var dropped []int
	v := New[int](WithAllocator(tr), WithDrop(func(p *int) {
		dropped = append(dropped, *p)
		if *p == 2 || *p == 5 {
			panic(fmt.Sprintf("boom %d", *p))
		}
	}))
	v.Extend(0, 1, 2, 3, 4, 5, 6)
	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		v.Drop()
	}()
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, dropped, "every element is dropped exactly once")
	require.True(t, v.Dropped())
	require.NoError(t, tr.Leaks(), "storage is released even when a destructor panics")
}

func TestDropExactlyOnce(t *testing.T) {
	tr := alloc.NewTracker(nil, nil)
	v := From([]int{1, 2, 3}, WithAllocator(tr))
	v.Drop()
	requirePanic(t, ErrDropped, v.Drop)
	requirePanic(t, ErrDropped, func() { v.Push(1) })
	requirePanic(t, ErrDropped, func() { v.Get(0) })
	requirePanic(t, ErrDropped, func() { v.Borrow() })
	require.Equal(t, 0, v.Len())
	require.Equal(t, 0, v.Cap())
	st := tr.Stats()
	require.Equal(t, 1, st.Releases)
	require.Zero(t, st.Live)
}

func TestScope(t *testing.T) {
	tr := alloc.NewTracker(nil, nil)
	alive := 0
	errStop := errors.New("stop")

	err := Scope(func(v *Vec[counted]) error {
		for i := 0; i < 10; i++ {
			v.Push(newCounted(i, &alive, nil))
		}
		return errStop
	}, WithAllocator(tr))
	require.True(t, errors.Is(err, errStop))
	require.Zero(t, alive)
	require.NoError(t, tr.Leaks())

	require.Panics(t, func() {
		Scope(func(v *Vec[counted]) error {
			v.Push(newCounted(0, &alive, nil))
			panic("unrelated failure")
		}, WithAllocator(tr))
	})
	require.Zero(t, alive)
	require.NoError(t, tr.Leaks())

	// dropping inside the scope is fine too
	require.NoError(t, Scope(func(v *Vec[int]) error {
		v.Push(1)
		v.Drop()
		return nil
	}, WithAllocator(tr)))
	require.NoError(t, tr.Leaks())
}

func TestBorrowBlocksMutation(t *testing.T) {
	v := From([]int{1, 2, 3})
	defer v.Drop()
	w := v.Borrow()
	p := w.Ref(0)
	requirePanic(t, ErrBorrowed, func() { v.Push(4) })
	requirePanic(t, ErrBorrowed, func() { v.Insert(0, 4) })
	requirePanic(t, ErrBorrowed, func() { v.Remove(0) })
	requirePanic(t, ErrBorrowed, func() { v.Pop() })
	requirePanic(t, ErrBorrowed, func() { v.Reserve(100) })
	requirePanic(t, ErrBorrowed, v.Drop)
	// reads are fine
	x, ok := v.Get(2)
	require.True(t, ok)
	require.Equal(t, 3, x)
	require.Equal(t, 1, *p)
	require.Equal(t, []int{1, 2, 3}, w.Slice())
	require.Equal(t, 2, w.At(1))
	requirePanic(t, ErrOutOfRange, func() { w.At(3) })
	w.Release()
	require.Panics(t, w.Release)
	require.Zero(t, v.Borrowed())
	v.Push(4)
	require.Equal(t, 4, v.Len())
}

func TestIterationBorrows(t *testing.T) {
	v := From([]int{1, 2, 3})
	defer v.Drop()
	requirePanic(t, ErrBorrowed, func() {
		for _, x := range v.All() {
			v.Push(x)
		}
	})
	require.Zero(t, v.Borrowed(), "a panicking loop still releases its borrow")

	// breaking out early releases the borrow
	for x := range v.Values() {
		if x == 2 {
			break
		}
	}
	require.Zero(t, v.Borrowed())

	// two independent passes see the same thing
	seq := v.All()
	var a, b []int
	for _, x := range seq {
		a = append(a, x)
	}
	for _, x := range seq {
		b = append(b, x)
	}
	require.Equal(t, a, b)
	require.Equal(t, []int{1, 2, 3}, a)
}

func TestIter(t *testing.T) {
	v := From([]string{"a", "b"})
	defer v.Drop()
	it := v.Iter()
	var got []string
	for it.Next() {
		got = append(got, fmt.Sprintf("%d:%s", it.Index(), it.Value()))
	}
	require.Equal(t, []string{"0:a", "1:b"}, got)
	require.Zero(t, v.Borrowed())
	it.Close()

	it = v.Iter()
	require.True(t, it.Next())
	require.Equal(t, 1, v.Borrowed())
	it.Close()
	it.Close()
	require.False(t, it.Next())
	require.Zero(t, v.Borrowed())
}

func TestLeakCheckHook(t *testing.T) {
	leaked := make(chan *Leak, 1)
	LeakCheckHook = func(l *Leak) {
		select {
		case leaked <- l:
		default:
		}
	}
	defer func() { LeakCheckHook = nil }()

	dropped := New[int]()
	dropped.Drop()
	func() {
		v := New[int]()
		v.Extend(1, 2, 3)
	}()
	for i := 0; i < 10; i++ {
		runtime.GC()
		select {
		case l := <-leaked:
			require.Equal(t, "int", l.Elem.String())
			require.Equal(t, 3, l.Len)
			require.Equal(t, 4, l.Cap)
			require.Equal(t, alloc.Global, l.Allocator)
			require.Contains(t, l.String(), "Vec[int] (len 3, cap 4")
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatal("leaked Vec was not reported")
}

func TestLeakCheckDisarmedByDrop(t *testing.T) {
	leaked := make(chan *Leak, 1)
	LeakCheckHook = func(l *Leak) {
		select {
		case leaked <- l:
		default:
		}
	}
	func() {
		v := New[int]()
		v.Push(1)
		// clearing the hook does not disarm a Vec
		// created while it was set; Drop does
		LeakCheckHook = nil
		v.Drop()
	}()
	for i := 0; i < 3; i++ {
		runtime.GC()
		select {
		case l := <-leaked:
			t.Fatalf("dropped Vec reported: %s", l)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
