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
	"reflect"
	"runtime"

	"github.com/SnellerInc/rawvec/alloc"
)

// Leak describes a Vec that became
// unreachable without being dropped.
type Leak struct {
	// Elem is the element type.
	Elem reflect.Type
	// Len and Cap are the Vec's
	// length and capacity when it was lost.
	Len, Cap int
	// Allocator still owns the storage;
	// it is never returned.
	Allocator alloc.Allocator
	// Stack is the (truncated) stack
	// of the goroutine that created the Vec.
	Stack []byte
}

func (l *Leak) String() string {
	return fmt.Sprintf("Vec[%s] (len %d, cap %d, allocator %T) was not dropped; created at\n%s",
		l.Elem, l.Len, l.Cap, l.Allocator, l.Stack)
}

// LeakCheckHook, if set when a Vec is created,
// is called for that Vec if it is garbage collected
// without Drop having been called. It runs on the
// finalizer goroutine. Set it in tests only.
var LeakCheckHook func(l *Leak)

func leakCheck[T any](v *Vec[T]) {
	hook := LeakCheckHook
	if hook == nil {
		return
	}
	stk := make([]byte, 1024)
	stk = stk[:runtime.Stack(stk, false)]
	v.finalizer = true
	runtime.SetFinalizer(v, func(v *Vec[T]) {
		hook(&Leak{
			Elem:      reflect.TypeOf((*T)(nil)).Elem(),
			Len:       v.len,
			Cap:       v.buf.Cap(),
			Allocator: v.buf.Allocator(),
			Stack:     stk,
		})
	})
}

func noLeakCheck[T any](v *Vec[T]) {
	if v.finalizer {
		runtime.SetFinalizer(v, nil)
		v.finalizer = false
	}
}
