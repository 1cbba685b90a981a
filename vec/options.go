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

	"github.com/SnellerInc/rawvec/alloc"
)

// Dropper is implemented by element types
// that have to release something when they
// leave a Vec without being moved out.
// Drop is called on a pointer to the slot.
type Dropper interface {
	Drop()
}

type options struct {
	a    alloc.Allocator
	drop any
}

// Option configures a Vec.
type Option func(*options)

// WithAllocator selects the allocator
// that provides the Vec's storage.
// The default is alloc.Global.
func WithAllocator(a alloc.Allocator) Option {
	return func(o *options) { o.a = a }
}

// WithDrop sets the function run on each
// element the Vec destroys, overriding any
// Drop method the element type has.
// fn must have type func(*T) for the
// element type of the Vec it configures.
func WithDrop[T any](fn func(*T)) Option {
	return func(o *options) { o.drop = fn }
}

func resolve[T any](opts []Option) (alloc.Allocator, func(*T)) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.drop != nil {
		fn, ok := o.drop.(func(*T))
		if !ok {
			panic(fmt.Sprintf("vec: WithDrop given %T for elements of type %s", o.drop, reflect.TypeOf((*T)(nil)).Elem()))
		}
		return o.a, fn
	}
	if _, ok := any((*T)(nil)).(Dropper); ok {
		return o.a, func(p *T) { any(p).(Dropper).Drop() }
	}
	return o.a, nil
}
