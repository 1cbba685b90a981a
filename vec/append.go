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

// AppendFunc appends n elements produced in place by fill.
//
// The storage is grown first, then fill is called with
// the n slots just past the live elements. fill must
// initialize every slot it is given; the slice is only
// valid for the duration of the call, during which v is
// borrowed. If fill returns an error the slots are cleared,
// Len() is unchanged, and the error is returned. Allocator
// failures are returned as errors rather than panics.
func (v *Vec[T]) AppendFunc(n int, fill func(spare []T) error) error {
	v.mut()
	if n <= 0 {
		return nil
	}
	if err := v.buf.TryReserve(v.len, n); err != nil {
		return err
	}
	spare := v.buf.Slice()[v.len : v.len+n : v.len+n]
	v.borrows++
	err := func() error {
		defer func() { v.borrows-- }()
		return fill(spare)
	}()
	if err != nil {
		clear(spare)
		return err
	}
	v.len += n
	return nil
}
