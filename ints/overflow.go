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

package ints

import (
	"golang.org/x/exp/constraints"
)

// MulChecked returns a*b and true, or 0 and false
// if the product does not fit in T.
func MulChecked[T constraints.Unsigned](a, b T) (T, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

// AddChecked returns a+b and true, or 0 and false
// if the sum does not fit in T.
func AddChecked[T constraints.Unsigned](a, b T) (T, bool) {
	c := a + b
	if c < a {
		return 0, false
	}
	return c, true
}

// MulIntChecked is MulChecked for non-negative ints;
// the product must also fit in a (signed) int.
func MulIntChecked(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	c, ok := MulChecked(uint(a), uint(b))
	if !ok || c > uint(maxInt) {
		return 0, false
	}
	return int(c), true
}

const maxInt = int(^uint(0) >> 1)
