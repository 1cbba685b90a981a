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
	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfRange marks panics from Index,
	// Insert, Remove, and friends when the
	// index is outside the live elements.
	ErrOutOfRange = errors.New("index out of range")
	// ErrBorrowed marks panics from mutating
	// a Vec while a view or iterator is open.
	ErrBorrowed = errors.New("vec is borrowed")
	// ErrDropped marks panics from using
	// a Vec after Drop.
	ErrDropped = errors.New("vec has been dropped")
)

func outOfRange(op string, i, n int) error {
	return errors.Wrapf(ErrOutOfRange, "vec: %s index %d with length %d", op, i, n)
}
