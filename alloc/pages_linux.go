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

//go:build linux

package alloc

import (
	"golang.org/x/sys/unix"
)

// linux can grow (or shrink) a private
// anonymous mapping without copying when
// the address space after it is free
func remapPages(old []byte, size uintptr) ([]byte, error) {
	return unix.Mremap(old, int(size), unix.MREMAP_MAYMOVE)
}
