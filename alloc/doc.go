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

// Package alloc defines the allocator contract
// that the containers in this module are built on,
// along with a handful of implementations and
// diagnostic wrappers.
//
// An Allocator hands out raw blocks described by a Layout.
// The owner of a block is responsible for returning it
// exactly once with the same Layout it was obtained with.
//
// Two base allocators are provided:
//
//   - Heap (and the shared Global) uses memory from the Go heap.
//     Layouts whose element type contains Go pointers are
//     allocated as typed memory, so the garbage collector
//     can see what is stored there.
//   - Pages maps memory directly from the operating system.
//     It never holds Go pointers and returns ErrPointers
//     for layouts that would need them.
//
// Tracker, Limited, and Instrumented wrap another Allocator
// to detect double releases and leaks, to impose a byte
// budget, and to export Prometheus metrics, respectively.
package alloc
