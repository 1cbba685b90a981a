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

//go:build !unix && !windows

package alloc

import (
	"github.com/cockroachdb/errors"
)

var errNoMmap = errors.New("alloc: Pages is not supported on this platform")

func pageSize() uintptr { return 4096 }

func mapPages(size uintptr) ([]byte, error) { return nil, errNoMmap }

func unmapPages(mem []byte) error { return errNoMmap }

func remapPages(old []byte, size uintptr) ([]byte, error) { return nil, errNoMmap }
