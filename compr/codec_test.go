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

package compr

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestCodecs(t *testing.T) {
	ctl := bytes.Repeat([]byte("rawvec frame "), 1000)
	for _, name := range Names() {
		c, err := ByName(name)
		if err != nil {
			t.Fatal(err)
		}
		if c.Name() != name {
			t.Fatalf("ByName(%q).Name() = %q", name, c.Name())
		}
		prefix := []byte("hdr")
		out := c.Compress(ctl, append([]byte(nil), prefix...))
		if !bytes.HasPrefix(out, prefix) {
			t.Fatalf("%s: Compress clobbered dst", name)
		}
		dst := make([]byte, len(ctl))
		if err := c.Decompress(out[len(prefix):], dst); err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		if !bytes.Equal(dst, ctl) {
			t.Fatalf("%s: mismatch", name)
		}
		// a destination of the wrong size is an error
		if err := c.Decompress(out[len(prefix):], make([]byte, len(ctl)-1)); err == nil {
			t.Fatalf("%s: short destination accepted", name)
		}
	}
}

func TestS2Overlap(t *testing.T) {
	c, _ := ByName("s2")
	ctl := bytes.Repeat([]byte("foo"), 1000)
	src := append([]byte(nil), ctl...)
	dst := make([]byte, len(src))
	// test overlapping buffers
	cmp := c.Compress(src[10:], src[:8])
	if err := c.Decompress(cmp[8:], dst[10:]); err != nil {
		t.Fatal(err)
	} else if string(ctl[10:]) != string(dst[10:]) {
		t.Fatal("mismatch")
	}
}

func TestUnknown(t *testing.T) {
	if _, err := ByName("lz77"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestOverlaps(t *testing.T) {
	// trivial case
	a := make([]byte, 10)
	b := make([]byte, 20)
	if overlaps(a, b) {
		t.Error("overlaps(a, b) should be false")
	}
	// a and b are adjacent (no overlap)
	a = make([]byte, 10, 30)
	b = a[10:]
	if overlaps(a, b) {
		t.Error("overlaps(a, b) should be false")
	} else if overlaps(b, a) {
		t.Error("overlaps(b, a) should be false")
	}
	// a and b overlap by 5
	b = a[5:]
	if !overlaps(a, b) {
		t.Error("overlaps(a, b) should be true")
	} else if !overlaps(b, a) {
		t.Error("overlaps(b, a) should be true")
	}
}
