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

// Package compr wraps the block codecs used
// for container snapshots.
//
// Every codec compresses a whole frame at once and
// decompresses into a caller-provided buffer of exactly
// the original size, which lets a reader decode straight
// into a container's storage.
package compr

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// ErrUnknownCodec is returned by ByName
// for a name that no codec answers to.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec is a block compression algorithm.
type Codec interface {
	// Name is the name of the algorithm,
	// as accepted by ByName.
	Name() string
	// Compress appends the compressed
	// contents of src to dst and returns the result.
	Compress(src, dst []byte) []byte
	// Decompress decodes src into dst, which must
	// be exactly the size of the original data.
	// It must be safe to call concurrently.
	Decompress(src, dst []byte) error
}

// Names lists the codecs ByName accepts.
func Names() []string {
	return []string{"none", "s2", "zstd", "zstd-better"}
}

// ByName returns the codec called name.
func ByName(name string) (Codec, error) {
	switch name {
	case "none", "":
		return none{}, nil
	case "s2":
		return s2Codec{}, nil
	case "zstd":
		return zstdCodec{name: "zstd", enc: encoder(zstd.SpeedDefault)}, nil
	case "zstd-better":
		return zstdCodec{name: "zstd-better", enc: encoder(zstd.SpeedBetterCompression)}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "%q", name)
	}
}

type none struct{}

func (none) Name() string { return "none" }

func (none) Compress(src, dst []byte) []byte { return append(dst, src...) }

func (none) Decompress(src, dst []byte) error {
	if len(src) != len(dst) {
		return errors.Newf("compr: stored frame is %d bytes; expected %d", len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

var (
	encMu    sync.Mutex
	encoders = map[zstd.EncoderLevel]*zstd.Encoder{}

	decOnce sync.Once
	decoder *zstd.Decoder
)

// encoder returns a shared encoder for a level;
// EncodeAll is safe for concurrent use
func encoder(level zstd.EncoderLevel) *zstd.Encoder {
	encMu.Lock()
	defer encMu.Unlock()
	if e := encoders[level]; e != nil {
		return e
	}
	e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	encoders[level] = e
	return e
}

func zstdDecoder() *zstd.Decoder {
	decOnce.Do(func() {
		// by default, concurrency is set to min(4, GOMAXPROCS);
		// we'd like it to *always* be GOMAXPROCS
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
		if err != nil {
			panic(err)
		}
		decoder = d
	})
	return decoder
}

type zstdCodec struct {
	name string
	enc  *zstd.Encoder
}

func (z zstdCodec) Name() string { return z.name }

func (z zstdCodec) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

func (z zstdCodec) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := zstdDecoder().DecodeAll(src, into)
	if err != nil {
		return errors.Wrap(err, "compr: zstd")
	}
	return checkInPlace("zstd", ret, dst)
}

type s2Codec struct{}

func (s2Codec) Name() string { return "s2" }

func (s2Codec) Compress(src, dst []byte) []byte {
	tail := dst[len(dst):cap(dst)]
	// s2 requires non-overlapping src and dst
	if overlaps(src, tail) {
		tail = nil
	}
	got := s2.Encode(tail, src)
	if len(dst) == 0 {
		return got
	}
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (s2Codec) Decompress(src, dst []byte) error {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return errors.Wrap(err, "compr: s2")
	}
	if n != len(dst) {
		return errors.Newf("compr: s2 frame decodes to %d bytes; expected %d", n, len(dst))
	}
	ret, err := s2.Decode(dst, src)
	if err != nil {
		return errors.Wrap(err, "compr: s2")
	}
	return checkInPlace("s2", ret, dst)
}

// checkInPlace verifies that a decoder
// filled dst rather than allocating
func checkInPlace(name string, ret, dst []byte) error {
	if len(ret) != len(dst) {
		return errors.Newf("compr: %s: expected %d bytes decompressed; got %d", name, len(dst), len(ret))
	}
	if len(dst) > 0 && &ret[0] != &dst[0] {
		return errors.Newf("compr: %s: output buffer realloc'd", name)
	}
	return nil
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
