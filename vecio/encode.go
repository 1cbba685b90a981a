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

package vecio

import (
	"bufio"
	"encoding/binary"
	"io"
	"reflect"
	"unsafe"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/SnellerInc/rawvec/compr"
	"github.com/SnellerInc/rawvec/vec"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Options configures Encode.
type Options struct {
	// Codec names the frame codec (see compr.Names).
	// The default is "zstd".
	Codec string
	// Checksum selects the payload checksum.
	// The default is SipHash.
	Checksum Checksum
	// FrameSize is the number of raw bytes per frame.
	// It is rounded down to a whole number of elements.
	// The default is DefaultFrameSize.
	FrameSize int
}

func elemType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func checkPlain[T any]() error {
	if t := elemType[T](); alloc.HasPointers(t) {
		return errors.Wrapf(alloc.ErrPointers, "vecio: cannot snapshot %s", t)
	}
	return nil
}

// asBytes reinterprets pointer-free elements as bytes
func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

// Encode writes a snapshot of the elements of v to w.
// T must not contain Go pointers. v is borrowed
// while the snapshot is written.
func Encode[T any](w io.Writer, v *vec.Vec[T], opts *Options) (Header, error) {
	if err := checkPlain[T](); err != nil {
		return Header{}, err
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Codec == "" {
		o.Codec = "zstd"
	}
	if o.Checksum == 0 {
		o.Checksum = SipHash
	}
	codec, err := compr.ByName(o.Codec)
	if err != nil {
		return Header{}, err
	}
	sum, err := o.Checksum.new()
	if err != nil {
		return Header{}, err
	}
	lay := alloc.LayoutOf[T]()
	frame := o.FrameSize
	if frame <= 0 {
		frame = DefaultFrameSize
	}
	if frame > MaxFrameSize {
		frame = MaxFrameSize
	}
	if lay.Size > 0 {
		frame -= frame % int(lay.Size)
		if frame == 0 {
			frame = int(lay.Size)
		}
	}

	view := v.Borrow()
	defer view.Release()
	h := Header{
		ID:        uuid.New(),
		ElemSize:  int(lay.Size),
		ElemAlign: int(lay.Align),
		Count:     view.Len(),
		Codec:     codec.Name(),
		Checksum:  o.Checksum,
		FrameSize: frame,
		BigEndian: nativeBigEndian(),
	}
	if frame > MaxFrameSize {
		return Header{}, errors.Newf("vecio: %d-byte elements exceed the maximum frame size", lay.Size)
	}

	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, &h); err != nil {
		return Header{}, err
	}
	payload := asBytes(view.Slice())
	var scratch []byte
	var lens [8]byte
	for len(payload) > 0 {
		n := min(frame, len(payload))
		chunk := payload[:n]
		payload = payload[n:]
		sum.Write(chunk)
		scratch = codec.Compress(chunk, scratch[:0])
		binary.LittleEndian.PutUint32(lens[0:], uint32(n))
		binary.LittleEndian.PutUint32(lens[4:], uint32(len(scratch)))
		if _, err := bw.Write(lens[:]); err != nil {
			return Header{}, err
		}
		if _, err := bw.Write(scratch); err != nil {
			return Header{}, err
		}
	}
	if _, err := bw.Write(sum.Sum(nil)); err != nil {
		return Header{}, err
	}
	return h, bw.Flush()
}
