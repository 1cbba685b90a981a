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
	"bytes"
	"encoding/binary"
	"hash"
	"io"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/SnellerInc/rawvec/compr"
	"github.com/SnellerInc/rawvec/vec"
	"github.com/cockroachdb/errors"
)

// reader decodes the frames following a header
type reader struct {
	r       io.Reader
	h       *Header
	codec   compr.Codec
	sum     hash.Hash
	scratch []byte
}

func newReader(r io.Reader, h *Header) (*reader, error) {
	codec, err := compr.ByName(h.Codec)
	if err != nil {
		return nil, errors.Mark(err, ErrCorrupt)
	}
	sum, err := h.Checksum.new()
	if err != nil {
		return nil, err
	}
	return &reader{r: r, h: h, codec: codec, sum: sum}, nil
}

// fill decodes frames until dst is full
func (rd *reader) fill(dst []byte) error {
	var lens [8]byte
	for len(dst) > 0 {
		if _, err := io.ReadFull(rd.r, lens[:]); err != nil {
			return errors.Wrap(ErrCorrupt, "truncated frame header")
		}
		raw := int(binary.LittleEndian.Uint32(lens[0:]))
		stored := int(binary.LittleEndian.Uint32(lens[4:]))
		if raw == 0 || raw > rd.h.FrameSize || raw > len(dst) || stored > MaxFrameSize+MaxFrameSize/8 {
			return errors.Wrapf(ErrCorrupt, "frame of %d bytes (%d stored)", raw, stored)
		}
		if cap(rd.scratch) < stored {
			rd.scratch = make([]byte, stored)
		}
		rd.scratch = rd.scratch[:stored]
		if _, err := io.ReadFull(rd.r, rd.scratch); err != nil {
			return errors.Wrap(ErrCorrupt, "truncated frame")
		}
		if err := rd.codec.Decompress(rd.scratch, dst[:raw]); err != nil {
			return errors.Mark(err, ErrCorrupt)
		}
		rd.sum.Write(dst[:raw])
		dst = dst[raw:]
	}
	return nil
}

func (rd *reader) verify() error {
	want := make([]byte, rd.sum.Size())
	if _, err := io.ReadFull(rd.r, want); err != nil {
		return errors.Wrap(ErrCorrupt, "truncated checksum")
	}
	if !bytes.Equal(want, rd.sum.Sum(nil)) {
		return ErrChecksum
	}
	return nil
}

// Decode reads a snapshot written by Encode for the
// same element type and returns a new Vec holding its
// elements. opts configure the returned Vec. Storage is
// allocated as frames arrive, so a snapshot whose header
// claims more elements than its payload holds fails with
// ErrCorrupt after allocating in proportion to the
// payload actually present. The caller owns the result and must Drop it.
func Decode[T any](r io.Reader, opts ...vec.Option) (*vec.Vec[T], Header, error) {
	if err := checkPlain[T](); err != nil {
		return nil, Header{}, err
	}
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, h, err
	}
	lay := alloc.LayoutOf[T]()
	if h.ElemSize != int(lay.Size) || h.ElemAlign != int(lay.Align) {
		return nil, h, errors.Wrapf(ErrLayout, "snapshot holds %d-byte elements (align %d); %s is %d bytes (align %d)",
			h.ElemSize, h.ElemAlign, elemType[T](), lay.Size, lay.Align)
	}
	if h.BigEndian != nativeBigEndian() {
		return nil, h, errors.Wrap(ErrLayout, "snapshot byte order differs from this machine")
	}
	rd, err := newReader(br, &h)
	if err != nil {
		return nil, h, err
	}
	// the count is not trusted until the payload
	// backs it, so storage grows one frame at a time
	step := h.Count
	if h.ElemSize > 0 {
		step = max(h.FrameSize/h.ElemSize, 1)
	}
	v, err := vec.TryWithCapacity[T](min(h.Count, step), opts...)
	if err != nil {
		return nil, h, err
	}
	for err == nil && v.Len() < h.Count {
		err = v.AppendFunc(min(h.Count-v.Len(), step), func(spare []T) error {
			return rd.fill(asBytes(spare))
		})
	}
	if err == nil {
		err = rd.verify()
	}
	if err != nil {
		v.Drop()
		return nil, h, err
	}
	return v, h, nil
}

// Verify reads a whole snapshot and checks its
// structure and checksum without keeping the elements.
func Verify(r io.Reader) (Header, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return h, err
	}
	rd, err := newReader(br, &h)
	if err != nil {
		return h, err
	}
	buf := make([]byte, h.FrameSize)
	for left := h.PayloadSize(); left > 0; {
		n := min(left, len(buf))
		if err := rd.fill(buf[:n]); err != nil {
			return h, err
		}
		left -= n
	}
	return h, rd.verify()
}
