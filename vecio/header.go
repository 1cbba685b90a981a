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

// Package vecio reads and writes snapshots of
// containers whose elements hold no Go pointers.
//
// A snapshot is a fixed header, the raw element
// bytes split into independently compressed frames,
// and a checksum of the uncompressed bytes:
//
//	magic "RVEC" | version | header fields | codec name
//	frame*       (raw length, stored length, data)
//	checksum     (16 bytes SipHash-2-4-128 or 32 bytes BLAKE2b-256)
//
// Elements are stored in the writer's native byte order
// and memory layout; Decode refuses snapshots whose element
// size, alignment, or byte order does not match.
package vecio

import (
	"encoding/binary"
	"hash"
	"io"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dchest/siphash"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	magic   = "RVEC"
	version = 1

	// DefaultFrameSize is the number of raw bytes
	// compressed together when Options.FrameSize is zero.
	DefaultFrameSize = 1 << 20
	// MaxFrameSize bounds the frame size
	// a reader is willing to accept.
	MaxFrameSize = 64 << 20
)

var (
	// ErrBadMagic is returned when the input
	// is not a snapshot.
	ErrBadMagic = errors.New("vecio: not a snapshot")
	// ErrLayout is returned when a snapshot's element
	// layout does not match the requested element type.
	ErrLayout = errors.New("vecio: element layout mismatch")
	// ErrChecksum is returned when the payload
	// does not match the stored checksum.
	ErrChecksum = errors.New("vecio: checksum mismatch")
	// ErrCorrupt is returned for structurally
	// invalid snapshots.
	ErrCorrupt = errors.New("vecio: corrupt snapshot")
)

// Checksum selects the payload checksum.
type Checksum uint8

const (
	// SipHash is SipHash-2-4 with 128-bit output.
	SipHash Checksum = iota + 1
	// Blake2b is BLAKE2b with 256-bit output.
	Blake2b
)

// sipKey is fixed so that snapshots
// are comparable across processes
var sipKey = []byte("rawvec.snapshots")

func (c Checksum) String() string {
	switch c {
	case SipHash:
		return "siphash"
	case Blake2b:
		return "blake2b"
	default:
		return "unknown"
	}
}

// ParseChecksum is the inverse of Checksum.String.
func ParseChecksum(s string) (Checksum, error) {
	switch s {
	case "siphash", "":
		return SipHash, nil
	case "blake2b":
		return Blake2b, nil
	default:
		return 0, errors.Newf("vecio: unknown checksum %q", s)
	}
}

func (c Checksum) new() (hash.Hash, error) {
	switch c {
	case SipHash:
		return siphash.New128(sipKey), nil
	case Blake2b:
		return blake2b.New256(nil)
	default:
		return nil, errors.Wrapf(ErrCorrupt, "checksum kind %d", c)
	}
}

// Header describes a snapshot.
type Header struct {
	ID        uuid.UUID
	ElemSize  int
	ElemAlign int
	Count     int
	Codec     string
	Checksum  Checksum
	FrameSize int
	BigEndian bool
}

// PayloadSize returns the number of raw element bytes.
func (h *Header) PayloadSize() int {
	return h.ElemSize * h.Count
}

func nativeBigEndian() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 0
}

// fixed-size portion of the encoded header
type rawHeader struct {
	Magic     [4]byte
	Version   uint16
	BigEndian uint8
	Checksum  uint8
	ID        [16]byte
	ElemSize  uint32
	ElemAlign uint32
	Count     uint64
	FrameSize uint32
	CodecLen  uint32
}

func writeHeader(w io.Writer, h *Header) error {
	raw := rawHeader{
		Version:   version,
		Checksum:  uint8(h.Checksum),
		ID:        h.ID,
		ElemSize:  uint32(h.ElemSize),
		ElemAlign: uint32(h.ElemAlign),
		Count:     uint64(h.Count),
		FrameSize: uint32(h.FrameSize),
		CodecLen:  uint32(len(h.Codec)),
	}
	copy(raw.Magic[:], magic)
	if h.BigEndian {
		raw.BigEndian = 1
	}
	if err := binary.Write(w, binary.LittleEndian, &raw); err != nil {
		return err
	}
	_, err := io.WriteString(w, h.Codec)
	return err
}

// ReadHeader reads and validates a snapshot header.
func ReadHeader(r io.Reader) (Header, error) {
	var raw rawHeader
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, errors.Wrap(ErrBadMagic, "short header")
		}
		return Header{}, err
	}
	if string(raw.Magic[:]) != magic {
		return Header{}, ErrBadMagic
	}
	if raw.Version != version {
		return Header{}, errors.Wrapf(ErrCorrupt, "unsupported version %d", raw.Version)
	}
	if raw.CodecLen > 64 {
		return Header{}, errors.Wrapf(ErrCorrupt, "codec name of %d bytes", raw.CodecLen)
	}
	if raw.FrameSize == 0 || raw.FrameSize > MaxFrameSize {
		return Header{}, errors.Wrapf(ErrCorrupt, "frame size %d", raw.FrameSize)
	}
	name := make([]byte, raw.CodecLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Header{}, errors.Wrap(ErrCorrupt, "truncated codec name")
	}
	h := Header{
		ID:        raw.ID,
		ElemSize:  int(raw.ElemSize),
		ElemAlign: int(raw.ElemAlign),
		Count:     int(raw.Count),
		Codec:     string(name),
		Checksum:  Checksum(raw.Checksum),
		FrameSize: int(raw.FrameSize),
		BigEndian: raw.BigEndian != 0,
	}
	if h.ElemSize > 0 && h.FrameSize%h.ElemSize != 0 {
		return Header{}, errors.Wrapf(ErrCorrupt, "frame size %d is not a multiple of %d-byte elements", h.FrameSize, h.ElemSize)
	}
	if raw.Count > uint64(^uint(0)>>1) || (h.ElemSize > 0 && h.Count > int(^uint(0)>>1)/h.ElemSize) {
		return Header{}, errors.Wrapf(ErrCorrupt, "%d elements of %d bytes", raw.Count, h.ElemSize)
	}
	return h, nil
}
