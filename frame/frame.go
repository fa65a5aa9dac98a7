// Package frame implements the length-prefixed primitive read/write layer
// the CQL wire protocol is built on: fixed-width big-endian integers and
// sized byte runs, plus the 8/9-byte frame header that precedes every
// request and response body.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Version identifies a negotiated protocol revision (1, 2 or 3).
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3

	MaxSupportedVersion = V3
	MinSupportedVersion = V1
)

const (
	directionMask  byte = 0x80
	versionMask    byte = 0x7f
	requestBit     byte = 0x00
	responseBit    byte = 0x80
	headerLenV1V2       = 4
	headerLenV3         = 5
)

// Header is the 4- or 5-byte frame header. StreamID is kept as a signed
// in-memory integer: negative values are reserved for server-pushed events.
type Header struct {
	Version    Version
	Response   bool
	Flags      byte
	StreamID   int16
	Opcode     byte
	BodyLength uint32
}

// HeaderLen returns the on-wire header size for v, excluding the 4-byte
// body length which always follows the header proper.
func HeaderLen(v Version) int {
	if v >= V3 {
		return headerLenV3
	}
	return headerLenV1V2
}

// EncodeHeader appends h's wire form (without the body) to dst.
func EncodeHeader(dst []byte, h Header) []byte {
	versionByte := byte(h.Version) & versionMask
	if h.Response {
		versionByte |= responseBit
	} else {
		versionByte |= requestBit
	}
	dst = append(dst, versionByte, h.Flags)
	if h.Version >= V3 {
		dst = append(dst, byte(uint16(h.StreamID)>>8), byte(uint16(h.StreamID)))
	} else {
		dst = append(dst, byte(h.StreamID))
	}
	dst = append(dst, h.Opcode)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], h.BodyLength)
	return append(dst, lenBuf[:]...)
}

// DecodeHeader reads a frame header from r. The caller must already know
// the negotiated version (v1/v2 headers are 4 bytes, v3 headers are 5).
func DecodeHeader(r io.Reader, v Version) (Header, error) {
	n := HeaderLen(v)
	buf := make([]byte, n+4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("frame: read header: %w", err)
	}

	versionByte := buf[0]
	h := Header{
		Version:  Version(versionByte & versionMask),
		Response: versionByte&directionMask != 0,
		Flags:    buf[1],
	}
	if v >= V3 {
		h.StreamID = int16(uint16(buf[2])<<8 | uint16(buf[3]))
		h.Opcode = buf[4]
	} else {
		h.StreamID = int16(int8(buf[2]))
		h.Opcode = buf[3]
	}
	h.BodyLength = binary.BigEndian.Uint32(buf[n:])
	return h, nil
}

// Writer is a growable big-endian byte builder for request bodies.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial capacity hint.
func NewWriter(capacityHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capacityHint)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteRaw(p []byte) { w.buf = append(w.buf, p...) }

// WriteShortString writes a 2-byte-length-prefixed UTF-8 string.
func (w *Writer) WriteShortString(s string) {
	w.WriteU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteLongString writes a 4-byte-signed-length-prefixed UTF-8 string.
func (w *Writer) WriteLongString(s string) {
	w.WriteI32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteShortBytes writes a 2-byte-length-prefixed raw byte run.
func (w *Writer) WriteShortBytes(p []byte) {
	w.WriteU16(uint16(len(p)))
	w.buf = append(w.buf, p...)
}

// WriteBytes writes a 4-byte-signed-length-prefixed raw byte run.
// p == nil encodes a null (-1 length); a non-nil empty slice encodes 0.
func (w *Writer) WriteBytes(p []byte) {
	if p == nil {
		w.WriteI32(-1)
		return
	}
	w.WriteI32(int32(len(p)))
	w.buf = append(w.buf, p...)
}

// WriteValue writes a collection element: length is 2 bytes for v<3, 4
// bytes for v>=3. p == nil encodes null.
func (w *Writer) WriteValue(v Version, p []byte) {
	if v >= V3 {
		w.WriteBytes(p)
		return
	}
	if p == nil {
		w.WriteU16(0xffff) // -1 as int16
		return
	}
	w.WriteU16(uint16(len(p)))
	w.buf = append(w.buf, p...)
}

// Reader reads big-endian primitives from an in-memory body buffer,
// failing cleanly on short input via take.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Take returns the next n bytes and advances the position, or fails if
// fewer than n bytes remain.
func (r *Reader) Take(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("frame: negative take length %d", n)
	}
	if r.Remaining() < n {
		return nil, fmt.Errorf("frame: short read: want %d bytes, have %d", n, r.Remaining())
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.Take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.Take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.Take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.Take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadShortString reads a 2-byte-length-prefixed UTF-8 string.
func (r *Reader) ReadShortString() (string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return "", err
	}
	b, err := r.Take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLongString reads a 4-byte-signed-length-prefixed UTF-8 string.
func (r *Reader) ReadLongString() (string, error) {
	n, err := r.ReadI32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("frame: long string has negative length %d", n)
	}
	b, err := r.Take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadShortBytes reads a 2-byte-length-prefixed raw byte run.
func (r *Reader) ReadShortBytes() ([]byte, error) {
	n, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	return r.Take(int(n))
}

// ReadBytes reads a 4-byte-signed-length-prefixed raw byte run.
// A length of -1 yields (nil, nil): the null marker.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	return r.Take(int(n))
}

// ReadValueLength reads a collection-element length in the version-
// appropriate width: 2 bytes for v<3, 4 bytes for v>=3. -1 denotes null.
func (r *Reader) ReadValueLength(v Version) (int32, error) {
	if v >= V3 {
		return r.ReadI32()
	}
	n, err := r.ReadU16()
	if err != nil {
		return 0, err
	}
	return int32(int16(n)), nil
}

// ReadValue reads a collection element in the version-appropriate sizing.
// A nil return denotes null, distinct from a non-nil empty slice.
func (r *Reader) ReadValue(v Version) ([]byte, error) {
	n, err := r.ReadValueLength(v)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	return r.Take(int(n))
}
