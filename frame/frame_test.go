package frame_test

import (
	"bytes"
	"testing"

	"github.com/alvaro7rlz/cql-go/frame"
)

func TestHeaderRoundtrip(t *testing.T) {
	for _, v := range []frame.Version{frame.V1, frame.V2, frame.V3} {
		h := frame.Header{
			Version:    v,
			Response:   true,
			Flags:      0x01,
			StreamID:   7,
			Opcode:     0x08,
			BodyLength: 42,
		}
		buf := frame.EncodeHeader(nil, h)
		if len(buf) != frame.HeaderLen(v)+4 {
			t.Fatalf("v%d: header length = %d, want %d", v, len(buf), frame.HeaderLen(v)+4)
		}
		got, err := frame.DecodeHeader(bytes.NewReader(buf), v)
		if err != nil {
			t.Fatalf("v%d: decode: %v", v, err)
		}
		if got != h {
			t.Fatalf("v%d: got %+v, want %+v", v, got, h)
		}
	}
}

func TestHeaderNegativeStreamID(t *testing.T) {
	h := frame.Header{Version: frame.V3, StreamID: -1, Opcode: 0x0c}
	buf := frame.EncodeHeader(nil, h)
	got, err := frame.DecodeHeader(bytes.NewReader(buf), frame.V3)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.StreamID != -1 {
		t.Fatalf("StreamID = %d, want -1", got.StreamID)
	}
}

func TestHeaderV1V2StreamIDByteWidth(t *testing.T) {
	h := frame.Header{Version: frame.V2, StreamID: 5, Opcode: 0x01}
	buf := frame.EncodeHeader(nil, h)
	if len(buf) != 8 {
		t.Fatalf("v1/v2 header+len should be 8 bytes, got %d", len(buf))
	}
}

func TestWriterReaderStringRoundtrip(t *testing.T) {
	w := frame.NewWriter(16)
	w.WriteShortString("hello")
	w.WriteLongString("world")

	r := frame.NewReader(w.Bytes())
	s, err := r.ReadShortString()
	if err != nil || s != "hello" {
		t.Fatalf("ReadShortString() = %q, %v", s, err)
	}
	l, err := r.ReadLongString()
	if err != nil || l != "world" {
		t.Fatalf("ReadLongString() = %q, %v", l, err)
	}
}

func TestBytesNullVsEmpty(t *testing.T) {
	w := frame.NewWriter(16)
	w.WriteBytes(nil)
	w.WriteBytes([]byte{})
	w.WriteBytes([]byte{1, 2, 3})

	r := frame.NewReader(w.Bytes())
	null, err := r.ReadBytes()
	if err != nil || null != nil {
		t.Fatalf("nil bytes: got %v, %v", null, err)
	}
	empty, err := r.ReadBytes()
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty bytes: got %v, %v", empty, err)
	}
	some, err := r.ReadBytes()
	if err != nil || !bytes.Equal(some, []byte{1, 2, 3}) {
		t.Fatalf("bytes: got %v, %v", some, err)
	}
}

func TestValueSizingByVersion(t *testing.T) {
	payload := []byte{0xaa, 0xbb}

	wv3 := frame.NewWriter(16)
	wv3.WriteValue(frame.V3, payload)
	rv3 := frame.NewReader(wv3.Bytes())
	if got, err := rv3.ReadValue(frame.V3); err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("v3 value roundtrip: %v, %v", got, err)
	}
	if rv3.Remaining() != 0 {
		t.Fatalf("v3: expected no remaining bytes, got %d", rv3.Remaining())
	}

	wv2 := frame.NewWriter(16)
	wv2.WriteValue(frame.V2, payload)
	if wv2.Len() != 2+len(payload) {
		t.Fatalf("v2 value should use 2-byte length, wrote %d bytes", wv2.Len())
	}
	rv2 := frame.NewReader(wv2.Bytes())
	if got, err := rv2.ReadValue(frame.V2); err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("v2 value roundtrip: %v, %v", got, err)
	}

	// A v3 payload decoded with v2 sizing reads the wrong length and either
	// errors or desyncs; demonstrate the short-read failure mode.
	wBig := frame.NewWriter(16)
	wBig.WriteValue(frame.V3, bytes.Repeat([]byte{0x01}, 70000))
	rBig := frame.NewReader(wBig.Bytes())
	if _, err := rBig.ReadValue(frame.V2); err == nil {
		t.Fatalf("expected v2-sizing decode of a >65535-byte v3 value to fail")
	}
}

func TestShortReadFails(t *testing.T) {
	r := frame.NewReader([]byte{0x00, 0x05, 'h', 'i'})
	if _, err := r.ReadShortString(); err == nil {
		t.Fatalf("expected short read error")
	}
}
