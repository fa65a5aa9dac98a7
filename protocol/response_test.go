package protocol_test

import (
	"bytes"
	"testing"

	"github.com/alvaro7rlz/cql-go/cqltype"
	"github.com/alvaro7rlz/cql-go/frame"
	"github.com/alvaro7rlz/cql-go/protocol"
)

func frameBytes(t *testing.T, v frame.Version, op protocol.Opcode, body []byte) []byte {
	t.Helper()
	h := frame.Header{Version: v, Response: true, StreamID: 1, Opcode: byte(op), BodyLength: uint32(len(body))}
	buf := frame.EncodeHeader(nil, h)
	return append(buf, body...)
}

func TestDecodeReady(t *testing.T) {
	buf := frameBytes(t, frame.V3, protocol.OpReady, nil)
	h, resp, err := protocol.DecodeResponse(bytes.NewReader(buf), frame.V3)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if h.Opcode != byte(protocol.OpReady) {
		t.Fatalf("opcode mismatch")
	}
	if _, ok := resp.(protocol.ReadyResponse); !ok {
		t.Fatalf("got %T, want ReadyResponse", resp)
	}
}

func TestDecodeErrorUnavailable(t *testing.T) {
	w := frame.NewWriter(32)
	w.WriteU32(uint32(protocol.ErrUnavailable))
	w.WriteShortString("not enough replicas")
	w.WriteU16(uint16(protocol.ConsistencyQuorum))
	w.WriteI32(3)
	w.WriteI32(1)

	buf := frameBytes(t, frame.V3, protocol.OpError, w.Bytes())
	_, resp, err := protocol.DecodeResponse(bytes.NewReader(buf), frame.V3)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	errResp, ok := resp.(protocol.ErrorResponse)
	if !ok {
		t.Fatalf("got %T, want ErrorResponse", resp)
	}
	if errResp.Code != protocol.ErrUnavailable {
		t.Fatalf("code = %v", errResp.Code)
	}
	if errResp.Extra["required"] != int32(3) || errResp.Extra["alive"] != int32(1) {
		t.Fatalf("extra = %+v", errResp.Extra)
	}
}

func TestDecodeRowsResult(t *testing.T) {
	w := frame.NewWriter(64)
	w.WriteU32(uint32(protocol.ResultRows))
	w.WriteU32(0x0001) // global_table_spec
	w.WriteI32(2)      // column count
	w.WriteShortString("ks")
	w.WriteShortString("tbl")
	// column 0: id int
	w.WriteShortString("id")
	w.WriteU16(uint16(cqltype.KindInt))
	// column 1: name varchar
	w.WriteShortString("name")
	w.WriteU16(uint16(cqltype.KindVarchar))
	w.WriteI32(1) // row count
	w.WriteI32(4)
	w.WriteI32(42)
	w.WriteI32(int32(len("alice")))
	w.WriteRaw([]byte("alice"))

	buf := frameBytes(t, frame.V3, protocol.OpResult, w.Bytes())
	_, resp, err := protocol.DecodeResponse(bytes.NewReader(buf), frame.V3)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	result, ok := resp.(protocol.ResultResponse)
	if !ok || result.Rows == nil {
		t.Fatalf("got %T, want ResultResponse with Rows", resp)
	}
	if len(result.Rows.Metadata.Columns) != 2 {
		t.Fatalf("columns = %d, want 2", len(result.Rows.Metadata.Columns))
	}
	if len(result.Rows.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(result.Rows.Rows))
	}
	row := result.Rows.Rows[0]
	if row[0].Int32 != 42 {
		t.Fatalf("row[0] = %+v, want Int32=42", row[0])
	}
	if row[1].Str != "alice" {
		t.Fatalf("row[1] = %+v, want Str=alice", row[1])
	}
}

func TestDecodeTopologyChangeEvent(t *testing.T) {
	w := frame.NewWriter(32)
	w.WriteShortString(string(protocol.EventTopologyChange))
	w.WriteShortString(string(protocol.TopologyNewNode))
	w.WriteByte(4) // inet address length: one byte, not the [bytes] envelope
	w.WriteRaw([]byte{10, 0, 0, 5})
	w.WriteI32(9042)

	buf := frameBytes(t, frame.V3, protocol.OpEvent, w.Bytes())
	_, resp, err := protocol.DecodeResponse(bytes.NewReader(buf), frame.V3)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	ev, ok := resp.(protocol.EventResponse)
	if !ok {
		t.Fatalf("got %T, want EventResponse", resp)
	}
	if ev.Kind != protocol.EventTopologyChange || ev.TopologyChange != protocol.TopologyNewNode {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Address.String() != "10.0.0.5" {
		t.Fatalf("address = %v, want 10.0.0.5", ev.Address)
	}
	if ev.Port != 9042 {
		t.Fatalf("port = %d, want 9042", ev.Port)
	}
}
