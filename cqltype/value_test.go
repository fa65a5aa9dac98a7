package cqltype_test

import (
	"math/big"
	"net"
	"testing"

	"github.com/google/uuid"

	"github.com/alvaro7rlz/cql-go/cqltype"
	"github.com/alvaro7rlz/cql-go/frame"
)

func encodeRow(t *testing.T, v frame.Version, val cqltype.Value) []byte {
	t.Helper()
	w := frame.NewWriter(32)
	if val.Null {
		w.WriteBytes(nil)
		return w.Bytes()
	}
	if val.Kind == cqltype.KindList || val.Kind == cqltype.KindSet || val.Kind == cqltype.KindMap {
		inner := frame.NewWriter(32)
		if err := cqltype.EncodeCollection(inner, v, val); err != nil {
			t.Fatalf("EncodeCollection: %v", err)
		}
		w.WriteBytes(inner.Bytes())
		return w.Bytes()
	}
	inner := frame.NewWriter(32)
	if err := cqltype.EncodeScalar(inner, val); err != nil {
		t.Fatalf("EncodeScalar: %v", err)
	}
	w.WriteBytes(inner.Bytes())
	return w.Bytes()
}

func decodeRow(t *testing.T, v frame.Version, ct cqltype.ColumnType, buf []byte) cqltype.Value {
	t.Helper()
	r := frame.NewReader(buf)
	val, err := cqltype.DecodeColumnValue(r, v, ct)
	if err != nil {
		t.Fatalf("DecodeColumnValue: %v", err)
	}
	return val
}

func TestScalarRoundtrip(t *testing.T) {
	cases := []struct {
		name string
		ct   cqltype.ColumnType
		val  cqltype.Value
	}{
		{"int", cqltype.ColumnType{Kind: cqltype.KindInt}, cqltype.NewInt(-42)},
		{"bigint", cqltype.ColumnType{Kind: cqltype.KindBigInt}, cqltype.NewBigInt(1 << 40)},
		{"float", cqltype.ColumnType{Kind: cqltype.KindFloat}, cqltype.NewFloat(3.5)},
		{"double", cqltype.ColumnType{Kind: cqltype.KindDouble}, cqltype.NewDouble(2.71828)},
		{"boolean true", cqltype.ColumnType{Kind: cqltype.KindBoolean}, cqltype.NewBoolean(true)},
		{"ascii", cqltype.ColumnType{Kind: cqltype.KindASCII}, cqltype.NewASCII("hello")},
		{"varchar", cqltype.ColumnType{Kind: cqltype.KindVarchar}, cqltype.NewVarchar("héllo")},
		{"blob", cqltype.ColumnType{Kind: cqltype.KindBlob}, cqltype.NewBlob([]byte{1, 2, 3})},
		{"timestamp", cqltype.ColumnType{Kind: cqltype.KindTimestamp}, cqltype.NewTimestamp(1700000000000)},
	}
	for _, v := range []frame.Version{frame.V1, frame.V2, frame.V3} {
		for _, c := range cases {
			buf := encodeRow(t, v, c.val)
			got := decodeRow(t, v, c.ct, buf)
			if got.Kind != c.val.Kind || got.Null != c.val.Null {
				t.Fatalf("%s/v%d: kind/null mismatch: %+v", c.name, v, got)
			}
			switch c.val.Kind {
			case cqltype.KindInt:
				if got.Int32 != c.val.Int32 {
					t.Fatalf("%s/v%d: got %d want %d", c.name, v, got.Int32, c.val.Int32)
				}
			case cqltype.KindBigInt:
				if got.Int64 != c.val.Int64 {
					t.Fatalf("%s/v%d: got %d want %d", c.name, v, got.Int64, c.val.Int64)
				}
			case cqltype.KindFloat:
				if got.Float32 != c.val.Float32 {
					t.Fatalf("%s/v%d: got %v want %v", c.name, v, got.Float32, c.val.Float32)
				}
			case cqltype.KindDouble:
				if got.Float64 != c.val.Float64 {
					t.Fatalf("%s/v%d: got %v want %v", c.name, v, got.Float64, c.val.Float64)
				}
			case cqltype.KindBoolean:
				if got.Bool != c.val.Bool {
					t.Fatalf("%s/v%d: got %v want %v", c.name, v, got.Bool, c.val.Bool)
				}
			case cqltype.KindASCII, cqltype.KindVarchar, cqltype.KindText:
				if got.Str != c.val.Str {
					t.Fatalf("%s/v%d: got %q want %q", c.name, v, got.Str, c.val.Str)
				}
			case cqltype.KindBlob:
				if string(got.Bytes) != string(c.val.Bytes) {
					t.Fatalf("%s/v%d: got %v want %v", c.name, v, got.Bytes, c.val.Bytes)
				}
			case cqltype.KindTimestamp:
				if got.UInt64 != c.val.UInt64 {
					t.Fatalf("%s/v%d: got %d want %d", c.name, v, got.UInt64, c.val.UInt64)
				}
			}
		}
	}
}

func TestNullScalar(t *testing.T) {
	buf := encodeRow(t, frame.V3, cqltype.NullValue(cqltype.KindInt))
	got := decodeRow(t, frame.V3, cqltype.ColumnType{Kind: cqltype.KindInt}, buf)
	if !got.Null {
		t.Fatalf("expected null, got %+v", got)
	}
}

func TestEmptyBlobIsNotNull(t *testing.T) {
	buf := encodeRow(t, frame.V3, cqltype.NewBlob([]byte{}))
	got := decodeRow(t, frame.V3, cqltype.ColumnType{Kind: cqltype.KindBlob}, buf)
	if got.Null {
		t.Fatalf("empty blob decoded as null")
	}
	if len(got.Bytes) != 0 {
		t.Fatalf("expected zero-length blob, got %v", got.Bytes)
	}
}

func TestUUIDRoundtrip(t *testing.T) {
	u := uuid.New()
	for _, kind := range []cqltype.Kind{cqltype.KindUUID, cqltype.KindTimeUUID} {
		val := cqltype.Value{Kind: kind, UUID: u}
		buf := encodeRow(t, frame.V3, val)
		got := decodeRow(t, frame.V3, cqltype.ColumnType{Kind: kind}, buf)
		if got.UUID != u {
			t.Fatalf("%s: got %s want %s", kind, got.UUID, u)
		}
	}
}

func TestVarintRoundtrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 127, 128, -128, -129, 1 << 40, -(1 << 40)} {
		val := cqltype.NewVarint(big.NewInt(n))
		buf := encodeRow(t, frame.V3, val)
		got := decodeRow(t, frame.V3, cqltype.ColumnType{Kind: cqltype.KindVarint}, buf)
		if got.Varint == nil || got.Varint.Int64() != n {
			t.Fatalf("varint %d: got %v", n, got.Varint)
		}
	}
}

func TestDecimalRoundtrip(t *testing.T) {
	unscaled := big.NewInt(-123456789)
	val := cqltype.NewDecimal(unscaled, 3)
	buf := encodeRow(t, frame.V3, val)
	got := decodeRow(t, frame.V3, cqltype.ColumnType{Kind: cqltype.KindDecimal}, buf)
	if got.Scale != 3 {
		t.Fatalf("scale = %d, want 3", got.Scale)
	}
	gotUnscaled := new(big.Int).SetBytes(got.Bytes)
	if got.Bool {
		gotUnscaled.Neg(gotUnscaled)
	}
	if gotUnscaled.Cmp(unscaled) != 0 {
		t.Fatalf("unscaled = %v, want %v", gotUnscaled, unscaled)
	}
}

func TestInetRoundtrip(t *testing.T) {
	for _, ip := range []net.IP{net.ParseIP("192.0.2.1").To4(), net.ParseIP("2001:db8::1")} {
		val := cqltype.NewInetNoPort(ip)
		buf := encodeRow(t, frame.V3, val)
		got := decodeRow(t, frame.V3, cqltype.ColumnType{Kind: cqltype.KindInet}, buf)
		if !got.IP.Equal(ip) {
			t.Fatalf("ip: got %v want %v", got.IP, ip)
		}
	}
}

func TestListRoundtripAcrossVersions(t *testing.T) {
	val := cqltype.Value{Kind: cqltype.KindList, List: []cqltype.Value{
		cqltype.NewInt(1), cqltype.NewInt(2), cqltype.NullValue(cqltype.KindInt),
	}}
	ct := cqltype.ColumnType{Kind: cqltype.KindList, ElemKind: cqltype.KindInt}
	for _, v := range []frame.Version{frame.V1, frame.V2, frame.V3} {
		buf := encodeRow(t, v, val)
		got := decodeRow(t, v, ct, buf)
		if len(got.List) != 3 {
			t.Fatalf("v%d: list len = %d, want 3", v, len(got.List))
		}
		if got.List[0].Int32 != 1 || got.List[1].Int32 != 2 {
			t.Fatalf("v%d: list elements = %+v", v, got.List)
		}
		if !got.List[2].Null {
			t.Fatalf("v%d: expected null third element", v)
		}
	}
}

func TestSetAndMapRoundtrip(t *testing.T) {
	setVal := cqltype.Value{Kind: cqltype.KindSet, List: []cqltype.Value{
		cqltype.NewVarchar("a"), cqltype.NewVarchar("b"),
	}}
	setCT := cqltype.ColumnType{Kind: cqltype.KindSet, ElemKind: cqltype.KindVarchar}
	buf := encodeRow(t, frame.V3, setVal)
	gotSet := decodeRow(t, frame.V3, setCT, buf)
	if len(gotSet.List) != 2 || gotSet.List[0].Str != "a" || gotSet.List[1].Str != "b" {
		t.Fatalf("set roundtrip: %+v", gotSet.List)
	}

	mapVal := cqltype.Value{Kind: cqltype.KindMap, Map: []cqltype.Pair{
		{Key: cqltype.NewVarchar("k1"), Value: cqltype.NewInt(10)},
		{Key: cqltype.NewVarchar("k2"), Value: cqltype.NewInt(20)},
	}}
	mapCT := cqltype.ColumnType{Kind: cqltype.KindMap, KeyKind: cqltype.KindVarchar, ValKind: cqltype.KindInt}
	buf = encodeRow(t, frame.V3, mapVal)
	gotMap := decodeRow(t, frame.V3, mapCT, buf)
	if len(gotMap.Map) != 2 {
		t.Fatalf("map len = %d, want 2", len(gotMap.Map))
	}
	if gotMap.Map[0].Key.Str != "k1" || gotMap.Map[0].Value.Int32 != 10 {
		t.Fatalf("map[0] = %+v", gotMap.Map[0])
	}
}

func TestUnknownKindPreservesRawBytes(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	w := frame.NewWriter(8)
	w.WriteBytes(raw)
	r := frame.NewReader(w.Bytes())
	got, err := cqltype.DecodeColumnValue(r, frame.V3, cqltype.ColumnType{Kind: cqltype.Kind(0x1234)})
	if err != nil {
		t.Fatalf("DecodeColumnValue: %v", err)
	}
	if got.Kind != cqltype.KindUnknown {
		t.Fatalf("expected KindUnknown, got %s", got.Kind)
	}
	if string(got.Bytes) != string(raw) {
		t.Fatalf("raw bytes not preserved: got %v want %v", got.Bytes, raw)
	}
}
