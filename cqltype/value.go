// Package cqltype implements the closed set of typed CQL wire values and
// their version-parameterized encode/decode rules (spec.md §3.1/§4.1):
// fixed-width scalars, variable-length text/blob, collections, and the
// custom/unknown placeholders for codecs the driver does not implement.
package cqltype

import (
	"fmt"
	"math/big"
	"net"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alvaro7rlz/cql-go/frame"
)

// Kind is the wire type-code of a column, matching the CQL native protocol's
// documented numeric assignments.
type Kind uint16

const (
	KindCustom    Kind = 0x0000
	KindASCII     Kind = 0x0001
	KindBigInt    Kind = 0x0002
	KindBlob      Kind = 0x0003
	KindBoolean   Kind = 0x0004
	KindCounter   Kind = 0x0005
	KindDecimal   Kind = 0x0006
	KindDouble    Kind = 0x0007
	KindFloat     Kind = 0x0008
	KindInt       Kind = 0x0009
	KindText      Kind = 0x000A
	KindTimestamp Kind = 0x000B
	KindUUID      Kind = 0x000C
	KindVarchar   Kind = 0x000D
	KindVarint    Kind = 0x000E
	KindTimeUUID  Kind = 0x000F
	KindInet      Kind = 0x0010
	KindList      Kind = 0x0020
	KindMap       Kind = 0x0021
	KindSet       Kind = 0x0022
	KindUnknown   Kind = 0xffff
)

func (k Kind) String() string {
	switch k {
	case KindCustom:
		return "custom"
	case KindASCII:
		return "ascii"
	case KindBigInt:
		return "bigint"
	case KindBlob:
		return "blob"
	case KindBoolean:
		return "boolean"
	case KindCounter:
		return "counter"
	case KindDecimal:
		return "decimal"
	case KindDouble:
		return "double"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindUUID:
		return "uuid"
	case KindVarchar:
		return "varchar"
	case KindVarint:
		return "varint"
	case KindTimeUUID:
		return "timeuuid"
	case KindInet:
		return "inet"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	}
	return fmt.Sprintf("unknown(0x%04x)", uint16(k))
}

func (k Kind) isCollection() bool {
	return k == KindList || k == KindSet || k == KindMap
}

// ColumnType describes a column's declared type, including the up-to-two
// auxiliary type codes collections carry (element/key/value) and the name
// attached to a custom type.
type ColumnType struct {
	Kind       Kind
	CustomName string // meaningful when Kind == KindCustom

	ElemKind       Kind // meaningful when Kind == KindList or KindSet
	ElemCustomName string

	KeyKind       Kind // meaningful when Kind == KindMap
	KeyCustomName string
	ValKind       Kind
	ValCustomName string
}

// Pair is a single map entry.
type Pair struct {
	Key   Value
	Value Value
}

// Value is a closed-variant typed CQL value. Exactly one payload field is
// meaningful, selected by Kind; Null distinguishes an absent value from an
// empty one (e.g. a zero-length blob).
type Value struct {
	Kind Kind
	Null bool

	Str     string  // ascii/varchar/text; decimal/custom carry raw bytes instead
	Bytes   []byte  // blob/decimal-unscaled/custom-raw/unknown-raw
	Int32   int32   // int
	Int64   int64   // bigint/counter
	UInt64  uint64  // timestamp (ms since epoch, unsigned per wire contract)
	Float32 float32
	Float64 float64
	Bool    bool
	UUID    uuid.UUID
	Varint  *big.Int
	Scale   int32 // decimal
	IP      net.IP
	Port    int32 // inet-with-port; meaningful only when HasPort is set
	HasPort bool

	List []Value
	Map  []Pair
}

func null(k Kind) Value { return Value{Kind: k, Null: true} }

func NullValue(k Kind) Value    { return null(k) }
func NewASCII(s string) Value   { return Value{Kind: KindASCII, Str: s} }
func NewVarchar(s string) Value { return Value{Kind: KindVarchar, Str: s} }
func NewText(s string) Value    { return Value{Kind: KindText, Str: s} }
func NewInt(v int32) Value      { return Value{Kind: KindInt, Int32: v} }
func NewBigInt(v int64) Value   { return Value{Kind: KindBigInt, Int64: v} }
func NewCounter(v int64) Value  { return Value{Kind: KindCounter, Int64: v} }
func NewFloat(v float32) Value  { return Value{Kind: KindFloat, Float32: v} }
func NewDouble(v float64) Value { return Value{Kind: KindDouble, Float64: v} }
func NewBoolean(v bool) Value   { return Value{Kind: KindBoolean, Bool: v} }
func NewBlob(b []byte) Value    { return Value{Kind: KindBlob, Bytes: b} }
func NewTimestamp(ms uint64) Value {
	return Value{Kind: KindTimestamp, UInt64: ms}
}
func NewUUID(u uuid.UUID) Value     { return Value{Kind: KindUUID, UUID: u} }
func NewTimeUUID(u uuid.UUID) Value { return Value{Kind: KindTimeUUID, UUID: u} }
func NewVarint(v *big.Int) Value    { return Value{Kind: KindVarint, Varint: v} }
func NewInetNoPort(ip net.IP) Value { return Value{Kind: KindInet, IP: ip} }
func NewInetWithPort(ip net.IP, port int32) Value {
	return Value{Kind: KindInet, IP: ip, Port: port, HasPort: true}
}
func NewDecimal(unscaled *big.Int, scale int32) Value {
	return Value{Kind: KindDecimal, Bytes: unscaled.Bytes(), Scale: scale, Bool: unscaled.Sign() < 0}
}

// EncodeScalar writes a non-collection value's raw payload (without the
// outer bytes-length envelope, which the caller adds) to w.
func EncodeScalar(w *frame.Writer, v Value) error {
	if v.Null {
		return nil
	}
	switch v.Kind {
	case KindASCII, KindVarchar, KindText:
		w.WriteRaw([]byte(v.Str))
	case KindInt:
		w.WriteI32(v.Int32)
	case KindBigInt, KindCounter:
		w.WriteI64(v.Int64)
	case KindFloat:
		w.WriteU32(float32bits(v.Float32))
	case KindDouble:
		w.WriteU64(float64bits(v.Float64))
	case KindBoolean:
		if v.Bool {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	case KindBlob:
		w.WriteRaw(v.Bytes)
	case KindTimestamp:
		w.WriteU64(v.UInt64)
	case KindUUID, KindTimeUUID:
		b, err := v.UUID.MarshalBinary()
		if err != nil {
			return fmt.Errorf("cqltype: marshal uuid: %w", err)
		}
		w.WriteRaw(b)
	case KindVarint:
		if v.Varint == nil {
			return fmt.Errorf("cqltype: nil varint for non-null value")
		}
		w.WriteRaw(encodeVarint(v.Varint))
	case KindDecimal:
		w.WriteI32(v.Scale)
		unscaled := new(big.Int).SetBytes(v.Bytes)
		if v.Bool { // negative flag set by NewDecimal
			unscaled.Neg(unscaled)
		}
		w.WriteRaw(encodeVarint(unscaled))
	case KindInet:
		w.WriteRaw(v.IP)
		if v.HasPort {
			w.WriteI32(v.Port)
		}
	case KindCustom, KindUnknown:
		w.WriteRaw(v.Bytes)
	case KindList, KindSet:
		return fmt.Errorf("cqltype: use EncodeCollection for %s", v.Kind)
	case KindMap:
		return fmt.Errorf("cqltype: use EncodeCollection for %s", v.Kind)
	default:
		return fmt.Errorf("cqltype: cannot encode unknown kind %s", v.Kind)
	}
	return nil
}

// EncodeCollection writes a list/set/map value's raw payload (count plus
// elements, version-sized) to w.
func EncodeCollection(w *frame.Writer, v frame.Version, val Value) error {
	switch val.Kind {
	case KindList, KindSet:
		writeCount(w, v, len(val.List))
		for _, elem := range val.List {
			if err := encodeElement(w, v, elem); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		writeCount(w, v, len(val.Map))
		for _, pair := range val.Map {
			if err := encodeElement(w, v, pair.Key); err != nil {
				return err
			}
			if err := encodeElement(w, v, pair.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("cqltype: %s is not a collection", val.Kind)
	}
}

func writeCount(w *frame.Writer, v frame.Version, n int) {
	if v >= frame.V3 {
		w.WriteI32(int32(n))
	} else {
		w.WriteU16(uint16(n))
	}
}

func encodeElement(w *frame.Writer, v frame.Version, elem Value) error {
	if elem.Null {
		w.WriteValue(v, nil)
		return nil
	}
	inner := frame.NewWriter(16)
	if err := EncodeScalar(inner, elem); err != nil {
		return err
	}
	w.WriteValue(v, inner.Bytes())
	return nil
}

// DecodeColumnValue reads one row's column value. Every column value
// (scalar or collection) is wrapped in the standard 4-byte signed length
// "bytes" envelope regardless of protocol version; only nested collection
// counts and element lengths shift width with the version (spec.md §3.1).
func DecodeColumnValue(r *frame.Reader, v frame.Version, ct ColumnType) (Value, error) {
	raw, err := r.ReadBytes()
	if err != nil {
		return Value{}, fmt.Errorf("cqltype: read column envelope: %w", err)
	}
	if raw == nil {
		return null(ct.Kind), nil
	}
	inner := frame.NewReader(raw)
	switch ct.Kind {
	case KindList, KindSet:
		return decodeList(inner, v, ct)
	case KindMap:
		return decodeMap(inner, v, ct)
	default:
		return decodeScalar(raw, ct)
	}
}

func decodeList(r *frame.Reader, v frame.Version, ct ColumnType) (Value, error) {
	n, err := readCount(r, v)
	if err != nil {
		return Value{}, fmt.Errorf("cqltype: read %s count: %w", ct.Kind, err)
	}
	elemType := ColumnType{Kind: ct.ElemKind, CustomName: ct.ElemCustomName}
	out := make([]Value, 0, n)
	for i := int32(0); i < n; i++ {
		elem, err := decodeElement(r, v, elemType)
		if err != nil {
			return Value{}, fmt.Errorf("cqltype: read %s element %d: %w", ct.Kind, i, err)
		}
		out = append(out, elem)
	}
	return Value{Kind: ct.Kind, List: out}, nil
}

func decodeMap(r *frame.Reader, v frame.Version, ct ColumnType) (Value, error) {
	n, err := readCount(r, v)
	if err != nil {
		return Value{}, fmt.Errorf("cqltype: read map count: %w", err)
	}
	keyType := ColumnType{Kind: ct.KeyKind, CustomName: ct.KeyCustomName}
	valType := ColumnType{Kind: ct.ValKind, CustomName: ct.ValCustomName}
	out := make([]Pair, 0, n)
	for i := int32(0); i < n; i++ {
		key, err := decodeElement(r, v, keyType)
		if err != nil {
			return Value{}, fmt.Errorf("cqltype: read map key %d: %w", i, err)
		}
		val, err := decodeElement(r, v, valType)
		if err != nil {
			return Value{}, fmt.Errorf("cqltype: read map value %d: %w", i, err)
		}
		out = append(out, Pair{Key: key, Value: val})
	}
	return Value{Kind: KindMap, Map: out}, nil
}

func readCount(r *frame.Reader, v frame.Version) (int32, error) {
	if v >= frame.V3 {
		return r.ReadI32()
	}
	n, err := r.ReadU16()
	return int32(n), err
}

func decodeElement(r *frame.Reader, v frame.Version, ct ColumnType) (Value, error) {
	raw, err := r.ReadValue(v)
	if err != nil {
		return Value{}, err
	}
	if raw == nil {
		return null(ct.Kind), nil
	}
	if ct.Kind.isCollection() {
		return Value{}, fmt.Errorf("cqltype: nested collection elements are not supported")
	}
	return decodeScalar(raw, ct)
}

func decodeScalar(raw []byte, ct ColumnType) (Value, error) {
	switch ct.Kind {
	case KindASCII:
		s, err := validUTF8(raw)
		return Value{Kind: ct.Kind, Str: s}, err
	case KindVarchar:
		s, err := validUTF8(raw)
		return Value{Kind: ct.Kind, Str: s}, err
	case KindText:
		s, err := validUTF8(raw)
		return Value{Kind: ct.Kind, Str: s}, err
	case KindInt:
		if len(raw) != 4 {
			return Value{}, fmt.Errorf("cqltype: int length %d, want 4", len(raw))
		}
		return Value{Kind: ct.Kind, Int32: int32(be32(raw))}, nil
	case KindBigInt:
		if len(raw) != 8 {
			return Value{}, fmt.Errorf("cqltype: bigint length %d, want 8", len(raw))
		}
		return Value{Kind: ct.Kind, Int64: int64(be64(raw))}, nil
	case KindCounter:
		if len(raw) != 8 {
			return Value{}, fmt.Errorf("cqltype: counter length %d, want 8", len(raw))
		}
		return Value{Kind: ct.Kind, Int64: int64(be64(raw))}, nil
	case KindFloat:
		if len(raw) != 4 {
			return Value{}, fmt.Errorf("cqltype: float length %d, want 4", len(raw))
		}
		return Value{Kind: ct.Kind, Float32: bitsToFloat32(be32(raw))}, nil
	case KindDouble:
		if len(raw) != 8 {
			return Value{}, fmt.Errorf("cqltype: double length %d, want 8", len(raw))
		}
		return Value{Kind: ct.Kind, Float64: bitsToFloat64(be64(raw))}, nil
	case KindBoolean:
		if len(raw) != 1 {
			return Value{}, fmt.Errorf("cqltype: boolean length %d, want 1", len(raw))
		}
		return Value{Kind: ct.Kind, Bool: raw[0] != 0}, nil
	case KindBlob:
		return Value{Kind: ct.Kind, Bytes: append([]byte(nil), raw...)}, nil
	case KindTimestamp:
		if len(raw) != 8 {
			return Value{}, fmt.Errorf("cqltype: timestamp length %d, want 8", len(raw))
		}
		return Value{Kind: ct.Kind, UInt64: be64(raw)}, nil
	case KindUUID, KindTimeUUID:
		if len(raw) != 16 {
			return Value{}, fmt.Errorf("cqltype: %s length %d, want 16", ct.Kind, len(raw))
		}
		u, err := uuid.FromBytes(raw)
		if err != nil {
			return Value{}, fmt.Errorf("cqltype: invalid %s: %w", ct.Kind, err)
		}
		return Value{Kind: ct.Kind, UUID: u}, nil
	case KindVarint:
		if len(raw) == 0 {
			return Value{}, fmt.Errorf("cqltype: empty varint")
		}
		return Value{Kind: ct.Kind, Varint: decodeVarint(raw)}, nil
	case KindDecimal:
		if len(raw) < 4 {
			return Value{}, fmt.Errorf("cqltype: decimal too short: %d bytes", len(raw))
		}
		scale := int32(be32(raw[:4]))
		unscaled := decodeVarint(raw[4:])
		neg := unscaled.Sign() < 0
		abs := new(big.Int).Abs(unscaled)
		return Value{Kind: ct.Kind, Scale: scale, Bytes: abs.Bytes(), Bool: neg}, nil
	case KindInet:
		switch len(raw) {
		case 4, 16:
			return Value{Kind: ct.Kind, IP: append(net.IP(nil), raw...)}, nil
		default:
			return Value{}, fmt.Errorf("cqltype: inet length %d, want 4 or 16", len(raw))
		}
	case KindCustom:
		return Value{Kind: ct.Kind, Bytes: append([]byte(nil), raw...)}, nil
	default:
		// Unrecognized/unimplemented sub-codec: preserve frame alignment by
		// keeping the raw bytes rather than failing the whole response.
		return Value{Kind: KindUnknown, Bytes: append([]byte(nil), raw...)}, nil
	}
}

func validUTF8(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("cqltype: invalid utf-8 sequence")
	}
	return string(raw), nil
}

// DecodeInetWithPort reads an [inet] value as carried by TOPOLOGY_CHANGE
// and STATUS_CHANGE event bodies: a single unsigned length byte (4 or 16),
// that many address bytes, then a trailing 4-byte signed port. This is a
// one-byte-length envelope, distinct from the general 4-byte signed
// [bytes] envelope DecodeColumnValue uses for row values.
func DecodeInetWithPort(r *frame.Reader) (net.IP, int32, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, 0, fmt.Errorf("cqltype: read inet address length: %w", err)
	}
	var ip net.IP
	switch n {
	case 4, 16:
		raw, err := r.Take(int(n))
		if err != nil {
			return nil, 0, fmt.Errorf("cqltype: read inet address: %w", err)
		}
		ip = append(net.IP(nil), raw...)
	case 0:
		ip = nil
	default:
		return nil, 0, fmt.Errorf("cqltype: inet address length %d, want 4 or 16", n)
	}
	port, err := r.ReadI32()
	if err != nil {
		return nil, 0, fmt.Errorf("cqltype: read inet port: %w", err)
	}
	return ip, port, nil
}
