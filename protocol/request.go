package protocol

import (
	"fmt"
	"sort"

	"github.com/alvaro7rlz/cql-go/cqltype"
	"github.com/alvaro7rlz/cql-go/frame"
)

// Query flag bits (shared by QUERY, EXECUTE and per-statement BATCH entries).
const (
	flagValues            byte = 0x01
	flagSkipMetadata      byte = 0x02
	flagPageSize          byte = 0x04
	flagWithPagingState   byte = 0x08
	flagWithSerialConsist byte = 0x10
	flagDefaultTimestamp  byte = 0x20
	flagNamesForValues    byte = 0x40
)

// QueryParams bundles the optional fields attached to QUERY/EXECUTE/BATCH
// statements. Values are sent only when non-empty; PageSize, PagingState,
// SerialConsistency and DefaultTimestamp are sent only when the matching
// Has* field is true, whatever their own value.
type QueryParams struct {
	Consistency       Consistency
	Values            []cqltype.Value
	Names             []string // parallel to Values, only sent if non-nil
	SkipMetadata      bool
	PageSize          int32 // sent only if HasPageSize
	PagingState       []byte
	SerialConsistency Consistency // sent only if HasSerialConsist
	DefaultTimestamp  int64
	HasPageSize       bool
	HasPagingState    bool
	HasSerialConsist  bool
	HasTimestamp      bool
}

func (p QueryParams) flags() byte {
	var f byte
	if len(p.Values) > 0 {
		f |= flagValues
	}
	if p.SkipMetadata {
		f |= flagSkipMetadata
	}
	if p.HasPageSize {
		f |= flagPageSize
	}
	if p.HasPagingState {
		f |= flagWithPagingState
	}
	if p.HasSerialConsist {
		f |= flagWithSerialConsist
	}
	if p.HasTimestamp {
		f |= flagDefaultTimestamp
	}
	if p.Names != nil {
		f |= flagNamesForValues
	}
	return f
}

func writeQueryParams(w *frame.Writer, v frame.Version, p QueryParams) error {
	w.WriteU16(uint16(p.Consistency))
	w.WriteByte(p.flags())
	if len(p.Values) > 0 {
		w.WriteU16(uint16(len(p.Values)))
		for i, val := range p.Values {
			if p.Names != nil {
				w.WriteShortString(p.Names[i])
			}
			if val.Null {
				w.WriteValue(v, nil)
				continue
			}
			if val.Kind == cqltype.KindList || val.Kind == cqltype.KindSet || val.Kind == cqltype.KindMap {
				inner := frame.NewWriter(16)
				if err := cqltype.EncodeCollection(inner, v, val); err != nil {
					return fmt.Errorf("protocol: encode bound value %d: %w", i, err)
				}
				w.WriteValue(v, inner.Bytes())
				continue
			}
			inner := frame.NewWriter(16)
			if err := cqltype.EncodeScalar(inner, val); err != nil {
				return fmt.Errorf("protocol: encode bound value %d: %w", i, err)
			}
			w.WriteValue(v, inner.Bytes())
		}
	}
	if p.HasPageSize {
		w.WriteI32(p.PageSize)
	}
	if p.HasPagingState {
		w.WriteBytes(p.PagingState)
	}
	if p.HasSerialConsist {
		w.WriteU16(uint16(p.SerialConsistency))
	}
	if p.HasTimestamp {
		w.WriteI64(p.DefaultTimestamp)
	}
	return nil
}

// StartupRequest negotiates the connection's CQL version and compression.
type StartupRequest struct {
	Options map[string]string
}

func (r StartupRequest) Opcode() Opcode { return OpStartup }

func (r StartupRequest) Encode(v frame.Version) ([]byte, error) {
	w := frame.NewWriter(32)
	writeStringMap(w, r.Options)
	return w.Bytes(), nil
}

// CredentialsRequest is the v1-only plaintext auth response to AUTHENTICATE.
type CredentialsRequest struct {
	Credentials map[string]string
}

func (r CredentialsRequest) Opcode() Opcode { return OpCredentials }

func (r CredentialsRequest) Encode(v frame.Version) ([]byte, error) {
	if v > frame.V1 {
		return nil, fmt.Errorf("protocol: CREDENTIALS is only valid on protocol v1, got v%d", v)
	}
	w := frame.NewWriter(32)
	writeStringMap(w, r.Credentials)
	return w.Bytes(), nil
}

// AuthResponseRequest carries a SASL token for v2+ authentication.
type AuthResponseRequest struct {
	Token []byte
}

func (r AuthResponseRequest) Opcode() Opcode { return OpAuthResponse }

func (r AuthResponseRequest) Encode(v frame.Version) ([]byte, error) {
	w := frame.NewWriter(len(r.Token) + 4)
	w.WriteBytes(r.Token)
	return w.Bytes(), nil
}

// OptionsRequest asks the server which STARTUP options it supports.
type OptionsRequest struct{}

func (r OptionsRequest) Opcode() Opcode { return OpOptions }

func (r OptionsRequest) Encode(v frame.Version) ([]byte, error) { return nil, nil }

// QueryRequest executes an ad-hoc CQL statement.
type QueryRequest struct {
	CQL    string
	Params QueryParams
}

func (r QueryRequest) Opcode() Opcode { return OpQuery }

func (r QueryRequest) Encode(v frame.Version) ([]byte, error) {
	w := frame.NewWriter(64 + len(r.CQL))
	w.WriteLongString(r.CQL)
	if err := writeQueryParams(w, v, r.Params); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// PrepareRequest asks the server to parse and cache a CQL statement.
type PrepareRequest struct {
	CQL string
}

func (r PrepareRequest) Opcode() Opcode { return OpPrepare }

func (r PrepareRequest) Encode(v frame.Version) ([]byte, error) {
	w := frame.NewWriter(16 + len(r.CQL))
	w.WriteLongString(r.CQL)
	return w.Bytes(), nil
}

// ExecuteRequest runs a previously prepared statement by its opaque id.
type ExecuteRequest struct {
	PreparedID []byte
	Params     QueryParams
}

func (r ExecuteRequest) Opcode() Opcode { return OpExecute }

func (r ExecuteRequest) Encode(v frame.Version) ([]byte, error) {
	w := frame.NewWriter(32)
	w.WriteShortBytes(r.PreparedID)
	if err := writeQueryParams(w, v, r.Params); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// BatchStatement is one entry of a BATCH request: either an ad-hoc query
// (PreparedID == nil) or a reference to a prepared statement.
type BatchStatement struct {
	CQL        string
	PreparedID []byte
	Values     []cqltype.Value
}

// BatchRequest groups multiple DML statements for atomic (logged) or
// best-effort (unlogged/counter) application.
type BatchRequest struct {
	Type              BatchType
	Statements        []BatchStatement
	Consistency       Consistency
	SerialConsistency Consistency
	HasSerialConsist  bool
	DefaultTimestamp  int64
	HasTimestamp      bool
}

func (r BatchRequest) Opcode() Opcode { return OpBatch }

func (r BatchRequest) Encode(v frame.Version) ([]byte, error) {
	w := frame.NewWriter(64)
	w.WriteByte(byte(r.Type))
	w.WriteU16(uint16(len(r.Statements)))
	for i, stmt := range r.Statements {
		if stmt.PreparedID != nil {
			w.WriteByte(1)
			w.WriteShortBytes(stmt.PreparedID)
		} else {
			w.WriteByte(0)
			w.WriteLongString(stmt.CQL)
		}
		w.WriteU16(uint16(len(stmt.Values)))
		for j, val := range stmt.Values {
			if val.Null {
				w.WriteValue(v, nil)
				continue
			}
			inner := frame.NewWriter(16)
			var err error
			if val.Kind == cqltype.KindList || val.Kind == cqltype.KindSet || val.Kind == cqltype.KindMap {
				err = cqltype.EncodeCollection(inner, v, val)
			} else {
				err = cqltype.EncodeScalar(inner, val)
			}
			if err != nil {
				return nil, fmt.Errorf("protocol: encode batch statement %d value %d: %w", i, j, err)
			}
			w.WriteValue(v, inner.Bytes())
		}
	}
	var flags byte
	if r.HasSerialConsist {
		flags |= flagWithSerialConsist
	}
	if r.HasTimestamp {
		flags |= flagDefaultTimestamp
	}
	w.WriteU16(uint16(r.Consistency))
	if v >= frame.V3 {
		w.WriteByte(flags)
		if r.HasSerialConsist {
			w.WriteU16(uint16(r.SerialConsistency))
		}
		if r.HasTimestamp {
			w.WriteI64(r.DefaultTimestamp)
		}
	}
	return w.Bytes(), nil
}

// RegisterRequest subscribes the connection to a set of server-pushed
// event kinds.
type RegisterRequest struct {
	EventTypes []EventKind
}

func (r RegisterRequest) Opcode() Opcode { return OpRegister }

func (r RegisterRequest) Encode(v frame.Version) ([]byte, error) {
	w := frame.NewWriter(32)
	w.WriteU16(uint16(len(r.EventTypes)))
	for _, et := range r.EventTypes {
		w.WriteShortString(string(et))
	}
	return w.Bytes(), nil
}

// writeStringMap writes m with keys in sorted order so that encoding the
// same request twice yields identical bytes (spec.md §8 property 2); Go map
// iteration order is randomized and would otherwise break that guarantee.
func writeStringMap(w *frame.Writer, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.WriteU16(uint16(len(m)))
	for _, k := range keys {
		w.WriteShortString(k)
		w.WriteShortString(m[k])
	}
}

// Request is any message a client may send.
type Request interface {
	Opcode() Opcode
	Encode(v frame.Version) ([]byte, error)
}

// EncodeRequest encodes r's full frame (header + body) for the negotiated
// version v, assigning streamID as the frame's stream identifier.
func EncodeRequest(v frame.Version, streamID int16, r Request) ([]byte, error) {
	body, err := r.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s body: %w", r.Opcode(), err)
	}
	h := frame.Header{
		Version:    v,
		Response:   false,
		StreamID:   streamID,
		Opcode:     byte(r.Opcode()),
		BodyLength: uint32(len(body)),
	}
	buf := frame.EncodeHeader(make([]byte, 0, frame.HeaderLen(v)+4+len(body)), h)
	return append(buf, body...), nil
}
