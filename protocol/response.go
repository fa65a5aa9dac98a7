package protocol

import (
	"fmt"
	"io"
	"net"

	"github.com/alvaro7rlz/cql-go/cqltype"
	"github.com/alvaro7rlz/cql-go/frame"
)

// Column describes one result-set or bound-variable column.
type Column struct {
	Keyspace string
	Table    string
	Name     string
	Type     cqltype.ColumnType
}

// RowsMetadata describes a RESULT/Rows or PREPARED payload's column shape.
type RowsMetadata struct {
	PagingState     []byte
	HasMorePages    bool
	GlobalTableSpec bool
	GlobalKeyspace  string
	GlobalTable     string
	Columns         []Column
}

const (
	rowsFlagGlobalTableSpec uint32 = 0x0001
	rowsFlagHasMorePages    uint32 = 0x0002
	rowsFlagNoMetadata      uint32 = 0x0004
)

// Response is any message the server may send.
type Response interface {
	Opcode() Opcode
}

type ReadyResponse struct{}

func (ReadyResponse) Opcode() Opcode { return OpReady }

type AuthenticateResponse struct {
	Authenticator string
}

func (AuthenticateResponse) Opcode() Opcode { return OpAuthenticate }

type AuthChallengeResponse struct {
	Token []byte
}

func (AuthChallengeResponse) Opcode() Opcode { return OpAuthChallenge }

type AuthSuccessResponse struct {
	Token []byte
}

func (AuthSuccessResponse) Opcode() Opcode { return OpAuthSuccess }

type SupportedResponse struct {
	Options map[string][]string
}

func (SupportedResponse) Opcode() Opcode { return OpSupported }

// ResultVoidBody, ResultRowsBody, ResultSetKeyspaceBody, ResultPreparedBody
// and ResultSchemaChangeBody are the five RESULT payload shapes.
type ResultVoidBody struct{}

type ResultRowsBody struct {
	Metadata RowsMetadata
	Rows     [][]cqltype.Value
}

type ResultSetKeyspaceBody struct {
	Keyspace string
}

type ResultPreparedBody struct {
	ID             []byte
	BoundMetadata  RowsMetadata
	ResultMetadata RowsMetadata
}

type ResultSchemaChangeBody struct {
	ChangeType SchemaChangeType
	Target     string // "KEYSPACE", "TABLE", "TYPE", "FUNCTION", "AGGREGATE"
	Keyspace   string
	Name       string // table/type/function/aggregate name; empty for KEYSPACE target
}

// ResultResponse wraps one of the five RESULT body shapes, selected by
// Kind; exactly one of the *Body fields is populated.
type ResultResponse struct {
	Kind         ResultKind
	Void         *ResultVoidBody
	Rows         *ResultRowsBody
	SetKeyspace  *ResultSetKeyspaceBody
	Prepared     *ResultPreparedBody
	SchemaChange *ResultSchemaChangeBody
}

func (ResultResponse) Opcode() Opcode { return OpResult }

// ErrorResponse is a decoded server ERROR body. Extra carries the
// code-specific trailing fields (e.g. Unavailable's consistency/required/
// alive) as already-typed values keyed by field name.
type ErrorResponse struct {
	Code    ErrorCode
	Message string
	Extra   map[string]any
}

func (ErrorResponse) Opcode() Opcode { return OpError }

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("protocol: server error 0x%04x: %s", uint32(e.Code), e.Message)
}

// EventResponse is a decoded server-pushed EVENT body.
type EventResponse struct {
	Kind EventKind

	// TOPOLOGY_CHANGE
	TopologyChange TopologyChangeType
	// STATUS_CHANGE
	StatusChange StatusChangeType
	// Address is set for both TOPOLOGY_CHANGE and STATUS_CHANGE.
	Address net.IP
	Port    int32

	// SCHEMA_CHANGE
	SchemaChange *ResultSchemaChangeBody
}

func (EventResponse) Opcode() Opcode { return OpEvent }

// DecodeResponse parses a single frame header + body pair read from r for
// the negotiated version v.
func DecodeResponse(r io.Reader, v frame.Version) (frame.Header, Response, error) {
	h, err := frame.DecodeHeader(r, v)
	if err != nil {
		return frame.Header{}, nil, err
	}
	body := make([]byte, h.BodyLength)
	if h.BodyLength > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return frame.Header{}, nil, fmt.Errorf("protocol: read body: %w", err)
		}
	}
	resp, err := decodeBody(v, Opcode(h.Opcode), body)
	return h, resp, err
}

// DecodeBody parses a response body whose header has already been read
// elsewhere (e.g. by conn.Connection's reader goroutine).
func DecodeBody(v frame.Version, op Opcode, body []byte) (Response, error) {
	return decodeBody(v, op, body)
}

func decodeBody(v frame.Version, op Opcode, body []byte) (Response, error) {
	fr := frame.NewReader(body)
	switch op {
	case OpReady:
		return ReadyResponse{}, nil
	case OpAuthenticate:
		s, err := fr.ReadShortString()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode AUTHENTICATE: %w", err)
		}
		return AuthenticateResponse{Authenticator: s}, nil
	case OpAuthChallenge:
		tok, err := fr.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode AUTH_CHALLENGE: %w", err)
		}
		return AuthChallengeResponse{Token: tok}, nil
	case OpAuthSuccess:
		tok, err := fr.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode AUTH_SUCCESS: %w", err)
		}
		return AuthSuccessResponse{Token: tok}, nil
	case OpSupported:
		m, err := readStringMultimap(fr)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode SUPPORTED: %w", err)
		}
		return SupportedResponse{Options: m}, nil
	case OpResult:
		return decodeResult(v, fr)
	case OpError:
		return decodeError(fr)
	case OpEvent:
		return decodeEvent(v, fr)
	default:
		return nil, fmt.Errorf("protocol: unexpected response opcode %s", op)
	}
}

func readStringMultimap(r *frame.Reader) (map[string][]string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, n)
	for i := uint16(0); i < n; i++ {
		k, err := r.ReadShortString()
		if err != nil {
			return nil, err
		}
		vn, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		vals := make([]string, vn)
		for j := range vals {
			vals[j], err = r.ReadShortString()
			if err != nil {
				return nil, err
			}
		}
		out[k] = vals
	}
	return out, nil
}

func decodeResult(v frame.Version, r *frame.Reader) (Response, error) {
	kind, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode RESULT kind: %w", err)
	}
	resp := ResultResponse{Kind: ResultKind(kind)}
	switch resp.Kind {
	case ResultVoid:
		resp.Void = &ResultVoidBody{}
	case ResultRows:
		meta, err := decodeRowsMetadata(v, r)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode ROWS metadata: %w", err)
		}
		rowCount, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode ROWS row count: %w", err)
		}
		rows := make([][]cqltype.Value, rowCount)
		for i := int32(0); i < rowCount; i++ {
			row := make([]cqltype.Value, len(meta.Columns))
			for c, col := range meta.Columns {
				val, err := cqltype.DecodeColumnValue(r, v, col.Type)
				if err != nil {
					return nil, fmt.Errorf("protocol: decode row %d column %d (%s): %w", i, c, col.Name, err)
				}
				row[c] = val
			}
			rows[i] = row
		}
		resp.Rows = &ResultRowsBody{Metadata: meta, Rows: rows}
	case ResultSetKeyspace:
		ks, err := r.ReadShortString()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode SET_KEYSPACE: %w", err)
		}
		resp.SetKeyspace = &ResultSetKeyspaceBody{Keyspace: ks}
	case ResultPrepared:
		id, err := r.ReadShortBytes()
		if err != nil {
			return nil, fmt.Errorf("protocol: decode PREPARED id: %w", err)
		}
		boundMeta, err := decodeRowsMetadata(v, r)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode PREPARED bound metadata: %w", err)
		}
		var resultMeta RowsMetadata
		if v >= frame.V2 {
			resultMeta, err = decodeRowsMetadata(v, r)
			if err != nil {
				return nil, fmt.Errorf("protocol: decode PREPARED result metadata: %w", err)
			}
		}
		resp.Prepared = &ResultPreparedBody{ID: id, BoundMetadata: boundMeta, ResultMetadata: resultMeta}
	case ResultSchemaChange:
		sc, err := decodeSchemaChangeBody(v, r)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode SCHEMA_CHANGE result: %w", err)
		}
		resp.SchemaChange = sc
	default:
		return nil, fmt.Errorf("protocol: unknown RESULT kind 0x%04x", kind)
	}
	return resp, nil
}

func decodeSchemaChangeBody(v frame.Version, r *frame.Reader) (*ResultSchemaChangeBody, error) {
	changeType, err := r.ReadShortString()
	if err != nil {
		return nil, err
	}
	out := &ResultSchemaChangeBody{ChangeType: SchemaChangeType(changeType)}
	if v >= frame.V3 {
		target, err := r.ReadShortString()
		if err != nil {
			return nil, err
		}
		out.Target = target
		ks, err := r.ReadShortString()
		if err != nil {
			return nil, err
		}
		out.Keyspace = ks
		if target != "KEYSPACE" {
			name, err := r.ReadShortString()
			if err != nil {
				return nil, err
			}
			out.Name = name
		}
		return out, nil
	}
	out.Target = "KEYSPACE"
	ks, err := r.ReadShortString()
	if err != nil {
		return nil, err
	}
	out.Keyspace = ks
	name, err := r.ReadShortString()
	if err != nil {
		return nil, err
	}
	if name != "" {
		out.Target = "TABLE"
		out.Name = name
	}
	return out, nil
}

func decodeRowsMetadata(v frame.Version, r *frame.Reader) (RowsMetadata, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return RowsMetadata{}, err
	}
	colCount, err := r.ReadI32()
	if err != nil {
		return RowsMetadata{}, err
	}
	meta := RowsMetadata{
		GlobalTableSpec: flags&rowsFlagGlobalTableSpec != 0,
		HasMorePages:    flags&rowsFlagHasMorePages != 0,
	}
	if meta.HasMorePages {
		ps, err := r.ReadBytes()
		if err != nil {
			return RowsMetadata{}, err
		}
		meta.PagingState = ps
	}
	if flags&rowsFlagNoMetadata != 0 {
		return meta, nil
	}
	if meta.GlobalTableSpec {
		ks, err := r.ReadShortString()
		if err != nil {
			return RowsMetadata{}, err
		}
		tbl, err := r.ReadShortString()
		if err != nil {
			return RowsMetadata{}, err
		}
		meta.GlobalKeyspace, meta.GlobalTable = ks, tbl
	}
	meta.Columns = make([]Column, colCount)
	for i := int32(0); i < colCount; i++ {
		col := Column{Keyspace: meta.GlobalKeyspace, Table: meta.GlobalTable}
		if !meta.GlobalTableSpec {
			ks, err := r.ReadShortString()
			if err != nil {
				return RowsMetadata{}, err
			}
			tbl, err := r.ReadShortString()
			if err != nil {
				return RowsMetadata{}, err
			}
			col.Keyspace, col.Table = ks, tbl
		}
		name, err := r.ReadShortString()
		if err != nil {
			return RowsMetadata{}, err
		}
		col.Name = name
		ct, err := decodeColumnType(r)
		if err != nil {
			return RowsMetadata{}, fmt.Errorf("column %q: %w", name, err)
		}
		col.Type = ct
		meta.Columns[i] = col
	}
	return meta, nil
}

func decodeColumnType(r *frame.Reader) (cqltype.ColumnType, error) {
	code, err := r.ReadU16()
	if err != nil {
		return cqltype.ColumnType{}, err
	}
	ct := cqltype.ColumnType{Kind: cqltype.Kind(code)}
	switch ct.Kind {
	case cqltype.KindCustom:
		name, err := r.ReadShortString()
		if err != nil {
			return cqltype.ColumnType{}, err
		}
		ct.CustomName = name
	case cqltype.KindList, cqltype.KindSet:
		elem, err := decodeColumnType(r)
		if err != nil {
			return cqltype.ColumnType{}, err
		}
		ct.ElemKind = elem.Kind
		ct.ElemCustomName = elem.CustomName
	case cqltype.KindMap:
		key, err := decodeColumnType(r)
		if err != nil {
			return cqltype.ColumnType{}, err
		}
		val, err := decodeColumnType(r)
		if err != nil {
			return cqltype.ColumnType{}, err
		}
		ct.KeyKind, ct.KeyCustomName = key.Kind, key.CustomName
		ct.ValKind, ct.ValCustomName = val.Kind, val.CustomName
	}
	return ct, nil
}

func decodeError(r *frame.Reader) (Response, error) {
	code, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode ERROR code: %w", err)
	}
	msg, err := r.ReadShortString()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode ERROR message: %w", err)
	}
	extra := map[string]any{}
	switch ErrorCode(code) {
	case ErrUnavailable:
		cl, _ := r.ReadU16()
		required, _ := r.ReadI32()
		alive, _ := r.ReadI32()
		extra["consistency"] = Consistency(cl)
		extra["required"] = required
		extra["alive"] = alive
	case ErrWriteTimeout:
		cl, _ := r.ReadU16()
		received, _ := r.ReadI32()
		blockFor, _ := r.ReadI32()
		writeType, _ := r.ReadShortString()
		extra["consistency"] = Consistency(cl)
		extra["received"] = received
		extra["blockFor"] = blockFor
		extra["writeType"] = writeType
	case ErrReadTimeout:
		cl, _ := r.ReadU16()
		received, _ := r.ReadI32()
		blockFor, _ := r.ReadI32()
		dataPresent, _ := r.ReadByte()
		extra["consistency"] = Consistency(cl)
		extra["received"] = received
		extra["blockFor"] = blockFor
		extra["dataPresent"] = dataPresent != 0
	case ErrAlreadyExists:
		ks, _ := r.ReadShortString()
		tbl, _ := r.ReadShortString()
		extra["keyspace"] = ks
		extra["table"] = tbl
	case ErrUnprepared:
		id, _ := r.ReadShortBytes()
		extra["unknownID"] = id
	}
	return ErrorResponse{Code: ErrorCode(code), Message: msg, Extra: extra}, nil
}

func decodeEvent(v frame.Version, r *frame.Reader) (Response, error) {
	kind, err := r.ReadShortString()
	if err != nil {
		return nil, fmt.Errorf("protocol: decode EVENT kind: %w", err)
	}
	out := EventResponse{Kind: EventKind(kind)}
	switch out.Kind {
	case EventTopologyChange:
		changeType, err := r.ReadShortString()
		if err != nil {
			return nil, err
		}
		ip, port, err := cqltype.DecodeInetWithPort(r)
		if err != nil {
			return nil, err
		}
		out.TopologyChange = TopologyChangeType(changeType)
		out.Address, out.Port = ip, port
	case EventStatusChange:
		changeType, err := r.ReadShortString()
		if err != nil {
			return nil, err
		}
		ip, port, err := cqltype.DecodeInetWithPort(r)
		if err != nil {
			return nil, err
		}
		out.StatusChange = StatusChangeType(changeType)
		out.Address, out.Port = ip, port
	case EventSchemaChange:
		sc, err := decodeSchemaChangeBody(v, r)
		if err != nil {
			return nil, err
		}
		out.SchemaChange = sc
	default:
		return nil, fmt.Errorf("protocol: unknown EVENT kind %q", kind)
	}
	return out, nil
}
