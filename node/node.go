// Package node owns one cluster member: its Connection, negotiated
// protocol version, startup/auth handshake, and the prepared-statement
// cache keyed by CQL text.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alvaro7rlz/cql-go/conn"
	"github.com/alvaro7rlz/cql-go/frame"
	"github.com/alvaro7rlz/cql-go/pool"
	"github.com/alvaro7rlz/cql-go/protocol"
)

// Credentials is the plaintext username/password pair sent in response to
// an AUTHENTICATE challenge, via CREDENTIALS on v1 or a SASL PLAIN
// AUTH_RESPONSE token on v2+.
type Credentials struct {
	Username string
	Password string
}

// PreparedStatement is a cached EXECUTE target: the server's opaque id
// plus the bound-variable and result column metadata needed to encode
// parameters and decode rows without re-PREPAREing.
type PreparedStatement struct {
	CQL            string
	ID             []byte
	BoundMetadata  protocol.RowsMetadata
	ResultMetadata protocol.RowsMetadata
}

// Node is one cluster member reachable over a single multiplexed
// Connection. The Connection itself is registered in a private pool.Pool
// under the node's own address, and every outbound submission after the
// handshake is routed through that pool (spec.md §4.5); Node still
// exclusively owns the Connection's lifecycle.
type Node struct {
	Addr    string
	version frame.Version
	p       *pool.Pool

	// OnLatency, if set, is invoked with the round-trip duration of every
	// request made through the blocking methods (ExecQuery, Prepare,
	// ExecPrepared, ExecBatch, Register). Requests submitted through the
	// ...Async methods are not timed. Cluster wires this to its balancer.
	OnLatency func(time.Duration)

	mu       sync.RWMutex
	prepared map[string]*PreparedStatement
	lastCQL  string
}

// LastCQL returns the most recent query or prepared statement text executed
// against this node, for operator introspection (cluster.ShowClusterInformation).
func (n *Node) LastCQL() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastCQL
}

func (n *Node) recordCQL(cql string) {
	n.mu.Lock()
	n.lastCQL = cql
	n.mu.Unlock()
}

// Connect dials addr and negotiates the highest protocol version in
// [frame.MinSupportedVersion, maxVersion] the server accepts, performing
// STARTUP and, if challenged, authentication with creds (which may be
// nil when the server requires none).
func Connect(ctx context.Context, addr string, maxVersion frame.Version, startupOptions map[string]string, creds *Credentials) (*Node, error) {
	if startupOptions == nil {
		startupOptions = map[string]string{"CQL_VERSION": "3.0.0"}
	}

	var lastErr error
	for v := maxVersion; v >= frame.MinSupportedVersion; v-- {
		c, err := conn.Connect(ctx, addr, v)
		if err != nil {
			return nil, fmt.Errorf("node: dial %s: %w", addr, err)
		}

		resp, err := roundTripConn(c, v, protocol.StartupRequest{Options: startupOptions})
		if err != nil {
			_ = c.Close()
			lastErr = err
			continue
		}

		switch r := resp.(type) {
		case protocol.ReadyResponse:
			return newNode(addr, v, c), nil
		case protocol.AuthenticateResponse:
			if err := authenticate(c, v, r, creds); err != nil {
				_ = c.Close()
				return nil, err
			}
			return newNode(addr, v, c), nil
		case protocol.ErrorResponse:
			_ = c.Close()
			if r.Code == protocol.ErrProtocol && v > frame.MinSupportedVersion {
				lastErr = fmt.Errorf("node: %s rejected protocol v%d: %w", addr, v, r)
				continue
			}
			return nil, fmt.Errorf("node: startup: %w", r)
		default:
			_ = c.Close()
			return nil, fmt.Errorf("node: unexpected STARTUP response %T", resp)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("node: no protocol version accepted by %s: %w", addr, lastErr)
	}
	return nil, fmt.Errorf("node: no protocol version accepted by %s", addr)
}

func newNode(addr string, v frame.Version, c *conn.Connection) *Node {
	p := pool.New()
	p.Add(addr, c)
	return &Node{Addr: addr, version: v, p: p, prepared: make(map[string]*PreparedStatement)}
}

func authenticate(c *conn.Connection, v frame.Version, challenge protocol.AuthenticateResponse, creds *Credentials) error {
	if creds == nil {
		return fmt.Errorf("node: server requires authentication (%s) but no credentials were supplied", challenge.Authenticator)
	}

	var req protocol.Request
	if v <= frame.V1 {
		req = protocol.CredentialsRequest{Credentials: map[string]string{
			"username": creds.Username,
			"password": creds.Password,
		}}
	} else {
		token := append([]byte{0}, creds.Username...)
		token = append(token, 0)
		token = append(token, creds.Password...)
		req = protocol.AuthResponseRequest{Token: token}
	}

	resp, err := roundTripConn(c, v, req)
	if err != nil {
		return fmt.Errorf("node: authenticate: %w", err)
	}
	switch r := resp.(type) {
	case protocol.AuthSuccessResponse:
		return nil
	case protocol.ErrorResponse:
		return fmt.Errorf("node: authenticate: %w", r)
	default:
		return fmt.Errorf("node: unexpected authentication response %T", resp)
	}
}

// roundTripConn drives one request/response cycle directly against a
// freshly dialed Connection, before it has been registered in a Pool (used
// only during the STARTUP/AUTHENTICATE handshake in Connect).
func roundTripConn(c *conn.Connection, v frame.Version, req protocol.Request) (protocol.Response, error) {
	body, err := req.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("node: encode %s: %w", req.Opcode(), err)
	}
	ch, err := c.Submit(byte(req.Opcode()), body)
	if err != nil {
		return nil, err
	}
	return awaitResult(v, req, ch)
}

func awaitResult(v frame.Version, req protocol.Request, ch <-chan conn.Result) (protocol.Response, error) {
	res := <-ch
	if res.Err != nil {
		return nil, res.Err
	}
	resp, err := protocol.DecodeBody(v, protocol.Opcode(res.Header.Opcode), res.Body)
	if err != nil {
		return nil, fmt.Errorf("node: decode %s response: %w", req.Opcode(), err)
	}
	return resp, nil
}

// exec is the synchronous convenience wrapper every blocking Node method
// uses: submit via execAsync, then immediately Await the Future. Kept
// separate from execAsync so ExecQueryAsync/ExecPreparedAsync/
// ExecBatchAsync can return to the caller before a response has arrived,
// per spec.md §5's non-blocking-from-the-caller's-perspective contract.
func (n *Node) exec(req protocol.Request) (protocol.Response, error) {
	start := time.Now()
	fut, err := n.execAsync(req)
	if err != nil {
		return nil, err
	}
	resp, err := fut.Await()
	if n.OnLatency != nil {
		n.OnLatency(time.Since(start))
	}
	return resp, err
}

// Version reports the node's negotiated protocol version.
func (n *Node) Version() frame.Version { return n.version }

// Close tears down the node's connection.
func (n *Node) Close() error {
	n.p.Remove(n.Addr)
	return nil
}

// Events exposes the connection's server-pushed EVENT stream.
func (n *Node) Events() <-chan conn.Result {
	c, ok := n.p.Get(n.Addr)
	if !ok {
		ch := make(chan conn.Result)
		close(ch)
		return ch
	}
	return c.Events()
}

// ExecQuery runs an ad-hoc CQL statement.
func (n *Node) ExecQuery(cql string, params protocol.QueryParams) (*protocol.ResultResponse, error) {
	n.recordCQL(cql)
	resp, err := n.exec(protocol.QueryRequest{CQL: cql, Params: params})
	return asResult(resp, err)
}

// Prepare parses cql on the server and caches the resulting opaque id and
// metadata under the CQL text, returning the cached entry on repeat calls
// without a further round trip.
func (n *Node) Prepare(cql string) (*PreparedStatement, error) {
	n.mu.RLock()
	if ps, ok := n.prepared[cql]; ok {
		n.mu.RUnlock()
		return ps, nil
	}
	n.mu.RUnlock()

	n.recordCQL(cql)
	resp, err := n.exec(protocol.PrepareRequest{CQL: cql})
	if err != nil {
		return nil, err
	}
	result, err := asResult(resp, nil)
	if err != nil {
		return nil, err
	}
	if result.Prepared == nil {
		return nil, fmt.Errorf("node: PREPARE returned RESULT kind %v, want Prepared", result.Kind)
	}
	ps := &PreparedStatement{
		CQL:            cql,
		ID:             result.Prepared.ID,
		BoundMetadata:  result.Prepared.BoundMetadata,
		ResultMetadata: result.Prepared.ResultMetadata,
	}
	n.mu.Lock()
	n.prepared[cql] = ps
	n.mu.Unlock()
	return ps, nil
}

// ExecPrepared prepares cql if necessary and executes it with params.
func (n *Node) ExecPrepared(cql string, params protocol.QueryParams) (*protocol.ResultResponse, error) {
	ps, err := n.Prepare(cql)
	if err != nil {
		return nil, err
	}
	resp, err := n.exec(protocol.ExecuteRequest{PreparedID: ps.ID, Params: params})
	result, err := asResult(resp, err)
	if err != nil {
		var errResp protocol.ErrorResponse
		if errors.As(err, &errResp) && errResp.Code == protocol.ErrUnprepared {
			n.mu.Lock()
			delete(n.prepared, cql)
			n.mu.Unlock()
			return nil, fmt.Errorf("node: server forgot prepared statement, retry required: %w", err)
		}
		return nil, err
	}
	return result, nil
}

// ExecBatch submits a BATCH request.
func (n *Node) ExecBatch(batch protocol.BatchRequest) (*protocol.ResultResponse, error) {
	resp, err := n.exec(batch)
	return asResult(resp, err)
}

// Register subscribes the connection to the given server-pushed event
// kinds; events subsequently arrive on Events().
func (n *Node) Register(kinds []protocol.EventKind) error {
	resp, err := n.exec(protocol.RegisterRequest{EventTypes: kinds})
	if err != nil {
		return err
	}
	if _, ok := resp.(protocol.ReadyResponse); !ok {
		return fmt.Errorf("node: unexpected REGISTER response %T", resp)
	}
	return nil
}

func asResult(resp protocol.Response, err error) (*protocol.ResultResponse, error) {
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case protocol.ResultResponse:
		return &r, nil
	case protocol.ErrorResponse:
		return nil, fmt.Errorf("node: %w", r)
	default:
		return nil, fmt.Errorf("node: unexpected response %T", resp)
	}
}
