package node

import (
	"fmt"

	"github.com/alvaro7rlz/cql-go/conn"
	"github.com/alvaro7rlz/cql-go/frame"
	"github.com/alvaro7rlz/cql-go/protocol"
)

// Future is the caller-held observe side of one in-flight request: the
// Connection's pending map (conn.Connection.Submit's return channel) holds
// the fulfil side. This is the Go expression of spec.md §9's "coroutine-
// style awaits on responses ... futures/promises paired 1:1 with submitted
// frames" and of spec.md §5's requirement that every request-returning
// operation be non-blocking from the caller's perspective until Await is
// called.
type Future struct {
	ch  <-chan conn.Result
	v   frame.Version
	req protocol.Request
}

func newFuture(v frame.Version, req protocol.Request, ch <-chan conn.Result) *Future {
	return &Future{ch: ch, v: v, req: req}
}

// Await blocks until the Connection fulfils the matching stream (or fails)
// and decodes the response body.
func (f *Future) Await() (protocol.Response, error) {
	return awaitResult(f.v, f.req, f.ch)
}

// Result blocks and converts the decoded response into a *ResultResponse,
// the shape every RESULT-bearing operation (QUERY/PREPARE/EXECUTE/BATCH)
// expects; an ErrorResponse or unexpected opcode is returned as an error.
func (f *Future) Result() (*protocol.ResultResponse, error) {
	resp, err := f.Await()
	return asResult(resp, err)
}

// execAsync submits req through the node's pool and returns immediately
// with a Future, without waiting for the response.
func (n *Node) execAsync(req protocol.Request) (*Future, error) {
	body, err := req.Encode(n.version)
	if err != nil {
		return nil, fmt.Errorf("node: encode %s: %w", req.Opcode(), err)
	}
	ch, err := n.p.SubmitTo(n.Addr, byte(req.Opcode()), body)
	if err != nil {
		return nil, err
	}
	return newFuture(n.version, req, ch), nil
}

// ExecQueryAsync submits an ad-hoc CQL statement without waiting for the
// result; call Result on the returned Future to observe it.
func (n *Node) ExecQueryAsync(cql string, params protocol.QueryParams) (*Future, error) {
	n.recordCQL(cql)
	return n.execAsync(protocol.QueryRequest{CQL: cql, Params: params})
}

// ExecPreparedAsync resolves cql's cached prepared statement (preparing it
// synchronously if necessary, per spec.md §4.4) and submits EXECUTE without
// waiting for the result.
func (n *Node) ExecPreparedAsync(cql string, params protocol.QueryParams) (*Future, error) {
	ps, err := n.Prepare(cql)
	if err != nil {
		return nil, err
	}
	return n.execAsync(protocol.ExecuteRequest{PreparedID: ps.ID, Params: params})
}

// ExecBatchAsync submits a BATCH request without waiting for the result.
func (n *Node) ExecBatchAsync(batch protocol.BatchRequest) (*Future, error) {
	return n.execAsync(batch)
}
