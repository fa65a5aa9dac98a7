// Package pool implements a pure message-routing multiplexer over a set of
// node connections: it knows nothing about CQL opcodes or bodies, only how
// to get a submission to the connection registered under a routing token.
package pool

import (
	"fmt"
	"sync"

	"github.com/alvaro7rlz/cql-go/conn"
)

// Pool maps a routing token (typically a node's "host:port" address) to
// the live Connection that serves it.
type Pool struct {
	mu    sync.RWMutex
	conns map[string]*conn.Connection
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{conns: make(map[string]*conn.Connection)}
}

// Add registers c under token, replacing and closing any previous
// connection at that token.
func (p *Pool) Add(token string, c *conn.Connection) {
	p.mu.Lock()
	old := p.conns[token]
	p.conns[token] = c
	p.mu.Unlock()
	if old != nil && old != c {
		_ = old.Close()
	}
}

// Remove closes and unregisters the connection at token, if any.
func (p *Pool) Remove(token string) {
	p.mu.Lock()
	c, ok := p.conns[token]
	delete(p.conns, token)
	p.mu.Unlock()
	if ok {
		_ = c.Close()
	}
}

// Get returns the connection registered under token.
func (p *Pool) Get(token string) (*conn.Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[token]
	return c, ok
}

// Tokens returns the currently registered routing tokens in no particular
// order.
func (p *Pool) Tokens() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.conns))
	for t := range p.conns {
		out = append(out, t)
	}
	return out
}

// Len reports how many connections are currently registered.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// SubmitTo looks up the connection registered under token and submits the
// request to it, releasing the pool's read lock before the submission
// call returns so routing never serializes on in-flight requests.
func (p *Pool) SubmitTo(token string, opcode byte, body []byte) (<-chan conn.Result, error) {
	p.mu.RLock()
	c, ok := p.conns[token]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pool: no connection registered for %q", token)
	}
	return c.Submit(opcode, body)
}

// CloseAll closes every registered connection and empties the pool.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*conn.Connection)
	p.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
