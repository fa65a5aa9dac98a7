// Package topology maintains a cluster's known node set, mutating it in
// response to decoded TOPOLOGY_CHANGE/STATUS_CHANGE/SCHEMA_CHANGE events
// pushed over a registered control connection.
package topology

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/alvaro7rlz/cql-go/protocol"
)

// NodeInfo is what the handler tracks per known node.
type NodeInfo struct {
	Address    net.IP
	Port       int32
	Datacenter string
	Rack       string
	Available  bool
}

func (n NodeInfo) token() string {
	return fmt.Sprintf("%s:%d", n.Address, n.Port)
}

// SchemaChangeFunc is invoked for every decoded SCHEMA_CHANGE event; it is
// optional and may be nil.
type SchemaChangeFunc func(protocol.ResultSchemaChangeBody)

// Handler tracks available/unavailable nodes under a single read-write
// lock, consuming decoded events produced by a node's Connection.Events().
type Handler struct {
	mu     sync.RWMutex
	nodes  map[string]NodeInfo
	onSchemaChange SchemaChangeFunc
}

// New returns an empty Handler. onSchemaChange may be nil.
func New(onSchemaChange SchemaChangeFunc) *Handler {
	return &Handler{nodes: make(map[string]NodeInfo), onSchemaChange: onSchemaChange}
}

// Seed registers a node discovered outside of event push (bootstrap
// contact point, system.peers row) as available.
func (h *Handler) Seed(info NodeInfo) {
	info.Available = true
	h.mu.Lock()
	h.nodes[info.token()] = info
	h.mu.Unlock()
}

// Available returns the routing tokens of every node currently marked
// available.
func (h *Handler) Available() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.nodes))
	for tok, n := range h.nodes {
		if n.Available {
			out = append(out, tok)
		}
	}
	return out
}

// Unavailable returns the routing tokens of every node currently marked
// unavailable.
func (h *Handler) Unavailable() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.nodes))
	for tok, n := range h.nodes {
		if !n.Available {
			out = append(out, tok)
		}
	}
	return out
}

// Snapshot returns every tracked node's info, for operator introspection.
func (h *Handler) Snapshot() []NodeInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]NodeInfo, 0, len(h.nodes))
	for _, n := range h.nodes {
		out = append(out, n)
	}
	return out
}

// Get returns the tracked info for a routing token.
func (h *Handler) Get(token string) (NodeInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.nodes[token]
	return n, ok
}

// MarkUnavailable demotes a tracked node to unavailable without removing
// it, used when a connect attempt triggered by a NEW_NODE event fails
// (spec.md §4.6: "on failure it is demoted to unavailable").
func (h *Handler) MarkUnavailable(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.nodes[token]; ok {
		n.Available = false
		h.nodes[token] = n
	}
}

// Notify applies one decoded server-pushed event to the tracked node set.
func (h *Handler) Notify(ev protocol.EventResponse) {
	switch ev.Kind {
	case protocol.EventTopologyChange:
		h.notifyTopology(ev)
	case protocol.EventStatusChange:
		h.notifyStatus(ev)
	case protocol.EventSchemaChange:
		if h.onSchemaChange != nil && ev.SchemaChange != nil {
			h.onSchemaChange(*ev.SchemaChange)
		}
	default:
		log.Printf("topology: ignoring unknown event kind %q", ev.Kind)
	}
}

func (h *Handler) notifyTopology(ev protocol.EventResponse) {
	token := fmt.Sprintf("%s:%d", ev.Address, ev.Port)
	h.mu.Lock()
	defer h.mu.Unlock()
	switch ev.TopologyChange {
	case protocol.TopologyNewNode:
		if _, exists := h.nodes[token]; !exists {
			h.nodes[token] = NodeInfo{Address: ev.Address, Port: ev.Port, Available: true}
		}
	case protocol.TopologyRemovedNode:
		delete(h.nodes, token)
	case protocol.TopologyMovedNode:
		// A moved node keeps its routing token (address:port); nothing to
		// update at this layer without owning token-range metadata.
	default:
		log.Printf("topology: ignoring unknown topology change %q", ev.TopologyChange)
	}
}

func (h *Handler) notifyStatus(ev protocol.EventResponse) {
	token := fmt.Sprintf("%s:%d", ev.Address, ev.Port)
	h.mu.Lock()
	defer h.mu.Unlock()
	n, exists := h.nodes[token]
	if !exists {
		n = NodeInfo{Address: ev.Address, Port: ev.Port}
	}
	switch ev.StatusChange {
	case protocol.StatusUp:
		n.Available = true
	case protocol.StatusDown:
		n.Available = false
	default:
		log.Printf("topology: ignoring unknown status change %q", ev.StatusChange)
		return
	}
	h.nodes[token] = n
}
