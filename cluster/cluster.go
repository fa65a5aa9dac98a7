// Package cluster provides the top-level client façade: connecting to a
// cluster via a contact point, discovering and tracking its members,
// routing statements through a pluggable load-balancing policy, and
// exposing a human-readable view of the cluster's current topology.
package cluster

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/alvaro7rlz/cql-go/balancer"
	"github.com/alvaro7rlz/cql-go/node"
	"github.com/alvaro7rlz/cql-go/protocol"
	"github.com/alvaro7rlz/cql-go/topology"
)

// Cluster is a connected session against a set of CQL nodes discovered
// from a single contact point.
type Cluster struct {
	cfg  Config
	topo *topology.Handler

	mu          sync.RWMutex
	nodes       map[string]*node.Node
	connected   bool
	control     *node.Node
	balancerMu  sync.RWMutex
	stopHealth  chan struct{}
}

// New returns a disconnected Cluster; call ConnectCluster to bootstrap it.
func New(opts ...Option) *Cluster {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cluster{
		cfg:   cfg,
		nodes: make(map[string]*node.Node),
	}
}

// ConnectCluster bootstraps the cluster from a single contact point:
// negotiate and authenticate with it, register for topology/status push
// events, read system.peers, and connect one Node per discovered peer.
// It fails if the cluster is already connected.
func (c *Cluster) ConnectCluster(ctx context.Context, contactAddr string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("cluster: already connected")
	}
	c.connected = true
	c.mu.Unlock()

	control, err := c.dial(ctx, contactAddr)
	if err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return fmt.Errorf("cluster: connect contact point %s: %w", contactAddr, err)
	}

	if err := control.Register([]protocol.EventKind{protocol.EventTopologyChange, protocol.EventStatusChange}); err != nil {
		control.Close()
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return fmt.Errorf("cluster: register for events: %w", err)
	}

	host, _, splitErr := net.SplitHostPort(contactAddr)
	if splitErr != nil {
		host = contactAddr
	}
	c.topo = topology.New(nil)
	c.topo.Seed(topology.NodeInfo{Address: net.ParseIP(host), Port: int32(c.cfg.defaultPort)})

	c.mu.Lock()
	c.control = control
	c.nodes[contactAddr] = control
	c.mu.Unlock()

	if err := c.discoverPeers(ctx, control, contactAddr); err != nil {
		log.Printf("cluster: peer discovery from %s: %v", contactAddr, err)
	}

	go c.consumeEvents(control)
	c.restartHealthLoop()

	return nil
}

func (c *Cluster) dial(ctx context.Context, addr string) (*node.Node, error) {
	n, err := node.Connect(ctx, addr, c.cfg.protocolVersionMax, c.cfg.startupOptions, c.cfg.credentials)
	if err != nil {
		return nil, err
	}
	n.OnLatency = func(d time.Duration) { c.reportLatency(addr, d) }
	return n, nil
}

func (c *Cluster) discoverPeers(ctx context.Context, control *node.Node, contactAddr string) error {
	result, err := control.ExecQuery(
		"SELECT peer, data_center, rack FROM system.peers",
		protocol.QueryParams{Consistency: protocol.ConsistencyOne},
	)
	if err != nil {
		return fmt.Errorf("query system.peers: %w", err)
	}
	if result.Rows == nil {
		return fmt.Errorf("system.peers query did not return rows")
	}

	for _, row := range result.Rows.Rows {
		if len(row) < 3 || row[0].Null {
			continue
		}
		ip := row[0].IP
		dc, rack := "", ""
		if !row[1].Null {
			dc = row[1].Str
		}
		if !row[2].Null {
			rack = row[2].Str
		}
		addr := fmt.Sprintf("%s:%d", ip, c.cfg.defaultPort)
		if addr == contactAddr {
			continue
		}
		n, err := c.dial(ctx, addr)
		if err != nil {
			log.Printf("cluster: failed to connect to peer %s: %v", addr, err)
			continue
		}
		c.mu.Lock()
		c.nodes[addr] = n
		c.mu.Unlock()
		c.topo.Seed(topology.NodeInfo{Address: ip, Port: int32(c.cfg.defaultPort), Datacenter: dc, Rack: rack})
		go c.consumeEvents(n)
	}
	return nil
}

func (c *Cluster) consumeEvents(n *node.Node) {
	for res := range n.Events() {
		if res.Err != nil {
			return
		}
		resp, err := protocol.DecodeBody(n.Version(), protocol.Opcode(res.Header.Opcode), res.Body)
		if err != nil {
			log.Printf("cluster: decode pushed event: %v", err)
			continue
		}
		ev, ok := resp.(protocol.EventResponse)
		if !ok {
			continue
		}
		c.topo.Notify(ev)
		c.applyMembershipSideEffects(ev)
	}
}

// applyMembershipSideEffects drives the Connection-level consequences of a
// topology event that topology.Handler's own bookkeeping can't own, since
// it tracks NodeInfo, not live *node.Node connections (spec.md §4.6): a
// NEW_NODE gets an actual connect attempt, demoted to unavailable again if
// it fails; a REMOVED_NODE's Connection is torn down and forgotten.
func (c *Cluster) applyMembershipSideEffects(ev protocol.EventResponse) {
	if ev.Kind != protocol.EventTopologyChange {
		return
	}
	addr := fmt.Sprintf("%s:%d", ev.Address, ev.Port)
	switch ev.TopologyChange {
	case protocol.TopologyNewNode:
		c.mu.RLock()
		_, exists := c.nodes[addr]
		c.mu.RUnlock()
		if exists {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n, err := c.dial(ctx, addr)
		if err != nil {
			log.Printf("cluster: connect attempt for new node %s failed, leaving unavailable: %v", addr, err)
			c.topo.MarkUnavailable(addr)
			return
		}
		c.mu.Lock()
		c.nodes[addr] = n
		c.mu.Unlock()
		go c.consumeEvents(n)
	case protocol.TopologyRemovedNode:
		c.mu.Lock()
		n, ok := c.nodes[addr]
		delete(c.nodes, addr)
		c.mu.Unlock()
		if ok {
			_ = n.Close()
		}
	}
}

func (c *Cluster) reportLatency(token string, d time.Duration) {
	c.balancerMu.RLock()
	b := c.cfg.loadBalancer
	c.balancerMu.RUnlock()
	b.Report(token, d)
}

// SetLoadBalancing swaps the active balancing policy and restarts the
// background health-ping loop that keeps it warm.
func (c *Cluster) SetLoadBalancing(b balancer.Balancer) {
	c.balancerMu.Lock()
	c.cfg.loadBalancer = b
	c.balancerMu.Unlock()
	c.restartHealthLoop()
}

func (c *Cluster) restartHealthLoop() {
	c.mu.Lock()
	if c.stopHealth != nil {
		close(c.stopHealth)
	}
	stop := make(chan struct{})
	c.stopHealth = stop
	c.mu.Unlock()

	go c.healthLoop(stop)
}

// healthLoop periodically round-trips a "SELECT key FROM system.local"
// QUERY against every connected node so the active balancer has fresh
// latency samples even when application traffic is quiet.
func (c *Cluster) healthLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.loadBalancerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.RLock()
			nodes := make([]*node.Node, 0, len(c.nodes))
			for _, n := range c.nodes {
				nodes = append(nodes, n)
			}
			c.mu.RUnlock()
			for _, n := range nodes {
				start := time.Now()
				if _, err := n.ExecQuery("SELECT key FROM system.local", protocol.QueryParams{Consistency: protocol.ConsistencyOne}); err == nil {
					c.reportLatency(n.Addr, time.Since(start))
				}
			}
		}
	}
}

// dispatch picks an available node via the active balancer.
func (c *Cluster) dispatch() (*node.Node, error) {
	c.mu.RLock()
	available := c.topo.Available()
	c.mu.RUnlock()
	if len(available) == 0 {
		return nil, fmt.Errorf("cluster: no available nodes")
	}

	c.balancerMu.RLock()
	token, ok := c.cfg.loadBalancer.Pick(available)
	c.balancerMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cluster: load balancer could not pick a node")
	}

	c.mu.RLock()
	n, ok := c.nodes[token]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cluster: no connection registered for selected node %s", token)
	}
	return n, nil
}

// ExecQuery runs an ad-hoc CQL statement against a node chosen by the
// active load-balancing policy.
func (c *Cluster) ExecQuery(cql string, params protocol.QueryParams) (*protocol.ResultResponse, error) {
	n, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	return n.ExecQuery(cql, params)
}

// PreparedStatement prepares cql on a balancer-chosen node and returns the
// cached statement handle.
func (c *Cluster) PreparedStatement(cql string) (*node.PreparedStatement, error) {
	n, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	return n.Prepare(cql)
}

// ExecPrepared prepares (if necessary) and executes cql against a
// balancer-chosen node.
func (c *Cluster) ExecPrepared(cql string, params protocol.QueryParams) (*protocol.ResultResponse, error) {
	n, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	return n.ExecPrepared(cql, params)
}

// ExecBatch submits a BATCH request to a balancer-chosen node.
func (c *Cluster) ExecBatch(batch protocol.BatchRequest) (*protocol.ResultResponse, error) {
	n, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	return n.ExecBatch(batch)
}

// Close tears down every node connection and stops the health-ping loop.
func (c *Cluster) Close() error {
	c.mu.Lock()
	if c.stopHealth != nil {
		close(c.stopHealth)
		c.stopHealth = nil
	}
	nodes := c.nodes
	c.nodes = make(map[string]*node.Node)
	c.connected = false
	c.mu.Unlock()

	for _, n := range nodes {
		_ = n.Close()
	}
	return nil
}
