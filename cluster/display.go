package cluster

import (
	"fmt"
	"strings"

	"github.com/alvaro7rlz/cql-go/highlight"
)

// NodeSummary is a read-only snapshot of one tracked node, returned by
// AvailableNodes/UnavailableNodes for operator introspection (spec.md §4.7
// point 4).
type NodeSummary struct {
	Address    string
	Datacenter string
	Rack       string
	Available  bool
}

// AvailableNodes returns a snapshot of every node currently considered
// available for query dispatch.
func (c *Cluster) AvailableNodes() []NodeSummary {
	return c.nodeSummaries(true)
}

// UnavailableNodes returns a snapshot of every node currently excluded from
// query dispatch.
func (c *Cluster) UnavailableNodes() []NodeSummary {
	return c.nodeSummaries(false)
}

func (c *Cluster) nodeSummaries(available bool) []NodeSummary {
	if c.topo == nil {
		return nil
	}
	out := make([]NodeSummary, 0)
	for _, info := range c.topo.Snapshot() {
		if info.Available != available {
			continue
		}
		out = append(out, NodeSummary{
			Address:    fmt.Sprintf("%s:%d", info.Address, info.Port),
			Datacenter: info.Datacenter,
			Rack:       info.Rack,
			Available:  info.Available,
		})
	}
	return out
}

// ShowClusterInformation renders an ANSI-styled terminal table of every
// tracked node plus the last CQL statement executed against each, with the
// statement text syntax-highlighted. It is the operator-facing view the
// library surface exposes alongside the programmatic AvailableNodes/
// UnavailableNodes snapshots.
func (c *Cluster) ShowClusterInformation() string {
	if c.topo == nil {
		return "cluster: not connected"
	}

	rows := make([]highlight.NodeRow, 0)
	for _, info := range c.topo.Snapshot() {
		status := "DOWN"
		if info.Available {
			status = "UP"
		}
		rows = append(rows, highlight.NodeRow{
			Address:    fmt.Sprintf("%s:%d", info.Address, info.Port),
			Datacenter: info.Datacenter,
			Rack:       info.Rack,
			Status:     status,
		})
	}

	var b strings.Builder
	b.WriteString(highlight.NodeTable(rows))
	b.WriteByte('\n')

	c.mu.RLock()
	defer c.mu.RUnlock()
	for addr, n := range c.nodes {
		if cql := n.LastCQL(); cql != "" {
			fmt.Fprintf(&b, "%s last query: %s\n", addr, highlight.CQL(cql))
		}
	}
	return b.String()
}
