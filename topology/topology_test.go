package topology_test

import (
	"net"
	"testing"

	"github.com/alvaro7rlz/cql-go/protocol"
	"github.com/alvaro7rlz/cql-go/topology"
)

func TestSeedThenNewNodeThenDown(t *testing.T) {
	h := topology.New(nil)
	h.Seed(topology.NodeInfo{Address: net.ParseIP("10.0.0.1"), Port: 9042})

	h.Notify(protocol.EventResponse{
		Kind:           protocol.EventTopologyChange,
		TopologyChange: protocol.TopologyNewNode,
		Address:        net.ParseIP("10.0.0.2"),
		Port:           9042,
	})

	avail := h.Available()
	if len(avail) != 2 {
		t.Fatalf("available = %v, want 2 nodes", avail)
	}

	h.Notify(protocol.EventResponse{
		Kind:         protocol.EventStatusChange,
		StatusChange: protocol.StatusDown,
		Address:      net.ParseIP("10.0.0.1"),
		Port:         9042,
	})

	avail = h.Available()
	if len(avail) != 1 || avail[0] != "10.0.0.2:9042" {
		t.Fatalf("available after down = %v, want only 10.0.0.2:9042", avail)
	}
}

func TestRemovedNodeDropsFromTracking(t *testing.T) {
	h := topology.New(nil)
	h.Seed(topology.NodeInfo{Address: net.ParseIP("10.0.0.1"), Port: 9042})
	h.Notify(protocol.EventResponse{
		Kind:           protocol.EventTopologyChange,
		TopologyChange: protocol.TopologyRemovedNode,
		Address:        net.ParseIP("10.0.0.1"),
		Port:           9042,
	})
	if _, ok := h.Get("10.0.0.1:9042"); ok {
		t.Fatalf("removed node still tracked")
	}
}

func TestSchemaChangeCallback(t *testing.T) {
	var got *protocol.ResultSchemaChangeBody
	h := topology.New(func(sc protocol.ResultSchemaChangeBody) {
		got = &sc
	})
	h.Notify(protocol.EventResponse{
		Kind: protocol.EventSchemaChange,
		SchemaChange: &protocol.ResultSchemaChangeBody{
			ChangeType: protocol.SchemaCreated,
			Target:     "TABLE",
			Keyspace:   "ks",
			Name:       "tbl",
		},
	})
	if got == nil || got.Name != "tbl" {
		t.Fatalf("schema change callback not invoked correctly: %+v", got)
	}
}
