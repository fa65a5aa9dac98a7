//go:build integration

package cluster_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alvaro7rlz/cql-go/cluster"
	"github.com/alvaro7rlz/cql-go/protocol"
)

// startCassandra launches a real CQL-speaking server and returns its
// host:port contact address. No ready-made testcontainers module ships a
// Cassandra/Scylla helper (see DESIGN.md), so this uses the generic
// ContainerRequest API directly, grounded on the teacher's startMySQL in
// proxy/mysql/proxy_test.go (t.Context()/t.Cleanup()/MappedPort pattern).
func startCassandra(t *testing.T) string {
	t.Helper()
	ctx := t.Context()

	req := testcontainers.ContainerRequest{
		Image:        "cassandra:4",
		ExposedPorts: []string{"9042/tcp"},
		Env:          map[string]string{"CASSANDRA_START_RPC": "false"},
		WaitingFor:   wait.ForListeningPort("9042/tcp").WithStartupTimeout(3 * time.Minute),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start cassandra container: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate cassandra container: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("get host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "9042/tcp")
	if err != nil {
		t.Fatalf("get port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port())
}

// TestConnectClusterDiscoversContactPoint covers end-to-end scenario 1: after
// ConnectCluster, at least one node (the contact point) is available.
func TestConnectClusterDiscoversContactPoint(t *testing.T) {
	addr := startCassandra(t)

	c := cluster.New()
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.ConnectCluster(ctx, addr); err != nil {
		t.Fatalf("ConnectCluster: %v", err)
	}

	avail := c.AvailableNodes()
	if len(avail) == 0 {
		t.Fatalf("expected at least the contact point in AvailableNodes, got none")
	}

	info := c.ShowClusterInformation()
	if info == "" {
		t.Fatalf("ShowClusterInformation returned empty output")
	}
}

// TestExecQueryRoundTrip covers a QUERY against system.local, the simplest
// statement every CQL-speaking server answers without schema setup.
func TestExecQueryRoundTrip(t *testing.T) {
	addr := startCassandra(t)

	c := cluster.New()
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.ConnectCluster(ctx, addr); err != nil {
		t.Fatalf("ConnectCluster: %v", err)
	}

	result, err := c.ExecQuery("SELECT key FROM system.local", protocol.QueryParams{Consistency: protocol.ConsistencyOne})
	if err != nil {
		t.Fatalf("ExecQuery: %v", err)
	}
	if result.Rows == nil {
		t.Fatalf("expected a Rows result, got %+v", result)
	}
}
