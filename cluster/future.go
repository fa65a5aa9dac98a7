package cluster

import (
	"github.com/alvaro7rlz/cql-go/node"
	"github.com/alvaro7rlz/cql-go/protocol"
)

// ExecQueryAsync runs an ad-hoc CQL statement against a balancer-chosen
// node without waiting for the result, matching the library surface's
// exec_query(cql, consistency) -> Future<CqlResponse> contract.
func (c *Cluster) ExecQueryAsync(cql string, params protocol.QueryParams) (*node.Future, error) {
	n, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	return n.ExecQueryAsync(cql, params)
}

// ExecPreparedAsync prepares (if necessary) and executes cql against a
// balancer-chosen node without waiting for the result.
func (c *Cluster) ExecPreparedAsync(cql string, params protocol.QueryParams) (*node.Future, error) {
	n, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	return n.ExecPreparedAsync(cql, params)
}

// ExecBatchAsync submits a BATCH request to a balancer-chosen node
// without waiting for the result.
func (c *Cluster) ExecBatchAsync(batch protocol.BatchRequest) (*node.Future, error) {
	n, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	return n.ExecBatchAsync(batch)
}
