package kvclient

import (
    "context"
    "fmt"
    "net/http"
)

// ClusterStatus fetches the node/leader/follower/split-brain snapshot. It is
// never cached and never routed to a node.
func (c *Client) ClusterStatus(ctx context.Context) (*Response, error) {
    return c.call(ctx, "status", http.MethodGet, "/cluster/status", nil, nil, NoNode)
}

// AvailableNodes fetches the node list and replaces the last one seen.
func (c *Client) AvailableNodes(ctx context.Context) ([]Node, error) {
    resp, err := c.call(ctx, "nodes", http.MethodGet, "/cluster/nodes", nil, nil, NoNode)
    if err != nil { return nil, err }
    var payload struct {
        Nodes []Node `json:"nodes"`
    }
    if err := resp.Decode(&payload); err != nil {
        return nil, fmt.Errorf("kvclient: decode nodes: %w", err)
    }
    if payload.Nodes == nil { payload.Nodes = []Node{} }
    c.nodesMu.Lock()
    c.nodes = payload.Nodes
    c.nodesMu.Unlock()
    return append([]Node(nil), payload.Nodes...), nil
}

// LastNodes returns a copy of the list from the most recent successful
// AvailableNodes call.
func (c *Client) LastNodes() []Node {
    c.nodesMu.RLock()
    defer c.nodesMu.RUnlock()
    return append([]Node(nil), c.nodes...)
}
