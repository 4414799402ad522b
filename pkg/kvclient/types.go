package kvclient

import (
    "encoding/json"
    "net"
    "strconv"
    "time"
)

// NodeID identifies a cluster node. NoNode means "no explicit preference".
type NodeID int

const NoNode NodeID = 0

// LeaderInfo describes the leader as reported by the gateway's /leader
// endpoint. Values are never mutated once returned; a later discovery
// supersedes them.
type LeaderInfo struct {
    ID   NodeID `json:"id,omitempty"`
    Host string `json:"host"`
    Port int    `json:"port"`
    // Raw is the unmodified discovery payload.
    Raw json.RawMessage `json:"-"`
    // FetchedAt is when the discovery that produced this value started.
    FetchedAt time.Time `json:"-"`
}

// Addr returns host:port.
func (l LeaderInfo) Addr() string { return net.JoinHostPort(l.Host, strconv.Itoa(l.Port)) }

// Node is one entry of the gateway's /cluster/nodes listing.
type Node struct {
    ID          NodeID `json:"id"`
    Name        string `json:"name,omitempty"`
    Host        string `json:"host"`
    ClientPort  int    `json:"clientPort,omitempty"`
    ControlPort int    `json:"controlPort,omitempty"`
    Role        string `json:"role,omitempty"`
}

// Response is the opaque payload of a routed operation.
type Response struct {
    StatusCode int
    Body       json.RawMessage
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error { return json.Unmarshal(r.Body, v) }

// The views below match the gateway's payloads. They are conveniences for
// callers; the router itself never decodes routed responses.

type ValueResult struct {
    Key    string `json:"key"`
    Value  string `json:"value"`
    Status string `json:"status,omitempty"`
}

type Pair struct {
    Key   string `json:"key"`
    Value string `json:"value"`
}

type RangeResult struct {
    Results []Pair `json:"results"`
    Count   int    `json:"count"`
}

type KeysResult struct {
    Keys []string `json:"keys"`
}

type PageResult struct {
    Keys       []string `json:"keys"`
    TotalCount int      `json:"totalCount"`
}

// StatusView is a typed view of /cluster/status.
type StatusView struct {
    Timestamp int64        `json:"timestamp"`
    Nodes     []NodeStatus `json:"nodes"`
    Leader    struct {
        ID        NodeID `json:"id"`
        Host      string `json:"host"`
        Available bool   `json:"available"`
    } `json:"leader"`
    SplitBrain bool `json:"splitBrain"`
}

type NodeStatus struct {
    ID       NodeID `json:"id"`
    Host     string `json:"host"`
    Port     int    `json:"port"`
    Status   string `json:"status"`
    Role     string `json:"role"`
    Term     uint64 `json:"term"`
    LeaderID NodeID `json:"leaderId"`
    LSN      uint64 `json:"lsn"`
}
