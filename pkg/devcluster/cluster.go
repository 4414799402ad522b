package devcluster

import (
    "errors"
    "fmt"
    "log"
    "sync"

    "github.com/amirimatin/go-kvrouter/pkg/internal/logutil"
    "github.com/amirimatin/go-kvrouter/pkg/observability/metrics"
    "github.com/amirimatin/go-kvrouter/pkg/store"
)

const (
    RoleLeader      = "LEADER"
    RoleFollower    = "FOLLOWER"
    RoleUnreachable = "UNREACHABLE"

    // Port scheme of the gateway's node listing.
    leaderClientPort = 7001
    followerPortBase = 7100
    controlPortBase  = 8000
)

var (
    ErrUnknownNode = errors.New("devcluster: unknown node")
    ErrNoLeader    = errors.New("devcluster: no leader")
)

// Options configures a simulated cluster.
type Options struct {
    // Nodes is the cluster size (default 4).
    Nodes int
    // Leader is the initially elected node (default 1).
    Leader int
    // Host is reported for every node (default 127.0.0.1).
    Host string
    // NewStore opens the store for node id (default in-memory).
    NewStore func(id int) (store.Store, error)
    Logger   *log.Logger
}

type op struct {
    del   bool
    key   string
    value string
}

type node struct {
    id      int
    role    string
    online  bool
    paused  bool
    pending []op
    lsn     uint64
    st      store.Store
}

// Cluster simulates a leader-based KV cluster behind an /api gateway.
// Writes land on the leader and replicate synchronously to every online
// follower whose replication is not paused; others queue the writes.
type Cluster struct {
    mu     sync.RWMutex
    host   string
    nodes  []*node
    leader int
    term   uint64
    log    *log.Logger
}

// New builds the cluster and opens every node's store.
func New(opts Options) (*Cluster, error) {
    if opts.Nodes <= 0 { opts.Nodes = 4 }
    if opts.Leader == 0 { opts.Leader = 1 }
    if opts.Leader < 0 || opts.Leader > opts.Nodes {
        return nil, fmt.Errorf("devcluster: leader %d outside 1..%d", opts.Leader, opts.Nodes)
    }
    if opts.Host == "" { opts.Host = "127.0.0.1" }
    if opts.Logger == nil { opts.Logger = log.Default() }
    if opts.NewStore == nil {
        opts.NewStore = func(int) (store.Store, error) { return store.NewMemory(), nil }
    }
    metrics.Register()
    c := &Cluster{host: opts.Host, log: opts.Logger}
    for id := 1; id <= opts.Nodes; id++ {
        st, err := opts.NewStore(id)
        if err != nil {
            _ = c.Close()
            return nil, fmt.Errorf("devcluster: node %d store: %w", id, err)
        }
        c.nodes = append(c.nodes, &node{id: id, role: RoleFollower, online: true, st: st})
    }
    c.mu.Lock()
    c.electLocked(opts.Leader)
    c.mu.Unlock()
    return c, nil
}

// Close closes every node store.
func (c *Cluster) Close() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    var errs []error
    for _, n := range c.nodes {
        if err := n.st.Close(); err != nil { errs = append(errs, err) }
    }
    return errors.Join(errs...)
}

func (c *Cluster) get(id int) (*node, error) {
    if id < 1 || id > len(c.nodes) { return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id) }
    return c.nodes[id-1], nil
}

// Leader returns the current leader id (0 when none).
func (c *Cluster) Leader() int {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.leader
}

// Size returns the number of nodes.
func (c *Cluster) Size() int { return len(c.nodes) }

// Elect makes id the only leader and bumps the term. The new leader
// catches up on writes it had queued.
func (c *Cluster) Elect(id int) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if _, err := c.get(id); err != nil { return err }
    c.electLocked(id)
    return nil
}

func (c *Cluster) electLocked(id int) {
    for _, n := range c.nodes {
        n.role = RoleFollower
    }
    n := c.nodes[id-1]
    n.role = RoleLeader
    n.paused = false
    c.replayLocked(n)
    c.leader = id
    c.term++
    metrics.GatewayLeaderChanges.Inc()
    logutil.Infof(c.log, "devcluster: node %d elected leader (term %d)", id, c.term)
}

// ClaimLeadership marks id as LEADER without demoting the current leader,
// producing a split brain. The gateway keeps routing to the real leader.
func (c *Cluster) ClaimLeadership(id int) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    n, err := c.get(id)
    if err != nil { return err }
    n.role = RoleLeader
    logutil.Warnf(c.log, "devcluster: node %d claims leadership (leader is %d)", id, c.leader)
    return nil
}

// SetOnline takes a node down or brings it back. A node coming back
// applies the writes it missed unless its replication is paused.
func (c *Cluster) SetOnline(id int, online bool) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    n, err := c.get(id)
    if err != nil { return err }
    n.online = online
    if online && !n.paused { c.replayLocked(n) }
    return nil
}

// PauseReplication queues writes for follower id instead of applying them,
// which makes stale follower reads observable.
func (c *Cluster) PauseReplication(id int) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    n, err := c.get(id)
    if err != nil { return err }
    if id == c.leader { return fmt.Errorf("devcluster: node %d is the leader", id) }
    n.paused = true
    return nil
}

// ResumeReplication applies queued writes to follower id.
func (c *Cluster) ResumeReplication(id int) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    n, err := c.get(id)
    if err != nil { return err }
    n.paused = false
    if n.online { c.replayLocked(n) }
    return nil
}

func (c *Cluster) replayLocked(n *node) {
    for _, o := range n.pending {
        if err := applyOp(n, o); err != nil {
            logutil.Errorf(c.log, "devcluster: node %d replay %q: %v", n.id, o.key, err)
        }
    }
    n.pending = nil
}

func applyOp(n *node, o op) error {
    var err error
    if o.del {
        _, err = n.st.Delete(o.key)
    } else {
        err = n.st.Set(o.key, o.value)
    }
    if err == nil { n.lsn++ }
    return err
}

// write applies o on the leader and replicates it. It reports whether a
// delete found the key.
func (c *Cluster) write(o op) (bool, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.leader == 0 { return false, ErrNoLeader }
    leader := c.nodes[c.leader-1]
    existed := true
    if o.del {
        ok, err := leader.st.Delete(o.key)
        if err != nil { return false, err }
        if !ok { return false, nil }
        leader.lsn++
        existed = ok
    } else {
        if err := applyOp(leader, o); err != nil { return false, err }
    }
    for _, n := range c.nodes {
        if n == leader { continue }
        if !n.online || n.paused {
            n.pending = append(n.pending, o)
            continue
        }
        if err := applyOp(n, o); err != nil {
            logutil.Errorf(c.log, "devcluster: replicate %q to node %d: %v", o.key, n.id, err)
        }
    }
    return existed, nil
}
