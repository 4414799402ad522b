package devcluster

import (
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/amirimatin/go-kvrouter/pkg/internal/logutil"
    "github.com/amirimatin/go-kvrouter/pkg/observability/metrics"
    "github.com/amirimatin/go-kvrouter/pkg/observability/tracing"
    "github.com/amirimatin/go-kvrouter/pkg/store"
)

const defaultRangeCount = 10

// Handler returns the gateway: the /api surface plus /healthz and /metrics.
func (c *Cluster) Handler() http.Handler {
    mux := http.NewServeMux()
    mux.HandleFunc("GET /api/leader", c.handleLeader)
    mux.HandleFunc("GET /api/cluster/nodes", c.handleNodes)
    mux.HandleFunc("GET /api/cluster/status", c.handleStatus)
    mux.HandleFunc("GET /api/get/{key}", c.handleGet)
    mux.HandleFunc("POST /api/set/{key}", c.handleSet)
    mux.HandleFunc("POST /api/del/{key}", c.handleDel)
    mux.HandleFunc("GET /api/getff/{key}", c.handleRange("getff", false))
    mux.HandleFunc("GET /api/getfb/{key}", c.handleRange("getfb", true))
    mux.HandleFunc("GET /api/keys/prefix/{prefix...}", c.handlePrefix)
    mux.HandleFunc("GET /api/keys/paging", c.handlePaging)
    mux.HandleFunc("POST /api/optimize", c.handleOptimize)
    mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.Handle("/metrics", promhttp.Handler())
    return mux
}

func writeJSON(w http.ResponseWriter, route string, code int, v any) {
    metrics.GatewayRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, route string, code int, msg string) {
    writeJSON(w, route, code, map[string]string{"error": msg})
}

type routeError struct {
    code int
    msg  string
}

// resolve picks the node for a request from its optional nodeId parameter.
// Missing or 0 means the leader. Writes must target the leader.
func (c *Cluster) resolve(r *http.Request, opName string, write bool) (*node, *routeError) {
    id := 0
    if raw := r.URL.Query().Get("nodeId"); raw != "" {
        v, err := strconv.Atoi(raw)
        if err != nil || v < 0 || v > len(c.nodes) {
            return nil, &routeError{http.StatusBadRequest, "Invalid nodeId: " + raw}
        }
        id = v
    }
    c.mu.RLock()
    defer c.mu.RUnlock()
    if id == 0 {
        if c.leader == 0 || !c.nodes[c.leader-1].online {
            return nil, &routeError{http.StatusServiceUnavailable, "Failed to discover leader"}
        }
        return c.nodes[c.leader-1], nil
    }
    n := c.nodes[id-1]
    if !n.online {
        return nil, &routeError{http.StatusServiceUnavailable, fmt.Sprintf("Node %d is offline", id)}
    }
    if write && id != c.leader {
        metrics.GatewayWriteRejections.Inc()
        return nil, &routeError{http.StatusConflict, fmt.Sprintf("%s operations must target the leader. Node %d is not the leader.", opName, id)}
    }
    return n, nil
}

func (c *Cluster) handleLeader(w http.ResponseWriter, r *http.Request) {
    c.mu.RLock()
    leader := c.leader
    online := leader != 0 && c.nodes[leader-1].online
    c.mu.RUnlock()
    if !online {
        writeError(w, "leader", http.StatusServiceUnavailable, "No leader available")
        return
    }
    writeJSON(w, "leader", http.StatusOK, map[string]any{"id": leader, "host": c.host, "port": leaderClientPort})
}

type nodeJSON struct {
    ID          int    `json:"id"`
    Name        string `json:"name"`
    Host        string `json:"host"`
    ClientPort  int    `json:"clientPort"`
    ControlPort int    `json:"controlPort"`
    Role        string `json:"role"`
}

func (c *Cluster) handleNodes(w http.ResponseWriter, r *http.Request) {
    c.mu.RLock()
    out := make([]nodeJSON, 0, len(c.nodes))
    for _, n := range c.nodes {
        port := leaderClientPort
        if n.id != c.leader { port = followerPortBase + n.id }
        role := n.role
        if !n.online { role = RoleUnreachable }
        out = append(out, nodeJSON{
            ID:          n.id,
            Name:        fmt.Sprintf("Node %d (%s)", n.id, c.host),
            Host:        c.host,
            ClientPort:  port,
            ControlPort: controlPortBase + n.id,
            Role:        role,
        })
    }
    c.mu.RUnlock()
    writeJSON(w, "nodes", http.StatusOK, map[string]any{"nodes": out})
}

type nodeStatusJSON struct {
    ID       int    `json:"id"`
    Host     string `json:"host"`
    Port     int    `json:"port"`
    Status   string `json:"status"`
    Role     string `json:"role"`
    Term     uint64 `json:"term,omitempty"`
    LeaderID int    `json:"leaderId,omitempty"`
    LSN      uint64 `json:"lsn,omitempty"`
}

func (c *Cluster) handleStatus(w http.ResponseWriter, r *http.Request) {
    c.mu.RLock()
    nodes := make([]nodeStatusJSON, 0, len(c.nodes))
    leaders := 0
    for _, n := range c.nodes {
        ns := nodeStatusJSON{ID: n.id, Host: c.host, Port: controlPortBase + n.id}
        if !n.online {
            ns.Status, ns.Role = "OFFLINE", RoleUnreachable
            nodes = append(nodes, ns)
            continue
        }
        ns.Status, ns.Role, ns.Term, ns.LeaderID, ns.LSN = "ONLINE", n.role, c.term, c.leader, n.lsn
        if n.role == RoleLeader { leaders++ }
        nodes = append(nodes, ns)
    }
    leader := map[string]any{"id": 0, "host": "", "available": false}
    if c.leader != 0 && c.nodes[c.leader-1].online {
        leader = map[string]any{"id": c.leader, "host": c.host, "available": true}
    }
    c.mu.RUnlock()
    writeJSON(w, "status", http.StatusOK, map[string]any{
        "timestamp":  time.Now().UnixMilli(),
        "nodes":      nodes,
        "leader":     leader,
        "splitBrain": leaders > 1,
    })
}

func (c *Cluster) handleGet(w http.ResponseWriter, r *http.Request) {
    key := r.PathValue("key")
    if key == "" {
        writeError(w, "get", http.StatusBadRequest, "Key parameter is required")
        return
    }
    n, rerr := c.resolve(r, "GET", false)
    if rerr != nil {
        writeError(w, "get", rerr.code, rerr.msg)
        return
    }
    v, ok, err := n.st.Get(key)
    switch {
    case err != nil:
        writeError(w, "get", http.StatusInternalServerError, "Database error: "+err.Error())
    case !ok:
        writeError(w, "get", http.StatusNotFound, "Key not found: "+key)
    default:
        writeJSON(w, "get", http.StatusOK, map[string]string{"key": key, "value": v})
    }
}

func (c *Cluster) handleSet(w http.ResponseWriter, r *http.Request) {
    _, span := tracing.StartSpan(r.Context(), "gateway.set")
    defer span.End(nil)
    key := r.PathValue("key")
    if key == "" {
        writeError(w, "set", http.StatusBadRequest, "Key parameter is required")
        return
    }
    var body struct {
        Value string `json:"value"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeError(w, "set", http.StatusBadRequest, "bad request: "+err.Error())
        return
    }
    if body.Value == "" {
        writeError(w, "set", http.StatusBadRequest, "Value is required in request body")
        return
    }
    if _, rerr := c.resolve(r, "SET", true); rerr != nil {
        logutil.Debugf(c.log, "devcluster: set %q rejected: %s", key, rerr.msg)
        writeError(w, "set", rerr.code, rerr.msg)
        return
    }
    if _, err := c.write(op{key: key, value: body.Value}); err != nil {
        writeError(w, "set", http.StatusInternalServerError, "Database error: "+err.Error())
        return
    }
    writeJSON(w, "set", http.StatusCreated, map[string]string{"key": key, "value": body.Value, "status": "created"})
}

func (c *Cluster) handleDel(w http.ResponseWriter, r *http.Request) {
    key := r.PathValue("key")
    if key == "" {
        writeError(w, "del", http.StatusBadRequest, "Key parameter is required")
        return
    }
    if _, rerr := c.resolve(r, "DELETE", true); rerr != nil {
        writeError(w, "del", rerr.code, rerr.msg)
        return
    }
    existed, err := c.write(op{del: true, key: key})
    switch {
    case err != nil:
        writeError(w, "del", http.StatusInternalServerError, "Database error: "+err.Error())
    case !existed:
        writeError(w, "del", http.StatusNotFound, "Key not found: "+key)
    default:
        writeJSON(w, "del", http.StatusOK, map[string]string{"key": key, "status": "deleted"})
    }
}

func (c *Cluster) handleRange(route string, backward bool) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        key := r.PathValue("key")
        if key == "" {
            writeError(w, route, http.StatusBadRequest, "Key parameter is required")
            return
        }
        count := defaultRangeCount
        if raw := r.URL.Query().Get("count"); raw != "" {
            v, err := strconv.Atoi(raw)
            if err != nil || v < 1 {
                writeError(w, route, http.StatusBadRequest, "count must be a positive integer")
                return
            }
            count = v
        }
        n, rerr := c.resolve(r, strings.ToUpper(route), false)
        if rerr != nil {
            writeError(w, route, rerr.code, rerr.msg)
            return
        }
        var (
            pairs []store.Pair
            err   error
        )
        if backward {
            pairs, err = n.st.Backward(key, count)
        } else {
            pairs, err = n.st.Forward(key, count)
        }
        if err != nil {
            writeError(w, route, http.StatusInternalServerError, "Database error: "+err.Error())
            return
        }
        writeJSON(w, route, http.StatusOK, map[string]any{"results": pairs, "count": len(pairs)})
    }
}

func (c *Cluster) handlePrefix(w http.ResponseWriter, r *http.Request) {
    n, rerr := c.resolve(r, "PREFIX", false)
    if rerr != nil {
        writeError(w, "prefix", rerr.code, rerr.msg)
        return
    }
    keys, err := n.st.Prefix(r.PathValue("prefix"))
    if err != nil {
        writeError(w, "prefix", http.StatusInternalServerError, err.Error())
        return
    }
    writeJSON(w, "prefix", http.StatusOK, map[string]any{"keys": keys})
}

func (c *Cluster) handlePaging(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    size, err1 := strconv.Atoi(q.Get("pageSize"))
    num, err2 := strconv.Atoi(q.Get("pageNum"))
    if err1 != nil || err2 != nil || size <= 0 || num <= 0 {
        writeError(w, "paging", http.StatusBadRequest, "pageSize and pageNum must be positive integers")
        return
    }
    n, rerr := c.resolve(r, "PAGING", false)
    if rerr != nil {
        writeError(w, "paging", rerr.code, rerr.msg)
        return
    }
    keys, total, err := n.st.Page(size, num)
    if err != nil {
        writeError(w, "paging", http.StatusInternalServerError, err.Error())
        return
    }
    writeJSON(w, "paging", http.StatusOK, map[string]any{"keys": keys, "totalCount": total})
}

func (c *Cluster) handleOptimize(w http.ResponseWriter, r *http.Request) {
    n, rerr := c.resolve(r, "OPTIMIZE", true)
    if rerr != nil {
        writeError(w, "optimize", rerr.code, rerr.msg)
        return
    }
    if err := n.st.Compact(); err != nil {
        writeError(w, "optimize", http.StatusInternalServerError, "Optimize failed: "+err.Error())
        return
    }
    logutil.Infof(c.log, "devcluster: node %d optimized", n.id)
    writeJSON(w, "optimize", http.StatusOK, map[string]string{"status": "optimized"})
}
