package kvclient

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "log"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "sync"
    "time"

    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/go-kvrouter/pkg/internal/logutil"
    "github.com/amirimatin/go-kvrouter/pkg/observability/metrics"
    "github.com/amirimatin/go-kvrouter/pkg/observability/tracing"
    "github.com/amirimatin/go-kvrouter/pkg/transport/httpjson"
)

const (
    DefaultBaseURL    = "http://127.0.0.1:8080/api"
    DefaultCacheTTL   = 5 * time.Second
    DefaultTimeout    = 5 * time.Second
    DefaultRangeCount = 10
)

// DiscoveryPolicy decides when routed operations consult the leader cache.
type DiscoveryPolicy int

const (
    // DiscoverOnDemand never runs discovery implicitly. Requests without a
    // target carry no node parameter and the gateway routes them.
    DiscoverOnDemand DiscoveryPolicy = iota
    // DiscoverAlways runs DiscoverLeader (through the cache) before every
    // routed operation that has no explicit target, failing the operation
    // when the leader cannot be discovered.
    DiscoverAlways
)

func (p DiscoveryPolicy) String() string {
    switch p {
    case DiscoverOnDemand:
        return "on-demand"
    case DiscoverAlways:
        return "always"
    }
    return "unknown(" + strconv.Itoa(int(p)) + ")"
}

// ParseDiscoveryPolicy accepts "on-demand" (or "") and "always".
func ParseDiscoveryPolicy(s string) (DiscoveryPolicy, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "", "on-demand", "ondemand", "lazy":
        return DiscoverOnDemand, nil
    case "always", "eager":
        return DiscoverAlways, nil
    }
    return 0, fmt.Errorf("kvclient: unknown discovery policy %q", s)
}

// Options configures a Client.
type Options struct {
    // BaseURL is the gateway API root, e.g. "http://gw:8080/api".
    BaseURL string
    // CacheTTL bounds how long a discovered leader is reused. Zero means
    // DefaultCacheTTL.
    CacheTTL time.Duration
    Discovery DiscoveryPolicy
    // Node is the initial node selection.
    Node NodeID
    // Timeout applies to each HTTP call. Zero means DefaultTimeout.
    Timeout time.Duration
    // Attempts enables transport-level retry of 5xx/network failures.
    // Zero or one means a single attempt.
    Attempts int
    TLS      *tls.Config
    // HTTPClient overrides the transport's *http.Client (tests use the
    // one from httptest). It cannot be combined with TLS; configure TLS on
    // the supplied client instead.
    HTTPClient *http.Client
    Logger     *log.Logger
    // Clock is the wall clock used for cache expiry.
    Clock func() time.Time
}

// Validate checks options without touching the network.
func (o Options) Validate() error {
    base := o.BaseURL
    if base == "" { base = DefaultBaseURL }
    u, err := url.Parse(base)
    if err != nil { return fmt.Errorf("kvclient: bad base url: %w", err) }
    if u.Scheme != "http" && u.Scheme != "https" {
        return fmt.Errorf("kvclient: base url %q must be http or https", base)
    }
    if u.Host == "" { return fmt.Errorf("kvclient: base url %q has no host", base) }
    if o.Node < 0 { return ErrInvalidNode }
    if o.CacheTTL < 0 { return errors.New("kvclient: negative cache ttl") }
    if o.TLS != nil && o.HTTPClient != nil {
        return errors.New("kvclient: TLS and HTTPClient are mutually exclusive")
    }
    if o.Discovery != DiscoverOnDemand && o.Discovery != DiscoverAlways {
        return fmt.Errorf("kvclient: unknown discovery policy %d", o.Discovery)
    }
    return nil
}

// Client routes key-value operations to an /api gateway. It caches the
// leader identity, remembers the selected node and is safe for concurrent
// use. Independent clients share no state.
type Client struct {
    opts   Options
    base   string
    hc     *httpjson.Client
    log    *log.Logger
    now    func() time.Time
    sel    Selector
    leader leaderCache

    nodesMu sync.RWMutex
    nodes   []Node
}

// New constructs a Client. It performs no network activity.
func New(opts Options) (*Client, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    if opts.BaseURL == "" { opts.BaseURL = DefaultBaseURL }
    if opts.CacheTTL == 0 { opts.CacheTTL = DefaultCacheTTL }
    if opts.Timeout <= 0 { opts.Timeout = DefaultTimeout }
    if opts.Logger == nil { opts.Logger = log.Default() }
    if opts.Clock == nil { opts.Clock = time.Now }
    metrics.Register()

    hc := httpjson.NewClient(opts.Timeout).WithRetry(opts.Attempts)
    if opts.TLS != nil { hc.UseTLS(opts.TLS) }
    if opts.HTTPClient != nil { hc.WithHTTPClient(opts.HTTPClient) }

    c := &Client{
        opts:   opts,
        base:   strings.TrimSuffix(opts.BaseURL, "/"),
        hc:     hc,
        log:    opts.Logger,
        now:    opts.Clock,
        leader: leaderCache{ttl: opts.CacheTTL},
    }
    c.sel.Select(opts.Node)
    return c, nil
}

// BaseURL returns the gateway API root in use.
func (c *Client) BaseURL() string { return c.base }

// Policy returns the configured discovery policy.
func (c *Client) Policy() DiscoveryPolicy { return c.opts.Discovery }

// SelectNode stores id as the target of subsequent operations. NoNode
// restores the default (no node parameter).
func (c *Client) SelectNode(id NodeID) { c.sel.Select(id) }

// SelectedNode returns the stored selection.
func (c *Client) SelectedNode() NodeID { return c.sel.Selected() }

// ResolveTarget exposes the selector's decision for an optional override.
func (c *Client) ResolveTarget(override *NodeID) NodeID { return c.sel.Resolve(override) }

// route resolves the target for a routed operation, consults discovery
// when the policy asks for it and issues the call.
func (c *Client) route(ctx context.Context, op, method, path string, q url.Values, body any, opts []CallOption) (*Response, error) {
    co := collect(opts)
    target := c.sel.Resolve(co.node)
    if target < 0 {
        metrics.Requests.WithLabelValues(op, "error").Inc()
        return nil, ErrInvalidNode
    }
    if target == NoNode && c.opts.Discovery == DiscoverAlways {
        if _, err := c.DiscoverLeader(ctx); err != nil {
            metrics.Requests.WithLabelValues(op, "error").Inc()
            return nil, err
        }
    }
    if target != NoNode {
        if q == nil { q = url.Values{} }
        q.Set("nodeId", strconv.Itoa(int(target)))
    }
    return c.call(ctx, op, method, path, q, body, target)
}

func (c *Client) call(ctx context.Context, op, method, path string, q url.Values, body any, target NodeID) (*Response, error) {
    u := c.base + path
    if len(q) > 0 { u += "?" + q.Encode() }
    ctx, span := tracing.StartSpan(ctx, "kvclient."+op,
        attribute.String("kv.op", op),
        attribute.Int("kv.node", int(target)),
    )
    start := time.Now()
    reply, err := c.hc.Do(ctx, method, u, body)
    metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
    if err != nil {
        rerr := requestError(op, method, u, err)
        result := "error"
        if errors.Is(rerr, ErrNotLeader) { result = "rejected" }
        metrics.Requests.WithLabelValues(op, result).Inc()
        logutil.Debugf(c.log, "kvclient: %s failed: %v", op, rerr)
        span.End(rerr)
        return nil, rerr
    }
    metrics.Requests.WithLabelValues(op, "ok").Inc()
    span.End(nil)
    return &Response{StatusCode: reply.StatusCode, Body: reply.Body}, nil
}

func requestError(op, method, u string, err error) *RequestError {
    re := &RequestError{Op: op, Method: method, URL: u, Err: err}
    var se *httpjson.StatusError
    if errors.As(err, &se) {
        re.StatusCode = se.StatusCode
        re.Message = se.Message
        re.Body = se.Body
    }
    return re
}
