package kvclient

import (
    "context"
    "errors"
    "net/http"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-kvrouter/pkg/internal/logutil"
)

// leaderGateway answers /api/leader with the configured payload or status.
type leaderGateway struct {
    hits    atomic.Int32
    mu      sync.Mutex
    status  int
    payload string
}

func (g *leaderGateway) set(status int, payload string) {
    g.mu.Lock()
    g.status, g.payload = status, payload
    g.mu.Unlock()
}

func (g *leaderGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/api/leader" {
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write([]byte(`{}`))
        return
    }
    g.hits.Add(1)
    g.mu.Lock()
    status, payload := g.status, g.payload
    g.mu.Unlock()
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _, _ = w.Write([]byte(payload))
}

func newLeaderGateway() *leaderGateway {
    return &leaderGateway{status: http.StatusOK, payload: `{"id":1,"host":"10.0.0.1","port":7001}`}
}

func TestDiscoverLeaderCacheHit(t *testing.T) {
    gw := newLeaderGateway()
    clk := newFakeClock()
    c := newTestClient(t, gw, Options{Clock: clk.Now})
    ctx := context.Background()

    first, err := c.DiscoverLeader(ctx)
    require.NoError(t, err)
    clk.Advance(4 * time.Second)
    second, err := c.DiscoverLeader(ctx)
    require.NoError(t, err)

    assert.EqualValues(t, 1, gw.hits.Load())
    assert.Equal(t, first, second)
    assert.Equal(t, "10.0.0.1", first.Host)
    assert.Equal(t, 7001, first.Port)
    assert.Equal(t, NodeID(1), first.ID)
    assert.Equal(t, "10.0.0.1:7001", first.Addr())
    assert.JSONEq(t, `{"id":1,"host":"10.0.0.1","port":7001}`, string(first.Raw))
}

func TestDiscoverLeaderCacheExpiry(t *testing.T) {
    gw := newLeaderGateway()
    clk := newFakeClock()
    c := newTestClient(t, gw, Options{Clock: clk.Now})
    ctx := context.Background()

    _, err := c.DiscoverLeader(ctx)
    require.NoError(t, err)
    gw.set(http.StatusOK, `{"id":2,"host":"10.0.0.2","port":7001}`)
    clk.Advance(DefaultCacheTTL + time.Millisecond)

    li, err := c.DiscoverLeader(ctx)
    require.NoError(t, err)
    assert.EqualValues(t, 2, gw.hits.Load())
    assert.Equal(t, "10.0.0.2", li.Host)
}

func TestDiscoverLeaderExactlyAtTTLRefetches(t *testing.T) {
    gw := newLeaderGateway()
    clk := newFakeClock()
    c := newTestClient(t, gw, Options{Clock: clk.Now, CacheTTL: time.Second})

    _, err := c.DiscoverLeader(context.Background())
    require.NoError(t, err)
    clk.Advance(time.Second)
    _, err = c.DiscoverLeader(context.Background())
    require.NoError(t, err)
    assert.EqualValues(t, 2, gw.hits.Load())
}

func TestDiscoverLeaderFailureKeepsCachedEntry(t *testing.T) {
    gw := newLeaderGateway()
    clk := newFakeClock()
    c := newTestClient(t, gw, Options{Clock: clk.Now})
    ctx := context.Background()

    good, err := c.DiscoverLeader(ctx)
    require.NoError(t, err)
    clk.Advance(DefaultCacheTTL)
    gw.set(http.StatusServiceUnavailable, `{"error":"No leader available"}`)

    _, err = c.DiscoverLeader(ctx)
    require.Error(t, err)
    assert.ErrorIs(t, err, ErrDiscovery)
    var de *DiscoveryError
    require.True(t, errors.As(err, &de))
    assert.Contains(t, err.Error(), "cannot discover cluster leader")

    cached, ok := c.CachedLeader()
    require.True(t, ok)
    assert.Equal(t, good, cached)

    // Recovery replaces the stale entry.
    gw.set(http.StatusOK, `{"id":3,"host":"10.0.0.3","port":7001}`)
    li, err := c.DiscoverLeader(ctx)
    require.NoError(t, err)
    assert.Equal(t, NodeID(3), li.ID)
    assert.Equal(t, clk.Now(), li.FetchedAt)
}

func TestDiscoverLeaderFailureWithinTTLServesPrior(t *testing.T) {
    gw := newLeaderGateway()
    clk := newFakeClock()
    c := newTestClient(t, gw, Options{Clock: clk.Now})
    ctx := context.Background()

    good, err := c.DiscoverLeader(ctx)
    require.NoError(t, err)
    gw.set(http.StatusInternalServerError, `{"error":"boom"}`)

    clk.Advance(time.Second)
    li, err := c.DiscoverLeader(ctx)
    require.NoError(t, err)
    assert.Equal(t, good, li)

    clk.Advance(DefaultCacheTTL)
    _, err = c.DiscoverLeader(ctx)
    assert.ErrorIs(t, err, ErrDiscovery)
    cached, ok := c.CachedLeader()
    require.True(t, ok)
    assert.Equal(t, good, cached)
}

func TestDiscoverLeaderMalformedPayload(t *testing.T) {
    cases := []string{
        `not json`,
        `{"port":7001}`,
        `{"host":"h","port":0}`,
        `{"host":"h","port":70000}`,
    }
    for _, payload := range cases {
        gw := newLeaderGateway()
        gw.set(http.StatusOK, payload)
        c := newTestClient(t, gw, Options{})
        _, err := c.DiscoverLeader(context.Background())
        assert.ErrorIs(t, err, ErrDiscovery, "payload %q", payload)
        _, ok := c.CachedLeader()
        assert.False(t, ok, "payload %q must not be cached", payload)
    }
}

func TestDiscoverLeaderUnreachable(t *testing.T) {
    c, err := New(Options{BaseURL: "http://127.0.0.1:1/api", Timeout: 500 * time.Millisecond, Logger: logutil.Discard()})
    require.NoError(t, err)
    _, err = c.DiscoverLeader(context.Background())
    assert.ErrorIs(t, err, ErrDiscovery)
}

func TestInvalidateLeader(t *testing.T) {
    gw := newLeaderGateway()
    c := newTestClient(t, gw, Options{})
    _, err := c.DiscoverLeader(context.Background())
    require.NoError(t, err)
    c.InvalidateLeader()
    _, ok := c.CachedLeader()
    assert.False(t, ok)
    _, err = c.DiscoverLeader(context.Background())
    require.NoError(t, err)
    assert.EqualValues(t, 2, gw.hits.Load())
}

func TestConcurrentDiscoveryTolerated(t *testing.T) {
    gw := newLeaderGateway()
    c := newTestClient(t, gw, Options{})
    var wg sync.WaitGroup
    for i := 0; i < 16; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            li, err := c.DiscoverLeader(context.Background())
            assert.NoError(t, err)
            assert.Equal(t, "10.0.0.1", li.Host)
        }()
    }
    wg.Wait()
    hits := gw.hits.Load()
    assert.GreaterOrEqual(t, hits, int32(1))
    assert.LessOrEqual(t, hits, int32(16))
}
