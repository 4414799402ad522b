package kvclient

import (
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-kvrouter/pkg/internal/logutil"
)

// fakeClock is a settable wall clock for cache expiry tests.
type fakeClock struct {
    mu  sync.Mutex
    now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (f *fakeClock) Now() time.Time {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
    f.mu.Lock()
    f.now = f.now.Add(d)
    f.mu.Unlock()
}

// recorder is a gateway stub that remembers every request it saw.
type recorder struct {
    mu       sync.Mutex
    requests []*http.Request
    handler  http.HandlerFunc
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
    r.mu.Lock()
    r.requests = append(r.requests, req.Clone(req.Context()))
    h := r.handler
    r.mu.Unlock()
    if h != nil {
        h(w, req)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    _, _ = w.Write([]byte(`{}`))
}

func (r *recorder) last() *http.Request {
    r.mu.Lock()
    defer r.mu.Unlock()
    if len(r.requests) == 0 { return nil }
    return r.requests[len(r.requests)-1]
}

func (r *recorder) count(path string) int {
    r.mu.Lock()
    defer r.mu.Unlock()
    n := 0
    for _, req := range r.requests {
        if req.URL.Path == path { n++ }
    }
    return n
}

func newTestClient(t *testing.T, h http.Handler, opts Options) *Client {
    t.Helper()
    srv := httptest.NewServer(h)
    t.Cleanup(srv.Close)
    opts.BaseURL = srv.URL + "/api"
    if opts.Logger == nil { opts.Logger = logutil.Discard() }
    c, err := New(opts)
    require.NoError(t, err)
    return c
}
