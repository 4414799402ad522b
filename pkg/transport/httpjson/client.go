package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/google/uuid"
    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/go-kvrouter/pkg/observability/tracing"
)

// RequestIDHeader carries a fresh id on every outbound request so gateway
// logs can be correlated with client failures.
const RequestIDHeader = "X-Request-ID"

// Client is a thin HTTP/JSON client for the /api gateway. It supports
// optional TLS and opt-in retry with backoff; by default every call is
// issued exactly once.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    attempts  int
}

// Reply is a successful (2xx) response.
type Reply struct {
    StatusCode int
    Header     http.Header
    Body       []byte
}

// StatusError is returned for non-2xx responses. Message holds the "error"
// field of a JSON body when the gateway sent one.
type StatusError struct {
    StatusCode int
    Message    string
    Body       []byte
}

func (e *StatusError) Error() string {
    if e.Message != "" { return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message) }
    return fmt.Sprintf("status %d: %s", e.StatusCode, bytes.TrimSpace(e.Body))
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 5 * time.Second }
    tr := http.DefaultTransport.(*http.Transport).Clone()
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr, attempts: 1}
}

// UseTLS sets the TLS config for the underlying transport.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    return c
}

// WithRetry allows up to attempts tries for transport errors and 5xx
// replies. Values below 1 are treated as 1.
func (c *Client) WithRetry(attempts int) *Client {
    if attempts < 1 { attempts = 1 }
    c.attempts = attempts
    return c
}

// WithHTTPClient replaces the underlying *http.Client (e.g. the one from
// an httptest.Server).
func (c *Client) WithHTTPClient(h *http.Client) *Client {
    if h == nil { return c }
    c.httpc = h
    c.transport, _ = h.Transport.(*http.Transport)
    return c
}

// Do issues method against url. A non-nil body is encoded as JSON.
func (c *Client) Do(ctx context.Context, method, url string, body any) (*Reply, error) {
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return nil, fmt.Errorf("httpjson: encode body: %w", err) }
        payload = b
    }
    ctx, span := tracing.StartSpan(ctx, "http."+method, attribute.String("http.url", url))
    reply, err := c.do(ctx, method, url, payload)
    if reply != nil { span.SetAttributes(attribute.Int("http.status_code", reply.StatusCode)) }
    span.End(err)
    return reply, err
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) (*Reply, error) {
    var lastErr error
    for attempt := 0; attempt < c.attempts; attempt++ {
        if attempt > 0 {
            // backoff unless context is done
            select {
            case <-ctx.Done():
                return nil, lastErr
            case <-time.After(time.Duration(100*(1<<(attempt-1))) * time.Millisecond):
            }
        }
        reply, err := c.once(ctx, method, url, payload)
        if err == nil { return reply, nil }
        lastErr = err
        if se, ok := err.(*StatusError); ok && se.StatusCode < 500 {
            return nil, err
        }
        if ctx.Err() != nil { return nil, err }
    }
    return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte) (*Reply, error) {
    var rd io.Reader
    if payload != nil { rd = bytes.NewReader(payload) }
    req, err := http.NewRequestWithContext(ctx, method, url, rd)
    if err != nil { return nil, err }
    req.Header.Set("Accept", "application/json")
    req.Header.Set(RequestIDHeader, uuid.NewString())
    if payload != nil { req.Header.Set("Content-Type", "application/json") }
    resp, err := c.httpc.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    if err != nil { return nil, fmt.Errorf("httpjson: read body: %w", err) }
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        se := &StatusError{StatusCode: resp.StatusCode, Body: b}
        var env struct{ Error string `json:"error"` }
        if json.Unmarshal(b, &env) == nil { se.Message = env.Error }
        return nil, se
    }
    return &Reply{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}
