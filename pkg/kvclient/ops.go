package kvclient

import (
    "context"
    "net/http"
    "net/url"
    "strconv"
)

// keyPath appends key as a single escaped segment. PathEscape leaves "." and
// ".." as is, which the gateway would clean away as dot segments.
func keyPath(route, key string) string {
    switch key {
    case ".":
        return route + "%2E"
    case "..":
        return route + "%2E%2E"
    }
    return route + url.PathEscape(key)
}

// Get reads key. Any node can serve it; followers may be stale.
func (c *Client) Get(ctx context.Context, key string, opts ...CallOption) (*Response, error) {
    if key == "" { return nil, ErrEmptyKey }
    return c.route(ctx, "get", http.MethodGet, keyPath("/get/", key), nil, nil, opts)
}

// Set writes key=value. The gateway rejects it when the target is not the
// leader (errors.Is(err, ErrNotLeader)).
func (c *Client) Set(ctx context.Context, key, value string, opts ...CallOption) (*Response, error) {
    if key == "" { return nil, ErrEmptyKey }
    body := struct{ Value string `json:"value"` }{Value: value}
    return c.route(ctx, "set", http.MethodPost, keyPath("/set/", key), nil, body, opts)
}

// Delete removes key; same leader constraint as Set.
func (c *Client) Delete(ctx context.Context, key string, opts ...CallOption) (*Response, error) {
    if key == "" { return nil, ErrEmptyKey }
    return c.route(ctx, "del", http.MethodPost, keyPath("/del/", key), nil, nil, opts)
}

// GetForward lists at most count entries with key >= startKey, ascending.
// count <= 0 means DefaultRangeCount.
func (c *Client) GetForward(ctx context.Context, startKey string, count int, opts ...CallOption) (*Response, error) {
    if startKey == "" { return nil, ErrEmptyKey }
    return c.route(ctx, "getff", http.MethodGet, keyPath("/getff/", startKey), countQuery(count), nil, opts)
}

// GetBackward lists at most count entries with key <= endKey, descending.
func (c *Client) GetBackward(ctx context.Context, endKey string, count int, opts ...CallOption) (*Response, error) {
    if endKey == "" { return nil, ErrEmptyKey }
    return c.route(ctx, "getfb", http.MethodGet, keyPath("/getfb/", endKey), countQuery(count), nil, opts)
}

func countQuery(count int) url.Values {
    if count <= 0 { count = DefaultRangeCount }
    return url.Values{"count": []string{strconv.Itoa(count)}}
}

// GetKeysPrefix lists every key starting with prefix. The prefix is
// percent-encoded into the path; "" lists all keys.
func (c *Client) GetKeysPrefix(ctx context.Context, prefix string, opts ...CallOption) (*Response, error) {
    return c.route(ctx, "prefix", http.MethodGet, keyPath("/keys/prefix/", prefix), nil, nil, opts)
}

// GetKeysPaging returns page pageNum (1-indexed) of pageSize keys. Ordering
// across concurrent writes between pages is best-effort.
func (c *Client) GetKeysPaging(ctx context.Context, pageSize, pageNum int, opts ...CallOption) (*Response, error) {
    if pageSize < 1 || pageNum < 1 { return nil, ErrInvalidPage }
    q := url.Values{
        "pageSize": []string{strconv.Itoa(pageSize)},
        "pageNum":  []string{strconv.Itoa(pageNum)},
    }
    return c.route(ctx, "paging", http.MethodGet, "/keys/paging", q, nil, opts)
}

// Optimize triggers server-side maintenance. It must reach the leader.
func (c *Client) Optimize(ctx context.Context, opts ...CallOption) (*Response, error) {
    return c.route(ctx, "optimize", http.MethodPost, "/optimize", nil, nil, opts)
}
