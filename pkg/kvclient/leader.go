package kvclient

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "sync"
    "time"

    "github.com/amirimatin/go-kvrouter/pkg/internal/logutil"
    "github.com/amirimatin/go-kvrouter/pkg/observability/metrics"
    "github.com/amirimatin/go-kvrouter/pkg/observability/tracing"
)

type cacheEntry struct {
    value     LeaderInfo
    fetchedAt time.Time
}

// leaderCache holds at most one entry. The lock is never held across a
// network call, so concurrent misses may both fetch; the last store wins.
type leaderCache struct {
    mu    sync.RWMutex
    entry *cacheEntry
    ttl   time.Duration
}

func (lc *leaderCache) lookup(now time.Time) (LeaderInfo, bool) {
    lc.mu.RLock()
    defer lc.mu.RUnlock()
    if lc.entry == nil || now.Sub(lc.entry.fetchedAt) >= lc.ttl {
        return LeaderInfo{}, false
    }
    return lc.entry.value, true
}

func (lc *leaderCache) peek() (LeaderInfo, bool) {
    lc.mu.RLock()
    defer lc.mu.RUnlock()
    if lc.entry == nil { return LeaderInfo{}, false }
    return lc.entry.value, true
}

func (lc *leaderCache) store(li LeaderInfo, at time.Time) {
    lc.mu.Lock()
    lc.entry = &cacheEntry{value: li, fetchedAt: at}
    lc.mu.Unlock()
}

func (lc *leaderCache) clear() {
    lc.mu.Lock()
    lc.entry = nil
    lc.mu.Unlock()
}

// DiscoverLeader returns the cluster leader, from cache when the cached
// entry is younger than the TTL and from GET /leader otherwise. A failed
// discovery leaves any cached entry untouched and returns a
// *DiscoveryError; nothing is retried here.
func (c *Client) DiscoverLeader(ctx context.Context) (LeaderInfo, error) {
    now := c.now()
    if li, ok := c.leader.lookup(now); ok {
        metrics.LeaderCacheLookups.WithLabelValues("hit").Inc()
        return li, nil
    }
    metrics.LeaderCacheLookups.WithLabelValues("miss").Inc()

    ctx, span := tracing.StartSpan(ctx, "kvclient.discoverLeader")
    li, err := c.fetchLeader(ctx)
    span.End(err)
    if err != nil {
        metrics.LeaderDiscoveries.WithLabelValues("error").Inc()
        logutil.Warnf(c.log, "kvclient: leader discovery failed: %v", err)
        return LeaderInfo{}, &DiscoveryError{Err: err}
    }
    metrics.LeaderDiscoveries.WithLabelValues("ok").Inc()
    li.FetchedAt = now
    c.leader.store(li, now)
    logutil.Debugf(c.log, "kvclient: leader is %s (node %d)", li.Addr(), li.ID)
    return li, nil
}

func (c *Client) fetchLeader(ctx context.Context) (LeaderInfo, error) {
    reply, err := c.hc.Do(ctx, http.MethodGet, c.base+"/leader", nil)
    if err != nil { return LeaderInfo{}, err }
    var li LeaderInfo
    if err := json.Unmarshal(reply.Body, &li); err != nil {
        return LeaderInfo{}, fmt.Errorf("decode leader: %w", err)
    }
    if li.Host == "" { return LeaderInfo{}, errors.New("leader payload has no host") }
    if li.Port <= 0 || li.Port > 65535 {
        return LeaderInfo{}, fmt.Errorf("leader payload has invalid port %d", li.Port)
    }
    li.Raw = append(json.RawMessage(nil), reply.Body...)
    return li, nil
}

// CachedLeader returns the cached leader, fresh or stale, without any
// network call.
func (c *Client) CachedLeader() (LeaderInfo, bool) { return c.leader.peek() }

// InvalidateLeader drops the cached leader so the next discovery fetches.
func (c *Client) InvalidateLeader() { c.leader.clear() }
