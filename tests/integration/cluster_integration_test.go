//go:build integration

package integration

import (
    "context"
    "errors"
    "fmt"
    "path/filepath"
    "testing"
    "time"

    "github.com/amirimatin/go-kvrouter/pkg/devcluster"
    "github.com/amirimatin/go-kvrouter/pkg/kvclient"
    "github.com/amirimatin/go-kvrouter/pkg/store"
    httpjson "github.com/amirimatin/go-kvrouter/pkg/transport/httpjson"
)

var errNotYet = errors.New("not yet")

// startGateway serves a simulated cluster on a free loopback port.
func startGateway(t *testing.T, ctx context.Context, opts devcluster.Options) (*devcluster.Cluster, string) {
    t.Helper()
    cl, err := devcluster.New(opts)
    if err != nil { t.Fatalf("dev cluster: %v", err) }
    srv := httpjson.NewServer("127.0.0.1:0", nil)
    if err := srv.Start(ctx, cl.Handler()); err != nil { t.Fatalf("start gateway: %v", err) }
    t.Cleanup(func() {
        _ = srv.Stop(context.Background())
        _ = cl.Close()
    })
    return cl, "http://" + srv.Addr() + "/api"
}

func TestLeaderFailover_WritesFollowNewLeader(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    dir := t.TempDir()
    cl, api := startGateway(t, ctx, devcluster.Options{Nodes: 3, NewStore: func(id int) (store.Store, error) {
        return store.OpenBolt(filepath.Join(dir, fmt.Sprintf("node-%d.db", id)))
    }})
    kv, err := kvclient.New(kvclient.Options{BaseURL: api, CacheTTL: 300 * time.Millisecond, Discovery: kvclient.DiscoverAlways})
    if err != nil { t.Fatalf("client: %v", err) }

    for i := 0; i < 20; i++ {
        if _, err := kv.Set(ctx, fmt.Sprintf("k%02d", i), "v"); err != nil { t.Fatalf("set: %v", err) }
    }
    li, err := kv.DiscoverLeader(ctx)
    if err != nil || li.ID != 1 { t.Fatalf("leader = %+v, %v", li, err) }

    // Old leader goes down: discovery fails until someone is elected.
    if err := cl.SetOnline(1, false); err != nil { t.Fatal(err) }
    time.Sleep(350 * time.Millisecond)
    if _, err := kv.Set(ctx, "x", "v"); !errors.Is(err, kvclient.ErrDiscovery) {
        t.Fatalf("expected discovery failure, got %v", err)
    }
    if cached, ok := kv.CachedLeader(); !ok || cached.ID != 1 {
        t.Fatalf("failed discovery must keep the previous entry, got %+v", cached)
    }

    if err := cl.Elect(2); err != nil { t.Fatal(err) }
    waitUntil(t, 5*time.Second, func() error {
        li, err := kv.DiscoverLeader(ctx)
        if err != nil { return err }
        if li.ID != 2 { return errNotYet }
        return nil
    })
    if _, err := kv.Set(ctx, "after", "failover"); err != nil { t.Fatalf("set after failover: %v", err) }
    if _, err := kv.Set(ctx, "stale", "v", kvclient.OnNode(1)); err == nil {
        t.Fatalf("write to offline old leader should fail")
    }

    resp, err := kv.GetKeysPaging(ctx, 5, 5)
    if err != nil { t.Fatalf("paging: %v", err) }
    var page kvclient.PageResult
    if err := resp.Decode(&page); err != nil { t.Fatal(err) }
    if page.TotalCount != 21 || len(page.Keys) != 1 {
        t.Fatalf("unexpected page: %+v", page)
    }

    if _, err := kv.Optimize(ctx); err != nil { t.Fatalf("optimize: %v", err) }
}

func TestStaleFollowerReadsCatchUp(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()

    cl, api := startGateway(t, ctx, devcluster.Options{Nodes: 3})
    kv, err := kvclient.New(kvclient.Options{BaseURL: api})
    if err != nil { t.Fatalf("client: %v", err) }

    if _, err := kv.Set(ctx, "k", "one"); err != nil { t.Fatal(err) }
    if err := cl.PauseReplication(3); err != nil { t.Fatal(err) }
    if _, err := kv.Set(ctx, "k", "two"); err != nil { t.Fatal(err) }

    kv.SelectNode(3)
    if got := readValue(t, ctx, kv); got != "one" { t.Fatalf("paused follower = %q, want one", got) }
    if err := cl.ResumeReplication(3); err != nil { t.Fatal(err) }
    if got := readValue(t, ctx, kv); got != "two" { t.Fatalf("resumed follower = %q, want two", got) }
}

func readValue(t *testing.T, ctx context.Context, kv *kvclient.Client) string {
    t.Helper()
    resp, err := kv.Get(ctx, "k")
    if err != nil { t.Fatalf("get: %v", err) }
    var v kvclient.ValueResult
    if err := resp.Decode(&v); err != nil { t.Fatal(err) }
    return v.Value
}

func waitUntil(t *testing.T, timeout time.Duration, fn func() error) {
    t.Helper()
    deadline := time.Now().Add(timeout)
    var last error
    for time.Now().Before(deadline) {
        if err := fn(); err == nil {
            return
        } else {
            last = err
        }
        time.Sleep(100 * time.Millisecond)
    }
    t.Fatalf("timeout waiting for condition: %v", last)
}
