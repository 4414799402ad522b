package cli

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "log"
    "os"
    "os/signal"
    "path/filepath"
    "syscall"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-kvrouter/pkg/config"
    "github.com/amirimatin/go-kvrouter/pkg/devcluster"
    "github.com/amirimatin/go-kvrouter/pkg/internal/logutil"
    "github.com/amirimatin/go-kvrouter/pkg/kvclient"
    tracing "github.com/amirimatin/go-kvrouter/pkg/observability/tracing"
    "github.com/amirimatin/go-kvrouter/pkg/store"
    "github.com/amirimatin/go-kvrouter/pkg/transport/httpjson"
)

// unsetNode marks an --on flag that was not given.
const unsetNode = -1

// NewRootCommand returns the kvctl command tree.
func NewRootCommand() *cobra.Command {
    root := &cobra.Command{
        Use:           "kvctl",
        Short:         "leader-aware client for a replicated key-value gateway",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    AddAll(root)
    return root
}

// AddAll attaches the persistent client flags and every subcommand to root.
func AddAll(root *cobra.Command) {
    pf := root.PersistentFlags()
    pf.String("config", "", "config file (yaml, json or toml)")
    pf.String("api", kvclient.DefaultBaseURL, "gateway API root")
    pf.Int("node", 0, "node to target by default (0 = let the gateway route)")
    pf.Duration("timeout", kvclient.DefaultTimeout, "per-request timeout")
    pf.Duration("cache-ttl", kvclient.DefaultCacheTTL, "leader cache lifetime")
    pf.String("discovery", kvclient.DiscoverOnDemand.String(), "leader discovery policy: on-demand|always")
    pf.Int("retries", 1, "attempts per request on 5xx or network errors")
    pf.Bool("log-json", false, "emit JSON logs")
    pf.Bool("log-debug", false, "enable debug logs")
    pf.Bool("trace", false, "enable OpenTelemetry stdout tracing (dev)")
    pf.Bool("tls-enable", false, "enable TLS towards the gateway")
    pf.String("tls-ca", "", "path to CA cert (PEM)")
    pf.String("tls-cert", "", "path to client certificate (PEM)")
    pf.String("tls-key", "", "path to client private key (PEM)")
    pf.String("tls-server-name", "", "expected server name (for TLS validation)")
    pf.Bool("tls-skip-verify", false, "skip server cert verification (DEV ONLY)")

    root.AddCommand(NewLeaderCmd())
    root.AddCommand(NewNodesCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewGetCmd())
    root.AddCommand(NewSetCmd())
    root.AddCommand(NewDelCmd())
    root.AddCommand(NewRangeCmd("getff", "List entries with key >= KEY in ascending order", false))
    root.AddCommand(NewRangeCmd("getfb", "List entries with key <= KEY in descending order", true))
    root.AddCommand(NewKeysCmd())
    root.AddCommand(NewOptimizeCmd())
    root.AddCommand(NewDevServerCmd())
}

// session is what a command needs once flags are resolved.
type session struct {
    cfg      *config.Config
    client   *kvclient.Client
    shutdown func(context.Context) error
}

func (s *session) close() {
    if s.shutdown != nil { _ = s.shutdown(context.Background()) }
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
    path, _ := cmd.Flags().GetString("config")
    cfg, err := config.Load(path, cmd.Flags())
    if err != nil { return nil, err }
    if cfg.Timeout <= 0 { cfg.Timeout = kvclient.DefaultTimeout }
    logutil.SetJSON(cfg.LogJSON)
    logutil.SetDebug(cfg.LogDebug)
    return cfg, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
    cfg, err := loadConfig(cmd)
    if err != nil { return nil, err }
    s := &session{cfg: cfg}
    if cfg.Trace {
        shutdown, err := tracing.Setup(true)
        if err != nil {
            log.Printf("tracing setup error: %v", err)
        } else {
            s.shutdown = shutdown
        }
    }
    opts, err := cfg.ClientOptions(log.New(cmd.ErrOrStderr(), "", log.LstdFlags))
    if err != nil {
        s.close()
        return nil, err
    }
    s.client, err = kvclient.New(opts)
    if err != nil {
        s.close()
        return nil, err
    }
    return s, nil
}

// routed wires a command that issues one routed operation. The --on flag
// overrides the configured node for this invocation only.
func routed(cmd *cobra.Command, run func(ctx context.Context, c *kvclient.Client, args []string, opts []kvclient.CallOption) (*kvclient.Response, error)) *cobra.Command {
    var on int
    cmd.Flags().IntVar(&on, "on", unsetNode, "target node for this call (0 = no node parameter)")
    cmd.RunE = func(cmd *cobra.Command, args []string) error {
        s, err := openSession(cmd)
        if err != nil { return err }
        defer s.close()
        var opts []kvclient.CallOption
        if on != unsetNode { opts = append(opts, kvclient.OnNode(kvclient.NodeID(on))) }
        ctx, cancel := context.WithTimeout(cmd.Context(), s.cfg.Timeout)
        defer cancel()
        resp, err := run(ctx, s.client, args, opts)
        if err != nil { return err }
        return writeRaw(cmd, resp.Body)
    }
    return cmd
}

func writeRaw(cmd *cobra.Command, body []byte) error {
    var buf bytes.Buffer
    if err := json.Indent(&buf, body, "", "  "); err != nil {
        buf.Reset()
        buf.Write(body)
    }
    if buf.Len() == 0 || buf.Bytes()[buf.Len()-1] != '\n' { buf.WriteByte('\n') }
    _, err := cmd.OutOrStdout().Write(buf.Bytes())
    return err
}

func writeJSON(cmd *cobra.Command, v any) error {
    enc := json.NewEncoder(cmd.OutOrStdout())
    enc.SetIndent("", "  ")
    return enc.Encode(v)
}

// NewLeaderCmd returns the "leader" command.
func NewLeaderCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "leader",
        Short: "Discover the current leader",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            s, err := openSession(cmd)
            if err != nil { return err }
            defer s.close()
            ctx, cancel := context.WithTimeout(cmd.Context(), s.cfg.Timeout)
            defer cancel()
            li, err := s.client.DiscoverLeader(ctx)
            if err != nil { return err }
            return writeRaw(cmd, li.Raw)
        },
    }
}

// NewNodesCmd returns the "nodes" command.
func NewNodesCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "nodes",
        Short: "List the cluster nodes",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            s, err := openSession(cmd)
            if err != nil { return err }
            defer s.close()
            ctx, cancel := context.WithTimeout(cmd.Context(), s.cfg.Timeout)
            defer cancel()
            nodes, err := s.client.AvailableNodes(ctx)
            if err != nil { return err }
            return writeJSON(cmd, map[string]any{"nodes": nodes})
        },
    }
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "status",
        Short: "Fetch cluster status as JSON",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            s, err := openSession(cmd)
            if err != nil { return err }
            defer s.close()
            ctx, cancel := context.WithTimeout(cmd.Context(), s.cfg.Timeout)
            defer cancel()
            resp, err := s.client.ClusterStatus(ctx)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            return writeRaw(cmd, resp.Body)
        },
    }
}

// NewGetCmd returns the "get" command.
func NewGetCmd() *cobra.Command {
    return routed(&cobra.Command{Use: "get KEY", Short: "Read a key", Args: cobra.ExactArgs(1)},
        func(ctx context.Context, c *kvclient.Client, args []string, opts []kvclient.CallOption) (*kvclient.Response, error) {
            return c.Get(ctx, args[0], opts...)
        })
}

// NewSetCmd returns the "set" command.
func NewSetCmd() *cobra.Command {
    return routed(&cobra.Command{Use: "set KEY VALUE", Short: "Write a key (must reach the leader)", Args: cobra.ExactArgs(2)},
        func(ctx context.Context, c *kvclient.Client, args []string, opts []kvclient.CallOption) (*kvclient.Response, error) {
            return c.Set(ctx, args[0], args[1], opts...)
        })
}

// NewDelCmd returns the "del" command.
func NewDelCmd() *cobra.Command {
    return routed(&cobra.Command{Use: "del KEY", Short: "Delete a key (must reach the leader)", Args: cobra.ExactArgs(1)},
        func(ctx context.Context, c *kvclient.Client, args []string, opts []kvclient.CallOption) (*kvclient.Response, error) {
            return c.Delete(ctx, args[0], opts...)
        })
}

// NewRangeCmd returns "getff" or "getfb".
func NewRangeCmd(use, short string, backward bool) *cobra.Command {
    var count int
    cmd := routed(&cobra.Command{Use: use + " KEY", Short: short, Args: cobra.ExactArgs(1)},
        func(ctx context.Context, c *kvclient.Client, args []string, opts []kvclient.CallOption) (*kvclient.Response, error) {
            if backward { return c.GetBackward(ctx, args[0], count, opts...) }
            return c.GetForward(ctx, args[0], count, opts...)
        })
    cmd.Flags().IntVar(&count, "count", kvclient.DefaultRangeCount, "maximum entries to return")
    return cmd
}

// NewKeysCmd returns the "keys" parent with "prefix" and "page".
func NewKeysCmd() *cobra.Command {
    parent := &cobra.Command{Use: "keys", Short: "List keys"}
    parent.AddCommand(routed(&cobra.Command{Use: "prefix [PREFIX]", Short: "List keys starting with PREFIX", Args: cobra.MaximumNArgs(1)},
        func(ctx context.Context, c *kvclient.Client, args []string, opts []kvclient.CallOption) (*kvclient.Response, error) {
            prefix := ""
            if len(args) == 1 { prefix = args[0] }
            return c.GetKeysPrefix(ctx, prefix, opts...)
        }))

    var size, num int
    page := routed(&cobra.Command{Use: "page", Short: "List one page of keys", Args: cobra.NoArgs},
        func(ctx context.Context, c *kvclient.Client, args []string, opts []kvclient.CallOption) (*kvclient.Response, error) {
            return c.GetKeysPaging(ctx, size, num, opts...)
        })
    page.Flags().IntVar(&size, "size", 10, "page size")
    page.Flags().IntVar(&num, "num", 1, "page number (1-indexed)")
    parent.AddCommand(page)
    return parent
}

// NewOptimizeCmd returns the "optimize" command.
func NewOptimizeCmd() *cobra.Command {
    return routed(&cobra.Command{Use: "optimize", Short: "Compact the target node's store (must reach the leader)", Args: cobra.NoArgs},
        func(ctx context.Context, c *kvclient.Client, args []string, opts []kvclient.CallOption) (*kvclient.Response, error) {
            return c.Optimize(ctx, opts...)
        })
}

// NewDevServerCmd returns the "devserver" command, which serves a simulated
// cluster behind the /api gateway surface.
func NewDevServerCmd() *cobra.Command {
    var (
        listen, dataDir string
        nodes, leader   int
    )
    cmd := &cobra.Command{
        Use:   "devserver",
        Short: "Run an in-process simulated cluster gateway",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, err := loadConfig(cmd)
            if err != nil { return err }
            ctx, cancel := signalContext(cmd.Context())
            defer cancel()

            if cfg.Trace {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Printf("tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
            opts := devcluster.Options{Nodes: nodes, Leader: leader, Logger: logger}
            if dataDir != "" {
                if err := os.MkdirAll(dataDir, 0o755); err != nil { return err }
                opts.NewStore = func(id int) (store.Store, error) {
                    return store.OpenBolt(filepath.Join(dataDir, fmt.Sprintf("node-%d.db", id)))
                }
            }
            cl, err := devcluster.New(opts)
            if err != nil { return err }
            defer cl.Close()

            srv := httpjson.NewServer(listen, logger)
            srvTLS, err := cfg.TLSOptions().Server()
            if err != nil { return fmt.Errorf("tls server config: %w", err) }
            if srvTLS != nil { srv.UseTLS(srvTLS) }
            if err := srv.Start(ctx, cl.Handler()); err != nil { return err }

            fmt.Fprintf(cmd.OutOrStdout(), "dev cluster (%d nodes, leader %d) on %s. Press Ctrl+C to exit.\n", cl.Size(), cl.Leader(), srv.Addr())
            <-ctx.Done()
            return srv.Stop(context.Background())
        },
    }
    cmd.Flags().StringVar(&listen, "listen", ":8080", "gateway listen address")
    cmd.Flags().IntVar(&nodes, "nodes", 4, "number of simulated nodes")
    cmd.Flags().IntVar(&leader, "leader", 1, "initial leader")
    cmd.Flags().StringVar(&dataDir, "data", "", "directory for per-node bbolt stores (in-memory when empty)")
    return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
    if parent == nil { parent = context.Background() }
    return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
