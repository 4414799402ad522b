package httpjson

import (
    "context"
    "crypto/tls"
    "errors"
    "log"
    "net"
    "net/http"
    "sync"
    "time"

    "github.com/amirimatin/go-kvrouter/pkg/internal/logutil"
)

// Server hosts an http.Handler (the dev gateway) with optional TLS and
// graceful shutdown when the start context is canceled.
type Server struct {
    bind   string
    logger *log.Logger
    tlsCfg *tls.Config

    mu  sync.Mutex
    srv *http.Server
    ln  net.Listener
}

// NewServer binds to the given TCP address (e.g., ":8080" or "127.0.0.1:0").
func NewServer(bind string, logger *log.Logger) *Server {
    if logger == nil { logger = log.Default() }
    return &Server{bind: bind, logger: logger}
}

// UseTLS enables TLS for the server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Start listens and serves h in the background. The server is shut down
// when ctx is canceled.
func (s *Server) Start(ctx context.Context, h http.Handler) error {
    ln, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    if s.tlsCfg != nil {
        ln = tls.NewListener(ln, s.tlsCfg)
    }
    srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
    s.mu.Lock()
    s.srv, s.ln = srv, ln
    s.mu.Unlock()

    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() {
        if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logutil.Errorf(s.logger, "httpjson: server error: %v", err)
        }
    }()
    logutil.Infof(s.logger, "httpjson: serving on %s", ln.Addr())
    return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.ln != nil { return s.ln.Addr().String() }
    return s.bind
}

// Stop attempts a graceful shutdown with a short timeout.
func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv := s.srv
    s.srv = nil
    s.mu.Unlock()
    if srv == nil { return nil }
    c, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return srv.Shutdown(c)
}
