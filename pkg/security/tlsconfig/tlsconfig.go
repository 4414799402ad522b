package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"
)

// Options defines TLS inputs for talking to (or serving) the /api gateway.
type Options struct {
    Enable             bool
    CAFile             string
    CertFile           string
    KeyFile            string
    InsecureSkipVerify bool
    ServerName         string
}

// reloadEvery bounds how long a hot-reloaded certificate is reused.
const reloadEvery = 10 * time.Second

func loadPool(path string) (*x509.CertPool, error) {
    ca, err := os.ReadFile(path)
    if err != nil { return nil, fmt.Errorf("tls: read ca: %w", err) }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(ca) { return nil, fmt.Errorf("tls: no certificates in %s", path) }
    return pool, nil
}

// Server returns a tls.Config for the dev gateway if enabled, otherwise nil.
// When a CA is given, client certificates are required.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return nil, errors.New("tls: server cert/key required when TLS enabled")
    }
    cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
    if err != nil { return nil, err }
    cfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    return cfg, nil
}

// Client returns a tls.Config for the router's HTTP transport if enabled,
// otherwise nil. The client certificate is reloaded from disk on demand so
// long-lived clients pick up rotated certs.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify, MinVersion: tls.VersionTLS12} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return cfg, nil
    }
    if _, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile); err != nil {
        return nil, err
    }
    var (
        mu       sync.Mutex
        cached   *tls.Certificate
        lastLoad time.Time
    )
    cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
        mu.Lock()
        defer mu.Unlock()
        if cached != nil && time.Since(lastLoad) < reloadEvery {
            return cached, nil
        }
        cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
        if err != nil { return nil, err }
        cached, lastLoad = &cert, time.Now()
        return cached, nil
    }
    return cfg, nil
}
