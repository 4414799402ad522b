package tlsconfig

import (
    "os"
    "path/filepath"
    "testing"
)

func TestDisabledReturnsNil(t *testing.T) {
    var o Options
    if cfg, err := o.Client(); err != nil || cfg != nil {
        t.Fatalf("client: got %v, %v", cfg, err)
    }
    if cfg, err := o.Server(); err != nil || cfg != nil {
        t.Fatalf("server: got %v, %v", cfg, err)
    }
}

func TestServerRequiresCertAndKey(t *testing.T) {
    o := Options{Enable: true}
    if _, err := o.Server(); err == nil {
        t.Fatal("expected error without cert/key")
    }
}

func TestClientSettings(t *testing.T) {
    o := Options{Enable: true, InsecureSkipVerify: true, ServerName: "gw.local"}
    cfg, err := o.Client()
    if err != nil { t.Fatal(err) }
    if !cfg.InsecureSkipVerify || cfg.ServerName != "gw.local" {
        t.Fatalf("unexpected config: %+v", cfg)
    }
    if cfg.GetClientCertificate != nil {
        t.Fatal("no client cert configured, expected nil hook")
    }
}

func TestClientRejectsGarbageCA(t *testing.T) {
    p := filepath.Join(t.TempDir(), "ca.pem")
    if err := os.WriteFile(p, []byte("not a cert"), 0o600); err != nil { t.Fatal(err) }
    o := Options{Enable: true, CAFile: p}
    if _, err := o.Client(); err == nil {
        t.Fatal("expected error for CA file without certificates")
    }
}
