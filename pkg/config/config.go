package config

import (
    "errors"
    "fmt"
    "log"
    "net/url"
    "strings"
    "time"

    "github.com/spf13/pflag"
    "github.com/spf13/viper"

    "github.com/amirimatin/go-kvrouter/pkg/kvclient"
    tlsx "github.com/amirimatin/go-kvrouter/pkg/security/tlsconfig"
)

// EnvPrefix is prepended to every environment override, e.g. KVCTL_CACHE_TTL.
const EnvPrefix = "KVCTL"

// Config holds the resolved router settings.
type Config struct {
    API       string        `mapstructure:"api"`
    Node      int           `mapstructure:"node"`
    Timeout   time.Duration `mapstructure:"timeout"`
    CacheTTL  time.Duration `mapstructure:"cache-ttl"`
    Discovery string        `mapstructure:"discovery"`
    Retries   int           `mapstructure:"retries"`
    LogJSON   bool          `mapstructure:"log-json"`
    LogDebug  bool          `mapstructure:"log-debug"`
    Trace     bool          `mapstructure:"trace"`
    TLS       TLSConfig     `mapstructure:",squash"`
}

// TLSConfig mirrors tlsconfig.Options with flat keys.
type TLSConfig struct {
    Enable     bool   `mapstructure:"tls-enable"`
    CAFile     string `mapstructure:"tls-ca"`
    CertFile   string `mapstructure:"tls-cert"`
    KeyFile    string `mapstructure:"tls-key"`
    ServerName string `mapstructure:"tls-server-name"`
    SkipVerify bool   `mapstructure:"tls-skip-verify"`
}

func setDefaults(v *viper.Viper) {
    v.SetDefault("api", kvclient.DefaultBaseURL)
    v.SetDefault("node", 0)
    v.SetDefault("timeout", kvclient.DefaultTimeout)
    v.SetDefault("cache-ttl", kvclient.DefaultCacheTTL)
    v.SetDefault("discovery", kvclient.DiscoverOnDemand.String())
    v.SetDefault("retries", 1)
    v.SetDefault("log-json", false)
    v.SetDefault("log-debug", false)
    v.SetDefault("trace", false)
    v.SetDefault("tls-enable", false)
    v.SetDefault("tls-ca", "")
    v.SetDefault("tls-cert", "")
    v.SetDefault("tls-key", "")
    v.SetDefault("tls-server-name", "")
    v.SetDefault("tls-skip-verify", false)
}

// Load resolves the configuration from, in increasing precedence: defaults,
// the optional config file, KVCTL_* environment variables and the flags
// that were set explicitly. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
    v := viper.New()
    setDefaults(v)
    v.SetEnvPrefix(EnvPrefix)
    v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
    v.AutomaticEnv()

    if path != "" {
        v.SetConfigFile(path)
        if err := v.ReadInConfig(); err != nil {
            return nil, fmt.Errorf("config: read %s: %w", path, err)
        }
    }
    if flags != nil {
        if err := v.BindPFlags(flags); err != nil { return nil, fmt.Errorf("config: bind flags: %w", err) }
    }

    var cfg Config
    if err := v.Unmarshal(&cfg); err != nil {
        return nil, fmt.Errorf("config: decode: %w", err)
    }
    if err := cfg.Validate(); err != nil { return nil, err }
    return &cfg, nil
}

// Validate checks the values that the client would otherwise reject later.
func (c *Config) Validate() error {
    u, err := url.Parse(c.API)
    if err != nil { return fmt.Errorf("config: api: %w", err) }
    if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
        return fmt.Errorf("config: api %q must be an absolute http(s) url", c.API)
    }
    if c.Node < 0 { return fmt.Errorf("config: node must be >= 0, got %d", c.Node) }
    if c.Timeout < 0 || c.CacheTTL < 0 { return errors.New("config: durations must not be negative") }
    if c.Retries < 0 { return fmt.Errorf("config: retries must be >= 0, got %d", c.Retries) }
    if _, err := kvclient.ParseDiscoveryPolicy(c.Discovery); err != nil {
        return fmt.Errorf("config: %w", err)
    }
    if c.TLS.Enable && (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
        return errors.New("config: tls-cert and tls-key must be set together")
    }
    return nil
}

// TLSOptions converts the flat TLS keys to tlsconfig options.
func (c *Config) TLSOptions() tlsx.Options {
    return tlsx.Options{
        Enable:             c.TLS.Enable,
        CAFile:             c.TLS.CAFile,
        CertFile:           c.TLS.CertFile,
        KeyFile:            c.TLS.KeyFile,
        InsecureSkipVerify: c.TLS.SkipVerify,
        ServerName:         c.TLS.ServerName,
    }
}

// ClientOptions builds kvclient options. TLS material is loaded here, so a
// missing certificate fails before any request is made.
func (c *Config) ClientOptions(logger *log.Logger) (kvclient.Options, error) {
    policy, err := kvclient.ParseDiscoveryPolicy(c.Discovery)
    if err != nil { return kvclient.Options{}, err }
    opts := kvclient.Options{
        BaseURL:   c.API,
        CacheTTL:  c.CacheTTL,
        Discovery: policy,
        Node:      kvclient.NodeID(c.Node),
        Timeout:   c.Timeout,
        Attempts:  c.Retries,
        Logger:    logger,
    }
    if c.TLS.Enable {
        tc, err := c.TLSOptions().Client()
        if err != nil { return kvclient.Options{}, fmt.Errorf("config: tls client: %w", err) }
        opts.TLS = tc
    }
    return opts, nil
}
