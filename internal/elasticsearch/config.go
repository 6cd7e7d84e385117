package elasticsearch

import (
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/retry"
)

const (
	defaultURL         = "http://localhost:9200"
	defaultMaxRetries  = 3
	defaultPingTimeout = 5 * time.Second
)

// Config holds the connection settings for the episode index cluster.
// APIKey takes precedence over Username/Password.
type Config struct {
	URL      string
	Username string
	Password string `json:"-"`
	APIKey   string `json:"-"`

	TLS *TLSConfig

	// MaxRetries is passed to the client for per-request retries.
	MaxRetries int
	// PingTimeout bounds each connection check.
	PingTimeout time.Duration
	// RetryConfig controls the connection check backoff. Nil means retry.DefaultConfig().
	RetryConfig *retry.Config

	// Transport replaces the TLS-configured transport when set.
	Transport http.RoundTripper
}

// TLSConfig configures HTTPS connections to the cluster.
type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
	// CAFile verifies the cluster certificate (e.g. the http_ca.crt of a secured 8.x node).
	CAFile string
	// CertFile and KeyFile enable client certificate authentication when both are set.
	CertFile string
	KeyFile  string
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = defaultPingTimeout
	}
	if c.RetryConfig == nil {
		cfg := retry.DefaultConfig()
		c.RetryConfig = &cfg
	}
}
