// Package elasticsearch builds the search index client and writes episode documents.
package elasticsearch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/retry"
)

// NewClient creates an Elasticsearch client and verifies the connection, retrying
// with exponential backoff while the cluster is unreachable.
func NewClient(ctx context.Context, cfg Config, log logger.Logger) (*es.Client, error) {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NewNop()
	}

	url := normalizeURL(cfg.URL)

	transport := cfg.Transport
	if transport == nil {
		t, err := createTransport(cfg.TLS)
		if err != nil {
			return nil, err
		}
		transport = t
	}

	clientConfig := es.Config{
		Addresses:  []string{url},
		Transport:  transport,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.APIKey != "" {
		clientConfig.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	esClient, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.String("url", url))

	if err := retry.Retry(ctx, *cfg.RetryConfig, func() error {
		return ping(ctx, esClient, cfg.PingTimeout, log)
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch after retries: %w", err)
	}

	log.Info("Elasticsearch connection established", logger.String("url", url))
	return esClient, nil
}

// normalizeURL normalizes the Elasticsearch URL by adding http:// prefix if missing
func normalizeURL(url string) string {
	if url == "" {
		return defaultURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}

// createTransport creates an HTTP transport with TLS configuration if provided
func createTransport(tlsConfig *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{}

	if tlsConfig == nil || !tlsConfig.Enabled {
		return transport, nil
	}

	tlsClientConfig := &tls.Config{
		InsecureSkipVerify: tlsConfig.InsecureSkipVerify, //nolint:gosec // opt-in for development clusters
		MinVersion:         tls.VersionTLS12,
	}

	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsClientConfig.Certificates = []tls.Certificate{cert}
	}

	if tlsConfig.CAFile != "" {
		pem, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates found in CA file")
		}
		tlsClientConfig.RootCAs = pool
	}

	transport.TLSClientConfig = tlsClientConfig
	return transport, nil
}

func ping(ctx context.Context, client *es.Client, timeout time.Duration, log logger.Logger) error {
	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		log.Debug("Elasticsearch ping failed", logger.Error(err))
		return fmt.Errorf("ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Debug("Elasticsearch ping returned error",
			logger.String("status", res.Status()),
			logger.String("body", string(body)),
		)
		return fmt.Errorf("ping returned error [%s]: %s", res.Status(), string(body))
	}

	return nil
}
