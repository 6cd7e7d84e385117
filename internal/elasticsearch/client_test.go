package elasticsearch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/retry"
)

// mockTransport implements http.RoundTripper for mocking Elasticsearch responses
type mockTransport struct {
	RoundTripFn func(req *http.Request) (*http.Response, error)
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.RoundTripFn(req)
}

func esResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header: http.Header{
			"X-Elastic-Product": []string{"Elasticsearch"},
			"Content-Type":      []string{"application/json"},
		},
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already has http://", input: "http://elasticsearch:9200", expected: "http://elasticsearch:9200"},
		{name: "already has https://", input: "https://elasticsearch:9200", expected: "https://elasticsearch:9200"},
		{name: "missing protocol", input: "elasticsearch:9200", expected: "http://elasticsearch:9200"},
		{name: "empty string", input: "", expected: "http://localhost:9200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, normalizeURL(tt.input))
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{URL: "http://custom:9200", MaxRetries: 5}
	cfg.SetDefaults()

	assert.Equal(t, "http://custom:9200", cfg.URL)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, defaultPingTimeout, cfg.PingTimeout)
	require.NotNil(t, cfg.RetryConfig)
	assert.Equal(t, retry.DefaultConfig().MaxAttempts, cfg.RetryConfig.MaxAttempts)

	empty := Config{}
	empty.SetDefaults()
	assert.Equal(t, defaultURL, empty.URL)
	assert.Equal(t, defaultMaxRetries, empty.MaxRetries)
}

func TestNewClient_PingSucceeds(t *testing.T) {
	t.Parallel()

	var pings atomic.Int32
	transport := &mockTransport{RoundTripFn: func(req *http.Request) (*http.Response, error) {
		pings.Add(1)
		assert.Equal(t, http.MethodHead, req.Method)
		return esResponse(http.StatusOK, ""), nil
	}}

	client, err := NewClient(context.Background(), Config{Transport: transport}, logger.NewNop())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, int32(1), pings.Load())
}

func TestNewClient_PingFails(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{RoundTripFn: func(*http.Request) (*http.Response, error) {
		return esResponse(http.StatusUnauthorized, `{"error":"unauthorized"}`), nil
	}}

	_, err := NewClient(context.Background(), Config{
		Transport: transport,
		RetryConfig: &retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			IsRetryable:  func(error) bool { return true },
		},
	}, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
}

func TestCreateTransport(t *testing.T) {
	t.Parallel()

	plain, err := createTransport(nil)
	require.NoError(t, err)
	assert.Nil(t, plain.TLSClientConfig)

	insecure, err := createTransport(&TLSConfig{Enabled: true, InsecureSkipVerify: true})
	require.NoError(t, err)
	require.NotNil(t, insecure.TLSClientConfig)
	assert.True(t, insecure.TLSClientConfig.InsecureSkipVerify)

	_, err = createTransport(&TLSConfig{Enabled: true, CAFile: "/nonexistent/ca.crt"})
	require.Error(t, err)
}
