package httpclient_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/httpclient"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	client := httpclient.New(httpclient.Config{}, nil)

	assert.Equal(t, httpclient.DefaultTimeout, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	if assert.True(t, ok) {
		assert.Equal(t, httpclient.DefaultMaxIdleConns, transport.MaxIdleConns)
		assert.Equal(t, httpclient.DefaultIdleConnTimeout, transport.IdleConnTimeout)
	}
}

func TestNew_CustomRoundTripper(t *testing.T) {
	t.Parallel()

	rt := http.DefaultTransport
	client := httpclient.New(httpclient.Config{Timeout: 5 * time.Second}, rt)

	assert.Equal(t, 5*time.Second, client.Timeout)
	assert.Equal(t, rt, client.Transport)
}
