//go:build integration

package elasticsearch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tces "github.com/testcontainers/testcontainers-go/modules/elasticsearch"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
)

func TestIntegration_EnsureIndexAndIndexDocument(t *testing.T) {
	ctx := context.Background()

	container, err := tces.Run(ctx,
		"docker.elastic.co/elasticsearch/elasticsearch:8.11.0",
		tces.WithPassword("changeme"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	caFile := filepath.Join(t.TempDir(), "http_ca.crt")
	require.NoError(t, os.WriteFile(caFile, container.Settings.CACert, 0o600))

	client, err := NewClient(ctx, Config{
		URL:      container.Settings.Address,
		Username: "elastic",
		Password: container.Settings.Password,
		TLS:      &TLSConfig{Enabled: true, CAFile: caFile},
	}, logger.NewNop())
	require.NoError(t, err)

	docs := NewDocuments(client)
	mapping := `{"mappings":{"properties":{"title":{"type":"text"}}}}`
	require.NoError(t, docs.EnsureIndex(ctx, "episodes-it", mapping))
	require.NoError(t, docs.EnsureIndex(ctx, "episodes-it", mapping))

	require.NoError(t, docs.IndexDocument(ctx, "episodes-it", "mp-1", map[string]any{"title": "first"}))
	require.NoError(t, docs.IndexDocument(ctx, "episodes-it", "mp-1", map[string]any{"title": "second"}))

	res, err := client.Get("episodes-it", "mp-1")
	require.NoError(t, err)
	defer res.Body.Close()
	require.False(t, res.IsError())
}
