package checkpoint_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/checkpoint"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "checkpoints")
	store, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "ua-harvest")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "ua-harvest", "20150924133251"))
	require.NoError(t, store.Set(ctx, "ua-harvest", "20150925000000"))

	value, found, err := store.Get(ctx, "ua-harvest")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "20150925000000", value)

	data, err := os.ReadFile(filepath.Join(dir, "ua-harvest"))
	require.NoError(t, err)
	assert.Equal(t, "20150925000000", string(data))
}

func TestFileStore_KeysStayInsideDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "../prod/ua", "20150101000000"))

	_, err = os.Stat(filepath.Join(dir, "prod_ua"))
	require.NoError(t, err)
}

func TestNewFileStore_RequiresDirectory(t *testing.T) {
	t.Parallel()

	_, err := checkpoint.NewFileStore("")
	require.Error(t, err)
}
