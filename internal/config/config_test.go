package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/config"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	require.NoError(t, config.BindEnv(v))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := newViper(t)

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Harvest.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Harvest.MaxSpan)
	assert.Equal(t, 1000, cfg.Harvest.BatchSize)
	assert.Equal(t, "queue", cfg.Harvest.Output)
	assert.Equal(t, 1800*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "minio", cfg.Checkpoint.Backend)
	assert.Equal(t, "ua-harvester-checkpoints", cfg.Checkpoint.MinIO.Bucket)
	assert.Equal(t, "DCE-archive-publish-external", cfg.Indexer.WorkflowDefinition)
	assert.Equal(t, 30*time.Second, cfg.Matterhorn.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"stderr"}, cfg.Logging.OutputPaths)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MATTERHORN_HOST", "matterhorn.example.edu")
	t.Setenv("MATTERHORN_REST_USER", "harvester")
	t.Setenv("MATTERHORN_REST_PASS", "s3cret")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "matterhorn.example.edu", cfg.Matterhorn.Host)
	assert.Equal(t, "harvester", cfg.Matterhorn.User)
	assert.Equal(t, "s3cret", cfg.Matterhorn.Password)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	v := newViper(t)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
matterhorn:
  host: mh.example.edu
harvest:
  batch_size: 250
  output: stdout
cache:
  backend: lru
  size: 16
checkpoint:
  backend: file
  directory: /var/lib/ua-harvester
`)))

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Harvest.BatchSize)
	assert.Equal(t, "stdout", cfg.Harvest.Output)
	assert.Equal(t, 2*time.Minute, cfg.Harvest.Interval, "unset keys keep their default")
	assert.Equal(t, "lru", cfg.Cache.Backend)
	assert.Equal(t, "/var/lib/ua-harvester", cfg.Checkpoint.Directory)
	require.NoError(t, cfg.ValidateHarvest())
}

func TestLoad_NilViper(t *testing.T) {
	_, err := config.Load(nil)
	require.Error(t, err)
}

func TestValidateHarvest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr []string
	}{
		{
			name: "valid queue output",
			mutate: func(c *config.Config) {
				c.Matterhorn.Host = "mh"
				c.Redis.Address = "redis:6379"
			},
		},
		{
			name:    "missing host and redis",
			mutate:  func(*config.Config) {},
			wantErr: []string{"matterhorn.host", "redis.address"},
		},
		{
			name: "unknown output",
			mutate: func(c *config.Config) {
				c.Matterhorn.Host = "mh"
				c.Redis.Address = "redis:6379"
				c.Harvest.Output = "sqs"
			},
			wantErr: []string{"harvest.output"},
		},
		{
			name: "file checkpoint needs directory",
			mutate: func(c *config.Config) {
				c.Matterhorn.Host = "mh"
				c.Redis.Address = "redis:6379"
				c.Checkpoint.Backend = "file"
				c.Checkpoint.Directory = ""
			},
			wantErr: []string{"checkpoint.directory"},
		},
		{
			name: "unknown cache backend",
			mutate: func(c *config.Config) {
				c.Matterhorn.Host = "mh"
				c.Redis.Address = "redis:6379"
				c.Cache.Backend = "memcached"
			},
			wantErr: []string{"cache.backend"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(newViper(t))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.ValidateHarvest()
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, field := range tt.wantErr {
				assert.Contains(t, err.Error(), field)
			}
		})
	}
}

func TestValidateLoadEpisodes(t *testing.T) {
	cfg, err := config.Load(newViper(t))
	require.NoError(t, err)

	err = cfg.ValidateLoadEpisodes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matterhorn.admin_host")
	assert.Contains(t, err.Error(), "matterhorn.engage_host")

	cfg.Matterhorn.AdminHost = "admin"
	cfg.Matterhorn.EngageHost = "engage"
	require.NoError(t, cfg.ValidateLoadEpisodes())

	var vErr *config.ValidationError
	cfg.Indexer.CreatedFromDays = -1
	require.ErrorAs(t, cfg.ValidateLoadEpisodes(), &vErr)
}

func TestRedactedSettings(t *testing.T) {
	t.Setenv("MATTERHORN_REST_PASS", "s3cret")
	t.Setenv("MINIO_SECRET_KEY", "minio-secret")

	settings := config.RedactedSettings(newViper(t))

	matterhorn, ok := settings["matterhorn"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "********", matterhorn["password"])

	minio := settings["checkpoint"].(map[string]any)["minio"].(map[string]any)
	assert.Equal(t, "********", minio["secret_key"])

	redis := settings["redis"].(map[string]any)
	assert.NotEqual(t, "********", redis["password"], "empty secrets are left empty")
}
