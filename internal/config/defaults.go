package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("matterhorn", map[string]any{
		"timeout": "30s",
	})

	v.SetDefault("harvest", map[string]any{
		"interval":           "2m",
		"max_span":           "24h",
		"disable_span_check": false,
		"batch_size":         1000,
		"wait":               "1s",
		"output":             "queue",
		"queue":              "actions",
		"max_stream_len":     100000,
		"checkpoint_key":     "ua-harvest",
	})

	v.SetDefault("indexer", map[string]any{
		"index":               "episodes",
		"created_from_days":   0,
		"batch_size":          100,
		"wait":                "1s",
		"workflow_definition": "DCE-archive-publish-external",
	})

	v.SetDefault("redis", map[string]any{
		"address":    "",
		"db":         0,
		"key_prefix": "ua-harvester",
	})

	v.SetDefault("cache", map[string]any{
		"backend": "redis",
		"ttl":     "1800s",
		"size":    4096,
	})

	v.SetDefault("checkpoint", map[string]any{
		"backend":   "minio",
		"directory": "./checkpoints",
		"minio": map[string]any{
			"endpoint": "localhost:9000",
			"use_ssl":  false,
			"region":   "us-east-1",
			"bucket":   "ua-harvester-checkpoints",
		},
	})

	v.SetDefault("elasticsearch", map[string]any{
		"url":         "http://127.0.0.1:9200",
		"max_retries": 3,
	})

	v.SetDefault("metrics", map[string]any{
		"track_runs": true,
	})

	v.SetDefault("logging", map[string]any{
		"level":        "info",
		"format":       "json",
		"development":  false,
		"output_paths": []string{"stderr"},
	})
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string][]string{
	"matterhorn.host":             {"MATTERHORN_HOST"},
	"matterhorn.admin_host":       {"MATTERHORN_ADMIN_HOST"},
	"matterhorn.engage_host":      {"MATTERHORN_ENGAGE_HOST"},
	"matterhorn.user":             {"MATTERHORN_REST_USER"},
	"matterhorn.password":         {"MATTERHORN_REST_PASS"},
	"redis.address":               {"REDIS_ADDRESS"},
	"redis.password":              {"REDIS_PASSWORD"},
	"redis.db":                    {"REDIS_DB"},
	"checkpoint.minio.endpoint":   {"MINIO_ENDPOINT"},
	"checkpoint.minio.access_key": {"MINIO_ACCESS_KEY", "AWS_ACCESS_KEY_ID"},
	"checkpoint.minio.secret_key": {"MINIO_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"},
	"checkpoint.minio.bucket":     {"CHECKPOINT_BUCKET"},
	"elasticsearch.url":           {"ELASTICSEARCH_URL", "ES_HOST"},
	"elasticsearch.username":      {"ELASTICSEARCH_USERNAME"},
	"elasticsearch.password":      {"ELASTIC_PASSWORD", "ELASTICSEARCH_PASSWORD"},
	"elasticsearch.api_key":       {"ELASTICSEARCH_API_KEY"},
	"metrics.pushgateway_url":     {"PUSHGATEWAY_URL"},
	"logging.level":               {"LOG_LEVEL"},
	"logging.format":              {"LOG_FORMAT"},
}

// BindEnv binds the well-known environment variables to their config keys.
func BindEnv(v *viper.Viper) error {
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", envs[0], err)
		}
	}
	return nil
}
