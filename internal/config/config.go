// Package config loads the harvester configuration from viper (file, environment, flags).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
)

// Config is the complete application configuration.
type Config struct {
	Matterhorn    MatterhornConfig    `yaml:"matterhorn"`
	Harvest       HarvestConfig       `yaml:"harvest"`
	Indexer       IndexerConfig       `yaml:"indexer"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Checkpoint    CheckpointConfig    `yaml:"checkpoint"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       logger.Config       `yaml:"logging"`
}

// MatterhornConfig holds upstream REST settings.
type MatterhornConfig struct {
	// Host serves the usertracking and search endpoints for harvests.
	Host string `yaml:"host"`
	// AdminHost serves workflow instances for load-episodes.
	AdminHost string `yaml:"admin_host"`
	// EngageHost serves the episode catalog for load-episodes.
	EngageHost string        `yaml:"engage_host"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	Timeout    time.Duration `yaml:"timeout"`
}

// HarvestConfig holds harvest run settings.
type HarvestConfig struct {
	Interval         time.Duration `yaml:"interval"`
	MaxSpan          time.Duration `yaml:"max_span"`
	DisableSpanCheck bool          `yaml:"disable_span_check"`
	BatchSize        int           `yaml:"batch_size"`
	Wait             time.Duration `yaml:"wait"`
	Output           string        `yaml:"output"`
	Queue            string        `yaml:"queue"`
	MaxStreamLen     int64         `yaml:"max_stream_len"`
	CheckpointKey    string        `yaml:"checkpoint_key"`
}

// IndexerConfig holds load-episodes settings.
type IndexerConfig struct {
	Index              string        `yaml:"index"`
	CreatedFromDays    int           `yaml:"created_from_days"`
	BatchSize          int           `yaml:"batch_size"`
	Wait               time.Duration `yaml:"wait"`
	WorkflowDefinition string        `yaml:"workflow_definition"`
}

// RedisConfig holds the shared Redis connection.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// CacheConfig selects the episode cache backend.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Size    int           `yaml:"size"`
}

// CheckpointConfig selects the checkpoint store.
type CheckpointConfig struct {
	Backend   string      `yaml:"backend"`
	Directory string      `yaml:"directory"`
	MinIO     MinIOConfig `yaml:"minio"`
}

// MinIOConfig holds S3-compatible object storage settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
}

// ElasticsearchConfig holds search index connection settings.
type ElasticsearchConfig struct {
	URL                string `yaml:"url"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	APIKey             string `yaml:"api_key"`
	TLSEnabled         bool   `yaml:"tls_enabled"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	MaxRetries         int    `yaml:"max_retries"`
}

// MetricsConfig controls run reporting.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	TrackRuns      bool   `yaml:"track_runs"`
}

// Load reads the full configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is nil")
	}

	cfg := &Config{
		Matterhorn: MatterhornConfig{
			Host:       v.GetString("matterhorn.host"),
			AdminHost:  v.GetString("matterhorn.admin_host"),
			EngageHost: v.GetString("matterhorn.engage_host"),
			User:       v.GetString("matterhorn.user"),
			Password:   v.GetString("matterhorn.password"),
			Timeout:    v.GetDuration("matterhorn.timeout"),
		},
		Harvest: HarvestConfig{
			Interval:         v.GetDuration("harvest.interval"),
			MaxSpan:          v.GetDuration("harvest.max_span"),
			DisableSpanCheck: v.GetBool("harvest.disable_span_check"),
			BatchSize:        v.GetInt("harvest.batch_size"),
			Wait:             v.GetDuration("harvest.wait"),
			Output:           v.GetString("harvest.output"),
			Queue:            v.GetString("harvest.queue"),
			MaxStreamLen:     v.GetInt64("harvest.max_stream_len"),
			CheckpointKey:    v.GetString("harvest.checkpoint_key"),
		},
		Indexer: IndexerConfig{
			Index:              v.GetString("indexer.index"),
			CreatedFromDays:    v.GetInt("indexer.created_from_days"),
			BatchSize:          v.GetInt("indexer.batch_size"),
			Wait:               v.GetDuration("indexer.wait"),
			WorkflowDefinition: v.GetString("indexer.workflow_definition"),
		},
		Redis: RedisConfig{
			Address:   v.GetString("redis.address"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Cache: CacheConfig{
			Backend: v.GetString("cache.backend"),
			TTL:     v.GetDuration("cache.ttl"),
			Size:    v.GetInt("cache.size"),
		},
		Checkpoint: CheckpointConfig{
			Backend:   v.GetString("checkpoint.backend"),
			Directory: v.GetString("checkpoint.directory"),
			MinIO: MinIOConfig{
				Endpoint:  v.GetString("checkpoint.minio.endpoint"),
				AccessKey: v.GetString("checkpoint.minio.access_key"),
				SecretKey: v.GetString("checkpoint.minio.secret_key"),
				UseSSL:    v.GetBool("checkpoint.minio.use_ssl"),
				Region:    v.GetString("checkpoint.minio.region"),
				Bucket:    v.GetString("checkpoint.minio.bucket"),
			},
		},
		Elasticsearch: ElasticsearchConfig{
			URL:                v.GetString("elasticsearch.url"),
			Username:           v.GetString("elasticsearch.username"),
			Password:           v.GetString("elasticsearch.password"),
			APIKey:             v.GetString("elasticsearch.api_key"),
			TLSEnabled:         v.GetBool("elasticsearch.tls_enabled"),
			InsecureSkipVerify: v.GetBool("elasticsearch.insecure_skip_verify"),
			CAFile:             v.GetString("elasticsearch.ca_file"),
			CertFile:           v.GetString("elasticsearch.cert_file"),
			KeyFile:            v.GetString("elasticsearch.key_file"),
			MaxRetries:         v.GetInt("elasticsearch.max_retries"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: v.GetString("metrics.pushgateway_url"),
			TrackRuns:      v.GetBool("metrics.track_runs"),
		},
	}

	cfg.Logging = logger.Config{
		Level:       v.GetString("logging.level"),
		Format:      v.GetString("logging.format"),
		Development: v.GetBool("logging.development"),
		OutputPaths: v.GetStringSlice("logging.output_paths"),
	}
	cfg.Logging.SetDefaults()

	return cfg, nil
}

// secretKeys are masked when the effective configuration is displayed.
var secretKeys = []string{
	"matterhorn.password",
	"redis.password",
	"checkpoint.minio.secret_key",
	"elasticsearch.password",
	"elasticsearch.api_key",
}

const redactedValue = "********"

// RedactedSettings returns every effective setting of v with secrets masked.
func RedactedSettings(v *viper.Viper) map[string]any {
	settings := v.AllSettings()
	for _, key := range secretKeys {
		if v.GetString(key) == "" {
			continue
		}
		setPath(settings, strings.Split(key, "."), redactedValue)
	}
	return settings
}

func setPath(m map[string]any, path []string, value any) {
	for _, part := range path[:len(path)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

func required(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidateHarvest checks the settings the harvest command depends on.
func (c *Config) ValidateHarvest() error {
	errs := []error{
		required("matterhorn.host", c.Matterhorn.Host),
		c.validateCache(),
		c.validateCheckpoint(),
	}

	if c.Harvest.BatchSize <= 0 {
		errs = append(errs, &ValidationError{Field: "harvest.batch_size", Message: "must be positive"})
	}
	switch c.Harvest.Output {
	case "queue":
		errs = append(errs,
			required("harvest.queue", c.Harvest.Queue),
			required("redis.address", c.Redis.Address),
		)
	case "stdout":
	default:
		errs = append(errs, &ValidationError{Field: "harvest.output", Message: fmt.Sprintf("unknown output %q", c.Harvest.Output)})
	}

	return errors.Join(errs...)
}

// ValidateLoadEpisodes checks the settings the load-episodes command depends on.
func (c *Config) ValidateLoadEpisodes() error {
	errs := []error{
		required("matterhorn.admin_host", c.Matterhorn.AdminHost),
		required("matterhorn.engage_host", c.Matterhorn.EngageHost),
		required("elasticsearch.url", c.Elasticsearch.URL),
		required("indexer.index", c.Indexer.Index),
	}
	if c.Indexer.CreatedFromDays < 0 {
		errs = append(errs, &ValidationError{Field: "indexer.created_from_days", Message: "must not be negative"})
	}
	return errors.Join(errs...)
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "redis":
		return required("redis.address", c.Redis.Address)
	case "lru":
		return nil
	default:
		return &ValidationError{Field: "cache.backend", Message: fmt.Sprintf("unknown backend %q", c.Cache.Backend)}
	}
}

func (c *Config) validateCheckpoint() error {
	switch c.Checkpoint.Backend {
	case "minio":
		return errors.Join(
			required("checkpoint.minio.endpoint", c.Checkpoint.MinIO.Endpoint),
			required("checkpoint.minio.bucket", c.Checkpoint.MinIO.Bucket),
		)
	case "file":
		return required("checkpoint.directory", c.Checkpoint.Directory)
	default:
		return &ValidationError{Field: "checkpoint.backend", Message: fmt.Sprintf("unknown backend %q", c.Checkpoint.Backend)}
	}
}
