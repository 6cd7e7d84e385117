// Package common builds the dependencies shared by the harvester commands.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/cache"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/checkpoint"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/config"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/httpclient"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/matterhorn"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/metrics"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/redis"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/retry"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/sink"
)

// CommandDeps holds the dependencies every command starts from.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Logger
}

// NewCommandDeps loads the configuration from v and creates the logger.
func NewCommandDeps(v *viper.Viper) (*CommandDeps, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return &CommandDeps{Config: cfg, Logger: log}, nil
}

// BindFlags binds each named flag in flags to its config key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %q is not defined", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// NewMatterhornClient creates an API client for host using the shared credentials.
func (d *CommandDeps) NewMatterhornClient(host string) *matterhorn.Client {
	return matterhorn.NewClient(
		host,
		d.Config.Matterhorn.User,
		d.Config.Matterhorn.Password,
		matterhorn.WithTimeout(d.Config.Matterhorn.Timeout),
	)
}

// NewRedisClient connects to the configured Redis server.
func (d *CommandDeps) NewRedisClient(ctx context.Context) (*goredis.Client, error) {
	return redis.NewClient(ctx, redis.Config{
		Address:  d.Config.Redis.Address,
		Password: d.Config.Redis.Password,
		DB:       d.Config.Redis.DB,
	}, retry.DefaultConfig(), d.Logger)
}

// NewEpisodeCache creates the episode cache on the configured backend. rdb may be nil
// when the backend is lru.
func (d *CommandDeps) NewEpisodeCache(rdb *goredis.Client) (*cache.EpisodeCache, error) {
	cfg := d.Config.Cache

	var backend cache.Backend
	switch cfg.Backend {
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis cache backend requires redis.address")
		}
		backend = cache.NewRedisBackend(rdb, d.Config.Redis.KeyPrefix+":episode", cfg.TTL)
	case "lru":
		lru, err := cache.NewLRUBackend(cfg.Size)
		if err != nil {
			return nil, fmt.Errorf("create lru cache: %w", err)
		}
		backend = lru
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	d.Logger.Debug("Episode cache ready",
		logger.String("backend", cfg.Backend),
		logger.Duration("ttl", cfg.TTL),
	)
	return cache.New(backend, d.Logger), nil
}

// NewCheckpointStore creates the configured checkpoint store.
func (d *CommandDeps) NewCheckpointStore(ctx context.Context) (checkpoint.Store, error) {
	cfg := d.Config.Checkpoint

	switch cfg.Backend {
	case checkpoint.BackendMinIO:
		client, err := checkpoint.NewMinIOClient(checkpoint.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    cfg.MinIO.Region,
			Bucket:    cfg.MinIO.Bucket,
		})
		if err != nil {
			return nil, err
		}

		err = retry.Retry(ctx, retry.DefaultConfig(), func() error {
			_, existsErr := client.BucketExists(ctx, cfg.MinIO.Bucket)
			return existsErr
		})
		if err != nil {
			return nil, fmt.Errorf("minio connection check failed: %w", err)
		}

		d.Logger.Info("Connected to MinIO",
			logger.String("endpoint", cfg.MinIO.Endpoint),
			logger.String("bucket", cfg.MinIO.Bucket),
		)
		return checkpoint.NewMinIOStore(client, cfg.MinIO.Bucket)
	case checkpoint.BackendFile:
		return checkpoint.NewFileStore(cfg.Directory)
	default:
		return nil, &checkpoint.UnknownBackendError{Backend: cfg.Backend}
	}
}

// NewSink creates the configured output sink. Records for the stdout output go to w.
func (d *CommandDeps) NewSink(rdb *goredis.Client, w io.Writer) (sink.Sink, error) {
	cfg := d.Config.Harvest

	switch cfg.Output {
	case sink.OutputQueue:
		if rdb == nil {
			return nil, errors.New("queue output requires redis.address")
		}
		return sink.NewQueueSink(rdb, sink.QueueConfig{
			Prefix:       d.Config.Redis.KeyPrefix,
			Queue:        cfg.Queue,
			MaxStreamLen: cfg.MaxStreamLen,
		})
	case sink.OutputStdout:
		return sink.NewStreamSink(w), nil
	default:
		return nil, fmt.Errorf("unknown output %q", cfg.Output)
	}
}

// NewReporter returns the run reporters enabled by configuration. rdb may be nil.
func (d *CommandDeps) NewReporter(rdb *goredis.Client) metrics.Reporter {
	var reporters metrics.Reporters

	if url := d.Config.Metrics.PushgatewayURL; url != "" {
		reporters = append(reporters, metrics.NewPushReporter(url, httpclient.New(httpclient.Config{}, nil)))
	}
	if d.Config.Metrics.TrackRuns && rdb != nil {
		reporters = append(reporters, metrics.NewRunTracker(rdb, d.Config.Redis.KeyPrefix, d.Logger))
	}

	if len(reporters) == 0 {
		return nil
	}
	return reporters
}

// NewDocuments connects to Elasticsearch and returns the document API.
func (d *CommandDeps) NewDocuments(ctx context.Context) (*elasticsearch.Documents, error) {
	cfg := d.Config.Elasticsearch

	esCfg := elasticsearch.Config{
		URL:        cfg.URL,
		Username:   cfg.Username,
		Password:   cfg.Password,
		APIKey:     cfg.APIKey,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled || cfg.CAFile != "" {
		esCfg.TLS = &elasticsearch.TLSConfig{
			Enabled:            true,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			CAFile:             cfg.CAFile,
			CertFile:           cfg.CertFile,
			KeyFile:            cfg.KeyFile,
		}
	}

	client, err := elasticsearch.NewClient(ctx, esCfg, d.Logger)
	if err != nil {
		return nil, err
	}
	return elasticsearch.NewDocuments(client), nil
}
