// Package episodes implements the load-episodes command.
package episodes

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/ua-harvester/cmd/common"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/indexer"
)

var flagKeys = map[string]string{
	"admin-host":        "matterhorn.admin_host",
	"engage-host":       "matterhorn.engage_host",
	"index":             "indexer.index",
	"created-from-days": "indexer.created_from_days",
	"batch-size":        "indexer.batch_size",
	"wait":              "indexer.wait",
}

// Command returns the load-episodes command.
func Command(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load-episodes",
		Short: "Index the episode catalog into Elasticsearch",
		Long: `Walk the engage episode catalog page by page, correlate each episode with its
completed publish workflow on the admin host and upsert one search document per episode.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return common.BindFlags(v, cmd.Flags(), flagKeys)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.String("admin-host", "", "Matterhorn admin host (workflow instances)")
	flags.String("engage-host", "", "Matterhorn engage host (episode search)")
	flags.String("index", indexer.DefaultIndex, "search index name")
	flags.Int("created-from-days", 0, "only episodes created in the last N days (0 = all)")
	flags.Int("batch-size", indexer.DefaultBatchSize, "episodes fetched per page")
	flags.Duration("wait", 0, "pause between pages")

	return cmd
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	ctx := cmd.Context()

	deps, err := common.NewCommandDeps(v)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Logger.Sync() }()

	cfg := deps.Config
	if err = cfg.ValidateLoadEpisodes(); err != nil {
		return err
	}

	var rdb *goredis.Client
	if cfg.Redis.Enabled() && cfg.Metrics.TrackRuns {
		rdb, err = deps.NewRedisClient(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	docs, err := deps.NewDocuments(ctx)
	if err != nil {
		return fmt.Errorf("connect to elasticsearch: %w", err)
	}

	idx := indexer.New(
		deps.NewMatterhornClient(cfg.Matterhorn.EngageHost),
		deps.NewMatterhornClient(cfg.Matterhorn.AdminHost),
		docs,
		deps.Logger,
		indexer.WithReporter(deps.NewReporter(rdb)),
	)

	_, err = idx.Run(ctx, indexer.Options{
		Index:              cfg.Indexer.Index,
		CreatedFromDays:    cfg.Indexer.CreatedFromDays,
		BatchSize:          cfg.Indexer.BatchSize,
		Wait:               cfg.Indexer.Wait,
		WorkflowDefinition: cfg.Indexer.WorkflowDefinition,
	})
	return err
}
