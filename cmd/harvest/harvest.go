// Package harvest implements the harvest command.
package harvest

import (
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/ua-harvester/cmd/common"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/enrich"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/harvest"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/matterhorn"
)

// flagKeys maps harvest flags to config keys.
var flagKeys = map[string]string{
	"interval":           "harvest.interval",
	"max-span":           "harvest.max_span",
	"disable-span-check": "harvest.disable_span_check",
	"batch-size":         "harvest.batch_size",
	"wait":               "harvest.wait",
	"output":             "harvest.output",
	"queue":              "harvest.queue",
	"checkpoint-key":     "harvest.checkpoint_key",
}

// Command returns the harvest command.
func Command(v *viper.Viper) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest user actions into the output sink",
		Long: `Fetch user actions for a time window from Matterhorn, enrich each one with its
episode metadata and deliver the records to the configured output.

Without --start the window resumes from the last checkpoint. Times are given as
YYYYMMDDHHmmss or RFC 3339 and interpreted as UTC.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return common.BindFlags(v, cmd.Flags(), flagKeys)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, err := parseWindow(start, end)
			if err != nil {
				return err
			}
			return run(cmd, v, window)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&start, "start", "", "window start (default: last checkpoint, else now minus --interval)")
	flags.StringVar(&end, "end", "", "window end (default: now)")
	flags.Duration("interval", harvest.DefaultInterval, "lookback used when no checkpoint exists")
	flags.Duration("max-span", harvest.DefaultMaxSpan, "maximum window length")
	flags.Bool("disable-span-check", false, "allow windows longer than --max-span")
	flags.Int("batch-size", harvest.DefaultBatchSize, "actions fetched per request")
	flags.Duration("wait", harvest.DefaultWait, "pause between batches")
	flags.String("output", "queue", "output sink: queue or stdout")
	flags.String("queue", "actions", "queue name for the queue output")
	flags.String("checkpoint-key", harvest.DefaultCheckpointKey, "checkpoint key for this harvest")

	return cmd
}

type window struct {
	start *time.Time
	end   *time.Time
}

func parseWindow(start, end string) (window, error) {
	var w window
	var err error
	if w.start, err = parseTime("start", start); err != nil {
		return w, err
	}
	if w.end, err = parseTime("end", end); err != nil {
		return w, err
	}
	return w, nil
}

func parseTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := matterhorn.ParseTimestamp(value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: want YYYYMMDDHHmmss or RFC 3339", name, value)
	}
	t = t.UTC()
	return &t, nil
}

func run(cmd *cobra.Command, v *viper.Viper, w window) error {
	ctx := cmd.Context()

	deps, err := common.NewCommandDeps(v)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Logger.Sync() }()

	cfg := deps.Config
	if err = cfg.ValidateHarvest(); err != nil {
		return err
	}
	log := deps.Logger

	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		rdb, err = deps.NewRedisClient(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	store, err := deps.NewCheckpointStore(ctx)
	if err != nil {
		return fmt.Errorf("create checkpoint store: %w", err)
	}

	episodes, err := deps.NewEpisodeCache(rdb)
	if err != nil {
		return err
	}

	out, err := deps.NewSink(rdb, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			log.Warn("Failed to close output", logger.Error(closeErr))
		}
	}()

	client := deps.NewMatterhornClient(cfg.Matterhorn.Host)
	enricher := enrich.New(episodes, client.EpisodePayload, log)

	h := harvest.New(client, enricher, out, store, log,
		harvest.WithCacheStats(episodes),
		harvest.WithReporter(deps.NewReporter(rdb)),
	)

	_, err = h.Run(ctx, harvest.Options{
		Start:            w.start,
		End:              w.end,
		Interval:         cfg.Harvest.Interval,
		MaxSpan:          cfg.Harvest.MaxSpan,
		DisableSpanCheck: cfg.Harvest.DisableSpanCheck,
		BatchSize:        cfg.Harvest.BatchSize,
		Wait:             cfg.Harvest.Wait,
		CheckpointKey:    cfg.Harvest.CheckpointKey,
	})
	if errors.Is(err, harvest.ErrSpanTooLarge) {
		return fmt.Errorf("%w (use --disable-span-check or a narrower window)", err)
	}
	return err
}
