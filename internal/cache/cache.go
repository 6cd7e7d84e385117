// Package cache memoizes episode metadata by media package id.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/matterhorn"
)

// Backend stores raw episode payloads.
type Backend interface {
	// Get returns the payload stored under key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. Expiry is a property of the backend.
	Set(ctx context.Context, key string, value []byte) error
}

// FetchFunc loads the raw episode payload for a media package from upstream.
type FetchFunc func(ctx context.Context, mediaPackageID string) (json.RawMessage, error)

// absentMarker is stored for media packages upstream has no usable episode for.
var absentMarker = []byte("null")

// Stats reports cache effectiveness for a run.
type Stats struct {
	Hits   int64
	Misses int64
}

// EpisodeCache resolves episodes through a Backend, falling back to a fetch on miss.
type EpisodeCache struct {
	backend Backend
	log     logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an EpisodeCache on top of backend.
func New(backend Backend, log logger.Logger) *EpisodeCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &EpisodeCache{backend: backend, log: log}
}

// Resolve returns the episode for mediaPackageID. A nil episode with a nil error means
// upstream has no such episode, or returned one without a media package. Absence is
// cached like a payload. Backend failures are logged and treated as a miss.
func (c *EpisodeCache) Resolve(ctx context.Context, mediaPackageID string, fetch FetchFunc) (*matterhorn.Episode, error) {
	log := logger.FromContext(ctx, c.log)

	if raw, ok := c.lookup(ctx, log, mediaPackageID); ok {
		if bytes.Equal(raw, absentMarker) {
			c.hits.Add(1)
			return nil, nil
		}
		ep, err := matterhorn.ParseEpisode(raw)
		if err == nil {
			c.hits.Add(1)
			return ep, nil
		}
		log.Warn("Discarding undecodable cache entry",
			logger.String("mpid", mediaPackageID),
			logger.Error(err),
		)
	}
	c.misses.Add(1)

	raw, err := fetch(ctx, mediaPackageID)
	if errors.Is(err, matterhorn.ErrEpisodeNotFound) {
		c.store(ctx, log, mediaPackageID, absentMarker)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ep, err := matterhorn.ParseEpisode(raw)
	if err != nil {
		log.Warn("Treating malformed episode as absent",
			logger.String("mpid", mediaPackageID),
			logger.Error(err),
		)
		c.store(ctx, log, mediaPackageID, absentMarker)
		return nil, nil
	}

	c.store(ctx, log, mediaPackageID, raw)
	return ep, nil
}

func (c *EpisodeCache) store(ctx context.Context, log logger.Logger, mediaPackageID string, value []byte) {
	if err := c.backend.Set(ctx, mediaPackageID, value); err != nil {
		log.Warn("Episode cache write failed",
			logger.String("mpid", mediaPackageID),
			logger.Error(err),
		)
	}
}

func (c *EpisodeCache) lookup(ctx context.Context, log logger.Logger, mediaPackageID string) ([]byte, bool) {
	raw, ok, err := c.backend.Get(ctx, mediaPackageID)
	if err != nil {
		log.Warn("Episode cache read failed",
			logger.String("mpid", mediaPackageID),
			logger.Error(err),
		)
		return nil, false
	}
	return raw, ok
}

// Stats returns the hit and miss counts observed so far.
func (c *EpisodeCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
