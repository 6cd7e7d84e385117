// Package enrich joins raw actions with episode metadata to produce output records.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/cache"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/matterhorn"
)

// AnonymousUser is the huid of actions without a user id.
const AnonymousUser = "None"

// ErrMalformedSession is wrapped by EnrichmentError when the session block is unusable.
var ErrMalformedSession = errors.New("malformed session")

// EnrichmentError reports an action that cannot be turned into a record.
type EnrichmentError struct {
	ActionID int64
	Reason   string
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich action %d: %s", e.ActionID, e.Reason)
}

// Unwrap allows errors.Is(err, ErrMalformedSession).
func (e *EnrichmentError) Unwrap() error {
	return ErrMalformedSession
}

// EpisodeResolver resolves episodes by media package id; nil means absent.
type EpisodeResolver interface {
	Resolve(ctx context.Context, mediaPackageID string, fetch cache.FetchFunc) (*matterhorn.Episode, error)
}

// Enricher builds EnrichedRecords.
type Enricher struct {
	resolver EpisodeResolver
	fetch    cache.FetchFunc
	log      logger.Logger
}

// New creates an Enricher that resolves episodes through resolver, loading misses with fetch.
func New(resolver EpisodeResolver, fetch cache.FetchFunc, log logger.Logger) *Enricher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Enricher{resolver: resolver, fetch: fetch, log: log}
}

// Enrich converts action into a record. The action is not modified.
//
// An unusable session block yields *EnrichmentError. Failing to load the episode for
// any other reason than absence is returned as a wrapped resolver error; either way
// the caller drops this record and carries on with the rest of the batch.
func (e *Enricher) Enrich(ctx context.Context, action matterhorn.Action) (*EnrichedRecord, error) {
	session, err := matterhorn.ParseSession(action.Session)
	if err != nil {
		return nil, &EnrichmentError{ActionID: action.ID, Reason: err.Error()}
	}
	if session.SessionID == "" {
		return nil, &EnrichmentError{ActionID: action.ID, Reason: "missing session id"}
	}

	ip, proxies, ok := ParseIPs(session.UserIP)
	if !ok {
		return nil, &EnrichmentError{ActionID: action.ID, Reason: "empty user ip"}
	}

	rec := &EnrichedRecord{
		ActionID:       action.ID,
		Timestamp:      action.Created.UTC().Format(time.RFC3339),
		MediaPackageID: action.MediaPackageID,
		SessionID:      session.SessionID,
		HUID:           AnonymousUser,
		UserAgent:      session.UserAgent,
		Action: ActionInfo{
			Type:      action.Type,
			Inpoint:   action.Inpoint,
			Outpoint:  action.Outpoint,
			Length:    action.Length,
			IsPlaying: action.IsPlaying,
		},
		IP:      ip,
		Proxies: proxies,
		Created: action.Created,
	}
	if session.UserID != nil {
		rec.HUID = *session.UserID
	}

	ep, err := e.resolver.Resolve(ctx, action.MediaPackageID, e.fetch)
	if err != nil {
		return nil, fmt.Errorf("resolve episode %s for action %d: %w", action.MediaPackageID, action.ID, err)
	}
	if ep == nil {
		logger.FromContext(ctx, e.log).Debug("No episode for action",
			logger.Int64("action_id", action.ID),
			logger.String("mpid", action.MediaPackageID),
		)
		return rec, nil
	}

	if IsLive(action.Created, ep) {
		rec.IsLive = 1
	}
	rec.Episode = episodeInfo(ep)
	return rec, nil
}

func episodeInfo(ep *matterhorn.Episode) EpisodeInfo {
	info := EpisodeInfo{
		Course:      ep.SeriesTitle,
		Title:       ep.Title,
		Series:      ep.Series,
		Type:        ep.DCType,
		Description: ep.DCDescription,
	}
	info.Year, _ = ep.Year()
	info.Term, _ = ep.Term()
	info.CDN, _ = ep.CDN()
	return info
}

// ParseIPs splits a comma separated address chain into the client address and the
// proxies it traversed, in order. ok is false when no client address is present.
func ParseIPs(chain string) (ip string, proxies []string, ok bool) {
	parts := strings.Split(chain, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" {
		return "", nil, false
	}
	if len(parts) > 1 {
		proxies = parts[1:]
	}
	return parts[0], proxies, true
}

// IsLive reports whether created falls on or before the end of the episode recording,
// compared at millisecond precision. Episodes without a start are never live.
func IsLive(created time.Time, ep *matterhorn.Episode) bool {
	if ep == nil || ep.Start.IsZero() {
		return false
	}
	return created.UnixMilli() <= ep.End().UnixMilli()
}
