// Package resolver implements the source resolution engine: given an episode
// and a category it walks the candidate delivery servers in priority order
// until one yields playable sources, memoizing the winner and remembering
// the losers.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/aniflux/aniflux/internal/constants"
	"github.com/aniflux/aniflux/internal/models"
)

// errNoStreams marks a server that answered but offered nothing playable.
// The walk treats it exactly like a transport failure.
var errNoStreams = errors.New("no playable streams in response")

// SourceFetcher fetches the source list for one (episode, server, category)
// triple. Satisfied by the provider selector.
type SourceFetcher interface {
	GetSources(ctx context.Context, ref models.EpisodeReference, server string, category models.Category) (*models.ResolvedSources, error)
}

// ServerDiscoverer lists candidate servers for an episode. Satisfied by
// discovery.Discovery.
type ServerDiscoverer interface {
	Discover(ctx context.Context, ref models.EpisodeReference) []models.CandidateServer
}

// ResultCache memoizes resolution outcomes. Satisfied by cache.SourceCache.
type ResultCache interface {
	Get(ctx context.Context, ref models.EpisodeReference, category models.Category) (*models.CacheEntry, bool)
	RecordSuccess(ctx context.Context, ref models.EpisodeReference, category models.Category, server string, failed []string)
	RecordFailure(ctx context.Context, ref models.EpisodeReference, category models.Category, server string)
}

// HistoryRecorder receives one record per successful resolution.
type HistoryRecorder interface {
	Record(ctx context.Context, ref models.EpisodeReference, category models.Category, server, quality string)
}

// ProgressEvent is emitted before each server attempt. ServerIndex is the
// zero-based position of the attempt in the walk order.
type ProgressEvent struct {
	Server       string
	ServerIndex  int
	TotalServers int
}

// ProgressFunc observes the engine's walk. Called synchronously; keep it fast.
type ProgressFunc func(ProgressEvent)

// Options tune a single resolution.
type Options struct {
	// PreferredServer, when set, is tried first if discovery offers it.
	PreferredServer string
	// Progress, when set, is called before every server attempt.
	Progress ProgressFunc
}

// Engine drives the resolution walk.
type Engine struct {
	fetcher    SourceFetcher
	discoverer ServerDiscoverer
	cache      ResultCache
	history    HistoryRecorder
	logger     *logrus.Logger
	retryDelay time.Duration
	embedBase  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryDelay overrides the pause between consecutive server attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) { e.retryDelay = d }
}

// WithEmbedBase overrides the base URL of the last-resort embed viewer.
func WithEmbedBase(base string) Option {
	return func(e *Engine) { e.embedBase = base }
}

// WithHistory attaches a recorder that is notified of every successful
// resolution.
func WithHistory(h HistoryRecorder) Option {
	return func(e *Engine) { e.history = h }
}

// New creates an Engine over the given collaborators.
func New(fetcher SourceFetcher, discoverer ServerDiscoverer, cache ResultCache, logger *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{
		fetcher:    fetcher,
		discoverer: discoverer,
		cache:      cache,
		logger:     logger,
		retryDelay: constants.DefaultRetryDelay,
		embedBase:  constants.DefaultEmbedBase,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve finds playable sources for the episode. The walk is:
//
//  1. If the cache memoizes a known-good server, try it alone first; a hit
//     short-circuits everything else.
//  2. Otherwise discover the candidate servers, drop those outside the
//     requested category and those already recorded as failed, and try the
//     remainder one at a time with a fixed pause in between. The first
//     server that yields a non-empty source list wins and is memoized.
//  3. When every candidate fails, the result carries no sources, the
//     sentinel server name and a deterministic embed viewer URL so the
//     client still has something to show.
//
// Resolve fails only on context cancellation; exhaustion is a valid result,
// not an error.
func (e *Engine) Resolve(ctx context.Context, ref models.EpisodeReference, category models.Category, opts Options) (*models.ResolvedSources, error) {
	log := e.logger.WithFields(logrus.Fields{
		"episode":  ref.EpisodeID(),
		"category": category,
	})

	entry, cached := e.cache.Get(ctx, ref, category)
	if !cached {
		entry = &models.CacheEntry{}
	}

	excluded := make(map[string]bool, len(entry.FailedServers))
	for _, s := range entry.FailedServers {
		excluded[s] = true
	}

	if entry.Server != "" && !excluded[entry.Server] {
		log.WithField("server", entry.Server).Debug("[Resolver] trying memoized server")
		result, err := e.attempt(ctx, ref, entry.Server, category)
		if err == nil {
			e.cache.RecordSuccess(ctx, ref, category, entry.Server, nil)
			result.UsedServer = entry.Server
			result.ServerIndex = 0
			result.TotalServers = 1
			result.FromCache = true
			e.record(ctx, ref, category, result)
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithField("server", entry.Server).WithError(err).
			Info("[Resolver] memoized server failed, walking discovery order")
		e.cache.RecordFailure(ctx, ref, category, entry.Server)
		excluded[entry.Server] = true
	}

	candidates := e.candidates(ctx, ref, category, excluded, opts.PreferredServer)
	log.WithField("candidates", len(candidates)).Debug("[Resolver] starting server walk")

	pause := backoff.NewConstantBackOff(e.retryDelay)
	var failed []string
	for i, server := range candidates {
		if i > 0 {
			if err := sleep(ctx, pause.NextBackOff()); err != nil {
				return nil, err
			}
		}
		if opts.Progress != nil {
			opts.Progress(ProgressEvent{
				Server:       server.Name,
				ServerIndex:  i,
				TotalServers: len(candidates),
			})
		}

		result, err := e.attempt(ctx, ref, server.Name, category)
		if err == nil {
			e.cache.RecordSuccess(ctx, ref, category, server.Name, failed)
			result.UsedServer = server.Name
			result.ServerIndex = i
			result.TotalServers = len(candidates)
			e.record(ctx, ref, category, result)
			log.WithFields(logrus.Fields{
				"server":  server.Name,
				"attempt": i + 1,
			}).Info("[Resolver] resolved sources")
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithField("server", server.Name).WithError(err).Debug("[Resolver] server attempt failed")
		e.cache.RecordFailure(ctx, ref, category, server.Name)
		failed = append(failed, server.Name)
	}

	log.WithField("attempted", len(candidates)).Warn("[Resolver] all servers exhausted, falling back to embed viewer")
	return &models.ResolvedSources{
		Sources:      []models.SourceDescriptor{},
		Tracks:       []models.SubtitleTrack{},
		UsedServer:   constants.FallbackServerName,
		TotalServers: len(candidates),
		EmbedURL:     e.embedURL(ref, category),
	}, nil
}

// attempt fetches from a single server. An empty source list counts as a
// failure so the walk moves on.
func (e *Engine) attempt(ctx context.Context, ref models.EpisodeReference, server string, category models.Category) (*models.ResolvedSources, error) {
	result, err := e.fetcher.GetSources(ctx, ref, server, category)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Sources) == 0 {
		return nil, errNoStreams
	}
	return result, nil
}

// candidates builds the ordered walk list: discovery order, category
// filtered, failed servers dropped, preferred server (if present) moved to
// the front.
func (e *Engine) candidates(ctx context.Context, ref models.EpisodeReference, category models.Category, excluded map[string]bool, preferred string) []models.CandidateServer {
	discovered := e.discoverer.Discover(ctx, ref)

	candidates := make([]models.CandidateServer, 0, len(discovered))
	for _, s := range discovered {
		if s.Category != category || excluded[s.Name] {
			continue
		}
		candidates = append(candidates, s)
	}

	if preferred != "" {
		for i, s := range candidates {
			if s.Name == preferred && i > 0 {
				candidates = append(candidates[:i], candidates[i+1:]...)
				candidates = append([]models.CandidateServer{s}, candidates...)
				break
			}
		}
	}
	return candidates
}

func (e *Engine) record(ctx context.Context, ref models.EpisodeReference, category models.Category, result *models.ResolvedSources) {
	if e.history == nil {
		return
	}
	quality := ""
	if len(result.Sources) > 0 {
		quality = result.Sources[0].Quality
	}
	e.history.Record(ctx, ref, category, result.UsedServer, quality)
}

// embedURL builds the last-resort viewer page URL. Pure function of the
// episode, category and configured base.
func (e *Engine) embedURL(ref models.EpisodeReference, category models.Category) string {
	u := e.embedBase + "/watch/" + ref.SeriesID
	if ref.EpisodeNumber != "" {
		return u + "?ep=" + ref.EpisodeNumber + "&category=" + string(category)
	}
	return u + "?category=" + string(category)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
