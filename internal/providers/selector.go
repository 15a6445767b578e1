package providers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aniflux/aniflux/internal/config"
	"github.com/aniflux/aniflux/internal/models"
)

// Selector routes every provider call to the configured adapter and performs
// a single level of fallback: primary, then secondary, on error only. Empty
// but valid results never trigger fallback; retrying across delivery servers
// is the resolution engine's job, not the selector's.
type Selector struct {
	primary   Provider
	secondary Provider
	mode      string
	logger    *logrus.Logger
}

// NewSelector creates a Selector for the given adapters and provider mode.
func NewSelector(primary, secondary Provider, mode string, logger *logrus.Logger) *Selector {
	return &Selector{
		primary:   primary,
		secondary: secondary,
		mode:      mode,
		logger:    logger,
	}
}

// ordered returns the adapters to consult, in order. The second entry is nil
// when fallback is disabled by configuration.
func (s *Selector) ordered() (Provider, Provider) {
	switch s.mode {
	case config.ModeAlternateOnly:
		return s.secondary, nil
	case config.ModePrimaryOnly:
		return s.primary, nil
	default:
		return s.primary, s.secondary
	}
}

// call invokes fn against the first adapter and falls back to the second on
// error. The first adapter's error propagates when no fallback exists; the
// second adapter's error propagates when both fail.
func call[T any](ctx context.Context, s *Selector, op string, fn func(context.Context, Provider) (T, error)) (T, error) {
	first, second := s.ordered()

	result, err := fn(ctx, first)
	if err == nil || second == nil {
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"provider": first.Name(),
		"op":       op,
	}).WithError(err).Warn("[Selector] primary provider failed, trying fallback")

	return fn(ctx, second)
}

// Search queries the active provider for a page of results.
func (s *Selector) Search(ctx context.Context, query string, page int) (*models.AnimeList, error) {
	return call(ctx, s, "search", func(ctx context.Context, p Provider) (*models.AnimeList, error) {
		return p.Search(ctx, query, page)
	})
}

// GetInfo fetches the detail view of one series.
func (s *Selector) GetInfo(ctx context.Context, seriesID string) (*models.SeriesInfo, error) {
	return call(ctx, s, "info", func(ctx context.Context, p Provider) (*models.SeriesInfo, error) {
		return p.GetInfo(ctx, seriesID)
	})
}

// GetEpisodes fetches the episode list of one series.
func (s *Selector) GetEpisodes(ctx context.Context, seriesID string) ([]models.Episode, error) {
	return call(ctx, s, "episodes", func(ctx context.Context, p Provider) ([]models.Episode, error) {
		return p.GetEpisodes(ctx, seriesID)
	})
}

// GetServers lists candidate delivery servers for an episode.
func (s *Selector) GetServers(ctx context.Context, ref models.EpisodeReference) ([]models.CandidateServer, error) {
	return call(ctx, s, "servers", func(ctx context.Context, p Provider) ([]models.CandidateServer, error) {
		return p.GetServers(ctx, ref)
	})
}

// GetSources fetches playable sources from one named server.
func (s *Selector) GetSources(ctx context.Context, ref models.EpisodeReference, server string, category models.Category) (*models.ResolvedSources, error) {
	return call(ctx, s, "sources", func(ctx context.Context, p Provider) (*models.ResolvedSources, error) {
		return p.GetSources(ctx, ref, server, category)
	})
}
