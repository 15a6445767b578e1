// Package providers defines the upstream provider contract and the
// primary/secondary selection logic.
package providers

import (
	"context"

	"github.com/aniflux/aniflux/internal/models"
)

// Provider is the canonical capability surface every upstream data source
// implements, whether it wraps an HTTP API or scrapes pages in-process.
// Methods return typed errors for transport failures and empty (never nil
// for slices inside results) values for missing upstream data.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, page int) (*models.AnimeList, error)
	GetInfo(ctx context.Context, seriesID string) (*models.SeriesInfo, error)
	GetEpisodes(ctx context.Context, seriesID string) ([]models.Episode, error)
	GetServers(ctx context.Context, ref models.EpisodeReference) ([]models.CandidateServer, error)
	GetSources(ctx context.Context, ref models.EpisodeReference, server string, category models.Category) (*models.ResolvedSources, error)
}
