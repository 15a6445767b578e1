// Package discovery finds candidate delivery servers for an episode.
package discovery

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aniflux/aniflux/internal/constants"
	"github.com/aniflux/aniflux/internal/models"
)

// ServerLister is the slice of the provider selector discovery depends on.
type ServerLister interface {
	GetServers(ctx context.Context, ref models.EpisodeReference) ([]models.CandidateServer, error)
}

// Discovery asks the active provider for an episode's delivery servers and
// guarantees the caller at least one candidate: when the upstream call fails
// or reports nothing, a hard-coded priority list of well-known servers is
// returned instead.
type Discovery struct {
	selector ServerLister
	defaults []string
	logger   *logrus.Logger
}

// New creates a Discovery over the given selector.
func New(selector ServerLister, logger *logrus.Logger) *Discovery {
	return &Discovery{
		selector: selector,
		defaults: constants.DefaultServerPriority,
		logger:   logger,
	}
}

// Discover returns the episode's candidate servers, de-duplicated by
// (name, category) with upstream order preserved. It never returns an empty
// list and never fails.
func (d *Discovery) Discover(ctx context.Context, ref models.EpisodeReference) []models.CandidateServer {
	servers, err := d.selector.GetServers(ctx, ref)
	if err != nil {
		d.logger.WithError(err).WithField("episode", ref.EpisodeID()).
			Warn("[Discovery] server discovery failed, using default priority list")
		return d.defaultServers()
	}

	deduped := dedupe(servers)
	if len(deduped) == 0 {
		d.logger.WithField("episode", ref.EpisodeID()).
			Debug("[Discovery] upstream reported no servers, using default priority list")
		return d.defaultServers()
	}
	return deduped
}

// defaultServers materializes the priority list as sub-category candidates.
func (d *Discovery) defaultServers() []models.CandidateServer {
	servers := make([]models.CandidateServer, 0, len(d.defaults))
	for _, name := range d.defaults {
		servers = append(servers, models.CandidateServer{Name: name, Category: models.CategorySub})
	}
	return servers
}

func dedupe(servers []models.CandidateServer) []models.CandidateServer {
	seen := make(map[models.CandidateServer]struct{}, len(servers))
	result := make([]models.CandidateServer, 0, len(servers))
	for _, s := range servers {
		if s.Name == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	return result
}
