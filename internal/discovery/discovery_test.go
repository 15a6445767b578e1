package discovery

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniflux/aniflux/internal/constants"
	apperrors "github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/models"
)

type fakeLister struct {
	servers []models.CandidateServer
	err     error
}

func (f *fakeLister) GetServers(ctx context.Context, ref models.EpisodeReference) ([]models.CandidateServer, error) {
	return f.servers, f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

var testRef = models.EpisodeReference{SeriesID: "naruto-100", EpisodeNumber: "5"}

func TestDiscoverPreservesUpstreamOrder(t *testing.T) {
	lister := &fakeLister{servers: []models.CandidateServer{
		{Name: "hd-2", Category: models.CategorySub},
		{Name: "hd-1", Category: models.CategorySub},
		{Name: "hd-1", Category: models.CategoryDub},
	}}

	servers := New(lister, testLogger()).Discover(context.Background(), testRef)
	require.Len(t, servers, 3)
	// No re-sorting: upstream order is the priority order.
	assert.Equal(t, "hd-2", servers[0].Name)
	assert.Equal(t, "hd-1", servers[1].Name)
}

func TestDiscoverDeduplicatesByNameAndCategory(t *testing.T) {
	lister := &fakeLister{servers: []models.CandidateServer{
		{Name: "hd-1", Category: models.CategorySub},
		{Name: "hd-1", Category: models.CategorySub},
		{Name: "hd-1", Category: models.CategoryDub},
		{Name: "", Category: models.CategorySub},
	}}

	servers := New(lister, testLogger()).Discover(context.Background(), testRef)
	assert.Equal(t, []models.CandidateServer{
		{Name: "hd-1", Category: models.CategorySub},
		{Name: "hd-1", Category: models.CategoryDub},
	}, servers)
}

func TestDiscoverFallsBackWhenUpstreamFails(t *testing.T) {
	lister := &fakeLister{err: apperrors.NewUpstreamUnavailable("boom", nil)}

	servers := New(lister, testLogger()).Discover(context.Background(), testRef)
	require.Len(t, servers, len(constants.DefaultServerPriority))
	for i, name := range constants.DefaultServerPriority {
		assert.Equal(t, name, servers[i].Name)
		assert.Equal(t, models.CategorySub, servers[i].Category)
	}
}

func TestDiscoverFallsBackWhenUpstreamIsEmpty(t *testing.T) {
	lister := &fakeLister{servers: nil}

	servers := New(lister, testLogger()).Discover(context.Background(), testRef)
	assert.Len(t, servers, len(constants.DefaultServerPriority))
}
