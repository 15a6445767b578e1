// Package handlers implements the HTTP API surface.
package handlers

import (
	"context"
	goerrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aniflux/aniflux/internal/constants"
	"github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/history"
	"github.com/aniflux/aniflux/internal/models"
	"github.com/aniflux/aniflux/internal/resolver"
	"github.com/aniflux/aniflux/internal/services"
)

type catalogProvider interface {
	Search(ctx context.Context, query string, page int) (*models.AnimeList, error)
	GetInfo(ctx context.Context, seriesID string) (*models.SeriesInfo, error)
	GetEpisodes(ctx context.Context, seriesID string) ([]models.Episode, error)
}

type serverDiscoverer interface {
	Discover(ctx context.Context, ref models.EpisodeReference) []models.CandidateServer
}

type sourceResolver interface {
	Resolve(ctx context.Context, ref models.EpisodeReference, category models.Category, opts resolver.Options) (*models.ResolvedSources, error)
}

type historyReader interface {
	Recent(limit int) ([]history.Entry, error)
}

type cacheStatus interface {
	Enabled() bool
}

// Handler handles HTTP requests for the streaming API.
type Handler struct {
	catalog   catalogProvider
	discovery serverDiscoverer
	engine    sourceResolver
	history   historyReader
	cache     cacheStatus
	logger    *logrus.Logger
}

// New creates a Handler wired from the service container.
func New(c *services.Container) *Handler {
	h := &Handler{
		catalog:   c.Selector,
		discovery: c.Discovery,
		engine:    c.Engine,
		cache:     c.Cache,
		logger:    c.Logger,
	}
	if c.History != nil {
		h.history = c.History
	}
	return h
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.handleHealth)

	api := r.Group("/api/v1")
	{
		api.GET("/anime/search", h.handleSearch)
		api.GET("/anime/:id", h.handleInfo)
		api.GET("/anime/:id/episodes", h.handleEpisodes)

		api.GET("/streaming/servers", h.handleServers)
		api.GET("/streaming/sources", h.handleSources)
		api.GET("/streaming/history", h.handleHistory)
	}
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": constants.AppVersion,
		"cache":   h.cache.Enabled(),
	})
}

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError maps the error taxonomy onto HTTP status codes. Upstream
// failures are the upstream's fault, not the caller's, hence 502.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	errType := "INTERNAL"

	var re *errors.ResolveError
	if goerrors.As(err, &re) {
		errType = re.Type
		switch re.Type {
		case errors.ErrorTypeInvalidRequest:
			status = http.StatusBadRequest
		case errors.ErrorTypeNoSourcesFound:
			status = http.StatusNotFound
		case errors.ErrorTypeUpstreamUnavailable, errors.ErrorTypeUpstreamMalformed:
			status = http.StatusBadGateway
		}
	}

	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"type":    errType,
			"message": err.Error(),
		},
	})
}
