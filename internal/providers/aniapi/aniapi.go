// Package aniapi implements the primary provider adapter against an
// aniwatch-style HTTP API. Every response passes through an explicit
// normalization layer because the upstream wraps, renames and omits fields
// freely between versions.
package aniapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/aniflux/aniflux/internal/constants"
	apperrors "github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/models"
	"github.com/aniflux/aniflux/pkg/httputil"
)

const providerName = "aniapi"

// Client is the HTTP API provider adapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// New creates a Client for the given API base URL, e.g.
// "http://localhost:4001/api/v2/hianime".
func New(baseURL string, httpClient *http.Client, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(constants.UpstreamRateLimit), constants.UpstreamRateBurst),
		logger:     logger,
	}
}

// Name returns the adapter name used in logs and selection.
func (c *Client) Name() string { return providerName }

// fetch issues a rate-limited GET and returns the raw JSON body, classifying
// failures into the typed taxonomy.
func (c *Client) fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewUpstreamUnavailable("rate limit wait aborted", err)
	}

	var raw json.RawMessage
	if err := httputil.GetJSON(ctx, c.httpClient, rawURL, nil, &raw); err != nil {
		var decodeErr *httputil.DecodeError
		if errors.As(err, &decodeErr) {
			return nil, apperrors.NewUpstreamMalformed("upstream returned unparseable body", err)
		}
		return nil, apperrors.NewUpstreamUnavailable("upstream request failed", err)
	}
	return raw, nil
}

// Search queries the upstream search endpoint.
func (c *Client) Search(ctx context.Context, query string, page int) (*models.AnimeList, error) {
	if page < 1 {
		page = 1
	}
	u := fmt.Sprintf("%s/search?q=%s&page=%d", c.baseURL, url.QueryEscape(query), page)

	raw, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return normalizeSearch(raw, page)
}

// GetInfo fetches series details.
func (c *Client) GetInfo(ctx context.Context, seriesID string) (*models.SeriesInfo, error) {
	u := fmt.Sprintf("%s/anime/%s", c.baseURL, url.PathEscape(seriesID))

	raw, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return normalizeInfo(raw, seriesID)
}

// GetEpisodes fetches the episode list for a series.
func (c *Client) GetEpisodes(ctx context.Context, seriesID string) ([]models.Episode, error) {
	u := fmt.Sprintf("%s/anime/%s/episodes", c.baseURL, url.PathEscape(seriesID))

	raw, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return normalizeEpisodes(raw)
}

// GetServers lists the delivery servers the upstream reports for an episode.
func (c *Client) GetServers(ctx context.Context, ref models.EpisodeReference) ([]models.CandidateServer, error) {
	u := fmt.Sprintf("%s/episode/servers?animeEpisodeId=%s", c.baseURL, url.QueryEscape(ref.EpisodeID()))

	raw, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return normalizeServers(raw)
}

// GetSources fetches playable sources for an episode from one named server.
func (c *Client) GetSources(ctx context.Context, ref models.EpisodeReference, server string, category models.Category) (*models.ResolvedSources, error) {
	u := fmt.Sprintf("%s/episode/sources?animeEpisodeId=%s&server=%s&category=%s",
		c.baseURL, url.QueryEscape(ref.EpisodeID()), url.QueryEscape(server), category)

	raw, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	result, err := normalizeSources(raw)
	if err != nil {
		return nil, err
	}
	result.UsedServer = server
	return result, nil
}
