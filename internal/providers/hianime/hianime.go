// Package hianime implements the secondary provider adapter: an in-process
// scraper that parses the upstream site's HTML pages and ajax fragments
// directly, for deployments without a reachable API instance.
package hianime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/aniflux/aniflux/internal/constants"
	apperrors "github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/models"
)

const (
	providerName = "hianime"

	defaultBaseURL = "https://hianime.to"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"

	maxBodyBytes = 4 << 20
)

// Scraper is the HTML scraping provider adapter.
type Scraper struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// New creates a Scraper against the default upstream site.
func New(httpClient *http.Client, logger *logrus.Logger) *Scraper {
	return NewWithBaseURL(defaultBaseURL, httpClient, logger)
}

// NewWithBaseURL creates a Scraper against a specific site mirror.
func NewWithBaseURL(baseURL string, httpClient *http.Client, logger *logrus.Logger) *Scraper {
	return &Scraper{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(constants.UpstreamRateLimit), constants.UpstreamRateBurst),
		logger:     logger,
	}
}

// Name returns the adapter name used in logs and selection.
func (s *Scraper) Name() string { return providerName }

// get fetches a page or ajax fragment and returns the raw body.
func (s *Scraper) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewUpstreamUnavailable("rate limit wait aborted", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("failed to build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", s.baseURL+"/")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("upstream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewUpstreamUnavailable(
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, rawURL), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("failed to read response body", err)
	}
	return body, nil
}

// Search scrapes the site's search result grid.
func (s *Scraper) Search(ctx context.Context, query string, page int) (*models.AnimeList, error) {
	if page < 1 {
		page = 1
	}
	u := fmt.Sprintf("%s/search?keyword=%s&page=%d", s.baseURL, url.QueryEscape(query), page)

	body, err := s.get(ctx, u)
	if err != nil {
		return nil, err
	}
	return parseSearch(body, page)
}

// GetInfo scrapes the series detail page.
func (s *Scraper) GetInfo(ctx context.Context, seriesID string) (*models.SeriesInfo, error) {
	body, err := s.get(ctx, fmt.Sprintf("%s/%s", s.baseURL, url.PathEscape(seriesID)))
	if err != nil {
		return nil, err
	}
	return parseInfo(body, seriesID)
}

// GetEpisodes fetches the ajax episode list fragment. The fragment endpoint
// is keyed by the numeric suffix of the series id.
func (s *Scraper) GetEpisodes(ctx context.Context, seriesID string) ([]models.Episode, error) {
	numericID, err := numericSuffix(seriesID)
	if err != nil {
		return nil, err
	}

	body, err := s.get(ctx, fmt.Sprintf("%s/ajax/v2/episode/list/%s", s.baseURL, numericID))
	if err != nil {
		return nil, err
	}

	fragment, err := ajaxHTML(body)
	if err != nil {
		return nil, err
	}
	return parseEpisodes(fragment, seriesID)
}

// GetServers fetches the ajax server list fragment for one episode.
func (s *Scraper) GetServers(ctx context.Context, ref models.EpisodeReference) ([]models.CandidateServer, error) {
	body, err := s.get(ctx, fmt.Sprintf("%s/ajax/v2/episode/servers?episodeId=%s",
		s.baseURL, url.QueryEscape(ref.EpisodeNumber)))
	if err != nil {
		return nil, err
	}

	fragment, err := ajaxHTML(body)
	if err != nil {
		return nil, err
	}
	servers, _ := parseServers(fragment)
	return servers, nil
}

// GetSources resolves an episode's embed link for one named server. The
// scraper cannot unpack the embed's inner manifest, so it reports the embed
// link itself as a single source.
func (s *Scraper) GetSources(ctx context.Context, ref models.EpisodeReference, server string, category models.Category) (*models.ResolvedSources, error) {
	body, err := s.get(ctx, fmt.Sprintf("%s/ajax/v2/episode/servers?episodeId=%s",
		s.baseURL, url.QueryEscape(ref.EpisodeNumber)))
	if err != nil {
		return nil, err
	}

	fragment, err := ajaxHTML(body)
	if err != nil {
		return nil, err
	}

	_, entries := parseServers(fragment)
	sourceID := ""
	for _, e := range entries {
		if strings.EqualFold(e.Name, server) && e.Category == category {
			sourceID = e.SourceID
			break
		}
	}
	if sourceID == "" {
		// Server not offered for this episode/category; empty result so
		// the engine moves on to the next candidate.
		return &models.ResolvedSources{
			Sources:    []models.SourceDescriptor{},
			Tracks:     []models.SubtitleTrack{},
			UsedServer: server,
		}, nil
	}

	linkBody, err := s.get(ctx, fmt.Sprintf("%s/ajax/v2/episode/sources?id=%s", s.baseURL, url.QueryEscape(sourceID)))
	if err != nil {
		return nil, err
	}
	return parseSourceLink(linkBody, server)
}
