// Package models defines the canonical data model shared by providers,
// the resolution engine and the API surface.
package models

import (
	"strings"
	"time"

	"github.com/aniflux/aniflux/internal/errors"
)

// Category is the audio/subtitle track variant of an episode.
type Category string

const (
	CategorySub Category = "sub"
	CategoryDub Category = "dub"
	CategoryRaw Category = "raw"
)

// ParseCategory maps a caller-supplied category string to a Category.
// An empty value defaults to sub; unknown values are rejected.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return CategorySub, nil
	case "sub":
		return CategorySub, nil
	case "dub":
		return CategoryDub, nil
	case "raw":
		return CategoryRaw, nil
	default:
		return "", errors.NewInvalidRequest("category must be one of sub, dub, raw")
	}
}

const episodeSeparator = "?ep="

// EpisodeReference identifies one watchable unit. It is derived from the
// compound identifier "seriesId?ep=episodeNumber".
type EpisodeReference struct {
	SeriesID      string `json:"seriesId"`
	EpisodeNumber string `json:"episodeNumber"`
}

// ParseEpisodeID splits a compound episode identifier into its series id and
// episode number. A missing episode part yields an empty episode number.
func ParseEpisodeID(id string) (EpisodeReference, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return EpisodeReference{}, errors.NewInvalidRequest("episodeId is required")
	}

	seriesID, episode, _ := strings.Cut(id, episodeSeparator)
	return EpisodeReference{
		SeriesID:      seriesID,
		EpisodeNumber: episode,
	}, nil
}

// EpisodeID reconstructs the compound identifier. Round-trips with
// ParseEpisodeID for any series id that does not itself contain "?ep=".
func (r EpisodeReference) EpisodeID() string {
	if r.EpisodeNumber == "" {
		return r.SeriesID
	}
	return r.SeriesID + episodeSeparator + r.EpisodeNumber
}

// CandidateServer is one named upstream delivery endpoint for an episode.
// Identity is the (name, category) pair.
type CandidateServer struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

// SourceDescriptor is one concrete playable stream.
type SourceDescriptor struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	// IsM3U8 is true for HLS-style segmented manifests. Upstream "type"
	// fields and URL extensions can disagree, so both are checked at
	// normalization time (see DetectSegmented).
	IsM3U8  bool              `json:"isM3U8"`
	Headers map[string]string `json:"headers,omitempty"`
}

// DetectSegmented reports whether a stream is an HLS-style segmented
// manifest. The upstream type hint alone is not trusted: a ".m3u8" URL is
// segmented no matter what the upstream claims.
func DetectSegmented(rawURL, upstreamType string) bool {
	if strings.Contains(strings.ToLower(rawURL), ".m3u8") {
		return true
	}
	switch strings.ToLower(upstreamType) {
	case "hls", "m3u8", "application/vnd.apple.mpegurl", "application/x-mpegurl":
		return true
	}
	return false
}

// SubtitleTrack is one subtitle file attached to a source list.
type SubtitleTrack struct {
	URL      string `json:"url"`
	Language string `json:"lang"`
}

// ResolvedSources is the aggregate result of one source resolution.
// Sources is empty only when every candidate server failed, in which case
// EmbedURL carries a last-resort embeddable viewer page and UsedServer is
// "iframe".
type ResolvedSources struct {
	Sources      []SourceDescriptor `json:"sources"`
	Tracks       []SubtitleTrack    `json:"tracks"`
	UsedServer   string             `json:"server"`
	ServerIndex  int                `json:"serverIndex"`
	TotalServers int                `json:"totalServers"`
	FromCache    bool               `json:"fromCache"`
	EmbedURL     string             `json:"iframe,omitempty"`
}

// CacheEntry is the per-(episode, category) memo held by the result cache.
type CacheEntry struct {
	Server        string    `json:"server"`
	SuccessCount  int       `json:"successCount"`
	LastSuccessAt time.Time `json:"lastSuccessAt"`
	FailedServers []string  `json:"failedServers"`
}

// HasFailed reports whether a server is on the entry's failed list.
func (e *CacheEntry) HasFailed(server string) bool {
	for _, s := range e.FailedServers {
		if s == server {
			return true
		}
	}
	return false
}

// AddFailed appends a server to the failed list if not already present.
// The list only grows within an entry's lifetime.
func (e *CacheEntry) AddFailed(server string) {
	if server == "" || e.HasFailed(server) {
		return
	}
	e.FailedServers = append(e.FailedServers, server)
}
