package aniapi

import (
	"encoding/json"

	apperrors "github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/models"
)

// The upstream API ships two envelope variants: a wrapped form
// {"data": {...}} and a bare payload. decodePayload tries the wrapped form
// first and falls back to decoding the payload directly. Field-level
// fallbacks (name vs title, url vs file, ...) live on the payload structs
// themselves so every alternate spelling is handled in exactly one place.
func decodePayload[T any](raw json.RawMessage) (*T, error) {
	var wrapped struct {
		Data *T `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}

	var direct T
	if err := json.Unmarshal(raw, &direct); err != nil {
		return nil, apperrors.NewUpstreamMalformed("unrecognized response shape", err)
	}
	return &direct, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// upstreamAnime covers the search entry variants: {id,name,poster} from the
// current API and {id,title,image} from the legacy one.
type upstreamAnime struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Poster   string `json:"poster"`
	Image    string `json:"image"`
	Type     string `json:"type"`
	Episodes struct {
		Sub int `json:"sub"`
		Dub int `json:"dub"`
	} `json:"episodes"`
}

type searchPayload struct {
	Animes      []upstreamAnime `json:"animes"`
	Results     []upstreamAnime `json:"results"`
	CurrentPage int             `json:"currentPage"`
	Page        int             `json:"page"`
	TotalPages  int             `json:"totalPages"`
	HasNextPage bool            `json:"hasNextPage"`
}

func normalizeSearch(raw json.RawMessage, requestedPage int) (*models.AnimeList, error) {
	payload, err := decodePayload[searchPayload](raw)
	if err != nil {
		return nil, err
	}

	entries := payload.Animes
	if len(entries) == 0 {
		entries = payload.Results
	}

	list := &models.AnimeList{
		Results:     make([]models.AnimeSummary, 0, len(entries)),
		Page:        firstPositive(payload.CurrentPage, payload.Page, requestedPage),
		TotalPages:  payload.TotalPages,
		HasNextPage: payload.HasNextPage,
	}
	for _, a := range entries {
		if a.ID == "" {
			continue
		}
		list.Results = append(list.Results, models.AnimeSummary{
			ID:       a.ID,
			Title:    firstNonEmpty(a.Name, a.Title),
			Poster:   firstNonEmpty(a.Poster, a.Image),
			Type:     a.Type,
			SubCount: a.Episodes.Sub,
			DubCount: a.Episodes.Dub,
		})
	}
	return list, nil
}

// infoPayload covers the nested {anime:{info,moreInfo}} shape and two
// flatter legacy shapes.
type infoPayload struct {
	Anime *struct {
		Info     *upstreamInfo     `json:"info"`
		MoreInfo *upstreamMoreInfo `json:"moreInfo"`
	} `json:"anime"`
	Info *upstreamInfo `json:"info"`

	// flat fallback
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Poster      string `json:"poster"`
}

type upstreamInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Poster      string `json:"poster"`
	Image       string `json:"image"`
	Description string `json:"description"`
	Stats       struct {
		Episodes struct {
			Sub int `json:"sub"`
			Dub int `json:"dub"`
		} `json:"episodes"`
	} `json:"stats"`
}

type upstreamMoreInfo struct {
	Genres []string `json:"genres"`
	Status string   `json:"status"`
}

func normalizeInfo(raw json.RawMessage, seriesID string) (*models.SeriesInfo, error) {
	payload, err := decodePayload[infoPayload](raw)
	if err != nil {
		return nil, err
	}

	info := payload.Info
	var more *upstreamMoreInfo
	if payload.Anime != nil {
		info = payload.Anime.Info
		more = payload.Anime.MoreInfo
	}

	result := &models.SeriesInfo{ID: seriesID}
	if info != nil {
		result.ID = firstNonEmpty(info.ID, seriesID)
		result.Title = firstNonEmpty(info.Name, info.Title)
		result.Poster = firstNonEmpty(info.Poster, info.Image)
		result.Description = info.Description
		result.TotalEpisodes = firstPositive(info.Stats.Episodes.Sub, info.Stats.Episodes.Dub)
	} else {
		result.ID = firstNonEmpty(payload.ID, seriesID)
		result.Title = firstNonEmpty(payload.Name, payload.Title)
		result.Poster = payload.Poster
		result.Description = payload.Description
	}
	if more != nil {
		result.Genres = more.Genres
		result.Status = more.Status
	}

	if result.Title == "" {
		return nil, apperrors.NewUpstreamMalformed("info response missing title", nil)
	}
	return result, nil
}

type episodesPayload struct {
	TotalEpisodes int               `json:"totalEpisodes"`
	Episodes      []upstreamEpisode `json:"episodes"`
}

type upstreamEpisode struct {
	EpisodeID string          `json:"episodeId"`
	ID        string          `json:"id"`
	Number    json.RawMessage `json:"number"`
	Title     string          `json:"title"`
	Name      string          `json:"name"`
	IsFiller  bool            `json:"isFiller"`
}

// numberString tolerates the episode number arriving as a JSON number or a
// quoted string.
func numberString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func normalizeEpisodes(raw json.RawMessage) ([]models.Episode, error) {
	payload, err := decodePayload[episodesPayload](raw)
	if err != nil {
		return nil, err
	}

	episodes := make([]models.Episode, 0, len(payload.Episodes))
	for _, e := range payload.Episodes {
		id := firstNonEmpty(e.EpisodeID, e.ID)
		if id == "" {
			continue
		}
		episodes = append(episodes, models.Episode{
			EpisodeID: id,
			Number:    numberString(e.Number),
			Title:     firstNonEmpty(e.Title, e.Name),
			IsFiller:  e.IsFiller,
		})
	}
	return episodes, nil
}

// serversPayload groups servers per category, the upstream's native shape.
type serversPayload struct {
	Sub []upstreamServer `json:"sub"`
	Dub []upstreamServer `json:"dub"`
	Raw []upstreamServer `json:"raw"`
}

type upstreamServer struct {
	ServerName string `json:"serverName"`
	Name       string `json:"name"`
}

func normalizeServers(raw json.RawMessage) ([]models.CandidateServer, error) {
	payload, err := decodePayload[serversPayload](raw)
	if err != nil {
		return nil, err
	}

	var servers []models.CandidateServer
	appendCategory := func(entries []upstreamServer, category models.Category) {
		for _, s := range entries {
			name := firstNonEmpty(s.ServerName, s.Name)
			if name == "" {
				continue
			}
			servers = append(servers, models.CandidateServer{Name: name, Category: category})
		}
	}
	appendCategory(payload.Sub, models.CategorySub)
	appendCategory(payload.Dub, models.CategoryDub)
	appendCategory(payload.Raw, models.CategoryRaw)
	return servers, nil
}

type sourcesPayload struct {
	Sources   []upstreamSource  `json:"sources"`
	Tracks    []upstreamTrack   `json:"tracks"`
	Subtitles []upstreamTrack   `json:"subtitles"`
	Headers   map[string]string `json:"headers"`
}

type upstreamSource struct {
	URL     string `json:"url"`
	File    string `json:"file"`
	Quality string `json:"quality"`
	Label   string `json:"label"`
	Type    string `json:"type"`
	IsM3U8  bool   `json:"isM3U8"`
}

type upstreamTrack struct {
	File  string `json:"file"`
	URL   string `json:"url"`
	Label string `json:"label"`
	Lang  string `json:"lang"`
	Kind  string `json:"kind"`
}

func normalizeSources(raw json.RawMessage) (*models.ResolvedSources, error) {
	payload, err := decodePayload[sourcesPayload](raw)
	if err != nil {
		return nil, err
	}

	result := &models.ResolvedSources{
		Sources: make([]models.SourceDescriptor, 0, len(payload.Sources)),
		Tracks:  make([]models.SubtitleTrack, 0, len(payload.Tracks)+len(payload.Subtitles)),
	}

	for _, s := range payload.Sources {
		u := firstNonEmpty(s.URL, s.File)
		if u == "" {
			continue
		}
		segmented := s.IsM3U8 || models.DetectSegmented(u, s.Type)
		result.Sources = append(result.Sources, models.SourceDescriptor{
			URL:     u,
			Quality: firstNonEmpty(s.Quality, s.Label, "default"),
			IsM3U8:  segmented,
			Headers: payload.Headers,
		})
	}

	appendTracks := func(entries []upstreamTrack) {
		for _, t := range entries {
			u := firstNonEmpty(t.File, t.URL)
			if u == "" || t.Kind == "thumbnails" {
				continue
			}
			result.Tracks = append(result.Tracks, models.SubtitleTrack{
				URL:      u,
				Language: firstNonEmpty(t.Label, t.Lang, "und"),
			})
		}
	}
	appendTracks(payload.Tracks)
	appendTracks(payload.Subtitles)

	return result, nil
}
