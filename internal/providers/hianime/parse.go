package hianime

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/models"
)

var trailingDigits = regexp.MustCompile(`-(\d+)$`)

// numericSuffix extracts the numeric site id from a slug like
// "naruto-100" or "one-piece-100?ep=3".
func numericSuffix(seriesID string) (string, error) {
	slug, _, _ := strings.Cut(seriesID, "?")
	m := trailingDigits.FindStringSubmatch(slug)
	if m == nil {
		return "", apperrors.NewInvalidRequest("series id has no numeric suffix: " + seriesID)
	}
	return m[1], nil
}

// ajaxHTML unwraps the {"status":true,"html":"..."} envelope the site's ajax
// endpoints answer with.
func ajaxHTML(body []byte) ([]byte, error) {
	var envelope struct {
		HTML string `json:"html"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apperrors.NewUpstreamMalformed("ajax response is not JSON", err)
	}
	if envelope.HTML == "" {
		return nil, apperrors.NewUpstreamMalformed("ajax response carries no html fragment", nil)
	}
	return []byte(envelope.HTML), nil
}

func parseSearch(body []byte, page int) (*models.AnimeList, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewUpstreamMalformed("search page did not parse", err)
	}

	list := &models.AnimeList{Results: []models.AnimeSummary{}, Page: page}
	doc.Find(".film_list-wrap .flw-item").Each(func(_ int, item *goquery.Selection) {
		link := item.Find(".film-detail .film-name a").First()
		href := link.AttrOr("href", "")
		id := strings.TrimPrefix(strings.SplitN(href, "?", 2)[0], "/")
		if id == "" {
			return
		}
		list.Results = append(list.Results, models.AnimeSummary{
			ID:     id,
			Title:  strings.TrimSpace(link.Text()),
			Poster: item.Find("img.film-poster-img").AttrOr("data-src", ""),
			Type:   strings.TrimSpace(item.Find(".fd-infor .fdi-item").First().Text()),
		})
	})

	list.HasNextPage = doc.Find(".pagination .page-item a[title=\"Next\"]").Length() > 0
	return list, nil
}

func parseInfo(body []byte, seriesID string) (*models.SeriesInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewUpstreamMalformed("detail page did not parse", err)
	}

	info := &models.SeriesInfo{
		ID:          seriesID,
		Title:       strings.TrimSpace(doc.Find(".anisc-detail .film-name").First().Text()),
		Description: strings.TrimSpace(doc.Find(".film-description .text").First().Text()),
		Poster:      doc.Find(".film-poster img").First().AttrOr("src", ""),
	}

	doc.Find(".anisc-info .item").Each(func(_ int, item *goquery.Selection) {
		head := strings.TrimSpace(item.Find(".item-head").Text())
		switch {
		case strings.HasPrefix(head, "Genres"):
			item.Find("a").Each(func(_ int, a *goquery.Selection) {
				if g := strings.TrimSpace(a.Text()); g != "" {
					info.Genres = append(info.Genres, g)
				}
			})
		case strings.HasPrefix(head, "Status"):
			info.Status = strings.TrimSpace(item.Find(".name").Text())
		}
	})

	if info.Title == "" {
		return nil, apperrors.NewUpstreamMalformed("detail page missing title", nil)
	}
	return info, nil
}

func parseEpisodes(fragment []byte, seriesID string) ([]models.Episode, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return nil, apperrors.NewUpstreamMalformed("episode fragment did not parse", err)
	}

	var episodes []models.Episode
	doc.Find("a.ep-item").Each(func(_ int, item *goquery.Selection) {
		epNum := item.AttrOr("data-id", "")
		if epNum == "" {
			return
		}
		ref := models.EpisodeReference{SeriesID: seriesID, EpisodeNumber: epNum}
		episodes = append(episodes, models.Episode{
			EpisodeID: ref.EpisodeID(),
			Number:    item.AttrOr("data-number", ""),
			Title:     strings.TrimSpace(item.AttrOr("title", "")),
			IsFiller:  item.HasClass("ssl-item-filler"),
		})
	})
	return episodes, nil
}

// serverEntry pairs a candidate server with the site-internal id needed to
// request its embed link.
type serverEntry struct {
	Name     string
	Category models.Category
	SourceID string
}

func parseServers(fragment []byte) ([]models.CandidateServer, []serverEntry) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return nil, nil
	}

	var servers []models.CandidateServer
	var entries []serverEntry
	doc.Find(".server-item").Each(func(_ int, item *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(item.Text()))
		if name == "" {
			return
		}
		category, err := models.ParseCategory(item.AttrOr("data-type", "sub"))
		if err != nil {
			return
		}
		servers = append(servers, models.CandidateServer{Name: name, Category: category})
		entries = append(entries, serverEntry{
			Name:     name,
			Category: category,
			SourceID: item.AttrOr("data-id", ""),
		})
	})
	return servers, entries
}

func parseSourceLink(body []byte, server string) (*models.ResolvedSources, error) {
	var payload struct {
		Link string `json:"link"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewUpstreamMalformed("source link response is not JSON", err)
	}

	result := &models.ResolvedSources{
		Sources:    []models.SourceDescriptor{},
		Tracks:     []models.SubtitleTrack{},
		UsedServer: server,
	}
	if payload.Link != "" {
		result.Sources = append(result.Sources, models.SourceDescriptor{
			URL:     payload.Link,
			Quality: "auto",
			IsM3U8:  models.DetectSegmented(payload.Link, payload.Type),
		})
	}
	return result, nil
}
