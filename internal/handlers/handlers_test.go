package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/history"
	"github.com/aniflux/aniflux/internal/models"
	"github.com/aniflux/aniflux/internal/resolver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCatalog struct {
	list     *models.AnimeList
	info     *models.SeriesInfo
	episodes []models.Episode
	err      error
}

func (f *fakeCatalog) Search(ctx context.Context, query string, page int) (*models.AnimeList, error) {
	return f.list, f.err
}

func (f *fakeCatalog) GetInfo(ctx context.Context, seriesID string) (*models.SeriesInfo, error) {
	return f.info, f.err
}

func (f *fakeCatalog) GetEpisodes(ctx context.Context, seriesID string) ([]models.Episode, error) {
	return f.episodes, f.err
}

type fakeDiscovery struct {
	servers []models.CandidateServer
}

func (f *fakeDiscovery) Discover(ctx context.Context, ref models.EpisodeReference) []models.CandidateServer {
	return f.servers
}

type fakeEngine struct {
	result  *models.ResolvedSources
	err     error
	lastRef models.EpisodeReference
	lastCat models.Category
	lastOpt resolver.Options
}

func (f *fakeEngine) Resolve(ctx context.Context, ref models.EpisodeReference, category models.Category, opts resolver.Options) (*models.ResolvedSources, error) {
	f.lastRef = ref
	f.lastCat = category
	f.lastOpt = opts
	return f.result, f.err
}

type fakeHistoryReader struct {
	entries []history.Entry
}

func (f *fakeHistoryReader) Recent(limit int) ([]history.Entry, error) {
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type fakeCacheStatus bool

func (f fakeCacheStatus) Enabled() bool { return bool(f) }

func newTestRouter(h *Handler) *gin.Engine {
	if h.logger == nil {
		h.logger = logrus.New()
		h.logger.SetLevel(logrus.PanicLevel)
	}
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func doGet(t *testing.T, r *gin.Engine, url string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	r.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&Handler{cache: fakeCacheStatus(true)})

	w, body := doGet(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["cache"])
}

func TestSearchRequiresQuery(t *testing.T) {
	r := newTestRouter(&Handler{catalog: &fakeCatalog{}})

	w, body := doGet(t, r, "/api/v1/anime/search")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	errObj := body["error"].(map[string]any)
	assert.Equal(t, apperrors.ErrorTypeInvalidRequest, errObj["type"])
}

func TestSearchSuccess(t *testing.T) {
	r := newTestRouter(&Handler{catalog: &fakeCatalog{list: &models.AnimeList{
		Results: []models.AnimeSummary{{ID: "naruto-100", Title: "Naruto"}},
		Page:    1,
	}}})

	w, body := doGet(t, r, "/api/v1/anime/search?q=naruto")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Len(t, data["results"], 1)
}

func TestSearchUpstreamFailureIsBadGateway(t *testing.T) {
	r := newTestRouter(&Handler{catalog: &fakeCatalog{
		err: apperrors.NewUpstreamUnavailable("upstream timeout", nil),
	}})

	w, _ := doGet(t, r, "/api/v1/anime/search?q=naruto")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestServersRequiresEpisodeID(t *testing.T) {
	r := newTestRouter(&Handler{discovery: &fakeDiscovery{}})

	w, _ := doGet(t, r, "/api/v1/streaming/servers")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServersSuccess(t *testing.T) {
	r := newTestRouter(&Handler{discovery: &fakeDiscovery{servers: []models.CandidateServer{
		{Name: "hd-1", Category: models.CategorySub},
	}}})

	w, body := doGet(t, r, "/api/v1/streaming/servers?animeEpisodeId=naruto-100%3Fep%3D5")
	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "naruto-100?ep=5", data["episodeId"])
	assert.Len(t, data["servers"], 1)
}

func TestSourcesRequiresEpisodeID(t *testing.T) {
	r := newTestRouter(&Handler{engine: &fakeEngine{}})

	w, _ := doGet(t, r, "/api/v1/streaming/sources")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSourcesRejectsUnknownCategory(t *testing.T) {
	r := newTestRouter(&Handler{engine: &fakeEngine{}})

	w, _ := doGet(t, r, "/api/v1/streaming/sources?animeEpisodeId=naruto-100%3Fep%3D5&category=subtitled")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSourcesSuccess(t *testing.T) {
	engine := &fakeEngine{result: &models.ResolvedSources{
		Sources:      []models.SourceDescriptor{{URL: "https://cdn.test/master.m3u8", Quality: "1080p", IsM3U8: true}},
		UsedServer:   "hd-2",
		ServerIndex:  1,
		TotalServers: 3,
	}}
	r := newTestRouter(&Handler{engine: engine})

	w, body := doGet(t, r, "/api/v1/streaming/sources?animeEpisodeId=naruto-100%3Fep%3D5&category=dub&server=hd-2")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "hd-2", body["server"])

	// Request parameters reach the engine intact.
	assert.Equal(t, models.EpisodeReference{SeriesID: "naruto-100", EpisodeNumber: "5"}, engine.lastRef)
	assert.Equal(t, models.CategoryDub, engine.lastCat)
	assert.Equal(t, "hd-2", engine.lastOpt.PreferredServer)
}

func TestSourcesExhaustionDefaultsToEmbed(t *testing.T) {
	r := newTestRouter(&Handler{engine: &fakeEngine{result: &models.ResolvedSources{
		Sources:    []models.SourceDescriptor{},
		UsedServer: "iframe",
		EmbedURL:   "https://megaplay.buzz/watch/naruto-100?ep=5&category=sub",
	}}})

	w, body := doGet(t, r, "/api/v1/streaming/sources?animeEpisodeId=naruto-100%3Fep%3D5")
	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "iframe", data["server"])
	assert.NotEmpty(t, data["iframe"])
}

func TestSourcesExhaustionWithFallbackIsNotFound(t *testing.T) {
	r := newTestRouter(&Handler{engine: &fakeEngine{result: &models.ResolvedSources{
		Sources:    []models.SourceDescriptor{},
		UsedServer: "iframe",
	}}})

	w, body := doGet(t, r, "/api/v1/streaming/sources?animeEpisodeId=naruto-100%3Fep%3D5&fallback=true")
	assert.Equal(t, http.StatusNotFound, w.Code)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, apperrors.ErrorTypeNoSourcesFound, errObj["type"])
}

func TestHistoryWithoutStore(t *testing.T) {
	r := newTestRouter(&Handler{})

	w, body := doGet(t, r, "/api/v1/streaming/history")
	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Empty(t, data["entries"])
}

func TestHistoryReturnsEntries(t *testing.T) {
	r := newTestRouter(&Handler{history: &fakeHistoryReader{entries: []history.Entry{
		{SeriesID: "naruto-100", Episode: "5", Category: "sub", Server: "hd-1", Quality: "1080p", ResolvedAt: time.Now()},
	}}})

	w, body := doGet(t, r, "/api/v1/streaming/history?limit=10")
	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Len(t, data["entries"], 1)
}
