package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/models"
	"github.com/aniflux/aniflux/internal/resolver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeEngine struct {
	result   *models.ResolvedSources
	err      error
	progress []resolver.ProgressEvent
}

func (f *fakeEngine) Resolve(ctx context.Context, ref models.EpisodeReference, category models.Category, opts resolver.Options) (*models.ResolvedSources, error) {
	if opts.Progress != nil {
		for _, ev := range f.progress {
			opts.Progress(ev)
		}
	}
	return f.result, f.err
}

func dialSession(t *testing.T, engine Resolver) *websocket.Conn {
	t.Helper()

	r := gin.New()
	handler := NewHandler(engine, true, testLogger())
	r.GET("/ws", handler.ServeWS)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSessionWelcome(t *testing.T) {
	conn := dialSession(t, &fakeEngine{})

	welcome := readFrame(t, conn)
	assert.Equal(t, "status", welcome.Type)
	assert.Equal(t, "connected", welcome.Message)
	assert.True(t, welcome.CacheEnabled)
}

func TestSessionResolvesSources(t *testing.T) {
	engine := &fakeEngine{
		progress: []resolver.ProgressEvent{
			{Server: "hd-1", ServerIndex: 0, TotalServers: 2},
			{Server: "hd-2", ServerIndex: 1, TotalServers: 2},
		},
		result: &models.ResolvedSources{
			Sources:    []models.SourceDescriptor{{URL: "https://cdn.test/master.m3u8", IsM3U8: true}},
			UsedServer: "hd-2",
		},
	}
	conn := dialSession(t, engine)
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:      "get_sources",
		EpisodeID: "naruto-100?ep=5",
		Category:  "sub",
	}))

	status := readFrame(t, conn)
	assert.Equal(t, "status", status.Type)
	assert.Equal(t, "resolving", status.Message)
	assert.Equal(t, "naruto-100?ep=5", status.EpisodeID)

	retry := readFrame(t, conn)
	assert.Equal(t, "retry", retry.Type)
	assert.Equal(t, "hd-1", retry.Server)
	assert.Equal(t, 2, retry.TotalServers)

	retry = readFrame(t, conn)
	assert.Equal(t, "hd-2", retry.Server)
	assert.Equal(t, 1, retry.ServerIndex)

	final := readFrame(t, conn)
	assert.Equal(t, "sources", final.Type)
	assert.Equal(t, "hd-2", final.Server)
	require.NotNil(t, final.Data)
	assert.Len(t, final.Data.Sources, 1)
}

func TestSessionExhaustionStillSendsSources(t *testing.T) {
	engine := &fakeEngine{result: &models.ResolvedSources{
		Sources:    []models.SourceDescriptor{},
		UsedServer: "iframe",
		EmbedURL:   "https://megaplay.buzz/watch/naruto-100?ep=5&category=sub",
	}}
	conn := dialSession(t, engine)
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "get_sources", EpisodeID: "naruto-100?ep=5"}))
	readFrame(t, conn) // resolving

	final := readFrame(t, conn)
	assert.Equal(t, "sources", final.Type)
	assert.Equal(t, "iframe", final.Server)
	assert.NotEmpty(t, final.Data.EmbedURL)
}

func TestSessionRejectsMissingEpisodeID(t *testing.T) {
	conn := dialSession(t, &fakeEngine{})
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "get_sources"}))

	errFrame := readFrame(t, conn)
	assert.Equal(t, "error", errFrame.Type)
	assert.Equal(t, apperrors.ErrorTypeInvalidRequest, errFrame.Code)
}

func TestSessionRejectsUnknownMessageType(t *testing.T) {
	conn := dialSession(t, &fakeEngine{})
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe"}))

	errFrame := readFrame(t, conn)
	assert.Equal(t, "error", errFrame.Type)
	assert.Equal(t, apperrors.ErrorTypeInvalidRequest, errFrame.Code)
}
