package history

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timshannon/bolthold"

	"github.com/aniflux/aniflux/internal/constants"
	"github.com/aniflux/aniflux/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ref := models.EpisodeReference{SeriesID: "naruto-100", EpisodeNumber: "5"}

	store.Record(ctx, ref, models.CategorySub, "hd-1", "1080p")
	store.Record(ctx, ref, models.CategorySub, "hd-2", "720p")

	entries, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Most recent first.
	assert.Equal(t, "hd-2", entries[0].Server)
	assert.Equal(t, "naruto-100?ep=5", entries[0].EpisodeID())
	assert.Equal(t, "sub", entries[0].Category)
}

func TestRecentClampsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < constants.DefaultHistoryLimit+5; i++ {
		store.Record(ctx, models.EpisodeReference{SeriesID: "bleach-806", EpisodeNumber: "1"},
			models.CategorySub, "hd-1", "auto")
	}

	entries, err := store.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, constants.DefaultHistoryLimit)

	entries, err = store.Recent(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPruneRemovesOnlyStaleEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ref := models.EpisodeReference{SeriesID: "one-piece-100", EpisodeNumber: "9"}

	store.Record(ctx, ref, models.CategoryDub, "megacloud", "1080p")

	// Backdate a second entry past the retention window.
	stale := &Entry{
		SeriesID:   ref.SeriesID,
		Episode:    ref.EpisodeNumber,
		Category:   "dub",
		Server:     "streamtape",
		ResolvedAt: time.Now().UTC().Add(-constants.HistoryRetention - time.Hour),
	}
	require.NoError(t, store.store.Insert(bolthold.NextSequence(), stale))

	removed, err := store.Prune(constants.HistoryRetention)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "megacloud", entries[0].Server)
}

func TestPruneNothingStale(t *testing.T) {
	store := newTestStore(t)
	store.Record(context.Background(),
		models.EpisodeReference{SeriesID: "frieren-18542", EpisodeNumber: "3"},
		models.CategorySub, "hd-1", "1080p")

	removed, err := store.Prune(constants.HistoryRetention)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
