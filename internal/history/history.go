// Package history persists a log of successful source resolutions using
// BoltDB. Writes are best-effort: a broken history store never fails a
// resolution.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/aniflux/aniflux/internal/constants"
	"github.com/aniflux/aniflux/internal/models"
)

const (
	dbFileMode = 0600
	dbDirMode  = 0755

	dbFile = "history.db"
)

// Entry is one successful resolution.
type Entry struct {
	ID         uint64 `boltholdKey:"ID"`
	SeriesID   string
	Episode    string
	Category   string
	Server     string
	Quality    string
	ResolvedAt time.Time
}

// EpisodeID reconstructs the compound episode identifier of the entry.
func (e Entry) EpisodeID() string {
	ref := models.EpisodeReference{SeriesID: e.SeriesID, EpisodeNumber: e.Episode}
	return ref.EpisodeID()
}

// Store is a BoltDB-backed resolution log.
type Store struct {
	store  *bolthold.Store
	logger *logrus.Logger
}

// Open creates or opens the history database under dir.
func Open(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, dbDirMode); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	store, err := bolthold.Open(filepath.Join(dir, dbFile), dbFileMode, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	return &Store{store: store, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.store.Close()
}

// Record appends one resolution to the log. Errors are swallowed and logged.
func (s *Store) Record(ctx context.Context, ref models.EpisodeReference, category models.Category, server, quality string) {
	entry := &Entry{
		SeriesID:   ref.SeriesID,
		Episode:    ref.EpisodeNumber,
		Category:   string(category),
		Server:     server,
		Quality:    quality,
		ResolvedAt: time.Now().UTC(),
	}

	if err := s.store.Insert(bolthold.NextSequence(), entry); err != nil {
		s.logger.WithError(err).Debug("[History] failed to record resolution")
	}
}

// Recent returns the newest entries, most recent first. limit is clamped to
// the configured maximum; zero or negative means the default page size.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	if limit > constants.MaxHistoryLimit {
		limit = constants.MaxHistoryLimit
	}

	var entries []Entry
	query := bolthold.Where("ResolvedAt").Gt(time.Time{}).
		SortBy("ResolvedAt").Reverse().Limit(limit)
	if err := s.store.Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// Prune removes entries older than the given age and returns how many were
// deleted.
func (s *Store) Prune(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var stale []Entry
	if err := s.store.Find(&stale, bolthold.Where("ResolvedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale history: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := s.store.DeleteMatching(&Entry{}, bolthold.Where("ResolvedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return len(stale), nil
}

// StartCleanup prunes the log on a fixed interval until ctx is canceled.
func (s *Store) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(constants.HistoryCleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Prune(constants.HistoryRetention)
				if err != nil {
					s.logger.WithError(err).Warn("[History] cleanup failed")
					continue
				}
				if removed > 0 {
					s.logger.WithField("removed", removed).Info("[History] pruned old entries")
				}
			}
		}
	}()
}
