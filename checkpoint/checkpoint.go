// Package checkpoint tracks which dates earlier runs already scraped so a
// restarted run extends prior output instead of refetching it.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"timescrap/models"
)

// Store is the resume surface the scraper works against.
type Store interface {
	// Load returns the records persisted by earlier runs, priming the store's
	// seen set. Stores without payload retention return nil records.
	Load(ctx context.Context) ([]models.DayRecord, error)
	// Seen reports whether a date key was already scraped.
	Seen(ctx context.Context, date string) (bool, error)
	// Mark records a date key as scraped.
	Mark(ctx context.Context, date string) error
	Close() error
}

// FileStore resumes from the JSON save file written by earlier runs.
type FileStore struct {
	path string

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewFileStore builds a file-backed store for the given save path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		seen: make(map[string]struct{}),
	}
}

// Load reads the save file and collects its date keys. A missing file is not
// an error: the run simply starts fresh.
func (s *FileStore) Load(_ context.Context) ([]models.DayRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read save file: %w", err)
	}

	var records []models.DayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse save file %q: %w", s.path, err)
	}

	s.mu.Lock()
	for _, record := range records {
		s.seen[record.Date] = struct{}{}
	}
	s.mu.Unlock()

	return records, nil
}

// Seen reports whether the date was present in the loaded file or marked
// during this run.
func (s *FileStore) Seen(_ context.Context, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[date]
	return ok, nil
}

// Mark records the date in the in-memory set. Durability comes from the
// output writer, which rewrites the save file on every flush.
func (s *FileStore) Mark(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[date] = struct{}{}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }
