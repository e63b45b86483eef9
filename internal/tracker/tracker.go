// Package tracker persists the provenance trail: one JSON file per recorded
// event, partitioned by event type. Files are the source of truth the QA
// auditor samples from, so writes are atomic and recording is fail-fast on
// malformed input.
package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/logger"
)

// ErrNoEvents is returned when no unreviewed event is available to audit.
var ErrNoEvents = errors.New("tracker: no unreviewed events")

// Store reads and writes provenance events under one root directory.
// Layout: <dir>/<event_type>/<event_id>.json.
type Store struct {
	dir    string
	logger logger.Logger
}

// NewStore returns a store rooted at dir. The directory is created lazily on
// the first write.
func NewStore(dir string, log logger.Logger) *Store {
	return &Store{dir: dir, logger: log}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Record validates and persists one event, returning the path written. A
// missing id or timestamp is filled in; anything else malformed is rejected
// before touching disk.
func (s *Store) Record(event *domain.TrackerEvent) (string, error) {
	if event.ID == "" {
		event.ID = domain.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return "", fmt.Errorf("tracker: record: %w", err)
	}

	dir := filepath.Join(s.dir, string(event.Type))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("tracker: create %s: %w", dir, err)
	}

	path := filepath.Join(dir, event.ID+".json")
	if err := writeJSON(path, event); err != nil {
		return "", fmt.Errorf("tracker: write %s: %w", path, err)
	}

	s.logger.Debug("event recorded",
		logger.String("type", string(event.Type)),
		logger.String("component", event.Component),
		logger.String("action", event.Action),
		logger.String("event_id", event.ID))
	return path, nil
}

// Load reads one event by type and id.
func (s *Store) Load(eventType domain.EventType, id string) (*domain.TrackerEvent, error) {
	path := filepath.Join(s.dir, string(eventType), id+".json")
	return readEvent(path)
}

// MarkReviewed flips the reviewed flag on one event file, atomically.
func (s *Store) MarkReviewed(eventType domain.EventType, id string) error {
	path := filepath.Join(s.dir, string(eventType), id+".json")
	event, err := readEvent(path)
	if err != nil {
		return err
	}
	event.Reviewed = true
	if err := writeJSON(path, event); err != nil {
		return fmt.Errorf("tracker: mark reviewed %s: %w", path, err)
	}
	return nil
}

// RandomUnreviewed returns a uniformly random unreviewed event. With no types
// given it scans every partition present on disk. Malformed files are skipped,
// not fatal. Returns ErrNoEvents when nothing qualifies.
func (s *Store) RandomUnreviewed(types ...domain.EventType) (*domain.TrackerEvent, error) {
	candidates, err := s.listUnreviewed(types)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoEvents
	}
	return readEvent(candidates[rand.Intn(len(candidates))])
}

// CountUnreviewed returns how many unreviewed events are waiting.
func (s *Store) CountUnreviewed() (int, error) {
	candidates, err := s.listUnreviewed(nil)
	if err != nil {
		return 0, err
	}
	return len(candidates), nil
}

func (s *Store) listUnreviewed(types []domain.EventType) ([]string, error) {
	partitions, err := s.partitions(types)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, partition := range partitions {
		entries, err := os.ReadDir(partition)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("tracker: scan %s: %w", partition, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(partition, entry.Name())
			event, err := readEvent(path)
			if err != nil {
				s.logger.Warn("skipping unreadable event file",
					logger.String("path", path), logger.Error(err))
				continue
			}
			if !event.Reviewed {
				candidates = append(candidates, path)
			}
		}
	}
	return candidates, nil
}

func (s *Store) partitions(types []domain.EventType) ([]string, error) {
	if len(types) > 0 {
		dirs := make([]string, 0, len(types))
		for _, t := range types {
			dirs = append(dirs, filepath.Join(s.dir, string(t)))
		}
		return dirs, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("tracker: scan %s: %w", s.dir, err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(s.dir, entry.Name()))
		}
	}
	return dirs, nil
}

func readEvent(path string) (*domain.TrackerEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tracker: read %s: %w", path, err)
	}
	var event domain.TrackerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("tracker: decode %s: %w", path, err)
	}
	return &event, nil
}

func writeJSON(path string, event *domain.TrackerEvent) error {
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
