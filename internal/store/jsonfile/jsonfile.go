// Package jsonfile persists room state as a single JSON document on disk:
// a top-level "rooms" object keyed by room id, each entry holding the
// passphrase and message log.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/vchaly/roomcast/internal/store"
)

type document struct {
	Rooms store.State `json:"rooms"`
}

// Store implements store.Store on top of a JSON file.
type Store struct {
	path      string
	debouncer *store.Debouncer
	log       *zerolog.Logger
}

// New creates the data directory and an empty database file if absent.
func New(path string, debounce time.Duration, logger *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{path: path, log: logger}
	s.debouncer = store.NewDebouncer(debounce, s.SaveNow, logger)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.SaveNow(store.State{}); err != nil {
			return nil, fmt.Errorf("init data file: %w", err)
		}
	}
	return s, nil
}

// Load reads the database file. A missing, unreadable, or corrupt file is
// logged, the file is reset to an empty store, and an empty state is
// returned; history durability is best-effort here.
func (s *Store) Load() store.State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("read data file, resetting")
		s.reset()
		return store.State{}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("parse data file, resetting")
		s.reset()
		return store.State{}
	}
	if doc.Rooms == nil {
		return store.State{}
	}
	return doc.Rooms
}

// ScheduleSave coalesces bursts of mutations into one write.
func (s *Store) ScheduleSave(state store.State) {
	s.debouncer.Schedule(state)
}

// SaveNow writes the full snapshot synchronously.
func (s *Store) SaveNow(state store.State) error {
	data, err := json.MarshalIndent(document{Rooms: state}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}
	return nil
}

// Close flushes any pending scheduled save.
func (s *Store) Close() error {
	s.debouncer.Flush()
	return nil
}

func (s *Store) reset() {
	if err := s.SaveNow(store.State{}); err != nil {
		s.log.Error().Err(err).Msg("reset data file")
	}
}
