package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"persona-chat-relay/internal/adapter/memory"
	"persona-chat-relay/internal/domain"
)

// Store is a memory.Store that rewrites a JSON file after every mutation.
type Store struct {
	path string
	mem  *memory.Store
	log  zerolog.Logger

	writeMu sync.Mutex
}

// Open loads path. A missing or unreadable file starts an empty history; it
// is never an error.
func Open(path string, log zerolog.Logger) *Store {
	s := &Store{path: path, log: log}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.mem = memory.NewStore()
	case err != nil:
		log.Warn().Err(err).Str("path", path).Msg("could not read chat history, starting empty")
		s.mem = memory.NewStore()
	default:
		var snap memory.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("chat history is corrupt, starting empty")
			s.mem = memory.NewStore()
		} else {
			s.mem = memory.NewStoreFrom(snap)
		}
	}
	return s
}

func (s *Store) Add(chatID int64, personaID string, msg domain.Message) error {
	if err := s.mem.Add(chatID, personaID, msg); err != nil {
		return err
	}
	return s.persist()
}

func (s *Store) Messages(chatID int64, personaID string) []domain.Message {
	return s.mem.Messages(chatID, personaID)
}

func (s *Store) Clear(chatID int64, personaID string) error {
	if err := s.mem.Clear(chatID, personaID); err != nil {
		return err
	}
	return s.persist()
}

func (s *Store) persist() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := json.MarshalIndent(s.mem.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".chat-history-*.json")
	if err != nil {
		return fmt.Errorf("save chat history: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save chat history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save chat history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("save chat history: %w", err)
	}
	return nil
}
