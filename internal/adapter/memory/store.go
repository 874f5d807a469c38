package memory

import (
	"sync"

	"persona-chat-relay/internal/domain"
)

// Snapshot is the full store content: chat id -> persona id -> turns.
type Snapshot map[int64]map[string][]domain.Message

type Store struct {
	mu            sync.Mutex
	conversations Snapshot
}

func NewStore() *Store {
	return &Store{
		conversations: make(Snapshot),
	}
}

// NewStoreFrom seeds a store with a previously taken snapshot.
func NewStoreFrom(snap Snapshot) *Store {
	s := NewStore()
	for chatID, personas := range snap {
		for personaID, msgs := range personas {
			if len(msgs) == 0 {
				continue
			}
			s.chat(chatID)[personaID] = append([]domain.Message(nil), msgs...)
		}
	}
	return s
}

func (s *Store) Add(chatID int64, personaID string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat := s.chat(chatID)
	chat[personaID] = append(chat[personaID], msg)
	return nil
}

func (s *Store) Messages(chatID int64, personaID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.conversations[chatID][personaID]
	if len(history) == 0 {
		return nil
	}
	return append([]domain.Message(nil), history...)
}

func (s *Store) Clear(chatID int64, personaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.conversations[chatID]; ok {
		delete(chat, personaID)
		if len(chat) == 0 {
			delete(s.conversations, chatID)
		}
	}
	return nil
}

// Snapshot returns a deep copy of every conversation.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(Snapshot, len(s.conversations))
	for chatID, personas := range s.conversations {
		copied := make(map[string][]domain.Message, len(personas))
		for personaID, msgs := range personas {
			copied[personaID] = append([]domain.Message(nil), msgs...)
		}
		out[chatID] = copied
	}
	return out
}

func (s *Store) chat(chatID int64) map[string][]domain.Message {
	chat, ok := s.conversations[chatID]
	if !ok {
		chat = make(map[string][]domain.Message)
		s.conversations[chatID] = chat
	}
	return chat
}
