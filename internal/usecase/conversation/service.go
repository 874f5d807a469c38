package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"persona-chat-relay/internal/domain"
)

const (
	// FallbackReply is appended when the relay cannot be reached.
	FallbackReply = "网络有点问题，再发一次试试？"
	// DefaultGreeting stands in for contacts configured without a greeting.
	DefaultGreeting = "你好，我们重新开始吧？"
)

var (
	ErrEmptyMessage    = errors.New("empty message")
	ErrNoActivePersona = errors.New("no active persona")
	ErrUnknownPersona  = errors.New("unknown persona")
	ErrTurnInFlight    = errors.New("a turn is already in flight")
)

type Relay interface {
	Chat(ctx context.Context, req RelayRequest) (string, error)
}

type RelayRequest struct {
	Message   string
	PersonaID string
	History   []domain.Message
}

// Service owns the client side of a conversation: the per-persona history,
// the active persona of each chat and the one-turn-at-a-time rule.
type Service struct {
	store    domain.HistoryStore
	relay    Relay
	contacts map[string]domain.Contact
	order    []string
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	active   map[int64]string
	inFlight map[int64]bool
}

func NewService(store domain.HistoryStore, relay Relay, contacts []domain.Contact, log zerolog.Logger) *Service {
	s := &Service{
		store:    store,
		relay:    relay,
		contacts: make(map[string]domain.Contact, len(contacts)),
		log:      log,
		now:      time.Now,
		active:   make(map[int64]string),
		inFlight: make(map[int64]bool),
	}
	for _, c := range contacts {
		if strings.TrimSpace(c.Greeting) == "" {
			c.Greeting = DefaultGreeting
		}
		if _, exists := s.contacts[c.ID]; !exists {
			s.order = append(s.order, c.ID)
		}
		s.contacts[c.ID] = c
	}
	return s
}

func (s *Service) Contacts() []domain.Contact {
	out := make([]domain.Contact, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.contacts[id])
	}
	return out
}

// Open makes personaID the active persona of the chat. A persona without
// history is greeted with its canned opening line.
func (s *Service) Open(chatID int64, personaID string) (domain.Contact, []domain.Message, error) {
	contact, ok := s.contacts[personaID]
	if !ok {
		return domain.Contact{}, nil, ErrUnknownPersona
	}

	s.mu.Lock()
	s.active[chatID] = personaID
	s.mu.Unlock()

	history := s.store.Messages(chatID, personaID)
	if len(history) == 0 {
		s.appendTurn(chatID, personaID, domain.RoleAssistant, contact.Greeting)
		history = s.store.Messages(chatID, personaID)
	}
	return contact, history, nil
}

func (s *Service) Active(chatID int64) (domain.Contact, bool) {
	s.mu.Lock()
	id, ok := s.active[chatID]
	s.mu.Unlock()
	if !ok {
		return domain.Contact{}, false
	}
	return s.contacts[id], true
}

func (s *Service) History(chatID int64) (domain.Contact, []domain.Message, error) {
	contact, ok := s.Active(chatID)
	if !ok {
		return domain.Contact{}, nil, ErrNoActivePersona
	}
	return contact, s.store.Messages(chatID, contact.ID), nil
}

// SendTurn records the user's text, relays it and records the reply. A relay
// failure is answered with FallbackReply; the user's turn stays recorded.
func (s *Service) SendTurn(ctx context.Context, chatID int64, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	contact, ok := s.Active(chatID)
	if !ok {
		return "", ErrNoActivePersona
	}
	if !s.acquire(chatID) {
		return "", ErrTurnInFlight
	}
	defer s.release(chatID)

	history := s.store.Messages(chatID, contact.ID)
	s.appendTurn(chatID, contact.ID, domain.RoleUser, text)

	reply, err := s.relay.Chat(ctx, RelayRequest{
		Message:   text,
		PersonaID: contact.ID,
		History:   history,
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("chat_id", chatID).Str("persona", contact.ID).Msg("relay call failed")
		reply = FallbackReply
	}
	if strings.TrimSpace(reply) == "" {
		reply = FallbackReply
	}

	s.appendTurn(chatID, contact.ID, domain.RoleAssistant, reply)
	return reply, nil
}

// Reset drops the active persona's history and seeds it with a fresh
// greeting. It always leaves exactly one non-empty assistant turn behind; if
// the history cannot be cleared nothing is appended.
func (s *Service) Reset(ctx context.Context, chatID int64) (string, error) {
	contact, ok := s.Active(chatID)
	if !ok {
		return "", ErrNoActivePersona
	}
	if !s.acquire(chatID) {
		return "", ErrTurnInFlight
	}
	defer s.release(chatID)

	if err := s.store.Clear(chatID, contact.ID); err != nil {
		return "", fmt.Errorf("clear history: %w", err)
	}

	greeting, err := s.relay.Chat(ctx, RelayRequest{
		Message:   domain.ResetSentinel,
		PersonaID: contact.ID,
		History:   []domain.Message{},
	})
	if err != nil || strings.TrimSpace(greeting) == "" {
		if err != nil {
			s.log.Warn().Err(err).Int64("chat_id", chatID).Str("persona", contact.ID).Msg("reset relay call failed")
		}
		greeting = contact.Greeting
	}

	s.appendTurn(chatID, contact.ID, domain.RoleAssistant, greeting)
	return greeting, nil
}

func (s *Service) appendTurn(chatID int64, personaID, role, content string) {
	msg := domain.Message{Role: role, Content: content, Timestamp: s.now()}
	if err := s.store.Add(chatID, personaID, msg); err != nil {
		s.log.Warn().Err(err).Int64("chat_id", chatID).Str("persona", personaID).Msg("could not persist turn")
	}
}

func (s *Service) acquire(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[chatID] {
		return false
	}
	s.inFlight[chatID] = true
	return true
}

func (s *Service) release(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, chatID)
}
