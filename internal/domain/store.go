package domain

// HistoryStore keeps the ordered turns of every persona conversation a
// client owns, keyed by chat and persona.
type HistoryStore interface {
	Add(chatID int64, personaID string, msg Message) error
	Messages(chatID int64, personaID string) []Message
	Clear(chatID int64, personaID string) error
}
