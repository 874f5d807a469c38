package boltstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"persona-chat-relay/internal/domain"
)

var historyBucket = []byte("chat_history")

// Store keeps each persona conversation as one JSON value in a BoltDB file,
// keyed by "<chat id>/<persona id>".
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Add(chatID int64, personaID string, msg domain.Message) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(historyBucket)
		k := key(chatID, personaID)
		msgs := decode(b.Get(k))
		enc, err := json.Marshal(append(msgs, msg))
		if err != nil {
			return err
		}
		return b.Put(k, enc)
	})
}

func (s *Store) Messages(chatID int64, personaID string) []domain.Message {
	var msgs []domain.Message
	_ = s.db.View(func(tx *bolt.Tx) error {
		msgs = decode(tx.Bucket(historyBucket).Get(key(chatID, personaID)))
		return nil
	})
	return msgs
}

func (s *Store) Clear(chatID int64, personaID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).Delete(key(chatID, personaID))
	})
}

func key(chatID int64, personaID string) []byte {
	return []byte(strconv.FormatInt(chatID, 10) + "/" + personaID)
}

// decode copies out of the bolt-owned buffer. Malformed values read as an
// empty history.
func decode(v []byte) []domain.Message {
	if len(v) == 0 {
		return nil
	}
	var msgs []domain.Message
	if err := json.Unmarshal(v, &msgs); err != nil {
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}
	return msgs
}
