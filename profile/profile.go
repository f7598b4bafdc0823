// Package profile persists per-user facts in a BadgerDB-backed store
package profile

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scrivenlab/scriven/pkg/kv"
)

const keyPrefix = "profile:"

// Store holds user profiles keyed by user ID
type Store struct {
	kv *kv.KV
	mu sync.Mutex // serializes read-modify-write of a profile document
}

// Record is the stored profile document
type Record struct {
	UserID    string            `json:"user_id"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Open creates a profile store at dir
func Open(dir string, memoryMode bool) (*Store, error) {
	db, err := kv.Open(kv.Options{Dir: dir, MemoryMode: memoryMode})
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	return &Store{kv: db}, nil
}

// Close closes the underlying store
func (s *Store) Close() error {
	return s.kv.Close()
}

// ApplyDelta merges fields into the user's profile. Empty values delete the
// field; existing fields not named in the delta are untouched.
func (s *Store) ApplyDelta(userID string, fields map[string]string) error {
	if userID == "" {
		return fmt.Errorf("profile: empty user id")
	}
	if len(fields) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{UserID: userID, Fields: make(map[string]string)}
	err := s.kv.GetJSON(keyPrefix+userID, &rec)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("profile read: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]string)
	}

	for k, v := range fields {
		k = strings.TrimSpace(strings.ToLower(k))
		if k == "" {
			continue
		}
		if v == "" {
			delete(rec.Fields, k)
			continue
		}
		rec.Fields[k] = v
	}
	rec.UserID = userID
	rec.UpdatedAt = time.Now().UTC()

	if err := s.kv.SetJSON(keyPrefix+userID, &rec); err != nil {
		return fmt.Errorf("profile write: %w", err)
	}
	return nil
}

// Read returns the user's profile fields (empty map if unknown user)
func (s *Store) Read(userID string) (map[string]string, error) {
	var rec Record
	err := s.kv.GetJSON(keyPrefix+userID, &rec)
	if errors.Is(err, kv.ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile read: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]string{}
	}
	return rec.Fields, nil
}

// Users lists user IDs with stored profiles
func (s *Store) Users() ([]string, error) {
	keys, err := s.kv.Keys(keyPrefix)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(k, keyPrefix))
	}
	return users, nil
}
