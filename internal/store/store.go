// Package store persists the cached session list.
//
// Backends only know about string values under string keys. SessionStore
// layers the JSON encoded session list on top of a single key, so the whole
// list is always read and written as a unit.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pfctl/internal/session"
	"pfctl/pkg/logging"
)

// DefaultKey is the key holding the session list.
const DefaultKey = "portforwards"

// ErrConflict is returned when an atomic update kept losing against concurrent writers.
var ErrConflict = errors.New("concurrent modification of stored value")

// KV is a durable string key/value store.
type KV interface {
	// Get returns the value for key; found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// UpdateFunc computes a new value from the current one.
type UpdateFunc func(value string, found bool) (string, error)

// Transactional is implemented by backends that can run a read-modify-write
// atomically with respect to other processes sharing the store.
type Transactional interface {
	KV
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// SessionStore reads and writes the session list kept under a single key.
type SessionStore struct {
	kv  KV
	key string
}

// NewSessionStore creates a session store on top of kv. An empty key selects DefaultKey.
func NewSessionStore(kv KV, key string) *SessionStore {
	if key == "" {
		key = DefaultKey
	}
	return &SessionStore{kv: kv, key: key}
}

// Key returns the storage key.
func (s *SessionStore) Key() string {
	return s.key
}

// Close releases the backend.
func (s *SessionStore) Close() error {
	return s.kv.Close()
}

// ReadAll returns every stored session. An absent or unparsable value reads as
// an empty list; only backend failures are returned as errors.
func (s *SessionStore) ReadAll(ctx context.Context) ([]session.Session, error) {
	value, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", s.key, err)
	}
	if !found {
		return []session.Session{}, nil
	}
	return decode(s.key, value), nil
}

// WriteAll replaces the stored list. Duplicate ids are collapsed first.
func (s *SessionStore) WriteAll(ctx context.Context, list []session.Session) error {
	value, err := encode(list)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, value); err != nil {
		return fmt.Errorf("failed to write %q: %w", s.key, err)
	}
	return nil
}

// Update applies fn to the stored list and writes the result. On a
// Transactional backend the cycle is atomic; otherwise it is a plain
// read followed by a write.
func (s *SessionStore) Update(ctx context.Context, fn func([]session.Session) []session.Session) ([]session.Session, error) {
	var result []session.Session

	tx, ok := s.kv.(Transactional)
	if !ok {
		list, err := s.ReadAll(ctx)
		if err != nil {
			return nil, err
		}
		result = session.Dedupe(fn(list))
		if err := s.WriteAll(ctx, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	err := tx.Update(ctx, s.key, func(value string, found bool) (string, error) {
		list := []session.Session{}
		if found {
			list = decode(s.key, value)
		}
		result = session.Dedupe(fn(list))
		return encode(result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update %q: %w", s.key, err)
	}
	return result, nil
}

func decode(key, value string) []session.Session {
	if value == "" {
		return []session.Session{}
	}
	var list []session.Session
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		logging.Warn("SessionStore", "Ignoring unparsable value under %q: %v", key, err)
		return []session.Session{}
	}
	if list == nil {
		return []session.Session{}
	}
	return list
}

func encode(list []session.Session) (string, error) {
	list = session.Dedupe(list)
	if list == nil {
		list = []session.Session{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode sessions: %w", err)
	}
	return string(data), nil
}
