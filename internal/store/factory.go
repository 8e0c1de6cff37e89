package store

import (
	"fmt"
)

// StoreType identifies the session store backend
type StoreType string

const (
	StoreTypeFile   StoreType = "file"
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeMemory StoreType = "memory"
)

// Config holds session store configuration
type Config struct {
	Type  StoreType   `yaml:"type"`
	Path  string      `yaml:"path,omitempty"`
	Key   string      `yaml:"key,omitempty"`
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// DefaultPath returns the default location for file based backends.
func DefaultPath(t StoreType) string {
	if t == StoreTypeSQLite {
		return "~/.config/pfctl/sessions.db"
	}
	return "~/.config/pfctl/sessions.json"
}

// NewKV creates the backend selected by cfg.
func NewKV(cfg Config) (KV, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath(cfg.Type)
	}
	switch cfg.Type {
	case StoreTypeFile, "":
		return NewFileKV(path)
	case StoreTypeSQLite:
		return NewSQLiteKV(path)
	case StoreTypeRedis:
		return NewRedisKV(cfg.Redis)
	case StoreTypeMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown session store type: %s", cfg.Type)
	}
}

// New creates a SessionStore based on configuration
func New(cfg Config) (*SessionStore, error) {
	kv, err := NewKV(cfg)
	if err != nil {
		return nil, err
	}
	return NewSessionStore(kv, cfg.Key), nil
}
