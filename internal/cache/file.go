// Package cache persists collections on local disk so a restarted process can show
// the last known state before the first remote fetch completes.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type envelope struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// FileCache stores one JSON file per key under a directory.
type FileCache struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time

	mu sync.RWMutex
}

// NewFileCache creates a cache rooted at dir. Entries older than maxAge are treated
// as missing; a zero maxAge keeps entries forever.
func NewFileCache(dir string, maxAge time.Duration) *FileCache {
	return &FileCache{dir: dir, maxAge: maxAge, now: time.Now}
}

// Save writes value under key, replacing any previous entry.
func (c *FileCache) Save(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	raw, err := json.Marshal(envelope{Timestamp: c.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encoding cache envelope %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Load decodes the entry for key into dst. It reports false when the entry is
// missing or expired.
func (c *FileCache) Load(key string, dst any) (bool, error) {
	c.mu.RLock()
	raw, err := os.ReadFile(c.path(key))
	c.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("decoding cache envelope %s: %w", key, err)
	}
	if c.maxAge > 0 && c.now().Sub(env.Timestamp) > c.maxAge {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return true, nil
}

// Clear removes the entry for key. A missing entry is not an error.
func (c *FileCache) Clear(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cache entry %s: %w", key, err)
	}
	return nil
}

// path maps key to a file name, replacing anything outside [A-Za-z0-9_-].
func (c *FileCache) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(c.dir, safe+".json")
}
