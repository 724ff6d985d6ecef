package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	configDirName   = "song-posts"
	sessionFileName = "session.json"
)

// CachedSession is the on-disk form of a CLI session.
type CachedSession struct {
	ID        string    `json:"id"`
	ServerURL string    `json:"server_url"`
	SavedAt   time.Time `json:"saved_at"`
}

// SessionCache stores the session cookie used by CLI commands.
type SessionCache struct {
	path string
}

// DefaultSessionCache returns a SessionCache using the default location:
// ~/.config/song-posts/session.json
func DefaultSessionCache() (*SessionCache, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}

	path := filepath.Join(configDir, configDirName, sessionFileName)
	return &SessionCache{path: path}, nil
}

// NewSessionCache creates a SessionCache with a custom path.
func NewSessionCache(path string) *SessionCache {
	return &SessionCache{path: path}
}

// Path returns the file path where the session is stored.
func (c *SessionCache) Path() string {
	return c.path
}

// Load reads the cached session.
// Returns (nil, nil) if the file does not exist.
func (c *SessionCache) Load() (*CachedSession, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var session CachedSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parsing session file: %w", err)
	}

	return &session, nil
}

// Save writes the session, creating the parent directory if needed.
func (c *SessionCache) Save(session *CachedSession) error {
	if session == nil || session.ID == "" {
		return errors.New("cannot save empty session")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}

	return nil
}

// Delete removes the cached session file.
// Returns nil if the file does not exist.
func (c *SessionCache) Delete() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}
