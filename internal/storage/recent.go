// Package storage handles configuration file I/O operations.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjnmav/mongoscope/internal/types"
)

// maxRecent caps how many recent connections are kept on disk.
const maxRecent = 10

// Store persists password-less recent connection records.
type Store struct {
	mu        sync.Mutex
	configDir string
}

// NewStore creates a store rooted at configDir.
func NewStore(configDir string) *Store {
	return &Store{configDir: configDir}
}

// InitConfigDir sets up the config directory.
func InitConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.Getenv("HOME")
	}
	dir := filepath.Join(configDir, "mongoscope")
	os.MkdirAll(dir, 0755)
	return dir
}

// RecentFile returns the path to the recent connections file.
func (s *Store) RecentFile() string {
	return filepath.Join(s.configDir, "recent.json")
}

// Load reads the recent connections from disk, most recent first. A missing
// file is an empty list.
func (s *Store) Load() ([]types.RecentConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]types.RecentConnection, error) {
	data, err := os.ReadFile(s.RecentFile())
	if err != nil {
		if os.IsNotExist(err) {
			return []types.RecentConnection{}, nil
		}
		return nil, err
	}
	var recent []types.RecentConnection
	if err := json.Unmarshal(data, &recent); err != nil {
		return nil, err
	}
	return recent, nil
}

// Remember moves cfg to the front of the recent list. Entries are deduplicated
// by host and port; the password never reaches disk because the record type
// does not carry one.
func (s *Store) Remember(cfg types.ConnectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent, err := s.load()
	if err != nil {
		recent = []types.RecentConnection{}
	}

	kept := make([]types.RecentConnection, 0, len(recent)+1)
	kept = append(kept, types.RecentConnection{
		Name:            cfg.Name,
		Host:            cfg.Host,
		Port:            cfg.Port,
		Username:        cfg.Username,
		AuthSource:      cfg.AuthSource,
		DefaultDatabase: cfg.DefaultDatabase,
		TLSEnabled:      cfg.TLSEnabled,
		LastUsedAt:      time.Now(),
	})
	for _, r := range recent {
		if r.Host == cfg.Host && r.Port == cfg.Port {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) > maxRecent {
		kept = kept[:maxRecent]
	}

	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.RecentFile(), data, 0644)
}
