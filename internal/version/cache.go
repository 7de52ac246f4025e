package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// cacheTTL is how long a check result is reused.
const cacheTTL = 6 * time.Hour

// CacheEntry is the last check result, stored per user.
type CacheEntry struct {
	LatestVersion  string    `json:"latest_version"`
	CurrentVersion string    `json:"current_version"`
	CheckedAt      time.Time `json:"checked_at"`
	HasUpdate      bool      `json:"has_update"`
}

func cachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "prep", "version_cache.json")
}

// LoadCache reads the cached check result.
func LoadCache() (*CacheEntry, error) {
	path := cachePath()
	if path == "" {
		return nil, fmt.Errorf("no home directory")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse version cache: %w", err)
	}
	return &entry, nil
}

// SaveCache writes entry, creating the cache directory if needed.
func SaveCache(entry *CacheEntry) error {
	path := cachePath()
	if path == "" {
		return fmt.Errorf("no home directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IsCacheValid reports whether entry was made for currentVersion within
// the TTL.
func IsCacheValid(entry *CacheEntry, currentVersion string) bool {
	if entry == nil || entry.CurrentVersion != currentVersion {
		return false
	}
	return time.Since(entry.CheckedAt) < cacheTTL
}
