package version

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsCacheValid(t *testing.T) {
	now := time.Now()
	entry := func(current string, age time.Duration) *CacheEntry {
		return &CacheEntry{LatestVersion: "v1.1.0", CurrentVersion: current, CheckedAt: now.Add(-age), HasUpdate: true}
	}
	tests := []struct {
		name    string
		entry   *CacheEntry
		current string
		want    bool
	}{
		{"nil", nil, "v1.0.0", false},
		{"fresh", entry("v1.0.0", 0), "v1.0.0", true},
		{"just under ttl", entry("v1.0.0", cacheTTL-time.Minute), "v1.0.0", true},
		{"at ttl", entry("v1.0.0", cacheTTL), "v1.0.0", false},
		{"upgraded since", entry("v1.0.0", 0), "v1.1.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCacheValid(tt.entry, tt.current); got != tt.want {
				t.Errorf("IsCacheValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSaveAndLoadCache(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "missing", "home"))

	want := &CacheEntry{
		LatestVersion:  "v1.2.3",
		CurrentVersion: "v1.0.0",
		CheckedAt:      time.Now().Round(time.Second),
		HasUpdate:      true,
	}
	if err := SaveCache(want); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	got, err := LoadCache()
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if got.LatestVersion != want.LatestVersion || got.CurrentVersion != want.CurrentVersion ||
		got.HasUpdate != want.HasUpdate || !got.CheckedAt.Equal(want.CheckedAt) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadCacheErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := LoadCache(); err == nil {
		t.Error("expected error for missing cache")
	}

	path := cachePath()
	os.MkdirAll(filepath.Dir(path), 0755)
	if err := os.WriteFile(path, []byte(`{invalid json}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCache(); err == nil {
		t.Error("expected error for corrupted cache")
	}
}
