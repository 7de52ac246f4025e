package version

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// UpdateAvailableMsg is sent when a newer release exists.
type UpdateAvailableMsg struct {
	CurrentVersion string
	LatestVersion  string
	UpdateCommand  string
}

// Cached returns the latest known result for currentVersion, using the
// cache when it is fresh and refreshing it otherwise. Network errors are
// returned but never cached.
func Cached(ctx context.Context, currentVersion string) CheckResult {
	if cached, err := LoadCache(); err == nil && IsCacheValid(cached, currentVersion) {
		return CheckResult{
			CurrentVersion: currentVersion,
			LatestVersion:  cached.LatestVersion,
			HasUpdate:      cached.HasUpdate,
		}
	}
	result := Check(ctx, currentVersion)
	if result.Error == nil && !IsDevelopmentVersion(currentVersion) {
		_ = SaveCache(&CacheEntry{
			LatestVersion:  result.LatestVersion,
			CurrentVersion: currentVersion,
			CheckedAt:      time.Now(),
			HasUpdate:      result.HasUpdate,
		})
	}
	return result
}

// CheckAsync returns a Bubble Tea command that checks for updates in the
// background and yields UpdateAvailableMsg only when one exists.
func CheckAsync(currentVersion string) tea.Cmd {
	return func() tea.Msg {
		if IsDevelopmentVersion(currentVersion) {
			return nil
		}
		result := Cached(context.Background(), currentVersion)
		if !result.HasUpdate {
			return nil
		}
		return UpdateAvailableMsg{
			CurrentVersion: currentVersion,
			LatestVersion:  result.LatestVersion,
			UpdateCommand:  UpdateCommand(result.LatestVersion),
		}
	}
}
