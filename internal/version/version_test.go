package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func useReleaseServer(t *testing.T, tag string, status int) *int {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
		w.Write([]byte(`{"tag_name":"` + tag + `","html_url":"https://example.com/release"}`))
	}))
	t.Cleanup(srv.Close)
	old := releasesURL
	releasesURL = srv.URL
	t.Cleanup(func() { releasesURL = old })
	return &calls
}

func TestIsDevelopmentVersion(t *testing.T) {
	tests := []struct {
		v    string
		want bool
	}{
		{"", true},
		{"dev", true},
		{"devel", true},
		{"unknown", true},
		{"devel+abc123+dirty", true},
		{"v1.0.0", false},
		{"0.3.1", false},
	}
	for _, tt := range tests {
		if got := IsDevelopmentVersion(tt.v); got != tt.want {
			t.Errorf("IsDevelopmentVersion(%q) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestUpdateCommand(t *testing.T) {
	tests := []struct {
		v    string
		want string
	}{
		{"v1.2.3", `go install -ldflags "-X main.version=v1.2.3" github.com/marcus/prep@v1.2.3`},
		{"v1.0.0-rc.1", `go install -ldflags "-X main.version=v1.0.0-rc.1" github.com/marcus/prep@v1.0.0-rc.1`},
		{"v1.2.3; rm -rf /", ""},
		{"v1.2.3--", ""},
		{"latest", ""},
	}
	for _, tt := range tests {
		if got := UpdateCommand(tt.v); got != tt.want {
			t.Errorf("UpdateCommand(%q) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestCheck(t *testing.T) {
	useReleaseServer(t, "v1.3.0", http.StatusOK)

	res := Check(context.Background(), "v1.2.0")
	if res.Error != nil {
		t.Fatalf("Check: %v", res.Error)
	}
	if !res.HasUpdate || res.LatestVersion != "v1.3.0" || res.UpdateURL == "" {
		t.Errorf("unexpected result %+v", res)
	}

	res = Check(context.Background(), "v1.3.0")
	if res.HasUpdate {
		t.Error("same version reported as update")
	}
}

func TestCheckSkipsDevelopmentBuilds(t *testing.T) {
	calls := useReleaseServer(t, "v9.0.0", http.StatusOK)
	if res := Check(context.Background(), "dev"); res.HasUpdate || res.Error != nil {
		t.Errorf("unexpected result %+v", res)
	}
	if *calls != 0 {
		t.Errorf("server called %d times", *calls)
	}
}

func TestCheckHTTPError(t *testing.T) {
	useReleaseServer(t, "", http.StatusForbidden)
	res := Check(context.Background(), "v1.0.0")
	if res.Error == nil || !strings.Contains(res.Error.Error(), "403") {
		t.Errorf("Error = %v, want 403", res.Error)
	}
}

func TestCachedUsesFreshEntry(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	calls := useReleaseServer(t, "v2.0.0", http.StatusOK)

	if err := SaveCache(&CacheEntry{
		LatestVersion:  "v1.1.0",
		CurrentVersion: "v1.0.0",
		CheckedAt:      time.Now(),
		HasUpdate:      true,
	}); err != nil {
		t.Fatal(err)
	}
	res := Cached(context.Background(), "v1.0.0")
	if res.LatestVersion != "v1.1.0" || *calls != 0 {
		t.Errorf("got %+v after %d calls; want cached v1.1.0", res, *calls)
	}

	// A different running version ignores the cache and refreshes it.
	res = Cached(context.Background(), "v1.5.0")
	if res.LatestVersion != "v2.0.0" || *calls != 1 {
		t.Errorf("got %+v after %d calls", res, *calls)
	}
	entry, err := LoadCache()
	if err != nil {
		t.Fatal(err)
	}
	if entry.CurrentVersion != "v1.5.0" || !entry.HasUpdate {
		t.Errorf("cache not refreshed: %+v", entry)
	}
}

func TestCachedDoesNotStoreErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	useReleaseServer(t, "", http.StatusInternalServerError)

	if res := Cached(context.Background(), "v1.0.0"); res.Error == nil {
		t.Fatal("expected error")
	}
	if _, err := LoadCache(); err == nil {
		t.Error("failed check was cached")
	}
}

func TestCheckAsync(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	useReleaseServer(t, "v1.1.0", http.StatusOK)

	msg := CheckAsync("v1.0.0")()
	upd, ok := msg.(UpdateAvailableMsg)
	if !ok {
		t.Fatalf("msg = %T, want UpdateAvailableMsg", msg)
	}
	if upd.LatestVersion != "v1.1.0" || upd.UpdateCommand == "" {
		t.Errorf("unexpected msg %+v", upd)
	}

	if msg := CheckAsync("v1.1.0")(); msg != nil {
		t.Errorf("up to date: got %T", msg)
	}
	if msg := CheckAsync("dev")(); msg != nil {
		t.Errorf("dev build: got %T", msg)
	}
}
