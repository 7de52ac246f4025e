package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcus/prep/internal/config"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/reconcile"
)

type received struct {
	mu       sync.Mutex
	payloads []Payload
	headers  []http.Header
	bodies   [][]byte
}

func (r *received) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func newReceiver(t *testing.T, status int) (*httptest.Server, *received) {
	t.Helper()
	rec := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p Payload
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		rec.mu.Lock()
		rec.payloads = append(rec.payloads, p)
		rec.headers = append(rec.headers, r.Header.Clone())
		rec.bodies = append(rec.bodies, body)
		rec.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func note(name string) reconcile.Notification {
	return reconcile.Notification{Kind: reconcile.ItemAdded, DishID: "d1", ItemID: name, Name: name, DishName: "Soup"}
}

func TestDispatchSigned(t *testing.T) {
	srv, rec := newReceiver(t, http.StatusNoContent)

	p := BuildPayload("kitchen", "dev-1", []reconcile.Notification{note("Stock")})
	if err := Dispatch(context.Background(), srv.Client(), srv.URL, "s3cret", p); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("received %d posts, want 1", rec.count())
	}
	h := rec.headers[0]
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", h.Get("Content-Type"))
	}
	want := "sha256=" + Sign("s3cret", h.Get("X-Prep-Timestamp"), rec.bodies[0])
	if got := h.Get("X-Prep-Signature"); got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
	got := rec.payloads[0]
	if got.Namespace != "kitchen" || got.DeviceID != "dev-1" || len(got.Notifications) != 1 {
		t.Errorf("payload = %+v", got)
	}
	if got.Notifications[0].Kind != reconcile.ItemAdded {
		t.Errorf("kind = %q", got.Notifications[0].Kind)
	}
}

func TestDispatchUnsigned(t *testing.T) {
	srv, rec := newReceiver(t, http.StatusOK)
	if err := Dispatch(context.Background(), srv.Client(), srv.URL, "", BuildPayload("", "", nil)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sig := rec.headers[0].Get("X-Prep-Signature"); sig != "" {
		t.Errorf("unexpected signature %q", sig)
	}
}

func TestDispatchStatusError(t *testing.T) {
	srv, _ := newReceiver(t, http.StatusInternalServerError)
	err := Dispatch(context.Background(), srv.Client(), srv.URL, "", BuildPayload("", "", nil))
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v, want status 500", err)
	}
}

func TestForwarderBatchesQueuedNotifications(t *testing.T) {
	srv, rec := newReceiver(t, http.StatusOK)
	in := make(chan reconcile.Notification, 10)
	for _, name := range []string{"a", "b", "c"} {
		in <- note(name)
	}
	close(in)

	f := &Forwarder{URL: srv.URL, Namespace: "kitchen", Client: srv.Client()}
	if err := f.Run(context.Background(), in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("posts = %d, want 1", rec.count())
	}
	if n := len(rec.payloads[0].Notifications); n != 3 {
		t.Errorf("batch size = %d, want 3", n)
	}
}

func TestForwarderKeepsGoingAfterFailure(t *testing.T) {
	srv, rec := newReceiver(t, http.StatusBadGateway)
	in := make(chan reconcile.Notification)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	f := &Forwarder{URL: srv.URL, Client: srv.Client()}
	go func() { done <- f.Run(ctx, in) }()

	in <- note("a")
	in <- note("b")
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.count() < 2 {
		t.Errorf("posts = %d, want 2", rec.count())
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestGetURLAndSecret(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvURL, "")
	t.Setenv(EnvSecret, "")

	if GetURL(dir) != "" {
		t.Error("expected no url without config")
	}
	if err := config.SetWebhook(dir, &models.WebhookConfig{URL: "https://hooks.example/prep", Secret: "abc"}); err != nil {
		t.Fatal(err)
	}
	if got := GetURL(dir); got != "https://hooks.example/prep" {
		t.Errorf("GetURL = %q", got)
	}
	if got := GetSecret(dir); got != "abc" {
		t.Errorf("GetSecret = %q", got)
	}

	t.Setenv(EnvURL, "https://override.example")
	t.Setenv(EnvSecret, "xyz")
	if got := GetURL(dir); got != "https://override.example" {
		t.Errorf("env override ignored: %q", got)
	}
	if got := GetSecret(dir); got != "xyz" {
		t.Errorf("env override ignored: %q", got)
	}
}
