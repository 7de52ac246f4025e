package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/marcus/prep/internal/reconcile"
)

const (
	// maxBatch caps how many notifications go in one POST.
	maxBatch = 50

	sendTimeout = 10 * time.Second
)

// Payload is the webhook POST body.
type Payload struct {
	Namespace     string                   `json:"namespace,omitempty"`
	DeviceID      string                   `json:"device_id,omitempty"`
	Timestamp     string                   `json:"timestamp"`
	Notifications []reconcile.Notification `json:"notifications"`
}

// BuildPayload wraps a batch of notifications.
func BuildPayload(namespace, deviceID string, notes []reconcile.Notification) Payload {
	return Payload{
		Namespace:     namespace,
		DeviceID:      deviceID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Notifications: notes,
	}
}

// Sign returns the hex HMAC-SHA256 of "timestamp.body" under secret.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Dispatch POSTs payload to url. A non-empty secret adds an
// X-Prep-Signature header. Any non-2xx status is an error.
func Dispatch(ctx context.Context, client *http.Client, url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "prep-webhook/1")

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Prep-Timestamp", ts)
	if secret != "" {
		req.Header.Set("X-Prep-Signature", "sha256="+Sign(secret, ts, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// Forwarder batches notifications and posts them to one endpoint. Failed
// posts are logged and dropped.
type Forwarder struct {
	URL       string
	Secret    string
	Namespace string
	DeviceID  string
	Client    *http.Client
}

// Run posts batches read from in until ctx is done or in is closed.
// Notifications already queued form one batch.
func (f *Forwarder) Run(ctx context.Context, in <-chan reconcile.Notification) error {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	for {
		var batch []reconcile.Notification
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-in:
			if !ok {
				return nil
			}
			batch = append(batch, n)
		}
	drain:
		for len(batch) < maxBatch {
			select {
			case n, ok := <-in:
				if !ok {
					break drain
				}
				batch = append(batch, n)
			default:
				break drain
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := Dispatch(sendCtx, client, f.URL, f.Secret, BuildPayload(f.Namespace, f.DeviceID, batch))
		cancel()
		if err != nil {
			slog.Warn("webhook: dropped notifications", "count", len(batch), "err", err)
		}
	}
}
