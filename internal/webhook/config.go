// Package webhook forwards change notifications to an HTTP endpoint.
package webhook

import (
	"os"

	"github.com/marcus/prep/internal/config"
)

// Environment overrides for the project webhook.
const (
	EnvURL    = "PREP_WEBHOOK_URL"
	EnvSecret = "PREP_WEBHOOK_SECRET"
)

// GetURL returns the webhook URL for the project.
// Priority: PREP_WEBHOOK_URL env > config.json webhook.url.
func GetURL(baseDir string) string {
	if v := os.Getenv(EnvURL); v != "" {
		return v
	}
	cfg, err := config.Load(baseDir)
	if err != nil || cfg.Webhook == nil {
		return ""
	}
	return cfg.Webhook.URL
}

// GetSecret returns the HMAC secret.
// Priority: PREP_WEBHOOK_SECRET env > config.json webhook.secret.
func GetSecret(baseDir string) string {
	if v := os.Getenv(EnvSecret); v != "" {
		return v
	}
	cfg, err := config.Load(baseDir)
	if err != nil || cfg.Webhook == nil {
		return ""
	}
	return cfg.Webhook.Secret
}
