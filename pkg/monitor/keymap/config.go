// Package keymap provides user-configurable key bindings for the checklist
// TUI, loaded from .prep/keymap.json.
package keymap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Config represents user key binding configuration.
type Config struct {
	// Bindings maps "context:key" to command ID, e.g. {"main:x": "star"}.
	Bindings map[string]string `json:"bindings"`
}

// ConfigPath returns the path to the keymap config file
func ConfigPath(baseDir string) string {
	return filepath.Join(baseDir, ".prep", "keymap.json")
}

// LoadConfig loads key binding overrides from a JSON file.
// Returns an empty config if the file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Bindings: make(map[string]string)}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Bindings == nil {
		cfg.Bindings = make(map[string]string)
	}
	return &cfg, nil
}

// ApplyConfig applies user configuration overrides to the registry.
func ApplyConfig(r *Registry, cfg *Config) {
	for binding, cmdStr := range cfg.Bindings {
		ctx, key := parseBinding(binding)
		if ctx == "" || key == "" {
			continue
		}
		r.SetUserOverride(ctx, key, Command(cmdStr))
	}
}

// parseBinding splits "context:key". Without a colon the context is global.
func parseBinding(s string) (Context, string) {
	ctx, key, ok := strings.Cut(s, ":")
	if !ok {
		return ContextGlobal, s
	}
	return Context(ctx), key
}
