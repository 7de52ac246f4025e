package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/backend/memory"
	"github.com/marcus/prep/internal/backend/postgres"
	"github.com/marcus/prep/internal/backend/remote"
	"github.com/marcus/prep/internal/backend/sqlite"
	"github.com/marcus/prep/internal/models"
)

// OpenBackend connects to the backend a resolved config names.
func OpenBackend(ctx context.Context, cfg *models.Config) (backend.Backend, error) {
	b := cfg.Backend
	switch b.Driver {
	case models.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(b.DSN), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		s, err := sqlite.Open(b.DSN, sqlite.WithPollInterval(PollInterval(b)))
		if err != nil {
			return nil, err
		}
		return s, nil
	case models.DriverPostgres:
		s, err := postgres.Open(ctx, b.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case models.DriverRemote:
		return remote.New(b.URL, remote.WithRetryBackoff(PollInterval(b))), nil
	case models.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", b.Driver)
}
