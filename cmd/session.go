package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/config"
	"github.com/marcus/prep/internal/engine"
	"github.com/marcus/prep/internal/localstate"
	"github.com/marcus/prep/internal/output"
	"github.com/marcus/prep/internal/reconcile"
	"github.com/marcus/prep/internal/rowkey"
)

// session is one open engine plus everything it needs closed.
type session struct {
	*engine.Engine
	be    backend.Backend
	local *localstate.Store
}

// openSession resolves the project config, connects to the backend,
// restores device state and catches up with the backend.
func openSession(ctx context.Context, opts ...engine.Option) (*session, error) {
	base := getBaseDir()
	cfg, err := config.Resolve(base)
	if err != nil {
		return nil, err
	}
	be, err := config.OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var lsOpts []localstate.Option
	if cfg.Namespace != "" {
		lsOpts = append(lsOpts, localstate.WithNamespace(cfg.Namespace))
	}
	ls, err := localstate.Open(config.Dir(base), lsOpts...)
	if err != nil {
		be.Close()
		return nil, err
	}

	opts = append([]engine.Option{engine.WithLocalState(ls)}, opts...)
	e := engine.New(be, opts...)
	if err := e.Start(ctx); err != nil {
		e.Close()
		be.Close()
		ls.Close()
		return nil, err
	}
	e.Sync()
	return &session{Engine: e, be: be, local: ls}, nil
}

// Close saves device state and releases the backend and local store.
func (s *session) Close() error {
	err := s.Engine.Close()
	if cerr := s.be.Close(); err == nil {
		err = cerr
	}
	if cerr := s.local.Close(); err == nil {
		err = cerr
	}
	return err
}

// withSession opens a session, runs fn and closes it, printing any error.
func withSession(ctx context.Context, fn func(*session) error, opts ...engine.Option) error {
	s, err := openSession(ctx, opts...)
	if err != nil {
		return fail(err)
	}
	if err := fn(s); err != nil {
		s.Close()
		return fail(err)
	}
	if err := s.Close(); err != nil {
		return fail(err)
	}
	return nil
}

// fail prints err in a user-facing form and returns it.
func fail(err error) error {
	var re *backend.RemoteError
	switch {
	case errors.Is(err, engine.ErrNoSelection):
		output.Error("no daily list picked; run 'prep daily pick' first")
	case errors.As(err, &re):
		output.Error("backend %s failed: %v (nothing was changed)", strings.ReplaceAll(re.Op, "_", " "), re.Err)
	default:
		output.Error("%v", err)
	}
	return err
}

// resolveItem maps row arguments to a composite key. One argument is an
// item id; two are a dish (id or name) and an item name within it.
func resolveItem(s *session, args []string) (key, name string, err error) {
	var dishRef, itemRef string
	switch len(args) {
	case 1:
		itemRef = args[0]
	case 2:
		dishRef, itemRef = args[0], args[1]
	default:
		return "", "", fmt.Errorf("expected [dish] item, got %d arguments", len(args))
	}
	it, err := s.FindItem(dishRef, itemRef)
	if err != nil {
		return "", "", err
	}
	key, err = rowkey.Encode(it.DishID, it.ID)
	return key, it.Name, err
}

// printNotification writes one change made by someone else.
func printNotification(n reconcile.Notification) {
	output.Info("%s", n.String())
}
