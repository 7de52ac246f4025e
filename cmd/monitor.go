package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/engine"
	"github.com/marcus/prep/internal/reconcile"
	"github.com/marcus/prep/pkg/monitor"
	"github.com/marcus/prep/pkg/monitor/keymap"
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	Aliases: []string{"ui"},
	Short:   "Interactive checklist that follows the shared backend",
	Long: `Open the checklist in a full-screen terminal UI. Changes made elsewhere
appear as they arrive and show up briefly in the footer.

Key bindings:
  j/k, ↑/↓       Move between rows
  Tab/Shift+Tab  Jump between dishes
  o / p / Space  Toggle on hand, toggle prep, cycle
  s              Star the row
  n              Edit the row note
  t              Add or remove the row from the daily list
  f / d / c      Cycle filter, switch full/daily, compact rows
  Enter          Show the recipe
  A / a          Add a dish, add an item
  R / x          Rename or delete the item
  ?              Toggle help
  q              Quit

Bindings can be overridden in .prep/keymap.json, for example
{"bindings": {"main:ctrl+o": "toggle-on-hand"}}.`,
	GroupID: "core",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := loadKeymap(getBaseDir())
		if err != nil {
			return fail(fmt.Errorf("keymap: %w", err))
		}
		notes := reconcile.NewChanNotifier(64, nil)
		return withSession(cmd.Context(), func(s *session) error {
			return runMonitor(cmd.Context(), s.Engine, keys, notes)
		}, engine.WithNotifier(notes))
	},
}

// loadKeymap builds the default bindings plus any overrides under base.
func loadKeymap(base string) (*keymap.Registry, error) {
	keys := keymap.NewRegistry()
	keymap.RegisterDefaults(keys)
	cfg, err := keymap.LoadConfig(keymap.ConfigPath(base))
	if err != nil {
		return nil, err
	}
	keymap.ApplyConfig(keys, cfg)
	return keys, nil
}

// runMonitor drives the engine loop alongside the TUI until either ends.
func runMonitor(ctx context.Context, e *engine.Engine, keys *keymap.Registry, notes *reconcile.ChanNotifier) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	model := monitor.NewModel(e,
		monitor.WithKeymap(keys),
		monitor.WithNotifications(notes.C),
		monitor.WithVersion(versionStr),
	)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()
	cancel()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("monitor: engine stopped", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("error running monitor: %w", runErr)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
