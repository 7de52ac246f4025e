package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marcus/prep/internal/config"
	"github.com/marcus/prep/internal/engine"
	"github.com/marcus/prep/internal/reconcile"
	"github.com/marcus/prep/internal/webhook"
)

// watchSaveInterval is how often watch persists device state while running.
const watchSaveInterval = 30 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print changes other people make until interrupted",
	Long: `Follow the shared checklist and print one line per change made elsewhere:
dishes and items added, renamed, moved or removed, and recipe edits.
Device state is reconciled as changes arrive.

When a webhook is configured (config set-webhook, or PREP_WEBHOOK_URL) the
same changes are posted to it in batches. Failed posts are logged and dropped.`,
	GroupID: "core",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		quiet, _ := cmd.Flags().GetBool("quiet")
		fwd, err := webhookForwarder(getBaseDir())
		if err != nil {
			return fail(err)
		}
		notes := reconcile.NewChanNotifier(64, nil)
		return withSession(cmd.Context(), func(s *session) error {
			return watch(cmd.Context(), s.Engine, notes, fwd, func(n reconcile.Notification) {
				switch {
				case quiet:
				case jsonOut:
					line, err := json.Marshal(n)
					if err != nil {
						slog.Warn("watch: encode notification", "err", err)
						return
					}
					fmt.Println(string(line))
				default:
					printNotification(n)
				}
			})
		}, engine.WithNotifier(notes))
	},
}

// webhookForwarder returns the configured forwarder, or nil when no
// webhook is set.
func webhookForwarder(base string) (*webhook.Forwarder, error) {
	url := webhook.GetURL(base)
	if url == "" {
		return nil, nil
	}
	cfg, err := config.Resolve(base)
	if err != nil {
		return nil, err
	}
	return &webhook.Forwarder{
		URL:       url,
		Secret:    webhook.GetSecret(base),
		Namespace: cfg.Namespace,
		DeviceID:  cfg.DeviceID,
	}, nil
}

// watch runs the engine and hands each notification to emit, and to fwd
// when it is set, until ctx is cancelled.
func watch(ctx context.Context, e *engine.Engine, notes *reconcile.ChanNotifier, fwd *webhook.Forwarder, emit func(reconcile.Notification)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.Run(ctx)
	})

	var hook chan reconcile.Notification
	if fwd != nil {
		hook = make(chan reconcile.Notification, 256)
		g.Go(func() error {
			return fwd.Run(ctx, hook)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(watchSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case n := <-notes.C:
				emit(n)
				if hook != nil {
					select {
					case hook <- n:
					default:
						slog.Warn("watch: webhook queue full, dropping notification", "kind", n.Kind)
					}
				}
			case <-ticker.C:
				if err := e.Save(); err != nil {
					slog.Warn("watch: save device state", "err", err)
				}
			}
		}
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("json", false, "Print notifications as JSON lines")
	watchCmd.Flags().BoolP("quiet", "q", false, "Print nothing; only reconcile and forward to the webhook")
}
