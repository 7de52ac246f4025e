package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/config"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show or change the project config",
	GroupID: "system",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config, including environment overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		cfg, err := config.Resolve(getBaseDir())
		if err != nil {
			return fail(err)
		}
		if jsonOut {
			if cfg.Webhook != nil && cfg.Webhook.Secret != "" {
				masked := *cfg.Webhook
				masked.Secret = "********"
				cfg.Webhook = &masked
			}
			return output.JSON(cfg)
		}
		output.Info("Project:   %s", getBaseDir())
		output.Info("Backend:   %s", describeBackend(cfg.Backend))
		output.Info("Poll:      %s", config.PollInterval(cfg.Backend))
		if cfg.Namespace != "" {
			output.Info("Namespace: %s", cfg.Namespace)
		}
		if cfg.DeviceID != "" {
			output.Info("Device:    %s", cfg.DeviceID)
		}
		if cfg.Webhook != nil && cfg.Webhook.URL != "" {
			signed := ""
			if cfg.Webhook.Secret != "" {
				signed = " (signed)"
			}
			output.Info("Webhook:   %s%s", cfg.Webhook.URL, signed)
		}
		return nil
	},
}

var backendDriver = newDriverFlag()

var configBackendCmd = &cobra.Command{
	Use:   "set-backend",
	Short: "Point the project at a different shared backend",
	Long: `Replace the backend section of .prep/config.json. Device state is kept;
rows whose items do not exist in the new backend are dropped on next start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b := models.BackendConfig{Driver: backendDriver.value}
		b.DSN, _ = cmd.Flags().GetString("dsn")
		b.URL, _ = cmd.Flags().GetString("url")
		b.PollInterval, _ = cmd.Flags().GetString("poll")
		if b.Driver == "" {
			if err := backendForm(&b).Run(); err != nil {
				return fail(err)
			}
		}
		if err := config.Validate(&models.Config{Backend: b}); err != nil {
			return fail(err)
		}
		if err := config.SetBackend(getBaseDir(), b); err != nil {
			return fail(err)
		}
		output.Success("Backend set to %s", describeBackend(b))
		return nil
	},
}

var configWebhookCmd = &cobra.Command{
	Use:   "set-webhook [url]",
	Short: "Post change notifications from watch to a URL",
	Long: `Store the webhook that 'prep watch' posts change notifications to.
With --secret each request carries X-Prep-Signature: sha256=<hmac of
"timestamp.body">. Use --clear to remove it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if remove, _ := cmd.Flags().GetBool("clear"); remove {
			if err := config.SetWebhook(getBaseDir(), nil); err != nil {
				return fail(err)
			}
			output.Success("Webhook removed")
			return nil
		}
		if len(args) == 0 {
			return fail(fmt.Errorf("a url is required (or --clear)"))
		}
		u, err := url.Parse(args[0])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fail(fmt.Errorf("invalid webhook url %q", args[0]))
		}
		secret, _ := cmd.Flags().GetString("secret")
		if err := config.SetWebhook(getBaseDir(), &models.WebhookConfig{URL: u.String(), Secret: secret}); err != nil {
			return fail(err)
		}
		output.Success("Webhook set to %s", u)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configBackendCmd, configWebhookCmd)

	configWebhookCmd.Flags().String("secret", "", "HMAC secret for signing requests")
	configWebhookCmd.Flags().Bool("clear", false, "Remove the webhook")

	configShowCmd.Flags().Bool("json", false, "Output as JSON")
	configBackendCmd.Flags().Var(backendDriver, "driver", "Backend driver: sqlite, postgres, remote or memory")
	configBackendCmd.Flags().String("dsn", "", "Database file or connection string")
	configBackendCmd.Flags().String("url", "", "prep-server base URL")
	configBackendCmd.Flags().String("poll", "", "How often to check the backend for changes")
}
