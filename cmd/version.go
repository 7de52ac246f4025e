package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/output"
	"github.com/marcus/prep/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version and check for updates",
	GroupID: "system",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Print(versionStr)
			return
		}
		fmt.Printf("prep version %s\n", versionStr)

		check, _ := cmd.Flags().GetBool("check")
		if !check || version.IsDevelopmentVersion(versionStr) {
			return
		}
		res := version.Cached(cmd.Context(), versionStr)
		if res.Error != nil {
			output.Warning("update check failed: %v", res.Error)
			return
		}
		if res.HasUpdate {
			fmt.Printf("\nUpdate available: %s → %s\n", versionStr, res.LatestVersion)
			if c := version.UpdateCommand(res.LatestVersion); c != "" {
				fmt.Printf("Run: %s\n", c)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("short", false, "Print only the version")
	versionCmd.Flags().Bool("check", true, "Check GitHub for a newer release")
}
