package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/output"
	"github.com/marcus/prep/internal/snapshot"
)

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Write checklist state to a JSON file",
	Long: `Write the checklist and all device state (cells, stars, notes, view,
daily list, your recipes) to a JSON document.

The path may be a local file, '-' for stdout, or s3://bucket/key. S3 uses
the usual AWS environment plus PREP_S3_ENDPOINT for S3-compatible stores.`,
	GroupID: "files",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc := "-"
		if len(args) == 1 {
			loc = args[0]
		}
		return withSession(cmd.Context(), func(s *session) error {
			data, err := snapshot.Marshal(s.Export())
			if err != nil {
				return err
			}
			if loc == "-" {
				_, err := os.Stdout.Write(append(data, '\n'))
				return err
			}
			if err := snapshot.NewStorage().Write(cmd.Context(), loc, data); err != nil {
				return err
			}
			output.Success("Exported to %s", loc)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Replace device state with an exported JSON file",
	Long: `Replace this device's state with an exported document. Older exports
keyed by dish and item name are mapped onto the current items; state for
names that no longer exist is dropped. The shared checklist itself is
never changed by an import.`,
	GroupID: "files",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc := args[0]
		var (
			data []byte
			err  error
		)
		if loc == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = snapshot.NewStorage().Read(cmd.Context(), loc)
		}
		if err != nil {
			return fail(err)
		}
		doc, rep, err := snapshot.Decode(data)
		if err != nil {
			return fail(err)
		}
		return withSession(cmd.Context(), func(s *session) error {
			rep = s.Import(doc, rep)
			output.Success("Imported %s", loc)
			printReport(rep)
			return nil
		})
	},
}

func printReport(rep snapshot.Report) {
	if rep.Legacy {
		output.Info("Converted a name-keyed export: %d keys mapped, %d dropped", rep.Migrated, rep.Dropped)
	} else if rep.Dropped > 0 {
		output.Warning("Dropped state for %d rows that no longer exist", rep.Dropped)
	}
	if len(rep.Defaulted) > 0 {
		output.Warning("Missing or malformed fields reset to defaults: %s", strings.Join(rep.Defaulted, ", "))
	}
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
