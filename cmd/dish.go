package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/output"
)

var dishCmd = &cobra.Command{
	Use:     "dish",
	Short:   "Add, rename, remove and list dishes",
	GroupID: "core",
}

var dishAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a dish (prompts for a name when none is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		} else {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Dish name").
					Value(&name).
					Validate(huh.ValidateNotEmpty()),
			))
			if err := form.Run(); err != nil {
				return fail(err)
			}
		}
		return withSession(cmd.Context(), func(s *session) error {
			row, err := s.AddDish(cmd.Context(), name)
			if err != nil {
				return err
			}
			output.Success("Added dish %s (%s)", row.Name, row.ID)
			return nil
		})
	},
}

var dishRenameCmd = &cobra.Command{
	Use:   "rename <dish> <new-name>",
	Short: "Rename a dish",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			d, err := s.FindDish(args[0])
			if err != nil {
				return err
			}
			row, err := s.RenameDish(cmd.Context(), d.ID, args[1])
			if err != nil {
				return err
			}
			output.Success("Renamed %s to %s", d.Name, row.Name)
			return nil
		})
	},
}

var dishRemoveCmd = &cobra.Command{
	Use:     "rm <dish>",
	Aliases: []string{"delete"},
	Short:   "Delete a dish and all of its items",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return withSession(cmd.Context(), func(s *session) error {
			d, err := s.FindDish(args[0])
			if err != nil {
				return err
			}
			if !force {
				confirmed := false
				prompt := huh.NewConfirm().
					Title(fmt.Sprintf("Delete %s and its %d items?", d.Name, len(d.Items))).
					Value(&confirmed)
				if err := prompt.Run(); err != nil {
					return err
				}
				if !confirmed {
					output.Info("Kept %s", d.Name)
					return nil
				}
			}
			if err := s.DeleteDish(cmd.Context(), d.ID); err != nil {
				return err
			}
			output.Success("Deleted %s", d.Name)
			return nil
		})
	},
}

var dishListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List dishes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		return withSession(cmd.Context(), func(s *session) error {
			dishes := s.Dishes()
			if jsonOut {
				return output.JSON(dishes)
			}
			if len(dishes) == 0 {
				output.Info("No dishes yet. Add one with 'prep dish add'.")
				return nil
			}
			for _, d := range dishes {
				output.Info("%s  %s  %d items", d.ID, d.Name, len(d.Items))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dishCmd)
	dishCmd.AddCommand(dishAddCmd, dishRenameCmd, dishRemoveCmd, dishListCmd)

	dishRemoveCmd.Flags().BoolP("force", "f", false, "Do not ask for confirmation")
	dishListCmd.Flags().Bool("json", false, "Output as JSON")
}
