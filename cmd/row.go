package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/output"
	"github.com/marcus/prep/internal/rowstate"
)

const rowArgsHelp = `Rows are addressed by item id, or by dish and item name:

  prep on 6f1c...
  prep on Soup Stock`

func toggleCommand(use, short string, attr rowstate.Attr, label string) *cobra.Command {
	return &cobra.Command{
		Use:     use + " [dish] <item>",
		Short:   short,
		Long:    short + ".\n\n" + rowArgsHelp,
		GroupID: "row",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(s *session) error {
				key, name, err := resolveItem(s, args)
				if err != nil {
					return err
				}
				on, err := s.Toggle(key, attr)
				if err != nil {
					return err
				}
				if on {
					output.Success("%s: %s", name, label)
				} else {
					output.Info("%s: no longer %s", name, label)
				}
				return nil
			})
		},
	}
}

var onCmd = toggleCommand("on", "Toggle whether an item is on hand", rowstate.AttrOnHand, "on hand")
var prepCmd = toggleCommand("prep", "Toggle whether an item needs prep", rowstate.AttrPrep, "needs prep")
var starCmd = toggleCommand("star", "Toggle an item's star", rowstate.AttrHighlight, "starred")

var cycleState toggleFlag

var cycleCmd = &cobra.Command{
	Use:     "cycle [dish] <item>",
	Short:   "Step an item through nothing, on hand and needs prep",
	Long:    "Step an item through nothing, on hand and needs prep, or jump with --set.\n\n" + rowArgsHelp,
	GroupID: "row",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			key, name, err := resolveItem(s, args)
			if err != nil {
				return err
			}
			state := cycleState.value
			if cycleState.set {
				err = s.SetCell(key, state)
			} else {
				state, err = s.Cycle(key)
			}
			if err != nil {
				return err
			}
			output.Info("%s %s", output.ToggleBadge(state), name)
			return nil
		})
	},
}

var noteCmd = &cobra.Command{
	Use:   "note <item> [text...]",
	Short: "Show, set or clear an item's note",
	Long: `Show an item's note, or set it to the remaining arguments. --clear removes it.

The item is an id, or a name together with --dish:

  prep note --dish Soup Stock strain twice`,
	GroupID: "row",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clearNote, _ := cmd.Flags().GetBool("clear")
		dish, _ := cmd.Flags().GetString("dish")
		return withSession(cmd.Context(), func(s *session) error {
			ref := []string{args[0]}
			if dish != "" {
				ref = []string{dish, args[0]}
			}
			key, name, err := resolveItem(s, ref)
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			switch {
			case clearNote:
				text = ""
			case text == "":
				if note := s.State(key).Note; note != "" {
					output.Info("%s: %s", name, note)
				} else {
					output.Info("%s has no note", name)
				}
				return nil
			}
			if err := s.SetNote(key, text); err != nil {
				return err
			}
			if text == "" {
				output.Success("Cleared note on %s", name)
			} else {
				output.Success("Noted on %s", name)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(onCmd, prepCmd, starCmd, cycleCmd, noteCmd)

	cycleCmd.Flags().Var(&cycleState, "set", "Set the cell directly: none, on or prep")
	noteCmd.Flags().Bool("clear", false, "Remove the note")
	noteCmd.Flags().String("dish", "", "Dish holding the item, to address it by name")
}
