package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/output"
)

var itemCmd = &cobra.Command{
	Use:     "item",
	Short:   "Add, rename, move and remove items",
	GroupID: "core",
	Long: `Items are addressed either by id or by dish and name:

  prep item rename 6f1c... Broth
  prep item rename --dish Soup Stock Broth`,
}

// itemArgs resolves the first argument to an item id, using --dish to
// look the name up when given.
func itemArgs(cmd *cobra.Command, s *session, ref string) (id, name string, err error) {
	dish, _ := cmd.Flags().GetString("dish")
	it, err := s.FindItem(dish, ref)
	if err != nil {
		return "", "", err
	}
	return it.ID, it.Name, nil
}

var itemAddCmd = &cobra.Command{
	Use:   "add <dish> <name>...",
	Short: "Append items to a dish",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			d, err := s.FindDish(args[0])
			if err != nil {
				return err
			}
			for _, name := range args[1:] {
				row, err := s.AddItem(cmd.Context(), d.ID, name)
				if err != nil {
					return err
				}
				output.Success("Added %s to %s (%s)", row.Name, d.Name, row.ID)
			}
			return nil
		})
	},
}

var itemRenameCmd = &cobra.Command{
	Use:   "rename <item> <new-name>",
	Short: "Rename an item, keeping its state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			id, old, err := itemArgs(cmd, s, args[0])
			if err != nil {
				return err
			}
			row, err := s.RenameItem(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			output.Success("Renamed %s to %s", old, row.Name)
			return nil
		})
	},
}

var itemMoveCmd = &cobra.Command{
	Use:   "move <item> <to-dish>",
	Short: "Move an item to the end of another dish",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			id, name, err := itemArgs(cmd, s, args[0])
			if err != nil {
				return err
			}
			to, err := s.FindDish(args[1])
			if err != nil {
				return err
			}
			if _, err := s.MoveItem(cmd.Context(), id, to.ID); err != nil {
				return err
			}
			output.Success("Moved %s to %s", name, to.Name)
			return nil
		})
	},
}

var itemPositionCmd = &cobra.Command{
	Use:   "pos <item> <position>",
	Short: "Set an item's position within its dish",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := strconv.Atoi(args[1])
		if err != nil || pos < 0 {
			return fail(fmt.Errorf("position must be a non-negative integer, got %q", args[1]))
		}
		return withSession(cmd.Context(), func(s *session) error {
			id, name, err := itemArgs(cmd, s, args[0])
			if err != nil {
				return err
			}
			if _, err := s.RepositionItem(cmd.Context(), id, pos); err != nil {
				return err
			}
			output.Success("Moved %s to position %d", name, pos)
			return nil
		})
	},
}

var itemRemoveCmd = &cobra.Command{
	Use:     "rm <item>",
	Aliases: []string{"delete"},
	Short:   "Delete an item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			id, name, err := itemArgs(cmd, s, args[0])
			if err != nil {
				return err
			}
			if err := s.DeleteItem(cmd.Context(), id); err != nil {
				return err
			}
			output.Success("Deleted %s", name)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.AddCommand(itemAddCmd, itemRenameCmd, itemMoveCmd, itemPositionCmd, itemRemoveCmd)

	for _, c := range []*cobra.Command{itemRenameCmd, itemMoveCmd, itemPositionCmd, itemRemoveCmd} {
		c.Flags().String("dish", "", "Dish holding the item, to address it by name")
	}
}
