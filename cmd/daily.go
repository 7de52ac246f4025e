package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/input"
	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/output"
	"github.com/marcus/prep/internal/rowkey"
)

var dailyCmd = &cobra.Command{
	Use:     "daily",
	Short:   "Pick the items you are responsible for today",
	GroupID: "view",
	Long: `The daily list is the subset of items this device works on today.
Switch to it with 'prep view --mode daily'.`,
}

var dailyPickCmd = &cobra.Command{
	Use:   "pick [item...]",
	Short: "Replace the daily list (interactive when no items are given)",
	Long: `Replace the daily list.

Items are ids, or names together with --dish. "-" reads items from stdin
and @file from a file, one per line. --starred picks every starred row. --add keeps what is already picked. With neither items nor --starred,
a checklist prompt opens.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		starred, _ := flags.GetBool("starred")
		add, _ := flags.GetBool("add")
		dish, _ := flags.GetString("dish")
		args, err := input.ExpandArgs(args, cmd.InOrStdin())
		if err != nil {
			return fail(err)
		}
		return withSession(cmd.Context(), func(s *session) error {
			picked := map[string]bool{}
			if add {
				for k := range s.Daily().Keys {
					picked[k] = true
				}
			}
			for _, ref := range args {
				it, err := s.FindItem(dish, ref)
				if err != nil {
					return err
				}
				key, err := rowkey.Encode(it.DishID, it.ID)
				if err != nil {
					return err
				}
				picked[key] = true
			}
			if starred {
				for _, key := range allKeys(s.Dishes()) {
					if s.State(key).Highlighted {
						picked[key] = true
					}
				}
			}
			if len(args) == 0 && !starred {
				keys, err := promptDaily(s)
				if err != nil {
					return err
				}
				picked = map[string]bool{}
				for _, k := range keys {
					picked[k] = true
				}
			}

			keys := make([]string, 0, len(picked))
			for k := range picked {
				keys = append(keys, k)
			}
			if err := s.PickDaily(keys); err != nil {
				return err
			}
			output.Success("Daily list has %d items", len(keys))
			return nil
		})
	},
}

// promptDaily opens a multi-select over every item, preselecting the
// current daily list.
func promptDaily(s *session) ([]string, error) {
	current := s.Daily()
	var opts []huh.Option[string]
	for _, d := range s.Dishes() {
		for _, it := range d.Items {
			key, err := rowkey.Encode(d.ID, it.ID)
			if err != nil {
				continue
			}
			label := fmt.Sprintf("%s · %s", d.Name, it.Name)
			opts = append(opts, huh.NewOption(label, key).Selected(current.Contains(key)))
		}
	}
	if len(opts) == 0 {
		return nil, fmt.Errorf("no items to pick from; add some with 'prep item add'")
	}
	var keys []string
	err := huh.NewMultiSelect[string]().
		Title("Today's items").
		Options(opts...).
		Height(min(len(opts)+2, 20)).
		Value(&keys).
		Run()
	return keys, err
}

var dailyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the daily list and return to the full view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			s.ClearDaily()
			output.Success("Daily list cleared")
			return nil
		})
	},
}

var dailyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the items on the daily list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			sel := s.Daily()
			if !sel.Enabled {
				output.Info("No daily list picked")
				return nil
			}
			var lines []string
			for _, d := range s.Dishes() {
				for _, it := range d.Items {
					key, err := rowkey.Encode(d.ID, it.ID)
					if err == nil && sel.Contains(key) {
						lines = append(lines, d.Name+" · "+it.Name)
					}
				}
			}
			fmt.Println(output.SectionHeader(fmt.Sprintf("Daily list (%d)", len(lines))))
			for _, l := range output.BulletList(lines, 2) {
				fmt.Println(l)
			}
			return nil
		})
	},
}

// allKeys lists the composite key of every item in mirror order.
func allKeys(dishes []models.Dish) []string {
	var keys []string
	for _, d := range dishes {
		for _, it := range d.Items {
			if key, err := rowkey.Encode(d.ID, it.ID); err == nil {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

func init() {
	rootCmd.AddCommand(dailyCmd)
	dailyCmd.AddCommand(dailyPickCmd, dailyClearCmd, dailyShowCmd)

	dailyPickCmd.Flags().Bool("starred", false, "Pick every starred row")
	dailyPickCmd.Flags().Bool("add", false, "Keep the items already picked")
	dailyPickCmd.Flags().String("dish", "", "Dish holding the items, to address them by name")
}
