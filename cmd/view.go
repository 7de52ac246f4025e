package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/output"
)

var (
	viewMode   = newModeFlag()
	viewFilter = newFilterFlag()
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show or change how the checklist is filtered",
	Long: `Show or change the view. With no flags, prints the current view.

  --mode full|daily          daily shows only the items in your daily list
  --filter all|dish|highlighted
  --dish <dish>              implies --filter dish
  --where <expr>             extra predicate over rows, e.g. 'onHand && note != ""'

Rows expose: name, dish, onHand, prep, highlighted, note, shared, hasRecipe, position.`,
	GroupID: "view",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		reset, _ := flags.GetBool("reset")
		return withSession(cmd.Context(), func(s *session) error {
			v := s.View()
			if reset {
				v = models.DefaultViewState()
			}
			if viewMode.value != "" {
				v.Mode = models.ViewMode(viewMode.value)
			}
			if viewFilter.value != "" {
				v.Filter = models.FilterKind(viewFilter.value)
			}
			if flags.Changed("dish") {
				ref, _ := flags.GetString("dish")
				d, err := s.FindDish(ref)
				if err != nil {
					return err
				}
				v.Filter = models.FilterDish
				v.DishID = d.ID
			}
			if v.Filter == models.FilterDish && v.DishID == "" {
				return fmt.Errorf("--filter dish needs --dish")
			}
			if flags.Changed("where") {
				v.Where, _ = flags.GetString("where")
			}
			if flags.Changed("compact") {
				on, _ := flags.GetBool("compact")
				s.SetCompact(on)
			}
			if v != s.View() {
				if err := s.SetView(v); err != nil {
					return err
				}
			}
			v = s.View()
			fmt.Println(output.FormatView(v, dishName(s, v)))
			if s.Compact() {
				output.Info("compact rows")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().Var(viewMode, "mode", "View mode: full or daily")
	viewCmd.Flags().Var(viewFilter, "filter", "Filter: all, dish or highlighted")
	viewCmd.Flags().String("dish", "", "Show only this dish (id or name)")
	viewCmd.Flags().String("where", "", "Row predicate; empty clears it")
	viewCmd.Flags().Bool("reset", false, "Start from the default view")
	viewCmd.Flags().Bool("compact", false, "Hide notes and recipe markers")
}
