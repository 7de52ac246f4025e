package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/output"
)

var showCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"ls", "list"},
	Short:   "Show the checklist through the current view",
	Long: `Show the checklist through the current view (see 'prep view').

Each row shows its cell: [ ] nothing, [✓] on hand, [~] needs prep.
Starred rows carry ★; (shared) marks items that appear in several dishes.`,
	GroupID: "core",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		showIDs, _ := cmd.Flags().GetBool("ids")
		return withSession(cmd.Context(), func(s *session) error {
			dishes := s.Project()
			if jsonOut {
				return output.JSON(dishes)
			}
			v := s.View()
			compact := s.Compact()
			if cmd.Flags().Changed("compact") {
				compact, _ = cmd.Flags().GetBool("compact")
			}
			fmt.Println(output.FormatView(v, dishName(s, v)))
			fmt.Println(output.FormatChecklist(dishes, compact, showIDs))
			return nil
		})
	},
}

func dishName(s *session, v models.ViewState) string {
	if v.Filter != models.FilterDish {
		return ""
	}
	d, err := s.FindDish(v.DishID)
	if err != nil {
		return v.DishID
	}
	return d.Name
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().Bool("json", false, "Output the projected view as JSON")
	showCmd.Flags().Bool("ids", false, "Show dish and item ids")
	showCmd.Flags().Bool("compact", false, "Override the saved compact setting")
}
