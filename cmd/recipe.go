package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/prep/internal/input"
	"github.com/marcus/prep/internal/output"
	"github.com/marcus/prep/internal/recipe"
)

var recipeCmd = &cobra.Command{
	Use:     "recipe",
	Short:   "Show and edit recipes",
	GroupID: "recipes",
	Long: `Recipes come from three places, first match wins:

  shared   text stored on the item in the backend ('prep recipe set')
  yours    text kept on this device by item name ('prep recipe user')
  built-in text shipped with prep`,
}

var recipeShowCmd = &cobra.Command{
	Use:   "show <item>",
	Short: "Render an item's recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scale, _ := cmd.Flags().GetFloat64("scale")
		raw, _ := cmd.Flags().GetBool("raw")
		if scale <= 0 {
			return fail(fmt.Errorf("--scale must be positive"))
		}
		return withSession(cmd.Context(), func(s *session) error {
			id, name, err := itemArgs(cmd, s, args[0])
			if err != nil {
				return err
			}
			text, src, err := s.Recipe(id)
			if err != nil {
				return err
			}
			fmt.Println(output.FormatRecipeSource(src))
			if src == recipe.SourceNone {
				return nil
			}
			if raw {
				fmt.Println(recipe.Scale(text, scale))
				return nil
			}
			rendered, err := output.RenderRecipe(name, text, scale, 0)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		})
	},
}

var recipeSetCmd = &cobra.Command{
	Use:   "set <item> [text...]",
	Short: "Store a shared recipe on an item (empty text clears it)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := recipeText(cmd, args[1:])
		if err != nil {
			return fail(err)
		}
		return withSession(cmd.Context(), func(s *session) error {
			id, name, err := itemArgs(cmd, s, args[0])
			if err != nil {
				return err
			}
			if _, err := s.SetRecipe(cmd.Context(), id, text); err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				output.Success("Cleared shared recipe for %s", name)
			} else {
				output.Success("Saved shared recipe for %s", name)
			}
			return nil
		})
	},
}

var recipeUserCmd = &cobra.Command{
	Use:   "user [name] [text...]",
	Short: "List, show or set your own recipes by item name",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		clearIt, _ := cmd.Flags().GetBool("clear")
		return withSession(cmd.Context(), func(s *session) error {
			if len(args) == 0 {
				recipes := s.UserRecipes()
				if len(recipes) == 0 {
					output.Info("No recipes of your own yet")
					return nil
				}
				book := recipe.NewBook(recipes)
				for _, line := range output.BulletList(book.UserNames(), 0) {
					output.Info("%s", line)
				}
				return nil
			}
			name := args[0]
			text, err := recipeText(cmd, args[1:])
			if err != nil {
				return err
			}
			if clearIt {
				text = ""
			} else if text == "" {
				stored, ok := s.UserRecipes()[name]
				if !ok {
					output.Info("No recipe of your own for %s", name)
					return nil
				}
				output.Info("%s", stored)
				return nil
			}
			if err := s.SetUserRecipe(name, text); err != nil {
				return err
			}
			if text == "" {
				output.Success("Removed your recipe for %s", name)
			} else {
				output.Success("Saved your recipe for %s", name)
			}
			return nil
		})
	},
}

// recipeText reads recipe text from --file, or joins the arguments.
func recipeText(cmd *cobra.Command, args []string) (string, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return strings.Join(args, " "), nil
	}
	if len(args) > 0 {
		return "", fmt.Errorf("give recipe text or --file, not both")
	}
	text, err := input.ReadText(path, cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read recipe: %w", err)
	}
	return text, nil
}

func init() {
	rootCmd.AddCommand(recipeCmd)
	recipeCmd.AddCommand(recipeShowCmd, recipeSetCmd, recipeUserCmd)

	recipeShowCmd.Flags().String("dish", "", "Dish holding the item, to address it by name")
	recipeShowCmd.Flags().Float64("scale", 1, "Multiply quantities by this factor")
	recipeShowCmd.Flags().Bool("raw", false, "Print the text without markdown rendering")
	recipeSetCmd.Flags().String("dish", "", "Dish holding the item, to address it by name")
	recipeSetCmd.Flags().String("file", "", "Read the recipe from a file ('-' for stdin)")
	recipeUserCmd.Flags().String("file", "", "Read the recipe from a file ('-' for stdin)")
	recipeUserCmd.Flags().Bool("clear", false, "Remove your recipe for the name")
}
