package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/marcus/prep/internal/recipe"
)

// Recipe text wraps between these widths whatever the terminal size.
const (
	minRecipeWidth = 20
	maxRecipeWidth = 100
	fallbackWidth  = 80
)

// TerminalWidth returns the width of stdout, then $COLUMNS, then fallback.
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if w, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && w > 0 {
		return w
	}
	if fallback > 0 {
		return fallback
	}
	return fallbackWidth
}

// RecipeMarkdown is the document shown for one recipe: the item name as
// heading, then the text with quantities multiplied by scale.
func RecipeMarkdown(name, text string, scale float64) string {
	body := strings.TrimSpace(recipe.Scale(text, scale))
	return "# " + name + "\n\n" + body + "\n"
}

// RenderRecipe renders a recipe with glamour. width <= 0 uses the terminal
// width. Blank text renders as "".
func RenderRecipe(name, text string, scale float64, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width <= 0 {
		width = TerminalWidth(fallbackWidth)
	}
	width = min(max(width, minRecipeWidth), maxRecipeWidth)

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(RecipeMarkdown(name, text, scale))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}
