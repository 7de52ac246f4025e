// Package output provides styled terminal output helpers (success, error,
// warning, checklist formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/recipe"
	"github.com/marcus/prep/internal/view"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	starStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	sharedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	toggleStyles = map[models.Toggle]lipgloss.Style{
		models.ToggleNone:   lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		models.ToggleOnHand: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.TogglePrep:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeNoSelection  = "no_selection"
	ErrCodeBackendError = "backend_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// ToggleBadge renders the ternary cell, e.g. "[ ]", "[✓]", "[~]".
func ToggleBadge(t models.Toggle) string {
	symbol := " "
	switch t {
	case models.ToggleOnHand:
		symbol = "✓"
	case models.TogglePrep:
		symbol = "~"
	}
	return toggleStyles[t].Render("[" + symbol + "]")
}

// FormatRow formats one checklist row. Compact drops notes and flags.
func FormatRow(r view.Row, compact bool) string {
	var parts []string
	parts = append(parts, ToggleBadge(r.State.Toggle()))
	name := r.Name
	if r.State.Highlighted {
		name = starStyle.Render("★ ") + name
	}
	parts = append(parts, name)
	if compact {
		return strings.Join(parts, " ")
	}
	if r.Shared {
		parts = append(parts, sharedStyle.Render("(shared)"))
	}
	if r.MissingRecipe {
		parts = append(parts, subtleStyle.Render("(no recipe)"))
	}
	if r.State.Note != "" {
		parts = append(parts, subtleStyle.Render("· "+r.State.Note))
	}
	return strings.Join(parts, " ")
}

// FormatChecklist renders projected dishes as text, one header per dish.
// showIDs appends item ids for use with row commands.
func FormatChecklist(dishes []view.DishView, compact, showIDs bool) string {
	if len(dishes) == 0 {
		return subtleStyle.Render("Nothing to show")
	}
	var sb strings.Builder
	for i, d := range dishes {
		if i > 0 && !compact {
			sb.WriteString("\n")
		}
		header := d.Name
		if showIDs {
			header += " " + subtleStyle.Render(d.ID)
		}
		sb.WriteString(titleStyle.Render(header))
		sb.WriteString("\n")
		if d.Empty {
			sb.WriteString("  " + subtleStyle.Render("(no items)") + "\n")
			continue
		}
		for _, r := range d.Rows {
			line := "  " + FormatRow(r, compact)
			if showIDs {
				line += " " + subtleStyle.Render(r.ItemID)
			}
			sb.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatView describes the active view in one line.
func FormatView(v models.ViewState, dishName string) string {
	parts := []string{fmt.Sprintf("mode: %s", v.Mode)}
	switch v.Filter {
	case models.FilterDish:
		parts = append(parts, fmt.Sprintf("dish: %s", dishName))
	case models.FilterHighlighted:
		parts = append(parts, "starred only")
	}
	if v.Where != "" {
		parts = append(parts, fmt.Sprintf("where: %s", v.Where))
	}
	return subtleStyle.Render(strings.Join(parts, " | "))
}

// FormatRecipeSource labels where recipe text came from.
func FormatRecipeSource(src recipe.Source) string {
	switch src {
	case recipe.SourceBackend:
		return subtleStyle.Render("shared recipe")
	case recipe.SourceUser:
		return subtleStyle.Render("your recipe")
	case recipe.SourceBuiltin:
		return subtleStyle.Render("built-in recipe")
	}
	return warningStyle.Render(recipe.Placeholder)
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nRECIPES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	indented := IndentLines(lines, spaces)
	return strings.Join(indented, "\n")
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
