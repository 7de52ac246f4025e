package keymap

import (
	"fmt"
	"strings"
)

// helpSections lists the contexts shown in the help overlay, in order.
var helpSections = []struct {
	Title   string
	Context Context
}{
	{"CHECKLIST", ContextMain},
	{"RECIPE", ContextRecipe},
	{"NOTE", ContextNote},
	{"ANYWHERE", ContextGlobal},
}

// GenerateHelp renders every binding, grouped by context. Keys bound to
// the same command are joined on one line.
func (r *Registry) GenerateHelp() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("\nPREP - Key Bindings\n")
	for _, sec := range helpSections {
		bindings := r.bindings[sec.Context]
		if len(bindings) == 0 {
			continue
		}
		sb.WriteString("\n" + sec.Title + ":\n")
		var order []Command
		keys := map[Command][]string{}
		desc := map[Command]string{}
		for _, b := range bindings {
			if _, seen := keys[b.Command]; !seen {
				order = append(order, b.Command)
				desc[b.Command] = b.Description
			}
			keys[b.Command] = append(keys[b.Command], formatKey(b.Key))
		}
		for _, cmd := range order {
			sb.WriteString(fmt.Sprintf("  %-20s %s\n", strings.Join(keys[cmd], " / "), desc[cmd]))
		}
	}
	sb.WriteString("\nOverride keys in .prep/keymap.json, e.g. {\"bindings\": {\"main:x\": \"star\"}}\n")
	return sb.String()
}

// FooterHelp returns the one-line hint shown under the checklist.
func (r *Registry) FooterHelp() string {
	return "o:on hand p:prep space:cycle s:star n:note t:today f:filter d:daily enter:recipe ?:help q:quit"
}

// RecipeFooterHelp returns the hint shown under an open recipe.
func (r *Registry) RecipeFooterHelp() string {
	return "j/k:scroll +/-:scale esc:close"
}

// formatKey converts a binding key to its display form.
func formatKey(key string) string {
	switch key {
	case "up":
		return "↑"
	case "down":
		return "↓"
	case "space":
		return "Space"
	case "enter":
		return "Enter"
	case "esc":
		return "Esc"
	case "tab":
		return "Tab"
	case "shift+tab":
		return "Shift+Tab"
	}
	if rest, ok := strings.CutPrefix(key, "ctrl+"); ok {
		return "Ctrl+" + rest
	}
	return key
}
