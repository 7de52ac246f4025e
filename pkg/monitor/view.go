package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/prep/internal/models"
	"github.com/marcus/prep/internal/output"
)

// View implements tea.Model.
func (m Model) View() string {
	switch {
	case m.helpOpen:
		return m.overlay(helpStyle.Render(m.keys.GenerateHelp()))
	case m.form != nil:
		return m.overlay(m.form.form.View())
	case m.recipe != nil:
		return m.overlay(m.renderRecipeModal())
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n")
	sb.WriteString(m.renderBody())
	if m.noteKey != "" {
		sb.WriteString("\n")
		sb.WriteString(ansi.Truncate(" Note: "+m.noteInput.View(), m.width, "…"))
	}
	for _, t := range m.toasts {
		style := toastStyle
		if t.err {
			style = toastErrorStyle
		}
		sb.WriteString("\n")
		sb.WriteString(ansi.Truncate(" "+style.Render(t.text), m.width, "…"))
	}
	sb.WriteString("\n")
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m Model) overlay(content string) string {
	box := modalStyle.Width(m.modalWidth()).Render(content)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderHeader() string {
	v := m.engine.View()
	dishName := ""
	if v.Filter == models.FilterDish {
		for _, d := range m.dishes {
			if d.ID == v.DishID {
				dishName = d.Name
			}
		}
	}
	title := headerStyle.Render("prep")
	desc := " " + output.FormatView(v, dishName)
	if m.compact {
		desc += subtleStyle.Render(" · compact")
	}
	right := ""
	switch {
	case m.update != nil:
		right = toastStyle.Render("update " + m.update.LatestVersion)
	case m.version != "":
		right = subtleStyle.Render(m.version)
	}
	left := ansi.Truncate(title+desc, m.width-lipgloss.Width(right)-1, "…")
	pad := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

// renderBody draws the visible window of checklist lines.
func (m Model) renderBody() string {
	h := m.bodyHeight()
	if len(m.lines) == 0 {
		msg := "Nothing to show. Press A to add a dish"
		if m.engine.View().Filter != models.FilterAll {
			msg = "Nothing matches this view. Press f to change the filter"
		}
		return subtleStyle.Render(" "+msg) + strings.Repeat("\n", h-1)
	}

	out := make([]string, 0, h)
	end := min(m.offset+h, len(m.lines))
	for i := m.offset; i < end; i++ {
		out = append(out, m.renderLine(i))
	}
	for len(out) < h {
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}

func (m Model) renderLine(i int) string {
	l := m.lines[i]
	d := m.dishes[l.dish]
	var text string
	if l.isHeader() {
		text = " " + dishStyle.Render(d.Name)
		if d.Empty {
			text += subtleStyle.Render("  (no items)")
		} else {
			text += subtleStyle.Render(fmt.Sprintf("  %d", len(d.Rows)))
		}
	} else {
		text = "   " + output.FormatRow(d.Rows[l.row], m.compact)
	}
	text = ansi.Truncate(text, m.width, "…")
	if i == m.cursor {
		if pad := m.width - lipgloss.Width(text); pad > 0 {
			text += strings.Repeat(" ", pad)
		}
		return selectedRowStyle.Render(ansi.Strip(text))
	}
	return text
}

func (m Model) renderRecipeModal() string {
	rs := m.recipe
	head := fmt.Sprintf("%s  %s", output.FormatRecipeSource(rs.source), subtleStyle.Render(fmt.Sprintf("×%g", rs.scale)))
	foot := helpStyle.Render(m.keys.RecipeFooterHelp())
	return lipgloss.JoinVertical(lipgloss.Left, head, rs.vp.View(), foot)
}

func (m Model) renderFooter() string {
	hint := m.keys.FooterHelp()
	if p := m.keys.PendingKey(); p != "" {
		hint = p + " …"
	}
	return helpStyle.Render(ansi.Truncate(" "+hint, m.width, "…"))
}
