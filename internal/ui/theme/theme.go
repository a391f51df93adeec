// Package theme holds the terminal styles used by the CLI reports.
package theme

import (
	"fmt"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

// Color palette
var (
	Primary = lipgloss.Color("#8B5CF6") // Vivid Purple
	Accent  = lipgloss.Color("#F97316") // Orange
	Success = lipgloss.Color("#22C55E") // Green
	Error   = lipgloss.Color("#F43F5E") // Rose
	Text    = lipgloss.Color("#F8FAFC") // White
	TextDim = lipgloss.Color("#94A3B8") // Slate
	Border  = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextDim)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Label = lipgloss.NewStyle().
		Foreground(TextDim).
		Width(16)
)

// States
var (
	Correct = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Incorrect = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	Highlight = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)
)

// Table cells
var (
	header = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true).
		Padding(0, 1)

	cell = lipgloss.NewStyle().
		Foreground(Text).
		Padding(0, 1)

	leader = cell.Foreground(Accent).Bold(true)
)

// Table renders rows under headers with a rounded border. The first data
// row is highlighted when highlightFirst is set.
func Table(headers []string, rows [][]string, highlightFirst bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Border)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case row == 0 && highlightFirst:
				return leader
			default:
				return cell
			}
		})
	return t.String()
}

// Field renders a "label value" line.
func Field(label string, value any) string {
	return Label.Render(label) + fmt.Sprint(value)
}

// Percent colours a percentage by whether it reaches pass.
func Percent(p, pass float64) string {
	s := fmt.Sprintf("%.2f%%", p)
	if p >= pass {
		return Correct.Render(s)
	}
	return Incorrect.Render(s)
}
