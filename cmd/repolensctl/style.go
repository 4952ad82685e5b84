package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func statusStyle(status string) lipgloss.Style {
	if status == "ok" {
		return okStyle
	}
	return errStyle
}

const barWidth = 30

// newProgressBar returns the bar used for index runs. It is rendered with
// ViewAs, so no program loop is needed.
func newProgressBar() progress.Model {
	return progress.New(
		progress.WithGradient("#00ffff", "#00ff00"),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
}

// renderProgress draws fraction in [0, 1] followed by its percentage.
func renderProgress(bar progress.Model, fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return bar.ViewAs(fraction) + " " + dimStyle.Render(fmt.Sprintf("%3.0f%%", fraction*100))
}
