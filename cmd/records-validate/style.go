package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	records "github.com/medvertical/records"
)

var (
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
	dim     = lipgloss.Color("#6B7280")
	fg      = lipgloss.Color("#E8E6E3")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(fg)
	passStyle     = lipgloss.NewStyle().Foreground(success).Bold(true)
	failStyle     = lipgloss.NewStyle().Foreground(danger).Bold(true)
	errorTagStyle = lipgloss.NewStyle().Foreground(danger).Bold(true)
	warnTagStyle  = lipgloss.NewStyle().Foreground(warning).Bold(true)
	infoTagStyle  = lipgloss.NewStyle().Foreground(dim)
	dimStyle      = lipgloss.NewStyle().Foreground(dim)
)

func severityTag(severity records.Severity) string {
	switch severity {
	case records.SeverityFatal, records.SeverityError:
		return errorTagStyle.Render("ERROR")
	case records.SeverityWarning:
		return warnTagStyle.Render("WARN ")
	default:
		return infoTagStyle.Render("INFO ")
	}
}

func verdict(valid bool) string {
	if valid {
		return passStyle.Render("VALID")
	}
	return failStyle.Render("INVALID")
}

func scoreBadge(score int) string {
	style := passStyle
	switch {
	case score < 50:
		style = failStyle
	case score < 80:
		style = warnTagStyle
	}
	return style.Render(fmt.Sprintf("%d/100", score))
}
