package tui

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	PrimaryColor = lipgloss.Color("39")  // Blue
	AccentColor  = lipgloss.Color("76")  // Green
	ErrorColor   = lipgloss.Color("196") // Red
	WarningColor = lipgloss.Color("214") // Orange
	MutedColor   = lipgloss.Color("240") // Gray
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	CountStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	DoneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(AccentColor)

	CancelledStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(WarningColor)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ErrorColor)

	HintStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)
)
