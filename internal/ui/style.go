package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Consistent color scheme across all command output
var (
	// Primary colors
	PrimaryColor   = "#EA580C" // Kiln orange
	SecondaryColor = "#2563EB" // Deep blue
	TertiaryColor  = "#10B981" // Emerald green

	// Status colors
	SuccessColor = "#10B981" // Emerald green
	ErrorColor   = "#EF4444" // Red
	WarningColor = "#F59E0B" // Amber
	InfoColor    = "#3B82F6" // Blue
	RunningColor = "#10B981" // Green for running instances
	StoppedColor = "#6B7280" // Gray for finished instances
	PendingColor = "#F59E0B" // Amber for in-flight steps

	// Text colors
	HeaderColor  = "#F9FAFB" // Near white
	TextColor    = "#E5E7EB" // Light gray
	DimTextColor = "#9CA3AF" // Dimmed gray
	SubtleColor  = "#6B7280" // Very dim gray
	AccentColor  = "#F97316" // Bright orange for highlights

	// Border and accents
	BorderColor        = "#374151" // Dark gray border
	AlternatingRowDark = "#1F2937" // Slightly lighter than background
)

// Style definitions
var (
	// Base styles
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(HeaderColor)).
			Bold(true)

	// Semantic styles
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(SuccessColor))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ErrorColor))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(WarningColor))

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(InfoColor))

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(DimTextColor))

	Highlight = lipgloss.NewStyle().
			Foreground(lipgloss.Color(AccentColor)).
			Bold(true)

	// Component styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(PrimaryColor)).
			Bold(true).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(SecondaryColor)).
			MarginBottom(1)

	// Table styles
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color(HeaderColor))

	TableRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(TextColor))

	// Status styles
	RunningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(RunningColor))

	StoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(StoppedColor))

	PendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(PendingColor))
)

// Terminal width detection (for responsive layouts)
func TerminalWidth() int {
	// Safe default for terminals
	width := 80
	return width
}

// Check if we're in a CI environment
func IsCI() bool {
	return os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" || os.Getenv("TRAVIS") != ""
}

// Center text on the terminal line
func CenterText(text string) string {
	width := TerminalWidth()
	fmtWidth := len(text)
	padding := (width - fmtWidth) / 2
	if padding < 0 {
		padding = 0
	}
	return fmt.Sprintf("%s%s", strings.Repeat(" ", padding), text)
}

// Truncate a string to fit the given width with ellipsis
func TruncateWithEllipsis(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}
