package main

import (
	"fmt"
	"strings"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/playback"
	"github.com/charmbracelet/lipgloss"
)

var (
	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("204")).
			Background(lipgloss.Color("235"))
	paragraphStyle = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2)

	providerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
	stateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	positionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	separator     = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render(" │ ")
)

func keyword(s string) string {
	return keywordStyle.Render(s)
}

func paragraph(s string) string {
	return paragraphStyle.Render(s)
}

// renderStatus renders a one-line playback status.
func renderStatus(provider string, s playback.State) string {
	parts := []string{providerStyle.Render(strings.ToUpper(provider))}

	var icon string
	switch s.Current {
	case playback.StatePlaying:
		icon = "▶"
	case playback.StatePaused:
		icon = "⏸"
	case playback.StateBuffering:
		icon = "…"
	case playback.StateComplete:
		icon = "✓"
	case playback.StateError:
		icon = "⚠"
	default:
		icon = "■"
	}
	parts = append(parts, stateStyle.Render(icon+" "+s.Current.String()))

	if s.Total > 0 {
		pos := min(s.Cursor+1, s.Total)
		parts = append(parts, positionStyle.Render(fmt.Sprintf("%d/%d", pos, s.Total)))
	}
	if s.Current != playback.StateComplete {
		parts = append(parts, positionStyle.Render(s.Offset.Round(100_000_000).String()))
	}

	if s.LastError != nil {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%s: %v", s.LastError.Kind(), s.LastError)))
	}

	return strings.Join(parts, separator)
}
