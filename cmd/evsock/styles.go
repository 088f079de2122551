// File: cmd/evsock/styles.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import "github.com/charmbracelet/lipgloss"

const (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6B7280")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
)

var (
	// TitleStyle renders headers.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	// SubtitleStyle renders descriptions and secondary text.
	SubtitleStyle = lipgloss.NewStyle().Foreground(colorMuted)
	// SuccessStyle renders positive lifecycle notices.
	SuccessStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	// WarningStyle renders recoverable problems.
	WarningStyle = lipgloss.NewStyle().Foreground(colorWarning)
)
