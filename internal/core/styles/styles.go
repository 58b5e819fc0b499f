// Package styles provides shared lipgloss styles for CLI output.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/pickup/internal/core/basket"
	"github.com/hay-kot/pickup/internal/core/deadline"
)

// CurrentPalette holds the active theme palette.
var CurrentPalette Palette

// Style exports.
var (
	HeaderStyle  lipgloss.Style
	LabelStyle   lipgloss.Style
	ValueStyle   lipgloss.Style
	MutedStyle   lipgloss.Style
	TotalStyle   lipgloss.Style
	DividerStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	SuccessStyle lipgloss.Style
	BadgeStyle   lipgloss.Style
)

func init() {
	p, _ := GetPalette(DefaultTheme)
	SetTheme(p)
}

// SetTheme sets the active palette and rebuilds all global styles.
func SetTheme(p Palette) {
	CurrentPalette = p

	HeaderStyle = lipgloss.NewStyle().Foreground(p.Primary).Bold(true)
	LabelStyle = lipgloss.NewStyle().Foreground(p.Secondary)
	ValueStyle = lipgloss.NewStyle().Foreground(p.Foreground)
	MutedStyle = lipgloss.NewStyle().Foreground(p.Muted)
	TotalStyle = lipgloss.NewStyle().Foreground(p.Foreground).Bold(true)
	DividerStyle = lipgloss.NewStyle().Foreground(p.Muted)
	ErrorStyle = lipgloss.NewStyle().Foreground(p.Error)
	WarningStyle = lipgloss.NewStyle().Foreground(p.Warning)
	SuccessStyle = lipgloss.NewStyle().Foreground(p.Success)
	BadgeStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
}

// UrgencyColor maps an urgency level to a palette color.
func UrgencyColor(u deadline.Urgency) lipgloss.Color {
	switch u {
	case deadline.None:
		return CurrentPalette.Success
	case deadline.Info:
		return CurrentPalette.Info
	case deadline.Warning:
		return CurrentPalette.Warning
	case deadline.Urgent, deadline.Critical:
		return CurrentPalette.Error
	default:
		return CurrentPalette.Muted
	}
}

// UrgencyBadge renders an urgency level as a colored badge.
func UrgencyBadge(u deadline.Urgency) string {
	return BadgeStyle.Foreground(UrgencyColor(u)).Render(u.String())
}

// StateBadge renders a cart state.
func StateBadge(s basket.State) string {
	c := CurrentPalette.Primary
	switch s {
	case basket.LockedView:
		c = CurrentPalette.Muted
	case basket.Empty:
		c = CurrentPalette.Secondary
	}
	return BadgeStyle.Foreground(c).Render(s.String())
}

// Money formats minor units as a decimal amount.
func Money(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// Divider renders a horizontal rule of width w.
func Divider(w int) string {
	if w < 1 {
		w = 1
	}
	b := make([]rune, w)
	for i := range b {
		b[i] = '─'
	}
	return DividerStyle.Render(string(b))
}
