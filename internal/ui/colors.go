package ui

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	purple = "#7D56F4"
	green  = "#04B575"
	red    = "#FF0000"
	orange = "#FFA500"
	gray   = "#626262"
)

var styles = newPalette()

// Palette holds the [lipgloss.Style] for each piece of the now-playing view.
type Palette struct {
	title  lipgloss.Style // header
	track  lipgloss.Style // playing track title and play marker
	paused lipgloss.Style // pause marker
	idle   lipgloss.Style // nothing playing, feed closed
	err    lipgloss.Style // error events and feed failures
	muted  lipgloss.Style // connection status
}

func newPalette() *Palette {
	return &Palette{
		title:  NewBold(purple).MarginBottom(1),
		track:  NewBold(green),
		paused: NewStyle(orange).Bold(true),
		idle:   NewStyle(orange),
		err:    NewBold(red),
		muted:  NewEm(gray),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
