package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/nowplaying/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgEvent MsgKind = iota
	MsgFeedClosed
	MsgTick
)

// eventMsg is the constructor for [MsgEvent]
func eventMsg(event models.PlaybackEvent) Msg {
	return Msg{kind: MsgEvent, data: event}
}

// feedClosedMsg is the constructor for [MsgFeedClosed]. err is nil when the server ended the stream.
func feedClosedMsg(err error) Msg {
	return Msg{kind: MsgFeedClosed, data: err}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
