package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/nowplaying/internal/models"
)

const (
	tickInterval = time.Second
	maxBarWidth  = 60
)

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	feed     *Feed
	events   chan models.PlaybackEvent
	done     chan error
	last     *models.PlaybackEvent
	received time.Time
	now      func() time.Time
	closed   bool
	err      error
	width    int
	progress progress.Model
	help     help.Model
	keys     keyMap
}

// NewModel creates a TUI model that follows feed until ctx is done.
func NewModel(ctx context.Context, feed *Feed) *Model {
	return &Model{
		ctx:      ctx,
		feed:     feed,
		now:      time.Now,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init connects to the feed and starts the clock.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.connect(), tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(max(msg.Width-4, 10), maxBarWidth)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.reconnect):
			if m.closed {
				return m, m.connect()
			}
		}
		return m, nil

	case Msg:
		switch msg.kind {
		case MsgEvent:
			event := msg.data.(models.PlaybackEvent)
			m.last = &event
			m.received = m.now()
			return m, m.waitForEvent(m.events, m.done)
		case MsgFeedClosed:
			m.closed = true
			m.err, _ = msg.data.(error)
			return m, nil
		case MsgTick:
			return m, tick()
		}
	}

	return m, nil
}

// View renders the latest event.
func (m *Model) View() string {
	title := styles.title.Render("Now Playing")

	var body string
	switch {
	case m.last == nil && !m.closed:
		body = styles.muted.Render(fmt.Sprintf("Connecting to %s ...", m.feed.URL()))
	case m.last == nil:
		body = ""
	default:
		body = m.renderEvent(*m.last)
	}

	if m.closed {
		body += "\n\n" + m.renderClosed()
	}

	return fmt.Sprintf("%s\n%s\n\n%s", title, body, m.help.View(m.keys))
}

func (m *Model) renderEvent(event models.PlaybackEvent) string {
	switch event.Kind {
	case models.EventPlayback:
		return m.renderSong(*event.Song)
	case models.EventIdle:
		return styles.idle.Render("Nothing playing")
	case models.EventError:
		return styles.err.Render("Error: " + event.Message)
	default:
		return ""
	}
}

func (m *Model) renderSong(song models.SongResponse) string {
	position := m.position(song)

	var ratio float64
	if song.TotalMS > 0 {
		ratio = position / song.TotalMS
	}

	state := styles.track.Render("▶")
	if !song.IsPlaying {
		state = styles.paused.Render("❚❚")
	}

	return fmt.Sprintf("%s %s\n%s\n\n%s\n%s / %s",
		state,
		styles.track.Render(song.Title),
		song.Artist,
		m.progress.ViewAs(ratio),
		formatMS(position),
		formatMS(song.TotalMS),
	)
}

func (m *Model) renderClosed() string {
	switch {
	case m.err == nil:
		return styles.idle.Render("Feed closed by server. Press r to reconnect")
	case errors.Is(m.err, context.Canceled):
		return styles.idle.Render("Disconnected")
	default:
		return styles.err.Render(fmt.Sprintf("Feed failed: %v\n\nPress r to reconnect", m.err))
	}
}

// position advances the reported progress by the time since the frame arrived while the track plays.
func (m *Model) position(song models.SongResponse) float64 {
	position := song.ProgressMS
	if song.IsPlaying && !m.closed {
		position += float64(m.now().Sub(m.received).Milliseconds())
	}
	return min(position, song.TotalMS)
}

// connect starts a fresh stream and returns the command that waits for its first event.
func (m *Model) connect() tea.Cmd {
	m.events = make(chan models.PlaybackEvent)
	m.done = make(chan error, 1)
	m.closed = false
	m.err = nil

	events, done := m.events, m.done
	go func() {
		done <- m.feed.Stream(m.ctx, events)
	}()
	return m.waitForEvent(events, done)
}

func (m *Model) waitForEvent(events <-chan models.PlaybackEvent, done <-chan error) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return feedClosedMsg(<-done)
		}
		return eventMsg(event)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatMS renders milliseconds as m:ss.
func formatMS(ms float64) string {
	total := int(ms / 1000)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
