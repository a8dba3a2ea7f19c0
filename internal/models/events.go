package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind discriminates the variants of [PlaybackEvent].
type EventKind int

const (
	EventPlayback EventKind = iota // a track is loaded on the player
	EventError                     // upstream, storage or snapshot failure
	EventIdle                      // nothing is playing
)

func (k EventKind) String() string {
	switch k {
	case EventPlayback:
		return "playback"
	case EventError:
		return "error"
	case EventIdle:
		return "idle"
	default:
		return ""
	}
}

// SongResponse is the normalized view of a playback snapshot pushed to clients.
type SongResponse struct {
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	AlbumCover string  `json:"album_cover"`
	ProgressMS float64 `json:"progress_ms"`
	TotalMS    float64 `json:"total_ms"`
	IsPlaying  bool    `json:"is_playing"`
}

// PlaybackEvent is one observation emitted by a poller.
type PlaybackEvent struct {
	Kind    EventKind
	Song    *SongResponse
	Message string
}

// PlaybackSuccess wraps a song in a playback event.
func PlaybackSuccess(song SongResponse) PlaybackEvent {
	return PlaybackEvent{Kind: EventPlayback, Song: &song}
}

// PlaybackFailure builds an error event from err.
func PlaybackFailure(err error) PlaybackEvent {
	return PlaybackEvent{Kind: EventError, Message: err.Error()}
}

// PlaybackIdle builds a nothing-playing event.
func PlaybackIdle() PlaybackEvent {
	return PlaybackEvent{Kind: EventIdle}
}

func (e PlaybackEvent) String() string {
	switch e.Kind {
	case EventPlayback:
		if e.Song == nil {
			return "playback"
		}
		return fmt.Sprintf("playback %q by %q", e.Song.Title, e.Song.Artist)
	case EventError:
		return "error: " + e.Message
	default:
		return e.Kind.String()
	}
}

// MarshalJSON encodes the event in the wire format consumed by feed clients.
func (e PlaybackEvent) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventPlayback:
		if e.Song == nil {
			return nil, fmt.Errorf("playback event without song")
		}
		return json.Marshal(e.Song)
	case EventError:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Message})
	case EventIdle:
		return json.Marshal(struct {
			Idle      bool `json:"idle"`
			IsPlaying bool `json:"is_playing"`
		}{true, false})
	default:
		return nil, fmt.Errorf("unknown event kind %d", e.Kind)
	}
}

// UnmarshalJSON decodes a wire frame back into an event. Frames with an "error" key are
// errors, frames with "idle" set are idle, and everything else is a song.
func (e *PlaybackEvent) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error *string `json:"error"`
		Idle  bool    `json:"idle"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch {
	case probe.Error != nil:
		*e = PlaybackEvent{Kind: EventError, Message: *probe.Error}
	case probe.Idle:
		*e = PlaybackIdle()
	default:
		var song SongResponse
		if err := json.Unmarshal(data, &song); err != nil {
			return err
		}
		*e = PlaybackSuccess(song)
	}
	return nil
}

// JoinArtists joins artist names with ", ".
func JoinArtists(names []string) string {
	return strings.Join(names, ", ")
}
