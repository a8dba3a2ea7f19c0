// Package ui implements a terminal client for the now-playing feed using bubbletea's Elm architecture.
//
// A [Feed] reads the server's SSE stream and decodes each frame into a [models.PlaybackEvent].
// The [Model] renders the most recent event: track and artist, a [progress] bar that advances
// locally between frames while the track is playing, and idle or error states.
//
// Keys: q quits, r reconnects after the feed closes, ? toggles the full help view.
package ui
