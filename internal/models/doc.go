// Package models defines the domain values shared by the token store, upstream client, and poller.
//
//   - [TokenRecord] : one subscriber's access/refresh credential pair with expiry
//   - [TokenStore] : persistence boundary implemented by the repositories package
//   - [PlaybackEvent] : tagged union of playback, error and idle observations
//   - [SongResponse] : normalized track snapshot in the client wire format
//
// A subscriber is identified by an opaque string, the Spotify user URI.
package models
