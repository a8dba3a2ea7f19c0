// Package services implements the upstream boundary to Spotify.
//
// # Interfaces
//
// [PlaybackService] is consumed by the playback poller: token refresh and the "now playing" fetch.
// [OAuthService] is consumed by the HTTP authorization-code handlers.
// [SpotifyService] implements both.
//
// # Token handling
//
// Refresh and code exchange go through [oauth2.Config] with [oauth2.AuthStyleInHeader], so the client
// id and secret travel as HTTP basic auth on a form-encoded POST. When Spotify rotates the refresh token
// the new one is returned; otherwise oauth2 carries the previous one forward.
//
// # Now playing
//
// [SpotifyService.NowPlaying] maps 204, an empty body, and a null item to (nil, nil). Non-2xx statuses and
// undecodable bodies wrap [shared.ErrUpstream]. [CurrentlyPlaying.Song] normalizes a snapshot and wraps
// [shared.ErrMalformedSnapshot] when the album has no images.
//
// # Throttling
//
// All outbound calls share one [rate.Limiter]. It throttles bursts from many subscribers; it is not a
// backoff policy.
package services
