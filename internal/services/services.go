// package services defines the upstream boundary to the Spotify Web API and accounts service.
package services

import (
	"context"

	"golang.org/x/oauth2"
)

// PlaybackService is the part of the upstream used by the playback poller.
//
// Each call is a single request with no internal retry.
type PlaybackService interface {
	// Refresh mints a new access token from refreshToken.
	// The returned token carries the previous refresh token unless upstream rotated it.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// NowPlaying fetches the player state. It returns (nil, nil) when nothing is playing.
	NowPlaying(ctx context.Context, accessToken string) (*CurrentlyPlaying, error)
}

// OAuthService is the part of the upstream used by the authorization-code flow.
type OAuthService interface {
	// AuthURL returns the authorization URL the user is redirected to.
	AuthURL(state string) string

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// UserProfile retrieves the profile of the user owning accessToken.
	UserProfile(ctx context.Context, accessToken string) (*SpotifyUser, error)
}
