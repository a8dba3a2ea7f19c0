// Spotify API implementation of [PlaybackService] and [OAuthService]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify always reports expires_in; this only guards against a response without it.
	defaultTokenLifetime = time.Hour
	maxResponseBytes     = 1 << 20
)

// scopes requested at authorization
var scopes = []string{"user-read-email", "user-read-private", "user-read-playback-state"}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	URI         string `json:"uri"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS float64         `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// CurrentlyPlaying is the player state returned by GET /me/player.
//
// Item is nil when nothing trackable is loaded (ads, private sessions, stopped player).
type CurrentlyPlaying struct {
	IsPlaying            bool          `json:"is_playing"`
	ProgressMS           float64       `json:"progress_ms"`
	Timestamp            int64         `json:"timestamp"`
	CurrentlyPlayingType string        `json:"currently_playing_type"`
	Item                 *SpotifyTrack `json:"item"`
}

// Song normalizes the snapshot into the wire representation.
//
// The album cover is the first album image; an empty image list wraps [shared.ErrMalformedSnapshot].
func (c *CurrentlyPlaying) Song() (models.SongResponse, error) {
	if c.Item == nil {
		return models.SongResponse{}, fmt.Errorf("%w: no item", shared.ErrMalformedSnapshot)
	}
	if len(c.Item.Album.Images) == 0 {
		return models.SongResponse{}, fmt.Errorf("%w: album has no images", shared.ErrMalformedSnapshot)
	}

	names := make([]string, 0, len(c.Item.Artists))
	for _, a := range c.Item.Artists {
		names = append(names, a.Name)
	}

	return models.SongResponse{
		Title:      c.Item.Name,
		Artist:     models.JoinArtists(names),
		AlbumCover: c.Item.Album.Images[0].URL,
		ProgressMS: c.ProgressMS,
		TotalMS:    c.Item.DurationMS,
		IsPlaying:  c.IsPlaying,
	}, nil
}

// SpotifyOpts configures a [SpotifyService]. Empty URLs fall back to the public Spotify endpoints.
type SpotifyOpts struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBaseURL   string
	AuthURL      string
	TokenURL     string
	HTTPClient   *http.Client
	RateLimit    float64 // requests per second across all subscribers; <= 0 disables throttling
	Burst        int
}

// SpotifyService implements [PlaybackService] and [OAuthService].
// Safe for concurrent use by many pollers.
type SpotifyService struct {
	config     *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(opts SpotifyOpts) (*SpotifyService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	if opts.APIBaseURL == "" {
		opts.APIBaseURL = spotifyBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = spotifyAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	config := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   opts.AuthURL,
			TokenURL:  opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	return &SpotifyService{
		config:     config,
		apiBaseURL: strings.TrimRight(opts.APIBaseURL, "/"),
		httpClient: opts.HTTPClient,
		limiter:    limiter,
	}, nil
}

// NewSpotifyServiceFromConfig builds a [SpotifyService] from application configuration.
func NewSpotifyServiceFromConfig(cfg *shared.Config) (*SpotifyService, error) {
	return NewSpotifyService(SpotifyOpts{
		ClientID:     cfg.Credentials.Spotify.ClientID,
		ClientSecret: cfg.Credentials.Spotify.ClientSecret,
		RedirectURI:  cfg.CallbackURL(),
		APIBaseURL:   cfg.Upstream.APIBaseURL,
		AuthURL:      cfg.Upstream.AuthURL,
		TokenURL:     cfg.Upstream.TokenURL,
		HTTPClient:   &http.Client{Timeout: cfg.Upstream.Timeout},
		RateLimit:    cfg.Upstream.RateLimit,
		Burst:        cfg.Upstream.Burst,
	})
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// oauthContext makes oauth2 use the service's HTTP client.
func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Exchange trades an authorization code for an access and refresh token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrUpstream, err)
	}
	return withExpiry(token), nil
}

// Refresh performs a refresh_token grant.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}

	source := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", shared.ErrUpstream, shared.ErrRefreshFailed, err)
	}
	return withExpiry(token), nil
}

func withExpiry(token *oauth2.Token) *oauth2.Token {
	if token.Expiry.IsZero() {
		token.Expiry = time.Now().Add(defaultTokenLifetime)
	}
	return token
}

// doRequest performs a bearer-authenticated GET against the Web API.
//
// It reports empty=true for 204 and blank bodies, leaving result untouched.
func (s *SpotifyService) doRequest(ctx context.Context, accessToken, endpoint string, result any) (empty bool, err error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBaseURL+endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: request failed: %v", shared.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("%w: status %d", shared.ErrUpstream, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNoContent {
		return true, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("%w: failed to read response: %v", shared.ErrUpstream, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true, nil
	}

	if err := json.Unmarshal(body, result); err != nil {
		return false, fmt.Errorf("%w: failed to decode response: %v", shared.ErrUpstream, err)
	}
	return false, nil
}

// NowPlaying retrieves the current player state.
func (s *SpotifyService) NowPlaying(ctx context.Context, accessToken string) (*CurrentlyPlaying, error) {
	var playing CurrentlyPlaying
	empty, err := s.doRequest(ctx, accessToken, "/me/player", &playing)
	if err != nil {
		return nil, err
	}
	if empty || playing.Item == nil {
		return nil, nil
	}
	return &playing, nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context, accessToken string) (*SpotifyUser, error) {
	var user SpotifyUser
	empty, err := s.doRequest(ctx, accessToken, "/me", &user)
	if err != nil {
		return nil, err
	}
	if empty || user.URI == "" {
		return nil, fmt.Errorf("%w: profile has no uri", shared.ErrUpstream)
	}
	return &user, nil
}
