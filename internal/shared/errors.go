package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrInvalidState   = fmt.Errorf("invalid state parameter")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")

	// Token store errors
	ErrNotFound = fmt.Errorf("no credential stored for subscriber")
	ErrStorage  = fmt.Errorf("token store unavailable")

	// Upstream errors
	ErrUpstream          = fmt.Errorf("spotify API error")
	ErrMalformedSnapshot = fmt.Errorf("malformed playback snapshot")

	// Subscription errors
	ErrShuttingDown = fmt.Errorf("server is shutting down")
	ErrFeed         = fmt.Errorf("feed unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
