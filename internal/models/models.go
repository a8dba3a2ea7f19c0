// package models defines the data model for the now-playing feed
package models

import (
	"context"
	"time"
)

// TokenRecord is one stored credential set for a subscriber.
//
// AccessToken and Expiry are always replaced together. RefreshToken changes only when upstream rotates it.
type TokenRecord struct {
	Subscriber   string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ExpiresWithin reports whether the access token expires less than margin after now.
func (r TokenRecord) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return r.Expiry.Sub(now) < margin
}

// Refreshed returns a copy carrying a new access token and expiry.
// The refresh token is replaced only when refreshToken is non-empty.
func (r TokenRecord) Refreshed(accessToken string, expiry time.Time, refreshToken string) TokenRecord {
	r.AccessToken = accessToken
	r.Expiry = expiry
	if refreshToken != "" {
		r.RefreshToken = refreshToken
	}
	return r
}

// TokenStore is the persistence boundary for subscriber credentials.
//
// Load wraps [shared.ErrNotFound] when nothing is stored for the subscriber and [shared.ErrStorage] on query failure.
// Upsert is idempotent and overwrites any existing record for the same subscriber.
// Implementations must be safe for concurrent use.
type TokenStore interface {
	Load(ctx context.Context, subscriber string) (*TokenRecord, error)
	Upsert(ctx context.Context, record TokenRecord) error
}
