package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
)

// TokenRepository implements [models.TokenStore] on SQLite.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Load retrieves the credential stored for subscriber.
func (r *TokenRepository) Load(ctx context.Context, subscriber string) (*models.TokenRecord, error) {
	query := `
		SELECT subscriber, access_token, refresh_token, expires_at
		FROM tokens
		WHERE subscriber = ?
	`

	var (
		record    models.TokenRecord
		expiresAt int64
	)

	err := r.db.QueryRowContext(ctx, query, subscriber).Scan(&record.Subscriber, &record.AccessToken, &record.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, subscriber)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query token: %v", shared.ErrStorage, err)
	}

	record.Expiry = time.Unix(expiresAt, 0).UTC()
	return &record, nil
}

// Upsert inserts the record or overwrites the one already stored for its subscriber.
func (r *TokenRepository) Upsert(ctx context.Context, record models.TokenRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	query := `
		INSERT INTO tokens (subscriber, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subscriber) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, query, record.Subscriber, record.AccessToken, record.RefreshToken, record.Expiry.Unix(), now, now)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert token: %v", shared.ErrStorage, err)
	}

	return nil
}

// Ping verifies the database is reachable.
func (r *TokenRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (r *TokenRepository) Close() error {
	return r.db.Close()
}

func validateRecord(record models.TokenRecord) error {
	switch {
	case record.Subscriber == "":
		return fmt.Errorf("%w: subscriber is required", shared.ErrInvalidInput)
	case record.AccessToken == "":
		return fmt.Errorf("%w: access token is required", shared.ErrInvalidInput)
	case record.RefreshToken == "":
		return fmt.Errorf("%w: refresh token is required", shared.ErrInvalidInput)
	}
	return nil
}
