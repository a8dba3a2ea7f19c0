package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS tokens (
		subscriber TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		expires_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)
`

// PostgresTokenRepository implements [models.TokenStore] on a bounded [pgxpool.Pool].
type PostgresTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTokenRepository connects to connString, capping the pool at maxConns, and ensures the schema exists.
func NewPostgresTokenRepository(ctx context.Context, connString string, maxConns int) (*PostgresTokenRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid postgres url: %v", shared.ErrInvalidConfig, err)
	}

	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping postgres: %v", shared.ErrStorage, err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %v", shared.ErrStorage, err)
	}

	return &PostgresTokenRepository{pool: pool}, nil
}

// Load retrieves the credential stored for subscriber.
func (r *PostgresTokenRepository) Load(ctx context.Context, subscriber string) (*models.TokenRecord, error) {
	query := `
		SELECT subscriber, access_token, refresh_token, expires_at
		FROM tokens WHERE subscriber = $1
	`

	var (
		record    models.TokenRecord
		expiresAt int64
	)
	err := r.pool.QueryRow(ctx, query, subscriber).Scan(&record.Subscriber, &record.AccessToken, &record.RefreshToken, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, subscriber)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query token: %v", shared.ErrStorage, err)
	}

	record.Expiry = time.Unix(expiresAt, 0).UTC()
	return &record, nil
}

// Upsert inserts the record or overwrites the one already stored for its subscriber.
func (r *PostgresTokenRepository) Upsert(ctx context.Context, record models.TokenRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	query := `
		INSERT INTO tokens (subscriber, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (subscriber) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, record.Subscriber, record.AccessToken, record.RefreshToken, record.Expiry.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: failed to upsert token: %v", shared.ErrStorage, err)
	}
	return nil
}

// Ping verifies the pool can reach the server.
func (r *PostgresTokenRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool.
func (r *PostgresTokenRepository) Close() error {
	r.pool.Close()
	return nil
}
