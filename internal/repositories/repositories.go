// package repositories provides [models.TokenStore] implementations for each supported backend.
package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
)

// Store is a [models.TokenStore] that owns a connection pool.
type Store interface {
	models.TokenStore
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*TokenRepository)(nil)
	_ Store = (*PostgresTokenRepository)(nil)
	_ Store = (*RedisTokenRepository)(nil)
)

// Open connects to the backend selected by cfg.Database.Driver.
//
// SQLite databases are migrated on open.
func Open(ctx context.Context, cfg *shared.Config) (Store, error) {
	switch cfg.Database.Driver {
	case "sqlite", "":
		db, err := shared.NewDatabase(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
		}
		shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

		if err := shared.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
		}
		return NewTokenRepository(db), nil
	case "postgres":
		return NewPostgresTokenRepository(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
	case "redis":
		return NewRedisTokenRepository(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", shared.ErrInvalidConfig, cfg.Database.Driver)
	}
}
