// Package repositories implements token persistence for the supported storage backends.
//
// Every backend implements [models.TokenStore] with single-record operations only:
//   - [TokenRepository] : SQLite via database/sql, schema managed by shared.RunMigrations
//   - [PostgresTokenRepository] : PostgreSQL via a bounded pgxpool, schema created on connect
//   - [RedisTokenRepository] : one hash per subscriber under "nowplaying:token:<subscriber>"
//
// Upserts are keyed by subscriber, so concurrent refreshes for the same subscriber resolve as last-writer-wins.
// Missing records wrap shared.ErrNotFound; connectivity and query failures wrap shared.ErrStorage.
//
// [Open] selects a backend from configuration and returns it as a [Store].
package repositories
