package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fable-server/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewPool создает пул соединений и проверяет его пингом.
func NewPool(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула соединений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка проверки соединения с БД: %w", err)
	}

	logger.Info("Connected to database")
	return pool, nil
}

// ApplyMigrations применяет встроенные миграции схемы.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: "migrations",
		MigrationsFS:   migrationsFS,
	}, pool)

	if err := migrator.Up(ctx); err != nil {
		return err
	}

	version, dirty, err := migrator.Version(ctx)
	if err != nil {
		return err
	}
	logger.Info("Database schema migrated",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}
