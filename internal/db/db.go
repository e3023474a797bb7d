package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/senyabanana/rfq-service/internal/router/config"
	"github.com/senyabanana/rfq-service/migrations"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InitDb инициализирует подключение к базе данных и возвращает пул соединений.
func InitDb(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.PostgresConn == "" {
		return nil, fmt.Errorf("database connection string is missing")
	}

	dbPool, err := pgxpool.New(ctx, cfg.PostgresConn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}

	return dbPool, nil
}

// RunMigrations накатывает миграции: из MIGRATION_URL, если он задан, иначе встроенные в бинарник.
func RunMigrations(migrationURL, dbSource string) error {
	var (
		migration *migrate.Migrate
		err       error
	)
	if migrationURL != "" {
		migration, err = migrate.New(migrationURL, dbSource)
	} else {
		src, srcErr := iofs.New(migrations.FS, ".")
		if srcErr != nil {
			return fmt.Errorf("open embedded migrations: %w", srcErr)
		}
		migration, err = migrate.NewWithSourceInstance("iofs", src, dbSource)
	}
	if err != nil {
		return fmt.Errorf("cannot create a new migrate instance: %w", err)
	}
	defer migration.Close()

	if err = migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrate up: %w", err)
	}
	return nil
}
