package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mandyibene/family-twigs-backend/config"
	"github.com/mandyibene/family-twigs-backend/database"
	"github.com/mandyibene/family-twigs-backend/repository"
)

// Repositories holds the two stores the auth core needs.
type Repositories struct {
	User    repository.UserRepository
	Session repository.SessionRepository
}

// initRepositories opens the backend selected by DATABASE_DRIVER, applies its
// migrations and returns a func that releases it.
func initRepositories(ctx context.Context, cfg config.DatabaseConfig) (*Repositories, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := database.New(cfg.Path, database.SQLiteMigrations())
		if err != nil {
			return nil, nil, err
		}
		repos := &Repositories{
			User:    repository.NewSQLiteUserRepo(db.Conn),
			Session: repository.NewSQLiteSessionRepo(db.Conn),
		}
		return repos, func() {
			if err := db.Close(); err != nil {
				slog.Error("[main] failed to close sqlite", "err", err)
			}
		}, nil

	case "postgres":
		if err := database.MigratePostgres(cfg.URL); err != nil {
			return nil, nil, err
		}
		pool, err := database.NewPostgresPool(ctx, cfg.URL, database.PostgresOptions{MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, nil, err
		}
		repos := &Repositories{
			User:    repository.NewPostgresUserRepo(pool),
			Session: repository.NewPostgresSessionRepo(pool),
		}
		return repos, pool.Close, nil

	case "memory":
		slog.Warn("[main] using in-memory stores; sessions are lost on restart")
		return &Repositories{
			User:    repository.NewMemoryUserRepo(),
			Session: repository.NewMemorySessionRepo(),
		}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
