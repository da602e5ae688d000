package persistence

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/config"
	"github.com/librosfab/support-service/internal/repository"
	"github.com/librosfab/support-service/internal/repository/sqlite"
)

// OpenStore connects the configured backend, applies migrations when asked
// to and returns its repositories.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*repository.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := NewSQLite(cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Store.RunMigrations || cfg.SQLite.Path == MemoryPath {
			if err := RunSQLiteMigrations(ctx, db, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		return sqlite.NewStore(db), nil

	case config.DriverPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, errors.Wrap(err, "connect postgres")
		}
		if cfg.Store.RunMigrations {
			if err := RunMigrations(ctx, pg.Pool, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		pool := pg.Pool
		return &repository.Store{
			Users:   repository.NewUserRepository(pool),
			Tickets: repository.NewTicketRepository(pool),
			Threads: repository.NewThreadRepository(pool),
			Ping:    pg.Ping,
			Close:   pg.Close,
		}, nil
	}
	return nil, errors.Errorf("unsupported store driver %q", cfg.Store.Driver)
}
