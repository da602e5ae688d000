package persistence

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationFS embed.FS

// RunMigrations executes the embedded Postgres migrations in file name order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}
	return applyMigrations("postgres", logger, func(name, content string) error {
		_, err := pool.Exec(ctx, content)
		return err
	})
}

// RunSQLiteMigrations creates the embedded store schema.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	return applyMigrations("sqlite", logger, func(name, content string) error {
		_, err := db.ExecContext(ctx, content)
		return err
	})
}

func applyMigrations(driver string, logger *zap.Logger, apply func(name, content string) error) error {
	dir := path.Join("migrations", driver)
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)

	for _, name := range filenames {
		content, err := fs.ReadFile(migrationFS, path.Join(dir, name))
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}

		logger.Debug("applying migration", zap.String("driver", driver), zap.String("file", name))
		if err := apply(name, string(content)); err != nil {
			return errors.Wrapf(err, "apply migration %s", name)
		}
	}

	logger.Info("migrations applied", zap.String("driver", driver), zap.Int("count", len(filenames)))
	return nil
}
