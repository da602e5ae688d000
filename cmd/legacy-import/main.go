// legacy-import copies accounts and tickets from the old PHP site's MySQL
// database into the configured store. It can be re-run safely.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/config"
	"github.com/librosfab/support-service/internal/legacy"
	"github.com/librosfab/support-service/internal/observability"
	"github.com/librosfab/support-service/internal/persistence"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var dsn string
	flags := pflag.NewFlagSet("legacy-import", pflag.ContinueOnError)
	flags.StringVar(&dsn, "mysql-dsn", os.Getenv("LEGACY_MYSQL_DSN"), "legacy database DSN, e.g. user:pass@tcp(host:3306)/fabrica_libros")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if dsn == "" {
		return errors.New("--mysql-dsn (or LEGACY_MYSQL_DSN) is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logger, observability.WithService("legacy-import"), observability.WithOutput("stderr"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := legacy.OpenMySQL(ctx, dsn)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	store, err := persistence.OpenStore(ctx, *cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := legacy.NewImporter(store, cfg.Auth.BcryptCost, logger).Run(ctx, src)
	if report != nil {
		logger.Info("legacy import finished",
			zap.Int("users_created", report.UsersCreated),
			zap.Int("users_existing", report.UsersExisting),
			zap.Int("passwords_hashed", report.PasswordsHashed),
			zap.Int("tickets_imported", report.TicketsImported),
			zap.Int("tickets_existing", report.TicketsExisting),
			zap.Int("tickets_skipped", report.TicketsSkipped),
			zap.Any("counters", report.CountersRaisedTo))
	}
	return err
}
