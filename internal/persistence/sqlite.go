package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	// registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/librosfab/support-service/internal/config"
)

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// NewSQLite opens the embedded store. Write transactions take the database
// lock up front (_txlock=immediate) so a ticket row read inside one cannot
// change before the transaction commits.
func NewSQLite(cfg config.SQLiteConfig, logger *zap.Logger) (*sql.DB, error) {
	dsn, err := sqliteDSN(cfg.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	inMemory := cfg.Path == MemoryPath || cfg.Path == ""
	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "set %s", pragma)
		}
	}

	if logger != nil {
		logger.Info("opened sqlite store", zap.String("path", cfg.Path))
	}
	return db, nil
}

func sqliteDSN(path string) (string, error) {
	if path == MemoryPath || path == "" {
		return "file::memory:?_txlock=immediate&_foreign_keys=on", nil
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "create directory %s", dir)
		}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("file:%s%s_txlock=immediate&_foreign_keys=on&_busy_timeout=5000", path, sep), nil
}
