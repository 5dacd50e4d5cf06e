// Package migrations holds the goose schema for every supported engine.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

// goose keeps its dialect and filesystem in package globals.
var mu sync.Mutex

// Up applies pending migrations for dialect on db.
func Up(db *sql.DB, dialect storage.Dialect) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect.String()); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db, dialect.String()); err != nil {
		return fmt.Errorf("apply %s migrations: %w", dialect, err)
	}

	slog.Info("Database migrations applied", "dialect", dialect)

	return nil
}
