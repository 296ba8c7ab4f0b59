package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"bsf-dashboard/internal/config"
	"bsf-dashboard/internal/db"
	"bsf-dashboard/internal/migrate"
)

// Migrate applies pending migrations to the local readings database and
// reports what it applied.
func Migrate(ctx context.Context, cfg config.Config, w io.Writer) error {
	dbConn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) == 0 {
		_, err = fmt.Fprintf(w, "%s: no pending migrations\n", cfg.SQLitePath)
		return err
	}
	for _, v := range applied {
		if _, err := fmt.Fprintf(w, "%s: applied %s\n", cfg.SQLitePath, v); err != nil {
			return err
		}
	}
	return nil
}
