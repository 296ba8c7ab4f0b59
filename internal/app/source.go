package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"bsf-dashboard/internal/config"
	"bsf-dashboard/internal/db"
	"bsf-dashboard/internal/migrate"
	"bsf-dashboard/internal/modules/readings/repository"
	"bsf-dashboard/internal/modules/readings/source"
)

// Source is the configured row source. Local and DB are set only for the
// SQLite driver.
type Source struct {
	Rows  source.RowSource
	Local repository.ReadingsRepository
	DB    *sql.DB
}

// OpenSource builds the row source named by cfg.SourceDriver. The SQLite
// database is migrated before use.
func OpenSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Source, error) {
	switch cfg.SourceDriver {
	case config.SourceDynamoDB:
		ddb, err := source.NewDynamoDBFromConfig(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Source{Rows: ddb}, nil

	case config.SourceSQLite:
		dbConn, err := db.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		applied, err := migrate.Run(ctx, dbConn)
		if err != nil {
			_ = db.Close(dbConn)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "versions", applied)
		}
		repo := repository.NewRepository(dbConn)
		return &Source{Rows: repo, Local: repo, DB: dbConn}, nil

	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.SourceDriver)
	}
}

func (s *Source) Close() error {
	return db.Close(s.DB)
}
