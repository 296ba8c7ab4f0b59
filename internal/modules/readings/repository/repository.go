package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"bsf-dashboard/internal/modules/readings/types"
)

//go:embed sql/scan-readings.sql
var scanReadingsSQL string

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/count-readings.sql
var countReadingsSQL string

// AttrSensor carries the sensor id through RawReading.Attributes.
const AttrSensor = "Sensor"

// ReadingsRepository is the local SQLite readings table. It satisfies
// source.RowSource for the scan side and is written to by telemetry ingest.
type ReadingsRepository interface {
	Name() string
	ScanAll(ctx context.Context) ([]types.RawReading, error)
	InsertReading(ctx context.Context, sensor string, ts time.Time, temperature *float64, humidity *float64) error
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ReadingsRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Name() string {
	return "sqlite:readings"
}

func (r *repositoryImpl) ScanAll(ctx context.Context) ([]types.RawReading, error) {
	rows, err := r.db.QueryContext(ctx, scanReadingsSQL)
	if err != nil {
		return nil, fmt.Errorf("scan readings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()

	var out []types.RawReading
	for rows.Next() {
		var (
			id          int64
			sensor      string
			temperature sql.NullString
			humidity    sql.NullString
			ts          int64
		)
		if err := rows.Scan(&id, &sensor, &temperature, &humidity, &ts); err != nil {
			return nil, fmt.Errorf("scan readings row: %w", err)
		}
		raw := types.RawReading{
			Temperature: nullValue(temperature),
			Humidity:    nullValue(humidity),
			Timestamp:   ts,
			ScanIndex:   len(out),
		}
		if sensor != "" {
			raw.Attributes = map[string]any{AttrSensor: sensor}
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan readings: %w", err)
	}
	return out, nil
}

func (r *repositoryImpl) InsertReading(ctx context.Context, sensor string, ts time.Time, temperature *float64, humidity *float64) error {
	_, err := r.db.ExecContext(ctx, insertReadingSQL, sensor, formatFloat(temperature), formatFloat(humidity), ts.Unix())
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (r *repositoryImpl) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countReadingsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

func (r *repositoryImpl) Ping(ctx context.Context) error {
	var ok int
	return r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok)
}

func nullValue(s sql.NullString) types.Value {
	if !s.Valid {
		return types.Value{}
	}
	return types.ParseValue(s.String)
}

func formatFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
