package app

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bsf-dashboard/internal/config"
	"bsf-dashboard/internal/modules/readings/pipeline"
	"bsf-dashboard/internal/modules/readings/types"
)

func sqliteConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AppEnv:             "dev",
		LogLevel:           slog.LevelInfo,
		SourceDriver:       config.SourceSQLite,
		SQLiteDriver:       "sqlite3",
		SQLitePath:         filepath.Join(t.TempDir(), "app.db"),
		SQLiteMaxOpenConns: 1,
		SQLiteMaxIdleConns: 1,
		FetchTimeout:       5 * time.Second,
		DisplayLocation:    time.UTC,
	}
}

func ptr(f float64) *float64 { return &f }

func TestOpenSource_UnknownDriver(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.SourceDriver = "postgres"
	if _, err := OpenSource(context.Background(), cfg, slog.Default()); err == nil {
		t.Fatal("OpenSource() error = nil; want unknown driver error")
	}
}

func TestOpenSource_SQLite(t *testing.T) {
	ctx := context.Background()
	src, err := OpenSource(ctx, sqliteConfig(t), slog.Default())
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	t.Cleanup(func() {
		if err := src.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	if src.Local == nil || src.DB == nil {
		t.Fatal("sqlite source has no local repository")
	}
	if got := src.Rows.Name(); got != "sqlite:readings" {
		t.Errorf("Name() = %q", got)
	}
	if n, err := src.Local.Count(ctx); err != nil || n != 0 {
		t.Errorf("Count() = %d, %v; want 0, nil", n, err)
	}
}

func TestFetch_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)

	src, err := OpenSource(ctx, cfg, slog.Default())
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	seed := []struct {
		ts        int64
		temp, hum *float64
	}{
		{1000, ptr(20), ptr(50)},
		{3000, ptr(22), ptr(55)},
		{2000, nil, ptr(60)},
	}
	for _, s := range seed {
		if err := src.Local.InsertReading(ctx, "dht-1", time.Unix(s.ts, 0), s.temp, s.hum); err != nil {
			t.Fatalf("InsertReading: %v", err)
		}
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tests := []struct {
		name string
		opts FetchOptions
		want string
	}{
		{
			name: "both metrics",
			opts: FetchOptions{Range: "All"},
			want: "All: 3 readings, avg temperature 14.00°C, avg humidity 55.00%\n" +
				"12:16AM  Sensor Check: 1, Temperature: 20°C, Humidity: 50%\n" +
				"12:33AM  Sensor Check: 2, Temperature: °C, Humidity: 60%\n" +
				"12:50AM  Sensor Check: 3, Temperature: 22°C, Humidity: 55%\n",
		},
		{
			name: "humidity on the test page, past 10 minutes",
			opts: FetchOptions{Variant: "test", Range: "10m", Metric: "humidity"},
			want: "Past 10 Minutes: 1 readings, avg humidity 55.00%\n" +
				"12:50AM  Sensor Check: 3, Humidity: 55\n",
		},
		{
			name: "empty window",
			opts: FetchOptions{Range: "Today", Now: func() time.Time { return time.Unix(10*86400, 0) }},
			want: "Today: no data for this range\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.opts.Now == nil {
				tt.opts.Now = func() time.Time { return time.Unix(3300, 0) }
			}
			var out bytes.Buffer
			if err := Fetch(ctx, cfg, tt.opts, &out); err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("output:\n%s\nwant:\n%s", out.String(), tt.want)
			}
		})
	}
}

func TestFetch_BadSelection(t *testing.T) {
	cfg := sqliteConfig(t)
	for _, opts := range []FetchOptions{
		{Variant: "nope"},
		{Range: "yesterday"},
		{Metric: "pressure"},
	} {
		if err := Fetch(context.Background(), cfg, opts, &bytes.Buffer{}); err == nil {
			t.Errorf("Fetch(%+v) error = nil; want error", opts)
		}
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)

	var out bytes.Buffer
	if err := Migrate(ctx, cfg, &out); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !strings.Contains(out.String(), "applied 0001") || !strings.Contains(out.String(), "applied 0002") {
		t.Errorf("first run output = %q", out.String())
	}

	out.Reset()
	if err := Migrate(ctx, cfg, &out); err != nil {
		t.Fatalf("Migrate (second run): %v", err)
	}
	if !strings.Contains(out.String(), "no pending migrations") {
		t.Errorf("second run output = %q", out.String())
	}
}

func TestWriteView_TemperatureOnly(t *testing.T) {
	view := pipeline.Run([]types.RawReading{
		{Temperature: types.ParseValue("21"), Humidity: types.ParseValue("40"), Timestamp: 60},
	}, types.Selection{Window: types.WindowAll, Metric: types.MetricTemperature}, time.Unix(120, 0), time.UTC)

	var out bytes.Buffer
	if err := writeView(&out, view); err != nil {
		t.Fatalf("writeView: %v", err)
	}
	want := "All: 1 readings, avg temperature 21.00°C\n12:01AM  Sensor Check: 1, Temperature: 21\n"
	if out.String() != want {
		t.Errorf("output = %q; want %q", out.String(), want)
	}
}
