package source

import (
	"context"
	"log/slog"
	"time"

	"bsf-dashboard/internal/modules/readings/types"
)

// RowSource scans every row of a readings table. It succeeds or fails as a
// whole; there is no filtering or paging at this boundary.
type RowSource interface {
	Name() string
	ScanAll(ctx context.Context) ([]types.RawReading, error)
}

// Fetcher wraps a RowSource so that fetch failures never escape: they are
// logged and turned into an empty result.
type Fetcher struct {
	source  RowSource
	timeout time.Duration
	logger  *slog.Logger
}

func NewFetcher(source RowSource, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{source: source, timeout: timeout, logger: logger}
}

func (f *Fetcher) SourceName() string {
	return f.source.Name()
}

// FetchAll returns the scanned rows, or an empty slice and ok == false when
// the scan failed. No retries are attempted.
func (f *Fetcher) FetchAll(ctx context.Context) (rows []types.RawReading, ok bool) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := f.source.ScanAll(ctx)
	if err != nil {
		f.logger.Error("fetch failed",
			"source", f.source.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return []types.RawReading{}, false
	}
	if rows == nil {
		rows = []types.RawReading{}
	}
	f.logger.Debug("fetch done",
		"source", f.source.Name(),
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rows, true
}
