package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"bsf-dashboard/internal/config"
	"bsf-dashboard/internal/modules/readings/pipeline"
	"bsf-dashboard/internal/modules/readings/source"
	"bsf-dashboard/internal/modules/readings/types"
	"bsf-dashboard/internal/modules/readings/variants"
)

type FetchOptions struct {
	Variant string
	Range   string
	Metric  string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Fetch runs one fetch and the whole pipeline, and writes the summary and the
// reading list to w in the dashboard's list format.
func Fetch(ctx context.Context, cfg config.Config, opts FetchOptions, w io.Writer) error {
	logger := slog.Default()

	registry, err := variants.Load(cfg.VariantsFile)
	if err != nil {
		return err
	}
	v := registry.First()
	if opts.Variant != "" {
		if v, err = registry.Get(opts.Variant); err != nil {
			return err
		}
	}
	sel := types.Selection{Window: v.DefaultWindow, Metric: v.DefaultMetric}
	if opts.Range != "" {
		if sel.Window, err = types.ParseWindow(opts.Range); err != nil {
			return err
		}
	}
	if opts.Metric != "" {
		if sel.Metric, err = types.ParseMetric(opts.Metric); err != nil {
			return err
		}
	}

	src, err := OpenSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	rows, ok := source.NewFetcher(src.Rows, cfg.FetchTimeout, logger).FetchAll(ctx)
	if !ok {
		return fmt.Errorf("fetch from %s failed", src.Rows.Name())
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	view := pipeline.Run(rows, sel, now(), cfg.DisplayLocation)
	return writeView(w, view)
}

func writeView(w io.Writer, view pipeline.View) error {
	var b strings.Builder
	sel := view.Selection
	if view.Summary.NoData() {
		fmt.Fprintf(&b, "%s: no data for this range\n", sel.Window.Label())
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "%s: %d readings", sel.Window.Label(), view.Summary.Count)
	if sel.Metric.ShowsTemperature() {
		fmt.Fprintf(&b, ", avg temperature %.2f°C", view.Summary.AverageTemperature)
	}
	if sel.Metric.ShowsHumidity() {
		fmt.Fprintf(&b, ", avg humidity %.2f%%", view.Summary.AverageHumidity)
	}
	b.WriteByte('\n')

	for _, r := range view.Readings {
		fmt.Fprintf(&b, "%s  Sensor Check: %d, ", r.TimestampLabel, r.DisplayID)
		switch sel.Metric {
		case types.MetricTemperature:
			fmt.Fprintf(&b, "Temperature: %s\n", r.Temperature.Raw)
		case types.MetricHumidity:
			fmt.Fprintf(&b, "Humidity: %s\n", r.Humidity.Raw)
		default:
			fmt.Fprintf(&b, "Temperature: %s°C, Humidity: %s%%\n", r.Temperature.Raw, r.Humidity.Raw)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
