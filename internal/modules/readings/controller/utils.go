package controller

import (
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bsf-dashboard/internal/modules/readings/pipeline"
	"bsf-dashboard/internal/modules/readings/repository"
	"bsf-dashboard/internal/modules/readings/types"
	"bsf-dashboard/internal/modules/readings/variants"
	"bsf-dashboard/internal/modules/readings/views"
)

const gridPageSize = 20

// parseSelection reads range and metric from the query. Missing values take
// the variant defaults. Unknown values, or values the variant does not offer,
// are reported in err; the returned selection then carries the default for
// the offending field so HTML pages can fall back to it.
func parseSelection(r *http.Request, v variants.Variant) (types.Selection, error) {
	q := r.URL.Query()
	sel := types.Selection{Window: v.DefaultWindow, Metric: v.DefaultMetric}
	var errs []error

	if s := q.Get("range"); s != "" {
		w, err := types.ParseWindow(s)
		switch {
		case err != nil:
			errs = append(errs, err)
		case !v.AllowsWindow(w):
			errs = append(errs, fmt.Errorf("range %s is not available on %s", w, v.Name))
		default:
			sel.Window = w
		}
	}
	if s := q.Get("metric"); s != "" {
		m, err := types.ParseMetric(s)
		switch {
		case err != nil:
			errs = append(errs, err)
		case !v.AllowsMetric(m):
			errs = append(errs, fmt.Errorf("metric %s is not available on %s", m, v.Name))
		default:
			sel.Metric = m
		}
	}
	return sel, errors.Join(errs...)
}

func selectionQuery(sel types.Selection) template.URL {
	q := url.Values{}
	q.Set("range", sel.Window.String())
	q.Set("metric", sel.Metric.String())
	return template.URL(q.Encode())
}

// parsePage returns the 1-based page number from the request (default 1, min 1).
func parsePage(r *http.Request) int {
	s := r.URL.Query().Get("page")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// buildPageItems returns page numbers and ellipsis for the pagination bar.
func buildPageItems(totalPages, currentPage int) []views.PaginationItem {
	if totalPages <= 0 {
		return nil
	}
	const window = 2
	show := map[int]bool{1: true, totalPages: true}
	for p := currentPage - window; p <= currentPage+window; p++ {
		if p >= 1 && p <= totalPages {
			show[p] = true
		}
	}
	var items []views.PaginationItem
	prev := 0
	for p := 1; p <= totalPages; p++ {
		if !show[p] {
			continue
		}
		if prev != 0 && p > prev+1 {
			items = append(items, views.PaginationItem{Ellipsis: true})
		}
		items = append(items, views.PaginationItem{Page: p})
		prev = p
	}
	return items
}

func (c *readingsControllerImpl) readingsData(v variants.Variant, p Poller, sel types.Selection) views.ReadingsData {
	snap, view := p.View(sel, c.now())
	data := views.ReadingsData{
		Variant:         v.Name,
		Query:           selectionQuery(sel),
		Loading:         snap.Loading,
		Failed:          snap.Batch.Failed,
		WindowLabel:     sel.Window.Label(),
		Metric:          sel.Metric.String(),
		ShowTemperature: sel.Metric.ShowsTemperature(),
		ShowHumidity:    sel.Metric.ShowsHumidity(),
		ShowChart:       v.ShowsChart(),
		ShowList:        v.ShowsList(),
		Summary:         views.Summary(view.Summary),
		Seq:             snap.Batch.Seq,
		PollPeriod:      p.Period(),
	}
	if v.ShowsList() {
		data.Rows = views.Rows(view.Readings, variants.GridLabelLayout, p.Location(), repository.AttrSensor)
	}
	if !snap.Batch.FetchedAt.IsZero() {
		data.FetchedAt = snap.Batch.FetchedAt.In(p.Location()).Format(pipeline.LabelLayout)
	}
	return data
}

func (c *readingsControllerImpl) navItems(active string) []views.NavItem {
	all := c.registry.All()
	items := make([]views.NavItem, 0, len(all))
	for _, v := range all {
		items = append(items, views.NavItem{Name: v.Name, Title: v.Title, Active: v.Name == active})
	}
	return items
}

func windowOptions(v variants.Variant, selected types.WindowKind) []views.Option {
	opts := make([]views.Option, 0, len(v.Windows))
	for _, w := range v.Windows {
		opts = append(opts, views.Option{Value: w.String(), Label: w.Label(), Selected: w == selected})
	}
	return opts
}

func metricOptions(v variants.Variant, selected types.MetricKind) []views.Option {
	opts := make([]views.Option, 0, len(v.Metrics))
	for _, m := range v.Metrics {
		opts = append(opts, views.Option{Value: m.String(), Label: m.String(), Selected: m == selected})
	}
	return opts
}

type readingJSON struct {
	DisplayID      int            `json:"displayId"`
	Temperature    string         `json:"temperature"`
	Humidity       string         `json:"humidity"`
	TimestampLabel string         `json:"timestampLabel"`
	TimestampEpoch int64          `json:"timestampEpoch"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

type summaryJSON struct {
	AverageTemperature *float64 `json:"averageTemperature"`
	AverageHumidity    *float64 `json:"averageHumidity"`
	Count              int      `json:"count"`
}

type viewJSON struct {
	Variant   string           `json:"variant"`
	Window    types.WindowKind `json:"window"`
	Metric    types.MetricKind `json:"metric"`
	Loading   bool             `json:"loading"`
	Failed    bool             `json:"failed"`
	FetchedAt *time.Time       `json:"fetchedAt"`
	Readings  []readingJSON    `json:"readings"`
	Summary   *summaryJSON     `json:"summary"`
}

// presentView shapes a filtered batch for the JSON API. Values keep their raw
// text; averages the selected metric hides are null.
func presentView(name string, snap types.Snapshot, view pipeline.View) viewJSON {
	sel := view.Selection
	out := viewJSON{
		Variant:  name,
		Window:   sel.Window,
		Metric:   sel.Metric,
		Loading:  snap.Loading,
		Failed:   snap.Batch.Failed,
		Readings: make([]readingJSON, 0, len(view.Readings)),
	}
	if !snap.Batch.FetchedAt.IsZero() {
		t := snap.Batch.FetchedAt.UTC()
		out.FetchedAt = &t
	}
	for _, r := range view.Readings {
		out.Readings = append(out.Readings, readingJSON{
			DisplayID:      r.DisplayID,
			Temperature:    r.Temperature.Raw,
			Humidity:       r.Humidity.Raw,
			TimestampLabel: r.TimestampLabel,
			TimestampEpoch: r.Timestamp,
			Attributes:     r.Attributes,
		})
	}
	if !view.Summary.NoData() {
		s := &summaryJSON{Count: view.Summary.Count}
		if sel.Metric.ShowsTemperature() {
			s.AverageTemperature = finite(view.Summary.AverageTemperature)
		}
		if sel.Metric.ShowsHumidity() {
			s.AverageHumidity = finite(view.Summary.AverageHumidity)
		}
		out.Summary = s
	}
	return out
}

func finite(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

type variantJSON struct {
	variants.Variant
	PollPeriodSeconds float64 `json:"pollPeriodSeconds"`
}
