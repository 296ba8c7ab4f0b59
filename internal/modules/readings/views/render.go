package views

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"math"
	"strconv"
	"time"

	"bsf-dashboard/internal/modules/readings/types"
)

//go:embed templates
var viewsFS embed.FS

var dashboardTmpl *template.Template

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	dashboardTmpl = tmpl
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

var funcs = template.FuncMap{
	"seconds": func(d time.Duration) int { return int(d / time.Second) },
}

// NavItem is one entry of the variant navigation bar.
type NavItem struct {
	Name   string
	Title  string
	Active bool
}

// Option is one entry of a <select>.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// ReadingRow is a reading prepared for display.
type ReadingRow struct {
	DisplayID   int
	Temperature string
	Humidity    string
	Label       string
	DateTime    string
	Sensor      string
}

type SummaryData struct {
	NoData             bool
	Count              int
	AverageTemperature string
	AverageHumidity    string
}

// ReadingsData is the view model for the auto-refreshed readings partial.
type ReadingsData struct {
	Variant         string
	Query           template.URL
	Loading         bool
	Failed          bool
	WindowLabel     string
	Metric          string
	ShowTemperature bool
	ShowHumidity    bool
	ShowChart       bool
	ShowList        bool
	Summary         SummaryData
	Rows            []ReadingRow
	FetchedAt       string
	// Seq is the applied batch sequence; it busts the chart image cache.
	Seq        uint64
	PollPeriod time.Duration
}

type DashboardData struct {
	Title    string
	Nav      []NavItem
	Variant  string
	Windows  []Option
	Metrics  []Option
	ShowGrid bool
	Readings ReadingsData
}

// PaginationItem is one entry in the pagination bar: either a page number or an ellipsis.
type PaginationItem struct {
	Page     int
	Ellipsis bool
}

// GridData is the view model for the data grid partial.
type GridData struct {
	Variant     string
	Query       template.URL
	WindowLabel string
	Rows        []ReadingRow
	Total       int
	CurrentPage int
	TotalPages  int
	HasPrev     bool
	HasNext     bool
	PrevPage    int
	NextPage    int
	PageItems   []PaginationItem
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderReadingsPartial executes only the readings partial into w.
// Use for HTMX fragment refresh.
func RenderReadingsPartial(w io.Writer, data *ReadingsData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/readings.html", data)
}

func RenderGridPartial(w io.Writer, data *GridData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/grid.html", data)
}

// Rows converts readings for display. gridLayout formats the full date-time
// column in loc.
func Rows(readings []types.Reading, gridLayout string, loc *time.Location, sensorAttr string) []ReadingRow {
	if loc == nil {
		loc = time.Local
	}
	out := make([]ReadingRow, 0, len(readings))
	for _, r := range readings {
		row := ReadingRow{
			DisplayID:   r.DisplayID,
			Temperature: r.Temperature.Raw,
			Humidity:    r.Humidity.Raw,
			Label:       r.TimestampLabel,
			DateTime:    r.Time().In(loc).Format(gridLayout),
		}
		if s, ok := r.Attributes[sensorAttr].(string); ok {
			row.Sensor = s
		}
		out = append(out, row)
	}
	return out
}

func Summary(a types.Aggregate) SummaryData {
	if a.NoData() {
		return SummaryData{NoData: true}
	}
	return SummaryData{
		Count:              a.Count,
		AverageTemperature: formatAverage(a.AverageTemperature),
		AverageHumidity:    formatAverage(a.AverageHumidity),
	}
}

func formatAverage(f float64) string {
	if math.IsNaN(f) {
		return "-"
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
