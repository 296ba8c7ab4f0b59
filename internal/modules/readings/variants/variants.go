// Package variants describes the dashboard pages. Every page runs the same
// pipeline; a Variant only picks the poll period, the selectable windows and
// metrics, and which panels are drawn.
package variants

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bsf-dashboard/internal/modules/readings/types"
)

var ErrNotFound = errors.New("variant not found")

type Layout string

const (
	// LayoutDashboard draws selectors, summary, list and chart.
	LayoutDashboard Layout = "dashboard"
	// LayoutChart draws the chart and summary only.
	LayoutChart Layout = "chart"
	// LayoutData draws the list and the paginated grid with full dates.
	LayoutData Layout = "data"
)

// Date-time layout used by the data grid.
const GridLabelLayout = "2006-01-02 15:04:05"

type Variant struct {
	Name          string             `json:"name"`
	Title         string             `json:"title"`
	PollPeriod    time.Duration      `json:"-"`
	Windows       []types.WindowKind `json:"windows"`
	Metrics       []types.MetricKind `json:"metrics"`
	Layout        Layout             `json:"layout"`
	DefaultWindow types.WindowKind   `json:"defaultWindow"`
	DefaultMetric types.MetricKind   `json:"defaultMetric"`
}

func (v Variant) AllowsWindow(w types.WindowKind) bool { return slices.Contains(v.Windows, w) }
func (v Variant) AllowsMetric(m types.MetricKind) bool { return slices.Contains(v.Metrics, m) }

func (v Variant) ShowsChart() bool { return v.Layout == LayoutDashboard || v.Layout == LayoutChart }
func (v Variant) ShowsList() bool  { return v.Layout == LayoutDashboard || v.Layout == LayoutData }
func (v Variant) ShowsGrid() bool  { return v.Layout == LayoutData }

// Defaults are the four pages of the original dashboard.
func Defaults() []Variant {
	return []Variant{
		{
			Name:       "home",
			Title:      "Home",
			PollPeriod: 120 * time.Second,
			Windows: []types.WindowKind{
				types.WindowAll, types.WindowToday, types.WindowPast7Days, types.WindowThisMonth,
			},
			Metrics:       types.AllMetrics(),
			Layout:        LayoutDashboard,
			DefaultWindow: types.WindowAll,
			DefaultMetric: types.MetricBoth,
		},
		{
			Name:          "chart",
			Title:         "Chart",
			PollPeriod:    5 * time.Second,
			Windows:       []types.WindowKind{types.WindowAll},
			Metrics:       types.AllMetrics(),
			Layout:        LayoutChart,
			DefaultWindow: types.WindowAll,
			DefaultMetric: types.MetricBoth,
		},
		{
			Name:          "test",
			Title:         "Test",
			PollPeriod:    120 * time.Second,
			Windows:       types.AllWindows(),
			Metrics:       types.AllMetrics(),
			Layout:        LayoutDashboard,
			DefaultWindow: types.WindowAll,
			DefaultMetric: types.MetricBoth,
		},
		{
			Name:          "data",
			Title:         "Data",
			PollPeriod:    5 * time.Second,
			Windows:       []types.WindowKind{types.WindowAll},
			Metrics:       []types.MetricKind{types.MetricBoth},
			Layout:        LayoutData,
			DefaultWindow: types.WindowAll,
			DefaultMetric: types.MetricBoth,
		},
	}
}

// Registry is an ordered, read-only set of variants.
type Registry struct {
	list   []Variant
	byName map[string]int
}

func NewRegistry(list []Variant) (*Registry, error) {
	if len(list) == 0 {
		return nil, errors.New("no variants configured")
	}
	r := &Registry{byName: make(map[string]int, len(list))}
	for _, v := range list {
		if err := validate(v); err != nil {
			return nil, err
		}
		if _, dup := r.byName[v.Name]; dup {
			return nil, fmt.Errorf("variant %q defined twice", v.Name)
		}
		r.byName[v.Name] = len(r.list)
		r.list = append(r.list, v)
	}
	return r, nil
}

func (r *Registry) Get(name string) (Variant, error) {
	i, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return r.list[i], nil
}

func (r *Registry) All() []Variant {
	return slices.Clone(r.list)
}

func (r *Registry) First() Variant {
	return r.list[0]
}

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

func validate(v Variant) error {
	switch {
	case !nameRe.MatchString(v.Name):
		return fmt.Errorf("variant name %q must be lowercase letters, digits or '-'", v.Name)
	case v.PollPeriod <= 0:
		return fmt.Errorf("variant %q: poll period must be positive", v.Name)
	case len(v.Windows) == 0:
		return fmt.Errorf("variant %q: no windows", v.Name)
	case len(v.Metrics) == 0:
		return fmt.Errorf("variant %q: no metrics", v.Name)
	case !v.AllowsWindow(v.DefaultWindow):
		return fmt.Errorf("variant %q: default window %s not in windows", v.Name, v.DefaultWindow)
	case !v.AllowsMetric(v.DefaultMetric):
		return fmt.Errorf("variant %q: default metric %s not in metrics", v.Name, v.DefaultMetric)
	}
	switch v.Layout {
	case LayoutDashboard, LayoutChart, LayoutData:
	default:
		return fmt.Errorf("variant %q: unknown layout %q", v.Name, v.Layout)
	}
	return nil
}

type fileVariant struct {
	Name          string   `yaml:"name"`
	Title         string   `yaml:"title"`
	PollPeriod    string   `yaml:"poll_period"`
	Windows       []string `yaml:"windows"`
	Metrics       []string `yaml:"metrics"`
	Layout        string   `yaml:"layout"`
	DefaultWindow string   `yaml:"default_window"`
	DefaultMetric string   `yaml:"default_metric"`
}

type file struct {
	Variants []fileVariant `yaml:"variants"`
}

// Load returns the defaults, overridden by the YAML file at path when path is
// set. A file entry replaces the default of the same name field by field;
// unknown names are appended as new pages.
func Load(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(Defaults())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variants file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse variants file: %w", err)
	}

	list := Defaults()
	for _, fv := range f.Variants {
		name := strings.ToLower(strings.TrimSpace(fv.Name))
		i := slices.IndexFunc(list, func(v Variant) bool { return v.Name == name })
		base := Variant{
			Name:          name,
			Title:         fv.Name,
			Windows:       []types.WindowKind{types.WindowAll},
			Metrics:       types.AllMetrics(),
			Layout:        LayoutDashboard,
			DefaultWindow: types.WindowAll,
			DefaultMetric: types.MetricBoth,
		}
		if i >= 0 {
			base = list[i]
		}
		v, err := fv.merge(base)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", name, err)
		}
		if i >= 0 {
			list[i] = v
		} else {
			list = append(list, v)
		}
	}
	return NewRegistry(list)
}

func (fv fileVariant) merge(v Variant) (Variant, error) {
	if fv.Title != "" {
		v.Title = fv.Title
	}
	if fv.PollPeriod != "" {
		d, err := time.ParseDuration(fv.PollPeriod)
		if err != nil {
			return v, fmt.Errorf("poll_period: %w", err)
		}
		v.PollPeriod = d
	}
	if len(fv.Windows) > 0 {
		v.Windows = nil
		for _, s := range fv.Windows {
			w, err := types.ParseWindow(s)
			if err != nil {
				return v, err
			}
			v.Windows = append(v.Windows, w)
		}
		if !v.AllowsWindow(v.DefaultWindow) {
			v.DefaultWindow = v.Windows[0]
		}
	}
	if len(fv.Metrics) > 0 {
		v.Metrics = nil
		for _, s := range fv.Metrics {
			m, err := types.ParseMetric(s)
			if err != nil {
				return v, err
			}
			v.Metrics = append(v.Metrics, m)
		}
		if !v.AllowsMetric(v.DefaultMetric) {
			v.DefaultMetric = v.Metrics[0]
		}
	}
	if fv.Layout != "" {
		v.Layout = Layout(strings.ToLower(fv.Layout))
	}
	if fv.DefaultWindow != "" {
		w, err := types.ParseWindow(fv.DefaultWindow)
		if err != nil {
			return v, err
		}
		v.DefaultWindow = w
	}
	if fv.DefaultMetric != "" {
		m, err := types.ParseMetric(fv.DefaultMetric)
		if err != nil {
			return v, err
		}
		v.DefaultMetric = m
	}
	return v, nil
}
