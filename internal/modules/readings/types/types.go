package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownWindow = errors.New("unknown time range")
	ErrUnknownMetric = errors.New("unknown metric")
)

// Value is a leniently parsed sensor value. The table stores temperature and
// humidity either as numbers or as text, so the raw form is kept for display.
type Value struct {
	Raw    string
	Number float64
	Valid  bool
}

// ParseValue parses s as a decimal number. Empty, non-numeric, NaN and
// infinite inputs yield a Value with Valid == false.
func ParseValue(s string) Value {
	v := Value{Raw: s}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return v
	}
	v.Number = n
	v.Valid = true
	return v
}

// NumberValue wraps an already numeric value.
func NumberValue(n float64) Value {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Value{Raw: strconv.FormatFloat(n, 'g', -1, 64)}
	}
	return Value{Raw: strconv.FormatFloat(n, 'f', -1, 64), Number: n, Valid: true}
}

func (v Value) String() string {
	return v.Raw
}

// RawReading is one row as returned by a row source scan.
type RawReading struct {
	Temperature Value
	Humidity    Value
	// Timestamp is seconds since the Unix epoch.
	Timestamp int64
	// ScanIndex is the row's position in the scan result and breaks
	// timestamp ties during normalization.
	ScanIndex  int
	Attributes map[string]any
}

// Reading is a normalized reading. Timestamp keeps the epoch value that
// filtering works on; TimestampLabel is for display only.
type Reading struct {
	RawReading
	DisplayID      int
	TimestampLabel string
}

func (r Reading) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Aggregate holds the window means. Averages are NaN when Count is zero.
type Aggregate struct {
	Count              int
	AverageTemperature float64
	AverageHumidity    float64
}

func (a Aggregate) NoData() bool {
	return a.Count == 0
}

// Batch is the result of one fetch, normalized.
type Batch struct {
	Seq       uint64
	PollID    string
	FetchedAt time.Time
	Readings  []Reading
	// Failed is set when the fetch failed and the batch was degraded to empty.
	Failed bool
}

// Snapshot is the scheduler's state record.
type Snapshot struct {
	Loading bool
	Batch   Batch
}

type WindowKind int

const (
	WindowAll WindowKind = iota
	WindowToday
	WindowPast7Days
	WindowThisMonth
	WindowPast10Minutes
)

var windowNames = map[WindowKind]string{
	WindowAll:           "All",
	WindowToday:         "Today",
	WindowPast7Days:     "Past7Days",
	WindowThisMonth:     "ThisMonth",
	WindowPast10Minutes: "Past10Minutes",
}

var windowLabels = map[WindowKind]string{
	WindowAll:           "All",
	WindowToday:         "Today",
	WindowPast7Days:     "Past 7 Days",
	WindowThisMonth:     "This Month",
	WindowPast10Minutes: "Past 10 Minutes",
}

var windowAliases = map[string]WindowKind{
	"all":           WindowAll,
	"today":         WindowToday,
	"past7days":     WindowPast7Days,
	"7d":            WindowPast7Days,
	"thismonth":     WindowThisMonth,
	"month":         WindowThisMonth,
	"past10minutes": WindowPast10Minutes,
	"10m":           WindowPast10Minutes,
}

// AllWindows lists the windows in dropdown order.
func AllWindows() []WindowKind {
	return []WindowKind{WindowAll, WindowToday, WindowPast7Days, WindowThisMonth, WindowPast10Minutes}
}

func (w WindowKind) String() string {
	if s, ok := windowNames[w]; ok {
		return s
	}
	return fmt.Sprintf("WindowKind(%d)", int(w))
}

func (w WindowKind) Label() string {
	if s, ok := windowLabels[w]; ok {
		return s
	}
	return w.String()
}

func ParseWindow(s string) (WindowKind, error) {
	w, ok := windowAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return WindowAll, fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
	return w, nil
}

func (w WindowKind) MarshalText() ([]byte, error) {
	if _, ok := windowNames[w]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownWindow, int(w))
	}
	return []byte(w.String()), nil
}

func (w *WindowKind) UnmarshalText(b []byte) error {
	parsed, err := ParseWindow(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

type MetricKind int

const (
	MetricBoth MetricKind = iota
	MetricTemperature
	MetricHumidity
)

var metricNames = map[MetricKind]string{
	MetricBoth:        "Both",
	MetricTemperature: "Temperature",
	MetricHumidity:    "Humidity",
}

func AllMetrics() []MetricKind {
	return []MetricKind{MetricBoth, MetricTemperature, MetricHumidity}
}

func (m MetricKind) String() string {
	if s, ok := metricNames[m]; ok {
		return s
	}
	return fmt.Sprintf("MetricKind(%d)", int(m))
}

func ParseMetric(s string) (MetricKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "both":
		return MetricBoth, nil
	case "temperature", "temp":
		return MetricTemperature, nil
	case "humidity":
		return MetricHumidity, nil
	default:
		return MetricBoth, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

// ShowsTemperature reports whether the temperature series is displayed.
func (m MetricKind) ShowsTemperature() bool {
	return m == MetricBoth || m == MetricTemperature
}

func (m MetricKind) ShowsHumidity() bool {
	return m == MetricBoth || m == MetricHumidity
}

func (m MetricKind) MarshalText() ([]byte, error) {
	if _, ok := metricNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, int(m))
	}
	return []byte(m.String()), nil
}

func (m *MetricKind) UnmarshalText(b []byte) error {
	parsed, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Selection is the caller-selected time range and metric.
type Selection struct {
	Window WindowKind
	Metric MetricKind
}
