// Package pipeline turns a scanned batch of readings into chart-ready rows:
// normalization, time-range filtering and aggregation. All functions are pure
// and never modify their input.
package pipeline

import (
	"cmp"
	"math"
	"slices"
	"time"

	"bsf-dashboard/internal/modules/readings/types"
)

// LabelLayout is the axis label format for normalized readings.
const LabelLayout = "3:04PM"

// Normalize sorts raw readings by timestamp (scan order breaks ties),
// assigns 1-based display IDs and formats the clock label in loc.
func Normalize(raw []types.RawReading, loc *time.Location) []types.Reading {
	if loc == nil {
		loc = time.Local
	}
	sorted := slices.Clone(raw)
	slices.SortStableFunc(sorted, func(a, b types.RawReading) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ScanIndex, b.ScanIndex)
	})

	out := make([]types.Reading, len(sorted))
	for i, r := range sorted {
		out[i] = types.Reading{
			RawReading:     r,
			DisplayID:      i + 1,
			TimestampLabel: time.Unix(r.Timestamp, 0).In(loc).Format(LabelLayout),
		}
	}
	return out
}

// Filter keeps the readings that fall inside window relative to now.
// Calendar windows (Today, ThisMonth) are evaluated in loc.
func Filter(readings []types.Reading, window types.WindowKind, now time.Time, loc *time.Location) []types.Reading {
	if window == types.WindowAll {
		return readings
	}
	keep := Predicate(window, now, loc)
	out := make([]types.Reading, 0, len(readings))
	for _, r := range readings {
		if keep(r.Timestamp) {
			out = append(out, r)
		}
	}
	return out
}

// Predicate returns the membership test for window on epoch seconds.
func Predicate(window types.WindowKind, now time.Time, loc *time.Location) func(ts int64) bool {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	switch window {
	case types.WindowToday:
		y, m, d := now.Date()
		return func(ts int64) bool {
			ty, tm, td := time.Unix(ts, 0).In(loc).Date()
			return ty == y && tm == m && td == d
		}
	case types.WindowPast7Days:
		return since(now.Add(-7 * 24 * time.Hour))
	case types.WindowThisMonth:
		y, m, _ := now.Date()
		return func(ts int64) bool {
			ty, tm, _ := time.Unix(ts, 0).In(loc).Date()
			return ty == y && tm == m
		}
	case types.WindowPast10Minutes:
		return since(now.Add(-10 * time.Minute))
	default:
		return func(int64) bool { return true }
	}
}

func since(cutoff time.Time) func(ts int64) bool {
	return func(ts int64) bool {
		return !time.Unix(ts, 0).Before(cutoff)
	}
}

// Aggregate computes the window means. A value contributes to its metric's
// sum only when it parsed as a number, but the divisor is always the number
// of readings in the window, so unparseable values pull the mean down.
func Aggregate(readings []types.Reading) types.Aggregate {
	n := len(readings)
	if n == 0 {
		return types.Aggregate{AverageTemperature: math.NaN(), AverageHumidity: math.NaN()}
	}
	var tempSum, humSum float64
	for _, r := range readings {
		if r.Temperature.Valid {
			tempSum += r.Temperature.Number
		}
		if r.Humidity.Valid {
			humSum += r.Humidity.Number
		}
	}
	return types.Aggregate{
		Count:              n,
		AverageTemperature: tempSum / float64(n),
		AverageHumidity:    humSum / float64(n),
	}
}

// View is a batch narrowed to one selection.
type View struct {
	Selection types.Selection
	Readings  []types.Reading
	Summary   types.Aggregate
}

// Apply runs Filter and Aggregate for sel against an already normalized batch.
func Apply(readings []types.Reading, sel types.Selection, now time.Time, loc *time.Location) View {
	filtered := Filter(readings, sel.Window, now, loc)
	return View{
		Selection: sel,
		Readings:  filtered,
		Summary:   Aggregate(filtered),
	}
}

// Run is the whole pipeline from a raw scan.
func Run(raw []types.RawReading, sel types.Selection, now time.Time, loc *time.Location) View {
	return Apply(Normalize(raw, loc), sel, now, loc)
}
