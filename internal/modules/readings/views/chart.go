package views

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"math"

	"bsf-dashboard/internal/modules/readings/types"
)

const (
	ChartWidth  = 600
	ChartHeight = 300

	TemperatureColor = "#8884d8"
	HumidityColor    = "#82ca9d"
)

const (
	padLeft   = 48
	padRight  = 16
	padTop    = 16
	padBottom = 40
	yTicks    = 5
	maxXTicks = 6
)

type series struct {
	name  string
	unit  string
	color string
	value func(types.Reading) types.Value
}

func seriesFor(metric types.MetricKind) []series {
	var out []series
	if metric.ShowsTemperature() {
		out = append(out, series{
			name: "Temperature", unit: "°C", color: TemperatureColor,
			value: func(r types.Reading) types.Value { return r.Temperature },
		})
	}
	if metric.ShowsHumidity() {
		out = append(out, series{
			name: "Humidity", unit: "%", color: HumidityColor,
			value: func(r types.Reading) types.Value { return r.Humidity },
		})
	}
	return out
}

// RenderChart writes an SVG line chart with one series per selected metric.
// Points are spaced evenly in reading order and labelled with the clock
// label; unparseable values leave a gap in the line.
func RenderChart(w io.Writer, readings []types.Reading, metric types.MetricKind) error {
	var buf bytes.Buffer
	ss := seriesFor(metric)

	fmt.Fprintf(&buf, "<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\" font-family=\"sans-serif\" font-size=\"11\">\n",
		ChartWidth, ChartHeight, ChartWidth, ChartHeight)
	fmt.Fprintf(&buf, "<rect width=\"%d\" height=\"%d\" fill=\"white\"/>\n", ChartWidth, ChartHeight)

	if len(readings) == 0 || len(ss) == 0 {
		fmt.Fprintf(&buf, "<text x=\"%d\" y=\"%d\" text-anchor=\"middle\" fill=\"#888\">No data</text>\n", ChartWidth/2, ChartHeight/2)
		buf.WriteString("</svg>\n")
		_, err := w.Write(buf.Bytes())
		return err
	}

	lo, hi := valueRange(readings, ss)
	plotW := float64(ChartWidth - padLeft - padRight)
	plotH := float64(ChartHeight - padTop - padBottom)

	xAt := func(i int) float64 {
		if len(readings) == 1 {
			return padLeft + plotW/2
		}
		return padLeft + float64(i)*plotW/float64(len(readings)-1)
	}
	yAt := func(v float64) float64 {
		return padTop + plotH - (v-lo)/(hi-lo)*plotH
	}

	// Grid and Y axis labels.
	buf.WriteString("<g stroke=\"#eee\" stroke-dasharray=\"5 5\">\n")
	for i := 0; i <= yTicks; i++ {
		y := padTop + plotH*float64(i)/yTicks
		fmt.Fprintf(&buf, "<line x1=\"%d\" y1=\"%.1f\" x2=\"%d\" y2=\"%.1f\"/>\n", padLeft, y, ChartWidth-padRight, y)
	}
	buf.WriteString("</g>\n<g fill=\"#666\" text-anchor=\"end\">\n")
	for i := 0; i <= yTicks; i++ {
		v := hi - (hi-lo)*float64(i)/yTicks
		y := padTop + plotH*float64(i)/yTicks
		fmt.Fprintf(&buf, "<text x=\"%d\" y=\"%.1f\">%.1f</text>\n", padLeft-6, y+4, v)
	}
	buf.WriteString("</g>\n")

	// X axis labels.
	buf.WriteString("<g fill=\"#666\" text-anchor=\"middle\">\n")
	for _, i := range xTickIndexes(len(readings)) {
		fmt.Fprintf(&buf, "<text x=\"%.1f\" y=\"%d\">%s</text>\n", xAt(i), ChartHeight-padBottom+16, html.EscapeString(readings[i].TimestampLabel))
	}
	buf.WriteString("</g>\n")

	for _, s := range ss {
		fmt.Fprintf(&buf, "<g stroke=\"%s\" fill=\"none\" stroke-width=\"2\">\n", s.color)
		for _, seg := range segments(readings, s) {
			buf.WriteString("<polyline points=\"")
			for j, i := range seg {
				if j > 0 {
					buf.WriteByte(' ')
				}
				fmt.Fprintf(&buf, "%.1f,%.1f", xAt(i), yAt(s.value(readings[i]).Number))
			}
			buf.WriteString("\"/>\n")
		}
		buf.WriteString("</g>\n")

		fmt.Fprintf(&buf, "<g fill=\"%s\">\n", s.color)
		for i, r := range readings {
			v := s.value(r)
			if !v.Valid {
				continue
			}
			fmt.Fprintf(&buf, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"3\"><title>%s %s: %s%s</title></circle>\n",
				xAt(i), yAt(v.Number), html.EscapeString(r.TimestampLabel), s.name, html.EscapeString(v.Raw), s.unit)
		}
		buf.WriteString("</g>\n")
	}

	// Legend.
	for i, s := range ss {
		x := padLeft + i*120
		y := ChartHeight - 8
		fmt.Fprintf(&buf, "<rect x=\"%d\" y=\"%d\" width=\"10\" height=\"10\" fill=\"%s\"/>", x, y-9, s.color)
		fmt.Fprintf(&buf, "<text x=\"%d\" y=\"%d\" fill=\"%s\">%s</text>\n", x+14, y, s.color, s.name)
	}

	buf.WriteString("</svg>\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// valueRange returns the Y axis bounds over all plotted values.
func valueRange(readings []types.Reading, ss []series) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, r := range readings {
		for _, s := range ss {
			if v := s.value(r); v.Valid {
				lo = math.Min(lo, v.Number)
				hi = math.Max(hi, v.Number)
			}
		}
	}
	switch {
	case math.IsInf(lo, 1):
		return 0, 1
	case lo == hi:
		return lo - 1, hi + 1
	}
	pad := (hi - lo) * 0.05
	return lo - pad, hi + pad
}

// segments splits the series into runs of consecutive valid values.
func segments(readings []types.Reading, s series) [][]int {
	var out [][]int
	var cur []int
	for i, r := range readings {
		if s.value(r).Valid {
			cur = append(cur, i)
			continue
		}
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func xTickIndexes(n int) []int {
	if n <= maxXTicks {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, maxXTicks)
	for i := range out {
		out[i] = i * (n - 1) / (maxXTicks - 1)
	}
	return out
}
