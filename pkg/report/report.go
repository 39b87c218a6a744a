// Package report renders quality control charts for a pipeline run.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"postmortemmri/pkg/correction"
)

const (
	chartWidth  = 1920
	chartHeight = 1080
)

// File names written by WriteAll
const (
	SectionsFile  = "sections.png"
	HistogramFile = "histogram.png"
)

var passColors = []drawing.Color{
	chart.ColorBlue,
	chart.ColorRed,
	chart.ColorAlternateGreen,
	chart.ColorOrange,
	chart.ColorAlternateGray,
}

// padRange returns a range around [lo, hi] that is never empty
func padRange(lo, hi float64) *chart.ContinuousRange {
	if hi <= lo {
		return &chart.ContinuousRange{Min: lo - 1, Max: lo + 1}
	}
	pad := (hi - lo) * 0.05
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// createLine creates a horizontal line at y across xvalues
func createLine(name string, xvalues []float64, y float64, c drawing.Color) chart.ContinuousSeries {
	yvalues := make([]float64, len(xvalues))
	for i := range yvalues {
		yvalues[i] = y
	}
	return chart.ContinuousSeries{
		Name:    name,
		XValues: xvalues,
		YValues: yvalues,
		Style: chart.Style{
			StrokeColor:     c,
			StrokeDashArray: []float64{10.0, 5.0},
		},
	}
}

// SectionChart plots the representative intensity of every coronal section
// for each slice normalization pass, together with the target each pass
// scaled toward.
func SectionChart(profiles []correction.SectionProfile, w io.Writer) error {
	if len(profiles) == 0 {
		return errors.New("no section profiles to plot")
	}

	graph := chart.Chart{
		Title:  "Coronal section representative intensity",
		Width:  chartWidth,
		Height: chartHeight,
		XAxis:  chart.XAxis{Name: "Coronal section"},
		YAxis:  chart.YAxis{Name: "Intensity"},
	}

	lo, hi := 0.0, 0.0
	first := true
	var xmax float64
	for i, p := range profiles {
		xvalues := make([]float64, len(p.Reps))
		yvalues := make([]float64, len(p.Reps))
		for z, rep := range p.Reps {
			xvalues[z] = float64(z)
			yvalues[z] = float64(rep)
		}
		xmax = max(xmax, float64(len(p.Reps)-1))

		for _, y := range append(yvalues, float64(p.AvgHigh)) {
			if first || y < lo {
				lo = y
			}
			if first || y > hi {
				hi = y
			}
			first = false
		}

		c := passColors[i%len(passColors)]
		graph.Series = append(graph.Series,
			chart.ContinuousSeries{
				Name:    fmt.Sprintf("pass %d (dist %d)", i+1, p.SliceDist),
				XValues: xvalues,
				YValues: yvalues,
				Style:   chart.Style{StrokeColor: c},
			},
			createLine(fmt.Sprintf("target %d", p.AvgHigh), xvalues, float64(p.AvgHigh), c),
		)
	}

	graph.XAxis.Range = padRange(0, xmax)
	graph.YAxis.Range = padRange(lo, hi)
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph.Render(chart.PNG, w)
}

// HistogramChart plots the global intensity histogram with its mode and the
// normalization target marked.
func HistogramChart(h correction.Histogram, target int, w io.Writer) error {
	if h.Empty {
		return errors.New("histogram is empty")
	}

	xvalues := make([]float64, len(h.Counts))
	var peak float64
	for i, c := range h.Counts {
		xvalues[i] = h.Dividers[i]
		if i > 0 {
			peak = max(peak, c)
		}
	}

	modeBin := h.Mode / int(h.Dividers[1]-h.Dividers[0])
	annotations := []chart.Value2{
		{Label: fmt.Sprintf("mode %d", h.Mode), XValue: float64(h.Mode), YValue: h.Counts[modeBin]},
	}

	graph := chart.Chart{
		Title:  "Intensity histogram",
		Width:  chartWidth,
		Height: chartHeight,
		XAxis: chart.XAxis{
			Name:  "Intensity",
			Range: padRange(h.Dividers[0], h.Dividers[len(h.Dividers)-1]),
		},
		YAxis: chart.YAxis{
			Name:  "Voxels",
			Range: padRange(0, peak),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "voxels",
				XValues: xvalues,
				YValues: h.Counts,
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
					FillColor:   chart.ColorAlternateBlue,
				},
			},
			chart.ContinuousSeries{
				Name:    fmt.Sprintf("target %d", target),
				XValues: []float64{float64(target), float64(target)},
				YValues: []float64{0, peak},
				Style: chart.Style{
					StrokeColor:     chart.ColorRed,
					StrokeDashArray: []float64{10.0, 5.0},
				},
			},
			chart.AnnotationSeries{
				Annotations: annotations,
			},
		},
	}
	return graph.Render(chart.PNG, w)
}

// WriteAll renders every available chart into dir and returns the paths it
// wrote. Charts without data are skipped.
func WriteAll(dir string, profiles []correction.SectionProfile, h *correction.Histogram, target int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create report directory")
	}

	var written []string
	if len(profiles) > 0 {
		path := filepath.Join(dir, SectionsFile)
		if err := writeChart(path, func(w io.Writer) error { return SectionChart(profiles, w) }); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if h != nil && !h.Empty {
		path := filepath.Join(dir, HistogramFile)
		if err := writeChart(path, func(w io.Writer) error { return HistogramChart(*h, target, w) }); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeChart(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()
	if err := render(f); err != nil {
		return errors.Wrapf(err, "failed to render %s", filepath.Base(path))
	}
	return nil
}
