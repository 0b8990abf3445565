// Package chart regenerates the summary PNG from the persisted table.
package chart

import (
	"fmt"
	"image/color"

	"github.com/mbeaudry/homelog/record"
	"github.com/mbeaudry/homelog/storage"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Renderer draws temperature curves and the utility energy series from the
// table into a single PNG.
type Renderer struct {
	path   string
	logger *zap.Logger
}

// New creates a renderer writing to the given PNG path.
func New(path string, logger *zap.Logger) *Renderer {
	return &Renderer{path: path, logger: logger}
}

type series struct {
	column string
	label  string
	color  color.RGBA
}

// Render rebuilds the chart from the table. Null cells leave gaps by
// splitting the affected series; an empty table is not an error.
func (r *Renderer) Render(t *storage.Table) error {
	if t.Len() == 0 {
		r.logger.Info("table empty, skipping chart")
		return nil
	}

	p := plot.New()
	p.Title.Text = "Home telemetry"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15h"}
	p.Y.Label.Text = "°C / kWh"
	p.Legend.Top = true

	all := []series{
		{record.ColExtTemp, "outdoor", color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{record.ColIntTemp, "indoor", color.RGBA{R: 255, G: 127, B: 14, A: 255}},
		{"open_temp", "weather", color.RGBA{R: 44, G: 160, B: 44, A: 255}},
		{record.ColKwhHydro, "utility kWh", color.RGBA{R: 214, G: 39, B: 40, A: 255}},
	}
	for _, s := range all {
		for i, pts := range segments(t, s.column) {
			line, err := plotter.NewLine(pts)
			if err != nil {
				return fmt.Errorf("failed to build %s series: %w", s.column, err)
			}
			line.Color = s.color
			p.Add(line)
			if i == 0 {
				p.Legend.Add(s.label, line)
			}
		}
	}

	if err := p.Save(12*vg.Inch, 4*vg.Inch, r.path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	r.logger.Info("chart regenerated",
		zap.String("path", r.path),
		zap.Int("rows", t.Len()))
	return nil
}

// segments splits one column into contiguous runs of non-null cells so the
// plot shows gaps where data is missing.
func segments(t *storage.Table, column string) []plotter.XYs {
	var (
		runs    []plotter.XYs
		current plotter.XYs
	)
	for _, row := range t.Rows() {
		f, ok := row.Get(column).Float()
		if !ok {
			if len(current) > 1 {
				runs = append(runs, current)
			}
			current = nil
			continue
		}
		current = append(current, plotter.XY{
			X: float64(row.Timestamp.Unix()),
			Y: f,
		})
	}
	if len(current) > 1 {
		runs = append(runs, current)
	}
	return runs
}
