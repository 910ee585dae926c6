package report

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"forcetrial/internal/analysis"
	"forcetrial/internal/trial"
)

// RenderPlot draws the full trial as a force/time line with the detected
// peaks marked, and returns it as PNG bytes.
func RenderPlot(snap trial.Snapshot, rep *analysis.Report) ([]byte, error) {
	if snap.Len() == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}

	p := plot.New()
	p.Title.Text = snap.ID()
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Force"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, snap.Len())
	for i := range pts {
		s := snap.At(i)
		pts[i] = plotter.XY{X: s.Elapsed, Y: s.Value}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create force line: %w", err)
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.LineStyle.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("Force", line)

	if rep != nil && len(rep.Peaks) > 0 {
		peaks := make(plotter.XYs, len(rep.Peaks))
		for i, pk := range rep.Peaks {
			peaks[i] = plotter.XY{X: pk.Elapsed, Y: pk.Value}
		}
		sc, err := plotter.NewScatter(peaks)
		if err != nil {
			return nil, fmt.Errorf("failed to create peak markers: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("Peaks", sc)
	}

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create plot writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render plot: %w", err)
	}
	return buf.Bytes(), nil
}
