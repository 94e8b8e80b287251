package viz

import (
	"bytes"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Default canvas size for rendered figures.
const (
	renderWidth  = 6 * vg.Inch
	renderHeight = 4 * vg.Inch
)

// Render rasterizes a figure to PNG bytes.
func Render(f *Figure) ([]byte, error) {
	if len(f.Series) == 0 {
		return nil, fmt.Errorf("viz: figure has no data series")
	}

	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel

	for i, s := range f.Series {
		if err := addSeries(p, f.Kind, s); err != nil {
			return nil, fmt.Errorf("viz: series %d: %w", i, err)
		}
	}

	wt, err := p.WriterTo(renderWidth, renderHeight, "png")
	if err != nil {
		return nil, fmt.Errorf("viz: encoding figure: %w", err)
	}

	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("viz: writing figure: %w", err)
	}
	return buf.Bytes(), nil
}

func addSeries(p *plot.Plot, kind Kind, s Series) error {
	switch kind {
	case KindLine:
		line, err := plotter.NewLine(toXYs(s))
		if err != nil {
			return err
		}
		p.Add(line)
		if s.Label != "" {
			p.Legend.Add(s.Label, line)
		}
	case KindScatter:
		scatter, err := plotter.NewScatter(toXYs(s))
		if err != nil {
			return err
		}
		p.Add(scatter)
		if s.Label != "" {
			p.Legend.Add(s.Label, scatter)
		}
	case KindBar:
		bars, err := plotter.NewBarChart(plotter.Values(s.Ys), vg.Points(18))
		if err != nil {
			return err
		}
		p.Add(bars)
		if s.Label != "" {
			p.Legend.Add(s.Label, bars)
		}
	default:
		return fmt.Errorf("unknown figure kind %q", kind)
	}
	return nil
}

// toXYs pairs a series' Xs and Ys, substituting point indices when no Xs
// were given. Mismatched lengths are clamped to the shorter side.
func toXYs(s Series) plotter.XYs {
	n := len(s.Ys)
	if len(s.Xs) > 0 && len(s.Xs) < n {
		n = len(s.Xs)
	}
	xys := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		if len(s.Xs) > 0 {
			xys[i].X = s.Xs[i]
		} else {
			xys[i].X = float64(i)
		}
		xys[i].Y = s.Ys[i]
	}
	return xys
}
