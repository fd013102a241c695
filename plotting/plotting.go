// Package plotting draws line charts of acquired data and presents them,
// either written to a file or served to a browser.
package plotting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgsvg"
)

const (
	// DefaultWidth and DefaultHeight size figures when the caller does not
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

// Series is one line of a figure
type Series struct {
	Label string    `json:"label"`
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
}

// Legend places the legend in a strip above the data area.  Entries fill
// Columns cells per row and the cells are stretched to the full width.
type Legend struct {
	Columns int `json:"columns"`
}

// Figure is a titled set of series sharing a pair of axes
type Figure struct {
	Title  string   `json:"title"`
	XLabel string   `json:"xlabel"`
	YLabel string   `json:"ylabel"`
	Series []Series `json:"series"`
	Legend Legend   `json:"legend"`
}

// Format is an output encoding for Render
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpg"
	SVG  Format = "svg"
)

// FormatOf picks the format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "svg":
		return SVG, nil
	}
	return "", fmt.Errorf("no plot format for %q, use .png, .jpg or .svg", path)
}

func (f Figure) build() (*plot.Plot, []plot.Thumbnailer, error) {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel
	p.Add(plotter.NewGrid())
	thumbs := make([]plot.Thumbnailer, len(f.Series))
	for i, s := range f.Series {
		if len(s.X) != len(s.Y) {
			return nil, nil, fmt.Errorf("series %q has %d x and %d y values", s.Label, len(s.X), len(s.Y))
		}
		pts := make(plotter.XYs, len(s.X))
		for j := range s.X {
			pts[j].X, pts[j].Y = s.X[j], s.Y[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, nil, fmt.Errorf("series %q: %w", s.Label, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		thumbs[i] = line
	}
	return p, thumbs, nil
}

// drawLegend draws one legend entry per cell of a strip along the top of
// c and returns the canvas left for the plot
func (f Figure) drawLegend(c draw.Canvas, thumbs []plot.Thumbnailer) draw.Canvas {
	n := len(f.Series)
	if n == 0 {
		return c
	}
	cols := f.Legend.Columns
	if cols <= 0 || cols > n {
		cols = n
	}
	rows := (n + cols - 1) / cols

	proto := plot.NewLegend()
	rowH := proto.TextStyle.Height("M") + 2*proto.Padding + vg.Points(4)
	stripH := vg.Length(rows) * rowH
	cellW := (c.Max.X - c.Min.X) / vg.Length(cols)

	for i, s := range f.Series {
		row, col := i/cols, i%cols
		cell := draw.Canvas{
			Canvas: c.Canvas,
			Rectangle: vg.Rectangle{
				Min: vg.Point{X: c.Min.X + vg.Length(col)*cellW, Y: c.Max.Y - vg.Length(row+1)*rowH},
				Max: vg.Point{X: c.Min.X + vg.Length(col+1)*cellW, Y: c.Max.Y - vg.Length(row)*rowH},
			},
		}
		leg := plot.NewLegend()
		leg.Top, leg.Left = true, true
		leg.XOffs = vg.Points(6)
		leg.Add(s.Label, thumbs[i])
		leg.Draw(cell)
	}
	return draw.Crop(c, 0, 0, 0, -stripH)
}

// Render draws the figure to w in the given format
func Render(f Figure, w io.Writer, format Format, width, height vg.Length) error {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	p, thumbs, err := f.build()
	if err != nil {
		return err
	}

	var (
		canvas vg.CanvasWriterTo
		dc     draw.Canvas
	)
	switch format {
	case PNG, JPEG:
		img := vgimg.New(width, height)
		dc = draw.New(img)
		if format == PNG {
			canvas = vgimg.PngCanvas{Canvas: img}
		} else {
			canvas = vgimg.JpegCanvas{Canvas: img}
		}
	case SVG:
		svg := vgsvg.New(width, height)
		dc = draw.New(svg)
		canvas = svg
	default:
		return fmt.Errorf("unknown plot format %q", format)
	}

	// background, then the title, then the legend strip under it
	dc.SetColor(p.BackgroundColor)
	dc.Fill(dc.Rectangle.Path())
	area := dc
	if f.Title != "" {
		p.Title.Text = ""
		sty := p.Title.TextStyle
		dc.FillText(sty, vg.Point{X: (dc.Min.X + dc.Max.X) / 2, Y: dc.Max.Y - p.Title.Padding}, f.Title)
		area = draw.Crop(dc, 0, 0, 0, -(sty.Height(f.Title) + 2*p.Title.Padding))
	}
	p.Draw(f.drawLegend(area, thumbs))

	_, err = canvas.WriteTo(w)
	return err
}

// FileWriter is a headless presenter that saves the figure to Path,
// in the format named by its extension
type FileWriter struct {
	Path   string
	Width  vg.Length
	Height vg.Length
}

// Show writes the figure to the file
func (fw FileWriter) Show(ctx context.Context, f Figure) error {
	format, err := FormatOf(fw.Path)
	if err != nil {
		return err
	}
	fid, err := os.Create(fw.Path)
	if err != nil {
		return err
	}
	if err = Render(f, fid, format, fw.Width, fw.Height); err != nil {
		fid.Close()
		return err
	}
	return fid.Close()
}
