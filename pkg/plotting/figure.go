// Package plotting draws figures made of a grid of image panels and
// writes them as PNG. It follows the pyplot workflow: create a figure,
// pick a subplot, show an image or a value grid in it, then save.
package plotting

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Errors returned by figure operations.
var (
	ErrBadSubplot = errors.New("plotting: invalid subplot")
	ErrEmptyGrid  = errors.New("plotting: empty or ragged grid")
)

// paletteSize is the number of colors in the value-grid colormap.
const paletteSize = 256

// Figure is a page holding a rows x cols grid of axes.
type Figure struct {
	width  vg.Length
	height vg.Length
	dpi    int

	rows, cols int
	axes       map[int]*Axes
	current    *Axes
}

// Axes is one panel of a figure.
type Axes struct {
	plot *plot.Plot
}

// NewFigure creates a figure of the given size in inches, rendered at dpi.
func NewFigure(widthIn, heightIn float64, dpi int) *Figure {
	if dpi <= 0 {
		dpi = vgimg.DefaultDPI
	}
	return &Figure{
		width:  vg.Length(widthIn) * vg.Inch,
		height: vg.Length(heightIn) * vg.Inch,
		dpi:    dpi,
		axes:   make(map[int]*Axes),
	}
}

// Subplot selects panel idx (1-based, row-major) of a rows x cols grid,
// creating it if needed, and makes it current. All subplots of a figure
// share one grid shape.
func (f *Figure) Subplot(rows, cols, idx int) (*Axes, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: grid %dx%d", ErrBadSubplot, rows, cols)
	}
	if idx < 1 || idx > rows*cols {
		return nil, fmt.Errorf("%w: index %d outside 1..%d", ErrBadSubplot, idx, rows*cols)
	}
	if f.rows != 0 && (f.rows != rows || f.cols != cols) {
		return nil, fmt.Errorf("%w: grid %dx%d after %dx%d", ErrBadSubplot, rows, cols, f.rows, f.cols)
	}
	f.rows, f.cols = rows, cols

	ax, ok := f.axes[idx]
	if !ok {
		ax = newAxes()
		f.axes[idx] = ax
	}
	f.current = ax
	return ax, nil
}

// gca returns the current axes, creating a single full-page panel if none.
func (f *Figure) gca() *Axes {
	if f.current == nil {
		ax, _ := f.Subplot(1, 1, 1)
		return ax
	}
	return f.current
}

// ImShow draws img in the current axes.
func (f *Figure) ImShow(img image.Image) {
	f.gca().ImShow(img)
}

// ImShowGrid draws a value grid in the current axes, mapping vmin..vmax
// onto the colormap.
func (f *Figure) ImShowGrid(grid [][]float64, vmin, vmax float64) error {
	return f.gca().ImShowGrid(grid, vmin, vmax)
}

// ImShowAuto draws a value grid scaled to its own range.
func (f *Figure) ImShowAuto(grid [][]float64) error {
	return f.gca().ImShowAuto(grid)
}

// WriteTo renders the figure as PNG to w.
func (f *Figure) WriteTo(w io.Writer) (int64, error) {
	c := vgimg.NewWith(vgimg.UseWH(f.width, f.height), vgimg.UseDPI(f.dpi))
	dc := draw.New(c)

	if f.rows > 0 {
		tiles := draw.Tiles{
			Rows:      f.rows,
			Cols:      f.cols,
			PadX:      vg.Millimeter,
			PadY:      vg.Millimeter,
			PadTop:    vg.Points(4),
			PadBottom: vg.Points(4),
			PadLeft:   vg.Points(4),
			PadRight:  vg.Points(4),
		}
		for idx, ax := range f.axes {
			col := (idx - 1) % f.cols
			row := (idx - 1) / f.cols
			ax.plot.Draw(tiles.At(dc, col, row))
		}
	}

	return vgimg.PngCanvas{Canvas: c}.WriteTo(w)
}

// PNG renders the figure and returns the encoded bytes.
func (f *Figure) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render figure: %w", err)
	}
	return buf.Bytes(), nil
}

// Save renders the figure to a PNG file at path.
func (f *Figure) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func newAxes() *Axes {
	p := plot.New()
	p.HideAxes()
	return &Axes{plot: p}
}

// ImShow draws img with one unit per pixel and row 0 at the top.
func (a *Axes) ImShow(img image.Image) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	a.plot.Add(plotter.NewImage(img, 0, 0, w, h))
	a.fit(w, h)
}

// ImShowGrid draws grid (rows of values, row 0 at the top) colored
// between vmin and vmax. Values outside the range are clipped.
func (a *Axes) ImShowGrid(grid [][]float64, vmin, vmax float64) error {
	if vmax <= vmin {
		return fmt.Errorf("plotting: vmax %g must exceed vmin %g", vmax, vmin)
	}
	g, err := newValueGrid(grid, vmin, vmax)
	if err != nil {
		return err
	}

	hm := plotter.NewHeatMap(g, palette.Heat(paletteSize, 1))
	hm.Min, hm.Max = vmin, vmax
	a.plot.Add(hm)

	cols, rows := g.Dims()
	a.fit(float64(cols), float64(rows))
	return nil
}

// ImShowAuto is ImShowGrid with the range taken from the data.
func (a *Axes) ImShowAuto(grid [][]float64) error {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range grid {
		for _, v := range row {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return ErrEmptyGrid
	}
	if hi <= lo {
		hi = lo + 1
	}
	return a.ImShowGrid(grid, lo, hi)
}

// fit sets the axis ranges to the panel extent.
func (a *Axes) fit(w, h float64) {
	a.plot.X.Min, a.plot.X.Max = 0, w
	a.plot.Y.Min, a.plot.Y.Max = 0, h
}

// valueGrid adapts a row-major slice grid to plotter.GridXYZ. Cell
// centers sit at half-integer coordinates so the heat map fills the same
// extent as an image of the same size.
type valueGrid struct {
	rows, cols int
	z          [][]float64
}

func newValueGrid(grid [][]float64, vmin, vmax float64) (*valueGrid, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	cols := len(grid[0])
	z := make([][]float64, len(grid))
	for r, row := range grid {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrEmptyGrid, r, len(row), cols)
		}
		clipped := make([]float64, cols)
		for c, v := range row {
			clipped[c] = math.Max(vmin, math.Min(vmax, v))
		}
		z[r] = clipped
	}
	return &valueGrid{rows: len(grid), cols: cols, z: z}, nil
}

func (g *valueGrid) Dims() (c, r int) { return g.cols, g.rows }

// Z flips rows so grid row 0 is drawn at the top.
func (g *valueGrid) Z(c, r int) float64 { return g.z[g.rows-1-r][c] }

func (g *valueGrid) X(c int) float64 { return float64(c) + 0.5 }

func (g *valueGrid) Y(r int) float64 { return float64(r) + 0.5 }
