package ndvi

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Fixed display bounds for NDVI images
const (
	DisplayMin = -0.5
	DisplayMax = 1.0
)

const (
	defaultPaletteName   = "RdYlGn"
	defaultPaletteColors = 11
)

// ColorScale maps values onto a diverging palette between Min and Max.
// Values outside the bounds take the end colours; NaN is transparent.
type ColorScale struct {
	Min, Max float64
	colors   []color.Color
	palette  palette.Palette
}

// NewColorScale creates a red-yellow-green ColorScale for the given bounds
func NewColorScale(min, max float64) (*ColorScale, error) {
	if !(min < max) {
		return nil, fmt.Errorf("invalid colour scale bounds [%v, %v]", min, max)
	}
	p, err := brewer.GetPalette(brewer.TypeDiverging, defaultPaletteName, defaultPaletteColors)
	if err != nil {
		return nil, err
	}
	return &ColorScale{Min: min, Max: max, colors: p.Colors(), palette: p}, nil
}

// DefaultColorScale returns the scale NDVI images are rendered with
func DefaultColorScale() (*ColorScale, error) {
	return NewColorScale(DisplayMin, DisplayMax)
}

// Color returns the colour of a single value
func (s *ColorScale) Color(v float64) color.Color {
	switch {
	case math.IsNaN(v):
		return color.Transparent
	case v <= s.Min:
		return s.colors[0]
	case v >= s.Max:
		return s.colors[len(s.colors)-1]
	}
	step := float64(len(s.colors)-1) / (s.Max - s.Min)
	return s.colors[int((v-s.Min)*step+0.5)]
}

// Image renders m one pixel per sampled cell. stride > 1 keeps every
// stride-th row and column.
func (s *ColorScale) Image(m *mat.Dense, stride int) *image.RGBA {
	if stride < 1 {
		stride = 1
	}
	rows, cols := m.Dims()
	outRows, outCols := ceilDiv(rows, stride), ceilDiv(cols, stride)
	img := image.NewRGBA(image.Rect(0, 0, outCols, outRows))
	for r := 0; r < outRows; r++ {
		for c := 0; c < outCols; c++ {
			img.Set(c, r, s.Color(m.At(r*stride, c*stride)))
		}
	}
	return img
}

// ndviGrid adapts a matrix to plotter.GridXYZ with raster row 0 at the top
type ndviGrid struct {
	m      *mat.Dense
	stride int
}

func (g ndviGrid) Dims() (c, r int) {
	rows, cols := g.m.Dims()
	return ceilDiv(cols, g.stride), ceilDiv(rows, g.stride)
}

func (g ndviGrid) Z(c, r int) float64 {
	_, outRows := g.Dims()
	return g.m.At((outRows-1-r)*g.stride, c*g.stride)
}

func (g ndviGrid) X(c int) float64 { return float64(c * g.stride) }

func (g ndviGrid) Y(r int) float64 { return float64(r * g.stride) }

// Plot builds a titled heat map of m
func (s *ColorScale) Plot(m *mat.Dense, title string, stride int) (*plot.Plot, error) {
	if stride < 1 {
		stride = 1
	}
	grid := ndviGrid{m: m, stride: stride}
	if c, r := grid.Dims(); c < 2 || r < 2 {
		return nil, errors.New("heat map needs at least 2x2 sampled cells")
	}

	heat := plotter.NewHeatMap(grid, s.palette)
	heat.Min = s.Min
	heat.Max = s.Max
	heat.Underflow = s.colors[0]
	heat.Overflow = s.colors[len(s.colors)-1]
	heat.NaN = color.Transparent
	heat.Rasterized = true

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Column"
	p.Y.Label.Text = "Row (from bottom)"
	p.Add(heat)
	return p, nil
}

// SavePlot writes a heat map of m to path; the format follows the file extension
func (s *ColorScale) SavePlot(m *mat.Dense, title string, stride int, path string, width, height vg.Length) error {
	p, err := s.Plot(m, title, stride)
	if err != nil {
		return err
	}
	return p.Save(width, height, path)
}

// WritePlot writes a heat map of m to w in the given format (png, svg, pdf...)
func (s *ColorScale) WritePlot(w io.Writer, m *mat.Dense, title string, stride int, format string, width, height vg.Length) error {
	p, err := s.Plot(m, title, stride)
	if err != nil {
		return err
	}
	writerTo, err := p.WriterTo(width, height, format)
	if err != nil {
		return err
	}
	_, err = writerTo.WriteTo(w)
	return err
}

// StrideFor returns the smallest stride that keeps the longer side of a
// rows x cols grid within maxCells
func StrideFor(rows, cols, maxCells int) int {
	longest := max(rows, cols)
	if maxCells <= 0 || longest <= maxCells {
		return 1
	}
	return ceilDiv(longest, maxCells)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
