// Package plotly implements plotting in Jupyter Notebooks using [github.com/janpfeifer/gonb] (Notebook Kernel) and
// the Plotly [github.com/MetalBlueberry/go-plotly] library.
//
// Use New to create a new Config object for one dimension of a splinegcn.Kernel, and after configuring it, use
// Config.Plot to draw the plot. NewBSpline does the same for a single splinegcn.BSpline.
//
// Features:
//   - Basis function of each control point along the dimension, visible by default.
//   - Sum of the basis functions (partition of unity), visible by default.
//   - Curve interpolated from per control point values, if given with Config.WithValues.
package plotly

import (
	"fmt"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/splinegcn"
	xslices "github.com/gomlx/gomlx/types/slices"
	"github.com/janpfeifer/gonb/gonbui"
	gonbplotly "github.com/janpfeifer/gonb/gonbui/plotly"
)

// Config holds a plot configuration that can be changed.
// Once finished, call the method Plot to actually plot.
type Config struct {
	kernel        *splinegcn.Kernel
	dim           int
	values        []float64
	numPlotPoints int
	marginRatio   float64
}

// New returns a Config object to plot dimension 0 of the kernel.
// Once finished, call Config.Plot to draw the plot in the Jupyter notebook.
func New(kernel *splinegcn.Kernel) *Config {
	return &Config{
		kernel:        kernel,
		numPlotPoints: 1000,
		marginRatio:   0.1,
	}
}

// WithDim selects the kernel dimension to plot. Default is 0, the radial dimension.
func (c *Config) WithDim(dim int) *Config {
	if dim < 0 || dim >= c.kernel.Dim() {
		exceptions.Panicf("plotly.Config.WithDim(%d): kernel has only %d dimensions", dim, c.kernel.Dim())
	}
	c.dim = dim
	c.values = nil
	return c
}

// WithValues sets one value per control point of the selected dimension (e.g. one channel of the weights), and
// the interpolated curve is plotted.
func (c *Config) WithValues(values []float64) *Config {
	if len(values) != c.kernel.KernelSize()[c.dim] {
		exceptions.Panicf("plotly.Config.WithValues(): dimension %d has %d control points, got %d values",
			c.dim, c.kernel.KernelSize()[c.dim], len(values))
	}
	c.values = values
	return c
}

// WithNumPlotPoints set the number of plot points to evaluate. Default is 1000.
func (c *Config) WithNumPlotPoints(numPlotPoints int) *Config {
	if numPlotPoints < 2 {
		numPlotPoints = 2
	}
	c.numPlotPoints = numPlotPoints
	return c
}

// WithMargin defines how much space (relative to the range of the dimension) to plot beyond its ends.
// It defaults to 0.1, and it's handy to see how coordinates beyond the ends are clamped or wrapped.
func (c *Config) WithMargin(marginRatio float64) *Config {
	if marginRatio < 0 {
		marginRatio = 0
	}
	c.marginRatio = marginRatio
	return c
}

// Figure builds the plotly figure with the current configuration.
func (c *Config) Figure() *grob.Fig {
	first, last := 0.0, 1.0
	if c.dim == 0 {
		last = c.kernel.MaxRadius()
	}
	delta := last - first
	first, last = first-c.marginRatio*delta, last+c.marginRatio*delta

	numControlPoints := c.kernel.KernelSize()[c.dim]
	m := c.kernel.Degree() + 1
	indices, weights := make([]int, m), make([]float64, m)
	x := make([]float64, c.numPlotPoints)
	sumY, valuesY := make([]float64, c.numPlotPoints), make([]float64, c.numPlotPoints)
	basisPlots := make([][]float64, numControlPoints)
	for controlIdx := range basisPlots {
		basisPlots[controlIdx] = make([]float64, c.numPlotPoints)
	}
	for ii := range c.numPlotPoints {
		x[ii] = first + (last-first)*float64(ii)/float64(c.numPlotPoints-1)
		c.kernel.DimBasis(c.dim, x[ii], indices, weights)
		for jj, controlIdx := range indices {
			basisPlots[controlIdx][ii] += weights[jj]
			sumY[ii] += weights[jj]
			if c.values != nil {
				valuesY[ii] += weights[jj] * c.values[controlIdx]
			}
		}
	}

	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{
				Text: ptypes.S(fmt.Sprintf("%s: dimension %d (%s)", c.kernel, c.dim, c.kernel.Boundary(c.dim))),
			},
			Xaxis: &grob.LayoutXaxis{
				Showgrid: ptypes.B(true),
				Type:     grob.LayoutXaxisTypeLinear,
			},
			Legend: &grob.LayoutLegend{},
		},
	}
	for controlIdx, basisPlot := range basisPlots {
		fig.Data = append(fig.Data, lineTrace(fmt.Sprintf("Basis(idx=%d)", controlIdx), x, basisPlot, 1.0))
	}
	fig.Data = append(fig.Data, lineTrace("Sum of basis", x, sumY, 2.0))
	if c.values != nil {
		fig.Data = append(fig.Data, lineTrace(
			fmt.Sprintf("Interpolated values (last=%g)", xslices.Last(c.values)), x, valuesY, 3.0))
	}
	return fig
}

func lineTrace(name string, x, y []float64, width float64) *grob.Scatter {
	return &grob.Scatter{
		Name: ptypes.S(name),
		Line: &grob.ScatterLine{
			Shape: grob.ScatterLineShapeLinear,
			Width: ptypes.N(width),
		},
		Mode: "lines",
		X:    ptypes.DataArray(x),
		Y:    ptypes.DataArray(y),
	}
}

// Plot using the current configuration. If not in a notebook, this is a no-op.
// It returns an error if plotting failed for some reason.
func (c *Config) Plot() error {
	if !gonbui.IsNotebook {
		return nil
	}
	err := gonbplotly.DisplayFig(c.Figure())
	if err != nil {
		err = fmt.Errorf("plotly.DisplayFig failed: %v", err)
	}
	return err
}
