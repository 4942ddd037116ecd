package plotly

import (
	"fmt"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/gomlx/splinegcn"
	"github.com/janpfeifer/gonb/gonbui"
	gonbplotly "github.com/janpfeifer/gonb/gonbui/plotly"
)

// BSplineConfig holds the plot configuration of a single 1D B-spline: the curve, its control points, its first
// derivative (if degree > 0) and its basis functions.
type BSplineConfig struct {
	bspline       *splinegcn.BSpline
	numPlotPoints int
	marginRatio   float64
}

// NewBSpline returns a BSplineConfig object that can be changed. The control points of b must be set.
// Once finished, call BSplineConfig.Plot to draw the plot in the Jupyter notebook.
func NewBSpline(b *splinegcn.BSpline) *BSplineConfig {
	return &BSplineConfig{
		bspline:       b,
		numPlotPoints: 1000,
		marginRatio:   0.1,
	}
}

// WithNumPlotPoints set the number of plot points to evaluate. Default is 1000.
func (c *BSplineConfig) WithNumPlotPoints(numPlotPoints int) *BSplineConfig {
	c.numPlotPoints = max(numPlotPoints, 2)
	return c
}

// WithMargin defines how much space (relative to the knots range) to plot beyond the ends.
func (c *BSplineConfig) WithMargin(marginRatio float64) *BSplineConfig {
	c.marginRatio = max(marginRatio, 0)
	return c
}

// Figure builds the plotly figure with the current configuration.
func (c *BSplineConfig) Figure() *grob.Fig {
	b := c.bspline
	knots := b.Knots()
	first, last := knots[0], knots[len(knots)-1]
	delta := last - first
	first, last = first-c.marginRatio*delta, last+c.marginRatio*delta

	var derivative *splinegcn.BSpline
	if b.Degree() > 0 {
		derivative = b.Derivative()
	}
	x, curveY, derivativeY := make([]float64, c.numPlotPoints), make([]float64, c.numPlotPoints), make([]float64, c.numPlotPoints)
	basisPlots := make([][]float64, b.NumControlPoints())
	for controlIdx := range basisPlots {
		basisPlots[controlIdx] = make([]float64, c.numPlotPoints)
	}
	for ii := range c.numPlotPoints {
		x[ii] = first + (last-first)*float64(ii)/float64(c.numPlotPoints-1)
		curveY[ii] = b.Evaluate(x[ii])
		if derivative != nil {
			derivativeY[ii] = derivative.Evaluate(x[ii])
		}
		for controlIdx, basisPlot := range basisPlots {
			basisPlot[ii] = b.BasisFunction(controlIdx, b.Degree(), x[ii])
		}
	}

	controls := b.ControlPoints()
	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{
				Text: ptypes.S(fmt.Sprintf("B-spline (degree=%d, %d control points)", b.Degree(), b.NumControlPoints())),
			},
			Legend: &grob.LayoutLegend{},
		},
	}
	fig.Data = append(fig.Data, &grob.Scatter{
		Name: ptypes.S("Control points"),
		Mode: "markers",
		X:    ptypes.DataArray(b.ControlPointsX()),
		Y:    ptypes.DataArray(controls),
	})
	fig.Data = append(fig.Data, lineTrace("B-spline", x, curveY, 2.0))
	if derivative != nil {
		fig.Data = append(fig.Data, lineTrace("1st derivative", x, derivativeY, 1.0))
	}
	for controlIdx, basisPlot := range basisPlots {
		fig.Data = append(fig.Data, lineTrace(
			fmt.Sprintf("Basis(idx=%d, control[idx]=%g)", controlIdx, controls[controlIdx]), x, basisPlot, 0.5))
	}
	return fig
}

// Plot using the current configuration. If not in a notebook, this is a no-op.
func (c *BSplineConfig) Plot() error {
	if !gonbui.IsNotebook {
		return nil
	}
	err := gonbplotly.DisplayFig(c.Figure())
	if err != nil {
		err = fmt.Errorf("plotly.DisplayFig failed: %v", err)
	}
	return err
}
