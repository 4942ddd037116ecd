// Package splinegcn provides a CPU implementation of the spline-based graph convolution (SplineCNN style), and its
// gradients with respect to the input features and the weight tensor.
//
// Each edge of a graph carries a pseudo-coordinate (e.g. polar or spherical offset between its vertices). A Kernel
// maps the pseudo-coordinate through a B-spline basis over a grid of control points: each edge touches `m^dim`
// control points (`m = degree+1`), each with an interpolation weight. Every control point owns a `[M_in, M_out]`
// slice of the weight tensor, and the per-edge transformed features are aggregated (summed) at the destination
// vertex. A root node term, a linear transform of each vertex's own features, and an optional bias are added.
//
// Use GraphConv for forward and backward passes over a fixed graph, or Convolve for a single forward pass.
// EdgewiseConv is the per-edge kernel, and Kernel.Resolve the basis resolution, if one needs them directly.
//
// For plotting the basis functions of a kernel dimension, checkout the sub-package
// [github.com/gomlx/splinegcn/plotly].
package splinegcn

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// GraphConv is the spline graph convolution over a fixed graph (Adjacency) and Kernel.
//
// The edges basis are resolved once at creation. Forward and Backward can be called any number of times (e.g.
// once per training step), each Backward with the context returned by its matching Forward.
type GraphConv struct {
	kernel   *Kernel
	adj      *Adjacency
	edgewise *EdgewiseConv
}

// GraphConvContext is what GraphConv.Forward saves for GraphConv.Backward. It must not be changed.
type GraphConvContext struct {
	conv        *GraphConv
	edge        *EdgewiseContext
	features    [][]float64
	weight      [][][]float64
	rootIndices []int
	hasBias     bool
}

// Gradients of the loss with respect to the inputs of GraphConv.Forward.
type Gradients struct {
	// Features is shaped `[n][M_in]`.
	Features [][]float64

	// Weight is shaped `[K][M_in][M_out]`.
	Weight [][][]float64

	// Bias is shaped `[M_out]`, nil if Forward was called without bias.
	Bias []float64
}

// NewGraphConv validates the adjacency and resolves the basis of its edges with the kernel.
func NewGraphConv(kernel *Kernel, adj *Adjacency) (*GraphConv, error) {
	if err := adj.Validate(); err != nil {
		return nil, errors.WithMessage(err, "NewGraphConv")
	}
	edgewise, err := newEdgewiseConv(kernel, adj.Values, defaultWorkers())
	if err != nil {
		return nil, errors.WithMessage(err, "NewGraphConv")
	}
	klog.V(1).Infof("NewGraphConv: n=%d, |E|=%d, %s", adj.NumVertices, adj.NumEdges(), kernel)
	return &GraphConv{kernel: kernel, adj: adj, edgewise: edgewise}, nil
}

// WithWorkers sets the maximum number of goroutines used. Values < 1 are taken as 1.
func (c *GraphConv) WithWorkers(workers int) *GraphConv {
	c.edgewise.WithWorkers(workers)
	return c
}

// Kernel used by the convolution.
func (c *GraphConv) Kernel() *Kernel { return c.kernel }

// Adjacency used by the convolution.
func (c *GraphConv) Adjacency() *Adjacency { return c.adj }

// Basis of the edges.
func (c *GraphConv) Basis() *Basis { return c.edgewise.basis }

// Forward computes the output features `[n][M_out]`, given the vertex features `[n][M_in]`, the weight tensor
// `[K][M_in][M_out]` and an optional bias `[M_out]` (nil for no bias):
//
//  1. Features are gathered per edge from the edge's source vertex (column).
//  2. The edge-wise spline convolution transforms them to `[|E|][M_out]`.
//  3. They are scatter-added at the edge's destination vertex (row).
//  4. The root term `features @ mean(weight[rootIndices])` is added.
//  5. The bias is added to every vertex.
//
// All shapes are validated before any computation.
// The returned context holds references to features and weight: they must not change until Backward is called.
func (c *GraphConv) Forward(features [][]float64, weight [][][]float64, bias []float64) ([][]float64, *GraphConvContext, error) {
	numIn, numOut, err := checkInputs(c.kernel, c.adj, features, weight, bias)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "GraphConv.Forward")
	}
	n := c.adj.NumVertices

	edgeOut, edgeCtx, err := c.edgewise.Forward(Gather(features, c.adj.Cols), weight)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "GraphConv.Forward")
	}
	out := newMatrix(n, numOut)
	ScatterAdd(out, c.adj.Rows, edgeOut)

	rootIndices := c.kernel.RootIndices()
	if n > 0 && len(rootIndices) > 0 {
		var root mat.Dense
		root.Mul(toDense(features, numIn), rootWeight(weight, rootIndices, numIn, numOut))
		addDense(out, &root)
	}
	if bias != nil {
		for _, row := range out {
			floats.Add(row, bias)
		}
	}
	ctx := &GraphConvContext{
		conv:        c,
		edge:        edgeCtx,
		features:    features,
		weight:      weight,
		rootIndices: rootIndices,
		hasBias:     bias != nil,
	}
	return out, ctx, nil
}

// Backward computes the gradients of Forward's inputs, given the gradient of the output `[n][M_out]` and the
// context returned by the matching Forward call.
func (c *GraphConv) Backward(gradOut [][]float64, ctx *GraphConvContext) (*Gradients, error) {
	if ctx == nil {
		return nil, errors.New("GraphConv.Backward called without the context of a Forward call")
	}
	if ctx.conv != c {
		return nil, errors.New("GraphConv.Backward called with the context of a Forward call of a different GraphConv")
	}
	n := c.adj.NumVertices
	numIn, numOut := ctx.edge.numIn, ctx.edge.numOut
	if err := checkRows("gradOut", gradOut, n, numOut); err != nil {
		return nil, errors.WithMessage(err, "GraphConv.Backward")
	}

	gradEdgeFeatures, gradWeight, err := c.edgewise.Backward(Gather(gradOut, c.adj.Rows), ctx.edge)
	if err != nil {
		return nil, errors.WithMessage(err, "GraphConv.Backward")
	}
	grads := &Gradients{
		Features: newMatrix(n, numIn),
		Weight:   gradWeight,
	}
	ScatterAdd(grads.Features, c.adj.Cols, gradEdgeFeatures)

	rootIndices := ctx.rootIndices
	if n > 0 && len(rootIndices) > 0 {
		gradOutDense := toDense(gradOut, numOut)
		var gradRootFeatures mat.Dense
		gradRootFeatures.Mul(gradOutDense, rootWeight(ctx.weight, rootIndices, numIn, numOut).T())
		addDense(grads.Features, &gradRootFeatures)

		// Each root control point gets an equal share of the gradient of the mean.
		var gradRoot mat.Dense
		gradRoot.Mul(toDense(ctx.features, numIn).T(), gradOutDense)
		gradRoot.Scale(1/float64(len(rootIndices)), &gradRoot)
		for _, r := range rootIndices {
			addDense(gradWeight[r], &gradRoot)
		}
	}
	if ctx.hasBias {
		grads.Bias = make([]float64, numOut)
		for _, row := range gradOut {
			floats.Add(grads.Bias, row)
		}
	}
	return grads, nil
}

// checkInputs validates the shapes of the inputs of a convolution and returns M_in and M_out.
func checkInputs(kernel *Kernel, adj *Adjacency, features [][]float64, weight [][][]float64, bias []float64) (numIn, numOut int, err error) {
	numIn, numOut, err = checkWeight(kernel, weight)
	if err != nil {
		return
	}
	if err = checkRows("features", features, adj.NumVertices, numIn); err != nil {
		err = errors.WithMessagef(err, "features must be shaped [n=%d][M_in=%d]", adj.NumVertices, numIn)
		return
	}
	if bias != nil && len(bias) != numOut {
		err = errors.Errorf("bias has %d values, but weight has M_out=%d", len(bias), numOut)
	}
	return
}

// rootWeight returns the mean of the weight rows of the root control points, shaped `[M_in, M_out]`.
func rootWeight(weight [][][]float64, rootIndices []int, numIn, numOut int) *mat.Dense {
	root := mat.NewDense(numIn, numOut, nil)
	for _, r := range rootIndices {
		root.Add(root, toDense(weight[r], numOut))
	}
	root.Scale(1/float64(len(rootIndices)), root)
	return root
}

// Convolve computes one forward pass of the spline graph convolution, see GraphConv.Forward.
// bias can be nil.
func Convolve(kernel *Kernel, adj *Adjacency, features [][]float64, weight [][][]float64, bias []float64) ([][]float64, error) {
	if err := adj.Validate(); err != nil {
		return nil, errors.WithMessage(err, "Convolve")
	}
	if _, _, err := checkInputs(kernel, adj, features, weight, bias); err != nil {
		return nil, errors.WithMessage(err, "Convolve")
	}
	conv, err := NewGraphConv(kernel, adj)
	if err != nil {
		return nil, err
	}
	out, _, err := conv.Forward(features, weight, bias)
	return out, err
}
