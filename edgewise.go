package splinegcn

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

// EdgewiseConv is the edge-wise spline convolution over a fixed set of edges: each edge's input features are
// transformed by the weight tensor rows of the control points its pseudo-coordinate touches:
//
//	out[e] = \sum_k \sum_i amount[e,k] * features[e,i] * weight[index[e,k], i, :]
//
// It's created per set of edges, the basis is resolved once in NewEdgewiseConv and reused by Forward and
// Backward. It holds no other state: Forward returns an EdgewiseContext that must be passed to Backward.
type EdgewiseConv struct {
	kernel  *Kernel
	basis   *Basis
	workers int
}

// EdgewiseContext is what Forward saves for Backward. It must not be changed.
type EdgewiseContext struct {
	op       *EdgewiseConv
	features [][]float64
	weight   [][][]float64
	numIn    int
	numOut   int
}

// NewEdgewiseConv resolves the basis of the given edge pseudo-coordinates (shaped `[numEdges][dim]`) with kernel.
func NewEdgewiseConv(kernel *Kernel, coordinates [][]float64) (*EdgewiseConv, error) {
	return newEdgewiseConv(kernel, coordinates, defaultWorkers())
}

func newEdgewiseConv(kernel *Kernel, coordinates [][]float64, workers int) (*EdgewiseConv, error) {
	basis, err := kernel.resolve(coordinates, workers)
	if err != nil {
		return nil, errors.WithMessage(err, "NewEdgewiseConv")
	}
	return &EdgewiseConv{kernel: kernel, basis: basis, workers: workers}, nil
}

// NewEdgewiseConvFromBasis creates the operation from an already resolved basis.
func NewEdgewiseConvFromBasis(basis *Basis) *EdgewiseConv {
	return &EdgewiseConv{kernel: basis.kernel, basis: basis, workers: defaultWorkers()}
}

// WithWorkers sets the maximum number of goroutines used by Forward and Backward. Values < 1 are taken as 1.
func (op *EdgewiseConv) WithWorkers(workers int) *EdgewiseConv {
	op.workers = max(workers, 1)
	return op
}

// Basis returns the resolved basis.
func (op *EdgewiseConv) Basis() *Basis { return op.basis }

// NumEdges the operation was created for.
func (op *EdgewiseConv) NumEdges() int { return op.basis.numEdges }

// checkWeight validates the weight tensor shape `[K, numIn, numOut]` against the kernel and returns numIn and numOut.
func checkWeight(kernel *Kernel, weight [][][]float64) (numIn, numOut int, err error) {
	numControlPoints := kernel.NumControlPoints()
	if len(weight) != numControlPoints {
		return 0, 0, errors.Errorf("weight has K=%d control points, but kernel %s requires K=product(kernelSize)=%d",
			len(weight), kernel, numControlPoints)
	}
	numIn = len(weight[0])
	if numIn == 0 || len(weight[0][0]) == 0 {
		return 0, 0, errors.Errorf("weight must have M_in > 0 and M_out > 0, got weight[0] shaped [%d][...]", numIn)
	}
	numOut = len(weight[0][0])
	for k, rows := range weight {
		if len(rows) != numIn {
			return 0, 0, errors.Errorf("weight[%d] has M_in=%d, but weight[0] has M_in=%d", k, len(rows), numIn)
		}
		for i, row := range rows {
			if len(row) != numOut {
				return 0, 0, errors.Errorf("weight[%d][%d] has M_out=%d, but weight[0][0] has M_out=%d", k, i, len(row), numOut)
			}
		}
	}
	return
}

// checkRows validates a `[numRows][numCols]` matrix.
func checkRows(name string, m [][]float64, numRows, numCols int) error {
	if len(m) != numRows {
		return errors.Errorf("%s has %d rows, expected %d", name, len(m), numRows)
	}
	for ii, row := range m {
		if len(row) != numCols {
			return errors.Errorf("%s[%d] has %d columns, expected %d", name, ii, len(row), numCols)
		}
	}
	return nil
}

// Forward computes the per-edge output features `[numEdges][M_out]` from the per-edge input features
// `[numEdges][M_in]` and the weight tensor `[K][M_in][M_out]`.
//
// Shapes are validated before any computation. The returned context holds references to features and weight:
// they must not change until Backward is called.
func (op *EdgewiseConv) Forward(features [][]float64, weight [][][]float64) ([][]float64, *EdgewiseContext, error) {
	numIn, numOut, err := checkWeight(op.kernel, weight)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "EdgewiseConv.Forward")
	}
	if err = checkRows("features", features, op.NumEdges(), numIn); err != nil {
		return nil, nil, errors.WithMessage(err, "EdgewiseConv.Forward")
	}
	numEdges := op.NumEdges()
	out := newMatrix(numEdges, numOut)
	chunks := numChunks(numEdges, op.workers)
	klog.V(2).Infof("EdgewiseConv.Forward: |E|=%d, M_in=%d, M_out=%d, basis size %d, %d chunks",
		numEdges, numIn, numOut, op.basis.size, chunks)
	_ = runChunks(numEdges, chunks, func(_, start, end int) error {
		for e := start; e < end; e++ {
			amounts, indices := op.basis.Amounts(e), op.basis.Indices(e)
			for k, amount := range amounts {
				if amount == 0 {
					continue
				}
				rows := weight[indices[k]]
				for i, f := range features[e] {
					scatterAddScaled(out[e], amount*f, rows[i])
				}
			}
		}
		return nil
	})
	ctx := &EdgewiseContext{
		op:       op,
		features: features,
		weight:   weight,
		numIn:    numIn,
		numOut:   numOut,
	}
	return out, ctx, nil
}

// Backward computes the gradients of the per-edge input features `[numEdges][M_in]` and of the weight tensor
// `[K][M_in][M_out]`, given the gradient of the per-edge outputs `[numEdges][M_out]` and the context returned by
// the matching Forward call.
//
// The weight gradient is accumulated with a scatter-add, since many edges touch the same control point.
// It fails if ctx is nil or was created by a different operation.
func (op *EdgewiseConv) Backward(gradOut [][]float64, ctx *EdgewiseContext) (gradFeatures [][]float64, gradWeight [][][]float64, err error) {
	if ctx == nil {
		return nil, nil, errors.New("EdgewiseConv.Backward called without the context of a Forward call")
	}
	if ctx.op != op {
		return nil, nil, errors.New("EdgewiseConv.Backward called with the context of a Forward call of a different operation")
	}
	numEdges := op.NumEdges()
	if err = checkRows("gradOut", gradOut, numEdges, ctx.numOut); err != nil {
		return nil, nil, errors.WithMessage(err, "EdgewiseConv.Backward")
	}
	numControlPoints := op.kernel.NumControlPoints()
	gradFeatures = newMatrix(numEdges, ctx.numIn)
	gradWeight = newTensor3(numControlPoints, ctx.numIn, ctx.numOut)

	// Each chunk accumulates the weight gradient on its own buffer: chunk 0 uses gradWeight directly.
	chunks := numChunks(numEdges, op.workers)
	partials := make([][][][]float64, chunks)
	partials[0] = gradWeight
	for c := 1; c < chunks; c++ {
		partials[c] = newTensor3(numControlPoints, ctx.numIn, ctx.numOut)
	}
	klog.V(2).Infof("EdgewiseConv.Backward: |E|=%d, M_in=%d, M_out=%d, %d chunks", numEdges, ctx.numIn, ctx.numOut, chunks)
	_ = runChunks(numEdges, chunks, func(chunk, start, end int) error {
		partial := partials[chunk]
		for e := start; e < end; e++ {
			amounts, indices := op.basis.Amounts(e), op.basis.Indices(e)
			features := ctx.features[e]
			for k, amount := range amounts {
				if amount == 0 {
					continue
				}
				c := indices[k]
				rows := ctx.weight[c]
				for i, f := range features {
					gradFeatures[e][i] += amount * floats.Dot(gradOut[e], rows[i])
					scatterAddScaled(partial[c][i], amount*f, gradOut[e])
				}
			}
		}
		return nil
	})
	for c := 1; c < chunks; c++ {
		addTensor3(gradWeight, partials[c])
	}
	return gradFeatures, gradWeight, nil
}
