package splinegcn

import (
	"math"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Basis holds, for every edge, the `m^dim` control points it touches (Index) and their interpolation
// weights (Amount). Both are stored flat, shaped `[numEdges, size]`.
//
// A Basis is computed once by Kernel.Resolve and shared, unchanged, by the forward and backward passes.
type Basis struct {
	kernel   *Kernel
	numEdges int
	size     int
	amount   []float64
	index    []int
}

// NumEdges is the number of edges resolved.
func (b *Basis) NumEdges() int { return b.numEdges }

// Size is the number of (control point, weight) pairs per edge: `m^dim`.
func (b *Basis) Size() int { return b.size }

// Kernel used to resolve the basis.
func (b *Basis) Kernel() *Kernel { return b.kernel }

// Amounts returns the interpolation weights of the given edge. Values must not be changed.
func (b *Basis) Amounts(edge int) []float64 {
	return b.amount[edge*b.size : (edge+1)*b.size]
}

// Indices returns the flat control point indices of the given edge. Values must not be changed.
func (b *Basis) Indices(edge int) []int {
	return b.index[edge*b.size : (edge+1)*b.size]
}

// Resolve maps each edge pseudo-coordinate (shaped `[numEdges][dim]`) to the `m^dim` nearest control points and
// their interpolation weights.
//
// Per dimension the `m` control points and 1D weights are found according to the dimension's boundary type, and
// they are combined with a Cartesian product: the weight is the product of the per-dimension weights, the index
// is the row-major flat index of the multi-index.
//
// It returns an error if a coordinate doesn't have `dim` values or if it is not finite.
func (k *Kernel) Resolve(coordinates [][]float64) (*Basis, error) {
	return k.resolve(coordinates, 1)
}

// resolve implements Resolve using up to maxWorkers goroutines.
func (k *Kernel) resolve(coordinates [][]float64, maxWorkers int) (*Basis, error) {
	dim := k.Dim()
	for e, coord := range coordinates {
		if len(coord) != dim {
			return nil, errors.Errorf("edge %d pseudo-coordinate has %d values, but kernel %s has dim=%d",
				e, len(coord), k, dim)
		}
	}
	numEdges := len(coordinates)
	size := k.BasisSize()
	b := &Basis{
		kernel:   k,
		numEdges: numEdges,
		size:     size,
		amount:   make([]float64, numEdges*size),
		index:    make([]int, numEdges*size),
	}
	chunks := numChunks(numEdges, maxWorkers)
	klog.V(2).Infof("resolving basis of %d edges with %s (basis size %d, %d chunks)", numEdges, k, size, chunks)
	err := runChunks(numEdges, chunks, func(_, start, end int) error {
		m := k.degree + 1
		dimIndices, dimWeights := make([]int, dim*m), make([]float64, dim*m)
		for e := start; e < end; e++ {
			coord := coordinates[e]
			for d, v := range coord {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return errors.Errorf("edge %d has a non-finite pseudo-coordinate %v", e, coord)
				}
				k.DimBasis(d, v, dimIndices[d*m:(d+1)*m], dimWeights[d*m:(d+1)*m])
			}
			k.combine(dimIndices, dimWeights, b.Indices(e), b.Amounts(e))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DimBasis fills indices and weights (both of length `degree+1`) with the control points along dimension d
// (indices in `[0, kernelSize[d])`) and the 1D weights for the coordinate value v.
func (k *Kernel) DimBasis(d int, v float64, indices []int, weights []float64) {
	if d == 0 {
		v /= k.maxRadius
	}
	switch k.boundaries[d] {
	case BoundaryOpen:
		k.splines[d].NonZeroBasis(v, indices, weights)
	case BoundaryPeriodic:
		periodicBasis(k.degree, k.kernelSize[d], v, indices, weights)
	}
}

// combine takes the Cartesian product of the per-dimension choices, stored as `[dim][m]`, into the flat
// indices and weights of one edge. The slot number enumerates the choices in row-major order, with dimension 0
// the most significant.
func (k *Kernel) combine(dimIndices []int, dimWeights []float64, indices []int, weights []float64) {
	m := k.degree + 1
	dim := k.Dim()
	for slot := range indices {
		weight := 1.0
		var flat int
		rest := slot
		for d := dim - 1; d >= 0; d-- {
			choice := rest % m
			rest /= m
			weight *= dimWeights[d*m+choice]
			flat += dimIndices[d*m+choice] * k.strides[d]
		}
		indices[slot] = flat
		weights[slot] = weight
	}
}

// periodicBasis fills the basis of a uniform periodic B-spline with numControlPoints control points over
// [0, 1): v is wrapped to [0, 1) and indices wrap around numControlPoints.
func periodicBasis(degree, numControlPoints int, v float64, indices []int, weights []float64) {
	u := (v - math.Floor(v)) * float64(numControlPoints)
	bottom := int(math.Floor(u))
	frac := u - float64(bottom)
	bottom %= numControlPoints
	for ii := range indices {
		indices[ii] = (bottom + ii) % numControlPoints
		weights[ii] = cardinalBasis(degree, frac+float64(degree-ii))
	}
}

// cardinalBasis is the uniform B-spline basis function of the given degree, with support [0, degree+1).
func cardinalBasis(degree int, x float64) float64 {
	if degree == 0 {
		if x >= 0 && x < 1 {
			return 1
		}
		return 0
	}
	p := float64(degree)
	return (x*cardinalBasis(degree-1, x) + (p+1-x)*cardinalBasis(degree-1, x-1)) / p
}
