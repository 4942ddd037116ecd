package splinegcn

import (
	"fmt"
	"math"
	"strings"

	"github.com/gomlx/exceptions"
	xslices "github.com/gomlx/gomlx/types/slices"
)

//go:generate stringer -type=BoundaryType

// BoundaryType defines how a kernel dimension treats coordinates at its ends.
type BoundaryType int

const (
	// BoundaryOpen is a clamped B-spline over [0, 1]: the first and last control points are the ends of the
	// dimension. Values outside follow the Kernel's ExtrapolationType. It's the default for the radial
	// dimension 0.
	BoundaryOpen BoundaryType = iota

	// BoundaryPeriodic wraps values modulo 1 and control point indices modulo the dimension's kernel size.
	// It's the default for angular dimensions (all dimensions but the first).
	BoundaryPeriodic
)

// Kernel is the configuration of a spline convolution kernel: the number of control points per dimension
// (kernel size), the maximum radius used to normalize the first coordinate and the spline degree.
//
// Coordinates of dimension 0 are divided by the max radius, the other dimensions are expected to be normalized
// to [0, 1) already (e.g. angle/2π).
//
// The total number of control points is `K = product(kernelSize)`, flattened in row-major order (dimension 0 is
// the most significant), and each edge touches `m^dim` of them, where `m = degree+1`.
type Kernel struct {
	degree        int
	kernelSize    []int
	strides       []int
	maxRadius     float64
	boundaries    []BoundaryType
	extrapolation ExtrapolationType
	splines       []*BSpline
	rootIndices   []int
}

// NewKernel creates a kernel with the given degree, max radius and kernel size (one value per dimension).
//
// Every dimension must have at least `degree+1` control points. Configuration errors panic (with an error),
// use exceptions.TryCatch to convert them.
func NewKernel(degree int, maxRadius float64, kernelSize ...int) *Kernel {
	if degree < 0 {
		exceptions.Panicf("splinegcn.NewKernel requires degree >= 0, got %d", degree)
	}
	if len(kernelSize) == 0 {
		exceptions.Panicf("splinegcn.NewKernel requires at least one kernel dimension")
	}
	if !(maxRadius > 0) || math.IsInf(maxRadius, 0) {
		exceptions.Panicf("splinegcn.NewKernel requires a finite maxRadius > 0, got %g", maxRadius)
	}
	for d, size := range kernelSize {
		if size < degree+1 {
			exceptions.Panicf("splinegcn.NewKernel kernelSize[%d]=%d must be >= degree+1=%d", d, size, degree+1)
		}
	}
	dim := len(kernelSize)
	k := &Kernel{
		degree:        degree,
		kernelSize:    xslices.Map(kernelSize, func(size int) int { return size }),
		strides:       make([]int, dim),
		maxRadius:     maxRadius,
		boundaries:    xslices.SliceWithValue(dim, BoundaryPeriodic),
		extrapolation: ExtrapolateConstant,
		splines:       make([]*BSpline, dim),
	}
	k.boundaries[0] = BoundaryOpen
	stride := 1
	for d := dim - 1; d >= 0; d-- {
		k.strides[d] = stride
		stride *= kernelSize[d]
	}
	for d, size := range kernelSize {
		k.splines[d] = NewRegularBSpline(degree, size).WithExtrapolation(k.extrapolation)
	}
	k.rootIndices = k.originIndices()
	return k
}

// originIndices returns the control points with radial index 0: the first `product(kernelSize[1:])`.
func (k *Kernel) originIndices() []int {
	n := 1
	for _, size := range k.kernelSize[1:] {
		n *= size
	}
	indices := make([]int, n)
	for ii := range indices {
		indices[ii] = ii
	}
	return indices
}

// WithBoundary sets the boundary type of dimension d. It returns itself so calls can be cascaded.
func (k *Kernel) WithBoundary(d int, boundary BoundaryType) *Kernel {
	if d < 0 || d >= k.Dim() {
		exceptions.Panicf("Kernel.WithBoundary(%d): dimension out of range, kernel has %d dimensions", d, k.Dim())
	}
	if boundary != BoundaryOpen && boundary != BoundaryPeriodic {
		exceptions.Panicf("Kernel.WithBoundary(%d): invalid boundary type %s", d, boundary)
	}
	k.boundaries[d] = boundary
	return k
}

// WithExtrapolation sets how open dimensions handle coordinates outside [0, 1).
// The default is ExtrapolateConstant, which clamps to the end control points.
func (k *Kernel) WithExtrapolation(e ExtrapolationType) *Kernel {
	k.extrapolation = e
	for _, b := range k.splines {
		b.WithExtrapolation(e)
	}
	return k
}

// WithRootIndices sets the control points whose weights are averaged for the root node (self-loop) term.
//
// The default is the origin: the control points with radial index 0, that is `[0, product(kernelSize[1:]))`.
// Calling it without indices disables the root term.
func (k *Kernel) WithRootIndices(indices ...int) *Kernel {
	numControlPoints := k.NumControlPoints()
	for _, idx := range indices {
		if idx < 0 || idx >= numControlPoints {
			exceptions.Panicf("Kernel.WithRootIndices(): index %d out of range [0, %d)", idx, numControlPoints)
		}
	}
	k.rootIndices = xslices.Map(indices, func(idx int) int { return idx })
	return k
}

// Degree of the spline.
func (k *Kernel) Degree() int { return k.degree }

// Dim is the number of dimensions of the pseudo-coordinates.
func (k *Kernel) Dim() int { return len(k.kernelSize) }

// KernelSize returns the number of control points per dimension. Values must not be changed.
func (k *Kernel) KernelSize() []int { return k.kernelSize }

// MaxRadius used to normalize dimension 0.
func (k *Kernel) MaxRadius() float64 { return k.maxRadius }

// Boundary of dimension d.
func (k *Kernel) Boundary(d int) BoundaryType { return k.boundaries[d] }

// Extrapolation used by the open dimensions.
func (k *Kernel) Extrapolation() ExtrapolationType { return k.extrapolation }

// RootIndices returns the control points used for the root node term. Values must not be changed.
func (k *Kernel) RootIndices() []int { return k.rootIndices }

// NumControlPoints is K, the total number of control points: the product of the kernel size.
func (k *Kernel) NumControlPoints() int {
	return k.strides[0] * k.kernelSize[0]
}

// BasisSize is `m^dim`, the number of control points each edge touches.
func (k *Kernel) BasisSize() int {
	size := 1
	for range k.kernelSize {
		size *= k.degree + 1
	}
	return size
}

// FlatIndex converts a multi-index (one control point per dimension) to the flat control point index.
func (k *Kernel) FlatIndex(multiIndex ...int) int {
	if len(multiIndex) != k.Dim() {
		exceptions.Panicf("Kernel.FlatIndex() requires %d indices, got %d", k.Dim(), len(multiIndex))
	}
	var flat int
	for d, idx := range multiIndex {
		flat += idx * k.strides[d]
	}
	return flat
}

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	parts := make([]string, k.Dim())
	for d, size := range k.kernelSize {
		parts[d] = fmt.Sprintf("%d:%s", size, strings.TrimPrefix(k.boundaries[d].String(), "Boundary"))
	}
	return fmt.Sprintf("Kernel(degree=%d, maxRadius=%g, size=[%s])", k.degree, k.maxRadius, strings.Join(parts, ", "))
}
