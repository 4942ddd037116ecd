package splinegcn

import (
	"slices"

	"github.com/gomlx/exceptions"
)

// at accesses an arbitrary element of the slice. Negative indices are counted from the end of the slice,
// so -1 refers to the last element.
func at[E any](slice []E, idx int) E {
	if idx < 0 {
		idx = len(slice) + idx
	}
	return slice[idx]
}

//go:generate stringer -type=ExtrapolationType

// ExtrapolationType defines how an open kernel dimension behaves outside its knots (for x < knots[0] or
// x >= knots[-1]).
type ExtrapolationType int

const (
	// ExtrapolateZero gives all control points a weight of 0 outside the knots.
	ExtrapolateZero ExtrapolationType = iota

	// ExtrapolateConstant clamps to the first/last control point outside the knots.
	ExtrapolateConstant

	// ExtrapolateLinear extrapolates linearly from the first two/last two control points outside the knots.
	ExtrapolateLinear
)

// BSpline is a clamped 1D B-spline over a fixed set of knots.
//
// Within a Kernel it is used for the open (non-periodic) dimensions: the basis functions that are non-zero at a
// coordinate give the control points (and their weights) an edge touches. The control points are optional: they
// are only needed for Evaluate.
type BSpline struct {
	degree                       int
	expandedKnots, controlPoints []float64
	extrapolation                ExtrapolationType

	// knot (x-coordinate) value for controlPoints[1] and controlPoints[-2], used for linear extrapolation.
	knotValueForControlPoint1, knotValueForControlPointM2 float64
}

// NewBSpline creates a new B-spline with the given degree (`order == degree+1`).
//
// The knots must be sorted and not be repeated.
// Internally, degree extra values are inserted on the start and end of the knots vector, to clamp the endings.
func NewBSpline(degree int, knots []float64) *BSpline {
	if degree < 0 {
		exceptions.Panicf("splinegcn.NewBSpline requires degree >= 0, got %d", degree)
	}
	if len(knots) < 2 {
		exceptions.Panicf("splinegcn.NewBSpline requires at least 2 knots, got %d instead", len(knots))
	}
	if !slices.IsSortedFunc(knots, func(a, b float64) int {
		// a follows b: it must be strictly larger, repeated knots fail.
		if a > b {
			return 1
		}
		return -1
	}) {
		exceptions.Panicf("splinegcn.NewBSpline requires knots to be strictly increasing (no repeats), got %v instead", knots)
	}
	b := &BSpline{
		degree:        degree,
		expandedKnots: make([]float64, len(knots)+2*degree),
		extrapolation: ExtrapolateConstant,
	}
	for ii := range degree {
		b.expandedKnots[ii] = knots[0]
		b.expandedKnots[len(b.expandedKnots)-ii-1] = at(knots, -1)
	}
	copy(b.expandedKnots[degree:len(b.expandedKnots)-degree], knots)

	controlX := b.ControlPointsX()
	if len(controlX) > 1 {
		b.knotValueForControlPoint1, b.knotValueForControlPointM2 = controlX[1], at(controlX, -2)
	}
	return b
}

// NewRegularBSpline creates a B-spline with evenly spaced knots from 0.0 to 1.0, enough for numControlPoints.
//
// numControlPoints must be at least `degree + 1`.
func NewRegularBSpline(degree, numControlPoints int) *BSpline {
	if numControlPoints < degree+1 {
		exceptions.Panicf("splinegcn.NewRegularBSpline requires numControlPoints=%d >= degree+1=%d", numControlPoints, degree+1)
	}
	numKnots := numControlPoints - degree + 1
	knots := make([]float64, numKnots)
	for ii := range knots {
		knots[ii] = float64(ii) / float64(numKnots-1)
	}
	return NewBSpline(degree, knots)
}

// WithControlPoints associates the given control points to this B-spline.
// There must be exactly `len(knots)+degree-1` control points.
//
// It returns itself so configuration calls can be cascaded.
func (b *BSpline) WithControlPoints(controlPoints []float64) *BSpline {
	if len(controlPoints) != b.NumControlPoints() {
		exceptions.Panicf("BSpline.WithControlPoints() with %d knots, expected %d control points (== `len(knots)+degree-1`), but got %d instead",
			len(b.Knots()), b.NumControlPoints(), len(controlPoints))
	}
	b.controlPoints = controlPoints
	return b
}

// WithExtrapolation defines how evaluation and basis weights behave before the first knot or after the last knot.
//
// The default value is ExtrapolateConstant.
func (b *BSpline) WithExtrapolation(e ExtrapolationType) *BSpline {
	b.extrapolation = e
	return b
}

// Degree of the B-spline.
func (b *BSpline) Degree() int { return b.degree }

// Extrapolation returns the current extrapolation type.
func (b *BSpline) Extrapolation() ExtrapolationType { return b.extrapolation }

// Knots of the B-spline. Values must not be changed.
func (b *BSpline) Knots() []float64 {
	return b.expandedKnots[b.degree : len(b.expandedKnots)-b.degree]
}

// NumControlPoints returns the number of control points for the current knots.
func (b *BSpline) NumControlPoints() int {
	return len(b.Knots()) + b.degree - 1
}

// ControlPoints returns the control points, nil if they were never set.
func (b *BSpline) ControlPoints() []float64 {
	return b.controlPoints
}

// ControlPointsX calculates the x values of the control points (Greville abscissae).
// For degree 0 it is the middle of the knot interval owned by the control point.
func (b *BSpline) ControlPointsX() []float64 {
	numControlPoints := b.NumControlPoints()
	xs := make([]float64, numControlPoints)
	if b.degree == 0 {
		knots := b.Knots()
		for ii := range numControlPoints {
			xs[ii] = (knots[ii] + knots[ii+1]) / 2
		}
		return xs
	}
	for ii := range numControlPoints {
		for jj := range b.degree {
			xs[ii] += b.expandedKnots[ii+jj+1]
		}
		xs[ii] /= float64(b.degree)
	}
	return xs
}

// Evaluate the 1D B-spline at x, using the control points set with WithControlPoints.
// It is the weighted sum of the control points with the weights given by NonZeroBasis.
func (b *BSpline) Evaluate(x float64) float64 {
	if len(b.controlPoints) == 0 {
		exceptions.Panicf("BSpline.Evaluate() require control points to be set using BSpline.WithControlPoints()")
	}
	m := b.degree + 1
	indices, weights := make([]int, m), make([]float64, m)
	b.NonZeroBasis(x, indices, weights)
	var result float64
	for ii, idx := range indices {
		result += weights[ii] * b.controlPoints[idx]
	}
	return result
}

// NonZeroBasis fills indices and weights (both of length `degree+1`) with the control points whose basis
// functions may be non-zero at x, and the value of those basis functions.
//
// Inside the knots the indices are consecutive and the weights sum to 1. Outside the knots the
// extrapolation type decides: indices are always valid control points, unused slots get weight 0.
func (b *BSpline) NonZeroBasis(x float64, indices []int, weights []float64) {
	m := b.degree + 1
	if len(indices) != m || len(weights) != m {
		exceptions.Panicf("BSpline.NonZeroBasis() requires indices and weights of length degree+1=%d, got %d and %d",
			m, len(indices), len(weights))
	}
	knots := b.Knots()
	if x < knots[0] || x >= at(knots, -1) {
		b.extrapolateBasis(x, indices, weights)
		return
	}
	span, found := slices.BinarySearch(knots, x)
	if !found {
		span--
	}
	for ii := range m {
		indices[ii] = span + ii
		weights[ii] = b.BasisFunction(span+ii, b.degree, x)
	}
}

// extrapolateBasis fills the basis for x outside the knots.
func (b *BSpline) extrapolateBasis(x float64, indices []int, weights []float64) {
	numControlPoints := b.NumControlPoints()
	before := x < b.expandedKnots[0]
	first := 0
	if !before {
		first = numControlPoints - len(indices)
	}
	for ii := range indices {
		indices[ii] = first + ii
		weights[ii] = 0
	}
	extrapolation := b.extrapolation
	if extrapolation == ExtrapolateLinear && b.degree == 0 {
		// Linear needs two control points.
		extrapolation = ExtrapolateConstant
	}
	switch extrapolation {
	case ExtrapolateZero:
	case ExtrapolateConstant:
		if before {
			weights[0] = 1
		} else {
			weights[len(weights)-1] = 1
		}
	case ExtrapolateLinear:
		if before {
			t := (x - b.expandedKnots[0]) / (b.knotValueForControlPoint1 - b.expandedKnots[0])
			weights[0], weights[1] = 1-t, t
		} else {
			last := at(b.expandedKnots, -1)
			s := (x - last) / (last - b.knotValueForControlPointM2)
			weights[len(weights)-2], weights[len(weights)-1] = -s, 1+s
		}
	}
}

// BasisFunction calculates the B-spline basis function of arbitrary degree at parameter x.
func (b *BSpline) BasisFunction(controlPointIdx, degree int, x float64) float64 {
	if degree == 0 {
		if x >= b.expandedKnots[controlPointIdx] && x < b.expandedKnots[controlPointIdx+1] {
			return 1.0
		}
		return 0.0
	}
	left := 0.0
	if b.expandedKnots[controlPointIdx+degree] != b.expandedKnots[controlPointIdx] {
		left = (x - b.expandedKnots[controlPointIdx]) / (b.expandedKnots[controlPointIdx+degree] - b.expandedKnots[controlPointIdx]) * b.BasisFunction(controlPointIdx, degree-1, x)
	}

	right := 0.0
	if b.expandedKnots[controlPointIdx+degree+1] != b.expandedKnots[controlPointIdx+1] {
		right = (b.expandedKnots[controlPointIdx+degree+1] - x) / (b.expandedKnots[controlPointIdx+degree+1] - b.expandedKnots[controlPointIdx+1]) * b.BasisFunction(controlPointIdx+1, degree-1, x)
	}
	return left + right
}

// Derivative creates the derivative BSpline of the given BSpline.
// The control points must have been set with WithControlPoints.
//
// The returned BSpline has the same knots, and the degree is one less than the original.
func (b *BSpline) Derivative() *BSpline {
	if b.degree == 0 {
		exceptions.Panicf("BSpline.Derivative() of a degree 0 B-spline is not supported")
	}
	knots := b.Knots()
	control := b.controlPoints
	newControl := make([]float64, b.NumControlPoints()-1)
	for ii := range newControl {
		// q_i = p * (c_{i+1} - c_i) / (knot_{i+p+1} - knot_{i+1})
		newControl[ii] = float64(b.degree) *
			(control[ii+1] - control[ii]) /
			(b.expandedKnots[ii+1+b.degree] - b.expandedKnots[ii+1])
	}
	var extrapolation ExtrapolationType
	switch b.extrapolation {
	case ExtrapolateZero, ExtrapolateConstant:
		extrapolation = ExtrapolateZero
	case ExtrapolateLinear:
		extrapolation = ExtrapolateConstant
	}
	return NewBSpline(b.degree-1, knots).WithExtrapolation(extrapolation).WithControlPoints(newControl)
}
