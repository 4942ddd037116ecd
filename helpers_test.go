package splinegcn

import (
	"math/rand/v2"
)

func randomMatrix(rng *rand.Rand, rows, cols int) [][]float64 {
	m := newMatrix(rows, cols)
	for _, row := range m {
		for ii := range row {
			row[ii] = rng.NormFloat64()
		}
	}
	return m
}

func randomTensor3(rng *rand.Rand, dim0, dim1, dim2 int) [][][]float64 {
	t := newTensor3(dim0, dim1, dim2)
	for _, m := range t {
		for _, row := range m {
			for ii := range row {
				row[ii] = rng.NormFloat64()
			}
		}
	}
	return t
}

// randomCoordinates returns pseudo-coordinates for numEdges: the radius goes slightly beyond the max radius, so
// some are clamped, angles are in [0, 1).
func randomCoordinates(rng *rand.Rand, kernel *Kernel, numEdges int) [][]float64 {
	coords := newMatrix(numEdges, kernel.Dim())
	for _, coord := range coords {
		coord[0] = rng.Float64() * kernel.MaxRadius() * 1.1
		for d := 1; d < len(coord); d++ {
			coord[d] = rng.Float64()
		}
	}
	return coords
}

// weightedSum is the loss used in the gradient tests: sum(out * g).
func weightedSum(out, g [][]float64) (loss float64) {
	for ii, row := range out {
		for jj, v := range row {
			loss += v * g[ii][jj]
		}
	}
	return
}

// setMinEdgesPerWorker changes the parallelization threshold and returns a function to restore it.
func setMinEdgesPerWorker(value int) (restore func()) {
	previous := minEdgesPerWorker
	minEdgesPerWorker = value
	return func() { minEdgesPerWorker = previous }
}
