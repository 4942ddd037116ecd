package splinegcn

import (
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ScatterAdd accumulates each row src[ii] into dst[indices[ii]]. Repeated indices sum, they never overwrite.
//
// It is the inverse of Gather: it's used to aggregate per-edge values into per-vertex values, and to
// aggregate per-edge gradients back into the gathered rows.
func ScatterAdd(dst [][]float64, indices []int, src [][]float64) {
	if len(indices) != len(src) {
		exceptions.Panicf("ScatterAdd requires one index per source row, got %d indices and %d rows", len(indices), len(src))
	}
	for ii, row := range src {
		floats.Add(dst[indices[ii]], row)
	}
}

// scatterAddScaled accumulates alpha*src into dst: the single-row form of ScatterAdd.
func scatterAddScaled(dst []float64, alpha float64, src []float64) {
	floats.AddScaled(dst, alpha, src)
}

// Gather returns the rows src[indices[ii]]. The returned rows share memory with src: they must be treated as
// read-only.
func Gather(src [][]float64, indices []int) [][]float64 {
	rows := make([][]float64, len(indices))
	for ii, idx := range indices {
		rows[ii] = src[idx]
	}
	return rows
}

// newMatrix allocates a zero-initialized `[rows][cols]` matrix backed by a single slice.
func newMatrix(rows, cols int) [][]float64 {
	data := make([]float64, rows*cols)
	m := make([][]float64, rows)
	for ii := range m {
		m[ii] = data[ii*cols : (ii+1)*cols : (ii+1)*cols]
	}
	return m
}

// newTensor3 allocates a zero-initialized `[dim0][dim1][dim2]` tensor backed by a single slice.
func newTensor3(dim0, dim1, dim2 int) [][][]float64 {
	data := make([]float64, dim0*dim1*dim2)
	t := make([][][]float64, dim0)
	for ii := range t {
		t[ii] = make([][]float64, dim1)
		for jj := range t[ii] {
			start := (ii*dim1 + jj) * dim2
			t[ii][jj] = data[start : start+dim2 : start+dim2]
		}
	}
	return t
}

// addTensor3 adds src into dst, both shaped the same.
func addTensor3(dst, src [][][]float64) {
	for ii := range dst {
		for jj := range dst[ii] {
			floats.Add(dst[ii][jj], src[ii][jj])
		}
	}
}

// toDense copies a `[rows][cols]` matrix into a gonum dense matrix. rows and cols must be > 0.
func toDense(m [][]float64, cols int) *mat.Dense {
	data := make([]float64, 0, len(m)*cols)
	for _, row := range m {
		data = append(data, row...)
	}
	return mat.NewDense(len(m), cols, data)
}

// addDense adds a gonum dense matrix into a `[rows][cols]` matrix of the same shape.
func addDense(dst [][]float64, src *mat.Dense) {
	for ii, row := range dst {
		floats.Add(row, src.RawRowView(ii))
	}
}
