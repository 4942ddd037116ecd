package splinegcn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScatterAdd(t *testing.T) {
	dst := newMatrix(3, 2)
	ScatterAdd(dst, []int{2, 0, 2, 2}, [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}})
	assert.Equal(t, [][]float64{{3, 4}, {0, 0}, {13, 16}}, dst)

	assert.Panics(t, func() { ScatterAdd(dst, []int{0}, [][]float64{{1, 2}, {3, 4}}) })
}

func TestGather(t *testing.T) {
	src := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	assert.Equal(t, [][]float64{{5, 6}, {5, 6}, {1, 2}}, Gather(src, []int{2, 2, 0}))
	assert.Empty(t, Gather(src, nil))
}

func TestNewTensor3(t *testing.T) {
	tensor := newTensor3(2, 3, 4)
	tensor[1][2][3] = 1
	assert.Len(t, tensor, 2)
	assert.Len(t, tensor[0], 3)
	assert.Len(t, tensor[0][0], 4)
	assert.Equal(t, 0.0, tensor[0][0][0])

	other := newTensor3(2, 3, 4)
	other[1][2][3] = 2
	other[0][0][0] = 1
	addTensor3(tensor, other)
	assert.Equal(t, 3.0, tensor[1][2][3])
	assert.Equal(t, 1.0, tensor[0][0][0])
}
