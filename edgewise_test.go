package splinegcn

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bruteForceEdgewise computes out[e] = \sum_k \sum_i amount[e,k] * features[e,i] * weight[index[e,k], i, :]
// with plain loops.
func bruteForceEdgewise(basis *Basis, features [][]float64, weight [][][]float64) [][]float64 {
	numOut := len(weight[0][0])
	out := make([][]float64, basis.NumEdges())
	for e := range out {
		out[e] = make([]float64, numOut)
		for k := range basis.Size() {
			amount, idx := basis.Amounts(e)[k], basis.Indices(e)[k]
			for i := range features[e] {
				for o := range numOut {
					out[e][o] += amount * features[e][i] * weight[idx][i][o]
				}
			}
		}
	}
	return out
}

func TestEdgewiseForward(t *testing.T) {
	const (
		numEdges = 5
		numIn    = 3
		numOut   = 2
	)
	rng := rand.New(rand.NewPCG(42, 42))
	k := NewKernel(1, 1.0, 2, 4)
	require.Equal(t, 8, k.NumControlPoints())
	op, err := NewEdgewiseConv(k, randomCoordinates(rng, k, numEdges))
	require.NoError(t, err)
	features := randomMatrix(rng, numEdges, numIn)
	weight := randomTensor3(rng, k.NumControlPoints(), numIn, numOut)

	got, ctx, err := op.Forward(features, weight)
	require.NoError(t, err)
	require.NotNil(t, ctx)
	want := bruteForceEdgewise(op.Basis(), features, weight)
	for e := range numEdges {
		assert.InDeltaSlicef(t, want[e], got[e], 1e-12, "edge %d", e)
	}
}

func TestEdgewiseBackward(t *testing.T) {
	const (
		numEdges = 7
		numIn    = 3
		numOut   = 2
		h        = 1e-6
		delta    = 1e-5
	)
	rng := rand.New(rand.NewPCG(42, 3))
	for degree := range 3 {
		k := NewKernel(degree, 1.0, 3, 4)
		op, err := NewEdgewiseConv(k, randomCoordinates(rng, k, numEdges))
		require.NoError(t, err)
		features := randomMatrix(rng, numEdges, numIn)
		weight := randomTensor3(rng, k.NumControlPoints(), numIn, numOut)
		g := randomMatrix(rng, numEdges, numOut)
		loss := func() float64 {
			out, _, err := op.Forward(features, weight)
			require.NoError(t, err)
			return weightedSum(out, g)
		}

		_, ctx, err := op.Forward(features, weight)
		require.NoError(t, err)
		gradFeatures, gradWeight, err := op.Backward(g, ctx)
		require.NoError(t, err)

		for e := range numEdges {
			for i := range numIn {
				original := features[e][i]
				features[e][i] = original + h
				lossPlus := loss()
				features[e][i] = original - h
				lossMinus := loss()
				features[e][i] = original
				assert.InDeltaf(t, (lossPlus-lossMinus)/(2*h), gradFeatures[e][i], delta,
					"degree=%d, d(loss)/d(features[%d][%d])", degree, e, i)
			}
		}
		for c := range weight {
			for i := range numIn {
				for o := range numOut {
					original := weight[c][i][o]
					weight[c][i][o] = original + h
					lossPlus := loss()
					weight[c][i][o] = original - h
					lossMinus := loss()
					weight[c][i][o] = original
					assert.InDeltaf(t, (lossPlus-lossMinus)/(2*h), gradWeight[c][i][o], delta,
						"degree=%d, d(loss)/d(weight[%d][%d][%d])", degree, c, i, o)
				}
			}
		}
	}
}

func TestEdgewiseBackwardContext(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 5))
	k := NewKernel(1, 1.0, 2, 4)
	coords := randomCoordinates(rng, k, 4)
	op, err := NewEdgewiseConv(k, coords)
	require.NoError(t, err)
	other, err := NewEdgewiseConv(k, coords)
	require.NoError(t, err)
	features := randomMatrix(rng, 4, 2)
	weight := randomTensor3(rng, 8, 2, 3)
	g := randomMatrix(rng, 4, 3)

	_, _, err = op.Backward(g, nil)
	require.Error(t, err)

	_, otherCtx, err := other.Forward(features, weight)
	require.NoError(t, err)
	_, _, err = op.Backward(g, otherCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different operation")

	_, ctx, err := op.Forward(features, weight)
	require.NoError(t, err)
	_, _, err = op.Backward(randomMatrix(rng, 4, 2), ctx)
	require.Error(t, err, "gradOut with the wrong M_out")
	_, _, err = op.Backward(g, ctx)
	require.NoError(t, err)
}

func TestEdgewiseForwardShapes(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 6))
	k := NewKernel(1, 1.0, 2, 4)
	op, err := NewEdgewiseConv(k, randomCoordinates(rng, k, 3))
	require.NoError(t, err)

	_, _, err = op.Forward(randomMatrix(rng, 3, 2), randomTensor3(rng, 7, 2, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "K=7")
	assert.Contains(t, err.Error(), "K=product(kernelSize)=8")

	_, _, err = op.Forward(randomMatrix(rng, 3, 3), randomTensor3(rng, 8, 2, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "features[0] has 3 columns, expected 2")

	_, _, err = op.Forward(randomMatrix(rng, 2, 2), randomTensor3(rng, 8, 2, 2))
	require.Error(t, err)

	weight := randomTensor3(rng, 8, 2, 2)
	weight[5] = weight[5][:1]
	_, _, err = op.Forward(randomMatrix(rng, 3, 2), weight)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight[5] has M_in=1")
}

func TestEdgewiseParallel(t *testing.T) {
	defer setMinEdgesPerWorker(4)()
	const numEdges = 50
	rng := rand.New(rand.NewPCG(42, 8))
	k := NewKernel(2, 1.0, 4, 6)
	basis, err := k.Resolve(randomCoordinates(rng, k, numEdges))
	require.NoError(t, err)
	sequential := NewEdgewiseConvFromBasis(basis).WithWorkers(1)
	parallel := NewEdgewiseConvFromBasis(basis).WithWorkers(4)
	features := randomMatrix(rng, numEdges, 3)
	weight := randomTensor3(rng, k.NumControlPoints(), 3, 2)
	g := randomMatrix(rng, numEdges, 2)

	want, wantCtx, err := sequential.Forward(features, weight)
	require.NoError(t, err)
	got, gotCtx, err := parallel.Forward(features, weight)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	wantGradFeatures, wantGradWeight, err := sequential.Backward(g, wantCtx)
	require.NoError(t, err)
	gotGradFeatures, gotGradWeight, err := parallel.Backward(g, gotCtx)
	require.NoError(t, err)
	assert.Equal(t, wantGradFeatures, gotGradFeatures)
	for c := range wantGradWeight {
		for i := range wantGradWeight[c] {
			assert.InDeltaSlice(t, wantGradWeight[c][i], gotGradWeight[c][i], 1e-12)
		}
	}
}
