package splinegcn

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomAdjacency creates a graph with numEdges random edges, possibly repeated.
func randomAdjacency(rng *rand.Rand, kernel *Kernel, numVertices, numEdges int) *Adjacency {
	adj := &Adjacency{NumVertices: numVertices}
	for _, coord := range randomCoordinates(rng, kernel, numEdges) {
		adj.AddEdge(rng.IntN(numVertices), rng.IntN(numVertices), coord...)
	}
	return adj
}

// bruteForceConvolve computes the convolution with plain loops, on an independently resolved basis.
func bruteForceConvolve(t *testing.T, kernel *Kernel, adj *Adjacency, features [][]float64, weight [][][]float64, bias []float64) [][]float64 {
	basis, err := kernel.Resolve(adj.Values)
	require.NoError(t, err)
	numIn, numOut := len(weight[0]), len(weight[0][0])
	out := make([][]float64, adj.NumVertices)
	for v := range out {
		out[v] = make([]float64, numOut)
	}
	for e := range adj.NumEdges() {
		src, dst := adj.Cols[e], adj.Rows[e]
		for k := range basis.Size() {
			amount, idx := basis.Amounts(e)[k], basis.Indices(e)[k]
			for i := range numIn {
				for o := range numOut {
					out[dst][o] += amount * features[src][i] * weight[idx][i][o]
				}
			}
		}
	}
	root := kernel.RootIndices()
	for v := range out {
		for o := range numOut {
			for i := range numIn {
				var mean float64
				for _, r := range root {
					mean += weight[r][i][o]
				}
				if len(root) > 0 {
					out[v][o] += features[v][i] * mean / float64(len(root))
				}
			}
			if bias != nil {
				out[v][o] += bias[o]
			}
		}
	}
	return out
}

func TestConvolve(t *testing.T) {
	const (
		numVertices = 6
		numEdges    = 15
		numIn       = 3
		numOut      = 4
	)
	rng := rand.New(rand.NewPCG(42, 42))
	for _, kernel := range []*Kernel{
		NewKernel(1, 1.0, 3),
		NewKernel(1, 2.0, 3, 4),
		NewKernel(2, 1.0, 3, 4, 3),
		NewKernel(1, 1.0, 3, 4).WithRootIndices(),
		NewKernel(0, 1.0, 2, 4).WithRootIndices(1, 3, 3),
	} {
		adj := randomAdjacency(rng, kernel, numVertices, numEdges)
		features := randomMatrix(rng, numVertices, numIn)
		weight := randomTensor3(rng, kernel.NumControlPoints(), numIn, numOut)
		bias := randomMatrix(rng, 1, numOut)[0]

		got, err := Convolve(kernel, adj, features, weight, bias)
		require.NoError(t, err)
		want := bruteForceConvolve(t, kernel, adj, features, weight, bias)
		for v := range numVertices {
			assert.InDeltaSlicef(t, want[v], got[v], 1e-9, "%s: vertex %d", kernel, v)
		}
	}
}

func TestConvolveAggregatesSharedDestination(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	kernel := NewKernel(1, 1.0, 3, 4).WithRootIndices()
	adj := (&Adjacency{NumVertices: 3}).
		AddEdge(0, 1, 0.3, 0.1).
		AddEdge(0, 2, 0.8, 0.6)
	features := randomMatrix(rng, 3, 2)
	weight := randomTensor3(rng, kernel.NumControlPoints(), 2, 2)

	out, err := Convolve(kernel, adj, features, weight, nil)
	require.NoError(t, err)

	edgewise, err := NewEdgewiseConv(kernel, adj.Values)
	require.NoError(t, err)
	edgeOut, _, err := edgewise.Forward([][]float64{features[1], features[2]}, weight)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{edgeOut[0][0] + edgeOut[1][0], edgeOut[0][1] + edgeOut[1][1]}, out[0], 1e-12)
	assert.Equal(t, []float64{0, 0}, out[1])
	assert.Equal(t, []float64{0, 0}, out[2])
}

func TestConvolveRootOnly(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 2))
	kernel := NewKernel(1, 1.0, 2, 4)
	const numVertices, numIn, numOut = 4, 3, 2
	adj := &Adjacency{NumVertices: numVertices}
	features := randomMatrix(rng, numVertices, numIn)
	weight := randomTensor3(rng, kernel.NumControlPoints(), numIn, numOut)
	bias := []float64{0.5, -1}

	out, err := Convolve(kernel, adj, features, weight, bias)
	require.NoError(t, err)
	// Origin control points are [0, 4): radial index 0 for the 4 angles.
	for v := range numVertices {
		want := make([]float64, numOut)
		for o := range numOut {
			for i := range numIn {
				mean := (weight[0][i][o] + weight[1][i][o] + weight[2][i][o] + weight[3][i][o]) / 4
				want[o] += features[v][i] * mean
			}
			want[o] += bias[o]
		}
		assert.InDeltaSlicef(t, want, out[v], 1e-12, "vertex %d", v)
	}
}

func TestConvolveSingleChannelIsolatedVertices(t *testing.T) {
	kernel := NewKernel(1, 1.0, 2)
	adj := &Adjacency{NumVertices: 3}
	features := [][]float64{{1}, {2}, {-3}}
	weight := [][][]float64{{{4}}, {{100}}}
	out, err := Convolve(kernel, adj, features, weight, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{4}, {8}, {-12}}, out)
}

func TestConvolveErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 3))
	kernel := NewKernel(1, 1.0, 2, 4)
	adj := randomAdjacency(rng, kernel, 5, 8)
	features := randomMatrix(rng, 5, 3)
	weight := randomTensor3(rng, 8, 3, 2)

	_, err := Convolve(kernel, adj, features, randomTensor3(rng, 7, 3, 2), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "K=7")

	_, err = Convolve(kernel, adj, randomMatrix(rng, 5, 2), weight, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "M_in=3")

	_, err = Convolve(kernel, adj, randomMatrix(rng, 4, 3), weight, nil)
	require.Error(t, err)

	_, err = Convolve(kernel, adj, features, weight, []float64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bias")

	badAdj := &Adjacency{NumVertices: 5}
	badAdj.AddEdge(5, 0, 0.5, 0.5)
	_, err = Convolve(kernel, badAdj, features, weight, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = NewAdjacency(5, []int{0, 1}, []int{1}, [][]float64{{0.1, 0.2}, {0.3, 0.4}})
	require.Error(t, err)

	wrongDim := (&Adjacency{NumVertices: 5}).AddEdge(0, 1, 0.5)
	_, err = Convolve(kernel, wrongDim, features, weight, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dim=2")
}

func TestGraphConvBackward(t *testing.T) {
	const (
		numVertices = 5
		numEdges    = 12
		numIn       = 2
		numOut      = 3
		h           = 1e-6
		delta       = 1e-5
	)
	rng := rand.New(rand.NewPCG(42, 4))
	kernel := NewKernel(1, 1.0, 3, 4)
	adj := randomAdjacency(rng, kernel, numVertices, numEdges)
	adj.AddEdge(adj.Rows[0], adj.Cols[0], adj.Values[0]...) // A repeated edge.
	conv, err := NewGraphConv(kernel, adj)
	require.NoError(t, err)

	features := randomMatrix(rng, numVertices, numIn)
	weight := randomTensor3(rng, kernel.NumControlPoints(), numIn, numOut)
	bias := randomMatrix(rng, 1, numOut)[0]
	g := randomMatrix(rng, numVertices, numOut)
	loss := func() float64 {
		out, _, err := conv.Forward(features, weight, bias)
		require.NoError(t, err)
		return weightedSum(out, g)
	}
	numericGrad := func(x *float64) float64 {
		original := *x
		*x = original + h
		lossPlus := loss()
		*x = original - h
		lossMinus := loss()
		*x = original
		return (lossPlus - lossMinus) / (2 * h)
	}

	_, ctx, err := conv.Forward(features, weight, bias)
	require.NoError(t, err)
	grads, err := conv.Backward(g, ctx)
	require.NoError(t, err)

	for v := range numVertices {
		for i := range numIn {
			assert.InDeltaf(t, numericGrad(&features[v][i]), grads.Features[v][i], delta, "d(loss)/d(features[%d][%d])", v, i)
		}
	}
	for c := range weight {
		for i := range numIn {
			for o := range numOut {
				assert.InDeltaf(t, numericGrad(&weight[c][i][o]), grads.Weight[c][i][o], delta, "d(loss)/d(weight[%d][%d][%d])", c, i, o)
			}
		}
	}
	require.Len(t, grads.Bias, numOut)
	for o := range numOut {
		assert.InDeltaf(t, numericGrad(&bias[o]), grads.Bias[o], delta, "d(loss)/d(bias[%d])", o)
	}

	// Without bias there is no bias gradient.
	_, ctx, err = conv.Forward(features, weight, nil)
	require.NoError(t, err)
	grads, err = conv.Backward(g, ctx)
	require.NoError(t, err)
	assert.Nil(t, grads.Bias)
}

func TestGraphConvBackwardContext(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 5))
	kernel := NewKernel(1, 1.0, 2, 4)
	adj := randomAdjacency(rng, kernel, 4, 6)
	conv, err := NewGraphConv(kernel, adj)
	require.NoError(t, err)
	other, err := NewGraphConv(kernel, adj)
	require.NoError(t, err)
	features := randomMatrix(rng, 4, 2)
	weight := randomTensor3(rng, 8, 2, 2)
	g := randomMatrix(rng, 4, 2)

	_, err = conv.Backward(g, nil)
	require.Error(t, err)

	_, otherCtx, err := other.Forward(features, weight, nil)
	require.NoError(t, err)
	_, err = conv.Backward(g, otherCtx)
	require.Error(t, err)

	_, ctx, err := conv.Forward(features, weight, nil)
	require.NoError(t, err)
	_, err = conv.Backward(randomMatrix(rng, 3, 2), ctx)
	require.Error(t, err)
}

func TestGraphConvParallel(t *testing.T) {
	defer setMinEdgesPerWorker(8)()
	rng := rand.New(rand.NewPCG(42, 6))
	kernel := NewKernel(2, 1.0, 4, 6)
	adj := randomAdjacency(rng, kernel, 20, 200)
	features := randomMatrix(rng, 20, 3)
	weight := randomTensor3(rng, kernel.NumControlPoints(), 3, 2)
	g := randomMatrix(rng, 20, 2)

	var outs [][][]float64
	var allGrads []*Gradients
	for _, workers := range []int{1, 4} {
		conv, err := NewGraphConv(kernel, adj)
		require.NoError(t, err)
		conv.WithWorkers(workers)
		out, ctx, err := conv.Forward(features, weight, nil)
		require.NoError(t, err)
		grads, err := conv.Backward(g, ctx)
		require.NoError(t, err)
		outs = append(outs, out)
		allGrads = append(allGrads, grads)
	}
	for v := range outs[0] {
		assert.InDeltaSlice(t, outs[0][v], outs[1][v], 1e-12)
		assert.InDeltaSlice(t, allGrads[0].Features[v], allGrads[1].Features[v], 1e-12)
	}
	for c := range allGrads[0].Weight {
		for i := range allGrads[0].Weight[c] {
			assert.InDeltaSlice(t, allGrads[0].Weight[c][i], allGrads[1].Weight[c][i], 1e-12)
		}
	}
}
