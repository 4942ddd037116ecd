// splinegcn_demo fits the weights of a spline graph convolution to reproduce the output of a random "target"
// convolution, on a random geometric graph with polar pseudo-coordinates, using plain gradient descent.
//
// It's meant as an end-to-end exercise of GraphConv.Forward and GraphConv.Backward, and to measure their speed.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/splinegcn"
	"github.com/janpfeifer/must"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagVertices     = flag.Int("vertices", 500, "Number of vertices of the random graph.")
	flagNeighbors    = flag.Int("neighbors", 8, "Number of incoming edges per vertex, from random sources.")
	flagKernel       = flag.String("kernel", "5,8", "Comma-separated kernel size: radial control points followed by angular control points.")
	flagDegree       = flag.Int("degree", 1, "Degree of the B-spline basis.")
	flagChannelsIn   = flag.Int("channels_in", 4, "Number of input channels (M_in).")
	flagChannelsOut  = flag.Int("channels_out", 2, "Number of output channels (M_out).")
	flagSteps        = flag.Int("steps", 200, "Number of gradient descent steps.")
	flagLearningRate = flag.Float64("learning_rate", 0.05, "Gradient descent learning rate.")
	flagWorkers      = flag.Int("workers", 0, "Maximum number of goroutines, 0 uses the default (GOMAXPROCS).")
	flagSeed         = flag.Uint64("seed", 42, "Random seed.")
	flagReportEvery  = flag.Int("report_every", 50, "Number of steps between rows of the loss report.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	kernelSize, err := parseKernelSize(*flagKernel)
	if err != nil {
		klog.Errorf("Invalid -kernel=%q: %v", *flagKernel, err)
		os.Exit(1)
	}
	var kernel *splinegcn.Kernel
	if err := exceptions.TryCatch[error](func() {
		kernel = splinegcn.NewKernel(*flagDegree, math.Sqrt2, kernelSize...)
	}); err != nil {
		klog.Errorf("Invalid kernel configuration: %v", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewPCG(*flagSeed, *flagSeed))
	adj := randomGeometricGraph(rng, *flagVertices, *flagNeighbors)
	conv := must.M1(splinegcn.NewGraphConv(kernel, adj))
	if *flagWorkers > 0 {
		conv.WithWorkers(*flagWorkers)
	}
	numControlPoints := kernel.NumControlPoints()
	numParams := numControlPoints * (*flagChannelsIn) * (*flagChannelsOut)
	fmt.Printf("Graph: %s vertices, %s edges\n", humanize.Comma(int64(adj.NumVertices)), humanize.Comma(int64(adj.NumEdges())))
	fmt.Printf("%s: %s parameters (%s)\n", kernel, humanize.Comma(int64(numParams)), humanize.Bytes(uint64(8*numParams)))

	features := randomMatrix(rng, adj.NumVertices, *flagChannelsIn, 1.0)
	targetWeight := randomTensor3(rng, numControlPoints, *flagChannelsIn, *flagChannelsOut, 1.0)
	target, _ := must.M2(conv.Forward(features, targetWeight, nil))

	weight := randomTensor3(rng, numControlPoints, *flagChannelsIn, *flagChannelsOut, 0.01)
	bias := make([]float64, *flagChannelsOut)
	initialOut, _ := must.M2(conv.Forward(features, weight, bias))
	initialLoss := meanSquaredError(initialOut, target)
	fmt.Printf("Initial loss: %.6f\n", initialLoss)

	bar := progressbar.Default(int64(*flagSteps), "training")
	start := time.Now()
	var loss float64
	var report [][]string
	for step := range *flagSteps {
		out, ctx := must.M2(conv.Forward(features, weight, bias))
		loss = meanSquaredError(out, target)
		gradOut := make([][]float64, len(out))
		scale := 2 / float64(max(len(out)*(*flagChannelsOut), 1))
		for v, row := range out {
			gradOut[v] = make([]float64, len(row))
			for o, y := range row {
				gradOut[v][o] = scale * (y - target[v][o])
			}
		}
		grads := must.M1(conv.Backward(gradOut, ctx))
		for c := range weight {
			for i := range weight[c] {
				for o := range weight[c][i] {
					weight[c][i][o] -= *flagLearningRate * grads.Weight[c][i][o]
				}
			}
		}
		for o := range bias {
			bias[o] -= *flagLearningRate * grads.Bias[o]
		}
		if *flagReportEvery > 0 && step%*flagReportEvery == 0 {
			report = append(report, []string{
				humanize.Comma(int64(step)), fmt.Sprintf("%.6f", loss), fmt.Sprintf("%.3g", maxAbs(grads.Weight))})
		}
		bar.Describe(fmt.Sprintf("training (loss=%.4f)", loss))
		_ = bar.Add(1)
	}
	elapsed := time.Since(start)
	fmt.Println()
	if len(report) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"STEP", "LOSS", "MAX |GRAD W|"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_RIGHT)
		table.SetBorder(false)
		table.AppendBulk(report)
		table.Render()
	}
	fmt.Printf("Final loss: %.6f (initial %.6f)\n", loss, initialLoss)
	if *flagSteps > 0 {
		fmt.Printf("%s per forward+backward step\n", elapsed/time.Duration(*flagSteps))
	}
}

// parseKernelSize parses a comma-separated list of positive integers.
func parseKernelSize(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		size, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}

// randomGeometricGraph places vertices uniformly in the unit square and connects each vertex to numNeighbors
// random sources. Pseudo-coordinates are polar: the distance and the angle normalized to [0, 1).
func randomGeometricGraph(rng *rand.Rand, numVertices, numNeighbors int) *splinegcn.Adjacency {
	positions := randomMatrix(rng, numVertices, 2, 0)
	for _, p := range positions {
		p[0], p[1] = rng.Float64(), rng.Float64()
	}
	adj := &splinegcn.Adjacency{NumVertices: numVertices}
	for dst := range numVertices {
		for range numNeighbors {
			src := rng.IntN(numVertices)
			dx, dy := positions[src][0]-positions[dst][0], positions[src][1]-positions[dst][1]
			theta := math.Atan2(dy, dx) / (2 * math.Pi)
			if theta < 0 {
				theta += 1
			}
			adj.AddEdge(dst, src, math.Hypot(dx, dy), theta)
		}
	}
	return adj
}

func randomMatrix(rng *rand.Rand, rows, cols int, stddev float64) [][]float64 {
	m := make([][]float64, rows)
	for ii := range m {
		m[ii] = make([]float64, cols)
		for jj := range m[ii] {
			m[ii][jj] = stddev * rng.NormFloat64()
		}
	}
	return m
}

func randomTensor3(rng *rand.Rand, dim0, dim1, dim2 int, stddev float64) [][][]float64 {
	t := make([][][]float64, dim0)
	for ii := range t {
		t[ii] = randomMatrix(rng, dim1, dim2, stddev)
	}
	return t
}

func maxAbs(t [][][]float64) float64 {
	var result float64
	for _, rows := range t {
		for _, row := range rows {
			for _, v := range row {
				result = max(result, math.Abs(v))
			}
		}
	}
	return result
}

func meanSquaredError(out, target [][]float64) float64 {
	var sum float64
	var count int
	for v, row := range out {
		for o, y := range row {
			diff := y - target[v][o]
			sum += diff * diff
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
