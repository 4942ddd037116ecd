package splinegcn

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minEdgesPerWorker is the smallest range of edges worth handing to its own goroutine.
var minEdgesPerWorker = 512

// defaultWorkers is the default parallelism of the operations.
func defaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// numChunks returns how many contiguous ranges numItems should be split into, given at most maxWorkers.
func numChunks(numItems, maxWorkers int) int {
	n := numItems / minEdgesPerWorker
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// runChunks splits [0, numItems) in numChunks contiguous ranges and calls fn for each of them, in parallel.
// The chunk index passed to fn is stable: chunk c always covers the same range, so partial results can be
// reduced in a deterministic order. It returns the first error returned by fn.
func runChunks(numItems, chunks int, fn func(chunk, start, end int) error) error {
	if chunks <= 1 {
		return fn(0, 0, numItems)
	}
	chunkSize := (numItems + chunks - 1) / chunks
	var g errgroup.Group
	for c := range chunks {
		start, end := c*chunkSize, min((c+1)*chunkSize, numItems)
		if start >= end {
			break
		}
		g.Go(func() error { return fn(c, start, end) })
	}
	return g.Wait()
}
