package splinegcn

import (
	"github.com/pkg/errors"
)

// Adjacency is a sparse, coordinate-format (COO) weighted graph over NumVertices vertices.
//
// Edge e goes from the source vertex Cols[e] to the destination vertex Rows[e] and carries the
// pseudo-coordinate Values[e]. Edges are kept in insertion order and repeated edges are not merged.
type Adjacency struct {
	NumVertices int
	Rows, Cols  []int
	Values      [][]float64
}

// NewAdjacency returns an Adjacency with the given triplets, after validating them.
func NewAdjacency(numVertices int, rows, cols []int, values [][]float64) (*Adjacency, error) {
	adj := &Adjacency{NumVertices: numVertices, Rows: rows, Cols: cols, Values: values}
	if err := adj.Validate(); err != nil {
		return nil, err
	}
	return adj, nil
}

// AddEdge appends an edge from source to destination with the given pseudo-coordinate.
// It is not validated until Validate is called.
func (adj *Adjacency) AddEdge(destination, source int, coordinate ...float64) *Adjacency {
	adj.Rows = append(adj.Rows, destination)
	adj.Cols = append(adj.Cols, source)
	adj.Values = append(adj.Values, coordinate)
	return adj
}

// NumEdges is the number of edges, including repeated ones.
func (adj *Adjacency) NumEdges() int { return len(adj.Rows) }

// Validate checks that the triplets have the same length and that the vertex indices are in range.
func (adj *Adjacency) Validate() error {
	if adj.NumVertices < 0 {
		return errors.Errorf("adjacency has negative number of vertices %d", adj.NumVertices)
	}
	numEdges := len(adj.Rows)
	if len(adj.Cols) != numEdges || len(adj.Values) != numEdges {
		return errors.Errorf("adjacency triplets have different lengths: %d rows, %d cols, %d values",
			numEdges, len(adj.Cols), len(adj.Values))
	}
	for e := range numEdges {
		if adj.Rows[e] < 0 || adj.Rows[e] >= adj.NumVertices {
			return errors.Errorf("edge %d destination (row) %d out of range [0, %d)", e, adj.Rows[e], adj.NumVertices)
		}
		if adj.Cols[e] < 0 || adj.Cols[e] >= adj.NumVertices {
			return errors.Errorf("edge %d source (col) %d out of range [0, %d)", e, adj.Cols[e], adj.NumVertices)
		}
	}
	return nil
}
