// Package mesh holds the unstructured triangular mesh data model and the
// offline spatial-sort builder that prepares it for chunked storage.
//
// Layout is columnar: per-node arrays plus flat row-major amplitude/phase
// matrices of shape node x constituent. Triangle connectivity is a flat
// []int32 of length 3*M. Columnar slices map one-to-one onto chunk objects
// and keep the bounding-box filter a straight pass over memory.
package mesh

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMalformedMesh marks structural defects in source data: ragged
	// arrays, non-finite coordinates, missing constituents. Fatal to a build.
	ErrMalformedMesh = errors.New("malformed mesh")
	// ErrIndexOutOfRange marks triangle connectivity referencing a node
	// outside [0, N). Fatal to a build, never surfaced at query time.
	ErrIndexOutOfRange = errors.New("triangle index out of range")
)

// Mesh is the columnar mesh representation shared by the raw (builder input)
// and sorted (store) forms.
type Mesh struct {
	Lat   []float64 // degrees north, len N
	Lon   []float64 // degrees east, len N
	Depth []float64 // meters positive down, len N

	// Triangles is flat connectivity, len 3*M, vertex indices into the node
	// arrays. Indices are 0-based and refer to the current node order.
	Triangles []int32

	// Flat row-major node x constituent matrices, len N*C.
	UAmp   []float64 // eastward amplitude, m/s
	VAmp   []float64 // northward amplitude, m/s
	UPhase []float64 // eastward phase, degrees
	VPhase []float64 // northward phase, degrees

	Freqs []float64 // angular frequency per constituent, rad/s, len C
	Names []string  // constituent names, len C, same order as Freqs
}

func (m *Mesh) NumNodes() int        { return len(m.Lat) }
func (m *Mesh) NumTriangles() int    { return len(m.Triangles) / 3 }
func (m *Mesh) NumConstituents() int { return len(m.Names) }

// Triangle returns the three vertex indices of triangle i.
func (m *Mesh) Triangle(i int) (int32, int32, int32) {
	return m.Triangles[3*i], m.Triangles[3*i+1], m.Triangles[3*i+2]
}

// Validate checks array shapes, coordinate finiteness and connectivity
// ranges. Builders call this before doing any work so a defect aborts the
// whole build with no partial output.
func (m *Mesh) Validate() error {
	n := len(m.Lat)
	if n == 0 {
		return fmt.Errorf("%w: empty node set", ErrMalformedMesh)
	}
	if len(m.Lon) != n || len(m.Depth) != n {
		return fmt.Errorf("%w: node arrays ragged: lat=%d lon=%d depth=%d",
			ErrMalformedMesh, n, len(m.Lon), len(m.Depth))
	}
	c := len(m.Names)
	if c == 0 {
		return fmt.Errorf("%w: no constituents declared", ErrMalformedMesh)
	}
	if len(m.Freqs) != c {
		return fmt.Errorf("%w: %d constituent names but %d frequencies",
			ErrMalformedMesh, c, len(m.Freqs))
	}
	want := n * c
	for name, arr := range map[string][]float64{
		"u_amp": m.UAmp, "v_amp": m.VAmp, "u_phase": m.UPhase, "v_phase": m.VPhase,
	} {
		if len(arr) != want {
			return fmt.Errorf("%w: %s has %d values, want %d (N=%d C=%d)",
				ErrMalformedMesh, name, len(arr), want, n, c)
		}
	}
	if len(m.Triangles)%3 != 0 {
		return fmt.Errorf("%w: connectivity length %d not a multiple of 3",
			ErrMalformedMesh, len(m.Triangles))
	}
	for i := 0; i < n; i++ {
		if !finite(m.Lat[i]) || !finite(m.Lon[i]) {
			return fmt.Errorf("%w: non-finite coordinate at node %d (%v, %v)",
				ErrMalformedMesh, i, m.Lat[i], m.Lon[i])
		}
	}
	for i := 0; i < m.NumTriangles(); i++ {
		a, b, cc := m.Triangle(i)
		if a == b || b == cc || a == cc {
			return fmt.Errorf("%w: degenerate triangle %d (%d,%d,%d)",
				ErrMalformedMesh, i, a, b, cc)
		}
		for _, v := range [3]int32{a, b, cc} {
			if v < 0 || int(v) >= n {
				return fmt.Errorf("%w: triangle %d vertex %d with %d nodes",
					ErrIndexOutOfRange, i, v, n)
			}
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Sorted is a mesh permuted into ascending spatial-key order. Immutable after
// the builder produces it; the store shares its arrays read-only across
// concurrent queries.
type Sorted struct {
	Mesh

	// OriginalIndex maps new (sorted) index to the node's index in the
	// source data, for provenance.
	OriginalIndex []int64

	// Chunk sizes used by the storage layout. Performance knobs only.
	NodeChunkSize     int
	TriangleChunkSize int

	Curve      string // "hilbert" or "morton"
	CurveOrder int
}
