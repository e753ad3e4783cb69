// Package query is the in-memory bounding-box engine: it filters the sorted
// node arrays with a single mask pass, compacts the surviving indices and
// keeps only triangles whose three vertices all survive. It is a pure
// function of the immutable mesh plus the box, so any number of requests can
// run it concurrently without locks.
package query

import (
	"errors"
	"fmt"

	"currents-api/internal/mesh"
)

var (
	// ErrInvalidParameter marks a malformed bounding box or timestamp; the
	// request is rejected before any computation.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrEmptyResult means zero nodes matched; a not-found outcome, not a fault.
	ErrEmptyResult = errors.New("no nodes in bounding box")
)

// TooLargeError reports a match count above the configured ceiling, carrying
// the actual count so the caller can narrow the box.
type TooLargeError struct {
	Count int
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("too many nodes (%d, limit %d); use a smaller bounding box", e.Count, e.Limit)
}

// DefaultMaxNodes bounds response size and downstream synthesis cost.
const DefaultMaxNodes = 500_000

// BBox is a closed-interval geographic box. No wraparound handling across the
// antimeridian; comparisons are planar in degrees.
type BBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// NewBBox validates coordinate ranges and ordering.
func NewBBox(minLat, maxLat, minLon, maxLon float64) (BBox, error) {
	if minLat < -90 || maxLat > 90 || minLon < -180 || maxLon > 180 {
		return BBox{}, fmt.Errorf("%w: bounding box outside [-90,90]x[-180,180]", ErrInvalidParameter)
	}
	if minLat > maxLat || minLon > maxLon {
		return BBox{}, fmt.Errorf("%w: bounding box min exceeds max", ErrInvalidParameter)
	}
	return BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}, nil
}

// Contains reports whether the point satisfies the box's closed inequalities.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Result is the request-scoped sub-mesh. Node identity is the compact index
// [0, Count); Selected maps it back to the sorted-mesh index.
type Result struct {
	// Selected holds sorted-mesh indices of matching nodes in ascending
	// order; its position is the compact index.
	Selected []int32

	Lat   []float64
	Lon   []float64
	Depth []float64

	// Triangles is flat [K*3] connectivity referencing compact indices.
	Triangles []int32
}

func (r *Result) NumNodes() int     { return len(r.Selected) }
func (r *Result) NumTriangles() int { return len(r.Triangles) / 3 }

// Engine answers bounding-box queries against one immutable sorted mesh.
type Engine struct {
	m        *mesh.Sorted
	maxNodes int
}

// NewEngine binds an engine to a loaded mesh. maxNodes <= 0 takes
// DefaultMaxNodes.
func NewEngine(m *mesh.Sorted, maxNodes int) *Engine {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &Engine{m: m, maxNodes: maxNodes}
}

// Query selects the sub-mesh inside the box.
//
// Selection is one pass over the coordinate arrays filling a compact-index
// map: compact[i] >= 0 iff node i matched, and the value is its new index.
// The same array then answers the three-way triangle membership test by plain
// indexing, with no hashing and no per-triangle allocation. Compact indices preserve
// the sorted order, so results are deterministic for identical inputs.
func (e *Engine) Query(b BBox) (*Result, error) {
	m := e.m
	n := m.NumNodes()
	lat, lon := m.Lat, m.Lon

	compact := make([]int32, n)
	selected := make([]int32, 0, 1024)
	for i := 0; i < n; i++ {
		if lat[i] >= b.MinLat && lat[i] <= b.MaxLat && lon[i] >= b.MinLon && lon[i] <= b.MaxLon {
			compact[i] = int32(len(selected))
			selected = append(selected, int32(i))
		} else {
			compact[i] = -1
		}
	}
	if len(selected) == 0 {
		return nil, ErrEmptyResult
	}
	if len(selected) > e.maxNodes {
		return nil, &TooLargeError{Count: len(selected), Limit: e.maxNodes}
	}

	res := &Result{
		Selected: selected,
		Lat:      make([]float64, len(selected)),
		Lon:      make([]float64, len(selected)),
		Depth:    make([]float64, len(selected)),
	}
	for k, i := range selected {
		res.Lat[k] = m.Lat[i]
		res.Lon[k] = m.Lon[i]
		res.Depth[k] = m.Depth[i]
	}

	// A triangle survives only when all three vertices matched; anything
	// straddling the box edge is dropped whole, never clipped.
	tris := m.Triangles
	for t := 0; t+2 < len(tris); t += 3 {
		a, bb, c := compact[tris[t]], compact[tris[t+1]], compact[tris[t+2]]
		if a >= 0 && bb >= 0 && c >= 0 {
			res.Triangles = append(res.Triangles, a, bb, c)
		}
	}
	return res, nil
}
