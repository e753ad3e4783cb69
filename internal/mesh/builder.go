package mesh

import (
	"fmt"
	"sort"

	"currents-api/internal/logger"
)

// BuildOptions tune the spatial sort and the storage chunking. Zero values
// take the defaults below.
type BuildOptions struct {
	Curve             string // CurveHilbert (default) or CurveMorton
	CurveOrder        int    // default DefaultCurveOrder
	NodeChunkSize     int    // default 50_000
	TriangleChunkSize int    // default 100_000
}

const (
	defaultNodeChunkSize     = 50_000
	defaultTriangleChunkSize = 100_000
)

func (o BuildOptions) withDefaults() BuildOptions {
	if o.Curve == "" {
		o.Curve = CurveHilbert
	}
	if o.CurveOrder == 0 {
		o.CurveOrder = DefaultCurveOrder
	}
	if o.NodeChunkSize <= 0 {
		o.NodeChunkSize = defaultNodeChunkSize
	}
	if o.TriangleChunkSize <= 0 {
		o.TriangleChunkSize = defaultTriangleChunkSize
	}
	return o
}

// Build produces a Sorted mesh from raw input: key every node on the
// space-filling curve, stable-sort by key (ties keep source order, so the
// permutation is reproducible), permute all per-node arrays and remap
// triangle connectivity through the inverse permutation.
//
// All-or-nothing: any structural defect aborts before output exists. This is
// an operator-run offline step where a partial store is worse than no store.
func Build(raw *Mesh, opt BuildOptions) (*Sorted, error) {
	opt = opt.withDefaults()
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	n := raw.NumNodes()
	c := raw.NumConstituents()

	keys, err := SpatialKeys(raw.Lat, raw.Lon, opt.Curve, opt.CurveOrder)
	if err != nil {
		return nil, err
	}

	perm := make([]int, n) // perm[new] = original
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return keys[perm[a]] < keys[perm[b]] })

	s := &Sorted{
		Mesh: Mesh{
			Lat:    applyPerm(raw.Lat, perm, 1),
			Lon:    applyPerm(raw.Lon, perm, 1),
			Depth:  applyPerm(raw.Depth, perm, 1),
			UAmp:   applyPerm(raw.UAmp, perm, c),
			VAmp:   applyPerm(raw.VAmp, perm, c),
			UPhase: applyPerm(raw.UPhase, perm, c),
			VPhase: applyPerm(raw.VPhase, perm, c),
			Freqs:  append([]float64(nil), raw.Freqs...),
			Names:  append([]string(nil), raw.Names...),
		},
		NodeChunkSize:     opt.NodeChunkSize,
		TriangleChunkSize: opt.TriangleChunkSize,
		Curve:             opt.Curve,
		CurveOrder:        opt.CurveOrder,
	}

	s.OriginalIndex = make([]int64, n)
	inverse := make([]int32, n) // inverse[original] = new
	for newIdx, origIdx := range perm {
		s.OriginalIndex[newIdx] = int64(origIdx)
		inverse[origIdx] = int32(newIdx)
	}

	s.Triangles = make([]int32, len(raw.Triangles))
	for i, v := range raw.Triangles {
		if v < 0 || int(v) >= n {
			return nil, fmt.Errorf("%w: triangle %d vertex %d with %d nodes",
				ErrIndexOutOfRange, i/3, v, n)
		}
		s.Triangles[i] = inverse[v]
	}

	logger.L().Info("mesh_sorted",
		"nodes", n,
		"triangles", s.NumTriangles(),
		"constituents", c,
		"curve", opt.Curve,
		"order", opt.CurveOrder,
		"mean_consecutive_deg", MeanConsecutiveDistance(s.Lat, s.Lon),
	)
	return s, nil
}

// applyPerm gathers rows of a flat row-major array into a new array in
// permutation order. stride is the row width (1 for scalar node arrays).
func applyPerm(src []float64, perm []int, stride int) []float64 {
	dst := make([]float64, len(src))
	for newIdx, origIdx := range perm {
		copy(dst[newIdx*stride:(newIdx+1)*stride], src[origIdx*stride:(origIdx+1)*stride])
	}
	return dst
}
