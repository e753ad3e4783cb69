package mesh

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMesh builds a small valid raw mesh with one constituent per node
// position, deterministic from the seed.
func testMesh(n int, seed int64) *Mesh {
	rng := rand.New(rand.NewSource(seed))
	m := &Mesh{
		Freqs: []float64{1.405189e-4, 1.454441e-4},
		Names: []string{"M2", "S2"},
	}
	for i := 0; i < n; i++ {
		m.Lat = append(m.Lat, 20+10*rng.Float64())
		m.Lon = append(m.Lon, -85+10*rng.Float64())
		m.Depth = append(m.Depth, 100*rng.Float64())
		for c := 0; c < 2; c++ {
			m.UAmp = append(m.UAmp, rng.Float64())
			m.VAmp = append(m.VAmp, rng.Float64())
			m.UPhase = append(m.UPhase, 360*rng.Float64())
			m.VPhase = append(m.VPhase, 360*rng.Float64())
		}
	}
	// A fan of triangles over consecutive node triples.
	for i := 0; i+2 < n; i += 3 {
		m.Triangles = append(m.Triangles, int32(i), int32(i+1), int32(i+2))
	}
	return m
}

func TestBuildPermutesConsistently(t *testing.T) {
	raw := testMesh(300, 7)
	s, err := Build(raw, BuildOptions{})
	require.NoError(t, err)

	require.Equal(t, raw.NumNodes(), s.NumNodes())
	require.Equal(t, raw.NumTriangles(), s.NumTriangles())
	require.Equal(t, CurveHilbert, s.Curve)
	require.Equal(t, DefaultCurveOrder, s.CurveOrder)

	// Provenance: OriginalIndex is a permutation, and every per-node value
	// travelled with its node.
	seen := make(map[int64]bool)
	c := raw.NumConstituents()
	for newIdx, origIdx := range s.OriginalIndex {
		require.False(t, seen[origIdx])
		seen[origIdx] = true
		assert.Equal(t, raw.Lat[origIdx], s.Lat[newIdx])
		assert.Equal(t, raw.Lon[origIdx], s.Lon[newIdx])
		assert.Equal(t, raw.Depth[origIdx], s.Depth[newIdx])
		for j := 0; j < c; j++ {
			assert.Equal(t, raw.UAmp[int(origIdx)*c+j], s.UAmp[newIdx*c+j])
			assert.Equal(t, raw.VPhase[int(origIdx)*c+j], s.VPhase[newIdx*c+j])
		}
	}

	// Keys ascend along the sorted order.
	keys, err := SpatialKeys(s.Lat, s.Lon, s.Curve, s.CurveOrder)
	require.NoError(t, err)
	for i := 1; i < len(keys); i++ {
		assert.LessOrEqual(t, keys[i-1], keys[i])
	}
}

func TestBuildRemapsTriangles(t *testing.T) {
	raw := testMesh(60, 3)
	s, err := Build(raw, BuildOptions{})
	require.NoError(t, err)

	// Each remapped triangle must reference the same geometric vertices.
	for i := 0; i < s.NumTriangles(); i++ {
		ra, rb, rc := raw.Triangle(i)
		na, nb, nc := s.Triangle(i)
		assert.Equal(t, raw.Lat[ra], s.Lat[na])
		assert.Equal(t, raw.Lat[rb], s.Lat[nb])
		assert.Equal(t, raw.Lat[rc], s.Lat[nc])
		assert.Equal(t, raw.Lon[ra], s.Lon[na])
		for _, v := range []int32{na, nb, nc} {
			assert.GreaterOrEqual(t, v, int32(0))
			assert.Less(t, int(v), s.NumNodes())
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	raw1 := testMesh(200, 11)
	raw2 := testMesh(200, 11)
	s1, err := Build(raw1, BuildOptions{})
	require.NoError(t, err)
	s2, err := Build(raw2, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestBuildStableTies(t *testing.T) {
	// Nodes sharing one grid cell keep their source order.
	raw := &Mesh{
		Lat:    []float64{5, 5, 5, 50},
		Lon:    []float64{5, 5, 5, 50},
		Depth:  []float64{1, 2, 3, 4},
		Freqs:  []float64{1e-4},
		Names:  []string{"M2"},
		UAmp:   []float64{1, 2, 3, 4},
		VAmp:   []float64{1, 2, 3, 4},
		UPhase: []float64{0, 0, 0, 0},
		VPhase: []float64{0, 0, 0, 0},
	}
	s, err := Build(raw, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3}, s.OriginalIndex)
}

func TestBuildRejectsMalformed(t *testing.T) {
	t.Run("ragged arrays", func(t *testing.T) {
		raw := testMesh(30, 1)
		raw.Lon = raw.Lon[:len(raw.Lon)-1]
		_, err := Build(raw, BuildOptions{})
		require.ErrorIs(t, err, ErrMalformedMesh)
	})
	t.Run("non-finite coordinate", func(t *testing.T) {
		raw := testMesh(30, 1)
		raw.Lat[5] = math.NaN()
		_, err := Build(raw, BuildOptions{})
		require.ErrorIs(t, err, ErrMalformedMesh)
	})
	t.Run("frequency mismatch", func(t *testing.T) {
		raw := testMesh(30, 1)
		raw.Freqs = raw.Freqs[:1]
		_, err := Build(raw, BuildOptions{})
		require.ErrorIs(t, err, ErrMalformedMesh)
	})
	t.Run("vertex out of range", func(t *testing.T) {
		raw := testMesh(30, 1)
		raw.Triangles[1] = 99
		_, err := Build(raw, BuildOptions{})
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	})
	t.Run("degenerate triangle", func(t *testing.T) {
		raw := testMesh(30, 1)
		raw.Triangles[1] = raw.Triangles[0]
		_, err := Build(raw, BuildOptions{})
		require.ErrorIs(t, err, ErrMalformedMesh)
	})
	t.Run("empty mesh", func(t *testing.T) {
		_, err := Build(&Mesh{}, BuildOptions{})
		require.ErrorIs(t, err, ErrMalformedMesh)
	})
}
