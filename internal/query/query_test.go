package query

import (
	"math/rand"
	"testing"

	"currents-api/internal/mesh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cornerMesh has nodes at (0,0) (0,1) (1,0) (2,2) with two triangles: one on
// the first three nodes, one touching the far node.
func cornerMesh(t *testing.T) *mesh.Sorted {
	t.Helper()
	raw := &mesh.Mesh{
		Lat:       []float64{0, 0, 1, 2},
		Lon:       []float64{0, 1, 0, 2},
		Depth:     []float64{10, 20, 30, 40},
		Triangles: []int32{0, 1, 2, 1, 2, 3},
		Freqs:     []float64{1.405189e-4},
		Names:     []string{"M2"},
		UAmp:      []float64{1, 2, 3, 4},
		VAmp:      []float64{1, 2, 3, 4},
		UPhase:    []float64{0, 0, 0, 0},
		VPhase:    []float64{0, 0, 0, 0},
	}
	s, err := mesh.Build(raw, mesh.BuildOptions{})
	require.NoError(t, err)
	return s
}

func TestQueryDropsStraddlingTriangles(t *testing.T) {
	s := cornerMesh(t)
	e := NewEngine(s, 0)

	box, err := NewBBox(-0.5, 1.5, -0.5, 1.5)
	require.NoError(t, err)
	res, err := e.Query(box)
	require.NoError(t, err)

	require.Equal(t, 3, res.NumNodes())
	// The triangle on the three inside nodes survives; the one touching the
	// outside node is dropped whole.
	require.Equal(t, 1, res.NumTriangles())

	// Compact connectivity references the same geometry as the full mesh.
	inside := map[[2]float64]bool{{0, 0}: true, {0, 1}: true, {1, 0}: true}
	for k := range res.Selected {
		assert.True(t, inside[[2]float64{res.Lat[k], res.Lon[k]}])
	}
	seen := map[[2]float64]bool{}
	for _, v := range res.Triangles {
		require.GreaterOrEqual(t, v, int32(0))
		require.Less(t, int(v), res.NumNodes())
		seen[[2]float64{res.Lat[v], res.Lon[v]}] = true
	}
	assert.Equal(t, inside, seen)
}

func TestQueryEmptyResult(t *testing.T) {
	e := NewEngine(cornerMesh(t), 0)
	box, err := NewBBox(50, 60, 50, 60)
	require.NoError(t, err)
	_, err = e.Query(box)
	require.ErrorIs(t, err, ErrEmptyResult)
}

func TestQueryTooLarge(t *testing.T) {
	e := NewEngine(cornerMesh(t), 2)
	box, err := NewBBox(-0.5, 1.5, -0.5, 1.5)
	require.NoError(t, err)
	_, err = e.Query(box)
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 3, tooLarge.Count)
	assert.Equal(t, 2, tooLarge.Limit)
}

func TestQueryBoundaryInclusive(t *testing.T) {
	e := NewEngine(cornerMesh(t), 0)
	// Box edges exactly on node coordinates: closed intervals keep them.
	box, err := NewBBox(0, 0, 0, 1)
	require.NoError(t, err)
	res, err := e.Query(box)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NumNodes())
}

func TestQueryFullExtent(t *testing.T) {
	s := cornerMesh(t)
	e := NewEngine(s, 0)
	box, err := NewBBox(-90, 90, -180, 180)
	require.NoError(t, err)
	res, err := e.Query(box)
	require.NoError(t, err)
	assert.Equal(t, s.NumNodes(), res.NumNodes())
	assert.Equal(t, s.NumTriangles(), res.NumTriangles())
}

func TestQueryResultContainment(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	raw := &mesh.Mesh{
		Freqs: []float64{1.405189e-4},
		Names: []string{"M2"},
	}
	const n = 500
	for i := 0; i < n; i++ {
		raw.Lat = append(raw.Lat, 20+10*rng.Float64())
		raw.Lon = append(raw.Lon, -85+10*rng.Float64())
		raw.Depth = append(raw.Depth, 100*rng.Float64())
		raw.UAmp = append(raw.UAmp, rng.Float64())
		raw.VAmp = append(raw.VAmp, rng.Float64())
		raw.UPhase = append(raw.UPhase, 360*rng.Float64())
		raw.VPhase = append(raw.VPhase, 360*rng.Float64())
	}
	for i := 0; i+2 < n; i += 3 {
		raw.Triangles = append(raw.Triangles, int32(i), int32(i+1), int32(i+2))
	}
	s, err := mesh.Build(raw, mesh.BuildOptions{})
	require.NoError(t, err)
	e := NewEngine(s, 0)

	box, err := NewBBox(24, 27, -83, -79)
	require.NoError(t, err)
	res, err := e.Query(box)
	require.NoError(t, err)

	// Every returned node is inside the box; every inside node is returned.
	want := 0
	for i := 0; i < s.NumNodes(); i++ {
		if box.Contains(s.Lat[i], s.Lon[i]) {
			want++
		}
	}
	assert.Equal(t, want, res.NumNodes())
	for k := range res.Selected {
		assert.True(t, box.Contains(res.Lat[k], res.Lon[k]))
	}

	// Selected is ascending, so identical queries are byte-identical.
	for k := 1; k < len(res.Selected); k++ {
		assert.Less(t, res.Selected[k-1], res.Selected[k])
	}
	res2, err := e.Query(box)
	require.NoError(t, err)
	assert.Equal(t, res, res2)
}

func TestNewBBoxValidation(t *testing.T) {
	_, err := NewBBox(5, 2, 0, 1)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewBBox(0, 1, 3, -3)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewBBox(-91, 0, 0, 1)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewBBox(0, 1, 0, 181)
	require.ErrorIs(t, err, ErrInvalidParameter)
	b, err := NewBBox(1, 1, 2, 2)
	require.NoError(t, err)
	assert.True(t, b.Contains(1, 2))
}
