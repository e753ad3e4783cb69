package mesh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeADCIRCFile writes a minimal constituent file in the layout the ADCIRC
// extraction produces: 1-based [M,3] connectivity, [N,C] node matrices and
// fixed-width constituent names.
func writeADCIRCFile(t *testing.T) string {
	t.Helper()
	const (
		n      = 6
		nele   = 4
		nc     = 3
		strlen = 4
	)
	h := cdf.NewHeader(
		[]string{"node", "nele", "three", "constituent", "strlen"},
		[]int{n, nele, 3, nc, strlen})
	for _, name := range []string{"lat", "lon", "depth"} {
		h.AddVariable(name, []string{"node"}, []float64{0})
	}
	h.AddVariable("elements", []string{"nele", "three"}, []int32{0})
	h.AddVariable("tidefreqs", []string{"constituent"}, []float64{0})
	h.AddVariable("constituent_names", []string{"constituent", "strlen"}, []byte{0})
	for _, name := range []string{"u_amp", "v_amp", "u_phase", "v_phase"} {
		h.AddVariable(name, []string{"node", "constituent"}, []float64{0})
	}
	h.Define()

	path := filepath.Join(t.TempDir(), "constituents.nc")
	ff, err := os.Create(path)
	require.NoError(t, err)
	f, err := cdf.Create(ff, h)
	require.NoError(t, err)

	write := func(name string, data interface{}) {
		end := f.Header.Lengths(name)
		w := f.Writer(name, make([]int, len(end)), end)
		_, err := w.Write(data)
		require.NoError(t, err, "write %s", name)
	}
	write("lat", []float64{25.0, 25.1, 25.2, 25.3, 25.4, 25.5})
	write("lon", []float64{-81.0, -81.1, -81.2, -81.3, -81.4, -81.5})
	write("depth", []float64{10, 20, 30, 40, 50, 60})
	// 1-based, as ADCIRC writes it.
	write("elements", []int32{
		1, 2, 3,
		2, 3, 4,
		3, 4, 5,
		4, 5, 6,
	})
	write("tidefreqs", []float64{1.405189e-4, 1.454441e-4, 7.292117e-5})
	write("constituent_names", []byte("M2  S2  K1  "))
	mat := make([]float64, n*nc)
	for i := range mat {
		mat[i] = float64(i)
	}
	write("u_amp", mat)
	write("v_amp", mat)
	write("u_phase", mat)
	write("v_phase", mat)

	require.NoError(t, ff.Close())
	return path
}

func TestReadNetCDF(t *testing.T) {
	m, err := ReadNetCDF(writeADCIRCFile(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 6, m.NumNodes())
	assert.Equal(t, 4, m.NumTriangles())
	assert.Equal(t, []string{"M2", "S2", "K1"}, m.Names)
	assert.Equal(t, []float64{25.0, 25.1, 25.2, 25.3, 25.4, 25.5}, m.Lat)

	// Connectivity came back 0-based.
	a, b, c := m.Triangle(0)
	assert.Equal(t, [3]int32{0, 1, 2}, [3]int32{a, b, c})
	a, b, c = m.Triangle(3)
	assert.Equal(t, [3]int32{3, 4, 5}, [3]int32{a, b, c})

	assert.Equal(t, float64(1*3+2), m.UAmp[1*3+2]) // row-major [N,C]
}

func TestReadNetCDFSubset(t *testing.T) {
	// Requesting a subset keeps the requested order and skips absent names.
	m, err := ReadNetCDF(writeADCIRCFile(t), []string{"K1", "M2", "Q1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"K1", "M2"}, m.Names)
	assert.Equal(t, []float64{7.292117e-5, 1.405189e-4}, m.Freqs)

	// Node 1's row gathered columns [K1, M2] out of [M2, S2, K1].
	assert.Equal(t, []float64{5, 3}, m.UAmp[2:4])
}

func TestReadNetCDFNoRequestedConstituents(t *testing.T) {
	_, err := ReadNetCDF(writeADCIRCFile(t), []string{"Q1"})
	require.ErrorIs(t, err, ErrMalformedMesh)
}

func TestNormalizeConnectivity(t *testing.T) {
	t.Run("nodes-only mesh", func(t *testing.T) {
		// Zero-length element data must come back empty, not panic.
		assert.Nil(t, normalizeConnectivity(nil, []int{0, 3}, 6))
		assert.Nil(t, normalizeConnectivity([]int32{}, []int{0, 3}, 6))
	})
	t.Run("one-based shift", func(t *testing.T) {
		got := normalizeConnectivity([]int32{1, 2, 3, 4, 5, 6}, []int{2, 3}, 6)
		assert.Equal(t, []int32{0, 1, 2, 3, 4, 5}, got)
	})
	t.Run("zero-based untouched", func(t *testing.T) {
		got := normalizeConnectivity([]int32{0, 1, 2, 3, 4, 5}, []int{2, 3}, 6)
		assert.Equal(t, []int32{0, 1, 2, 3, 4, 5}, got)
	})
	t.Run("ambiguous base untouched", func(t *testing.T) {
		// min>=1 but max<N: could be either base, so no shift is applied.
		got := normalizeConnectivity([]int32{1, 2, 3}, []int{1, 3}, 6)
		assert.Equal(t, []int32{1, 2, 3}, got)
	})
	t.Run("transposed layout", func(t *testing.T) {
		// [3,M] column order: vertices (0,1,2) and (1,2,3) stored columnwise.
		got := normalizeConnectivity([]int32{0, 1, 1, 2, 2, 3}, []int{3, 2}, 4)
		assert.Equal(t, []int32{0, 1, 2, 1, 2, 3}, got)
	})
}

func TestReadNetCDFMissingFile(t *testing.T) {
	_, err := ReadNetCDF(filepath.Join(t.TempDir(), "absent.nc"), nil)
	require.ErrorIs(t, err, ErrMalformedMesh)
}
