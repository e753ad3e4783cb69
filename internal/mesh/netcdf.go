package mesh

import (
	"fmt"
	"os"
	"strings"

	"currents-api/internal/logger"

	"github.com/ctessum/cdf"
)

// ReadNetCDF loads a raw ADCIRC constituent mesh from a NetCDF3 file.
//
// Expected variables: lat, lon, depth, elements (or element/ele, shape [M,3],
// 0- or 1-based), u_amp/v_amp/u_phase/v_phase (shape [N,C], optionally with a
// leading depth-averaged dimension), tidefreqs [C] and constituent_names (or
// tidenames) as a fixed-width char array.
//
// want selects a constituent subset by name, preserving the given order;
// names absent from the file are logged and skipped. A nil want keeps the
// file's full constituent set.
func ReadNetCDF(path string, want []string) (*Mesh, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMalformedMesh, path, err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrMalformedMesh, path, err)
	}

	m := &Mesh{}
	if m.Lat, err = readFloats(f, "lat"); err != nil {
		return nil, err
	}
	if m.Lon, err = readFloats(f, "lon"); err != nil {
		return nil, err
	}
	if m.Depth, err = readFloats(f, "depth"); err != nil {
		return nil, err
	}
	n := len(m.Lat)

	if m.Triangles, err = readConnectivity(f, n); err != nil {
		return nil, err
	}
	if m.Freqs, err = readFloats(f, "tidefreqs"); err != nil {
		return nil, err
	}
	if m.Names, err = readNames(f); err != nil {
		return nil, err
	}
	c := len(m.Names)
	if len(m.Freqs) != c {
		return nil, fmt.Errorf("%w: %d constituent names but %d frequencies",
			ErrMalformedMesh, c, len(m.Freqs))
	}

	for _, v := range []struct {
		name string
		dst  *[]float64
	}{
		{"u_amp", &m.UAmp}, {"v_amp", &m.VAmp},
		{"u_phase", &m.UPhase}, {"v_phase", &m.VPhase},
	} {
		arr, err := readNodeMatrix(f, v.name, n, c)
		if err != nil {
			return nil, err
		}
		*v.dst = arr
	}

	if want != nil {
		if err := m.selectConstituents(want); err != nil {
			return nil, err
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// selectConstituents narrows the mesh to the named subset, gathering the
// matching columns out of every amplitude/phase matrix.
func (m *Mesh) selectConstituents(want []string) error {
	n := m.NumNodes()
	c := m.NumConstituents()
	var cols []int
	var names []string
	for _, w := range want {
		found := -1
		for j, have := range m.Names {
			if have == w {
				found = j
				break
			}
		}
		if found < 0 {
			logger.L().Warn("constituent_not_in_file", "name", w)
			continue
		}
		cols = append(cols, found)
		names = append(names, w)
	}
	if len(cols) == 0 {
		return fmt.Errorf("%w: none of the requested constituents present", ErrMalformedMesh)
	}
	freqs := make([]float64, len(cols))
	for j, col := range cols {
		freqs[j] = m.Freqs[col]
	}
	gather := func(src []float64) []float64 {
		dst := make([]float64, n*len(cols))
		for i := 0; i < n; i++ {
			for j, col := range cols {
				dst[i*len(cols)+j] = src[i*c+col]
			}
		}
		return dst
	}
	m.UAmp = gather(m.UAmp)
	m.VAmp = gather(m.VAmp)
	m.UPhase = gather(m.UPhase)
	m.VPhase = gather(m.VPhase)
	m.Names = names
	m.Freqs = freqs
	return nil
}

func readVar(f *cdf.File, name string) (interface{}, []int, error) {
	dims := f.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, nil, fmt.Errorf("%w: variable %q missing", ErrMalformedMesh, name)
	}
	nread := 1
	for _, d := range dims {
		nread *= d
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(nread)
	if _, err := r.Read(buf); err != nil {
		return nil, nil, fmt.Errorf("%w: read %q: %v", ErrMalformedMesh, name, err)
	}
	return buf, dims, nil
}

func readFloats(f *cdf.File, name string) ([]float64, error) {
	buf, _, err := readVar(f, name)
	if err != nil {
		return nil, err
	}
	return toFloat64(buf, name)
}

func toFloat64(buf interface{}, name string) ([]float64, error) {
	switch v := buf.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: variable %q has unsupported type %T",
			ErrMalformedMesh, name, buf)
	}
}

// readNodeMatrix reads an [N,C] matrix, tolerating a leading depth-averaged
// dimension ([D,N,C]: the first slab is taken, matching the source data where
// only the depth-averaged level is populated).
func readNodeMatrix(f *cdf.File, name string, n, c int) ([]float64, error) {
	buf, dims, err := readVar(f, name)
	if err != nil {
		return nil, err
	}
	vals, err := toFloat64(buf, name)
	if err != nil {
		return nil, err
	}
	want := n * c
	switch {
	case len(vals) == want:
		return vals, nil
	case len(dims) == 3 && dims[1] == n && dims[2] == c && len(vals) >= want:
		return vals[:want], nil
	default:
		return nil, fmt.Errorf("%w: %s has %d values (dims %v), want N*C=%d",
			ErrMalformedMesh, name, len(vals), dims, want)
	}
}

func readConnectivity(f *cdf.File, n int) ([]int32, error) {
	var buf interface{}
	var dims []int
	var err error
	for _, name := range []string{"elements", "element", "ele"} {
		buf, dims, err = readVar(f, name)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	var tri []int32
	switch v := buf.(type) {
	case []int32:
		tri = append([]int32(nil), v...)
	case []int64:
		tri = make([]int32, len(v))
		for i, x := range v {
			tri[i] = int32(x)
		}
	case []float64:
		tri = make([]int32, len(v))
		for i, x := range v {
			tri[i] = int32(x)
		}
	default:
		return nil, fmt.Errorf("%w: connectivity has unsupported type %T", ErrMalformedMesh, buf)
	}
	return normalizeConnectivity(tri, dims, n), nil
}

// normalizeConnectivity brings raw element data into the flat 0-based [M,3]
// form used everywhere else: [3,M] layouts are transposed and 1-based indexing
// is shifted down.
func normalizeConnectivity(tri []int32, dims []int, n int) []int32 {
	// A nodes-only mesh carries no connectivity.
	if len(tri) == 0 {
		return nil
	}
	if len(dims) == 2 && dims[0] == 3 && dims[1] != 3 {
		m := dims[1]
		t := make([]int32, len(tri))
		for i := 0; i < m; i++ {
			t[3*i] = tri[i]
			t[3*i+1] = tri[m+i]
			t[3*i+2] = tri[2*m+i]
		}
		tri = t
	}
	// ADCIRC connectivity is commonly 1-based.
	minV, maxV := tri[0], tri[0]
	for _, v := range tri {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	switch {
	case minV >= 1 && int(maxV) == n:
		for i := range tri {
			tri[i]--
		}
		logger.L().Debug("connectivity_one_based_shifted", "triangles", len(tri)/3)
	case minV >= 1:
		// Could be a 1-based file that never references node N, or a 0-based
		// file that never references node 0. Kept as-is; flag it for operators.
		logger.L().Warn("connectivity_base_ambiguous",
			"min_vertex", minV, "max_vertex", maxV, "nodes", n)
	}
	return tri
}

func readNames(f *cdf.File) ([]string, error) {
	var buf interface{}
	var dims []int
	var err error
	for _, name := range []string{"constituent_names", "tidenames"} {
		buf, dims, err = readVar(f, name)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	raw, ok := buf.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: constituent names have unsupported type %T",
			ErrMalformedMesh, buf)
	}
	if len(dims) != 2 || dims[1] == 0 {
		return nil, fmt.Errorf("%w: constituent names have dims %v, want [C,strlen]",
			ErrMalformedMesh, dims)
	}
	width := dims[1]
	names := make([]string, 0, dims[0])
	for i := 0; i < dims[0]; i++ {
		s := string(raw[i*width : (i+1)*width])
		s = strings.TrimRight(strings.TrimRight(s, "\x00"), " ")
		names = append(names, strings.TrimSpace(s))
	}
	return names, nil
}
