package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Space-filling-curve keys over a quantized lat/lon grid. Coordinates are
// normalized against the mesh's own extent (not a global reference), which
// spends the full grid resolution on the actual data.

// DefaultCurveOrder gives a 65536 x 65536 grid.
const DefaultCurveOrder = 16

const (
	CurveHilbert = "hilbert"
	CurveMorton  = "morton"
)

// part1by1 spreads the 32 bits of v over the even bit positions of a uint64.
func part1by1(v uint32) uint64 {
	x := uint64(v)
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return x
}

// MortonKey interleaves the bits of the grid coordinates (x even, y odd).
func MortonKey(x, y uint32) uint64 {
	return part1by1(x) | part1by1(y)<<1
}

// HilbertKey converts grid coordinates to the distance along a Hilbert curve
// of the given order. Unlike Morton it has no long jumps between adjacent
// cells, which is what buys the better chunk locality.
func HilbertKey(x, y uint32, order int) uint64 {
	var d uint64
	hx, hy := uint64(x), uint64(y)
	for s := uint64(1) << (order - 1); s > 0; s >>= 1 {
		var rx, ry uint64
		if hx&s > 0 {
			rx = 1
		}
		if hy&s > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		// Rotate the quadrant so the sub-curve orientation is preserved.
		if ry == 0 {
			if rx == 1 {
				hx = s - 1 - hx
				hy = s - 1 - hy
			}
			hx, hy = hy, hx
		}
	}
	return d
}

// quantize maps v in [lo, hi] onto [0, 2^order - 1]; out-of-range values clip
// to the grid edge.
func quantize(v, lo, hi float64, order int) uint32 {
	max := float64(uint64(1)<<order - 1)
	if hi <= lo {
		return 0
	}
	g := (v - lo) / (hi - lo) * max
	if g < 0 {
		g = 0
	}
	if g > max {
		g = max
	}
	return uint32(g)
}

// SpatialKeys computes one curve key per node. Longitude maps to the grid x
// axis, latitude to y.
func SpatialKeys(lat, lon []float64, curve string, order int) ([]uint64, error) {
	if order <= 0 || order > 32 {
		return nil, fmt.Errorf("%w: curve order %d outside (0,32]", ErrMalformedMesh, order)
	}
	latMin, latMax := floats.Min(lat), floats.Max(lat)
	lonMin, lonMax := floats.Min(lon), floats.Max(lon)
	keys := make([]uint64, len(lat))
	switch curve {
	case CurveHilbert:
		for i := range lat {
			x := quantize(lon[i], lonMin, lonMax, order)
			y := quantize(lat[i], latMin, latMax, order)
			keys[i] = HilbertKey(x, y, order)
		}
	case CurveMorton:
		for i := range lat {
			x := quantize(lon[i], lonMin, lonMax, order)
			y := quantize(lat[i], latMin, latMax, order)
			keys[i] = MortonKey(x, y)
		}
	default:
		return nil, fmt.Errorf("%w: unknown curve %q", ErrMalformedMesh, curve)
	}
	return keys, nil
}

// MeanConsecutiveDistance measures spatial locality of a node ordering: the
// mean planar lat/lon distance between consecutive nodes. Lower means nodes
// adjacent in storage are adjacent on the map, so range reads touch fewer
// chunks.
func MeanConsecutiveDistance(lat, lon []float64) float64 {
	if len(lat) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(lat); i++ {
		dLat := lat[i] - lat[i-1]
		dLon := lon[i] - lon[i-1]
		sum += math.Sqrt(dLat*dLat + dLon*dLon)
	}
	return sum / float64(len(lat)-1)
}
