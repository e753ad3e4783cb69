package tide

import (
	"math"
	"time"

	"currents-api/internal/logger"
)

// Astronomical is the built-in Corrector: Schureman-style equilibrium
// arguments and nodal factors for the standard eight ADCIRC constituents,
// derived from the mean longitudes of the moon, sun, lunar perigee and the
// ascending lunar node.
//
// The reference latitude is accepted for interface compatibility; this
// approximation does not apply the latitude-weighted satellite corrections a
// full tide-table provider would, and the factors here agree with those to
// within a fraction of a percent for the constituents covered.
type Astronomical struct{}

var j2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// astro holds the mean astronomical longitudes at an instant, in degrees.
type astro struct {
	s  float64 // moon
	h  float64 // sun
	p  float64 // lunar perigee
	n  float64 // ascending lunar node
	t0 float64 // hour angle of the mean sun, 15 deg per UT hour
}

func astroArgs(t time.Time) astro {
	t = t.UTC()
	days := t.Sub(j2000).Hours() / 24
	T := days / 36525 // Julian centuries since J2000
	secOfDay := float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())*1e-9
	return astro{
		s:  math.Mod(218.3164477+481267.88123421*T, 360),
		h:  math.Mod(280.46646+36000.76983*T, 360),
		p:  math.Mod(83.3532465+4069.0137287*T, 360),
		n:  math.Mod(125.04452-1934.136261*T, 360),
		t0: secOfDay / 3600 * 15,
	}
}

// VUF returns (v, u, f) per provider key at the given instant. Keys follow
// the standard table in tide.go; a key outside it yields the neutral triple
// (0, 0, 1) so an unmapped constituent contributes its raw cosine term.
func (Astronomical) VUF(t time.Time, keys []int, refLat float64) ([]VUF, error) {
	_ = refLat
	a := astroArgs(t)
	nRad := deg2rad(a.n)

	// Lunar time angle.
	tau := a.t0 - a.s + a.h

	// Nodal factors shared by the lunar semidiurnal family.
	fM2 := 1.0004 - 0.0373*math.Cos(nRad) + 0.0002*math.Cos(2*nRad)
	uM2 := -2.14 * math.Sin(nRad) // degrees

	out := make([]VUF, len(keys))
	for i, k := range keys {
		var vDeg, uDeg, f float64
		switch k {
		case 0: // M2
			vDeg, uDeg, f = 2*tau, uM2, fM2
		case 1: // S2
			vDeg, uDeg, f = 2*a.t0, 0, 1
		case 2: // N2
			vDeg, uDeg, f = 2*tau-a.s+a.p, uM2, fM2
		case 3: // K1
			vDeg = a.t0 + a.h - 90
			uDeg = -8.86*math.Sin(nRad) + 0.68*math.Sin(2*nRad) - 0.07*math.Sin(3*nRad)
			f = 1.0060 + 0.1150*math.Cos(nRad) - 0.0088*math.Cos(2*nRad) + 0.0006*math.Cos(3*nRad)
		case 4: // O1
			vDeg = tau - a.s + 90
			uDeg = 10.80*math.Sin(nRad) - 1.34*math.Sin(2*nRad) + 0.19*math.Sin(3*nRad)
			f = 1.0089 + 0.1871*math.Cos(nRad) - 0.0147*math.Cos(2*nRad) + 0.0014*math.Cos(3*nRad)
		case 5: // P1
			vDeg, uDeg, f = a.t0-a.h+90, 0, 1
		case 6: // M4
			vDeg, uDeg, f = 4*tau, 2*uM2, fM2*fM2
		case 7: // M6
			vDeg, uDeg, f = 6*tau, 3*uM2, fM2*fM2*fM2
		default:
			logger.L().Debug("nodal_neutral_key", "key", k)
			vDeg, uDeg, f = 0, 0, 1
		}
		out[i] = VUF{
			V: deg2rad(math.Mod(vDeg, 360)),
			U: deg2rad(uDeg),
			F: f,
		}
	}
	return out, nil
}
