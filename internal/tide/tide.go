// Package tide reconstructs instantaneous current velocity from per-node
// harmonic constituents: one cosine term per constituent, scaled by the
// time-dependent nodal correction triple (v, u, f) that an injected Corrector
// supplies.
package tide

import (
	"fmt"
	"math"
	"time"

	"currents-api/internal/logger"
)

// ReferenceEpoch is the fixed time origin of the stored phases
// (ADCIRC convention, 2000-01-01T00:00:00Z).
var ReferenceEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// VUF is one constituent's nodal correction at an instant: equilibrium
// argument V and Greenwich phase lag U in radians, amplitude factor F
// dimensionless. It varies with time and reference latitude only, never per
// node, so one triple per constituent serves the whole result set.
type VUF struct {
	V, U, F float64
}

// Corrector produces nodal corrections for provider-specific constituent
// keys. Implementations must be pure: same inputs, same triples. Injected so
// tests can pin fixed values.
type Corrector interface {
	VUF(t time.Time, keys []int, refLat float64) ([]VUF, error)
}

// standardKeys maps the standard ADCIRC constituent names to the provider's
// keying scheme.
var standardKeys = map[string]int{
	"M2": 0, // principal lunar semidiurnal
	"S2": 1, // principal solar semidiurnal
	"N2": 2, // larger lunar elliptic semidiurnal
	"K1": 3, // lunisolar diurnal
	"O1": 4, // lunar diurnal
	"P1": 5, // solar diurnal
	"M4": 6, // shallow-water overtide
	"M6": 7, // shallow-water overtide
}

// ResolveKeys maps constituent names to provider keys. Two-tier: exact name
// match first, otherwise the position in the list as a sequential fallback so
// a partially-mapped dataset stays usable. Fallbacks are logged, and a
// fallback landing on a key another constituent already claimed is logged
// louder, since that pairing is suspect, but computation continues.
func ResolveKeys(names []string) []int {
	keys := make([]int, len(names))
	used := make(map[int]string, len(names))
	for i, name := range names {
		k, ok := standardKeys[name]
		if !ok {
			k = i
			logger.L().Warn("constituent_fallback_index", "name", name, "key", k)
		}
		if prev, clash := used[k]; clash {
			logger.L().Warn("constituent_fallback_collision",
				"name", name, "key", k, "conflicts_with", prev)
		}
		used[k] = name
		keys[i] = k
	}
	return keys
}

// Synthesizer evaluates the harmonic sum for a fixed constituent set. Build
// one per loaded mesh and reuse it across requests; it is stateless beyond
// the resolved keys.
type Synthesizer struct {
	corrector Corrector
	names     []string
	freqs     []float64 // rad/s, same order as names
	keys      []int
}

// NewSynthesizer resolves the constituent keys once up front.
func NewSynthesizer(names []string, freqs []float64, c Corrector) *Synthesizer {
	return &Synthesizer{
		corrector: c,
		names:     names,
		freqs:     freqs,
		keys:      ResolveKeys(names),
	}
}

// Predict computes instantaneous velocities for the selected nodes at t.
//
// uAmp/vAmp/uPhase/vPhase are the full flat node-by-constituent matrices with
// the given stride (phases in degrees); nodes lists the selected row indices,
// and output position k corresponds to nodes[k]. The constituent loop is the
// outer loop with a fixed order, which keeps the floating-point summation
// order (and therefore the result) bit-reproducible.
func (s *Synthesizer) Predict(uAmp, vAmp, uPhase, vPhase []float64, stride int, nodes []int32, t time.Time, refLat float64) (uVel, vVel []float64, err error) {
	if stride != len(s.names) {
		return nil, nil, fmt.Errorf("constituent stride %d does not match %d declared constituents", stride, len(s.names))
	}
	vuf, err := s.corrector.VUF(t.UTC(), s.keys, refLat)
	if err != nil {
		return nil, nil, fmt.Errorf("nodal corrections: %w", err)
	}
	tSec := t.UTC().Sub(ReferenceEpoch).Seconds()

	uVel = make([]float64, len(nodes))
	vVel = make([]float64, len(nodes))
	for i := range s.names {
		base := vuf[i].V + s.freqs[i]*tSec + vuf[i].U
		f := vuf[i].F
		for k, node := range nodes {
			row := int(node) * stride
			uVel[k] += f * uAmp[row+i] * math.Cos(base-deg2rad(uPhase[row+i]))
			vVel[k] += f * vAmp[row+i] * math.Cos(base-deg2rad(vPhase[row+i]))
		}
	}
	return uVel, vVel, nil
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
