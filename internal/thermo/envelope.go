package thermo

import "fmt"

// SaturationEnvelope is the immutable two-phase boundary snapshot at one fixed
// pressure or temperature. It is valid at exactly the axis value it was
// fetched for; the resolver refetches it whenever the pinned axis moves.
type SaturationEnvelope struct {
	Tsat float64 // saturation temperature
	Psat float64 // saturation pressure

	Vf, Vg float64 // specific volume at the liquid/vapor boundary
	Uf, Ug float64 // internal energy at the boundary
	Hf     float64 // enthalpy of saturated liquid
	Hfg    float64 // enthalpy of vaporization
	Sf, Sg float64 // entropy at the boundary
}

// Hg returns the saturated-vapor enthalpy.
func (e SaturationEnvelope) Hg() float64 { return e.Hf + e.Hfg }

// Validate checks the monotonic boundary ordering invariants. A violation
// means the data source is corrupt; callers must surface the error and refetch
// rather than clamp.
func (e SaturationEnvelope) Validate() error {
	switch {
	case !(e.Vg > e.Vf):
		return &InconsistentError{Reason: fmt.Sprintf("vg (%g) must exceed vf (%g)", e.Vg, e.Vf)}
	case !(e.Ug > e.Uf):
		return &InconsistentError{Reason: fmt.Sprintf("ug (%g) must exceed uf (%g)", e.Ug, e.Uf)}
	case !(e.Hfg > 0):
		return &InconsistentError{Reason: fmt.Sprintf("hfg (%g) must be positive", e.Hfg)}
	case !(e.Sg > e.Sf):
		return &InconsistentError{Reason: fmt.Sprintf("sg (%g) must exceed sf (%g)", e.Sg, e.Sf)}
	}
	return nil
}

// Mix applies the linear two-phase mixing law at quality x and returns the
// fully populated saturated state at this envelope's axis. x must already be
// validated to [0,1].
func (e SaturationEnvelope) Mix(x float64) StateVector {
	return StateVector{
		T:     e.Tsat,
		P:     e.Psat,
		V:     e.Vf + x*(e.Vg-e.Vf),
		U:     e.Uf + x*(e.Ug-e.Uf),
		H:     e.Hf + x*e.Hfg,
		S:     e.Sf + x*(e.Sg-e.Sf),
		X:     x,
		Phase: PhaseSaturated,
	}
}

// QualityFromVolume inverts the mixing law for a specific volume inside the
// dome. The second return is false when v lies outside [vf, vg].
func (e SaturationEnvelope) QualityFromVolume(v float64) (float64, bool) {
	if v < e.Vf || v > e.Vg || e.Vg == e.Vf {
		return 0, false
	}
	return (v - e.Vf) / (e.Vg - e.Vf), true
}

// QualityFromEntropy inverts the mixing law for an entropy inside the dome.
func (e SaturationEnvelope) QualityFromEntropy(s float64) (float64, bool) {
	if s < e.Sf || s > e.Sg || e.Sg == e.Sf {
		return 0, false
	}
	return (s - e.Sf) / (e.Sg - e.Sf), true
}

// QualityFromInternalEnergy inverts the mixing law for an internal energy
// inside the dome.
func (e SaturationEnvelope) QualityFromInternalEnergy(u float64) (float64, bool) {
	if u < e.Uf || u > e.Ug || e.Ug == e.Uf {
		return 0, false
	}
	return (u - e.Uf) / (e.Ug - e.Uf), true
}
