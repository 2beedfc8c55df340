package substance

import (
	"math"

	"polytrope/internal/thermo"
)

// Classifier places a candidate state relative to the saturation curve using
// fixed absolute tolerance bands. The bands absorb numeric round-trip error
// from the oracle and from user-entered decimals; exact equality on floating
// data is unreliable, so the widths must never be zero.
type Classifier struct {
	// TempBand is the half-width of the saturated band on the temperature
	// axis.
	TempBand float64

	// PressBand is the half-width on the pressure axis.
	PressBand float64
}

// NewClassifier builds a classifier from band half-widths.
func NewClassifier(tempBand, pressBand float64) Classifier {
	return Classifier{TempBand: tempBand, PressBand: pressBand}
}

// Classify compares the candidate against the envelope on the given axis.
// Tie-break rule: callers pass axis = temperature when a pinned pressure is
// known (compare T against Tsat(P)), and axis = pressure when only a pinned
// temperature is known (compare P against Psat(T)).
//
// The same repeated input always classifies the same way: inside the band is
// saturated, outside is strictly one single-phase region.
func (c Classifier) Classify(candidate thermo.StateVector, env thermo.SaturationEnvelope, axis thermo.Quantity) thermo.Phase {
	switch axis {
	case thermo.QuantityTemperature:
		switch {
		case math.Abs(candidate.T-env.Tsat) <= c.TempBand:
			return thermo.PhaseSaturated
		case candidate.T > env.Tsat:
			return thermo.PhaseSuperheated
		default:
			return thermo.PhaseSubcooled
		}
	case thermo.QuantityPressure:
		switch {
		case math.Abs(candidate.P-env.Psat) <= c.PressBand:
			return thermo.PhaseSaturated
		case candidate.P < env.Psat:
			return thermo.PhaseSuperheated
		default:
			return thermo.PhaseSubcooled
		}
	default:
		return thermo.PhaseUnknown
	}
}
