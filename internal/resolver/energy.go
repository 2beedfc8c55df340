package resolver

import (
	"fmt"
	"math"

	"polytrope/internal/logging"
	"polytrope/internal/substance"
	"polytrope/internal/thermo"
)

// celsiusToKelvin converts a pure-substance temperature to the absolute scale
// the entropy form of heat requires. Ideal-gas states already carry Kelvin.
const celsiusToKelvin = 273.15

// EnergyBalance is the per-unit-mass energy accounting of one resolved
// process. Work done by the system is positive. Units follow the substance:
// kJ/kg for W, Q, DeltaU, DeltaH; kJ/(kg K) for DeltaS.
type EnergyBalance struct {
	W      float64
	Q      float64
	DeltaU float64
	DeltaH float64
	DeltaS float64
}

func (e EnergyBalance) String() string {
	return fmt.Sprintf("W=%.4f Q=%.4f du=%.4f dh=%.4f ds=%.6f", e.W, e.Q, e.DeltaU, e.DeltaH, e.DeltaS)
}

// ComputeEnergy evaluates the process-specific work and heat for a resolved
// (state1, state2) pair. Callers reach this only through a Resolved session;
// evaluating against a faulted or partial state is a programming error, which
// is why the Session gates access rather than this function re-checking.
//
// Pressure-volume products need a unit bridge for water states (P in bar,
// 1 bar·m3/kg = 100 kJ/kg); ideal-gas states carry kPa and multiply through
// directly.
func ComputeEnergy(sub substance.Substance, c thermo.ProcessConstraint, s1, s2 thermo.StateVector) EnergyBalance {
	pvUnit := 100.0
	if sub.Kind() == substance.KindIdealGas {
		pvUnit = 1.0
	}

	e := EnergyBalance{
		DeltaU: s2.U - s1.U,
		DeltaH: s2.H - s1.H,
		DeltaS: s2.S - s1.S,
	}

	switch c.Kind {
	case thermo.ProcessIsobaric:
		e.W = c.P1 * (s2.V - s1.V) * pvUnit
		e.Q = e.DeltaU + e.W

	case thermo.ProcessIsothermal:
		if gas, ok := sub.(*substance.IdealGas); ok {
			e.W = gas.R() * c.T1 * math.Log(s2.V/s1.V)
			e.Q = e.DeltaU + e.W
		} else {
			tK := c.T1 + celsiusToKelvin
			e.Q = tK * e.DeltaS
			e.W = e.Q - e.DeltaU
		}

	case thermo.ProcessIsochoric:
		e.W = 0
		e.Q = e.DeltaU

	case thermo.ProcessAdiabatic:
		e.Q = 0
		e.W = -e.DeltaU

	case thermo.ProcessPolytropic:
		if math.Abs(c.N-1) < nearUnity {
			// P·v = const along the path, the isothermal limit.
			e.W = c.P1 * c.V1 * math.Log(s2.V/s1.V) * pvUnit
		} else {
			e.W = (c.P1*c.V1 - s2.P*s2.V) * pvUnit / (c.N - 1)
		}
		e.Q = e.DeltaU + e.W
	}

	logging.Energy("%s: %s", c, e)
	return e
}
