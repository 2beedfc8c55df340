package thermo

import (
	"fmt"
	"math"
	"strings"
)

// ProcessKind tags the physical equality tying state 1 to state 2.
type ProcessKind int

const (
	ProcessUnknown ProcessKind = iota
	ProcessIsobaric
	ProcessIsothermal
	ProcessIsochoric
	ProcessAdiabatic
	ProcessPolytropic
)

func (k ProcessKind) String() string {
	switch k {
	case ProcessIsobaric:
		return "isobaric"
	case ProcessIsothermal:
		return "isothermal"
	case ProcessIsochoric:
		return "isochoric"
	case ProcessAdiabatic:
		return "adiabatic"
	case ProcessPolytropic:
		return "polytropic"
	default:
		return "unknown"
	}
}

// Atom returns the Mangle name-constant form of the process kind.
func (k ProcessKind) Atom() string {
	return "/" + k.String()
}

// ParseProcessKind accepts the canonical names plus the labels the original
// input forms use ("constant pressure", "constant volume").
func ParseProcessKind(s string) (ProcessKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "isobaric", "constant pressure":
		return ProcessIsobaric, nil
	case "isothermal":
		return ProcessIsothermal, nil
	case "isochoric", "constant volume":
		return ProcessIsochoric, nil
	case "adiabatic", "isentropic":
		return ProcessAdiabatic, nil
	case "polytropic":
		return ProcessPolytropic, nil
	default:
		return ProcessUnknown, fmt.Errorf("unknown process %q", s)
	}
}

// ProcessConstraint holds the invariant quantity frozen from state 1 at
// process-selection time. The frozen values never change once the process is
// chosen; state 2 must satisfy the corresponding equality exactly before any
// phase-dependent derivation happens.
type ProcessConstraint struct {
	Kind ProcessKind

	P1 float64 // frozen for Isobaric and Polytropic
	T1 float64 // frozen for Isothermal
	V1 float64 // frozen for Isochoric and Polytropic
	S1 float64 // frozen for Adiabatic
	N  float64 // polytropic exponent
}

// NewProcessConstraint freezes the invariant quantity from state1. The
// polytropic exponent n is only consulted for ProcessPolytropic and must be
// positive there.
func NewProcessConstraint(kind ProcessKind, state1 StateVector, n float64) (ProcessConstraint, error) {
	c := ProcessConstraint{Kind: kind}
	switch kind {
	case ProcessIsobaric:
		c.P1 = state1.P
	case ProcessIsothermal:
		c.T1 = state1.T
	case ProcessIsochoric:
		c.V1 = state1.V
	case ProcessAdiabatic:
		c.S1 = state1.S
	case ProcessPolytropic:
		if n <= 0 || math.IsNaN(n) {
			return ProcessConstraint{}, &ValidationError{
				Field:  QuantityNone,
				Value:  n,
				Reason: "polytropic exponent must be positive",
			}
		}
		c.P1 = state1.P
		c.V1 = state1.V
		c.N = n
	default:
		return ProcessConstraint{}, fmt.Errorf("cannot freeze constraint for process %q", kind)
	}
	return c, nil
}

// Invariant returns the frozen quantity of the constraint as an oracle
// property. For Polytropic the primary invariant is reported as the frozen
// (P1, V1) pair's volume; callers use the exponent relation directly instead.
func (c ProcessConstraint) Invariant() Property {
	switch c.Kind {
	case ProcessIsobaric:
		return Property{Kind: QuantityPressure, Value: c.P1}
	case ProcessIsothermal:
		return Property{Kind: QuantityTemperature, Value: c.T1}
	case ProcessIsochoric:
		return Property{Kind: QuantityVolume, Value: c.V1}
	case ProcessAdiabatic:
		return Property{Kind: QuantityEntropy, Value: c.S1}
	case ProcessPolytropic:
		return Property{Kind: QuantityVolume, Value: c.V1}
	default:
		return Property{}
	}
}

func (c ProcessConstraint) String() string {
	switch c.Kind {
	case ProcessIsobaric:
		return fmt.Sprintf("isobaric(P1=%g)", c.P1)
	case ProcessIsothermal:
		return fmt.Sprintf("isothermal(T1=%g)", c.T1)
	case ProcessIsochoric:
		return fmt.Sprintf("isochoric(v1=%g)", c.V1)
	case ProcessAdiabatic:
		return fmt.Sprintf("adiabatic(s1=%g)", c.S1)
	case ProcessPolytropic:
		return fmt.Sprintf("polytropic(P1=%g, v1=%g, n=%g)", c.P1, c.V1, c.N)
	default:
		return "unknown"
	}
}
