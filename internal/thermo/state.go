// Package thermo defines the value types shared across the resolver pipeline:
// state vectors, saturation envelopes, process constraints, edit events, and
// the typed errors the pipeline reports. Types in this package are leaf data
// structures with no dependencies on other polytrope packages.
//
// Unit conventions follow the property sources: water/steam states carry T in
// degC, P in bar, v in m3/kg, u and h in kJ/kg, s in kJ/(kg K); ideal-gas
// states carry T in K and P in kPa. A session never mixes substances, so each
// state vector is internally consistent.
package thermo

import (
	"fmt"
	"strings"
	"time"
)

// Quantity identifies one intensive property of a state. It doubles as the
// provenance tag for pinned fields and as the independent-variable kind passed
// to the property oracle.
type Quantity int

const (
	QuantityNone Quantity = iota
	QuantityTemperature
	QuantityPressure
	QuantityVolume
	QuantityQuality
	QuantityInternalEnergy
	QuantityEnthalpy
	QuantityEntropy
)

func (q Quantity) String() string {
	switch q {
	case QuantityNone:
		return "none"
	case QuantityTemperature:
		return "temperature"
	case QuantityPressure:
		return "pressure"
	case QuantityVolume:
		return "volume"
	case QuantityQuality:
		return "quality"
	case QuantityInternalEnergy:
		return "internal_energy"
	case QuantityEnthalpy:
		return "enthalpy"
	case QuantityEntropy:
		return "entropy"
	default:
		return fmt.Sprintf("unknown(%d)", q)
	}
}

// Atom returns the Mangle name-constant form of the quantity (e.g.
// /temperature) used by the rules kernel.
func (q Quantity) Atom() string {
	return "/" + q.String()
}

// ParseQuantity converts a user-facing name (e.g. a CLI flag value) into a
// Quantity. Short aliases match the symbols used throughout the domain.
func ParseQuantity(s string) (Quantity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "temp", "temperature":
		return QuantityTemperature, nil
	case "p", "pressure":
		return QuantityPressure, nil
	case "v", "volume", "specific_volume":
		return QuantityVolume, nil
	case "x", "quality":
		return QuantityQuality, nil
	case "u", "internal_energy":
		return QuantityInternalEnergy, nil
	case "h", "enthalpy":
		return QuantityEnthalpy, nil
	case "s", "entropy":
		return QuantityEntropy, nil
	default:
		return QuantityNone, fmt.Errorf("unknown quantity %q", s)
	}
}

// Property pairs a quantity kind with its value, the shape the oracle accepts
// as an independent variable.
type Property struct {
	Kind  Quantity
	Value float64
}

func (p Property) String() string {
	return fmt.Sprintf("%s=%g", p.Kind, p.Value)
}

// Phase classifies where a state sits relative to the saturation envelope.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseSubcooled
	PhaseSaturated
	PhaseSuperheated
)

func (p Phase) String() string {
	switch p {
	case PhaseSubcooled:
		return "subcooled"
	case PhaseSaturated:
		return "saturated"
	case PhaseSuperheated:
		return "superheated"
	default:
		return "unknown"
	}
}

// Atom returns the Mangle name-constant form of the phase.
func (p Phase) Atom() string {
	return "/" + p.String()
}

// SentinelQuality returns the fixed quality value for a single-phase state:
// 0 for subcooled liquid, 1 for superheated vapor. Quality is only
// independently editable inside the saturation dome.
func (p Phase) SentinelQuality() float64 {
	if p == PhaseSubcooled {
		return 0
	}
	return 1
}

// StateVector is the full intensive description of one thermodynamic state.
// Values are immutable by convention: the resolver emits a fresh StateVector
// and replaces the previous one whole, never mutating fields in place.
//
// Pinned records provenance: the one quantity currently holding the user's
// exact typed value. Every other field is derived. QuantityNone means the
// whole vector is derived (e.g. state 1 right after submission).
type StateVector struct {
	T float64 // temperature
	P float64 // pressure
	V float64 // specific volume
	U float64 // specific internal energy
	H float64 // specific enthalpy
	S float64 // specific entropy
	X float64 // vapor quality; sentinel outside the dome

	Phase  Phase
	Pinned Quantity
}

// Get returns the value of one quantity of the state.
func (sv StateVector) Get(q Quantity) float64 {
	switch q {
	case QuantityTemperature:
		return sv.T
	case QuantityPressure:
		return sv.P
	case QuantityVolume:
		return sv.V
	case QuantityQuality:
		return sv.X
	case QuantityInternalEnergy:
		return sv.U
	case QuantityEnthalpy:
		return sv.H
	case QuantityEntropy:
		return sv.S
	default:
		return 0
	}
}

// WithPinned returns a copy of the state with the provenance tag set.
func (sv StateVector) WithPinned(q Quantity) StateVector {
	sv.Pinned = q
	return sv
}

func (sv StateVector) String() string {
	return fmt.Sprintf("T=%.4g P=%.4g v=%.6g u=%.5g h=%.5g s=%.5g x=%.4f phase=%s pinned=%s",
		sv.T, sv.P, sv.V, sv.U, sv.H, sv.S, sv.X, sv.Phase, sv.Pinned)
}

// EditEvent is one user edit as handed to the arbiter. Created by the input
// layer, consumed exactly once. Seq is assigned by the arbiter and totally
// orders edits across all fields; Settle marks the event that follows a
// quiesced input burst (only settle events trigger a full resolution).
type EditEvent struct {
	Field  Quantity
	Value  float64
	Seq    uint64
	At     time.Time
	Settle bool
}

func (e EditEvent) String() string {
	kind := "keystroke"
	if e.Settle {
		kind = "settle"
	}
	return fmt.Sprintf("%s %s=%g seq=%d", kind, e.Field, e.Value, e.Seq)
}
