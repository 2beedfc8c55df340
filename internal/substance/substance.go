// Package substance provides the closed set of working-substance variants the
// resolver dispatches over: an ideal gas with closed-form relations, and a
// pure substance (water/steam) backed by the property oracle. It also holds
// the phase classifier.
package substance

import (
	"context"

	"polytrope/internal/thermo"
)

// Kind tags the substance variant. The set is closed: resolver behavior
// branches on the capability interface, never on substance name strings.
type Kind int

const (
	KindIdealGas Kind = iota
	KindPure
)

func (k Kind) String() string {
	if k == KindIdealGas {
		return "ideal_gas"
	}
	return "pure_substance"
}

// Substance supplies property lookup from two independent intensive
// properties and saturation envelope access.
type Substance interface {
	// Name identifies the concrete substance ("air", "water", ...).
	Name() string

	// Kind reports the variant tag.
	Kind() Kind

	// Lookup resolves the full state from two independent properties.
	Lookup(ctx context.Context, a, b thermo.Property) (thermo.StateVector, error)

	// SaturationAt fetches the two-phase boundary at a pressure or
	// temperature axis. Ideal gases fail with thermo.ErrNoSaturation and
	// callers short-circuit all saturation logic for them.
	SaturationAt(ctx context.Context, axis thermo.Property) (thermo.SaturationEnvelope, error)
}
