// Package oracle provides the property-lookup collaborator the resolver
// queries for water/steam states. The Client interface is the boundary the
// core specifies; two backends implement it: an HTTP client for an external
// IAPWS-IF97-style service, and a saturated-water table with linear
// interpolation for offline use and tests.
package oracle

import (
	"context"

	"polytrope/internal/thermo"
)

// Client looks up full states from two independent intensive properties and
// fetches the saturation envelope at a fixed pressure or temperature.
// Implementations report domain limits as thermo.OutOfRangeError, never by
// silently clamping or returning zero states.
type Client interface {
	// Lookup resolves the full state determined by two independent
	// properties. The pair must actually be independent for the phase it
	// lands in; unsupported pairs fail.
	Lookup(ctx context.Context, a, b thermo.Property) (thermo.StateVector, error)

	// SaturationAt returns the two-phase boundary snapshot at a fixed
	// pressure or temperature axis.
	SaturationAt(ctx context.Context, axis thermo.Property) (thermo.SaturationEnvelope, error)
}
