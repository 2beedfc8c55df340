package substance

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"polytrope/internal/logging"
	"polytrope/internal/oracle"
	"polytrope/internal/thermo"
)

// cachedEnvelope pairs an envelope with the exact axis it was fetched for.
// The whole value is replaced atomically, never mutated, so concurrent
// readers observe either the previous or the next snapshot.
type cachedEnvelope struct {
	axis thermo.Property
	env  thermo.SaturationEnvelope
}

// Pure is a pure substance (water/steam) whose numeric lookups delegate to
// the external property oracle. It caches the most recent saturation envelope
// per pinned axis; overlapping fetches for the same axis collapse into one
// oracle round trip.
type Pure struct {
	name   string
	oracle oracle.Client
	cache  atomic.Pointer[cachedEnvelope]
	group  singleflight.Group
}

// NewPure wraps an oracle client as a Substance.
func NewPure(name string, client oracle.Client) *Pure {
	return &Pure{name: name, oracle: client}
}

func (p *Pure) Name() string { return p.name }
func (p *Pure) Kind() Kind   { return KindPure }

// Lookup implements Substance, surfacing the oracle's domain limits
// unchanged.
func (p *Pure) Lookup(ctx context.Context, a, b thermo.Property) (thermo.StateVector, error) {
	return p.oracle.Lookup(ctx, a, b)
}

// SaturationAt implements Substance with a single-envelope cache: the
// envelope is recomputed only when the pinned axis moves, and concurrent
// requests for the same axis share one fetch.
func (p *Pure) SaturationAt(ctx context.Context, axis thermo.Property) (thermo.SaturationEnvelope, error) {
	if cached := p.cache.Load(); cached != nil && cached.axis == axis {
		logging.EnvelopeDebug("envelope cache hit for %s", axis)
		return cached.env, nil
	}

	key := fmt.Sprintf("%d:%g", axis.Kind, axis.Value)
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		logging.Envelope("fetching envelope at %s", axis)
		env, err := p.oracle.SaturationAt(ctx, axis)
		if err != nil {
			return nil, err
		}
		if err := env.Validate(); err != nil {
			// Corrupt boundary data: do not cache, force a refetch on
			// the next attempt.
			return nil, err
		}
		p.cache.Store(&cachedEnvelope{axis: axis, env: env})
		return env, nil
	})
	if err != nil {
		return thermo.SaturationEnvelope{}, err
	}
	return v.(thermo.SaturationEnvelope), nil
}

// CachedEnvelope returns the cached envelope when it is valid for the given
// axis, without ever touching the oracle. The preview path uses this to keep
// keystroke updates free of round trips.
func (p *Pure) CachedEnvelope(axis thermo.Property) (thermo.SaturationEnvelope, bool) {
	cached := p.cache.Load()
	if cached == nil || cached.axis != axis {
		return thermo.SaturationEnvelope{}, false
	}
	return cached.env, true
}

// InvalidateEnvelope drops the cached envelope, forcing the next
// SaturationAt to refetch. Used after Inconsistent faults.
func (p *Pure) InvalidateEnvelope() {
	p.cache.Store(nil)
}
