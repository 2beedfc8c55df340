// Package resolver implements the state-2 resolution pipeline: given a frozen
// process constraint and one pinned edit, produce a fully consistent state
// vector, classify its phase, and compute the process energy balance. The
// EditArbiter in this package sequences concurrent edits and guards the
// visible state against stale writers.
package resolver

import (
	"context"
	"fmt"
	"math"

	"polytrope/internal/logging"
	"polytrope/internal/rules"
	"polytrope/internal/substance"
	"polytrope/internal/thermo"
)

// defaultQuality seeds the displayed quality on first entry into the
// saturation dome when no previous two-phase state exists.
const defaultQuality = 0.5

// nearUnity is the band inside which a polytropic exponent is treated as the
// isothermal degenerate case.
const nearUnity = 1e-9

// Resolver derives state 2 from (constraint, previous state, edit). It holds
// no per-session mutable state; the Session owns the snapshot lifecycle.
type Resolver struct {
	sub        substance.Substance
	plan       *rules.Kernel
	classifier substance.Classifier
}

// NewResolver wires a resolver over one substance, the plan kernel, and the
// configured phase classifier.
func NewResolver(sub substance.Substance, plan *rules.Kernel, classifier substance.Classifier) *Resolver {
	return &Resolver{sub: sub, plan: plan, classifier: classifier}
}

// Resolve produces state 2 for one settle edit. prev is the last resolved
// state (used to carry quality across saturated resolutions); it is never
// mutated. Errors are typed: ValidationError for illegal input,
// OutOfRangeError when the substance cannot resolve the pair, and
// InconsistentError for corrupt envelope data.
func (r *Resolver) Resolve(ctx context.Context, c thermo.ProcessConstraint, prev thermo.StateVector, edit thermo.EditEvent) (thermo.StateVector, error) {
	if !r.plan.LegalPin(c.Kind, edit.Field) {
		return thermo.StateVector{}, &thermo.ValidationError{
			Field:  edit.Field,
			Value:  edit.Value,
			Reason: fmt.Sprintf("field cannot be pinned under a %s process", c.Kind),
		}
	}
	if err := validateEdit(edit); err != nil {
		return thermo.StateVector{}, err
	}
	if edit.Field == thermo.QuantityQuality && r.sub.Kind() == substance.KindIdealGas {
		return thermo.StateVector{}, &thermo.ValidationError{
			Field:  edit.Field,
			Value:  edit.Value,
			Reason: "quality is undefined for an ideal gas",
		}
	}

	logging.Resolver("resolve %s: %s", c, edit)

	var (
		state thermo.StateVector
		err   error
	)
	switch {
	case c.Kind == thermo.ProcessPolytropic:
		state, err = r.resolvePolytropic(ctx, c, edit)
	case edit.Field == thermo.QuantityQuality && !r.plan.JointSolve(c.Kind, edit.Field):
		// Isobaric/Isothermal quality pin: the frozen axis plus x fully
		// determine the state through the mixing law.
		state, err = r.resolveQualityOnAxis(ctx, c, edit)
	case r.classifiesOnBand(c.Kind, edit.Field):
		state, err = r.resolveBanded(ctx, c, prev, edit)
	default:
		state, err = r.resolvePair(ctx, c, edit)
	}
	if err != nil {
		// Corrupt boundary data poisons the session segment: drop whatever
		// envelope is cached so the next resolution refetches.
		if thermo.IsInconsistent(err) {
			if pure, ok := r.sub.(*substance.Pure); ok {
				pure.InvalidateEnvelope()
			}
		}
		logging.ResolverError("resolve %s failed: %v", edit, err)
		return thermo.StateVector{}, err
	}

	state = state.WithPinned(edit.Field)
	logging.ResolverDebug("resolved: %s", state)
	return state, nil
}

// validateEdit rejects values the resolver refuses to act on before any
// lookup happens. The previous resolved state stays untouched.
func validateEdit(edit thermo.EditEvent) error {
	switch edit.Field {
	case thermo.QuantityQuality:
		if edit.Value < 0 || edit.Value > 1 || math.IsNaN(edit.Value) {
			return &thermo.ValidationError{Field: edit.Field, Value: edit.Value, Reason: "quality must lie in [0,1]"}
		}
	case thermo.QuantityPressure, thermo.QuantityVolume:
		if edit.Value <= 0 || math.IsNaN(edit.Value) {
			return &thermo.ValidationError{Field: edit.Field, Value: edit.Value, Reason: "value must be positive"}
		}
	case thermo.QuantityTemperature:
		if math.IsNaN(edit.Value) {
			return &thermo.ValidationError{Field: edit.Field, Value: edit.Value, Reason: "value must be a number"}
		}
	}
	return nil
}

// classifiesOnBand reports whether (process, pinned field) is the case where
// both T and P are known up front and the tolerance-band classifier decides
// the phase branch. Every other case delegates phase detection to the
// property source, which branches on the dome internally.
func (r *Resolver) classifiesOnBand(kind thermo.ProcessKind, field thermo.Quantity) bool {
	if r.sub.Kind() == substance.KindIdealGas {
		return false
	}
	switch {
	case kind == thermo.ProcessIsobaric && field == thermo.QuantityTemperature:
		return true
	case kind == thermo.ProcessIsothermal && field == thermo.QuantityPressure:
		return true
	}
	return false
}

// envelopeAxis asks the plan kernel which axis the saturation envelope is
// fetched on for (process, pinned field) and fills in the frozen value.
func (r *Resolver) envelopeAxis(c thermo.ProcessConstraint, field thermo.Quantity) (thermo.Property, error) {
	axis, ok := r.plan.EnvelopeAxis(c.Kind, field)
	if !ok {
		return thermo.Property{}, &thermo.ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("no envelope axis for %s under %s", field, c.Kind),
		}
	}
	switch axis {
	case thermo.QuantityPressure:
		return thermo.Property{Kind: axis, Value: c.P1}, nil
	case thermo.QuantityTemperature:
		return thermo.Property{Kind: axis, Value: c.T1}, nil
	}
	return thermo.Property{}, &thermo.ValidationError{
		Field:  axis,
		Reason: "envelope axis must be temperature or pressure",
	}
}

// resolveBanded handles the pinned-(T|P) cases where the frozen axis supplies
// the partner intensive property: classify against the envelope with the
// tolerance band, then either mix inside the dome or hand the (T, P) pair to
// the property source.
func (r *Resolver) resolveBanded(ctx context.Context, c thermo.ProcessConstraint, prev thermo.StateVector, edit thermo.EditEvent) (thermo.StateVector, error) {
	axis, err := r.envelopeAxis(c, edit.Field)
	if err != nil {
		return thermo.StateVector{}, err
	}
	env, err := r.sub.SaturationAt(ctx, axis)
	if err != nil {
		return thermo.StateVector{}, err
	}

	candidate := thermo.StateVector{}
	var compareAxis thermo.Quantity
	switch c.Kind {
	case thermo.ProcessIsobaric:
		candidate.T = edit.Value
		candidate.P = c.P1
		compareAxis = thermo.QuantityTemperature
	case thermo.ProcessIsothermal:
		candidate.T = c.T1
		candidate.P = edit.Value
		compareAxis = thermo.QuantityPressure
	}

	phase := r.classifier.Classify(candidate, env, compareAxis)
	logging.ResolverDebug("banded classification: %s (Tsat=%g Psat=%g)", phase, env.Tsat, env.Psat)

	if phase == thermo.PhaseSaturated {
		x := defaultQuality
		if prev.Phase == thermo.PhaseSaturated {
			x = prev.X
		}
		return env.Mix(x), nil
	}
	return r.sub.Lookup(ctx,
		thermo.Property{Kind: thermo.QuantityTemperature, Value: candidate.T},
		thermo.Property{Kind: thermo.QuantityPressure, Value: candidate.P},
	)
}

// resolveQualityOnAxis handles a quality pin under Isobaric/Isothermal: the
// frozen axis locates the envelope and the mixing law does the rest.
func (r *Resolver) resolveQualityOnAxis(ctx context.Context, c thermo.ProcessConstraint, edit thermo.EditEvent) (thermo.StateVector, error) {
	axis, err := r.envelopeAxis(c, edit.Field)
	if err != nil {
		return thermo.StateVector{}, err
	}
	env, err := r.sub.SaturationAt(ctx, axis)
	if err != nil {
		return thermo.StateVector{}, err
	}
	return env.Mix(edit.Value), nil
}

// resolvePair queries the substance with the independent pair the plan kernel
// selects for (process, pinned field). The pinned field carries the typed
// value; the partner kind carries the frozen invariant. For Isochoric and
// Adiabatic this is the crux: the partner intensive property (P or T) is an
// output, so the invariant rides along as the second independent instead.
func (r *Resolver) resolvePair(ctx context.Context, c thermo.ProcessConstraint, edit thermo.EditEvent) (thermo.StateVector, error) {
	k1, k2, ok := r.plan.OraclePair(c.Kind, edit.Field)
	if !ok {
		return thermo.StateVector{}, &thermo.ValidationError{
			Field:  edit.Field,
			Value:  edit.Value,
			Reason: fmt.Sprintf("no independent pair for %s under %s", edit.Field, c.Kind),
		}
	}

	a, err := r.pairProperty(c, edit, k1)
	if err != nil {
		return thermo.StateVector{}, err
	}
	b, err := r.pairProperty(c, edit, k2)
	if err != nil {
		return thermo.StateVector{}, err
	}

	logging.ResolverDebug("pair lookup (%s, %s)", a, b)
	return r.sub.Lookup(ctx, a, b)
}

// pairProperty fills one independent of the oracle pair: the pinned field's
// typed value, or the invariant frozen from state 1.
func (r *Resolver) pairProperty(c thermo.ProcessConstraint, edit thermo.EditEvent, kind thermo.Quantity) (thermo.Property, error) {
	if kind == edit.Field {
		return thermo.Property{Kind: kind, Value: edit.Value}, nil
	}
	switch kind {
	case thermo.QuantityPressure:
		return thermo.Property{Kind: kind, Value: c.P1}, nil
	case thermo.QuantityTemperature:
		return thermo.Property{Kind: kind, Value: c.T1}, nil
	case thermo.QuantityVolume:
		return thermo.Property{Kind: kind, Value: c.V1}, nil
	case thermo.QuantityEntropy:
		return thermo.Property{Kind: kind, Value: c.S1}, nil
	}
	return thermo.Property{}, &thermo.ValidationError{
		Field:  kind,
		Reason: fmt.Sprintf("no frozen invariant supplies %s under %s", kind, c.Kind),
	}
}

// resolvePolytropic applies P·v^n = P1·v1^n in closed form to obtain a
// complete (P, v) pair, then hands that pair to the substance. A pinned
// temperature is solved from the ideal-gas relation and is rejected both in
// the n→1 degenerate case (T is then the process invariant) and for pure
// substances (no closed form ties T to the polytropic path there).
func (r *Resolver) resolvePolytropic(ctx context.Context, c thermo.ProcessConstraint, edit thermo.EditEvent) (thermo.StateVector, error) {
	var p2, v2 float64
	switch edit.Field {
	case thermo.QuantityVolume:
		v2 = edit.Value
		p2 = c.P1 * math.Pow(c.V1/v2, c.N)
	case thermo.QuantityPressure:
		p2 = edit.Value
		v2 = c.V1 * math.Pow(c.P1/p2, 1/c.N)
	case thermo.QuantityTemperature:
		gas, ok := r.sub.(*substance.IdealGas)
		if !ok {
			return thermo.StateVector{}, &thermo.ValidationError{
				Field:  edit.Field,
				Value:  edit.Value,
				Reason: "polytropic temperature pin requires an ideal gas",
			}
		}
		if math.Abs(c.N-1) < nearUnity {
			return thermo.StateVector{}, &thermo.ValidationError{
				Field:  edit.Field,
				Value:  edit.Value,
				Reason: "temperature is the process invariant when n = 1",
			}
		}
		// P·v^n = const and P·v = R·T give v = (C / (R·T))^(1/(n-1)).
		constPV := c.P1 * math.Pow(c.V1, c.N)
		v2 = math.Pow(constPV/(gas.R()*edit.Value), 1/(c.N-1))
		p2 = constPV / math.Pow(v2, c.N)
	default:
		return thermo.StateVector{}, &thermo.ValidationError{
			Field:  edit.Field,
			Value:  edit.Value,
			Reason: "field cannot be pinned under a polytropic process",
		}
	}

	if p2 <= 0 || v2 <= 0 || math.IsNaN(p2) || math.IsNaN(v2) || math.IsInf(p2, 0) || math.IsInf(v2, 0) {
		return thermo.StateVector{}, &thermo.ValidationError{
			Field:  edit.Field,
			Value:  edit.Value,
			Reason: "polytropic relation yields no physical state",
		}
	}

	return r.sub.Lookup(ctx,
		thermo.Property{Kind: thermo.QuantityPressure, Value: p2},
		thermo.Property{Kind: thermo.QuantityVolume, Value: v2},
	)
}
