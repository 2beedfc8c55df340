package substance

import (
	"context"
	"fmt"
	"math"
	"sort"

	"polytrope/internal/thermo"
)

// gasProperties holds the specific gas constant R (kJ/kg K) and the specific
// heat ratio k for the predefined gases.
var predefinedGases = map[string]struct{ R, K float64 }{
	"air":      {R: 0.287, K: 1.4},
	"nitrogen": {R: 0.2968, K: 1.4},
	"methane":  {R: 0.518, K: 1.299},
	"oxygen":   {R: 0.2598, K: 1.395},
}

// IdealGas computes every property from the closed-form relations
// (Pv = RT, u = cv T, h = cp T, s = cp ln T - R ln P relative to a fixed
// datum). It is a single dense phase everywhere: no saturation envelope
// exists and quality is never editable. Units: T in K, P in kPa, v in m3/kg,
// energies in kJ/kg.
type IdealGas struct {
	name   string
	r, k   float64
	cp, cv float64
}

// PredefinedGasNames returns the predefined gas names in a stable order.
func PredefinedGasNames() []string {
	names := make([]string, 0, len(predefinedGases))
	for name := range predefinedGases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewIdealGas returns one of the predefined gases.
func NewIdealGas(name string) (*IdealGas, error) {
	props, ok := predefinedGases[name]
	if !ok {
		return nil, fmt.Errorf("unknown gas %q (want air, nitrogen, methane, or oxygen)", name)
	}
	cv := props.R / (props.K - 1)
	return &IdealGas{
		name: name,
		r:    props.R,
		k:    props.K,
		cv:   cv,
		cp:   props.K * cv,
	}, nil
}

// NewCustomGas builds a gas from user-supplied specific heats. cp must exceed
// cv and both must be positive.
func NewCustomGas(name string, cp, cv float64) (*IdealGas, error) {
	if cv <= 0 || cp <= cv {
		return nil, &thermo.ValidationError{
			Field:  thermo.QuantityNone,
			Reason: fmt.Sprintf("custom gas needs cp > cv > 0, got cp=%g cv=%g", cp, cv),
		}
	}
	return &IdealGas{
		name: name,
		r:    cp - cv,
		k:    cp / cv,
		cp:   cp,
		cv:   cv,
	}, nil
}

func (g *IdealGas) Name() string { return g.name }
func (g *IdealGas) Kind() Kind   { return KindIdealGas }

// R returns the specific gas constant in kJ/(kg K).
func (g *IdealGas) R() float64 { return g.r }

// K returns the specific heat ratio cp/cv.
func (g *IdealGas) K() float64 { return g.k }

// Cp returns the constant-pressure specific heat.
func (g *IdealGas) Cp() float64 { return g.cp }

// Cv returns the constant-volume specific heat.
func (g *IdealGas) Cv() float64 { return g.cv }

// SaturationAt implements Substance. An ideal gas never enters a two-phase
// region.
func (g *IdealGas) SaturationAt(context.Context, thermo.Property) (thermo.SaturationEnvelope, error) {
	return thermo.SaturationEnvelope{}, thermo.ErrNoSaturation
}

// entropy returns s(T, P) relative to the 1 K / 1 kPa datum. Only entropy
// differences are physical; the datum cancels in every balance.
func (g *IdealGas) entropy(tK, pKPa float64) float64 {
	return g.cp*math.Log(tK) - g.r*math.Log(pKPa)
}

// state fills the full vector from a solved (T, P).
func (g *IdealGas) state(tK, pKPa float64) thermo.StateVector {
	return thermo.StateVector{
		T:     tK,
		P:     pKPa,
		V:     g.r * tK / pKPa,
		U:     g.cv * tK,
		H:     g.cp * tK,
		S:     g.entropy(tK, pKPa),
		X:     thermo.PhaseSuperheated.SentinelQuality(),
		Phase: thermo.PhaseSuperheated,
	}
}

// Lookup implements Substance. Any pair drawn from {T, P, v, s, u} determines
// the state; quality is rejected.
func (g *IdealGas) Lookup(_ context.Context, a, b thermo.Property) (thermo.StateVector, error) {
	get := func(k thermo.Quantity) (float64, bool) {
		if a.Kind == k {
			return a.Value, true
		}
		if b.Kind == k {
			return b.Value, true
		}
		return 0, false
	}

	if _, hasX := get(thermo.QuantityQuality); hasX {
		return thermo.StateVector{}, &thermo.ValidationError{
			Field:  thermo.QuantityQuality,
			Reason: "quality is undefined for an ideal gas",
		}
	}

	tK, hasT := get(thermo.QuantityTemperature)
	p, hasP := get(thermo.QuantityPressure)
	v, hasV := get(thermo.QuantityVolume)
	s, hasS := get(thermo.QuantityEntropy)
	u, hasU := get(thermo.QuantityInternalEnergy)

	for _, check := range []struct {
		has  bool
		kind thermo.Quantity
		val  float64
	}{
		{hasT, thermo.QuantityTemperature, tK},
		{hasP, thermo.QuantityPressure, p},
		{hasV, thermo.QuantityVolume, v},
	} {
		if check.has && check.val <= 0 {
			return thermo.StateVector{}, &thermo.ValidationError{
				Field: check.kind, Value: check.val,
				Reason: "must be positive",
			}
		}
	}

	switch {
	case hasT && hasP:
		return g.state(tK, p), nil
	case hasP && hasV:
		return g.state(p*v/g.r, p), nil
	case hasT && hasV:
		return g.state(tK, g.r*tK/v), nil
	case hasP && hasS:
		// s = cp ln T - R ln P
		return g.state(math.Exp((s+g.r*math.Log(p))/g.cp), p), nil
	case hasT && hasS:
		return g.state(tK, math.Exp((g.cp*math.Log(tK)-s)/g.r)), nil
	case hasV && hasS:
		// Substitute P = RT/v: s = cv ln T + R ln v - R ln R.
		t := math.Exp((s - g.r*math.Log(v) + g.r*math.Log(g.r)) / g.cv)
		return g.state(t, g.r*t/v), nil
	case hasV && hasU:
		t := u / g.cv
		return g.state(t, g.r*t/v), nil
	case hasP && hasU:
		return g.state(u/g.cv, p), nil
	default:
		return thermo.StateVector{}, fmt.Errorf("unsupported independent pair (%s, %s)", a.Kind, b.Kind)
	}
}
