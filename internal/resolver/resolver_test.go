package resolver

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrope/internal/oracle"
	"polytrope/internal/rules"
	"polytrope/internal/substance"
	"polytrope/internal/thermo"
)

func prop(k thermo.Quantity, v float64) thermo.Property {
	return thermo.Property{Kind: k, Value: v}
}

func settleEdit(field thermo.Quantity, value float64) thermo.EditEvent {
	return thermo.EditEvent{Field: field, Value: value, Seq: 1, Settle: true}
}

func testKernel(t *testing.T) *rules.Kernel {
	t.Helper()
	k, err := rules.NewKernel()
	require.NoError(t, err)
	return k
}

func testClassifier() substance.Classifier {
	return substance.NewClassifier(0.05, 0.005)
}

func newAir(t *testing.T) *substance.IdealGas {
	t.Helper()
	air, err := substance.NewIdealGas("air")
	require.NoError(t, err)
	return air
}

func newWater(t *testing.T) *substance.Pure {
	t.Helper()
	table, err := oracle.NewTable()
	require.NoError(t, err)
	return substance.NewPure("water", table)
}

// fixState resolves a state vector from two independents.
func fixState(t *testing.T, sub substance.Substance, a, b thermo.Property) thermo.StateVector {
	t.Helper()
	state, err := sub.Lookup(context.Background(), a, b)
	require.NoError(t, err)
	return state
}

func TestGasIsobaricVolumeDouble(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)
	r := NewResolver(air, testKernel(t), testClassifier())

	state1 := fixState(t, air, prop(thermo.QuantityPressure, 100), prop(thermo.QuantityVolume, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityVolume, 1.0))
	require.NoError(t, err)

	assert.InDelta(t, 100, state2.P, 1e-9)
	assert.InDelta(t, 1.0, state2.V, 1e-9)
	assert.InDelta(t, 2*state1.T, state2.T, 1e-6)
	assert.Equal(t, thermo.QuantityVolume, state2.Pinned)

	e := ComputeEnergy(air, c, state1, state2)
	assert.InDelta(t, 50, e.W, 1e-9)
}

func TestWaterIsobaricLeavesTheDome(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	require.Equal(t, thermo.PhaseSaturated, state1.Phase)

	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	// Nudging T inside the band keeps the state saturated and keeps the
	// previously displayed quality.
	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, 150.02))
	require.NoError(t, err)
	assert.Equal(t, thermo.PhaseSaturated, state2.Phase)
	assert.InDelta(t, 0.5, state2.X, 1e-9)

	// Raising T past Tsat(P1) crosses into superheat; quality pegs at 1.
	state3, err := r.Resolve(ctx, c, state2, settleEdit(thermo.QuantityTemperature, 200))
	require.NoError(t, err)
	assert.Equal(t, thermo.PhaseSuperheated, state3.Phase)
	assert.Equal(t, 1.0, state3.X)
	assert.InDelta(t, 200, state3.T, 1e-9)
	assert.InDelta(t, state1.P, state3.P, 1e-9)
	assert.Equal(t, thermo.QuantityTemperature, state3.Pinned)
}

func TestWaterIsobaricSubcooled(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, 100))
	require.NoError(t, err)
	assert.Equal(t, thermo.PhaseSubcooled, state2.Phase)
	assert.Equal(t, 0.0, state2.X)
	assert.InDelta(t, state1.P, state2.P, 1e-9)
}

func TestWaterIsobaricQualityPin(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityQuality, 0.25))
	require.NoError(t, err)
	assert.Equal(t, thermo.PhaseSaturated, state2.Phase)
	assert.InDelta(t, 0.25, state2.X, 1e-9)
	assert.InDelta(t, 0.001091+0.25*(0.39248-0.001091), state2.V, 1e-6)
	assert.Equal(t, thermo.QuantityQuality, state2.Pinned)
}

func TestQualityOutsideUnitIntervalRejected(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	for _, x := range []float64{-0.1, 1.5} {
		_, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityQuality, x))
		require.Error(t, err, "x=%g", x)
		assert.True(t, thermo.IsValidation(err), "x=%g", x)
	}
}

func TestIllegalPinRejected(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	// Pressure is the frozen invariant of an isobaric process.
	_, err = r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityPressure, 10))
	require.Error(t, err)
	assert.True(t, thermo.IsValidation(err))
}

func TestGasQualityPinRejected(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)
	r := NewResolver(air, testKernel(t), testClassifier())

	state1 := fixState(t, air, prop(thermo.QuantityTemperature, 300), prop(thermo.QuantityPressure, 100))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	_, err = r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityQuality, 0.5))
	require.Error(t, err)
	assert.True(t, thermo.IsValidation(err))
}

func TestIsochoricAxisSwapIdempotence(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsochoric, state1, 0)
	require.NoError(t, err)

	// Pin T; the resolver solves (T, v1) with P an output.
	byT, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, 160))
	require.NoError(t, err)
	assert.Equal(t, thermo.PhaseSaturated, byT.Phase)
	assert.InDelta(t, state1.V, byT.V, 1e-9)

	// Pin the resulting P; resolving (P, v1) must return the same T.
	byP, err := r.Resolve(ctx, c, byT, settleEdit(thermo.QuantityPressure, byT.P))
	require.NoError(t, err)
	assert.InDelta(t, byT.T, byP.T, 1e-3)
	assert.InDelta(t, byT.X, byP.X, 1e-6)
}

func TestAdiabaticPreservesEntropy(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessAdiabatic, state1, 0)
	require.NoError(t, err)

	for _, temp := range []float64{120, 160, 180} {
		state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, temp))
		require.NoError(t, err, "T=%g", temp)
		assert.InDelta(t, state1.S, state2.S, 1e-6, "T=%g", temp)
	}
}

func TestWaterAdiabaticVolumePin(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessAdiabatic, state1, 0)
	require.NoError(t, err)

	// Compressing inside the dome at frozen s1: both T and P are outputs of
	// the joint (v, s) solve.
	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityVolume, 0.9*state1.V))
	require.NoError(t, err)
	assert.Equal(t, thermo.PhaseSaturated, state2.Phase)
	assert.InDelta(t, 0.9*state1.V, state2.V, 1e-9)
	assert.InDelta(t, state1.S, state2.S, 1e-6)
	assert.Greater(t, state2.T, state1.T)
	assert.Greater(t, state2.P, state1.P)
	assert.Equal(t, thermo.QuantityVolume, state2.Pinned)

	// A volume below the liquid boundary has no dome state at s1 and
	// surfaces as a typed fault.
	_, err = r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityVolume, 0.0005))
	require.Error(t, err)
	assert.True(t, thermo.IsOutOfRange(err))
}

func TestGasAdiabaticCompression(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)
	r := NewResolver(air, testKernel(t), testClassifier())

	state1 := fixState(t, air, prop(thermo.QuantityTemperature, 300), prop(thermo.QuantityPressure, 100))
	c, err := thermo.NewProcessConstraint(thermo.ProcessAdiabatic, state1, 0)
	require.NoError(t, err)

	// Halving the volume isentropically with k=1.4 multiplies the pressure
	// by 2^1.4 = 2.639.
	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityVolume, state1.V/2))
	require.NoError(t, err)
	assert.InDelta(t, 2.639, state2.P/state1.P, 1e-3)
	assert.InDelta(t, state1.S, state2.S, 1e-9)

	e := ComputeEnergy(air, c, state1, state2)
	assert.Equal(t, 0.0, e.Q)
	assert.InDelta(t, -(state2.U-state1.U), e.W, 1e-9)
}

func TestQualityPinJointSolve(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))

	// Isochoric quality pin: both T and P are outputs, solved jointly from
	// (v1, x) along the envelope. x = 0.5 at the frozen v1 must return the
	// original saturation point.
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsochoric, state1, 0)
	require.NoError(t, err)
	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityQuality, 0.5))
	require.NoError(t, err)
	assert.Equal(t, thermo.PhaseSaturated, state2.Phase)
	assert.InDelta(t, 150, state2.T, 1e-3)
	assert.InDelta(t, state1.P, state2.P, 1e-3)

	// Adiabatic quality pin solves (s1, x) the same way.
	c, err = thermo.NewProcessConstraint(thermo.ProcessAdiabatic, state1, 0)
	require.NoError(t, err)
	state3, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityQuality, 0.5))
	require.NoError(t, err)
	assert.InDelta(t, 150, state3.T, 1e-3)
	assert.InDelta(t, state1.S, state3.S, 1e-6)
}

func TestPolytropicGas(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)
	r := NewResolver(air, testKernel(t), testClassifier())

	state1 := fixState(t, air, prop(thermo.QuantityTemperature, 300), prop(thermo.QuantityPressure, 100))
	c, err := thermo.NewProcessConstraint(thermo.ProcessPolytropic, state1, 1.3)
	require.NoError(t, err)

	// Pin v at half: P2 = P1 * 2^1.3.
	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityVolume, state1.V/2))
	require.NoError(t, err)
	assert.InDelta(t, 100*math.Pow(2, 1.3), state2.P, 1e-6)

	// Pin P back at P1: the path returns to state 1.
	state3, err := r.Resolve(ctx, c, state2, settleEdit(thermo.QuantityPressure, 100))
	require.NoError(t, err)
	assert.InDelta(t, state1.V, state3.V, 1e-9)
	assert.InDelta(t, state1.T, state3.T, 1e-6)

	// Pin T: the ideal-gas closed form places (P, v) on the path.
	state4, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, 400))
	require.NoError(t, err)
	assert.InDelta(t, 400, state4.T, 1e-6)
	assert.InDelta(t, c.P1*math.Pow(c.V1, c.N), state4.P*math.Pow(state4.V, c.N), 1e-6)
}

func TestPolytropicDegenerateTemperaturePinRejected(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)
	r := NewResolver(air, testKernel(t), testClassifier())

	state1 := fixState(t, air, prop(thermo.QuantityTemperature, 300), prop(thermo.QuantityPressure, 100))
	c, err := thermo.NewProcessConstraint(thermo.ProcessPolytropic, state1, 1.0)
	require.NoError(t, err)

	_, err = r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, 400))
	require.Error(t, err)
	assert.True(t, thermo.IsValidation(err))
}

func TestPolytropicTemperaturePinNeedsGas(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 200), prop(thermo.QuantityPressure, 4.7616))
	c, err := thermo.NewProcessConstraint(thermo.ProcessPolytropic, state1, 1.3)
	require.NoError(t, err)

	_, err = r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, 250))
	require.Error(t, err)
	assert.True(t, thermo.IsValidation(err))
}

// flakyEnvelopeOracle serves one fixed envelope and can be flipped into
// returning corrupt boundary data.
type flakyEnvelopeOracle struct {
	corrupt atomic.Bool
}

func (o *flakyEnvelopeOracle) Lookup(context.Context, thermo.Property, thermo.Property) (thermo.StateVector, error) {
	return thermo.StateVector{}, &thermo.OutOfRangeError{Reason: "lookup not backed"}
}

func (o *flakyEnvelopeOracle) SaturationAt(_ context.Context, axis thermo.Property) (thermo.SaturationEnvelope, error) {
	env := thermo.SaturationEnvelope{
		Tsat: 150, Psat: 4.7616,
		Vf: 0.001091, Vg: 0.39248,
		Uf: 631.66, Ug: 2559.1,
		Hf: 632.18, Hfg: 2113.8,
		Sf: 1.8418, Sg: 6.8371,
	}
	if o.corrupt.Load() {
		env.Vg = env.Vf
	}
	return env, nil
}

func TestInconsistentEnvelopeDropsCache(t *testing.T) {
	ctx := context.Background()
	source := &flakyEnvelopeOracle{}
	water := substance.NewPure("water", source)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := thermo.StateVector{
		T: 150, P: 4.7616, V: 0.196786, S: 4.33945, X: 0.5,
		Phase: thermo.PhaseSaturated,
	}
	isobaric, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	pAxis := prop(thermo.QuantityPressure, 4.7616)
	_, err = r.Resolve(ctx, isobaric, state1, settleEdit(thermo.QuantityQuality, 0.5))
	require.NoError(t, err)
	_, ok := water.CachedEnvelope(pAxis)
	require.True(t, ok)

	// Corrupt boundary data on a fresh axis faults the resolution and must
	// also flush the previously cached envelope, forcing a refetch.
	source.corrupt.Store(true)
	isothermal, err := thermo.NewProcessConstraint(thermo.ProcessIsothermal, state1, 0)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, isothermal, state1, settleEdit(thermo.QuantityQuality, 0.5))
	require.Error(t, err)
	assert.True(t, thermo.IsInconsistent(err))

	_, ok = water.CachedEnvelope(pAxis)
	assert.False(t, ok)
}

func TestOutOfRangeSurfacesTyped(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	_, err = r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, 500))
	require.Error(t, err)
	assert.True(t, thermo.IsOutOfRange(err))
}
