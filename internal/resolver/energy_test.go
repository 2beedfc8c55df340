package resolver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrope/internal/thermo"
)

func TestEnergyGasIsothermal(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)
	r := NewResolver(air, testKernel(t), testClassifier())

	state1 := fixState(t, air, prop(thermo.QuantityTemperature, 300), prop(thermo.QuantityPressure, 100))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsothermal, state1, 0)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityVolume, 2*state1.V))
	require.NoError(t, err)

	e := ComputeEnergy(air, c, state1, state2)
	want := 0.287 * 300 * math.Log(2)
	assert.InDelta(t, want, e.W, 1e-9)
	// Internal energy is a function of temperature alone, so Q = W.
	assert.InDelta(t, 0, e.DeltaU, 1e-9)
	assert.InDelta(t, e.W, e.Q, 1e-9)
}

func TestEnergyWaterIsothermal(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.2))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsothermal, state1, 0)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityQuality, 0.8))
	require.NoError(t, err)

	// Inside the dome at fixed T the heat is T_abs times the entropy change.
	e := ComputeEnergy(water, c, state1, state2)
	wantQ := (150 + 273.15) * (state2.S - state1.S)
	assert.InDelta(t, wantQ, e.Q, 1e-9)
	assert.InDelta(t, e.Q-e.DeltaU, e.W, 1e-9)
	assert.Greater(t, e.W, 0.0)
}

func TestEnergyWaterIsobaricUnitBridge(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.25))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsobaric, state1, 0)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityQuality, 0.75))
	require.NoError(t, err)

	// P is in bar and v in m3/kg; 1 bar·m3/kg = 100 kJ/kg.
	e := ComputeEnergy(water, c, state1, state2)
	assert.InDelta(t, 4.7616*(state2.V-state1.V)*100, e.W, 1e-9)
	assert.InDelta(t, e.DeltaU+e.W, e.Q, 1e-9)
	// Constant-pressure heat equals the enthalpy change, up to the rounding
	// baked into the tabulated h column.
	assert.InDelta(t, e.DeltaH, e.Q, 0.5)
}

func TestEnergyIsochoric(t *testing.T) {
	ctx := context.Background()
	water := newWater(t)
	r := NewResolver(water, testKernel(t), testClassifier())

	state1 := fixState(t, water, prop(thermo.QuantityTemperature, 150), prop(thermo.QuantityQuality, 0.5))
	c, err := thermo.NewProcessConstraint(thermo.ProcessIsochoric, state1, 0)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityTemperature, 160))
	require.NoError(t, err)

	e := ComputeEnergy(water, c, state1, state2)
	assert.Equal(t, 0.0, e.W)
	assert.InDelta(t, state2.U-state1.U, e.Q, 1e-9)
}

func TestEnergyPolytropic(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)
	r := NewResolver(air, testKernel(t), testClassifier())

	state1 := fixState(t, air, prop(thermo.QuantityTemperature, 300), prop(thermo.QuantityPressure, 100))
	c, err := thermo.NewProcessConstraint(thermo.ProcessPolytropic, state1, 1.3)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityVolume, state1.V/2))
	require.NoError(t, err)

	e := ComputeEnergy(air, c, state1, state2)
	want := (c.P1*c.V1 - state2.P*state2.V) / (c.N - 1)
	assert.InDelta(t, want, e.W, 1e-9)
	assert.Less(t, e.W, 0.0)
	assert.InDelta(t, e.DeltaU+e.W, e.Q, 1e-9)

	// For an ideal gas the closed form agrees with R(T1-T2)/(n-1).
	assert.InDelta(t, 0.287*(state1.T-state2.T)/(c.N-1), e.W, 1e-6)
}

func TestEnergyPolytropicUnityExponent(t *testing.T) {
	ctx := context.Background()
	air := newAir(t)
	r := NewResolver(air, testKernel(t), testClassifier())

	state1 := fixState(t, air, prop(thermo.QuantityTemperature, 300), prop(thermo.QuantityPressure, 100))
	c, err := thermo.NewProcessConstraint(thermo.ProcessPolytropic, state1, 1.0)
	require.NoError(t, err)

	state2, err := r.Resolve(ctx, c, state1, settleEdit(thermo.QuantityVolume, 2*state1.V))
	require.NoError(t, err)

	// n = 1 degenerates to the isothermal form P1·v1·ln(v2/v1).
	e := ComputeEnergy(air, c, state1, state2)
	assert.InDelta(t, 100*state1.V*math.Log(2), e.W, 1e-9)
	assert.InDelta(t, state1.T, state2.T, 1e-9)
}
