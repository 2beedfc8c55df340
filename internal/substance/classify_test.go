package substance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"polytrope/internal/thermo"
)

func testEnvelope() thermo.SaturationEnvelope {
	return thermo.SaturationEnvelope{
		Tsat: 150, Psat: 4.7616,
		Vf: 0.001091, Vg: 0.39248,
		Uf: 631.66, Ug: 2559.1,
		Hf: 632.18, Hfg: 2113.8,
		Sf: 1.8418, Sg: 6.8371,
	}
}

func TestClassifyTemperatureAxis(t *testing.T) {
	c := NewClassifier(0.05, 0.005)
	env := testEnvelope()

	tests := []struct {
		temp float64
		want thermo.Phase
	}{
		{150.00, thermo.PhaseSaturated},
		{150.05, thermo.PhaseSaturated}, // exactly on the band edge
		{149.95, thermo.PhaseSaturated},
		{150.06, thermo.PhaseSuperheated},
		{149.94, thermo.PhaseSubcooled},
		{200.00, thermo.PhaseSuperheated},
		{100.00, thermo.PhaseSubcooled},
	}
	for _, tt := range tests {
		candidate := thermo.StateVector{T: tt.temp, P: env.Psat}
		got := c.Classify(candidate, env, thermo.QuantityTemperature)
		assert.Equal(t, tt.want, got, "T=%g", tt.temp)
	}
}

func TestClassifyPressureAxis(t *testing.T) {
	c := NewClassifier(0.05, 0.005)
	env := testEnvelope()

	tests := []struct {
		press float64
		want  thermo.Phase
	}{
		{4.7616, thermo.PhaseSaturated},
		{4.7666, thermo.PhaseSaturated}, // band edge
		{4.7566, thermo.PhaseSaturated},
		// Above the saturation pressure the state is compressed liquid;
		// below it the vapor is superheated.
		{4.7716, thermo.PhaseSubcooled},
		{4.7516, thermo.PhaseSuperheated},
		{10.0, thermo.PhaseSubcooled},
		{1.0, thermo.PhaseSuperheated},
	}
	for _, tt := range tests {
		candidate := thermo.StateVector{T: env.Tsat, P: tt.press}
		got := c.Classify(candidate, env, thermo.QuantityPressure)
		assert.Equal(t, tt.want, got, "P=%g", tt.press)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier(0.05, 0.005)
	env := testEnvelope()
	candidate := thermo.StateVector{T: 150.05, P: env.Psat}

	first := c.Classify(candidate, env, thermo.QuantityTemperature)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, c.Classify(candidate, env, thermo.QuantityTemperature))
	}
}
