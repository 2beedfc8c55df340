package oracle

import (
	"context"
	_ "embed"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"polytrope/internal/logging"
	"polytrope/internal/thermo"
)

//go:embed saturated_water.csv
var embeddedTable []byte

// Steam constants for the single-phase approximations, kJ/(kg K).
// Vapor states are anchored at the saturated-vapor boundary and extended with
// constant low-pressure specific heats; compressed liquid uses the
// saturated-liquid-at-T approximation.
const (
	steamCp = 1.8723
	steamCv = 1.4108
)

// Water/steam validity domain in degC. Outside it every query fails with
// OutOfRange; the table never clamps.
const (
	domainTMin = 0.01
	domainTMax = 374.0
)

// barToKPa converts a bar * m3/kg product into kJ/kg.
const barToKPa = 100.0

type tableRow struct {
	t, p            float64
	vf, vg, uf, ug  float64
	hf, hfg, sf, sg float64
}

// Table is a saturated-water property oracle backed by a CSV steam table with
// linear interpolation by temperature or pressure. It covers the saturation
// dome exactly and extends to single-phase states with boundary-anchored
// approximations, which keeps it self-contained for offline use and tests. An
// external IAPWS-grade service (HTTPClient) replaces it where accuracy
// matters.
//
// Reload swaps the whole row slice under the lock, so concurrent lookups see
// either the old or the new table, never a mix.
type Table struct {
	mu   sync.RWMutex
	rows []tableRow
	path string // empty for the embedded table
}

// NewTable loads the embedded saturated-water table.
func NewTable() (*Table, error) {
	t := &Table{}
	rows, err := parseTable(embeddedTable)
	if err != nil {
		return nil, fmt.Errorf("embedded steam table: %w", err)
	}
	t.rows = rows
	return t, nil
}

// NewTableFromFile loads a saturated-water CSV from disk. The file can later
// be hot-reloaded via Reload (see TableWatcher).
func NewTableFromFile(path string) (*Table, error) {
	t := &Table{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the table from its file. No-op errors leave the previous
// rows in place.
func (t *Table) Reload() error {
	if t.path == "" {
		return nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("failed to read steam table %s: %w", t.path, err)
	}
	rows, err := parseTable(data)
	if err != nil {
		return fmt.Errorf("steam table %s: %w", t.path, err)
	}

	t.mu.Lock()
	t.rows = rows
	t.mu.Unlock()

	logging.Oracle("steam table reloaded from %s (%d rows)", t.path, len(rows))
	return nil
}

func parseTable(data []byte) ([]tableRow, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parse: %w", err)
	}
	if len(records) < 3 {
		return nil, fmt.Errorf("table needs at least two data rows, got %d", len(records)-1)
	}

	header := records[0]
	want := []string{"T_sat", "P_bar", "vf", "vg", "uf", "ug", "hf", "hfg", "sf", "sg"}
	if len(header) != len(want) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(want), len(header))
	}
	for i, name := range want {
		if strings.TrimSpace(header[i]) != name {
			return nil, fmt.Errorf("column %d: expected %q, got %q", i, name, header[i])
		}
	}

	rows := make([]tableRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		vals := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", n+1, i, err)
			}
			vals[i] = v
		}
		rows = append(rows, tableRow{
			t: vals[0], p: vals[1],
			vf: vals[2], vg: vals[3],
			uf: vals[4], ug: vals[5],
			hf: vals[6], hfg: vals[7],
			sf: vals[8], sg: vals[9],
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].t < rows[j].t })
	return rows, nil
}

func (t *Table) snapshot() []tableRow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows
}

func kelvin(tC float64) float64 { return tC + 273.15 }

// lerpRow interpolates all columns between two bracketing rows by the
// fraction along the chosen axis.
func lerpRow(a, b tableRow, frac float64) thermo.SaturationEnvelope {
	lerp := func(x, y float64) float64 { return x + frac*(y-x) }
	return thermo.SaturationEnvelope{
		Tsat: lerp(a.t, b.t),
		Psat: lerp(a.p, b.p),
		Vf:   lerp(a.vf, b.vf),
		Vg:   lerp(a.vg, b.vg),
		Uf:   lerp(a.uf, b.uf),
		Ug:   lerp(a.ug, b.ug),
		Hf:   lerp(a.hf, b.hf),
		Hfg:  lerp(a.hfg, b.hfg),
		Sf:   lerp(a.sf, b.sf),
		Sg:   lerp(a.sg, b.sg),
	}
}

// envelopeAtT interpolates the envelope at a saturation temperature.
func (t *Table) envelopeAtT(tC float64) (thermo.SaturationEnvelope, error) {
	if tC < domainTMin || tC > domainTMax {
		return thermo.SaturationEnvelope{}, &thermo.OutOfRangeError{
			Kind: thermo.QuantityTemperature, Value: tC,
			Reason: fmt.Sprintf("water domain is (%.2f, %.0f) degC", domainTMin, domainTMax),
		}
	}
	rows := t.snapshot()
	if tC < rows[0].t || tC > rows[len(rows)-1].t {
		return thermo.SaturationEnvelope{}, &thermo.OutOfRangeError{
			Kind: thermo.QuantityTemperature, Value: tC,
			Reason: fmt.Sprintf("outside table range [%g, %g] degC", rows[0].t, rows[len(rows)-1].t),
		}
	}
	i := sort.Search(len(rows), func(i int) bool { return rows[i].t >= tC })
	if i == 0 || rows[i].t == tC {
		if rows[i].t == tC {
			return lerpRow(rows[i], rows[i], 0), nil
		}
		i = 1
	}
	a, b := rows[i-1], rows[i]
	frac := (tC - a.t) / (b.t - a.t)
	return lerpRow(a, b, frac), nil
}

// envelopeAtP interpolates the envelope at a saturation pressure (bar).
// P_sat is monotonic in T, so the same row order serves both axes.
func (t *Table) envelopeAtP(pBar float64) (thermo.SaturationEnvelope, error) {
	rows := t.snapshot()
	if pBar < rows[0].p || pBar > rows[len(rows)-1].p {
		return thermo.SaturationEnvelope{}, &thermo.OutOfRangeError{
			Kind: thermo.QuantityPressure, Value: pBar,
			Reason: fmt.Sprintf("outside table range [%g, %g] bar", rows[0].p, rows[len(rows)-1].p),
		}
	}
	i := sort.Search(len(rows), func(i int) bool { return rows[i].p >= pBar })
	if i == 0 || rows[i].p == pBar {
		if rows[i].p == pBar {
			return lerpRow(rows[i], rows[i], 0), nil
		}
		i = 1
	}
	a, b := rows[i-1], rows[i]
	frac := (pBar - a.p) / (b.p - a.p)
	return lerpRow(a, b, frac), nil
}

// SaturationAt implements Client.
func (t *Table) SaturationAt(_ context.Context, axis thermo.Property) (thermo.SaturationEnvelope, error) {
	var (
		env thermo.SaturationEnvelope
		err error
	)
	switch axis.Kind {
	case thermo.QuantityTemperature:
		env, err = t.envelopeAtT(axis.Value)
	case thermo.QuantityPressure:
		env, err = t.envelopeAtP(axis.Value)
	default:
		return thermo.SaturationEnvelope{}, fmt.Errorf("saturation axis must be temperature or pressure, got %s", axis.Kind)
	}
	if err != nil {
		return thermo.SaturationEnvelope{}, err
	}
	if err := env.Validate(); err != nil {
		return thermo.SaturationEnvelope{}, err
	}
	return env, nil
}

// Lookup implements Client. Supported independent pairs: (T,P), (T,x), (P,x),
// (T,v), (P,v), (T,s), (P,s), (v,s), (v,x), (s,x). Kinds may arrive in either
// order.
func (t *Table) Lookup(ctx context.Context, a, b thermo.Property) (thermo.StateVector, error) {
	timer := logging.StartTimer(logging.CategoryOracle, "table.Lookup")
	defer timer.Stop()

	get := func(k thermo.Quantity) (float64, bool) {
		if a.Kind == k {
			return a.Value, true
		}
		if b.Kind == k {
			return b.Value, true
		}
		return 0, false
	}

	tc, hasT := get(thermo.QuantityTemperature)
	p, hasP := get(thermo.QuantityPressure)
	v, hasV := get(thermo.QuantityVolume)
	x, hasX := get(thermo.QuantityQuality)
	s, hasS := get(thermo.QuantityEntropy)

	switch {
	case hasT && hasP:
		return t.lookupTP(tc, p)
	case hasT && hasX:
		return t.lookupSaturated(thermo.Property{Kind: thermo.QuantityTemperature, Value: tc}, x)
	case hasP && hasX:
		return t.lookupSaturated(thermo.Property{Kind: thermo.QuantityPressure, Value: p}, x)
	case hasT && hasV:
		return t.lookupTV(tc, v)
	case hasP && hasV:
		return t.lookupPV(p, v)
	case hasT && hasS:
		return t.lookupTS(tc, s)
	case hasP && hasS:
		return t.lookupPS(p, s)
	case hasV && hasS:
		return t.lookupVS(v, s)
	case hasV && hasX:
		return t.lookupEnvelopeInversion(ctx, thermo.QuantityVolume, v, x)
	case hasS && hasX:
		return t.lookupEnvelopeInversion(ctx, thermo.QuantityEntropy, s, x)
	default:
		return thermo.StateVector{}, fmt.Errorf("unsupported independent pair (%s, %s)", a.Kind, b.Kind)
	}
}

// superheated fills a vapor state at temperature tc above the envelope env
// (fetched at the pressure axis), anchored at the saturated-vapor boundary.
func superheated(tc float64, env thermo.SaturationEnvelope) thermo.StateVector {
	dT := tc - env.Tsat
	return thermo.StateVector{
		T:     tc,
		P:     env.Psat,
		V:     env.Vg * kelvin(tc) / kelvin(env.Tsat),
		U:     env.Ug + steamCv*dT,
		H:     env.Hg() + steamCp*dT,
		S:     env.Sg + steamCp*math.Log(kelvin(tc)/kelvin(env.Tsat)),
		X:     thermo.PhaseSuperheated.SentinelQuality(),
		Phase: thermo.PhaseSuperheated,
	}
}

// subcooled fills a compressed-liquid state at temperature tc under pressure
// pBar using the saturated-liquid-at-T approximation.
func (t *Table) subcooled(tc, pBar float64) (thermo.StateVector, error) {
	liq, err := t.envelopeAtT(tc)
	if err != nil {
		return thermo.StateVector{}, err
	}
	return thermo.StateVector{
		T:     tc,
		P:     pBar,
		V:     liq.Vf,
		U:     liq.Uf,
		H:     liq.Hf + liq.Vf*(pBar-liq.Psat)*barToKPa,
		S:     liq.Sf,
		X:     thermo.PhaseSubcooled.SentinelQuality(),
		Phase: thermo.PhaseSubcooled,
	}, nil
}

func (t *Table) lookupTP(tc, pBar float64) (thermo.StateVector, error) {
	env, err := t.envelopeAtP(pBar)
	if err != nil {
		return thermo.StateVector{}, err
	}
	if tc < domainTMin || tc > domainTMax {
		return thermo.StateVector{}, &thermo.OutOfRangeError{
			Kind: thermo.QuantityTemperature, Value: tc,
			Reason: fmt.Sprintf("water domain is (%.2f, %.0f) degC", domainTMin, domainTMax),
		}
	}
	switch {
	case tc > env.Tsat:
		return superheated(tc, env), nil
	case tc < env.Tsat:
		return t.subcooled(tc, pBar)
	default:
		// Exactly on the curve: report the vapor boundary. The resolver
		// reaches saturated states through the mixing law, not here.
		return env.Mix(1), nil
	}
}

func (t *Table) lookupSaturated(axis thermo.Property, x float64) (thermo.StateVector, error) {
	if x < 0 || x > 1 {
		return thermo.StateVector{}, &thermo.ValidationError{
			Field: thermo.QuantityQuality, Value: x,
			Reason: "quality must lie in [0,1]",
		}
	}
	env, err := t.SaturationAt(context.Background(), axis)
	if err != nil {
		return thermo.StateVector{}, err
	}
	return env.Mix(x), nil
}

func (t *Table) lookupTV(tc, v float64) (thermo.StateVector, error) {
	env, err := t.envelopeAtT(tc)
	if err != nil {
		return thermo.StateVector{}, err
	}
	if x, ok := env.QualityFromVolume(v); ok {
		return env.Mix(x), nil
	}
	if v > env.Vg {
		// Superheated: find the anchor pressure whose vapor extension
		// passes through (tc, v). v grows as the anchor pressure drops,
		// so the bracket is [table min, tc].
		anchor, err := t.solveAnchorT(domainTMin, tc, func(e thermo.SaturationEnvelope) float64 {
			return e.Vg * kelvin(tc) / kelvin(e.Tsat)
		}, v)
		if err != nil {
			return thermo.StateVector{}, err
		}
		return superheated(tc, anchor), nil
	}
	// v below the liquid boundary: (T, v) does not determine pressure in the
	// compressed-liquid approximation.
	return thermo.StateVector{}, &thermo.OutOfRangeError{
		Kind: thermo.QuantityVolume, Value: v,
		Reason: fmt.Sprintf("below saturated-liquid volume %g at %g degC; compressed-liquid pressure is underdetermined", env.Vf, tc),
	}
}

func (t *Table) lookupPV(pBar, v float64) (thermo.StateVector, error) {
	env, err := t.envelopeAtP(pBar)
	if err != nil {
		return thermo.StateVector{}, err
	}
	if x, ok := env.QualityFromVolume(v); ok {
		return env.Mix(x), nil
	}
	if v > env.Vg {
		// Vapor extension at fixed anchor: v scales linearly with T.
		tK := kelvin(env.Tsat) * v / env.Vg
		return superheated(tK-273.15, env), nil
	}
	return thermo.StateVector{}, &thermo.OutOfRangeError{
		Kind: thermo.QuantityVolume, Value: v,
		Reason: fmt.Sprintf("below saturated-liquid volume %g at %g bar; compressed-liquid pressure is underdetermined", env.Vf, pBar),
	}
}

func (t *Table) lookupTS(tc, s float64) (thermo.StateVector, error) {
	env, err := t.envelopeAtT(tc)
	if err != nil {
		return thermo.StateVector{}, err
	}
	if x, ok := env.QualityFromEntropy(s); ok {
		return env.Mix(x), nil
	}
	if s > env.Sg {
		anchor, err := t.solveAnchorT(domainTMin, tc, func(e thermo.SaturationEnvelope) float64 {
			return e.Sg + steamCp*math.Log(kelvin(tc)/kelvin(e.Tsat))
		}, s)
		if err != nil {
			return thermo.StateVector{}, err
		}
		return superheated(tc, anchor), nil
	}
	return thermo.StateVector{}, &thermo.OutOfRangeError{
		Kind: thermo.QuantityEntropy, Value: s,
		Reason: fmt.Sprintf("below saturated-liquid entropy %g at %g degC; compressed-liquid pressure is underdetermined", env.Sf, tc),
	}
}

func (t *Table) lookupPS(pBar, s float64) (thermo.StateVector, error) {
	env, err := t.envelopeAtP(pBar)
	if err != nil {
		return thermo.StateVector{}, err
	}
	if x, ok := env.QualityFromEntropy(s); ok {
		return env.Mix(x), nil
	}
	if s > env.Sg {
		tK := kelvin(env.Tsat) * math.Exp((s-env.Sg)/steamCp)
		return superheated(tK-273.15, env), nil
	}
	// Liquid branch: entropy tracks temperature along the liquid boundary,
	// so solve sf(T') = s and take the compressed-liquid state at (T', P).
	liq, err := t.solveAnchorT(domainTMin, env.Tsat, func(e thermo.SaturationEnvelope) float64 {
		return e.Sf
	}, s)
	if err != nil {
		return thermo.StateVector{}, err
	}
	return t.subcooled(liq.Tsat, pBar)
}

// lookupVS solves the joint (v, s) case where both T and P are outputs: inside
// the dome each saturation temperature fixes a quality from v via the mixing
// law, and that quality in turn fixes an entropy, so the state is the
// temperature at which the volume-implied entropy matches s. Outside the dome
// the pair does not determine a state on the tabulated surface and fails with
// OutOfRange.
func (t *Table) lookupVS(v, s float64) (thermo.StateVector, error) {
	rows := t.snapshot()
	anchor, err := t.solveAnchorT(rows[0].t, rows[len(rows)-1].t, func(e thermo.SaturationEnvelope) float64 {
		x := (v - e.Vf) / (e.Vg - e.Vf)
		return e.Sf + x*(e.Sg-e.Sf)
	}, s)
	if err != nil {
		return thermo.StateVector{}, &thermo.OutOfRangeError{
			Kind: thermo.QuantityEntropy, Value: s,
			Reason: fmt.Sprintf("no saturation temperature joins v=%g with s=%g inside the dome", v, s),
		}
	}
	x, ok := anchor.QualityFromVolume(v)
	if !ok {
		return thermo.StateVector{}, &thermo.OutOfRangeError{
			Kind: thermo.QuantityVolume, Value: v,
			Reason: fmt.Sprintf("(v=%g, s=%g) lies outside the saturation dome", v, s),
		}
	}
	return anchor.Mix(x), nil
}

// lookupEnvelopeInversion solves the joint (v|s, x) case where both T and P
// are outputs: it finds the envelope temperature at which the quality-x
// mixture matches the frozen invariant, then mixes there.
func (t *Table) lookupEnvelopeInversion(_ context.Context, kind thermo.Quantity, value, x float64) (thermo.StateVector, error) {
	if x < 0 || x > 1 {
		return thermo.StateVector{}, &thermo.ValidationError{
			Field: thermo.QuantityQuality, Value: x,
			Reason: "quality must lie in [0,1]",
		}
	}
	var mix func(e thermo.SaturationEnvelope) float64
	switch kind {
	case thermo.QuantityVolume:
		mix = func(e thermo.SaturationEnvelope) float64 { return e.Vf + x*(e.Vg-e.Vf) }
	case thermo.QuantityEntropy:
		mix = func(e thermo.SaturationEnvelope) float64 { return e.Sf + x*(e.Sg-e.Sf) }
	default:
		return thermo.StateVector{}, fmt.Errorf("envelope inversion needs volume or entropy, got %s", kind)
	}
	rows := t.snapshot()
	anchor, err := t.solveAnchorT(rows[0].t, rows[len(rows)-1].t, mix, value)
	if err != nil {
		return thermo.StateVector{}, &thermo.OutOfRangeError{
			Kind: kind, Value: value,
			Reason: fmt.Sprintf("no saturation temperature yields a quality-%.4f mixture with %s=%g", x, kind, value),
		}
	}
	return anchor.Mix(x), nil
}

// solveAnchorT finds the saturation temperature in [lo, hi] at which f(env)
// crosses target. The mixing and vapor-extension curves are not globally
// monotonic across the whole table, so the bracket is located by scanning the
// table grid before bisecting.
func (t *Table) solveAnchorT(lo, hi float64, f func(thermo.SaturationEnvelope) float64, target float64) (thermo.SaturationEnvelope, error) {
	eval := func(tc float64) (float64, thermo.SaturationEnvelope, error) {
		env, err := t.envelopeAtT(tc)
		if err != nil {
			return 0, thermo.SaturationEnvelope{}, err
		}
		return f(env) - target, env, nil
	}

	// Scan the table grid restricted to [lo, hi] for a sign change.
	rows := t.snapshot()
	grid := make([]float64, 0, len(rows)+2)
	grid = append(grid, lo)
	for _, r := range rows {
		if r.t > lo && r.t < hi {
			grid = append(grid, r.t)
		}
	}
	grid = append(grid, hi)

	prevT := grid[0]
	prevF, prevEnv, err := eval(prevT)
	if err != nil {
		return thermo.SaturationEnvelope{}, err
	}
	if math.Abs(prevF) < 1e-12 {
		return prevEnv, nil
	}

	var a, b float64
	found := false
	for _, tc := range grid[1:] {
		fv, env, err := eval(tc)
		if err != nil {
			return thermo.SaturationEnvelope{}, err
		}
		if math.Abs(fv) < 1e-12 {
			return env, nil
		}
		if prevF*fv < 0 {
			a, b = prevT, tc
			found = true
			break
		}
		prevT, prevF = tc, fv
	}
	if !found {
		return thermo.SaturationEnvelope{}, &thermo.OutOfRangeError{
			Reason: fmt.Sprintf("target %g not bracketed on [%g, %g] degC", target, lo, hi),
		}
	}

	// Bisect to convergence. 60 iterations put the interval far below any
	// physically meaningful resolution.
	var mid thermo.SaturationEnvelope
	fa, _, _ := eval(a)
	for i := 0; i < 60; i++ {
		m := (a + b) / 2
		fm, env, err := eval(m)
		if err != nil {
			return thermo.SaturationEnvelope{}, err
		}
		mid = env
		if math.Abs(fm) < 1e-12 || (b-a) < 1e-10 {
			return mid, nil
		}
		if fa*fm < 0 {
			b = m
		} else {
			a, fa = m, fm
		}
	}
	return mid, nil
}
