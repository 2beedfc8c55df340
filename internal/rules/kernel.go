// Package rules holds the resolver's plan kernel: a small Mangle (Datalog)
// program declaring, per process constraint, which fields a user may pin,
// which independent-variable pair the oracle is queried with, and which axis
// the saturation envelope is fetched on. The numeric code executes what the
// logic derives; the crux table of the resolver lives here as facts, not as
// switch statements scattered through Go.
package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"polytrope/internal/logging"
	"polytrope/internal/thermo"
)

// program is the full plan ruleset. Pinning quality under Isochoric or
// Adiabatic flips both T and P into outputs (joint_solve), which is why the
// oracle pair there carries the frozen invariant instead of a second known
// property.
const program = `
Decl legal_pin(Process, Field).
Decl oracle_pair(Process, Field, Kind1, Kind2).
Decl envelope_axis(Process, Field, Axis).
Decl joint_solve(Process, Field).

# Fields a user may pin per process.
legal_pin(/isobaric, /temperature).
legal_pin(/isobaric, /volume).
legal_pin(/isobaric, /quality).
legal_pin(/isothermal, /pressure).
legal_pin(/isothermal, /volume).
legal_pin(/isothermal, /quality).
legal_pin(/isochoric, /temperature).
legal_pin(/isochoric, /pressure).
legal_pin(/isochoric, /quality).
legal_pin(/adiabatic, /temperature).
legal_pin(/adiabatic, /pressure).
legal_pin(/adiabatic, /volume).
legal_pin(/adiabatic, /quality).
legal_pin(/polytropic, /pressure).
legal_pin(/polytropic, /volume).
legal_pin(/polytropic, /temperature).

# Independent pair handed to the oracle for the single-phase branch.
# For Isochoric and Adiabatic the second independent is the frozen process
# invariant, because the partner intensive property is an output.
oracle_pair(/isobaric, /temperature, /temperature, /pressure).
oracle_pair(/isobaric, /volume, /pressure, /volume).
oracle_pair(/isothermal, /pressure, /temperature, /pressure).
oracle_pair(/isothermal, /volume, /temperature, /volume).
oracle_pair(/isochoric, /temperature, /temperature, /volume).
oracle_pair(/isochoric, /pressure, /pressure, /volume).
oracle_pair(/isochoric, /quality, /volume, /quality).
oracle_pair(/adiabatic, /temperature, /temperature, /entropy).
oracle_pair(/adiabatic, /pressure, /pressure, /entropy).
oracle_pair(/adiabatic, /volume, /volume, /entropy).
oracle_pair(/adiabatic, /quality, /entropy, /quality).

# Envelope axis per (process, pinned field). Frozen-axis processes use the
# frozen quantity's axis for every pin; the others follow the pinned field.
envelope_axis(/isobaric, Pin, /pressure) :- legal_pin(/isobaric, Pin).
envelope_axis(/isothermal, Pin, /temperature) :- legal_pin(/isothermal, Pin).
envelope_axis(/isochoric, /temperature, /temperature).
envelope_axis(/isochoric, /pressure, /pressure).
envelope_axis(/adiabatic, /temperature, /temperature).
envelope_axis(/adiabatic, /pressure, /pressure).

# Pins where both T and P are outputs solved jointly along the envelope.
joint_solve(Process, /quality) :- oracle_pair(Process, /quality, K1, K2).
`

// Kernel evaluates the plan program once and answers point queries against
// the derived fact store.
type Kernel struct {
	mu          sync.RWMutex
	store       factstore.FactStore
	programInfo *analysis.ProgramInfo
	initialized bool
}

// NewKernel parses, analyzes, and evaluates the embedded plan program.
func NewKernel() (*Kernel, error) {
	k := &Kernel{store: factstore.NewSimpleInMemoryStore()}

	parsed, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan program: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(parsed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze plan program: %w", err)
	}
	k.programInfo = programInfo

	if _, err := engine.EvalProgramWithStats(programInfo, k.store); err != nil {
		return nil, fmt.Errorf("failed to evaluate plan program: %w", err)
	}

	k.initialized = true
	logging.Rules("plan kernel evaluated (%d predicates)", len(programInfo.Decls))
	return k, nil
}

// query collects all facts for a predicate as atom-string argument tuples.
func (k *Kernel) query(predicate string) ([][]string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.initialized {
		return nil, fmt.Errorf("plan kernel not initialized")
	}

	var results [][]string
	for pred := range k.programInfo.Decls {
		if pred.Symbol != predicate {
			continue
		}
		k.store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
			row := make([]string, len(a.Args))
			for i, term := range a.Args {
				if c, ok := term.(ast.Constant); ok {
					row[i] = c.Symbol
				}
			}
			results = append(results, row)
			return nil
		})
	}
	return results, nil
}

// lookup scans a predicate's facts for a row whose leading arguments match
// the given atoms and returns the remaining arguments.
func (k *Kernel) lookup(predicate string, match ...string) ([]string, bool) {
	rows, err := k.query(predicate)
	if err != nil {
		logging.RulesDebug("lookup %s: %v", predicate, err)
		return nil, false
	}
	for _, row := range rows {
		if len(row) < len(match) {
			continue
		}
		ok := true
		for i, m := range match {
			if row[i] != m {
				ok = false
				break
			}
		}
		if ok {
			return row[len(match):], true
		}
	}
	return nil, false
}

func quantityFromAtom(atom string) thermo.Quantity {
	q, err := thermo.ParseQuantity(strings.TrimPrefix(atom, "/"))
	if err != nil {
		return thermo.QuantityNone
	}
	return q
}

// LegalPin reports whether the field may be pinned under the process.
func (k *Kernel) LegalPin(process thermo.ProcessKind, field thermo.Quantity) bool {
	_, ok := k.lookup("legal_pin", process.Atom(), field.Atom())
	return ok
}

// OraclePair returns the independent-variable kinds to query the oracle with
// for the single-phase branch of (process, pinned field).
func (k *Kernel) OraclePair(process thermo.ProcessKind, field thermo.Quantity) (thermo.Quantity, thermo.Quantity, bool) {
	rest, ok := k.lookup("oracle_pair", process.Atom(), field.Atom())
	if !ok || len(rest) != 2 {
		return thermo.QuantityNone, thermo.QuantityNone, false
	}
	return quantityFromAtom(rest[0]), quantityFromAtom(rest[1]), true
}

// EnvelopeAxis returns the saturation axis to fetch the envelope on for
// (process, pinned field).
func (k *Kernel) EnvelopeAxis(process thermo.ProcessKind, field thermo.Quantity) (thermo.Quantity, bool) {
	rest, ok := k.lookup("envelope_axis", process.Atom(), field.Atom())
	if !ok || len(rest) != 1 {
		return thermo.QuantityNone, false
	}
	return quantityFromAtom(rest[0]), true
}

// JointSolve reports whether (process, pinned field) requires solving both T
// and P along the envelope.
func (k *Kernel) JointSolve(process thermo.ProcessKind, field thermo.Quantity) bool {
	_, ok := k.lookup("joint_solve", process.Atom(), field.Atom())
	return ok
}
