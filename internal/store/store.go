// Package store persists session and resolution history to an embedded
// SQLite database so a solve run can be inspected after the fact.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"polytrope/internal/logging"
	"polytrope/internal/resolver"
	"polytrope/internal/thermo"
)

// SessionStore records fixed initial states and every committed resolution.
type SessionStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// SessionRecord is one persisted session row.
type SessionRecord struct {
	ID        string
	Substance string
	Process   string
	State1    thermo.StateVector
	CreatedAt time.Time
}

// ResolutionRecord is one persisted resolution row.
type ResolutionRecord struct {
	SessionID  string
	Seq        uint64
	Field      string
	Value      float64
	State2     thermo.StateVector
	Energy     resolver.EnergyBalance
	ResolvedAt time.Time
}

// NewSessionStore opens (creating if needed) the database at path.
func NewSessionStore(path string) (*SessionStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SessionStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("session store opened at %s", path)
	return s, nil
}

func (s *SessionStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		substance TEXT NOT NULL,
		process TEXT NOT NULL,
		state1_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS resolutions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		pinned_field TEXT NOT NULL,
		pinned_value REAL NOT NULL,
		state2_json TEXT NOT NULL,
		work REAL NOT NULL,
		heat REAL NOT NULL,
		delta_u REAL NOT NULL,
		delta_h REAL NOT NULL,
		delta_s REAL NOT NULL,
		resolved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_resolutions_session ON resolutions(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// SaveSession records a newly opened session with its fixed state 1.
func (s *SessionStore) SaveSession(id, substanceName string, process thermo.ProcessKind, state1 thermo.StateVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateJSON, err := json.Marshal(stateToPayload(state1))
	if err != nil {
		return fmt.Errorf("failed to marshal state1: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, substance, process, state1_json) VALUES (?, ?, ?, ?)`,
		id, substanceName, process.String(), string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	logging.StoreDebug("saved session %s (%s, %s)", id, substanceName, process)
	return nil
}

// SaveResolution records one committed resolution for a session.
func (s *SessionStore) SaveResolution(sessionID string, edit thermo.EditEvent, res *resolver.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateJSON, err := json.Marshal(stateToPayload(res.State))
	if err != nil {
		return fmt.Errorf("failed to marshal state2: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO resolutions
		 (session_id, seq, pinned_field, pinned_value, state2_json, work, heat, delta_u, delta_h, delta_s, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, res.Seq, edit.Field.String(), edit.Value, string(stateJSON),
		res.Energy.W, res.Energy.Q, res.Energy.DeltaU, res.Energy.DeltaH, res.Energy.DeltaS,
		res.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}
	logging.StoreDebug("saved resolution seq %d for session %s", res.Seq, sessionID)
	return nil
}

// GetSession fetches one session by id.
func (s *SessionStore) GetSession(id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, substance, process, state1_json, created_at FROM sessions WHERE id = ?`, id)

	var rec SessionRecord
	var stateJSON string
	if err := row.Scan(&rec.ID, &rec.Substance, &rec.Process, &stateJSON, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s not found", id)
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	state, err := payloadToState(stateJSON)
	if err != nil {
		return nil, err
	}
	rec.State1 = state
	return &rec, nil
}

// ListResolutions returns the committed resolutions of a session in sequence
// order.
func (s *SessionStore) ListResolutions(sessionID string) ([]ResolutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT session_id, seq, pinned_field, pinned_value, state2_json,
		        work, heat, delta_u, delta_h, delta_s, resolved_at
		 FROM resolutions WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer rows.Close()

	var out []ResolutionRecord
	for rows.Next() {
		var rec ResolutionRecord
		var stateJSON string
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &rec.Field, &rec.Value, &stateJSON,
			&rec.Energy.W, &rec.Energy.Q, &rec.Energy.DeltaU, &rec.Energy.DeltaH, &rec.Energy.DeltaS,
			&rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		state, err := payloadToState(stateJSON)
		if err != nil {
			return nil, err
		}
		rec.State2 = state
		out = append(out, rec)
	}
	return out, rows.Err()
}

// statePayload is the JSON shape states are persisted in. Enums are stored as
// their string forms so rows stay readable with plain sqlite tooling.
type statePayload struct {
	T      float64 `json:"t"`
	P      float64 `json:"p"`
	V      float64 `json:"v"`
	U      float64 `json:"u"`
	H      float64 `json:"h"`
	S      float64 `json:"s"`
	X      float64 `json:"x"`
	Phase  string  `json:"phase"`
	Pinned string  `json:"pinned,omitempty"`
}

func stateToPayload(sv thermo.StateVector) statePayload {
	p := statePayload{
		T: sv.T, P: sv.P, V: sv.V, U: sv.U, H: sv.H, S: sv.S, X: sv.X,
		Phase: sv.Phase.String(),
	}
	if sv.Pinned != thermo.QuantityNone {
		p.Pinned = sv.Pinned.String()
	}
	return p
}

func payloadToState(raw string) (thermo.StateVector, error) {
	var p statePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return thermo.StateVector{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	sv := thermo.StateVector{T: p.T, P: p.P, V: p.V, U: p.U, H: p.H, S: p.S, X: p.X}
	switch p.Phase {
	case "subcooled":
		sv.Phase = thermo.PhaseSubcooled
	case "saturated":
		sv.Phase = thermo.PhaseSaturated
	case "superheated":
		sv.Phase = thermo.PhaseSuperheated
	}
	if p.Pinned != "" {
		if q, err := thermo.ParseQuantity(p.Pinned); err == nil {
			sv.Pinned = q
		}
	}
	return sv, nil
}
