package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"polytrope/internal/logging"
	"polytrope/internal/rules"
	"polytrope/internal/substance"
	"polytrope/internal/thermo"
)

// Status is the session lifecycle state.
type Status int

const (
	StatusAwaitingProcessSelection Status = iota
	StatusAwaitingInitialEdit
	StatusResolving
	StatusResolved
	StatusFaulted
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingProcessSelection:
		return "awaiting_process_selection"
	case StatusAwaitingInitialEdit:
		return "awaiting_initial_edit"
	case StatusResolving:
		return "resolving"
	case StatusResolved:
		return "resolved"
	case StatusFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Resolution is one successful state-2 outcome with its energy balance. The
// energy figures exist only on this type, so they cannot be read off a
// faulted or partially resolved session.
type Resolution struct {
	State      thermo.StateVector
	Energy     EnergyBalance
	Seq        uint64
	ResolvedAt time.Time
}

// Session owns one state1 → state2 simulation: the fixed initial state, the
// frozen process constraint, the lifecycle status, and the visible resolution
// snapshot. The snapshot is replaced whole via atomic.Pointer so concurrent
// readers never observe a half-updated state; status transitions are
// single-writer under mu.
type Session struct {
	ID        string
	CreatedAt time.Time

	sub      substance.Substance
	resolver *Resolver

	mu         sync.Mutex
	status     Status
	state1     thermo.StateVector
	constraint thermo.ProcessConstraint
	lastSeq    uint64

	current atomic.Pointer[Resolution]
}

// NewSession fixes state 1 and enters AwaitingProcessSelection. state1 must
// already be fully resolved (use the substance Lookup to build it from two
// independents).
func NewSession(sub substance.Substance, plan *rules.Kernel, classifier substance.Classifier, state1 thermo.StateVector) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		sub:       sub,
		resolver:  NewResolver(sub, plan, classifier),
		status:    StatusAwaitingProcessSelection,
		state1:    state1,
	}
	logging.Session("session %s: state1 fixed (%s, %s)", s.ID, sub.Name(), state1)
	return s
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State1 returns the fixed initial state.
func (s *Session) State1() thermo.StateVector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state1
}

// Constraint returns the frozen process constraint. Zero until SelectProcess.
func (s *Session) Constraint() thermo.ProcessConstraint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraint
}

// SelectProcess freezes the constraint's invariant quantity from state 1 and
// moves to AwaitingInitialEdit. n is the polytropic exponent, ignored for the
// other processes. Selecting is only legal before the first edit.
func (s *Session) SelectProcess(kind thermo.ProcessKind, n float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusAwaitingProcessSelection {
		return fmt.Errorf("cannot select process in status %s", s.status)
	}
	c, err := thermo.NewProcessConstraint(kind, s.state1, n)
	if err != nil {
		return err
	}
	s.constraint = c
	s.status = StatusAwaitingInitialEdit
	logging.Session("session %s: process frozen %s", s.ID, c)
	return nil
}

// Resolve runs one settle edit through the resolver and publishes the result.
// On success the session is Resolved and Current returns the new snapshot.
// Typed resolution failures fault the session but retain the previous
// resolution for display. A cancelled resolution leaves status and snapshot
// untouched and reports ErrSuperseded.
func (s *Session) Resolve(ctx context.Context, edit thermo.EditEvent) (*Resolution, error) {
	s.mu.Lock()
	if s.status == StatusAwaitingProcessSelection {
		s.mu.Unlock()
		return nil, fmt.Errorf("no process selected")
	}
	prevStatus := s.status
	s.status = StatusResolving
	c := s.constraint
	s.mu.Unlock()

	prev := s.state1
	if cur := s.current.Load(); cur != nil {
		prev = cur.State
	}

	state, err := s.resolver.Resolve(ctx, c, prev, edit)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A stale edit's failure is as dead as its success would be: a newer
		// sequence has already committed, so the fault is discarded instead
		// of overwriting the newer status.
		if edit.Seq < s.lastSeq {
			if s.status == StatusResolving {
				s.status = prevStatus
			}
			return nil, thermo.ErrSuperseded
		}
		if errors.Is(err, thermo.ErrSuperseded) || errors.Is(err, context.Canceled) {
			// Restore only if no newer resolution has moved the status on.
			if s.status == StatusResolving {
				s.status = prevStatus
			}
			return nil, thermo.ErrSuperseded
		}
		s.status = StatusFaulted
		logging.Session("session %s: faulted on seq %d: %v", s.ID, edit.Seq, err)
		return nil, err
	}

	res := &Resolution{
		State:      state,
		Energy:     ComputeEnergy(s.sub, c, s.state1, state),
		Seq:        edit.Seq,
		ResolvedAt: time.Now(),
	}

	// Stale-write guard: a result whose sequence is older than the last
	// committed one is dropped even though it finished the lookup, so the
	// visible snapshot always reflects the newest settle edit.
	s.mu.Lock()
	if edit.Seq < s.lastSeq {
		if s.status == StatusResolving {
			s.status = prevStatus
		}
		s.mu.Unlock()
		logging.SessionDebug("session %s: dropped stale seq %d (committed %d)", s.ID, edit.Seq, s.lastSeq)
		return nil, thermo.ErrSuperseded
	}
	s.lastSeq = edit.Seq
	s.current.Store(res)
	s.status = StatusResolved
	s.mu.Unlock()

	logging.SessionDebug("session %s: resolved seq %d", s.ID, edit.Seq)
	return res, nil
}

// Current returns the latest successful resolution, surviving across faults.
// Nil until the first edit resolves.
func (s *Session) Current() *Resolution {
	return s.current.Load()
}
