package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"polytrope/internal/logging"
	"polytrope/internal/substance"
	"polytrope/internal/thermo"
)

// ArbiterStats is a snapshot of the arbiter's counters.
type ArbiterStats struct {
	Keystrokes int64 // raw edit events received
	Submitted  int64 // settle events handed to the session
	Accepted   int64 // resolutions committed to the visible snapshot
	Superseded int64 // resolutions dropped by the stale-write guard
	Faulted    int64 // resolutions that faulted the session
	Previews   int64 // keystroke previews served from local arithmetic
}

// EditArbiter sequences concurrent edits into the session. Every edit gets a
// monotonically increasing sequence number; an in-flight resolution is
// cancelled the moment a newer settle arrives, and its result is discarded by
// the session's commit guard even if it returns first. Debounce timers exist
// purely for responsiveness: keystrokes are answered by Preview without any
// oracle traffic and a settle Submit is scheduled once the field quiesces.
// Correctness never depends on the timers; Submit is the authoritative path.
type EditArbiter struct {
	session *Session
	settle  time.Duration
	timeout time.Duration

	seq atomic.Uint64

	mu       sync.Mutex
	cancel   context.CancelFunc
	timers   map[thermo.Quantity]*time.Timer
	stopped  bool
	inflight sync.WaitGroup

	keystrokes atomic.Int64
	submitted  atomic.Int64
	accepted   atomic.Int64
	superseded atomic.Int64
	faulted    atomic.Int64
	previews   atomic.Int64
}

// NewEditArbiter wires an arbiter over one session. settle is the quiesce
// interval after which a field's latest keystroke becomes a settle event;
// timeout bounds a single resolution.
func NewEditArbiter(session *Session, settle, timeout time.Duration) *EditArbiter {
	return &EditArbiter{
		session: session,
		settle:  settle,
		timeout: timeout,
		timers:  make(map[thermo.Quantity]*time.Timer),
	}
}

// Keystroke records one raw edit: it reschedules the field's settle timer and
// returns a purely local preview when one is computable. The preview never
// touches the oracle and never mutates the visible snapshot.
func (a *EditArbiter) Keystroke(field thermo.Quantity, value float64) (thermo.StateVector, bool) {
	a.keystrokes.Add(1)

	a.mu.Lock()
	if !a.stopped {
		if t, ok := a.timers[field]; ok && t.Stop() {
			a.inflight.Done()
		}
		// The inflight count is taken at scheduling time so Stop cannot
		// slip between a timer firing and its submission registering.
		a.inflight.Add(1)
		a.timers[field] = time.AfterFunc(a.settle, func() {
			defer a.inflight.Done()
			a.mu.Lock()
			skip := a.stopped
			a.mu.Unlock()
			if skip {
				return
			}
			_, err := a.Submit(context.Background(), field, value)
			if err != nil && !errors.Is(err, thermo.ErrSuperseded) {
				logging.Arbiter("debounced settle %s=%g failed: %v", field, value, err)
			}
		})
	}
	a.mu.Unlock()

	return a.Preview(field, value)
}

// Preview computes the immediate display value for a keystroke from the
// cached envelope and the linear mixing law alone. It only answers inside
// the saturation dome on a frozen-axis process (the cached envelope is valid
// there); everywhere else the caller keeps showing the last resolution until
// the settle edit arrives.
func (a *EditArbiter) Preview(field thermo.Quantity, value float64) (thermo.StateVector, bool) {
	cur := a.session.Current()
	if cur == nil || cur.State.Phase != thermo.PhaseSaturated {
		return thermo.StateVector{}, false
	}
	pure, ok := a.session.sub.(*substance.Pure)
	if !ok {
		return thermo.StateVector{}, false
	}

	c := a.session.Constraint()
	switch c.Kind {
	case thermo.ProcessIsobaric, thermo.ProcessIsothermal:
	default:
		return thermo.StateVector{}, false
	}
	env, ok := pure.CachedEnvelope(c.Invariant())
	if !ok {
		return thermo.StateVector{}, false
	}

	var x float64
	switch field {
	case thermo.QuantityQuality:
		if value < 0 || value > 1 {
			return thermo.StateVector{}, false
		}
		x = value
	case thermo.QuantityVolume:
		var inDome bool
		if x, inDome = env.QualityFromVolume(value); !inDome {
			return thermo.StateVector{}, false
		}
	default:
		return thermo.StateVector{}, false
	}

	a.previews.Add(1)
	return env.Mix(x).WithPinned(field), true
}

// Submit is the authoritative settle path: it assigns the next sequence
// number, cancels any in-flight resolution, and runs the session. The newest
// submission always wins; an older resolution returning late is reported as
// superseded and leaves the snapshot untouched.
func (a *EditArbiter) Submit(ctx context.Context, field thermo.Quantity, value float64) (*Resolution, error) {
	seq := a.seq.Add(1)
	a.submitted.Add(1)

	edit := thermo.EditEvent{
		Field:  field,
		Value:  value,
		Seq:    seq,
		At:     time.Now(),
		Settle: true,
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = cancel
	a.mu.Unlock()

	logging.ArbiterDebug("submit %s", edit)
	res, err := a.session.Resolve(ctx, edit)
	switch {
	case err == nil:
		a.accepted.Add(1)
		return res, nil
	case errors.Is(err, thermo.ErrSuperseded):
		a.superseded.Add(1)
		return nil, err
	default:
		a.faulted.Add(1)
		return nil, err
	}
}

// Stop cancels pending debounce timers and any in-flight resolution, then
// waits for debounced submissions to drain.
func (a *EditArbiter) Stop() {
	a.mu.Lock()
	a.stopped = true
	for _, t := range a.timers {
		if t.Stop() {
			a.inflight.Done()
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	a.inflight.Wait()
}

// Stats returns a snapshot of the arbiter counters.
func (a *EditArbiter) Stats() ArbiterStats {
	return ArbiterStats{
		Keystrokes: a.keystrokes.Load(),
		Submitted:  a.submitted.Load(),
		Accepted:   a.accepted.Load(),
		Superseded: a.superseded.Load(),
		Faulted:    a.faulted.Load(),
		Previews:   a.previews.Load(),
	}
}
